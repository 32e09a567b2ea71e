package flow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-front/cms-front/internal/accesstoken"
	"github.com/cms-front/cms-front/internal/testutil"
)

type fakeNavigator struct {
	mu            sync.Mutex
	location      string
	replaced      []string
	replacedState []string
}

func (n *fakeNavigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

func (n *fakeNavigator) Replace(u string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replaced = append(n.replaced, u)
}

func (n *fakeNavigator) ReplaceState(u string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replacedState = append(n.replacedState, u)
	n.location = u
}

type recordedQuery struct {
	Query     string
	Variables map[string]any
	Bearer    string
}

type fakeExecutor struct {
	mu       sync.Mutex
	seedBody json.RawMessage
	tmplBody json.RawMessage
	queries  []recordedQuery
}

func (e *fakeExecutor) Query(_ context.Context, query string, variables map[string]any, bearer string) (json.RawMessage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queries = append(e.queries, recordedQuery{Query: query, Variables: variables, Bearer: bearer})
	if query == SeedQuery {
		return e.seedBody, nil
	}
	return e.tmplBody, nil
}

func (e *fakeExecutor) recorded() []recordedQuery {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]recordedQuery, len(e.queries))
	copy(out, e.queries)
	return out
}

const postSeedBody = `{"node":{"__typename":"Post","id":"cG9zdDox","uri":"/blog/hello","isContentNode":true,"contentType":{"node":{"name":"post"}},"template":{"templateName":""}}}`

func singleRegistry() Registry {
	return Registry{
		"single": {
			Name:  "single",
			Query: `query GetPost($uri: String!, $asPreview: Boolean!) { post(id: $uri, idType: URI, asPreview: $asPreview) { title content } }`,
			Variables: func(node *SeedNode, opts TemplateOptions) map[string]any {
				return map[string]any{"uri": node.URI, "asPreview": opts.AsPreview}
			},
		},
	}
}

func newTestCoordinator(t *testing.T, api *authAPIStub, nav *fakeNavigator, exec *fakeExecutor, login string) (*Coordinator, *accesstoken.Store) {
	t.Helper()
	store := accesstoken.NewStore(accesstoken.ClientSide)
	return NewCoordinator(Config{
		Navigator:    nav,
		Authorizer:   NewAuthorizer(api.URL, "https://cms.example.com", store),
		Store:        store,
		Executor:     exec,
		Templates:    singleRegistry(),
		LoginPageURI: login,
	}), store
}

func TestRunPublishedPage(t *testing.T) {
	api := newAuthAPIStub(http.StatusUnauthorized, nil)
	defer api.Close()

	nav := &fakeNavigator{location: "https://site.example/blog/hello"}
	exec := &fakeExecutor{seedBody: json.RawMessage(postSeedBody), tmplBody: json.RawMessage(`{"post":{"title":"Hello"}}`)}
	c, _ := newTestCoordinator(t, api, nav, exec, "")

	require.NoError(t, c.Run(context.Background()))

	assert.False(t, c.IsPreview())
	// Published content never touches the auth API
	assert.Empty(t, api.Codes())

	queries := exec.recorded()
	require.Len(t, queries, 2)
	assert.Equal(t, SeedQuery, queries[0].Query)
	assert.Equal(t, map[string]any{"uri": "/blog/hello"}, queries[0].Variables)
	assert.Empty(t, queries[0].Bearer, "published content carries no credentials")
	assert.Equal(t, map[string]any{"uri": "/blog/hello", "asPreview": false}, queries[1].Variables)
	assert.Empty(t, queries[1].Bearer)

	assert.JSONEq(t, `{"post":{"title":"Hello"}}`, string(c.TemplateData()))
}

func TestRunPreviewAuthorized(t *testing.T) {
	api := newAuthAPIStub(http.StatusOK, testutil.TokenSetBody("at", 1700000300, "rt", 2))
	defer api.Close()

	loc := "https://site.example/p?preview=true&code=xyz&previewPathname=" + url.QueryEscape("/blog/hello")
	nav := &fakeNavigator{location: loc}
	exec := &fakeExecutor{seedBody: json.RawMessage(postSeedBody), tmplBody: json.RawMessage(`{"post":{"title":"Draft"}}`)}
	c, _ := newTestCoordinator(t, api, nav, exec, "")

	require.NoError(t, c.Run(context.Background()))

	assert.True(t, c.IsPreview())
	assert.True(t, c.Authorized())
	assert.Equal(t, []string{"xyz"}, api.Codes())

	// The consumed code is stripped without a reload
	require.Len(t, nav.replacedState, 1)
	assert.NotContains(t, nav.replacedState[0], "code=")
	assert.Contains(t, nav.replacedState[0], "preview=true")
	assert.Empty(t, nav.replaced)

	queries := exec.recorded()
	require.Len(t, queries, 2)
	// The seed resolves the previewed pathname, not the current page path
	assert.Equal(t, map[string]any{"uri": "/blog/hello"}, queries[0].Variables)
	assert.Equal(t, "at", queries[0].Bearer)
	assert.Equal(t, map[string]any{"uri": "/blog/hello", "asPreview": true}, queries[1].Variables)
	assert.Equal(t, "at", queries[1].Bearer)
}

func TestRunPreviewUnauthorizedRedirects(t *testing.T) {
	api := newAuthAPIStub(http.StatusUnauthorized, nil)
	defer api.Close()

	loc := "https://site.example/p?preview=true&previewPathname=%2Fblog%2Fhello"
	nav := &fakeNavigator{location: loc}
	exec := &fakeExecutor{}
	c, _ := newTestCoordinator(t, api, nav, exec, "")

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrRedirected)

	require.Len(t, nav.replaced, 1)
	assert.Equal(t, "https://cms.example.com/generate?redirect_uri="+url.QueryEscape(loc), nav.replaced[0])
	// No content was fetched
	assert.Empty(t, exec.recorded())
}

func TestRunPreviewUnauthorizedPrefersLoginPage(t *testing.T) {
	api := newAuthAPIStub(http.StatusUnauthorized, nil)
	defer api.Close()

	nav := &fakeNavigator{location: "https://site.example/p?preview=true"}
	c, _ := newTestCoordinator(t, api, nav, &fakeExecutor{}, "/login")

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrRedirected)
	require.Len(t, nav.replaced, 1)
	assert.Equal(t, "/login", nav.replaced[0])
}

func TestRunPreviewMissingPathnameIsFatal(t *testing.T) {
	api := newAuthAPIStub(http.StatusOK, testutil.TokenSetBody("at", 1, "rt", 2))
	defer api.Close()

	nav := &fakeNavigator{location: "https://site.example/p?preview=true"}
	exec := &fakeExecutor{}
	c, _ := newTestCoordinator(t, api, nav, exec, "")

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrMissingPreviewPathname)
	assert.Empty(t, exec.recorded())
}

func TestRunAuthAPIUnreachableHaltsWithoutNavigation(t *testing.T) {
	api := newAuthAPIStub(http.StatusOK, nil)
	api.Close()

	nav := &fakeNavigator{location: "https://site.example/p?preview=true&previewPathname=%2Fx"}
	exec := &fakeExecutor{}
	c, _ := newTestCoordinator(t, api, nav, exec, "")

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRedirected)
	assert.Empty(t, nav.replaced)
	assert.Empty(t, exec.recorded())
}

func TestRunIsIdempotent(t *testing.T) {
	api := newAuthAPIStub(http.StatusOK, testutil.TokenSetBody("at", 1700000300, "rt", 2))
	defer api.Close()

	loc := "https://site.example/p?preview=true&code=xyz&previewPathname=" + url.QueryEscape("/blog/hello")
	nav := &fakeNavigator{location: loc}
	exec := &fakeExecutor{seedBody: json.RawMessage(postSeedBody), tmplBody: json.RawMessage(`{"post":{}}`)}
	c, _ := newTestCoordinator(t, api, nav, exec, "")

	require.NoError(t, c.Run(context.Background()))
	require.NoError(t, c.Run(context.Background()))

	// Settled state is never re-fetched
	assert.Len(t, api.Codes(), 1)
	assert.Len(t, exec.recorded(), 2)
	assert.Len(t, nav.replacedState, 1)
}

func TestRunConcurrent(t *testing.T) {
	api := newAuthAPIStub(http.StatusOK, testutil.TokenSetBody("at", 1700000300, "rt", 2))
	defer api.Close()

	loc := "https://site.example/p?preview=true&previewPathname=" + url.QueryEscape("/blog/hello")
	nav := &fakeNavigator{location: loc}
	exec := &fakeExecutor{seedBody: json.RawMessage(postSeedBody), tmplBody: json.RawMessage(`{"post":{}}`)}
	c, _ := newTestCoordinator(t, api, nav, exec, "")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Run(context.Background())
		}()
	}
	wg.Wait()

	require.NoError(t, c.Run(context.Background()))
	assert.Len(t, nav.replaced, 0)
	assert.JSONEq(t, `{"post":{}}`, string(c.TemplateData()))
}

func TestPreRenderedViewSkipsPreviewAndQueries(t *testing.T) {
	api := newAuthAPIStub(http.StatusUnauthorized, nil)
	defer api.Close()

	var wrapper struct {
		Node SeedNode `json:"node"`
	}
	require.NoError(t, json.Unmarshal([]byte(postSeedBody), &wrapper))
	node := wrapper.Node

	// Server-rendered views arrive with data already in hand; even a
	// preview=true URL must not restart the flow.
	nav := &fakeNavigator{location: "https://site.example/blog/hello?preview=true"}
	exec := &fakeExecutor{}
	store := accesstoken.NewStore(accesstoken.ClientSide)
	c := NewCoordinator(Config{
		Navigator:    nav,
		Authorizer:   NewAuthorizer(api.URL, "https://cms.example.com", store),
		Store:        store,
		Executor:     exec,
		Templates:    singleRegistry(),
		SeedNode:     &node,
		TemplateData: json.RawMessage(`{"post":{"title":"Hello"}}`),
	})

	require.NoError(t, c.Run(context.Background()))
	assert.False(t, c.IsPreview())
	assert.Empty(t, api.Codes())
	assert.Empty(t, exec.recorded())
	assert.JSONEq(t, `{"post":{"title":"Hello"}}`, string(c.TemplateData()))
}
