package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/cms-front/cms-front/internal/accesstoken"
	"github.com/cms-front/cms-front/internal/log"
	"github.com/cms-front/cms-front/internal/urlutil"
)

var (
	// ErrRedirected reports that the visitor was sent to the backend to
	// obtain an authorization code. The current page view is over.
	ErrRedirected = errors.New("redirected to backend for authorization")

	// ErrNotAuthorized reports that preview access was denied and no
	// navigation target is available.
	ErrNotAuthorized = errors.New("preview authorization denied")

	// ErrMissingPreviewPathname reports a preview URL without the
	// previewPathname parameter naming the content to render.
	ErrMissingPreviewPathname = errors.New("preview URL is missing the previewPathname parameter")
)

// Config wires a Coordinator's collaborators for one page view.
type Config struct {
	Navigator  Navigator
	Authorizer *Authorizer
	Store      *accesstoken.Store
	Executor   QueryExecutor
	Templates  Registry

	// SeedNode seeds the routing state when the host app already resolved
	// it, skipping the seed query.
	SeedNode *SeedNode
	// TemplateData seeds the template state for server-rendered views.
	// Its presence also settles preview detection: rendered data means
	// this is not a preview.
	TemplateData json.RawMessage
	// LoginPageURI optionally names a login page surfaced to unauthorized
	// preview visitors instead of the backend redirect.
	LoginPageURI string
}

// Coordinator drives one page view through preview detection, authorization,
// seed resolution, and template data resolution. Each step settles exactly
// once; concurrent Run calls share in-flight work instead of repeating it.
type Coordinator struct {
	nav          Navigator
	auth         *Authorizer
	store        *accesstoken.Store
	executor     QueryExecutor
	templates    Registry
	loginPageURI string

	group singleflight.Group

	mu           sync.Mutex
	previewKnown bool
	isPreview    bool
	authKnown    bool
	authorized   bool
	seedKnown    bool
	seedNode     *SeedNode
	templateData json.RawMessage
}

// NewCoordinator builds a Coordinator for one page view.
func NewCoordinator(cfg Config) *Coordinator {
	c := &Coordinator{
		nav:          cfg.Navigator,
		auth:         cfg.Authorizer,
		store:        cfg.Store,
		executor:     cfg.Executor,
		templates:    cfg.Templates,
		loginPageURI: cfg.LoginPageURI,
	}
	if cfg.SeedNode != nil {
		c.seedKnown = true
		c.seedNode = cfg.SeedNode
	}
	if cfg.TemplateData != nil {
		c.templateData = cfg.TemplateData
		c.previewKnown = true
		c.isPreview = false
	}
	return c
}

// Run advances the page view to completion. It is safe to call concurrently
// and repeatedly; settled steps are skipped.
func (c *Coordinator) Run(ctx context.Context) error {
	c.detectPreview()
	if c.IsPreview() {
		if err := c.ensureAuthorized(ctx); err != nil {
			return err
		}
	}
	if err := c.resolveSeedNode(ctx); err != nil {
		return err
	}
	return c.resolveTemplateData(ctx)
}

// IsPreview reports whether the current page view renders unpublished
// content. False until preview detection has run.
func (c *Coordinator) IsPreview() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previewKnown && c.isPreview
}

// Authorized reports whether preview authorization succeeded.
func (c *Coordinator) Authorized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authKnown && c.authorized
}

// SeedNode returns the resolved routing node, or nil before resolution or
// when the URI matched nothing.
func (c *Coordinator) SeedNode() *SeedNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seedNode
}

// TemplateData returns the raw data resolved for the matched template, or nil.
func (c *Coordinator) TemplateData() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.templateData
}

func (c *Coordinator) detectPreview() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.previewKnown {
		return
	}
	c.previewKnown = true
	c.isPreview = urlutil.QueryParam(c.nav.Location(), "preview") == "true"
}

func (c *Coordinator) ensureAuthorized(ctx context.Context) error {
	c.mu.Lock()
	if c.authKnown {
		authorized := c.authorized
		c.mu.Unlock()
		if !authorized {
			return ErrNotAuthorized
		}
		return nil
	}
	c.mu.Unlock()

	_, err, _ := c.group.Do("authorize", func() (any, error) {
		c.mu.Lock()
		if c.authKnown {
			authorized := c.authorized
			c.mu.Unlock()
			if !authorized {
				return nil, ErrNotAuthorized
			}
			return nil, nil
		}
		c.mu.Unlock()

		loc := c.nav.Location()
		auth, err := c.auth.EnsureAuthorization(ctx, loc, EnsureOptions{
			RedirectURI:  loc,
			LoginPageURI: c.loginPageURI,
		})
		if err != nil {
			// A failed attempt is not a denial; leave the step
			// unsettled so a later trigger can retry, but never
			// navigate away.
			return nil, fmt.Errorf("authorizing preview: %w", err)
		}
		if !auth.Authorized {
			c.setAuthorized(false)
			target := auth.Login
			if target == "" {
				target = auth.Redirect
			}
			if target != "" {
				c.nav.Replace(target)
				return nil, ErrRedirected
			}
			return nil, ErrNotAuthorized
		}

		// The one-time code has been consumed; drop it from the URL so
		// reloads and shared links do not retry a dead code.
		if urlutil.QueryParam(loc, "code") != "" {
			c.nav.ReplaceState(urlutil.RemoveQueryParam(loc, "code"))
		}
		c.setAuthorized(true)
		return nil, nil
	})
	return err
}

func (c *Coordinator) setAuthorized(ok bool) {
	c.mu.Lock()
	c.authKnown = true
	c.authorized = ok
	c.mu.Unlock()
}

func (c *Coordinator) resolveSeedNode(ctx context.Context) error {
	c.mu.Lock()
	if c.seedKnown {
		c.mu.Unlock()
		return nil
	}
	preview := c.isPreview
	c.mu.Unlock()

	_, err, _ := c.group.Do("seed", func() (any, error) {
		c.mu.Lock()
		if c.seedKnown {
			c.mu.Unlock()
			return nil, nil
		}
		c.mu.Unlock()

		loc := c.nav.Location()
		uri := urlutil.RequestPath(loc)
		if preview {
			uri = urlutil.QueryParam(loc, "previewPathname")
			if uri == "" {
				return nil, ErrMissingPreviewPathname
			}
		}

		raw, err := c.executor.Query(ctx, SeedQuery, map[string]any{"uri": uri}, c.bearerToken(preview))
		if err != nil {
			return nil, fmt.Errorf("resolving seed node: %w", err)
		}
		node, err := ParseSeedNode(raw)
		if err != nil {
			return nil, err
		}
		if node == nil {
			log.LogDebugWithFields("flow", "no content routes to uri", map[string]any{
				"uri": uri,
			})
		}

		c.mu.Lock()
		c.seedKnown = true
		c.seedNode = node
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

func (c *Coordinator) resolveTemplateData(ctx context.Context) error {
	c.mu.Lock()
	node := c.seedNode
	settled := c.templateData != nil
	preview := c.isPreview
	c.mu.Unlock()
	if node == nil || settled {
		return nil
	}

	tmpl := c.templates.Resolve(node)
	if tmpl == nil || tmpl.Query == "" {
		return nil
	}

	_, err, _ := c.group.Do("template", func() (any, error) {
		c.mu.Lock()
		if c.templateData != nil {
			c.mu.Unlock()
			return nil, nil
		}
		c.mu.Unlock()

		var variables map[string]any
		if tmpl.Variables != nil {
			variables = tmpl.Variables(node, TemplateOptions{AsPreview: preview})
		}
		raw, err := c.executor.Query(ctx, tmpl.Query, variables, c.bearerToken(preview))
		if err != nil {
			return nil, fmt.Errorf("resolving template data: %w", err)
		}

		c.mu.Lock()
		c.templateData = raw
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

// bearerToken returns the stored access token when previewing, empty
// otherwise. Published content never carries credentials.
func (c *Coordinator) bearerToken(preview bool) string {
	if !preview {
		return ""
	}
	if tok, ok := c.store.Get(); ok {
		return tok.Token
	}
	return ""
}
