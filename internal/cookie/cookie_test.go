package cookie

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestWithCookie(name, value string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: name, Value: value})
	return r
}

func TestSetGetRoundTrip(t *testing.T) {
	w := httptest.NewRecorder()
	jar := NewJar(httptest.NewRequest(http.MethodGet, "/", nil), w)

	jar.Set("session", "hello world", Attributes{Path: "/"})

	// Readable within the same request
	got, ok := jar.Get("session")
	require.True(t, ok)
	assert.Equal(t, "hello world", got)

	// The wire value is encoded
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("hello world")), cookies[0].Value)
}

func TestGetDecodesIncomingValue(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("secret-token"))
	jar := NewJar(requestWithCookie("rt", encoded), nil)

	got, ok := jar.Get("rt")
	require.True(t, ok)
	assert.Equal(t, "secret-token", got)
}

func TestGetPassesThroughNonBase64(t *testing.T) {
	// Cookies set by other software should come back untouched
	for _, value := range []string{"not!base64", "abc", "===="} {
		jar := NewJar(requestWithCookie("foreign", value), nil)
		got, ok := jar.Get("foreign")
		require.True(t, ok)
		assert.Equal(t, value, got)
	}
}

func TestGetMissing(t *testing.T) {
	jar := NewJar(httptest.NewRequest(http.MethodGet, "/", nil), nil)
	_, ok := jar.Get("absent")
	assert.False(t, ok)
}

func TestRemoveExpiresCookie(t *testing.T) {
	w := httptest.NewRecorder()
	jar := NewJar(requestWithCookie("rt", "dmFsdWU="), w)

	jar.Remove("rt")

	_, ok := jar.Get("rt")
	assert.False(t, ok)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "rt", cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.True(t, cookies[0].Expires.Before(time.Now()))
}

func TestSetJSONGetJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}

	w := httptest.NewRecorder()
	jar := NewJar(httptest.NewRequest(http.MethodGet, "/", nil), w)
	require.NoError(t, jar.SetJSON("data", payload{Name: "a", N: 2}, Attributes{}))

	var got payload
	ok, err := jar.GetJSON("data", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload{Name: "a", N: 2}, got)
}

func TestExpiresTakesPrecedenceOverMaxAge(t *testing.T) {
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	w := httptest.NewRecorder()
	jar := NewJar(httptest.NewRequest(http.MethodGet, "/", nil), w)
	jar.Set("rt", "v", Attributes{MaxAge: 3600, Expires: expires})

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, expires, cookies[0].Expires.UTC())
	assert.Zero(t, cookies[0].MaxAge)
}

func TestWriteAttributes(t *testing.T) {
	w := httptest.NewRecorder()
	jar := NewJar(httptest.NewRequest(http.MethodGet, "/", nil), w)
	jar.Set("rt", "v", Attributes{
		Path:     "/",
		MaxAge:   600,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 600, c.MaxAge)
	assert.True(t, c.Secure)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
}
