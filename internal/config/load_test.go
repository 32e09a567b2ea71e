package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfig = `{
	"version": "v1",
	"frontend": {"addr": ":8080", "apiBasePath": "/api/auth"},
	"backend": {"url": "https://cms.example.com", "secret": {"$env": "TEST_BACKEND_SECRET"}}
}`

func TestLoadValidConfig(t *testing.T) {
	t.Setenv("TEST_BACKEND_SECRET", "s3cret")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Frontend.Addr)
	assert.Equal(t, "/api/auth", cfg.Frontend.BasePath())
	assert.Equal(t, "https://cms.example.com", cfg.Backend.URL)
	assert.Equal(t, Secret("s3cret"), cfg.Backend.Secret)
}

func TestLoadRejectsLiteralSecret(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"version": "v1",
		"frontend": {"addr": ":8080"},
		"backend": {"url": "https://cms.example.com", "secret": "hardcoded"}
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment variable reference")
}

func TestLoadRejectsUnsetEnvVar(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"version": "v1",
		"frontend": {"addr": ":8080"},
		"backend": {"url": "https://cms.example.com", "secret": {"$env": "DEFINITELY_NOT_SET_VAR"}}
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEFINITELY_NOT_SET_VAR")
}

func TestLoadVersionRequired(t *testing.T) {
	_, err := Load(writeConfig(t, `{"frontend": {"addr": ":8080"}, "backend": {"url": "https://x.example"}}`))
	assert.ErrorContains(t, err, "version is required")

	_, err = Load(writeConfig(t, `{"version": "v2", "frontend": {"addr": ":8080"}, "backend": {"url": "https://x.example"}}`))
	assert.ErrorContains(t, err, "unsupported config version")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing addr", func(c *Config) { c.Frontend.Addr = "" }, "frontend.addr is required"},
		{"missing backend url", func(c *Config) { c.Backend.URL = "" }, "backend.url is required"},
		{"relative backend url", func(c *Config) { c.Backend.URL = "/cms" }, "absolute URL"},
		{"trailing slash", func(c *Config) { c.Backend.URL = "https://cms.example.com/" }, "must not end with a slash"},
		{"relative base path", func(c *Config) { c.Frontend.APIBasePath = "api/auth" }, "must start with a slash"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Version:  "v1",
				Frontend: FrontendConfig{Addr: ":8080"},
				Backend:  BackendConfig{URL: "https://cms.example.com", Secret: "s"},
			}
			tt.mutate(&cfg)
			err := ValidateConfig(&cfg)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestBasePathDefault(t *testing.T) {
	assert.Equal(t, DefaultAPIBasePath, FrontendConfig{}.BasePath())
	assert.Equal(t, "/auth", FrontendConfig{APIBasePath: "/auth"}.BasePath())
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("s3cret")
	assert.Equal(t, "***", s.String())

	data, err := json.Marshal(struct {
		Secret Secret `json:"secret"`
	}{Secret: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"secret":"***"}`, string(data))
	assert.NotContains(t, string(data), "s3cret")
}

func TestValidateFileCollectsIssues(t *testing.T) {
	result, err := ValidateFile(writeConfig(t, `{
		"version": "v2",
		"frontend": {"addr": ":8080"},
		"backend": {"url": "https://cms.example.com", "secret": "literal"}
	}`))
	require.NoError(t, err)
	assert.Len(t, result.Errors, 2)
}

func TestValidateFileWarnsOnMissingSecret(t *testing.T) {
	result, err := ValidateFile(writeConfig(t, `{
		"version": "v1",
		"frontend": {"addr": ":8080"},
		"backend": {"url": "https://cms.example.com"}
	}`))
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "backend.secret", result.Warnings[0].Path)
}
