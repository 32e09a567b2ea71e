package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Secret is a string that resolves from an environment variable reference at
// load time and redacts itself in logs and serialized output.
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// UnmarshalJSON resolves {"$env": "VAR_NAME"} references immediately.
// Plain strings are accepted so tests can construct configs inline; Load
// rejects them for the backend secret before this runs.
func (s *Secret) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		*s = Secret(plain)
		return nil
	}

	var ref struct {
		Env string `json:"$env"`
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return fmt.Errorf("secret must be a string or {\"$env\": \"VAR_NAME\"}: %w", err)
	}
	if ref.Env == "" {
		return fmt.Errorf("secret env reference is missing the $env key")
	}

	value, ok := os.LookupEnv(ref.Env)
	if !ok {
		return fmt.Errorf("environment variable %s is not set", ref.Env)
	}
	*s = Secret(value)
	return nil
}

// Config is the resolved cms-front configuration
type Config struct {
	Version  string         `json:"version"`
	Frontend FrontendConfig `json:"frontend"`
	Backend  BackendConfig  `json:"backend"`
}

// FrontendConfig configures the HTTP surface exposed to the headless front-end
type FrontendConfig struct {
	Addr        string `json:"addr"`
	APIBasePath string `json:"apiBasePath"`
}

// BackendConfig identifies the single content backend this instance brokers for
type BackendConfig struct {
	URL    string `json:"url"`
	Secret Secret `json:"secret"`
}

// DefaultAPIBasePath is used when frontend.apiBasePath is not configured
const DefaultAPIBasePath = "/api/auth"

// BasePath returns the configured API base path or the default
func (c FrontendConfig) BasePath() string {
	if c.APIBasePath == "" {
		return DefaultAPIBasePath
	}
	return c.APIBasePath
}
