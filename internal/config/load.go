package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, "v1") {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// Parse directly into the typed Config struct. Secret.UnmarshalJSON
	// resolves env var references immediately.
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	backend, ok := rawConfig["backend"].(map[string]any)
	if !ok {
		return fmt.Errorf("backend section is required")
	}

	if value, exists := backend["secret"]; exists {
		// A literal string would end up committed with the config file
		if _, isString := value.(string); isString {
			return fmt.Errorf("backend.secret must use environment variable reference for security")
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("backend.secret must use {\"$env\": \"VAR_NAME\"} format")
			}
		}
	}

	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Frontend.Addr == "" {
		return fmt.Errorf("frontend.addr is required")
	}
	if config.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}

	u, err := url.Parse(config.Backend.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.url must be an absolute URL: %s", config.Backend.URL)
	}
	if strings.HasSuffix(config.Backend.URL, "/") {
		return fmt.Errorf("backend.url must not end with a slash")
	}

	if base := config.Frontend.APIBasePath; base != "" && !strings.HasPrefix(base, "/") {
		return fmt.Errorf("frontend.apiBasePath must start with a slash: %s", base)
	}

	return nil
}

// ValidationIssue describes a single problem found while validating a config file
type ValidationIssue struct {
	Path    string
	Message string
}

// ValidationResult holds the outcome of ValidateFile
type ValidationResult struct {
	Errors   []ValidationIssue
	Warnings []ValidationIssue
}

// ValidateFile validates a config file and collects issues instead of failing
// on the first one. Used by the -validate CLI path.
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.Errors = append(result.Errors, ValidationIssue{Message: fmt.Sprintf("invalid JSON: %v", err)})
		return result, nil
	}

	if version, ok := rawConfig["version"].(string); !ok {
		result.Errors = append(result.Errors, ValidationIssue{Path: "version", Message: "config version is required"})
	} else if !strings.HasPrefix(version, "v1") {
		result.Errors = append(result.Errors, ValidationIssue{Path: "version", Message: fmt.Sprintf("unsupported config version: %s", version)})
	}

	if err := validateRawConfig(rawConfig); err != nil {
		result.Errors = append(result.Errors, ValidationIssue{Path: "backend", Message: err.Error()})
	}

	backend, _ := rawConfig["backend"].(map[string]any)
	if backend != nil {
		if _, exists := backend["secret"]; !exists {
			result.Warnings = append(result.Warnings, ValidationIssue{
				Path:    "backend.secret",
				Message: "no backend secret configured; token exchange will be rejected at runtime",
			})
		}
	}

	if len(result.Errors) > 0 {
		return result, nil
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		result.Errors = append(result.Errors, ValidationIssue{Message: err.Error()})
		return result, nil
	}
	if err := ValidateConfig(&config); err != nil {
		result.Errors = append(result.Errors, ValidationIssue{Message: err.Error()})
	}

	return result, nil
}
