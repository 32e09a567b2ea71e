package flow

import (
	"context"
	"encoding/json"
)

// Navigator abstracts the browsing context the coordinator runs in.
type Navigator interface {
	// Location returns the full current URL.
	Location() string
	// Replace navigates to url, abandoning the current page view.
	Replace(url string)
	// ReplaceState rewrites the current URL without reloading.
	ReplaceState(url string)
}

// QueryExecutor executes a content query and returns the raw JSON data. The
// transport is opaque to the flow; a bearer token is attached only when one is
// supplied.
type QueryExecutor interface {
	Query(ctx context.Context, query string, variables map[string]any, bearerToken string) (json.RawMessage, error)
}

// QueryFunc adapts a function to the QueryExecutor interface.
type QueryFunc func(ctx context.Context, query string, variables map[string]any, bearerToken string) (json.RawMessage, error)

func (f QueryFunc) Query(ctx context.Context, query string, variables map[string]any, bearerToken string) (json.RawMessage, error) {
	return f(ctx, query, variables, bearerToken)
}
