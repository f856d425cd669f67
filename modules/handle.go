package modules

import (
	"context"
	"strings"

	"github.com/goliatone/go-clientkit/core"
)

// Handle is what the client keeps for every enabled module.
type Handle interface {
	Kind() core.ModuleKind
	Dispatcher() *Dispatcher
	Close() error
}

// Builder constructs one module from the shared dependencies.
type Builder func(ctx context.Context, deps Dependencies) (Handle, error)

// JoinURL appends path to endpoint with exactly one separating slash.
func JoinURL(endpoint, path string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if path == "" {
		return endpoint
	}
	return endpoint + "/" + path
}

// MergeHeaders layers overrides on top of base without touching either map.
func MergeHeaders(base, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(overrides))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range overrides {
		if strings.TrimSpace(key) == "" {
			continue
		}
		out[strings.TrimSpace(key)] = value
	}
	return out
}
