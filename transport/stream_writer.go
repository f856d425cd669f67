package transport

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-clientkit/core"
	goerrors "github.com/goliatone/go-errors"
)

// UnsupportedStreamWriter stands in for a persistent connection that has
// not been configured. Every write fails.
type UnsupportedStreamWriter struct {
	reason string
}

func NewUnsupportedStreamWriter(reason string) *UnsupportedStreamWriter {
	return &UnsupportedStreamWriter{reason: strings.TrimSpace(reason)}
}

func (w *UnsupportedStreamWriter) WriteMessage(_ context.Context, module core.ModuleKind, _ []byte) error {
	metadata := map[string]any{"adapter": "stream", "module": string(module)}
	if w != nil && w.reason != "" {
		metadata["reason"] = w.reason
	}
	return transportError(
		"transport: stream connection is not configured",
		goerrors.CategoryInternal,
		http.StatusNotImplemented,
		metadata,
	)
}

var _ core.StreamWriter = (*UnsupportedStreamWriter)(nil)
