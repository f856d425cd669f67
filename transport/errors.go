package transport

import (
	"net/http"

	"github.com/goliatone/go-clientkit/core"
	goerrors "github.com/goliatone/go-errors"
)

// transportError builds an adapter failure. status is the HTTP-ish code the
// failure maps to; it also selects the text code so a gateway timeout reads as
// a client timeout regardless of category.
func transportError(message string, category goerrors.Category, status int, metadata map[string]any) error {
	return core.NewError(message, category, textCodeFor(category, status), metadata).WithCode(status)
}

func transportWrapError(source error, category goerrors.Category, message string, status int, metadata map[string]any) error {
	return core.WrapError(source, category, message, textCodeFor(category, status), metadata).WithCode(status)
}

func textCodeFor(category goerrors.Category, status int) string {
	if status == http.StatusGatewayTimeout {
		return core.ErrorTimeout
	}
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	case goerrors.CategoryOperation:
		return core.ErrorTimeout
	case goerrors.CategoryExternal:
		return core.ErrorTransport
	default:
		return core.ErrorInternal
	}
}
