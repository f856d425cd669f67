package core

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorFatalConfiguration   = "CLIENT_FATAL_CONFIGURATION"
	ErrorPoolUndersized       = "CLIENT_POOL_UNDERSIZED"
	ErrorQueueFull            = "CLIENT_QUEUE_FULL"
	ErrorQueueClosed          = "CLIENT_QUEUE_CLOSED"
	ErrorTimeout              = "CLIENT_TIMEOUT"
	ErrorUnauthorized         = "CLIENT_UNAUTHORIZED"
	ErrorNotFound             = "CLIENT_NOT_FOUND"
	ErrorServiceUnavailable   = "CLIENT_SERVICE_UNAVAILABLE"
	ErrorUnclassifiedResponse = "CLIENT_UNCLASSIFIED_RESPONSE"
	ErrorAPI                  = "CLIENT_API_ERROR"
	ErrorBadInput             = "CLIENT_BAD_INPUT"
	ErrorModuleBuild          = "CLIENT_MODULE_BUILD_FAILED"
	ErrorTransport            = "CLIENT_TRANSPORT_FAILURE"
	ErrorInternal             = "CLIENT_INTERNAL_ERROR"
)

// Diagnostic metadata keys attached to classified response errors.
const (
	DiagnosticRequestURL     = "requestUrl"
	DiagnosticRequestMethod  = "requestMethod"
	DiagnosticRequestHeaders = "requestHeaders"
	DiagnosticResponseBody   = "responseBody"
)

func NewError(message string, category goerrors.Category, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(httpStatusFor(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func WrapError(source error, category goerrors.Category, message string, textCode string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		return NewError(message, category, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(httpStatusFor(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// FatalConfigurationError aborts assembly.
func FatalConfigurationError(message string) *goerrors.Error {
	return NewError(message, goerrors.CategoryInternal, ErrorFatalConfiguration, nil).
		WithSeverity(goerrors.SeverityFatal)
}

// UndersizedPoolWarning reports a supplied pool smaller than the requirement.
func UndersizedPoolWarning(poolName string, capacity, required int) *goerrors.Error {
	return goerrors.NewWarning(
		"core: worker pool is smaller than required, some modules may stall",
		goerrors.CategoryValidation,
	).
		WithTextCode(ErrorPoolUndersized).
		WithMetadata(map[string]any{
			"pool":     poolName,
			"capacity": capacity,
			"required": required,
		})
}

func QueueFullError(module ModuleKind, capacity int) *goerrors.Error {
	return NewError("queue: request queue is full", goerrors.CategoryRateLimit, ErrorQueueFull, map[string]any{
		"module":   string(module),
		"capacity": capacity,
	})
}

func TimeoutError(module ModuleKind, source error) *goerrors.Error {
	return WrapError(source, goerrors.CategoryOperation, "dispatch: call timed out", ErrorTimeout, map[string]any{
		"module": string(module),
	})
}

// HasTextCode reports whether any go-errors value in the chain carries code.
func HasTextCode(err error, code string) bool {
	for err != nil {
		switch typed := err.(type) {
		case *goerrors.Error:
			if typed.TextCode == code {
				return true
			}
		case *goerrors.RetryableError:
			if typed.BaseError != nil && typed.BaseError.TextCode == code {
				return true
			}
		}
		err = goerrors.Unwrap(err)
	}
	return false
}

func IsFatalConfiguration(err error) bool { return HasTextCode(err, ErrorFatalConfiguration) }
func IsPoolUndersized(err error) bool     { return HasTextCode(err, ErrorPoolUndersized) }
func IsQueueFull(err error) bool          { return HasTextCode(err, ErrorQueueFull) }
func IsTimeout(err error) bool            { return HasTextCode(err, ErrorTimeout) }
func IsUnauthorized(err error) bool       { return HasTextCode(err, ErrorUnauthorized) }
func IsNotFound(err error) bool           { return HasTextCode(err, ErrorNotFound) }
func IsServiceUnavailable(err error) bool { return HasTextCode(err, ErrorServiceUnavailable) }
func IsUnclassified(err error) bool       { return HasTextCode(err, ErrorUnclassifiedResponse) }

// ErrorMetadata returns the metadata of the first go-errors value in the chain.
func ErrorMetadata(err error) map[string]any {
	for err != nil {
		switch typed := err.(type) {
		case *goerrors.Error:
			return typed.Metadata
		case *goerrors.RetryableError:
			if typed.BaseError != nil {
				return typed.BaseError.Metadata
			}
		}
		err = goerrors.Unwrap(err)
	}
	return nil
}

func httpStatusFor(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryOperation:
		return http.StatusGatewayTimeout
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
