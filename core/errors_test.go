package core

import (
	stderrors "errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestErrorConstructors_AssignStableCodes(t *testing.T) {
	fatal := FatalConfigurationError("missing default handler")
	if fatal.TextCode != ErrorFatalConfiguration {
		t.Fatalf("expected fatal text code, got %q", fatal.TextCode)
	}
	if fatal.Severity != goerrors.SeverityFatal {
		t.Fatalf("expected fatal severity, got %v", fatal.Severity)
	}

	warning := UndersizedPoolWarning("shared", 2, 5)
	if warning.Severity != goerrors.SeverityWarning {
		t.Fatalf("expected warning severity, got %v", warning.Severity)
	}
	if warning.Metadata["required"] != 5 || warning.Metadata["capacity"] != 2 {
		t.Fatalf("unexpected warning metadata: %#v", warning.Metadata)
	}

	full := QueueFullError(ModuleHelix, 3)
	if full.Category != goerrors.CategoryRateLimit || full.Code == 0 {
		t.Fatalf("unexpected queue full error: %#v", full)
	}

	timeout := TimeoutError(ModuleChat, stderrors.New("deadline"))
	if timeout.Source == nil {
		t.Fatalf("expected timeout to wrap source")
	}
}

func TestHasTextCode_WalksWrappedChains(t *testing.T) {
	base := QueueFullError(ModuleHelix, 1)
	wrapped := fmt.Errorf("dispatch: %w", base)
	if !IsQueueFull(wrapped) {
		t.Fatalf("expected queue full through fmt wrap")
	}
	if IsTimeout(wrapped) {
		t.Fatalf("did not expect timeout")
	}

	retryable := goerrors.NewRetryable("unavailable", goerrors.CategoryExternal).
		WithTextCode(ErrorServiceUnavailable)
	if !IsServiceUnavailable(fmt.Errorf("call: %w", retryable)) {
		t.Fatalf("expected service unavailable through retryable error")
	}

	outer := WrapError(base, goerrors.CategoryInternal, "outer", ErrorModuleBuild, nil)
	if !HasTextCode(outer, ErrorModuleBuild) || !HasTextCode(outer, ErrorQueueFull) {
		t.Fatalf("expected both outer and inner codes")
	}
	if HasTextCode(nil, ErrorQueueFull) {
		t.Fatalf("nil error should carry no code")
	}
}

func TestErrorMetadata_ReturnsFirstRichError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewError("boom", goerrors.CategoryExternal, ErrorAPI, map[string]any{
		DiagnosticRequestURL: "https://example.test",
	}))
	metadata := ErrorMetadata(err)
	if metadata[DiagnosticRequestURL] != "https://example.test" {
		t.Fatalf("unexpected metadata: %#v", metadata)
	}
	if ErrorMetadata(stderrors.New("plain")) != nil {
		t.Fatalf("expected nil metadata for plain errors")
	}
}
