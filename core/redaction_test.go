package core

import "testing"

func TestRedactHeaders_MasksCredentials(t *testing.T) {
	redacted := RedactHeaders(map[string]string{
		"Authorization": "Bearer abc",
		"Client-Id":     "client",
		"X-Api-Key":     "k",
		"User-Agent":    "go-clientkit",
	})
	if redacted["Authorization"] != RedactedValue || redacted["X-Api-Key"] != RedactedValue {
		t.Fatalf("expected credentials redacted, got %#v", redacted)
	}
	if redacted["Client-Id"] != "client" || redacted["User-Agent"] != "go-clientkit" {
		t.Fatalf("expected identifiers kept, got %#v", redacted)
	}
	if len(RedactHeaders(nil)) != 0 {
		t.Fatalf("expected empty map for nil headers")
	}
}
