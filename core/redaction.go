package core

import "strings"

const RedactedValue = "[REDACTED]"

// RedactHeaders copies headers, masking credential-bearing values.
func RedactHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		if shouldRedactKey(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = value
	}
	return out
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || key == "client-id" {
		return false
	}
	for _, token := range []string{
		"authorization",
		"secret",
		"token",
		"password",
		"api-key",
		"apikey",
		"cookie",
	} {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}
