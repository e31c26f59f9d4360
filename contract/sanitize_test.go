package contract

import "testing"

func TestSanitizeMessage_StripsFilePath(t *testing.T) {
	got := sanitizeMessage("engine internal: invariant violated at /app/internal/ratelimit/ratelimit.go:112")
	if got == "internal error" {
		t.Fatalf("sanitizeMessage() = %q, want retained non-path content", got)
	}
	if want := "ratelimit.go:112"; containsSubstring(got, want) {
		t.Errorf("sanitizeMessage() = %q, still contains file path", got)
	}
}

func TestSanitizeMessage_StripsAddress(t *testing.T) {
	got := sanitizeMessage("dial tcp 10.0.4.12:6379: connect: connection refused")
	if containsSubstring(got, "10.0.4.12") || containsSubstring(got, "6379") {
		t.Errorf("sanitizeMessage() = %q, still leaks KV topology", got)
	}
}

func TestSanitizeMessage_EmptyFallback(t *testing.T) {
	got := sanitizeMessage("/app/x.go:1")
	if got != "internal error" {
		t.Errorf("sanitizeMessage() = %q, want fallback \"internal error\"", got)
	}
}

func containsSubstring(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
