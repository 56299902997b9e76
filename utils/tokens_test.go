package utils

import (
	"testing"
)

func TestGenerateLinkCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code := GenerateLinkCode(8)
		if len(code) != 8 {
			t.Fatalf("expected 8 characters, got %q", code)
		}
		for _, r := range code {
			if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
				t.Fatalf("unexpected character %q in %q", r, code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 90 {
		t.Fatalf("codes look non-random: %d unique of 100", len(seen))
	}
}
