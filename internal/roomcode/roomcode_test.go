package roomcode

import (
	"slices"
	"strings"
	"testing"
)

func TestGenerateFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := Generate()
		parts := strings.Split(code, "-")
		if len(parts) != 3 {
			t.Fatalf("code %q: %d parts, want 3", code, len(parts))
		}
		if !slices.Contains(adjectives, parts[0]) {
			t.Fatalf("code %q: unknown adjective %q", code, parts[0])
		}
		if !slices.Contains(animals, parts[1]) {
			t.Fatalf("code %q: unknown animal %q", code, parts[1])
		}
		if !slices.Contains(words, parts[2]) {
			t.Fatalf("code %q: unknown word %q", code, parts[2])
		}
	}
}

func TestGenerateVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		seen[Generate()] = true
	}
	// 8000 combinations; 50 draws collapsing to one code means a broken
	// random source.
	if len(seen) < 2 {
		t.Fatalf("distinct codes=%d, want variety", len(seen))
	}
}
