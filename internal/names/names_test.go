package names

import (
	"math/rand"
	"strings"
	"testing"
)

func TestRandomIsDeterministicPerSeed(t *testing.T) {
	a := Random(rand.New(rand.NewSource(7)))
	b := Random(rand.New(rand.NewSource(7)))
	if a != b {
		t.Errorf("Random() with same seed: %q != %q", a, b)
	}
}

func TestRandomShape(t *testing.T) {
	for i := 0; i < 50; i++ {
		name := Random(nil)
		parts := strings.Split(name, "-")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			t.Fatalf("Random() = %q, want adjective-figure", name)
		}
	}
}

func TestCount(t *testing.T) {
	if Count() < 1000 {
		t.Errorf("Count() = %d, want at least 1000 combinations", Count())
	}
}
