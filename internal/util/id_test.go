package util

import (
	"strings"
	"testing"
)

func TestNewIDFormat(t *testing.T) {
	id := NewID("task")
	if !strings.HasPrefix(id, "task_") {
		t.Fatalf("expected task_ prefix, got %q", id)
	}
	if len(id) != len("task_")+24 {
		t.Fatalf("expected 24 hex chars after the prefix, got %q", id)
	}

	bare := NewID("")
	if strings.Contains(bare, "_") {
		t.Fatalf("expected no separator without a prefix, got %q", bare)
	}
	if len(bare) != 24 {
		t.Fatalf("expected 24 hex chars, got %q", bare)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID("x")
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNewTokenLength(t *testing.T) {
	token := NewToken()
	if len(token) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(token))
	}
	if token == NewToken() {
		t.Fatal("expected distinct tokens")
	}
}
