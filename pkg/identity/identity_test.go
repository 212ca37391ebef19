package identity

import (
	"strings"
	"testing"
)

func TestNewPodIDUsesLabel(t *testing.T) {
	id := NewPodID("api")
	if !strings.HasPrefix(string(id), "api-") {
		t.Errorf("Expected pod ID to start with api-, got %s", id)
	}
}

func TestNewPodIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := string(NewPodID("worker"))
		if seen[id] {
			t.Fatalf("Duplicate pod ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestNewPodIDEnvFallback(t *testing.T) {
	t.Setenv("POD_NAME", "env-pod")
	id := NewPodID("")
	if !strings.HasPrefix(string(id), "env-pod-") {
		t.Errorf("Expected pod ID to start with env-pod-, got %s", id)
	}
}

func TestSanitizeStripsKeyDelimiters(t *testing.T) {
	id := NewPodID("api:front *1")
	if strings.ContainsAny(string(id), ":*?[] ") {
		t.Errorf("Expected sanitized pod ID, got %s", id)
	}
}
