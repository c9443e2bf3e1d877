package backends

import (
	"context"
	"testing"

	"github.com/Abdullah97825/Matjary-sub000/internal/platform/config"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories/memory"
)

func TestOpenMemory(t *testing.T) {
	reg, err := Open(context.Background(), config.Config{Storage: config.StorageConfig{Backend: config.StorageBackendMemory}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := reg.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", reg)
	}
	if err := reg.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestOpenUnsupportedBackend(t *testing.T) {
	if _, err := Open(context.Background(), config.Config{Storage: config.StorageConfig{Backend: "postgres"}}, nil); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}
