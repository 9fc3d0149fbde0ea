package cache

import (
	"testing"
)

func TestSelectBackend_FileRoot(t *testing.T) {
	backend, err := SelectBackend(BackendConfig{FileRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("SelectBackend: %v", err)
	}
	defer backend.Close()

	if _, ok := backend.(*FileBackend); !ok {
		t.Fatalf("expected *FileBackend, got %T", backend)
	}
}

func TestSelectBackend_RedisAddr(t *testing.T) {
	backend, err := SelectBackend(BackendConfig{RedisAddr: "127.0.0.1:0", RedisNamespace: "edge"})
	if err != nil {
		t.Fatalf("SelectBackend: %v", err)
	}
	defer backend.Close()

	if _, ok := backend.(*RedisBackend); !ok {
		t.Fatalf("expected *RedisBackend, got %T", backend)
	}
}

func TestSelectBackend_DefaultsToMemory(t *testing.T) {
	backend, err := SelectBackend(BackendConfig{})
	if err != nil {
		t.Fatalf("SelectBackend: %v", err)
	}
	defer backend.Close()

	if _, ok := backend.(*MemoryBackend); !ok {
		t.Fatalf("expected *MemoryBackend, got %T", backend)
	}
}
