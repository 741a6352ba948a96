package handlers

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/axonops/axonops-schema-registry/internal/hub"
	"github.com/axonops/axonops-schema-registry/internal/storage/memory"
)

func testHub(t *testing.T) *hub.Hub {
	t.Helper()
	store := memory.NewStore()
	if err := store.Connect(context.Background(), true); err != nil {
		t.Fatalf("connect: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return hub.New(store, hub.WithLogger(logger))
}

func TestHealthCheckHandler(t *testing.T) {
	h := New(testHub(t), Config{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	h.HealthCheck(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestReadinessCheckHandler(t *testing.T) {
	h := New(testHub(t), Config{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	h.ReadinessCheck(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
