package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/axonops/axonops-schema-registry/internal/api/types"
	"github.com/axonops/axonops-schema-registry/internal/config"
	"github.com/axonops/axonops-schema-registry/internal/hub"
	"github.com/axonops/axonops-schema-registry/internal/storage/memory"
)

const testSchema = `{"type":"object"}`

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	store := memory.NewStore()
	if err := store.Connect(context.Background(), true); err != nil {
		t.Fatalf("connect: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	h := hub.New(store, hub.WithLogger(logger))

	if _, err := h.InitNetwork(context.Background(), "test-network", testSchema, false); err != nil {
		t.Fatalf("init network: %v", err)
	}

	return NewServer(cfg, h, logger)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	s := setupTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/health/ready", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCreateNodeAndSendMessage(t *testing.T) {
	s := setupTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/admin/networks/x/nodes", types.CreateNodeRequest{
		Name: "writer", Create: true, Read: true,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create node: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var node types.NodeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &node); err != nil {
		t.Fatalf("decode node: %v", err)
	}

	rec = doJSON(t, s, http.MethodGet, "/admin/networks/x", nil, nil)
	var network types.NetworkResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &network); err != nil {
		t.Fatalf("decode network: %v", err)
	}

	headers := map[string]string{
		"X-Sync-Network-Id": network.ID,
		"X-Sync-Node-Id":    node.ID,
	}

	rec = doJSON(t, s, http.MethodPost, "/messages", types.SendMessageRequest{
		Method:  "create",
		Payload: map[string]interface{}{"foo": "bar"},
	}, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("send message: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var msg types.MessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.State != "acknowledged" {
		t.Fatalf("expected acknowledged, got %s", msg.State)
	}
}

func TestMessagingRequiresHeaders(t *testing.T) {
	s := setupTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/messages/pending", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without headers, got %d", rec.Code)
	}
}
