package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("Expected non-nil Metrics")
	}
	if m.RequestsTotal == nil {
		t.Error("Expected RequestsTotal to be initialized")
	}
	if m.MessagesSent == nil {
		t.Error("Expected MessagesSent to be initialized")
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()

	m.RequestsTotal.WithLabelValues("GET", "/messages/pending", "200").Inc()

	handler := m.Handler()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), "synchub_requests_total") {
		t.Error("Expected metrics output to contain synchub_requests_total")
	}
	if !strings.Contains(string(body), "go_") {
		t.Error("Expected metrics output to contain Go runtime metrics")
	}
}

func TestMetrics_Middleware(t *testing.T) {
	m := New()

	var called bool
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/messages/pending", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if !called {
		t.Error("Handler should have been called")
	}
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
}

func TestMetrics_RecordMessageSent(t *testing.T) {
	m := New()

	m.RecordMessageSent("create", "pending")
	m.RecordMessageSent("update", "acknowledged")

	// Verify metrics are recorded (no panic)
}

func TestMetrics_RecordMessageFetched(t *testing.T) {
	m := New()

	m.RecordMessageFetched("node-1")

	// Verify metrics are recorded (no panic)
}

func TestMetrics_RecordMessageFailed(t *testing.T) {
	m := New()

	m.RecordMessageFailed("update")

	// Verify metrics are recorded (no panic)
}

func TestMetrics_RecordTransition(t *testing.T) {
	m := New()

	m.RecordTransition("processing")
	m.RecordTransition("acknowledged")

	// Verify metrics are recorded (no panic)
}

func TestMetrics_RecordFanout(t *testing.T) {
	m := New()

	m.RecordFanout(0)
	m.RecordFanout(3)

	// Verify metrics are recorded (no panic)
}

func TestMetrics_UpdatePendingQueueDepth(t *testing.T) {
	m := New()

	m.UpdatePendingQueueDepth("node-1", 4)

	// Verify metrics are recorded (no panic)
}

func TestMetrics_RecordStorageOperation(t *testing.T) {
	m := New()

	m.RecordStorageOperation("memory", "get_record", 10*time.Millisecond, nil)
	m.RecordStorageOperation("postgresql", "save_message", 50*time.Millisecond, io.EOF)

	// Verify metrics are recorded (no panic)
}

func TestMetrics_RecordCacheAccess(t *testing.T) {
	m := New()

	m.RecordCacheAccess("record", true)
	m.RecordCacheAccess("record", false)

	// Verify metrics are recorded (no panic)
}

func TestMetrics_UpdateCacheSize(t *testing.T) {
	m := New()

	m.UpdateCacheSize("record", 1000)

	// Verify metrics are recorded (no panic)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/admin/networks", "/admin/networks"},
		{"/admin/networks/abc", "/admin/networks/{network_id}"},
		{"/admin/networks/abc/nodes", "/admin/networks/{network_id}/nodes"},
		{"/admin/networks/abc/nodes/def", "/admin/networks/{network_id}/nodes/{node_id}"},
		{"/admin/networks/abc/nodes/def/sync", "/admin/networks/{network_id}/nodes/{node_id}/sync"},
		{"/messages", "/messages"},
		{"/messages/abc", "/messages/{message_id}"},
		{"/messages/pending", "/messages/pending"},
		{"/messages/next", "/messages/next"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
