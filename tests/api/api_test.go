//go:build api

// Package api provides black-box HTTP endpoint tests for the sync hub,
// run against a live server (see section 8's end-to-end scenarios).
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var baseURL = "http://localhost:8081"

func init() {
	if url := os.Getenv("SYNCHUB_URL"); url != "" {
		baseURL = url
	}
}

func doRequest(t *testing.T, method, path string, body interface{}, headers map[string]string) *http.Response {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, baseURL+path, bodyReader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func parseResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		t.Fatalf("failed to parse response: %v\nbody: %s", err, string(body))
	}
}

type networkResp struct {
	ID string `json:"id"`
}

type nodeResp struct {
	ID string `json:"id"`
}

type messageResp struct {
	ID       string                 `json:"id"`
	State    string                 `json:"state"`
	Payload  map[string]interface{} `json:"payload"`
	RemoteID string                 `json:"remote_id"`
	RecordID string                 `json:"record_id"`
}

func createNode(t *testing.T, name string, create, read, update, del bool) nodeResp {
	t.Helper()
	resp := doRequest(t, http.MethodPost, "/admin/networks/default/nodes", map[string]interface{}{
		"name": name, "create": create, "read": read, "update": update, "delete": del,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create node %s: expected 201, got %d", name, resp.StatusCode)
	}
	var n nodeResp
	parseResponse(t, resp, &n)
	return n
}

func getNetworkID(t *testing.T) string {
	t.Helper()
	resp := doRequest(t, http.MethodGet, "/admin/networks/default", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get network: expected 200, got %d", resp.StatusCode)
	}
	var n networkResp
	parseResponse(t, resp, &n)
	return n.ID
}

func headersFor(networkID, nodeID string) map[string]string {
	return map[string]string{
		"X-Sync-Network-Id": networkID,
		"X-Sync-Node-Id":    nodeID,
	}
}

// TestSingleWriterFanOut covers scenario 1 of section 8: a write-only node
// creates a record and every read-permitted peer receives exactly one
// pending outbound message.
func TestSingleWriterFanOut(t *testing.T) {
	networkID := getNetworkID(t)
	writer := createNode(t, fmt.Sprintf("writer-%d", time.Now().UnixNano()), true, false, false, false)
	r1 := createNode(t, fmt.Sprintf("r1-%d", time.Now().UnixNano()), false, true, false, false)
	r2 := createNode(t, fmt.Sprintf("r2-%d", time.Now().UnixNano()), false, true, false, false)

	resp := doRequest(t, http.MethodPost, "/messages", map[string]interface{}{
		"method":  "create",
		"payload": map[string]interface{}{"foo": "bar"},
	}, headersFor(networkID, writer.ID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send create: expected 200, got %d", resp.StatusCode)
	}
	var sent messageResp
	parseResponse(t, resp, &sent)
	if sent.State != "acknowledged" {
		t.Fatalf("expected acknowledged, got %s", sent.State)
	}

	resp = doRequest(t, http.MethodPost, "/messages/next", nil, headersFor(networkID, writer.ID))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("writer fetch: expected 204, got %d", resp.StatusCode)
	}

	for _, reader := range []nodeResp{r1, r2} {
		resp := doRequest(t, http.MethodPost, "/messages/next", nil, headersFor(networkID, reader.ID))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("reader fetch: expected 200, got %d", resp.StatusCode)
		}
		var m messageResp
		parseResponse(t, resp, &m)
		if m.Payload["foo"] != "bar" {
			t.Fatalf("expected foo=bar, got %v", m.Payload)
		}

		resp = doRequest(t, http.MethodPost, "/messages/next", nil, headersFor(networkID, reader.ID))
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("second reader fetch: expected 204, got %d", resp.StatusCode)
		}
	}
}

// TestFetchBeforeSendGuard covers scenario 3: an origin with pending
// outbound messages cannot send while fetch_before_send is enabled.
func TestFetchBeforeSendGuard(t *testing.T) {
	networkID := getNetworkID(t)
	resp := doRequest(t, http.MethodGet, "/admin/networks/default", nil, nil)
	var net struct {
		FetchBeforeSend bool `json:"fetch_before_send"`
	}
	parseResponse(t, resp, &net)
	if !net.FetchBeforeSend {
		t.Skip("fetch_before_send disabled on this deployment")
	}

	a := createNode(t, fmt.Sprintf("a-%d", time.Now().UnixNano()), true, true, false, false)
	b := createNode(t, fmt.Sprintf("b-%d", time.Now().UnixNano()), true, true, false, false)

	resp = doRequest(t, http.MethodPost, "/messages", map[string]interface{}{
		"method": "create", "payload": map[string]interface{}{"x": 1},
	}, headersFor(networkID, a.ID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("a create: expected 200, got %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPost, "/messages", map[string]interface{}{
		"method": "create", "payload": map[string]interface{}{"y": 2},
	}, headersFor(networkID, b.ID))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("b create before fetching: expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	for _, path := range []string{"/health/live", "/health/ready", "/health/startup"} {
		resp := doRequest(t, http.MethodGet, path, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}
