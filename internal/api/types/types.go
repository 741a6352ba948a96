// Package types provides the request and response bodies for the hub's
// HTTP surface (section 6).
package types

import "github.com/axonops/axonops-schema-registry/internal/storage"

// CreateNetworkRequest is the body for POST /admin/networks.
type CreateNetworkRequest struct {
	Name            string `json:"name"`
	FetchBeforeSend bool   `json:"fetch_before_send"`
	Schema          string `json:"schema"`
}

// PatchNetworkRequest is the body for PATCH /admin/networks/{network_id}.
// Every field is optional; only supplied fields are updated.
type PatchNetworkRequest struct {
	Name            *string `json:"name,omitempty"`
	FetchBeforeSend *bool   `json:"fetch_before_send,omitempty"`
	Schema          *string `json:"schema,omitempty"`
}

// NetworkResponse mirrors storage.Network at the API boundary.
type NetworkResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	FetchBeforeSend bool   `json:"fetch_before_send"`
	Schema          string `json:"schema"`
}

// NetworkFromStorage converts a storage.Network to its wire form.
func NetworkFromStorage(n *storage.Network) NetworkResponse {
	return NetworkResponse{
		ID:              n.ID,
		Name:            n.Name,
		FetchBeforeSend: n.FetchBeforeSend,
		Schema:          n.Schema,
	}
}

// CreateNodeRequest is the body for POST /admin/networks/{network_id}/nodes.
type CreateNodeRequest struct {
	Name   string `json:"name"`
	Create bool   `json:"create"`
	Read   bool   `json:"read"`
	Update bool   `json:"update"`
	Delete bool   `json:"delete"`
}

// NodeResponse mirrors storage.Node at the API boundary.
type NodeResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Create bool   `json:"create"`
	Read   bool   `json:"read"`
	Update bool   `json:"update"`
	Delete bool   `json:"delete"`
}

// NodeFromStorage converts a storage.Node to its wire form.
func NodeFromStorage(n *storage.Node) NodeResponse {
	return NodeResponse{
		ID:     n.ID,
		Name:   n.Name,
		Create: n.Create,
		Read:   n.Read,
		Update: n.Update,
		Delete: n.Delete,
	}
}

// SendMessageRequest is the body for POST /messages.
type SendMessageRequest struct {
	Method   storage.Method         `json:"method"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
	RecordID string                 `json:"record_id,omitempty"`
	RemoteID string                 `json:"remote_id,omitempty"`
}

// AckMessageRequest is the body for PATCH /messages/{message_id}.
type AckMessageRequest struct {
	Success  bool   `json:"success"`
	RemoteID string `json:"remote_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// MessageResponse mirrors storage.Message at the API boundary.
type MessageResponse struct {
	ID            string                 `json:"id"`
	ParentID      string                 `json:"parent_id,omitempty"`
	OriginID      string                 `json:"origin_id,omitempty"`
	DestinationID string                 `json:"destination_id,omitempty"`
	Timestamp     string                 `json:"timestamp"`
	Method        storage.Method         `json:"method"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	RecordID      string                 `json:"record_id,omitempty"`
	RemoteID      string                 `json:"remote_id,omitempty"`
	State         storage.State          `json:"state"`
}

// MessageFromStorage converts a storage.Message to its wire form.
func MessageFromStorage(m *storage.Message) MessageResponse {
	return MessageResponse{
		ID:            m.ID,
		ParentID:      m.ParentID,
		OriginID:      m.OriginID,
		DestinationID: m.DestinationID,
		Timestamp:     m.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		Method:        m.Method,
		Payload:       m.Payload,
		RecordID:      m.RecordID,
		RemoteID:      m.RemoteID,
		State:         m.State,
	}
}

// PendingResponse is the body for GET /messages/pending.
type PendingResponse struct {
	Pending bool `json:"pending"`
}

// ErrorResponse is the standard error body for every non-2xx response.
type ErrorResponse struct {
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}
