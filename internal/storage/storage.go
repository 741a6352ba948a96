// Package storage provides the storage interfaces and shared entity types for
// the sync hub. Alternate backends (relational, embedded document, in-memory)
// implement the Storage interface so the pipeline in internal/hub never
// depends on a particular engine.
package storage

import (
	"context"
	"errors"
	"time"
)

// Common errors returned by Storage implementations. Handlers map these to
// HTTP status codes; the hub package wraps some of them with additional
// context via Kind (see internal/hub/errors.go).
var (
	ErrDatabaseNotFound = errors.New("database not found")
	ErrNotFound         = errors.New("not found")
	ErrNetworkNotFound  = errors.New("network not found")
	ErrNodeNotFound     = errors.New("node not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrRecordNotFound   = errors.New("record not found")
	ErrRemoteNotFound   = errors.New("remote not found")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrAlreadyExists    = errors.New("already exists")
)

// Method identifies the kind of change a message carries.
type Method string

const (
	MethodCreate Method = "create"
	MethodRead   Method = "read"
	MethodUpdate Method = "update"
	MethodDelete Method = "delete"
)

// State is a message's position in its lifecycle.
type State string

const (
	StatePending      State = "pending"
	StateProcessing   State = "processing"
	StateAcknowledged State = "acknowledged"
	StateFailed       State = "failed"
)

// Network is the single configuration singleton for an isolated sync
// database: one schema, one set of nodes, one set of records.
type Network struct {
	ID              string
	Name            string
	Schema          string // JSON Schema Draft-04 document
	FetchBeforeSend bool
}

// Node is an external participant with per-method permissions.
type Node struct {
	ID     string
	Name   string
	Create bool
	Read   bool
	Update bool
	Delete bool
}

// Check reports whether the node has permission to use method.
func (n *Node) Check(method Method) bool {
	switch method {
	case MethodCreate:
		return n.Create
	case MethodRead:
		return n.Read
	case MethodUpdate:
		return n.Update
	case MethodDelete:
		return n.Delete
	default:
		return false
	}
}

// Record is the canonical, hub-side state of a synced entity.
type Record struct {
	ID          string
	Head        map[string]interface{}
	Deleted     bool
	LastUpdated time.Time

	// Remotes is an optional eager-loaded cache of the record's Remote
	// bindings. Populated by GetRecords for the cold-start sync path;
	// implementations may leave it nil elsewhere and callers should fall
	// back to GetRemote.
	Remotes []*Remote
}

// Remote finds a cached remote binding for node, or nil. Only meaningful
// when Remotes was eager-loaded (see GetRecords).
func (r *Record) Remote(nodeID string) *Remote {
	for _, rm := range r.Remotes {
		if rm.NodeID == nodeID {
			return rm
		}
	}
	return nil
}

// Remote links a record to a node using an identifier supplied by the node
// itself, so the node need not track hub-assigned record ids.
type Remote struct {
	ID       string
	NodeID   string
	RecordID string
	RemoteID string
}

// Message is either an inbound request from a node to the hub (Origin set,
// Destination empty) or an outbound delivery slot in a per-destination queue
// (Destination set, Origin empty, Parent pointing at the inbound that
// spawned it).
type Message struct {
	ID            string
	ParentID      string
	OriginID      string
	DestinationID string
	Timestamp     time.Time
	Method        Method
	Payload       map[string]interface{}
	RecordID      string
	RemoteID      string
	State         State
}

// Change is an append-only audit record of a message state transition.
type Change struct {
	ID        string
	MessageID string
	Timestamp time.Time
	State     State
	Note      string
}

// Error is an append-only record attached to a message's Failed transition.
type Error struct {
	ID        string
	MessageID string
	Timestamp time.Time
	Text      string
}

// GetMessageFilter selects a single message by id, or by the combination of
// destination and state (used to pop the head of a per-destination queue).
type GetMessageFilter struct {
	MessageID     string
	DestinationID string
	State         State
	// WithLock requests the row (or its in-memory equivalent) be locked for
	// the duration of the enclosing transaction, so concurrent fetchers
	// cannot claim the same message.
	WithLock bool
}

// RecordBatch is one page of up to 1000 non-deleted records, returned by the
// lazy GetRecords iterator.
type RecordBatch struct {
	Records []*Record
}

// Storage is the abstract contract the hub pipeline is written against.
// A single Storage value owns one network's worth of data; cmd/synchub
// builds exactly one from its configuration and does not key databases by
// network id.
//
// Transactions are carried on the context returned by Begin, following the
// stack discipline of section 4.A: an inner Begin pushes a savepoint, and
// the matching Commit/Rollback pops it. Every entity method accepts the
// context produced by Begin (or a plain context, for backends content to
// auto-commit single operations); backends that cannot support real nested
// transactions MAY flatten to a single outer transaction, as permitted by
// design note 9.
type Storage interface {
	// Connect prepares the backend for use, optionally creating the
	// underlying database/keyspace/bucket if it is missing.
	Connect(ctx context.Context, createIfMissing bool) error
	// Disconnect releases any connections held by the backend.
	Disconnect(ctx context.Context) error
	// Drop deletes all data for the network. Used by tests and by network
	// deprovisioning.
	Drop(ctx context.Context) error

	// Begin starts (or nests) a transaction and returns a context that
	// subsequent calls must pass through.
	Begin(ctx context.Context) (context.Context, error)
	// Commit commits the innermost transaction on ctx.
	Commit(ctx context.Context) error
	// Rollback discards the innermost transaction's changes.
	Rollback(ctx context.Context) error

	SaveNetwork(ctx context.Context, network *Network) error
	GetNetwork(ctx context.Context) (*Network, error)

	SaveNode(ctx context.Context, node *Node) error
	GetNode(ctx context.Context, id string) (*Node, error)
	GetNodes(ctx context.Context) ([]*Node, error)

	SaveRecord(ctx context.Context, record *Record) error
	GetRecord(ctx context.Context, id string) (*Record, error)
	// GetRecords lazily streams non-deleted records in batches of at most
	// 1000, each with its Remotes eagerly loaded. fn is invoked once per
	// batch; returning an error from fn stops iteration early.
	GetRecords(ctx context.Context, fn func(batch RecordBatch) error) error

	SaveRemote(ctx context.Context, remote *Remote) error
	// GetRemote looks a remote up by (nodeID, remoteID) or (nodeID,
	// recordID). Exactly one of remoteID/recordID must be non-empty;
	// supplying neither is ErrInvalidOperation.
	GetRemote(ctx context.Context, nodeID, remoteID, recordID string) (*Remote, error)

	SaveMessage(ctx context.Context, message *Message) error
	GetMessage(ctx context.Context, filter GetMessageFilter) (*Message, error)
	GetMessageCount(ctx context.Context, destinationID string, state State) (int, error)
	// UpdateMessages bulk-stamps remoteID onto every Pending outbound
	// message matching (destinationID, recordID). Used to retroactively
	// label already-queued fan-out after a late BindRemote.
	UpdateMessages(ctx context.Context, destinationID, recordID, remoteID string) error

	SaveChange(ctx context.Context, change *Change) error
	GetChanges(ctx context.Context, messageID string) ([]*Change, error)

	SaveError(ctx context.Context, errRec *Error) error
	GetErrors(ctx context.Context, messageID string) ([]*Error, error)

	// Close releases resources held by the backend permanently (process
	// shutdown), as distinct from the per-request Disconnect.
	Close() error
	// IsHealthy reports whether the backend can currently serve requests.
	IsHealthy(ctx context.Context) bool
}
