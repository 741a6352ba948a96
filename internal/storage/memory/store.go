// Package memory provides an in-memory Storage implementation. It is the
// reference backend: every operation is exercised against it in the hub's
// unit tests, and the storage conformance suite runs it unconditionally
// (the SQL and embedded backends only run under their build tags).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// batchSize bounds how many records GetRecords hands to its callback at
// once, matching the ≤1000 batching every backend must honor.
const batchSize = 1000

type txKey struct{}

// txState tracks the snapshot stack for one logical (possibly nested)
// transaction. Only the goroutine that called Begin touches it, because
// Store.mu is held for the transaction's entire lifetime.
type txState struct {
	snapshots []*state
}

// state is the entire in-memory dataset. Begin/Rollback deep-copy it so a
// rollback can restore exactly what existed before the innermost Begin.
type state struct {
	network  *storage.Network
	nodes    map[string]*storage.Node
	records  map[string]*storage.Record
	remotes  map[string]*storage.Remote
	messages map[string]*storage.Message
	changes  map[string][]*storage.Change
	errors   map[string][]*storage.Error
}

func newState() *state {
	return &state{
		nodes:    make(map[string]*storage.Node),
		records:  make(map[string]*storage.Record),
		remotes:  make(map[string]*storage.Remote),
		messages: make(map[string]*storage.Message),
		changes:  make(map[string][]*storage.Change),
		errors:   make(map[string][]*storage.Error),
	}
}

func (s *state) clone() *state {
	c := newState()
	if s.network != nil {
		n := *s.network
		c.network = &n
	}
	for k, v := range s.nodes {
		n := *v
		c.nodes[k] = &n
	}
	for k, v := range s.records {
		c.records[k] = cloneRecord(v)
	}
	for k, v := range s.remotes {
		r := *v
		c.remotes[k] = &r
	}
	for k, v := range s.messages {
		m := *v
		c.messages[k] = &m
	}
	for k, v := range s.changes {
		c.changes[k] = append([]*storage.Change(nil), v...)
	}
	for k, v := range s.errors {
		c.errors[k] = append([]*storage.Error(nil), v...)
	}
	return c
}

func cloneRecord(r *storage.Record) *storage.Record {
	c := *r
	if r.Head != nil {
		c.Head = make(map[string]interface{}, len(r.Head))
		for k, v := range r.Head {
			c.Head[k] = v
		}
	}
	c.Remotes = nil
	return &c
}

// Store is the in-memory Storage implementation. A single Store holds the
// data for exactly one network, mirroring the one-database-per-network
// rule every backend follows.
type Store struct {
	mu    sync.Mutex
	cur   *state
	ready bool
}

// NewStore creates an empty, unconnected in-memory store.
func NewStore() *Store {
	return &Store{cur: newState()}
}

func init() {
	storage.Register(storage.StorageTypeMemory, func(cfg map[string]interface{}) (storage.Storage, error) {
		return NewStore(), nil
	})
}

// Connect initializes the store. createIfMissing is accepted for interface
// symmetry with the durable backends; an in-memory store is always created
// fresh.
func (s *Store) Connect(ctx context.Context, createIfMissing bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	return nil
}

// Disconnect marks the store unusable until Connect is called again.
func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	return nil
}

// Drop clears all data.
func (s *Store) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = newState()
	return nil
}

// Close is Disconnect with no chance of error; satisfies the shutdown hook
// used by cmd/synchub.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	return nil
}

// IsHealthy reports whether Connect has been called.
func (s *Store) IsHealthy(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Begin pushes a snapshot of the current state. The outermost Begin
// acquires the store's exclusive lock for the duration of the whole
// (possibly nested) transaction; this gives the in-memory backend the same
// single-writer serialization a SQL backend gets from row locks, satisfying
// GetMessage's WithLock contract for free.
func (s *Store) Begin(ctx context.Context) (context.Context, error) {
	ts, ok := ctx.Value(txKey{}).(*txState)
	if !ok {
		s.mu.Lock()
		ts = &txState{}
		ctx = context.WithValue(ctx, txKey{}, ts)
	}
	ts.snapshots = append(ts.snapshots, s.cur.clone())
	return ctx, nil
}

func (s *Store) popTx(ctx context.Context) (*txState, error) {
	ts, ok := ctx.Value(txKey{}).(*txState)
	if !ok || len(ts.snapshots) == 0 {
		return nil, fmt.Errorf("memory: commit/rollback called without a matching Begin")
	}
	return ts, nil
}

// Commit pops the innermost snapshot, keeping whatever mutations were made
// since the matching Begin. When the outermost transaction commits, the
// store-wide lock is released.
func (s *Store) Commit(ctx context.Context) error {
	ts, err := s.popTx(ctx)
	if err != nil {
		return err
	}
	ts.snapshots = ts.snapshots[:len(ts.snapshots)-1]
	if len(ts.snapshots) == 0 {
		s.mu.Unlock()
	}
	return nil
}

// Rollback restores the innermost snapshot, discarding mutations made
// since the matching Begin.
func (s *Store) Rollback(ctx context.Context) error {
	ts, err := s.popTx(ctx)
	if err != nil {
		return err
	}
	snap := ts.snapshots[len(ts.snapshots)-1]
	s.cur = snap
	ts.snapshots = ts.snapshots[:len(ts.snapshots)-1]
	if len(ts.snapshots) == 0 {
		s.mu.Unlock()
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}

func (s *Store) SaveNetwork(ctx context.Context, network *storage.Network) error {
	if network.ID == "" {
		network.ID = newID()
	}
	n := *network
	s.cur.network = &n
	return nil
}

func (s *Store) GetNetwork(ctx context.Context) (*storage.Network, error) {
	if s.cur.network == nil {
		return nil, storage.ErrNetworkNotFound
	}
	n := *s.cur.network
	return &n, nil
}

func (s *Store) SaveNode(ctx context.Context, node *storage.Node) error {
	if node.ID == "" {
		node.ID = newID()
	}
	n := *node
	s.cur.nodes[n.ID] = &n
	return nil
}

func (s *Store) GetNode(ctx context.Context, id string) (*storage.Node, error) {
	n, ok := s.cur.nodes[id]
	if !ok {
		return nil, storage.ErrNodeNotFound
	}
	c := *n
	return &c, nil
}

func (s *Store) GetNodes(ctx context.Context) ([]*storage.Node, error) {
	out := make([]*storage.Node, 0, len(s.cur.nodes))
	for _, n := range s.cur.nodes {
		c := *n
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveRecord(ctx context.Context, record *storage.Record) error {
	if record.ID == "" {
		record.ID = newID()
	}
	record.LastUpdated = now()
	s.cur.records[record.ID] = cloneRecord(record)
	return nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (*storage.Record, error) {
	r, ok := s.cur.records[id]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	out := cloneRecord(r)
	out.Remotes = s.remotesForRecord(id)
	return out, nil
}

func (s *Store) remotesForRecord(recordID string) []*storage.Remote {
	var out []*storage.Remote
	for _, r := range s.cur.remotes {
		if r.RecordID == recordID {
			c := *r
			out = append(out, &c)
		}
	}
	return out
}

func (s *Store) GetRecords(ctx context.Context, fn func(storage.RecordBatch) error) error {
	ids := make([]string, 0, len(s.cur.records))
	for id, r := range s.cur.records {
		if !r.Deleted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := storage.RecordBatch{}
		for _, id := range ids[start:end] {
			r := cloneRecord(s.cur.records[id])
			r.Remotes = s.remotesForRecord(id)
			batch.Records = append(batch.Records, r)
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SaveRemote(ctx context.Context, remote *storage.Remote) error {
	if remote.ID == "" {
		remote.ID = newID()
	}
	r := *remote
	s.cur.remotes[r.ID] = &r
	return nil
}

func (s *Store) GetRemote(ctx context.Context, nodeID, remoteID, recordID string) (*storage.Remote, error) {
	if remoteID == "" && recordID == "" {
		return nil, storage.ErrInvalidOperation
	}
	for _, r := range s.cur.remotes {
		if r.NodeID != nodeID {
			continue
		}
		if remoteID != "" && r.RemoteID == remoteID {
			c := *r
			return &c, nil
		}
		if remoteID == "" && r.RecordID == recordID {
			c := *r
			return &c, nil
		}
	}
	return nil, storage.ErrRemoteNotFound
}

func (s *Store) SaveMessage(ctx context.Context, message *storage.Message) error {
	if message.ID == "" {
		message.ID = newID()
		if message.Timestamp.IsZero() {
			message.Timestamp = now()
		}
		if message.State == "" {
			message.State = storage.StatePending
		}
	}
	m := *message
	s.cur.messages[m.ID] = &m
	return nil
}

func (s *Store) GetMessage(ctx context.Context, filter storage.GetMessageFilter) (*storage.Message, error) {
	if filter.MessageID != "" {
		m, ok := s.cur.messages[filter.MessageID]
		if !ok {
			return nil, storage.ErrMessageNotFound
		}
		c := *m
		return &c, nil
	}

	var candidates []*storage.Message
	for _, m := range s.cur.messages {
		if m.DestinationID == filter.DestinationID && m.State == filter.State {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Timestamp.Before(candidates[j].Timestamp)
	})
	c := *candidates[0]
	return &c, nil
}

func (s *Store) GetMessageCount(ctx context.Context, destinationID string, state storage.State) (int, error) {
	count := 0
	for _, m := range s.cur.messages {
		if m.DestinationID == destinationID && m.State == state {
			count++
		}
	}
	return count, nil
}

func (s *Store) UpdateMessages(ctx context.Context, destinationID, recordID, remoteID string) error {
	for _, m := range s.cur.messages {
		if m.DestinationID == destinationID && m.RecordID == recordID && m.State == storage.StatePending {
			m.RemoteID = remoteID
		}
	}
	return nil
}

func (s *Store) SaveChange(ctx context.Context, change *storage.Change) error {
	if change.ID != "" {
		return storage.ErrInvalidOperation
	}
	change.ID = newID()
	if change.Timestamp.IsZero() {
		change.Timestamp = now()
	}
	c := *change
	s.cur.changes[change.MessageID] = append(s.cur.changes[change.MessageID], &c)
	return nil
}

func (s *Store) GetChanges(ctx context.Context, messageID string) ([]*storage.Change, error) {
	out := append([]*storage.Change(nil), s.cur.changes[messageID]...)
	return out, nil
}

func (s *Store) SaveError(ctx context.Context, errRec *storage.Error) error {
	if errRec.ID != "" {
		return storage.ErrInvalidOperation
	}
	errRec.ID = newID()
	if errRec.Timestamp.IsZero() {
		errRec.Timestamp = now()
	}
	e := *errRec
	s.cur.errors[errRec.MessageID] = append(s.cur.errors[errRec.MessageID], &e)
	return nil
}

func (s *Store) GetErrors(ctx context.Context, messageID string) ([]*storage.Error, error) {
	out := append([]*storage.Error(nil), s.cur.errors[messageID]...)
	return out, nil
}

// now has reduced sub-millisecond precision, matching the teacher's original
// truncation so that all backends - including ones without
// microsecond-resolution timestamp columns - order messages consistently.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

var _ storage.Storage = (*Store)(nil)
