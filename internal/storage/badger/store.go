// Package badger provides an embedded-document storage implementation of
// the sync hub's Storage interface, for single-process deployments with no
// external database dependency.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	bdg "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// Config configures the embedded store.
type Config struct {
	Path       string `json:"path" yaml:"path"`
	SyncWrites bool   `json:"sync_writes" yaml:"sync_writes"`
}

func init() {
	storage.Register(storage.StorageTypeBadger, func(cfg map[string]interface{}) (storage.Storage, error) {
		c, ok := cfg["config"].(Config)
		if !ok {
			return nil, fmt.Errorf("badger: factory requires a \"config\" key holding badger.Config")
		}
		return NewStore(c)
	})
}

// ==================== Key Naming Scheme ====================

func networkKey() []byte                       { return []byte("network") }
func nodeKey(id string) []byte                  { return []byte("node:" + id) }
func nodeListPrefix() []byte                    { return []byte("node:") }
func recordKey(id string) []byte                { return []byte("record:" + id) }
func recordListPrefix() []byte                  { return []byte("record:") }
func remoteKey(id string) []byte                { return []byte("remote:" + id) }
func remoteByNodeRemoteKey(nodeID, remoteID string) []byte {
	return []byte(fmt.Sprintf("remote_idx:remote:%s:%s", nodeID, remoteID))
}
func remoteByNodeRecordKey(nodeID, recordID string) []byte {
	return []byte(fmt.Sprintf("remote_idx:record:%s:%s", nodeID, recordID))
}
func remoteListPrefixForRecord(recordID string) []byte {
	return []byte("remote_by_record:" + recordID + ":")
}
func remoteByRecordKey(recordID, remoteRowID string) []byte {
	return []byte("remote_by_record:" + recordID + ":" + remoteRowID)
}
func messageKey(id string) []byte { return []byte("message:" + id) }

// messageQueueKey orders a destination's queue by arrival time so GetMessage
// can pop the oldest Pending entry without a full scan.
func messageQueueKey(destinationID string, state storage.State, ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:%s:%020d:%s", destinationID, state, ts.UnixNano(), id))
}
func messageQueuePrefix(destinationID string, state storage.State) []byte {
	return []byte(fmt.Sprintf("queue:%s:%s:", destinationID, state))
}
func changeKey(messageID string, id string) []byte {
	return []byte("change:" + messageID + ":" + id)
}
func changeListPrefix(messageID string) []byte { return []byte("change:" + messageID + ":") }
func errorKey(messageID string, id string) []byte {
	return []byte("error:" + messageID + ":" + id)
}
func errorListPrefix(messageID string) []byte { return []byte("error:" + messageID + ":") }

type txKey struct{}

// txState carries the active transaction. Unlike the memory backend's
// snapshot stack, it does not isolate nested work: BadgerDB's own
// transactions don't nest, so an outer Begin opens a real *bdg.Txn and
// inner Begins just bump a depth counter against the same txn, per design
// note 9's permission for backends to flatten nested transactions.
type txState struct {
	txn   *bdg.Txn
	depth int
}

// Store implements storage.Storage over an embedded BadgerDB instance.
type Store struct {
	db   *bdg.DB
	path string
}

// NewStore opens (creating if necessary) the BadgerDB instance at
// config.Path.
func NewStore(config Config) (*Store, error) {
	path := config.Path
	if path == "" {
		path = "./data/hub.badger"
	}
	opts := bdg.DefaultOptions(filepath.Clean(path)).
		WithSyncWrites(config.SyncWrites).
		WithLogger(nil)

	db, err := bdg.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Connect(ctx context.Context, createIfMissing bool) error { return nil }

func (s *Store) Disconnect(ctx context.Context) error { return nil }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) IsHealthy(ctx context.Context) bool {
	_, err := s.db.Levels()
	return err == nil
}

// Drop deletes every key, used by tests and network deprovisioning.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.DropAll()
}

// Begin opens the outer BadgerDB transaction, or - for a nested call -
// bumps the depth counter against the already-open one.
func (s *Store) Begin(ctx context.Context) (context.Context, error) {
	ts, ok := ctx.Value(txKey{}).(*txState)
	if ok {
		ts.depth++
		return ctx, nil
	}
	txn := s.db.NewTransaction(true)
	ts = &txState{txn: txn, depth: 1}
	return context.WithValue(ctx, txKey{}, ts), nil
}

func (s *Store) Commit(ctx context.Context) error {
	ts, ok := ctx.Value(txKey{}).(*txState)
	if !ok || ts.depth == 0 {
		return fmt.Errorf("badger: commit called without a matching Begin")
	}
	ts.depth--
	if ts.depth > 0 {
		return nil
	}
	return ts.txn.Commit()
}

func (s *Store) Rollback(ctx context.Context) error {
	ts, ok := ctx.Value(txKey{}).(*txState)
	if !ok || ts.depth == 0 {
		return fmt.Errorf("badger: rollback called without a matching Begin")
	}
	ts.depth--
	if ts.depth > 0 {
		return nil
	}
	ts.txn.Discard()
	return nil
}

// withTxn runs fn in the active transaction, starting an implicit auto-committing
// one for callers that invoke an entity method outside Begin/Commit.
func (s *Store) withTxn(ctx context.Context, fn func(txn *bdg.Txn) error) error {
	if ts, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ts.txn)
	}
	return s.db.Update(fn)
}

func newID() string { return uuid.NewString() }

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func putJSON(txn *bdg.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func getJSON(txn *bdg.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func (s *Store) SaveNetwork(ctx context.Context, network *storage.Network) error {
	return s.withTxn(ctx, func(txn *bdg.Txn) error {
		if network.ID == "" {
			network.ID = newID()
		}
		return putJSON(txn, networkKey(), network)
	})
}

func (s *Store) GetNetwork(ctx context.Context) (*storage.Network, error) {
	n := &storage.Network{}
	err := s.withTxn(ctx, func(txn *bdg.Txn) error {
		return getJSON(txn, networkKey(), n)
	})
	if err == bdg.ErrKeyNotFound {
		return nil, storage.ErrNetworkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get network: %w", err)
	}
	return n, nil
}

func (s *Store) SaveNode(ctx context.Context, node *storage.Node) error {
	return s.withTxn(ctx, func(txn *bdg.Txn) error {
		if node.ID == "" {
			node.ID = newID()
		}
		return putJSON(txn, nodeKey(node.ID), node)
	})
}

func (s *Store) GetNode(ctx context.Context, id string) (*storage.Node, error) {
	n := &storage.Node{}
	err := s.withTxn(ctx, func(txn *bdg.Txn) error {
		return getJSON(txn, nodeKey(id), n)
	})
	if err == bdg.ErrKeyNotFound {
		return nil, storage.ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	return n, nil
}

func (s *Store) GetNodes(ctx context.Context) ([]*storage.Node, error) {
	var out []*storage.Node
	err := s.withTxn(ctx, func(txn *bdg.Txn) error {
		opts := bdg.DefaultIteratorOptions
		opts.Prefix = nodeListPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			n := &storage.Node{}
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, n) }); err != nil {
				return err
			}
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveRecord(ctx context.Context, record *storage.Record) error {
	return s.withTxn(ctx, func(txn *bdg.Txn) error {
		if record.ID == "" {
			record.ID = newID()
		}
		record.LastUpdated = now()
		stored := *record
		stored.Remotes = nil
		return putJSON(txn, recordKey(record.ID), &stored)
	})
}

func (s *Store) GetRecord(ctx context.Context, id string) (*storage.Record, error) {
	r := &storage.Record{}
	err := s.withTxn(ctx, func(txn *bdg.Txn) error {
		if err := getJSON(txn, recordKey(id), r); err != nil {
			return err
		}
		remotes, err := remotesForRecord(txn, id)
		if err != nil {
			return err
		}
		r.Remotes = remotes
		return nil
	})
	if err == bdg.ErrKeyNotFound {
		return nil, storage.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

func remotesForRecord(txn *bdg.Txn, recordID string) ([]*storage.Remote, error) {
	var out []*storage.Remote
	opts := bdg.DefaultIteratorOptions
	opts.Prefix = remoteListPrefixForRecord(recordID)
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
		var rowID string
		if err := it.Item().Value(func(val []byte) error { rowID = string(val); return nil }); err != nil {
			return nil, err
		}
		r := &storage.Remote{}
		if err := getJSON(txn, remoteKey(rowID), r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// GetRecords streams non-deleted records in id-ordered pages of at most
// 1000, matching the other backends' batching contract.
func (s *Store) GetRecords(ctx context.Context, fn func(storage.RecordBatch) error) error {
	const pageSize = 1000
	var ids []string
	err := s.withTxn(ctx, func(txn *bdg.Txn) error {
		opts := bdg.DefaultIteratorOptions
		opts.Prefix = recordListPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			r := &storage.Record{}
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, r) }); err != nil {
				return err
			}
			if !r.Deleted {
				ids = append(ids, r.ID)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	sort.Strings(ids)

	for start := 0; start < len(ids); start += pageSize {
		end := start + pageSize
		if end > len(ids) {
			end = len(ids)
		}
		var batch storage.RecordBatch
		err := s.withTxn(ctx, func(txn *bdg.Txn) error {
			for _, id := range ids[start:end] {
				r := &storage.Record{}
				if err := getJSON(txn, recordKey(id), r); err != nil {
					return err
				}
				remotes, err := remotesForRecord(txn, id)
				if err != nil {
					return err
				}
				r.Remotes = remotes
				batch.Records = append(batch.Records, r)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("page records: %w", err)
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SaveRemote(ctx context.Context, remote *storage.Remote) error {
	return s.withTxn(ctx, func(txn *bdg.Txn) error {
		if remote.ID == "" {
			remote.ID = newID()
		}
		if err := putJSON(txn, remoteKey(remote.ID), remote); err != nil {
			return err
		}
		if err := txn.Set(remoteByNodeRemoteKey(remote.NodeID, remote.RemoteID), []byte(remote.ID)); err != nil {
			return err
		}
		if err := txn.Set(remoteByNodeRecordKey(remote.NodeID, remote.RecordID), []byte(remote.ID)); err != nil {
			return err
		}
		return txn.Set(remoteByRecordKey(remote.RecordID, remote.ID), []byte(remote.ID))
	})
}

func (s *Store) GetRemote(ctx context.Context, nodeID, remoteID, recordID string) (*storage.Remote, error) {
	if remoteID == "" && recordID == "" {
		return nil, storage.ErrInvalidOperation
	}
	r := &storage.Remote{}
	err := s.withTxn(ctx, func(txn *bdg.Txn) error {
		var idxKey []byte
		if remoteID != "" {
			idxKey = remoteByNodeRemoteKey(nodeID, remoteID)
		} else {
			idxKey = remoteByNodeRecordKey(nodeID, recordID)
		}
		item, err := txn.Get(idxKey)
		if err != nil {
			return err
		}
		var rowID string
		if err := item.Value(func(val []byte) error { rowID = string(val); return nil }); err != nil {
			return err
		}
		return getJSON(txn, remoteKey(rowID), r)
	})
	if err == bdg.ErrKeyNotFound {
		return nil, storage.ErrRemoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get remote: %w", err)
	}
	return r, nil
}

func (s *Store) SaveMessage(ctx context.Context, message *storage.Message) error {
	return s.withTxn(ctx, func(txn *bdg.Txn) error {
		isNew := message.ID == ""
		if isNew {
			message.ID = newID()
			if message.Timestamp.IsZero() {
				message.Timestamp = now()
			}
			if message.State == "" {
				message.State = storage.StatePending
			}
		} else {
			// Remove the old queue-index entry before re-indexing under a
			// possibly new state.
			existing := &storage.Message{}
			if err := getJSON(txn, messageKey(message.ID), existing); err == nil {
				if err := txn.Delete(messageQueueKey(existing.DestinationID, existing.State, existing.Timestamp, existing.ID)); err != nil {
					return err
				}
			}
		}
		if err := putJSON(txn, messageKey(message.ID), message); err != nil {
			return err
		}
		return txn.Set(messageQueueKey(message.DestinationID, message.State, message.Timestamp, message.ID), []byte(message.ID))
	})
}

func (s *Store) GetMessage(ctx context.Context, filter storage.GetMessageFilter) (*storage.Message, error) {
	m := &storage.Message{}
	var found bool
	err := s.withTxn(ctx, func(txn *bdg.Txn) error {
		if filter.MessageID != "" {
			if err := getJSON(txn, messageKey(filter.MessageID), m); err != nil {
				return err
			}
			found = true
			return nil
		}
		opts := bdg.DefaultIteratorOptions
		opts.Prefix = messageQueuePrefix(filter.DestinationID, filter.State)
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Seek(opts.Prefix)
		if !it.ValidForPrefix(opts.Prefix) {
			return nil
		}
		var msgID string
		if err := it.Item().Value(func(val []byte) error { msgID = string(val); return nil }); err != nil {
			return err
		}
		if err := getJSON(txn, messageKey(msgID), m); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err == bdg.ErrKeyNotFound {
		return nil, storage.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if !found {
		if filter.MessageID != "" {
			return nil, storage.ErrMessageNotFound
		}
		return nil, nil
	}
	return m, nil
}

func (s *Store) GetMessageCount(ctx context.Context, destinationID string, state storage.State) (int, error) {
	count := 0
	err := s.withTxn(ctx, func(txn *bdg.Txn) error {
		opts := bdg.DefaultIteratorOptions
		opts.Prefix = messageQueuePrefix(destinationID, state)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func (s *Store) UpdateMessages(ctx context.Context, destinationID, recordID, remoteID string) error {
	return s.withTxn(ctx, func(txn *bdg.Txn) error {
		opts := bdg.DefaultIteratorOptions
		opts.Prefix = messageQueuePrefix(destinationID, storage.StatePending)
		it := txn.NewIterator(opts)
		var ids []string
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var msgID string
			if err := it.Item().Value(func(val []byte) error { msgID = string(val); return nil }); err != nil {
				it.Close()
				return err
			}
			ids = append(ids, msgID)
		}
		it.Close()

		for _, id := range ids {
			m := &storage.Message{}
			if err := getJSON(txn, messageKey(id), m); err != nil {
				return err
			}
			if m.RecordID != recordID {
				continue
			}
			m.RemoteID = remoteID
			if err := putJSON(txn, messageKey(id), m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) SaveChange(ctx context.Context, change *storage.Change) error {
	return s.withTxn(ctx, func(txn *bdg.Txn) error {
		if change.ID != "" {
			return storage.ErrInvalidOperation
		}
		change.ID = newID()
		if change.Timestamp.IsZero() {
			change.Timestamp = now()
		}
		return putJSON(txn, changeKey(change.MessageID, change.ID), change)
	})
}

func (s *Store) GetChanges(ctx context.Context, messageID string) ([]*storage.Change, error) {
	var out []*storage.Change
	err := s.withTxn(ctx, func(txn *bdg.Txn) error {
		opts := bdg.DefaultIteratorOptions
		opts.Prefix = changeListPrefix(messageID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			c := &storage.Change{}
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, c) }); err != nil {
				return err
			}
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) SaveError(ctx context.Context, errRec *storage.Error) error {
	return s.withTxn(ctx, func(txn *bdg.Txn) error {
		if errRec.ID != "" {
			return storage.ErrInvalidOperation
		}
		errRec.ID = newID()
		if errRec.Timestamp.IsZero() {
			errRec.Timestamp = now()
		}
		return putJSON(txn, errorKey(errRec.MessageID, errRec.ID), errRec)
	})
}

func (s *Store) GetErrors(ctx context.Context, messageID string) ([]*storage.Error, error) {
	var out []*storage.Error
	err := s.withTxn(ctx, func(txn *bdg.Txn) error {
		opts := bdg.DefaultIteratorOptions
		opts.Prefix = errorListPrefix(messageID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			e := &storage.Error{}
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, e) }); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list errors: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

var _ storage.Storage = (*Store)(nil)
