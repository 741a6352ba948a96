// Package postgres provides a PostgreSQL storage implementation of the sync
// hub's Storage interface.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	Database        string        `json:"database" yaml:"database"`
	Username        string        `json:"username" yaml:"username"`
	Password        string        `json:"password" yaml:"password"`
	SSLMode         string        `json:"ssl_mode" yaml:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "synchub",
		Username:        "postgres",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DSN returns the connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode,
	)
}

// MarshalJSON implements json.Marshaler for Config, redacting the password.
func (c Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		Password string `json:"password,omitempty"`
		*Alias
	}{
		Password: "***",
		Alias:    (*Alias)(&c),
	})
}

// querier is satisfied by both *sql.DB and *sql.Tx, so entity methods can
// run either inside or outside an active transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type txKey struct{}

// txState carries the active *sql.Tx and a savepoint stack for nested
// Begin calls, since database/sql has no native nested-transaction support.
type txState struct {
	tx    *sql.Tx
	depth int
}

// Store implements storage.Storage over PostgreSQL.
type Store struct {
	db     *sql.DB
	config Config
}

func init() {
	storage.Register(storage.StorageTypePostgres, func(cfg map[string]interface{}) (storage.Storage, error) {
		c, ok := cfg["config"].(Config)
		if !ok {
			return nil, fmt.Errorf("postgres: factory requires a \"config\" key holding postgres.Config")
		}
		return NewStore(c)
	})
}

// NewStore opens a connection pool; Connect runs the migrations.
func NewStore(config Config) (*Store, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := &Store{db: db, config: config}
	return store, nil
}

// Connect pings the database and runs migrations.
func (s *Store) Connect(ctx context.Context, createIfMissing bool) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Disconnect is a no-op; the pool stays warm between logical sessions.
func (s *Store) Disconnect(ctx context.Context) error { return nil }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// IsHealthy reports whether the database connection is healthy.
func (s *Store) IsHealthy(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(pingCtx) == nil
}

// Drop truncates every table, used by tests and network deprovisioning.
func (s *Store) Drop(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE networks, nodes, records, remotes, messages, changes, errors RESTART IDENTITY CASCADE`)
	return err
}

func (s *Store) migrate(ctx context.Context) error {
	for i, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Begin starts (or nests, via a SAVEPOINT) a transaction. The outer Begin
// opens a real *sql.Tx; inner Begins issue SAVEPOINTs against it, giving the
// same stack discipline section 4.A describes without requiring
// database/sql's single-level transaction API to change shape.
func (s *Store) Begin(ctx context.Context) (context.Context, error) {
	ts, ok := ctx.Value(txKey{}).(*txState)
	if ok {
		sp := savepointName(ts.depth)
		if _, err := ts.tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
			return ctx, fmt.Errorf("savepoint: %w", err)
		}
		ts.depth++
		return ctx, nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return ctx, fmt.Errorf("begin transaction: %w", err)
	}
	ts = &txState{tx: tx, depth: 1}
	return context.WithValue(ctx, txKey{}, ts), nil
}

func savepointName(depth int) string {
	return fmt.Sprintf("sp_%d", depth)
}

func (s *Store) Commit(ctx context.Context) error {
	ts, ok := ctx.Value(txKey{}).(*txState)
	if !ok || ts.depth == 0 {
		return fmt.Errorf("postgres: commit called without a matching Begin")
	}
	ts.depth--
	if ts.depth == 0 {
		return ts.tx.Commit()
	}
	_, err := ts.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepointName(ts.depth))
	return err
}

func (s *Store) Rollback(ctx context.Context) error {
	ts, ok := ctx.Value(txKey{}).(*txState)
	if !ok || ts.depth == 0 {
		return fmt.Errorf("postgres: rollback called without a matching Begin")
	}
	ts.depth--
	if ts.depth == 0 {
		return ts.tx.Rollback()
	}
	_, err := ts.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepointName(ts.depth))
	return err
}

// q resolves the querier that an entity method should run against: the
// active transaction, if ctx carries one, or the pool directly.
func (s *Store) q(ctx context.Context) querier {
	if ts, ok := ctx.Value(txKey{}).(*txState); ok {
		return ts.tx
	}
	return s.db
}

func (s *Store) SaveNetwork(ctx context.Context, network *storage.Network) error {
	if network.ID == "" {
		network.ID = newID()
	}
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT INTO networks (id, name, schema_doc, fetch_before_send)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, schema_doc = EXCLUDED.schema_doc, fetch_before_send = EXCLUDED.fetch_before_send`,
		network.ID, network.Name, network.Schema, network.FetchBeforeSend)
	if err != nil {
		return fmt.Errorf("save network: %w", err)
	}
	return nil
}

func (s *Store) GetNetwork(ctx context.Context) (*storage.Network, error) {
	n := &storage.Network{}
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT id, name, schema_doc, fetch_before_send FROM networks LIMIT 1`).
		Scan(&n.ID, &n.Name, &n.Schema, &n.FetchBeforeSend)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNetworkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get network: %w", err)
	}
	return n, nil
}

func (s *Store) SaveNode(ctx context.Context, node *storage.Node) error {
	if node.ID == "" {
		node.ID = newID()
	}
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT INTO nodes (id, name, can_create, can_read, can_update, can_delete)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, can_create = EXCLUDED.can_create,
		     can_read = EXCLUDED.can_read, can_update = EXCLUDED.can_update, can_delete = EXCLUDED.can_delete`,
		node.ID, node.Name, node.Create, node.Read, node.Update, node.Delete)
	if err != nil {
		return fmt.Errorf("save node: %w", err)
	}
	return nil
}

func (s *Store) GetNode(ctx context.Context, id string) (*storage.Node, error) {
	n := &storage.Node{}
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT id, name, can_create, can_read, can_update, can_delete FROM nodes WHERE id = $1`, id).
		Scan(&n.ID, &n.Name, &n.Create, &n.Read, &n.Update, &n.Delete)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	return n, nil
}

func (s *Store) GetNodes(ctx context.Context) ([]*storage.Node, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT id, name, can_create, can_read, can_update, can_delete FROM nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var out []*storage.Node
	for rows.Next() {
		n := &storage.Node{}
		if err := rows.Scan(&n.ID, &n.Name, &n.Create, &n.Read, &n.Update, &n.Delete); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) SaveRecord(ctx context.Context, record *storage.Record) error {
	if record.ID == "" {
		record.ID = newID()
	}
	headJSON, err := marshalHead(record.Head)
	if err != nil {
		return fmt.Errorf("marshal head: %w", err)
	}
	record.LastUpdated = now()
	_, err = s.q(ctx).ExecContext(ctx,
		`INSERT INTO records (id, head, deleted, last_updated)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET head = EXCLUDED.head, deleted = EXCLUDED.deleted, last_updated = EXCLUDED.last_updated`,
		record.ID, headJSON, record.Deleted, record.LastUpdated)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (*storage.Record, error) {
	r := &storage.Record{}
	var headJSON []byte
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT id, head, deleted, last_updated FROM records WHERE id = $1`, id).
		Scan(&r.ID, &headJSON, &r.Deleted, &r.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, storage.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if r.Head, err = unmarshalHead(headJSON); err != nil {
		return nil, fmt.Errorf("unmarshal head: %w", err)
	}
	if r.Remotes, err = s.remotesForRecord(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) remotesForRecord(ctx context.Context, recordID string) ([]*storage.Remote, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT id, node_id, record_id, remote_id FROM remotes WHERE record_id = $1`, recordID)
	if err != nil {
		return nil, fmt.Errorf("load remotes: %w", err)
	}
	defer rows.Close()

	var out []*storage.Remote
	for rows.Next() {
		r := &storage.Remote{}
		if err := rows.Scan(&r.ID, &r.NodeID, &r.RecordID, &r.RemoteID); err != nil {
			return nil, fmt.Errorf("scan remote: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRecords streams non-deleted records in id-ordered pages of at most
// 1000, each with its remote bindings eager-loaded, matching the memory
// backend's batching contract.
func (s *Store) GetRecords(ctx context.Context, fn func(storage.RecordBatch) error) error {
	const pageSize = 1000
	lastID := ""
	for {
		rows, err := s.q(ctx).QueryContext(ctx,
			`SELECT id, head, deleted, last_updated FROM records
			 WHERE deleted = FALSE AND id > $1 ORDER BY id LIMIT $2`, lastID, pageSize)
		if err != nil {
			return fmt.Errorf("page records: %w", err)
		}

		var batch storage.RecordBatch
		for rows.Next() {
			r := &storage.Record{}
			var headJSON []byte
			if err := rows.Scan(&r.ID, &headJSON, &r.Deleted, &r.LastUpdated); err != nil {
				rows.Close()
				return fmt.Errorf("scan record: %w", err)
			}
			if r.Head, err = unmarshalHead(headJSON); err != nil {
				rows.Close()
				return fmt.Errorf("unmarshal head: %w", err)
			}
			batch.Records = append(batch.Records, r)
		}
		closeErr := rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("page records: %w", err)
		}
		if closeErr != nil {
			return closeErr
		}
		if len(batch.Records) == 0 {
			return nil
		}
		for _, r := range batch.Records {
			if r.Remotes, err = s.remotesForRecord(ctx, r.ID); err != nil {
				return err
			}
		}
		if err := fn(batch); err != nil {
			return err
		}
		lastID = batch.Records[len(batch.Records)-1].ID
		if len(batch.Records) < pageSize {
			return nil
		}
	}
}

func (s *Store) SaveRemote(ctx context.Context, remote *storage.Remote) error {
	if remote.ID == "" {
		remote.ID = newID()
	}
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT INTO remotes (id, node_id, record_id, remote_id) VALUES ($1, $2, $3, $4)`,
		remote.ID, remote.NodeID, remote.RecordID, remote.RemoteID)
	if err != nil {
		return fmt.Errorf("save remote: %w", err)
	}
	return nil
}

func (s *Store) GetRemote(ctx context.Context, nodeID, remoteID, recordID string) (*storage.Remote, error) {
	if remoteID == "" && recordID == "" {
		return nil, storage.ErrInvalidOperation
	}
	r := &storage.Remote{}
	var err error
	if remoteID != "" {
		err = s.q(ctx).QueryRowContext(ctx,
			`SELECT id, node_id, record_id, remote_id FROM remotes WHERE node_id = $1 AND remote_id = $2`,
			nodeID, remoteID).Scan(&r.ID, &r.NodeID, &r.RecordID, &r.RemoteID)
	} else {
		err = s.q(ctx).QueryRowContext(ctx,
			`SELECT id, node_id, record_id, remote_id FROM remotes WHERE node_id = $1 AND record_id = $2`,
			nodeID, recordID).Scan(&r.ID, &r.NodeID, &r.RecordID, &r.RemoteID)
	}
	if err == sql.ErrNoRows {
		return nil, storage.ErrRemoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get remote: %w", err)
	}
	return r, nil
}

func (s *Store) SaveMessage(ctx context.Context, message *storage.Message) error {
	isNew := message.ID == ""
	if isNew {
		message.ID = newID()
		if message.Timestamp.IsZero() {
			message.Timestamp = now()
		}
		if message.State == "" {
			message.State = storage.StatePending
		}
	}
	payloadJSON, err := marshalHead(message.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.q(ctx).ExecContext(ctx,
		`INSERT INTO messages (id, parent_id, origin_id, destination_id, ts, method, payload, record_id, remote_id, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET record_id = EXCLUDED.record_id, remote_id = EXCLUDED.remote_id, state = EXCLUDED.state`,
		message.ID, nullable(message.ParentID), nullable(message.OriginID), nullable(message.DestinationID),
		message.Timestamp, message.Method, payloadJSON, message.RecordID, message.RemoteID, message.State)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, filter storage.GetMessageFilter) (*storage.Message, error) {
	var row *sql.Row
	if filter.MessageID != "" {
		row = s.q(ctx).QueryRowContext(ctx,
			`SELECT id, parent_id, origin_id, destination_id, ts, method, payload, record_id, remote_id, state
			 FROM messages WHERE id = $1`, filter.MessageID)
	} else {
		query := `SELECT id, parent_id, origin_id, destination_id, ts, method, payload, record_id, remote_id, state
			 FROM messages WHERE destination_id = $1 AND state = $2 ORDER BY ts LIMIT 1`
		if filter.WithLock {
			query += " FOR UPDATE"
		}
		row = s.q(ctx).QueryRowContext(ctx, query, filter.DestinationID, filter.State)
	}
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		if filter.MessageID != "" {
			return nil, storage.ErrMessageNotFound
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func scanMessage(row *sql.Row) (*storage.Message, error) {
	m := &storage.Message{}
	var parentID, originID, destinationID sql.NullString
	var payloadJSON []byte
	if err := row.Scan(&m.ID, &parentID, &originID, &destinationID, &m.Timestamp,
		&m.Method, &payloadJSON, &m.RecordID, &m.RemoteID, &m.State); err != nil {
		return nil, err
	}
	m.ParentID = parentID.String
	m.OriginID = originID.String
	m.DestinationID = destinationID.String
	payload, err := unmarshalHead(payloadJSON)
	if err != nil {
		return nil, err
	}
	m.Payload = payload
	return m, nil
}

func (s *Store) GetMessageCount(ctx context.Context, destinationID string, state storage.State) (int, error) {
	var count int
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE destination_id = $1 AND state = $2`,
		destinationID, state).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func (s *Store) UpdateMessages(ctx context.Context, destinationID, recordID, remoteID string) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`UPDATE messages SET remote_id = $1 WHERE destination_id = $2 AND record_id = $3 AND state = $4`,
		remoteID, destinationID, recordID, storage.StatePending)
	if err != nil {
		return fmt.Errorf("update messages: %w", err)
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
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT INTO changes (id, message_id, ts, state, note) VALUES ($1, $2, $3, $4, $5)`,
		change.ID, change.MessageID, change.Timestamp, change.State, change.Note)
	if err != nil {
		return fmt.Errorf("save change: %w", err)
	}
	return nil
}

func (s *Store) GetChanges(ctx context.Context, messageID string) ([]*storage.Change, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT id, message_id, ts, state, note FROM changes WHERE message_id = $1 ORDER BY ts`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	var out []*storage.Change
	for rows.Next() {
		c := &storage.Change{}
		if err := rows.Scan(&c.ID, &c.MessageID, &c.Timestamp, &c.State, &c.Note); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) SaveError(ctx context.Context, errRec *storage.Error) error {
	if errRec.ID != "" {
		return storage.ErrInvalidOperation
	}
	errRec.ID = newID()
	if errRec.Timestamp.IsZero() {
		errRec.Timestamp = now()
	}
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT INTO errors (id, message_id, ts, text) VALUES ($1, $2, $3, $4)`,
		errRec.ID, errRec.MessageID, errRec.Timestamp, errRec.Text)
	if err != nil {
		return fmt.Errorf("save error: %w", err)
	}
	return nil
}

func (s *Store) GetErrors(ctx context.Context, messageID string) ([]*storage.Error, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT id, message_id, ts, text FROM errors WHERE message_id = $1 ORDER BY ts`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list errors: %w", err)
	}
	defer rows.Close()

	var out []*storage.Error
	for rows.Next() {
		e := &storage.Error{}
		if err := rows.Scan(&e.ID, &e.MessageID, &e.Timestamp, &e.Text); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalHead(head map[string]interface{}) ([]byte, error) {
	if head == nil {
		return []byte("null"), nil
	}
	return json.Marshal(head)
}

func unmarshalHead(data []byte) (map[string]interface{}, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func newID() string {
	return uuid.NewString()
}

// now has reduced sub-millisecond precision, matching the memory backend's
// truncation so that message ordering is consistent across backends.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// isUniqueViolation checks if the error is a unique constraint violation
// (PostgreSQL code 23505).
func isUniqueViolation(err error) bool {
	return err != nil && containsAny(err.Error(), "duplicate key", "23505")
}

// isSerializationError checks if the error is a PostgreSQL serialization
// failure (40001) or deadlock (40P01), both retriable.
func isSerializationError(err error) bool {
	return err != nil && containsAny(err.Error(), "40001", "40P01", "deadlock")
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if len(s) >= len(sub) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}

// Stats returns connection pool statistics.
func (s *Store) Stats() sql.DBStats {
	return s.db.Stats()
}

var _ storage.Storage = (*Store)(nil)
