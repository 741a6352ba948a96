// Package hub implements the transactional message pipeline and record
// store described in sections 3-4 of the design: message admission,
// validation, atomic apply-and-propagate, per-destination queues, and the
// node-local identity map. It is written entirely against the
// internal/storage.Storage interface, so any conforming backend can drive
// it.
package hub

import (
	"context"
	"log/slog"
	"time"

	"github.com/axonops/axonops-schema-registry/internal/cache"
	"github.com/axonops/axonops-schema-registry/internal/metrics"
	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// Hub is the core sync service bound to a single network's storage.
type Hub struct {
	storage storage.Storage
	schemas *schemaCache
	records *cache.RecordCache
	logger  *slog.Logger
	metrics *metrics.Metrics

	// propagator dispatches fan-out work. New always sets it to runInline,
	// which executes synchronously inside the caller's goroutine (and
	// therefore inside the caller's transaction, as section 4.F requires);
	// no Option replaces it.
	propagator func(ctx context.Context, fn func(context.Context) error) error
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger attaches a structured logger used for pipeline diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

// WithRecordCache enables the record-read cache described in design note 9
// ("remote caching on Record objects"): a Send's propagate phase re-reads
// the affected record once per fan-out peer (each child message is admitted
// and resolves the record again), so caching it avoids repeated round-trips
// to the storage backend. Entries live until their TTL expires; the cache
// is invalidated on every record write. Remote bindings are not cached.
func WithRecordCache(capacity int, ttl time.Duration) Option {
	return func(h *Hub) { h.records = cache.NewRecordCache(capacity, ttl) }
}

// WithMetrics attaches a Metrics instance that the pipeline and queue
// operations report to. Without it, metrics calls are no-ops.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// New creates a Hub over the given storage backend.
func New(store storage.Storage, opts ...Option) *Hub {
	h := &Hub{
		storage:    store,
		schemas:    newSchemaCache(),
		logger:     slog.Default(),
		propagator: runInline,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// getRecord fetches a record by id, consulting the read cache first when
// one is configured.
func (h *Hub) getRecord(ctx context.Context, recordID string) (*storage.Record, error) {
	if h.records != nil {
		if v, ok := h.records.Get(recordID); ok {
			if h.metrics != nil {
				h.metrics.RecordCacheAccess("record", true)
			}
			return v.(*storage.Record), nil
		}
		if h.metrics != nil {
			h.metrics.RecordCacheAccess("record", false)
		}
	}
	record, err := h.storage.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if h.records != nil {
		h.records.Set(recordID, record)
	}
	return record, nil
}

// saveRecord persists a record and invalidates any cached copy.
func (h *Hub) saveRecord(ctx context.Context, record *storage.Record) error {
	if err := h.storage.SaveRecord(ctx, record); err != nil {
		return err
	}
	if h.records != nil {
		h.records.Invalidate(record.ID)
	}
	return nil
}

// runInline executes fn synchronously and returns its error.
func runInline(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// IsHealthy reports whether the storage backend can currently serve
// requests.
func (h *Hub) IsHealthy(ctx context.Context) bool {
	return h.storage.IsHealthy(ctx)
}
