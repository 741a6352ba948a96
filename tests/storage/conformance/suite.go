// Package conformance provides a shared test suite that every storage backend must pass.
// Usage: call RunAll(t, factory) where factory creates a fresh store for each sub-test.
package conformance

import (
	"testing"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// StoreFactory creates a fresh, empty storage.Storage for each sub-test.
type StoreFactory func() storage.Storage

// RunAll runs every conformance test category against the given store
// factory, including nested-rollback isolation. Use RunAllFlattened for
// backends that flatten nested transactions per design note 9.
func RunAll(t *testing.T, newStore StoreFactory) {
	t.Helper()
	runCommon(t, newStore, true)
}

// RunAllFlattened runs every conformance test category except the one
// requiring that an inner Rollback discard only its own work. Backends
// whose underlying transaction primitive doesn't nest (e.g. an embedded KV
// store with a single active transaction) flatten nested Begins onto one
// outer transaction, as design note 9 permits, so an inner Rollback cannot
// be isolated from sibling writes made after it within the same outer
// transaction.
func RunAllFlattened(t *testing.T, newStore StoreFactory) {
	t.Helper()
	runCommon(t, newStore, false)
}

func runCommon(t *testing.T, newStore StoreFactory, nestedRollbackIsolated bool) {
	t.Helper()

	t.Run("Network", func(t *testing.T) { RunNetworkTests(t, newStore) })
	t.Run("Node", func(t *testing.T) { RunNodeTests(t, newStore) })
	t.Run("Record", func(t *testing.T) { RunRecordTests(t, newStore) })
	t.Run("Remote", func(t *testing.T) { RunRemoteTests(t, newStore) })
	t.Run("Message", func(t *testing.T) { RunMessageTests(t, newStore) })
	t.Run("Transaction", func(t *testing.T) { RunTransactionTests(t, newStore, nestedRollbackIsolated) })
}
