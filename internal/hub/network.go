package hub

import (
	"context"
	"errors"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// GetNetwork returns the network singleton, or *Error{KindDatabaseNotFound}
// if the backend has never been provisioned.
func (h *Hub) GetNetwork(ctx context.Context) (*storage.Network, error) {
	network, err := h.storage.GetNetwork(ctx)
	if errors.Is(err, storage.ErrNetworkNotFound) {
		return nil, errDatabaseNotFound()
	}
	if err != nil {
		return nil, err
	}
	return network, nil
}

// InitNetwork upserts the network singleton: creating it on first call,
// updating name/schema/fetchBeforeSend on subsequent calls. schemaDoc must
// be a valid JSON Schema Draft-04 document.
func (h *Hub) InitNetwork(ctx context.Context, name, schemaDoc string, fetchBeforeSend bool) (*storage.Network, error) {
	if err := ValidateSchemaDocument(schemaDoc); err != nil {
		return nil, errInvalidJSON("network schema is not a valid JSON Schema document: %v", err)
	}

	ctx, err := h.storage.Begin(ctx)
	if err != nil {
		return nil, err
	}

	network, err := h.storage.GetNetwork(ctx)
	if err != nil && !errors.Is(err, storage.ErrNetworkNotFound) {
		_ = h.storage.Rollback(ctx)
		return nil, err
	}
	if network == nil {
		network = &storage.Network{}
	}
	network.Name = name
	network.Schema = schemaDoc
	network.FetchBeforeSend = fetchBeforeSend

	if err := h.storage.SaveNetwork(ctx, network); err != nil {
		_ = h.storage.Rollback(ctx)
		return nil, err
	}
	if err := h.storage.Commit(ctx); err != nil {
		return nil, err
	}
	return network, nil
}

// UpdateNetworkConfig applies a partial update to the network: each
// argument that is non-nil replaces the corresponding field.
func (h *Hub) UpdateNetworkConfig(ctx context.Context, name *string, schemaDoc *string, fetchBeforeSend *bool) (*storage.Network, error) {
	if schemaDoc != nil {
		if err := ValidateSchemaDocument(*schemaDoc); err != nil {
			return nil, errInvalidJSON("network schema is not a valid JSON Schema document: %v", err)
		}
	}

	ctx, err := h.storage.Begin(ctx)
	if err != nil {
		return nil, err
	}

	network, err := h.storage.GetNetwork(ctx)
	if errors.Is(err, storage.ErrNetworkNotFound) {
		_ = h.storage.Rollback(ctx)
		return nil, errDatabaseNotFound()
	}
	if err != nil {
		_ = h.storage.Rollback(ctx)
		return nil, err
	}

	if name != nil {
		network.Name = *name
	}
	if schemaDoc != nil {
		network.Schema = *schemaDoc
	}
	if fetchBeforeSend != nil {
		network.FetchBeforeSend = *fetchBeforeSend
	}

	if err := h.storage.SaveNetwork(ctx, network); err != nil {
		_ = h.storage.Rollback(ctx)
		return nil, err
	}
	if err := h.storage.Commit(ctx); err != nil {
		return nil, err
	}
	return network, nil
}
