package hub

import (
	"context"
	"errors"

	"github.com/axonops/axonops-schema-registry/internal/storage"
)

// CreateNode registers a new node with the given permission bits.
func (h *Hub) CreateNode(ctx context.Context, name string, create, read, update, delete bool) (*storage.Node, error) {
	node := &storage.Node{Name: name, Create: create, Read: read, Update: update, Delete: delete}

	ctx, err := h.storage.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.storage.SaveNode(ctx, node); err != nil {
		_ = h.storage.Rollback(ctx)
		return nil, err
	}
	if err := h.storage.Commit(ctx); err != nil {
		return nil, err
	}
	return node, nil
}

// GetNode fetches a node by id. A malformed id is reported as KindInvalidID
// so the API layer can answer 404 without probing storage.
func (h *Hub) GetNode(ctx context.Context, id string) (*storage.Node, error) {
	if !ValidID(id) {
		return nil, errInvalidID(id)
	}
	node, err := h.storage.GetNode(ctx, id)
	if errors.Is(err, storage.ErrNodeNotFound) {
		return nil, errNotFound("node", id)
	}
	if err != nil {
		return nil, err
	}
	return node, nil
}

// GetNodes lists every node in the network.
func (h *Hub) GetNodes(ctx context.Context) ([]*storage.Node, error) {
	return h.storage.GetNodes(ctx)
}

// UpdateNodePermissions mutates a node's permission bits. Any argument left
// nil leaves the corresponding bit unchanged.
func (h *Hub) UpdateNodePermissions(ctx context.Context, id string, create, read, update, delete *bool) (*storage.Node, error) {
	if !ValidID(id) {
		return nil, errInvalidID(id)
	}

	ctx, err := h.storage.Begin(ctx)
	if err != nil {
		return nil, err
	}

	node, err := h.storage.GetNode(ctx, id)
	if errors.Is(err, storage.ErrNodeNotFound) {
		_ = h.storage.Rollback(ctx)
		return nil, errNotFound("node", id)
	}
	if err != nil {
		_ = h.storage.Rollback(ctx)
		return nil, err
	}

	if create != nil {
		node.Create = *create
	}
	if read != nil {
		node.Read = *read
	}
	if update != nil {
		node.Update = *update
	}
	if delete != nil {
		node.Delete = *delete
	}

	if err := h.storage.SaveNode(ctx, node); err != nil {
		_ = h.storage.Rollback(ctx)
		return nil, err
	}
	if err := h.storage.Commit(ctx); err != nil {
		return nil, err
	}
	return node, nil
}

// DisableNode clears all four permission bits on a node, revoking its
// ability to create, read, update or delete records.
func (h *Hub) DisableNode(ctx context.Context, id string) (*storage.Node, error) {
	f := false
	return h.UpdateNodePermissions(ctx, id, &f, &f, &f, &f)
}
