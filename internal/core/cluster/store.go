package cluster

import (
	"context"
	"fmt"
	"sync"
)

// NodeStore is a versioned, validated registry of cluster member records.
//
// Mutations are linearized through an exclusive write lock and bump the
// store's version counter exactly once per successful call. Reads take a
// shared lock and never observe a partially-applied mutation.
type NodeStore interface {
	// GetAll returns a snapshot of every record in insertion order.
	GetAll(ctx context.Context) ([]NodeInfo, error)
	// GetByID looks a record up by id; absence is reported as ErrNotFound.
	GetByID(ctx context.Context, id uint64) (NodeInfo, error)
	// GetByAddress looks a record up by address; absence is reported as ErrNotFound.
	GetByAddress(ctx context.Context, address string) (NodeInfo, error)
	// SetAll validates the whole incoming set and atomically replaces the
	// current contents. On any validation or persistence failure the store
	// is unchanged.
	SetAll(ctx context.Context, nodes []NodeInfo) error
	// Upsert inserts or replaces a single record. An id may change address,
	// never duplicate another node's address.
	Upsert(ctx context.Context, node NodeInfo) error
	// Remove deletes a record, reporting whether it existed.
	Remove(ctx context.Context, id uint64) (bool, error)
	// Version returns the current version counter.
	Version(ctx context.Context) (uint64, error)
	// SetIfVersion is the optimistic-concurrency variant of SetAll: it
	// succeeds only if expected matches the version at the moment of
	// mutation, and otherwise fails with ErrVersionConflict leaving the
	// store untouched.
	SetIfVersion(ctx context.Context, nodes []NodeInfo, expected uint64) (bool, error)
}

// persistFunc durably records a full snapshot before it becomes visible.
// A nil persistFunc makes the store ephemeral.
type persistFunc func(ctx context.Context, nodes []NodeInfo) error

// memCore is the validated in-memory backend shared by every store variant.
// Backends differ only in how (and whether) a snapshot is persisted.
type memCore struct {
	mu      sync.RWMutex
	byID    map[uint64]NodeInfo
	byAddr  map[string]uint64
	order   []uint64
	version uint64
	persist persistFunc
}

func newMemCore(persist persistFunc) *memCore {
	return &memCore{
		byID:    make(map[uint64]NodeInfo),
		byAddr:  make(map[string]uint64),
		persist: persist,
	}
}

// seed installs an already-validated node set without bumping the version or
// persisting. Used by backends loading their snapshot at construction.
func (c *memCore) seed(nodes []NodeInfo) {
	c.byID = make(map[uint64]NodeInfo, len(nodes))
	c.byAddr = make(map[string]uint64, len(nodes))
	c.order = make([]uint64, 0, len(nodes))
	for _, node := range nodes {
		c.byID[node.ID] = node
		c.byAddr[node.Address] = node.ID
		c.order = append(c.order, node.ID)
	}
}

func (c *memCore) snapshotLocked() []NodeInfo {
	nodes := make([]NodeInfo, 0, len(c.order))
	for _, id := range c.order {
		nodes = append(nodes, c.byID[id])
	}
	return nodes
}

// commit persists the new snapshot, then makes it visible and bumps the
// version. Called with the write lock held; on persistence failure the
// in-memory state is untouched.
func (c *memCore) commit(ctx context.Context, nodes []NodeInfo) error {
	if c.persist != nil {
		if err := c.persist(ctx, nodes); err != nil {
			return err
		}
	}
	c.seed(nodes)
	c.version++
	return nil
}

func (c *memCore) GetAll(_ context.Context) ([]NodeInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked(), nil
}

func (c *memCore) GetByID(_ context.Context, id uint64) (NodeInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	node, ok := c.byID[id]
	if !ok {
		return NodeInfo{}, fmt.Errorf("node %d: %w", id, ErrNotFound)
	}
	return node, nil
}

func (c *memCore) GetByAddress(_ context.Context, address string) (NodeInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byAddr[address]
	if !ok {
		return NodeInfo{}, fmt.Errorf("node %q: %w", address, ErrNotFound)
	}
	return c.byID[id], nil
}

func (c *memCore) SetAll(ctx context.Context, nodes []NodeInfo) error {
	if err := validateNodes(nodes); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commit(ctx, nodes)
}

func (c *memCore) Upsert(ctx context.Context, node NodeInfo) error {
	if err := node.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if owner, ok := c.byAddr[node.Address]; ok && owner != node.ID {
		return &InvalidNodeError{Reason: fmt.Sprintf("duplicate node address: %s", node.Address)}
	}

	next := c.snapshotLocked()
	if _, ok := c.byID[node.ID]; ok {
		for i := range next {
			if next[i].ID == node.ID {
				next[i] = node
				break
			}
		}
	} else {
		next = append(next, node)
	}
	return c.commit(ctx, next)
}

func (c *memCore) Remove(ctx context.Context, id uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byID[id]; !ok {
		return false, nil
	}
	next := make([]NodeInfo, 0, len(c.order)-1)
	for _, node := range c.snapshotLocked() {
		if node.ID != id {
			next = append(next, node)
		}
	}
	if err := c.commit(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

func (c *memCore) Version(_ context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version, nil
}

func (c *memCore) SetIfVersion(ctx context.Context, nodes []NodeInfo, expected uint64) (bool, error) {
	if err := validateNodes(nodes); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.version != expected {
		return false, fmt.Errorf("expected version %d, have %d: %w", expected, c.version, ErrVersionConflict)
	}
	if err := c.commit(ctx, nodes); err != nil {
		return false, err
	}
	return true, nil
}

// InMemoryNodeStore keeps records in process memory only. Used by tests and
// ephemeral clients.
type InMemoryNodeStore struct {
	*memCore
}

var _ NodeStore = (*InMemoryNodeStore)(nil)

func NewInMemoryNodeStore() *InMemoryNodeStore {
	return &InMemoryNodeStore{memCore: newMemCore(nil)}
}
