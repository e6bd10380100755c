package bindings

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/veldtdb/go-veldt/internal/core/observability/log"
	"github.com/veldtdb/go-veldt/internal/core/protocol"
)

// Node is the handle to one consensus engine instance. It is created
// not-running with an id, an address and a data directory, configured
// through setters that are only valid before Start, and torn down by Close
// or Destroy on every exit path.
type Node struct {
	engine  Engine
	id      uint64
	address string
	dataDir string

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	running       bool
	closed        bool
	connectHandle uint64

	log log.Log
}

// GenerateNodeID derives a stable node id from an address.
func GenerateNodeID(address string) uint64 {
	return xxhash.Sum64String(address)
}

func checkNul(value, what string) error {
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("%w: %s", ErrEmbeddedNul, what)
	}
	return nil
}

// NewNode creates an engine handle through factory. On any creation error no
// native resource is left allocated: a partially created engine returned
// alongside an error is destroyed here.
func NewNode(factory EngineFactory, id uint64, address, dataDir string, logger log.Log) (*Node, error) {
	if err := checkNul(address, "address"); err != nil {
		return nil, err
	}
	if err := checkNul(dataDir, "data directory"); err != nil {
		return nil, err
	}

	engine, err := factory(id, address, dataDir)
	if err != nil {
		if engine != nil {
			_ = engine.Destroy()
		}
		return nil, fmt.Errorf("%w: %v", ErrNodeCreation, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		engine:  engine,
		id:      id,
		address: address,
		dataDir: dataDir,
		ctx:     ctx,
		cancel:  cancel,
		log:     logger.With(log.String("component", "node"), log.Uint64("node_id", id)),
	}
	n.log.Debug("Node created", log.String("address", address), log.String("dir", dataDir))
	return n, nil
}

func (n *Node) ID() uint64 {
	return n.id
}

func (n *Node) Address() string {
	return n.address
}

// configure guards an option setter: the node must be neither running nor
// closed when it is applied.
func (n *Node) configure(apply func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return fmt.Errorf("%w: %w", ErrConfiguration, ErrNodeClosed)
	}
	if n.running {
		return fmt.Errorf("%w: %w", ErrConfiguration, ErrNodeRunning)
	}
	if err := apply(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return nil
}

func (n *Node) SetBindAddress(address string) error {
	if err := checkNul(address, "bind address"); err != nil {
		return err
	}
	return n.configure(func() error { return n.engine.SetBindAddress(address) })
}

func (n *Node) BindAddress() (string, error) {
	address, err := n.engine.BindAddress()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return address, nil
}

func (n *Node) SetNetworkLatency(latency time.Duration) error {
	return n.configure(func() error { return n.engine.SetNetworkLatency(latency) })
}

func (n *Node) SetSnapshotParams(params SnapshotParams) error {
	if !params.Strategy.Valid() {
		return fmt.Errorf("%w: invalid trailing strategy %d", ErrConfiguration, int(params.Strategy))
	}
	return n.configure(func() error { return n.engine.SetSnapshotParams(params) })
}

func (n *Node) SetFailureDomain(code uint64) error {
	return n.configure(func() error { return n.engine.SetFailureDomain(code) })
}

func (n *Node) SetBusyTimeout(timeout time.Duration) error {
	return n.configure(func() error { return n.engine.SetBusyTimeout(timeout) })
}

func (n *Node) SetBlockSize(size int) error {
	return n.configure(func() error { return n.engine.SetBlockSize(size) })
}

func (n *Node) SetAutoRecovery(enabled bool) error {
	return n.configure(func() error { return n.engine.SetAutoRecovery(enabled) })
}

// SetDialFunc registers dial in the process-wide connect registry, paired
// with this node's cancellation context, and hands the engine the resulting
// opaque handle. The registry entry is removed again if the engine rejects
// the handle, and on node teardown.
func (n *Node) SetDialFunc(dial protocol.DialFunc) error {
	handle := RegisterConnectFunc(n.ctx, dial)
	err := n.configure(func() error { return n.engine.SetConnectFunc(handle) })
	if err != nil {
		DeregisterConnectFunc(handle)
		return err
	}

	n.mu.Lock()
	if n.connectHandle != 0 {
		DeregisterConnectFunc(n.connectHandle)
	}
	n.connectHandle = handle
	n.mu.Unlock()
	return nil
}

func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return fmt.Errorf("%w: %w", ErrStart, ErrNodeClosed)
	}
	if n.running {
		return fmt.Errorf("%w: %w", ErrStart, ErrNodeRunning)
	}
	if err := n.engine.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrStart, err)
	}
	n.running = true
	n.log.Info("Node started", log.String("address", n.address))
	return nil
}

func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stopLocked()
}

func (n *Node) stopLocked() error {
	if !n.running {
		return nil
	}
	if err := n.engine.Stop(); err != nil {
		return fmt.Errorf("%w: %w", ErrStop, err)
	}
	n.running = false
	n.log.Info("Node stopped")
	return nil
}

// Close signals cancellation to any in-flight dial attempts made on this
// node's behalf, then stops the engine.
func (n *Node) Close() error {
	n.cancel()
	return n.Stop()
}

// Destroy always stops and releases the handle. It is idempotent and safe on
// every exit path.
func (n *Node) Destroy() error {
	n.cancel()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true

	if n.connectHandle != 0 {
		DeregisterConnectFunc(n.connectHandle)
		n.connectHandle = 0
	}

	stopErr := n.stopLocked()
	if err := n.engine.Destroy(); err != nil {
		return fmt.Errorf("%w: %w", ErrStop, err)
	}
	n.log.Debug("Node destroyed")
	return stopErr
}

// DescribeLastEntry reports the index and term of the engine's last
// persisted log entry.
func (n *Node) DescribeLastEntry() (index uint64, term uint64, err error) {
	index, term, err = n.engine.DescribeLastEntry()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return index, term, nil
}
