// Package bindings manages the opaque consensus engine node handle: its
// lifecycle, its pre-start configuration, and the process-wide registry
// through which the engine resolves a registered dial function by an opaque
// integer handle.
package bindings

import (
	"fmt"
	"time"
)

// TrailingStrategy selects how the engine computes the number of log entries
// kept behind a snapshot.
type TrailingStrategy int

const (
	TrailingStatic TrailingStrategy = iota
	TrailingDynamic
)

func (s TrailingStrategy) Valid() bool {
	switch s {
	case TrailingStatic, TrailingDynamic:
		return true
	default:
		return false
	}
}

func (s TrailingStrategy) String() string {
	switch s {
	case TrailingStatic:
		return "static"
	case TrailingDynamic:
		return "dynamic"
	default:
		return fmt.Sprintf("unknown strategy %d", int(s))
	}
}

// SnapshotParams configures when the engine takes snapshots and how many
// trailing log entries it retains.
type SnapshotParams struct {
	Threshold uint64
	Trailing  uint64
	Strategy  TrailingStrategy
}

// Engine is the contract the consensus engine implementation must satisfy.
// The engine itself is out of scope here: the embedding system supplies one
// and the Node handle drives it.
//
// Option setters are only valid before Start. SetConnectFunc receives the
// opaque handle under which a dial function was registered in this process's
// connect registry; the engine resolves it through ConnectTo whenever it
// needs an outbound connection to a peer.
type Engine interface {
	Start() error
	Stop() error
	Destroy() error

	SetBindAddress(address string) error
	BindAddress() (string, error)
	SetNetworkLatency(latency time.Duration) error
	SetSnapshotParams(params SnapshotParams) error
	SetFailureDomain(code uint64) error
	SetBusyTimeout(timeout time.Duration) error
	SetBlockSize(size int) error
	SetAutoRecovery(enabled bool) error
	SetConnectFunc(handle uint64) error

	DescribeLastEntry() (index uint64, term uint64, err error)
}

// EngineFactory creates an engine handle for a node. On error any partially
// created handle must already be released by the factory.
type EngineFactory func(id uint64, address string, dataDir string) (Engine, error)
