package bindings

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/veldtdb/go-veldt/internal/core/protocol"
)

// ErrNoConnection is reported when the engine asks for an outbound
// connection and none can be established.
var ErrNoConnection = errors.New("no connection could be established")

// connectDialTimeout bounds a single engine-initiated dial.
const connectDialTimeout = 5 * time.Second

type connectEntry struct {
	dial protocol.DialFunc
	ctx  context.Context
}

// The connect registry maps small integer handles to registered dial
// functions plus the owning node's cancellation context. Only the integer
// handle crosses the engine boundary; entries are removed on node teardown.
var (
	connectMu       sync.Mutex
	connectRegistry = make(map[uint64]connectEntry)
	connectIndex    uint64 = 100
)

// RegisterConnectFunc stores dial under a fresh handle, paired with the
// context whose cancellation the dial must honor.
func RegisterConnectFunc(ctx context.Context, dial protocol.DialFunc) uint64 {
	connectMu.Lock()
	defer connectMu.Unlock()
	connectIndex++
	handle := connectIndex
	connectRegistry[handle] = connectEntry{dial: dial, ctx: ctx}
	return handle
}

// DeregisterConnectFunc removes the entry for handle, if any.
func DeregisterConnectFunc(handle uint64) {
	connectMu.Lock()
	defer connectMu.Unlock()
	delete(connectRegistry, handle)
}

// LookupConnectFunc resolves a handle back to its registered dial function.
func LookupConnectFunc(handle uint64) (protocol.DialFunc, context.Context, bool) {
	connectMu.Lock()
	defer connectMu.Unlock()
	entry, ok := connectRegistry[handle]
	return entry.dial, entry.ctx, ok
}

// ConnectTo opens an outbound connection on behalf of the engine, resolving
// the dial function registered under handle. The registered owner's context
// is honored, so closing the owning node aborts in-flight dials. The
// returned file carries a duplicated descriptor the engine takes ownership
// of.
func ConnectTo(handle uint64, address string) (*os.File, error) {
	dial, ownerCtx, ok := LookupConnectFunc(handle)
	if !ok {
		return nil, ErrNoConnection
	}

	ctx, cancel := context.WithTimeout(ownerCtx, connectDialTimeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrNoConnection, err)
	}

	conn, err := dial(ctx, address)
	if err != nil {
		return nil, errors.Join(ErrNoConnection, err)
	}
	defer conn.Close()

	file, err := conn.File()
	if err != nil {
		return nil, errors.Join(ErrNoConnection, err)
	}
	return file, nil
}
