package client

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtdb/go-veldt/internal/core/cluster"
	"github.com/veldtdb/go-veldt/internal/core/protocol"
)

type pipeDialer struct {
	mu    sync.Mutex
	calls int
}

func (d *pipeDialer) dial(_ context.Context, _ string) (*protocol.Conn, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	c1, c2 := net.Pipe()
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := c2.Read(buf); err != nil {
				c2.Close()
				return
			}
		}
	}()
	return protocol.NewConn(c1), nil
}

func (d *pipeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func seededStore(t *testing.T) cluster.NodeStore {
	t.Helper()
	store := cluster.NewInMemoryNodeStore()
	require.NoError(t, store.SetAll(context.Background(), []cluster.NodeInfo{
		{ID: 1, Address: "127.0.0.1:9001", Role: cluster.Voter},
	}))
	return store
}

func TestFindLeader(t *testing.T) {
	dialer := &pipeDialer{}
	store := seededStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := FindLeader(ctx, store, WithDialFunc(dialer.dial))
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "127.0.0.1:9001", c.Leader())
	assert.Equal(t, protocol.Version, c.ProtocolVersion())
	assert.NotNil(t, c.Session())
}

func TestLeaderConnector_SharesSessionAcrossFinds(t *testing.T) {
	dialer := &pipeDialer{}
	store := seededStore(t)
	lc := NewLeaderConnector(store, WithDialFunc(dialer.dial))

	ctx := context.Background()
	first, err := lc.Find(ctx)
	require.NoError(t, err)
	second, err := lc.Find(ctx)
	require.NoError(t, err)

	assert.Same(t, first.Session(), second.Session())
	assert.Equal(t, 1, dialer.callCount())

	require.NoError(t, first.Close())

	third, err := lc.Find(ctx)
	require.NoError(t, err)
	defer third.Close()
	assert.NotSame(t, first.Session(), third.Session())
	assert.Equal(t, 2, dialer.callCount())
}

func TestClient_CloseIsSingleUse(t *testing.T) {
	dialer := &pipeDialer{}
	c, err := FindLeader(context.Background(), seededStore(t), WithDialFunc(dialer.dial))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Close(), ErrClientClosed)
}

func TestFindLeader_GivesUpAfterRetryLimit(t *testing.T) {
	dial := func(ctx context.Context, _ string) (*protocol.Conn, error) {
		return nil, context.DeadlineExceeded
	}

	_, err := FindLeader(context.Background(), seededStore(t),
		WithDialFunc(dial), WithRetryLimit(2))
	require.Error(t, err)

	var exhausted *protocol.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
}
