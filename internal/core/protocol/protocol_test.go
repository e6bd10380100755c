package protocol

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtdb/go-veldt/internal/core/observability/log"
)

func newTestSession(t *testing.T, tracker *LeaderTracker) (*Protocol, net.Conn) {
	t.Helper()
	c1, c2 := net.Pipe()
	t.Cleanup(func() {
		c1.Close()
		c2.Close()
	})
	proto := newProtocol(NewConn(c1), "127.0.0.1:9001", tracker, log.Nop())
	return proto, c2
}

func TestProtocol_Identity(t *testing.T) {
	proto, _ := newTestSession(t, nil)

	assert.Equal(t, Version, proto.Version())
	assert.Equal(t, "127.0.0.1:9001", proto.Addr())
	assert.NotEmpty(t, proto.ID())
	assert.NotNil(t, proto.Conn())
	assert.NoError(t, proto.LastError())
}

func TestProtocol_RecordsAndClearsLastError(t *testing.T) {
	proto, peer := newTestSession(t, nil)

	// Peer gone: the write fails and the error is recorded.
	require.NoError(t, peer.Close())
	_, err := proto.Write([]byte("x"))
	require.Error(t, err)
	assert.Error(t, proto.LastError())
}

func TestProtocol_SuccessfulIOClearsError(t *testing.T) {
	proto, peer := newTestSession(t, nil)

	go func() {
		buf := make([]byte, 1)
		_, _ = peer.Read(buf)
	}()

	_, err := proto.Write([]byte("x"))
	require.NoError(t, err)
	assert.NoError(t, proto.LastError())
}

func TestProtocol_CloseReleasesTracker(t *testing.T) {
	tracker := &LeaderTracker{}
	proto, _ := newTestSession(t, tracker)
	tracker.bind(proto)

	require.Same(t, proto, tracker.ActiveSession())
	require.NoError(t, proto.Close())
	assert.Nil(t, tracker.ActiveSession())

	// Closing again is a no-op.
	assert.NoError(t, proto.Close())

	_, err := proto.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = proto.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestProtocol_CloseAbortsBlockedRead(t *testing.T) {
	proto, _ := newTestSession(t, nil)

	readErr := make(chan error, 1)
	go func() {
		_, err := proto.Read(make([]byte, 1))
		readErr <- err
	}()

	// Give the reader time to block on the silent peer.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, proto.Close())

	select {
	case err := <-readErr:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("close did not abort the blocked read")
	}
}

func TestLeaderTracker_ReleaseOnlyDropsOwnSession(t *testing.T) {
	tracker := &LeaderTracker{}
	first, _ := newTestSession(t, tracker)
	second, _ := newTestSession(t, tracker)

	tracker.bind(first)
	tracker.bind(second)
	assert.Equal(t, uint64(2), tracker.Generation())

	// A stale session closing does not unbind the live one.
	require.NoError(t, first.Close())
	assert.Same(t, second, tracker.ActiveSession())

	require.NoError(t, second.Close())
	assert.Nil(t, tracker.ActiveSession())
}
