package protocol

import (
	"sync"

	"github.com/google/uuid"

	"github.com/veldtdb/go-veldt/internal/core/observability/log"
)

// Version is the wire-protocol version recorded on every session established
// by this client.
const Version uint64 = 1

// Protocol is the live per-connection session state. It owns exactly one
// Conn; its lifetime is one physical connection. I/O errors are recorded and
// propagated, never retried here — retry is the Connector's responsibility,
// applied by discarding the failed session and reconnecting.
type Protocol struct {
	id      string
	version uint64
	addr    string
	tracker *LeaderTracker
	log     log.Log

	mu      sync.Mutex
	conn    *Conn
	lastErr error
	closed  bool
}

func newProtocol(conn *Conn, addr string, tracker *LeaderTracker, logger log.Log) *Protocol {
	id := uuid.NewString()
	return &Protocol{
		id:      id,
		version: Version,
		addr:    addr,
		conn:    conn,
		tracker: tracker,
		log:     logger.With(log.String("session", id), log.String("addr", addr)),
	}
}

// ID is a unique session identifier, for log correlation.
func (p *Protocol) ID() string {
	return p.id
}

// Version is the wire-protocol version negotiated for this session.
func (p *Protocol) Version() uint64 {
	return p.version
}

// Addr is the peer address this session is connected to.
func (p *Protocol) Addr() string {
	return p.addr
}

// Conn exposes the owned transport connection.
func (p *Protocol) Conn() *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

// LastError reports the most recent network error observed on the session,
// or nil if the last I/O succeeded.
func (p *Protocol) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// The mutex is never held across socket I/O: Read and Write snapshot the
// conn under the lock, block unlocked, then re-acquire to record the result.
// Close can therefore always take the lock and close the conn, which aborts
// any in-flight Read or Write with a closed-connection error.

func (p *Protocol) Read(buf []byte) (int, error) {
	conn, err := p.ioConn()
	if err != nil {
		return 0, err
	}
	n, err := conn.Read(buf)
	p.record(err)
	return n, err
}

func (p *Protocol) Write(buf []byte) (int, error) {
	conn, err := p.ioConn()
	if err != nil {
		return 0, err
	}
	n, err := conn.Write(buf)
	p.record(err)
	return n, err
}

func (p *Protocol) ioConn() (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrSessionClosed
	}
	return p.conn, nil
}

// record stores err as the session's last network error, clearing it on
// successful I/O.
func (p *Protocol) record(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
	if err != nil {
		p.log.Warn("Session I/O failed", log.Error(err))
	}
}

// Close tears down the owned Conn and releases the leader tracker's
// reference to this session. It is idempotent.
func (p *Protocol) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conn := p.conn
	p.mu.Unlock()

	if p.tracker != nil {
		p.tracker.release(p)
	}
	p.log.Debug("Session closed")
	return conn.Close()
}
