// Package client is the high-level SDK for connecting to the cluster leader.
package client

import (
	"context"
	"sync"

	"github.com/veldtdb/go-veldt/internal/core/cluster"
	"github.com/veldtdb/go-veldt/internal/core/observability/log"
	"github.com/veldtdb/go-veldt/internal/core/protocol"
)

// Option configures leader discovery.
type Option func(*options)

type options struct {
	dial                  protocol.DialFunc
	logger                log.Log
	concurrentLeaderConns int64
	retryLimit            uint
	retryLimitSet         bool
}

func defaultOptions() *options {
	return &options{
		logger: log.Nop(),
	}
}

// WithDialFunc overrides the function used to open connections to cluster
// nodes.
func WithDialFunc(dial protocol.DialFunc) Option {
	return func(o *options) {
		o.dial = dial
	}
}

// WithLogger routes the connection layer's logging through l.
func WithLogger(l log.Log) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithConcurrentLeaderConns bounds how many dial attempts may be in flight
// at once during leader discovery.
func WithConcurrentLeaderConns(n int64) Option {
	return func(o *options) {
		o.concurrentLeaderConns = n
	}
}

// WithRetryLimit bounds the number of full passes over the cluster members
// before FindLeader gives up.
func WithRetryLimit(limit uint) Option {
	return func(o *options) {
		o.retryLimit = limit
		o.retryLimitSet = true
	}
}

// LeaderConnector discovers and connects to the cluster leader, caching the
// best-known leader across calls.
type LeaderConnector struct {
	pc *protocol.Connector
}

// NewLeaderConnector builds a connector over the given node store. The
// returned connector shares one physical leader connection across Find
// calls.
func NewLeaderConnector(store cluster.NodeStore, opts ...Option) *LeaderConnector {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	config := protocol.NewConfig().WithPermitShared(true)
	if o.dial != nil {
		config = config.WithDial(o.dial)
	}
	if o.concurrentLeaderConns != 0 {
		config = config.WithConcurrentLeaderConns(o.concurrentLeaderConns)
	}
	if o.retryLimitSet {
		config = config.WithRetryLimit(o.retryLimit)
	}
	config = config.WithDefaults()

	return &LeaderConnector{
		pc: protocol.NewConnector(0, store, config, o.logger),
	}
}

// Find returns a Client connected to the current cluster leader, retrying
// with capped exponential backoff until the retry budget is exhausted or ctx
// is cancelled.
func (lc *LeaderConnector) Find(ctx context.Context) (*Client, error) {
	proto, err := lc.pc.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &Client{proto: proto}, nil
}

// FindLeader is a one-shot NewLeaderConnector plus Find.
func FindLeader(ctx context.Context, store cluster.NodeStore, opts ...Option) (*Client, error) {
	return NewLeaderConnector(store, opts...).Find(ctx)
}

// Client wraps one leader session. When the session is shared, use is
// serialized through the client.
type Client struct {
	mu     sync.Mutex
	proto  *protocol.Protocol
	closed bool
}

// Leader reports the address of the node this client is connected to.
func (c *Client) Leader() string {
	return c.proto.Addr()
}

// ProtocolVersion reports the wire-protocol version of the session.
func (c *Client) ProtocolVersion() uint64 {
	return c.proto.Version()
}

// Session exposes the underlying protocol session.
func (c *Client) Session() *protocol.Protocol {
	return c.proto
}

// Close releases the session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.closed = true
	return c.proto.Close()
}
