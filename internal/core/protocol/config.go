package protocol

import "time"

// Config defaults applied by WithDefaults.
const (
	DefaultDialTimeout           = 5 * time.Second
	DefaultAttemptTimeout        = 15 * time.Second
	DefaultBackoffFactor         = 100 * time.Millisecond
	DefaultBackoffCap            = time.Second
	DefaultRetryLimit            = 10
	DefaultConcurrentLeaderConns = 10
)

// Config is the immutable policy object governing how the Connector dials
// the cluster. Construct it in two phases: chain With* setters for the
// options to override, then call WithDefaults to fill everything unset.
type Config struct {
	dial                  DialFunc
	dialTimeout           time.Duration
	attemptTimeout        time.Duration
	backoffFactor         time.Duration
	backoffCap            time.Duration
	retryLimit            uint
	retryLimitSet         bool
	concurrentLeaderConns int64
	permitShared          bool
	built                 bool
}

func NewConfig() Config {
	return Config{}
}

// WithDial sets the function used to open connections. The default routes
// unix: and path addresses over a unix-domain socket and everything else
// over TCP.
func (c Config) WithDial(dial DialFunc) Config {
	c.dial = dial
	return c
}

func (c Config) WithDialTimeout(timeout time.Duration) Config {
	c.dialTimeout = timeout
	return c
}

func (c Config) WithAttemptTimeout(timeout time.Duration) Config {
	c.attemptTimeout = timeout
	return c
}

func (c Config) WithBackoffFactor(factor time.Duration) Config {
	c.backoffFactor = factor
	return c
}

func (c Config) WithBackoffCap(d time.Duration) Config {
	c.backoffCap = d
	return c
}

// WithRetryLimit bounds the number of full passes over the candidate list.
// An explicit 0 retries until the context is cancelled.
func (c Config) WithRetryLimit(limit uint) Config {
	c.retryLimit = limit
	c.retryLimitSet = true
	return c
}

func (c Config) WithConcurrentLeaderConns(conns int64) Config {
	c.concurrentLeaderConns = conns
	return c
}

// WithPermitShared allows a single physical connection to be shared across
// multiple logical clients.
func (c Config) WithPermitShared(permit bool) Config {
	c.permitShared = permit
	return c
}

// WithDefaults fills every unset field and freezes the config.
func (c Config) WithDefaults() Config {
	if c.dial == nil {
		c.dial = Dial
	}
	if c.dialTimeout == 0 {
		c.dialTimeout = DefaultDialTimeout
	}
	if c.attemptTimeout == 0 {
		c.attemptTimeout = DefaultAttemptTimeout
	}
	if c.backoffFactor == 0 {
		c.backoffFactor = DefaultBackoffFactor
	}
	if c.backoffCap == 0 {
		c.backoffCap = DefaultBackoffCap
	}
	if !c.retryLimitSet {
		c.retryLimit = DefaultRetryLimit
		c.retryLimitSet = true
	}
	if c.concurrentLeaderConns == 0 {
		c.concurrentLeaderConns = DefaultConcurrentLeaderConns
	}
	c.built = true
	return c
}

func (c Config) DialTimeout() time.Duration    { return c.dialTimeout }
func (c Config) AttemptTimeout() time.Duration { return c.attemptTimeout }
func (c Config) BackoffFactor() time.Duration  { return c.backoffFactor }
func (c Config) BackoffCap() time.Duration     { return c.backoffCap }
func (c Config) RetryLimit() uint              { return c.retryLimit }
func (c Config) ConcurrentLeaderConns() int64  { return c.concurrentLeaderConns }
func (c Config) PermitShared() bool            { return c.permitShared }
