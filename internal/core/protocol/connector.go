package protocol

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"

	"github.com/veldtdb/go-veldt/internal/core/cluster"
	"github.com/veldtdb/go-veldt/internal/core/observability/log"
)

// LeaderTracker holds the best-known leader address and a non-owning
// reference to the active session. The reference is shared across reconnect
// attempts and outlives any one connection: a session binds itself on
// connect and releases itself on Close, so a cleared reference means "no
// active leader connection", never an error.
type LeaderTracker struct {
	mu         sync.Mutex
	leaderAddr string
	session    *Protocol
	generation uint64
}

// LastKnownLeader returns the address of the node most recently believed to
// be leader, or "" if none is known yet.
func (t *LeaderTracker) LastKnownLeader() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leaderAddr
}

// ActiveSession returns the currently bound session, or nil when the last
// one was closed.
func (t *LeaderTracker) ActiveSession() *Protocol {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

// Generation counts session bindings. It only ever grows.
func (t *LeaderTracker) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation
}

func (t *LeaderTracker) setLeader(addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaderAddr = addr
}

func (t *LeaderTracker) bind(p *Protocol) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session = p
	t.generation++
}

// release clears the session reference, but only if p is still the bound
// session. Races between two simultaneously-succeeding connects resolve
// last-write-wins.
func (t *LeaderTracker) release(p *Protocol) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == p {
		t.session = nil
	}
}

// Connector produces live sessions pointed at the current leader, hiding
// topology churn from the caller. It consults the LeaderTracker's cached
// leader first and falls back to the node store's member list, re-read on
// every pass, dialing candidates under the configured retry/backoff policy.
type Connector struct {
	clientID uint64
	store    cluster.NodeStore
	config   Config
	tracker  *LeaderTracker
	clock    clock.Clock
	log      log.Log
}

func NewConnector(clientID uint64, store cluster.NodeStore, config Config, logger log.Log) *Connector {
	if !config.built {
		config = config.WithDefaults()
	}
	return &Connector{
		clientID: clientID,
		store:    store,
		config:   config,
		tracker:  &LeaderTracker{},
		clock:    clock.New(),
		log:      logger.With(log.String("component", "connector"), log.Uint64("client_id", clientID)),
	}
}

// Tracker exposes the leader-tracking state shared by all connect attempts
// made through this connector.
func (c *Connector) Tracker() *LeaderTracker {
	return c.tracker
}

// Connect establishes a session with the current cluster leader.
//
// It sweeps the candidate list (last-known leader first, then the store's
// members in insertion order), applying an exponential backoff between full
// passes: starting at the backoff factor, doubling per pass, capped, with
// none before the first pass. It stops at the retry limit or when ctx is
// cancelled, whichever comes first.
func (c *Connector) Connect(ctx context.Context) (*Protocol, error) {
	if c.config.permitShared {
		if p := c.tracker.ActiveSession(); p != nil {
			if p.LastError() == nil {
				c.log.Debug("Reusing shared leader session", log.String("session", p.ID()))
				return p, nil
			}
			// Known-bad session: discard it and fall through to a redial.
			c.log.Debug("Dropping broken shared session", log.String("session", p.ID()), log.Error(p.LastError()))
			_ = p.Close()
		}
	}

	backoff := c.config.backoffFactor
	var passes uint
	var lastErrs error

	for pass := uint(0); c.config.retryLimit == 0 || pass < c.config.retryLimit; pass++ {
		if pass > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("connect aborted: %w", ctx.Err())
			case <-c.clock.After(backoff):
			}
			backoff *= 2
			if backoff > c.config.backoffCap {
				backoff = c.config.backoffCap
			}
		}

		proto, errs := c.connectPass(ctx)
		if proto != nil {
			return proto, nil
		}
		lastErrs = errs
		passes = pass + 1

		if ctx.Err() != nil {
			return nil, fmt.Errorf("connect aborted: %w", ctx.Err())
		}
		c.log.Debug("Connect pass failed", log.Uint64("pass", uint64(passes)), log.Error(errs))
	}

	c.log.Warn("Leader connection retries exhausted", log.Uint64("passes", uint64(passes)), log.Error(lastErrs))
	return nil, &ExhaustedError{Passes: passes, Err: lastErrs}
}

// connectPass makes one full sweep over the candidate addresses. The
// last-known leader is tried first, alone; the remaining members are then
// attempted concurrently, bounded by the configured limit. The first success
// wins and aborts the rest of the sweep.
func (c *Connector) connectPass(ctx context.Context) (*Protocol, error) {
	leader := c.tracker.LastKnownLeader()
	var errs *multierror.Error

	if leader != "" {
		proto, err := c.attempt(ctx, leader)
		if proto != nil {
			c.adopt(proto)
			return proto, nil
		}
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", leader, err))
		if ctx.Err() != nil {
			return nil, errs.ErrorOrNil()
		}
	}

	nodes, err := c.store.GetAll(ctx)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("read node store: %w", err))
		return nil, errs.ErrorOrNil()
	}

	candidates := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if node.Address != leader {
			candidates = append(candidates, node.Address)
		}
	}
	if len(candidates) == 0 {
		if errs.ErrorOrNil() == nil {
			errs = multierror.Append(errs, errNoMembers)
		}
		return nil, errs.ErrorOrNil()
	}

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		addr  string
		proto *Protocol
		err   error
	}

	sem := semaphore.NewWeighted(c.config.concurrentLeaderConns)
	results := make(chan outcome, len(candidates))

	// Launch in a separate goroutine so results are collected while the
	// sweep is still acquiring slots: the first success cancels pctx, which
	// fails further Acquires and aborts in-flight dials instead of letting
	// the whole candidate list be dialed first.
	launchDone := make(chan int, 1)
	go func() {
		launched := 0
		for _, addr := range candidates {
			if err := sem.Acquire(pctx, 1); err != nil {
				break
			}
			launched++
			go func(addr string) {
				defer sem.Release(1)
				proto, err := c.attempt(pctx, addr)
				results <- outcome{addr: addr, proto: proto, err: err}
			}(addr)
		}
		launchDone <- launched
	}()

	var winner *Protocol
	launched, collected := -1, 0
	for launched < 0 || collected < launched {
		select {
		case n := <-launchDone:
			launched = n
		case out := <-results:
			collected++
			if out.proto != nil {
				if winner == nil {
					winner = out.proto
					cancel()
				} else {
					_ = out.proto.Close()
				}
				continue
			}
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", out.addr, out.err))
		}
	}
	if winner != nil {
		c.adopt(winner)
		return winner, nil
	}
	return nil, errs.ErrorOrNil()
}

// attempt dials one candidate within the per-attempt budget. On success the
// connection is wrapped in a session; the tracker is only updated once the
// session is adopted as the pass winner.
func (c *Connector) attempt(ctx context.Context, addr string) (*Protocol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	actx, cancel := context.WithTimeout(ctx, c.config.attemptTimeout)
	defer cancel()
	dctx, dcancel := context.WithTimeout(actx, c.config.dialTimeout)
	defer dcancel()

	conn, err := c.config.dial(dctx, addr)
	if err != nil {
		return nil, err
	}
	return newProtocol(conn, addr, c.tracker, c.log), nil
}

// adopt points the tracker at the session that won the pass.
func (c *Connector) adopt(proto *Protocol) {
	c.tracker.setLeader(proto.Addr())
	c.tracker.bind(proto)
	c.log.Debug("Connected", log.String("addr", proto.Addr()), log.String("session", proto.ID()))
}
