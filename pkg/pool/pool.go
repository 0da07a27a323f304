// Package pool manages a bounded collection of pre-warmed browser sessions.
package pool

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/odvcencio/gatepass/pkg/session"
)

// ErrShutdown indicates the pool no longer accepts acquisitions.
var ErrShutdown = errors.New("pool: shut down")

// Config configures a session pool. The pool only holds direct-channel
// sessions; proxied sessions are created and closed per request by the
// caller.
type Config struct {
	// Capacity is the target number of idle sessions.
	Capacity int

	// Headless and UserAgent are applied to every pooled session.
	Headless  bool
	UserAgent string

	// NeutralURL is where a session is parked before being returned to the
	// pool. Defaults to about:blank.
	NeutralURL string

	// Logger receives replenishment diagnostics. Defaults to stdout.
	Logger *log.Logger
}

// Pool owns idle sessions and replenishes consumed capacity in the
// background. The mutex guards only in-memory bookkeeping; session creation
// and teardown always run unlocked.
type Pool struct {
	engine session.Engine
	cfg    Config
	logger *log.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	idle     []session.Session // front = next to hand out
	creating int
	down     bool

	created atomic.Int64
	reused  atomic.Int64
	failed  atomic.Int64
}

// Stats is a point-in-time snapshot of pool state.
type Stats struct {
	Available int   `json:"available"`
	Creating  int   `json:"creating"`
	Capacity  int   `json:"capacity"`
	Created   int64 `json:"created"`
	Reused    int64 `json:"reused"`
	Failed    int64 `json:"failed"`
}

// New creates a pool backed by the given engine. The pool starts empty;
// call Warmup to pre-build sessions.
func New(engine session.Engine, cfg Config) *Pool {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 2
	}
	if cfg.NeutralURL == "" {
		cfg.NeutralURL = "about:blank"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[pool] ", log.LstdFlags)
	}
	p := &Pool{
		engine: engine,
		cfg:    cfg,
		logger: logger,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Warmup synchronously creates up to n sessions, bounded by capacity.
// Creation failures are counted and do not abort the batch. Returns the
// number of sessions actually added.
func (p *Pool) Warmup(ctx context.Context, n int) int {
	added := 0
	for i := 0; i < n; i++ {
		p.mu.Lock()
		if p.down || len(p.idle)+p.creating >= p.cfg.Capacity {
			p.mu.Unlock()
			break
		}
		p.creating++
		p.mu.Unlock()

		s, err := p.create(ctx)

		p.mu.Lock()
		p.creating--
		if err != nil {
			p.mu.Unlock()
			p.logger.Printf("warmup: session creation failed: %v", err)
			continue
		}
		if p.down {
			p.mu.Unlock()
			s.Close()
			continue
		}
		p.idle = append(p.idle, s)
		added++
		p.cond.Broadcast()
		p.mu.Unlock()
	}
	return added
}

// Acquire hands out an idle session, waiting up to timeout for one to
// appear. When the wait expires, it falls back to a synchronous creation so
// the caller is never denied a session solely because the pool is
// exhausted. A timeout of zero skips the wait entirely.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (session.Session, error) {
	p.mu.Lock()
	if p.down {
		p.mu.Unlock()
		return nil, ErrShutdown
	}
	if s := p.popLocked(); s != nil {
		p.maybeReplenishLocked()
		p.mu.Unlock()
		p.reused.Add(1)
		return s, nil
	}
	p.maybeReplenishLocked()

	if timeout > 0 {
		deadline := time.Now().Add(timeout)
		wake := time.AfterFunc(timeout, p.cond.Broadcast)
		stop := context.AfterFunc(ctx, p.cond.Broadcast)
		for len(p.idle) == 0 && !p.down && ctx.Err() == nil && time.Now().Before(deadline) {
			p.cond.Wait()
		}
		wake.Stop()
		stop()

		if p.down {
			p.mu.Unlock()
			return nil, ErrShutdown
		}
		if err := ctx.Err(); err != nil {
			p.mu.Unlock()
			return nil, err
		}
		if s := p.popLocked(); s != nil {
			p.mu.Unlock()
			p.reused.Add(1)
			return s, nil
		}
	}
	p.mu.Unlock()

	// Synchronous fallback, bypassing the pool. This may transiently push
	// live sessions past capacity.
	return p.create(ctx)
}

// Release parks the session on a neutral page and returns it to the pool
// when capacity allows; otherwise the session is closed and capacity is
// replenished asynchronously. Proxied sessions must not be released here --
// their configuration cannot be reused across channels, so callers close
// them directly.
func (p *Pool) Release(ctx context.Context, s session.Session) {
	if s == nil {
		return
	}
	navErr := s.Navigate(ctx, p.cfg.NeutralURL)

	p.mu.Lock()
	// In-flight creations are ignored here so a returned session can reach a
	// waiter; a replenish that lands on a full pool drops its session.
	if navErr != nil || p.down || len(p.idle) >= p.cfg.Capacity {
		p.maybeReplenishLocked()
		p.mu.Unlock()
		s.Close()
		return
	}
	p.idle = append(p.idle, s)
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Discard unconditionally closes the session and triggers asynchronous
// replenishment.
func (p *Pool) Discard(s session.Session) {
	if s != nil {
		s.Close()
	}
	p.mu.Lock()
	p.maybeReplenishLocked()
	p.mu.Unlock()
}

// Shutdown wakes all waiters and closes every idle session. Subsequent
// Acquire calls fail fast with ErrShutdown.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.down {
		p.mu.Unlock()
		return
	}
	p.down = true
	idle := p.idle
	p.idle = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
}

// Stats returns a snapshot of pool state and cumulative counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	available := len(p.idle)
	creating := p.creating
	p.mu.Unlock()
	return Stats{
		Available: available,
		Creating:  creating,
		Capacity:  p.cfg.Capacity,
		Created:   p.created.Load(),
		Reused:    p.reused.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) popLocked() session.Session {
	if len(p.idle) == 0 {
		return nil
	}
	s := p.idle[0]
	p.idle = p.idle[1:]
	return s
}

// maybeReplenishLocked schedules just enough background creations to bring
// idle+creating back to capacity. Callers hold p.mu.
func (p *Pool) maybeReplenishLocked() {
	if p.down {
		return
	}
	need := p.cfg.Capacity - len(p.idle) - p.creating
	for i := 0; i < need; i++ {
		p.creating++
		go p.replenish()
	}
}

// replenish builds one session off the caller's path. Failures are counted
// and not retried; the next Acquire re-triggers replenishment.
func (p *Pool) replenish() {
	s, err := p.create(context.Background())

	p.mu.Lock()
	p.creating--
	if err != nil {
		p.mu.Unlock()
		p.logger.Printf("replenish: session creation failed: %v", err)
		return
	}
	if p.down || len(p.idle) >= p.cfg.Capacity {
		p.mu.Unlock()
		s.Close()
		return
	}
	p.idle = append(p.idle, s)
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *Pool) create(ctx context.Context) (session.Session, error) {
	s, err := p.engine.Open(ctx, session.Config{
		Headless:  p.cfg.Headless,
		UserAgent: p.cfg.UserAgent,
	})
	if err != nil {
		p.failed.Add(1)
		metricCreateFailures.Inc()
		return nil, err
	}
	p.created.Add(1)
	metricSessionsCreated.Inc()
	return s, nil
}
