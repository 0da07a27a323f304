// Package orchestrator admits clearance requests under a concurrency
// limit, drives the pool and solver, and caches results.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/odvcencio/gatepass/pkg/cache"
	"github.com/odvcencio/gatepass/pkg/pool"
	"github.com/odvcencio/gatepass/pkg/session"
	"github.com/odvcencio/gatepass/pkg/solver"
)

// RetriesExhaustedError is returned when every attempt for a request
// failed. It wraps the last observed failure.
type RetriesExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("clearance failed after %d attempt(s): %v", e.Attempts, e.LastErr)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.LastErr
}

// Config tunes the orchestrator.
type Config struct {
	// MaxConcurrent bounds how many requests may be past the queueing
	// phase at once.
	MaxConcurrent int64

	// PoolAcquireTimeout is how long a request waits for a pooled session
	// before the pool falls back to a synchronous creation.
	PoolAcquireTimeout time.Duration

	// BackoffMin and BackoffMax bound the randomized sleep between
	// attempts.
	BackoffMin time.Duration
	BackoffMax time.Duration

	// Headless and UserAgent configure ad hoc sessions opened for proxied
	// requests, which bypass the pool.
	Headless  bool
	UserAgent string

	// Logger receives per-request progress lines. Defaults to stdout.
	Logger *log.Logger
}

// Request describes one clearance request.
type Request struct {
	// ID identifies the request in logs. Assigned when empty.
	ID string

	// URL is the target page.
	URL string

	// Proxy is the channel identity; empty means the direct path.
	Proxy string

	// Timeout bounds each attempt's clearance wait.
	Timeout time.Duration

	// MaxRetries is how many additional attempts follow a failed first
	// one.
	MaxRetries int

	// SkipCache forces a fresh clearance even when a live one is cached.
	SkipCache bool
}

// Result is a successful clearance plus how it was obtained.
type Result struct {
	Clearance *solver.Clearance
	RequestID string
	FromCache bool
	Elapsed   time.Duration
	Attempts  int
}

// Stats is a point-in-time snapshot of orchestrator counters.
type Stats struct {
	Total        int64         `json:"total_requests"`
	Success      int64         `json:"success"`
	Failed       int64         `json:"failed"`
	CacheHits    int64         `json:"cache_hits"`
	QueueWaiting int64         `json:"queue_waiting"`
	Processing   int64         `json:"processing"`
	AvgTime      time.Duration `json:"avg_time_ns"`
}

// Orchestrator is the composition root for clearance requests.
type Orchestrator struct {
	engine session.Engine
	pool   *pool.Pool
	cache  *cache.Cache
	waiter *solver.Waiter
	sem    *semaphore.Weighted
	cfg    Config
	logger *log.Logger

	total        atomic.Int64
	success      atomic.Int64
	failed       atomic.Int64
	cacheHits    atomic.Int64
	totalLatency atomic.Int64 // nanoseconds, successes only
	queueWaiting atomic.Int64
	processing   atomic.Int64
}

// New wires the orchestrator. All collaborators are required except the
// cache, which may be nil to disable caching entirely.
func New(engine session.Engine, p *pool.Pool, c *cache.Cache, w *solver.Waiter, cfg Config) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.PoolAcquireTimeout <= 0 {
		cfg.PoolAcquireTimeout = 10 * time.Second
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 500 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin + 2*time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[orchestrator] ", log.LstdFlags)
	}
	return &Orchestrator{
		engine: engine,
		pool:   p,
		cache:  c,
		waiter: w,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
		cfg:    cfg,
		logger: logger,
	}
}

// Solve obtains a clearance for the request, serving from cache when
// possible. On every exit path the admission slot and any held session are
// released exactly once.
func (o *Orchestrator) Solve(ctx context.Context, req Request) (*Result, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()[:8]
	}
	if req.Timeout <= 0 {
		req.Timeout = 60 * time.Second
	}
	start := time.Now()
	o.total.Add(1)
	metricRequests.Inc()

	if !req.SkipCache && o.cache != nil {
		if clearance, ok := o.cache.Get(req.URL, req.Proxy); ok {
			o.cacheHits.Add(1)
			o.success.Add(1)
			metricCacheHits.Inc()
			o.logger.Printf("[%s] cache hit for %s", req.ID, req.URL)
			return &Result{
				Clearance: clearance,
				RequestID: req.ID,
				FromCache: true,
				Elapsed:   time.Since(start),
			}, nil
		}
	}

	o.queueWaiting.Add(1)
	metricQueueWaiting.Inc()
	err := o.sem.Acquire(ctx, 1)
	o.queueWaiting.Add(-1)
	metricQueueWaiting.Dec()
	if err != nil {
		o.failed.Add(1)
		metricFailures.Inc()
		return nil, err
	}
	defer o.sem.Release(1)

	o.processing.Add(1)
	metricProcessing.Inc()
	defer func() {
		o.processing.Add(-1)
		metricProcessing.Dec()
	}()

	var lastErr error
	for attempt := 0; attempt <= req.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := o.backoff(ctx); err != nil {
				o.failed.Add(1)
				metricFailures.Inc()
				return nil, err
			}
		}

		clearance, err := o.attempt(ctx, req, attempt)
		if err == nil {
			if o.cache != nil {
				o.cache.Set(req.URL, req.Proxy, clearance)
			}
			elapsed := time.Since(start)
			o.success.Add(1)
			o.totalLatency.Add(int64(elapsed))
			metricSuccesses.Inc()
			o.logger.Printf("[%s] cleared %s in %s (attempt %d)", req.ID, req.URL, elapsed.Round(time.Millisecond), attempt+1)
			return &Result{
				Clearance: clearance,
				RequestID: req.ID,
				Elapsed:   elapsed,
				Attempts:  attempt + 1,
			}, nil
		}

		lastErr = err
		if errors.Is(err, pool.ErrShutdown) || ctx.Err() != nil {
			// Terminal: no point in further attempts.
			o.failed.Add(1)
			metricFailures.Inc()
			return nil, err
		}
		o.logger.Printf("[%s] attempt %d failed: %v", req.ID, attempt+1, err)
	}

	o.failed.Add(1)
	metricFailures.Inc()
	return nil, &RetriesExhaustedError{Attempts: req.MaxRetries + 1, LastErr: lastErr}
}

// attempt runs one full acquire/navigate/wait cycle. The acquired session
// is released or discarded before return, exactly once.
func (o *Orchestrator) attempt(ctx context.Context, req Request, attempt int) (*solver.Clearance, error) {
	s, adHoc, err := o.checkout(ctx, req)
	if err != nil {
		return nil, err
	}

	// Navigation is best-effort: a partially loaded page may already carry
	// the cookie, so errors here do not abort the wait.
	if err := s.Navigate(ctx, req.URL); err != nil {
		o.logger.Printf("[%s] navigation error (continuing): %v", req.ID, err)
	}

	clearance, err := o.waiter.Wait(ctx, s, req.URL, req.Timeout)
	if err != nil {
		o.checkin(s, adHoc, false)
		return nil, err
	}
	o.checkin(s, adHoc, true)
	return clearance, nil
}

// checkout obtains a session for the request's channel. Direct requests go
// through the pool; proxied requests get a one-shot session because its
// network configuration is fixed at creation and cannot be reused across
// channels.
func (o *Orchestrator) checkout(ctx context.Context, req Request) (session.Session, bool, error) {
	if req.Proxy != "" {
		s, err := o.engine.Open(ctx, session.Config{
			Proxy:     req.Proxy,
			Headless:  o.cfg.Headless,
			UserAgent: o.cfg.UserAgent,
		})
		if err != nil {
			return nil, true, err
		}
		return s, true, nil
	}
	s, err := o.pool.Acquire(ctx, o.cfg.PoolAcquireTimeout)
	if err != nil {
		return nil, false, err
	}
	return s, false, nil
}

// checkin returns a session to wherever it came from. Clean pooled
// sessions go back to the pool; everything else is closed.
func (o *Orchestrator) checkin(s session.Session, adHoc, clean bool) {
	if adHoc {
		s.Close()
		return
	}
	if clean {
		// Park the session on a neutral page off the request path.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		o.pool.Release(releaseCtx, s)
		return
	}
	o.pool.Discard(s)
}

func (o *Orchestrator) backoff(ctx context.Context) error {
	span := int64(o.cfg.BackoffMax - o.cfg.BackoffMin)
	d := o.cfg.BackoffMin
	if span > 0 {
		d += time.Duration(rand.Int63n(span))
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stats returns a snapshot of request counters.
func (o *Orchestrator) Stats() Stats {
	success := o.success.Load()
	avg := time.Duration(0)
	if success > 0 {
		avg = time.Duration(o.totalLatency.Load() / success)
	}
	return Stats{
		Total:        o.total.Load(),
		Success:      success,
		Failed:       o.failed.Load(),
		CacheHits:    o.cacheHits.Load(),
		QueueWaiting: o.queueWaiting.Load(),
		Processing:   o.processing.Load(),
		AvgTime:      avg,
	}
}
