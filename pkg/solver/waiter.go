package solver

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/odvcencio/gatepass/pkg/session"
)

var (
	// ErrManualChallenge terminates an attempt when the page demands human
	// interaction. The orchestrator may retry with a fresh session.
	ErrManualChallenge = errors.New("solver: manual challenge detected")

	// ErrClearanceTimeout terminates an attempt that exceeded its deadline.
	ErrClearanceTimeout = errors.New("solver: clearance wait timed out")
)

// Clearance is the artifact proving a verification challenge was passed.
type Clearance struct {
	Token     string           `json:"token"`
	Cookies   []session.Cookie `json:"cookies"`
	UserAgent string           `json:"user_agent"`
	Target    string           `json:"target"`
	CreatedAt time.Time        `json:"created_at"`
}

// WaitConfig tunes the polling state machine.
type WaitConfig struct {
	// CookieName is the success token to watch for. Defaults to
	// cf_clearance.
	CookieName string

	// Interval is the base poll tick; Jitter is added uniformly at random
	// on top of it to avoid thundering-herd polling.
	Interval time.Duration
	Jitter   time.Duration

	// InteractionEvery bounds best-effort interaction attempts: the first
	// fires immediately, subsequent ones at most once per this duration.
	InteractionEvery time.Duration

	// InteractionSelectors are clicked, in order, until one succeeds.
	InteractionSelectors []string

	// Logger receives interaction outcomes. Defaults to stdout.
	Logger *log.Logger
}

// InteractionResult reports a best-effort interaction attempt. Failures
// never abort polling, but they are surfaced for observability.
type InteractionResult struct {
	Attempted bool
	Selector  string
	Err       error
}

// Waiter polls a session until the success cookie appears or a terminal
// state is reached.
type Waiter struct {
	cfg    WaitConfig
	logger *log.Logger
}

// NewWaiter builds a waiter, filling config defaults.
func NewWaiter(cfg WaitConfig) *Waiter {
	if cfg.CookieName == "" {
		cfg.CookieName = "cf_clearance"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 750 * time.Millisecond
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.InteractionEvery <= 0 {
		cfg.InteractionEvery = 4 * time.Second
	}
	if len(cfg.InteractionSelectors) == 0 {
		cfg.InteractionSelectors = []string{
			"#challenge-stage input[type=\"checkbox\"]",
			".cf-turnstile",
			"input[type=\"checkbox\"]",
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[solver] ", log.LstdFlags)
	}
	return &Waiter{cfg: cfg, logger: logger}
}

// Wait polls the session until the success cookie appears, a manual
// challenge is detected, the deadline passes, or ctx is cancelled.
// Transient read errors count as "no signal yet" and never abort the
// attempt.
func (w *Waiter) Wait(ctx context.Context, s session.Session, target string, deadline time.Duration) (*Clearance, error) {
	start := time.Now()
	var lastInteraction time.Time
	interacted := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Since(start) > deadline {
			return nil, ErrClearanceTimeout
		}

		cookies, _ := s.Cookies(ctx)
		if c := w.findClearance(ctx, s, target, cookies); c != nil {
			return c, nil
		}

		title, _ := s.Title(ctx)
		html, _ := s.HTML(ctx)
		switch Classify(title, target, html) {
		case StateAutoVerifying:
			// The check resolves on its own; keep polling.

		case StateManualChallenge:
			// A title change can race cookie propagation, so look once more
			// before giving up on this attempt.
			cookies, _ = s.Cookies(ctx)
			if c := w.findClearance(ctx, s, target, cookies); c != nil {
				return c, nil
			}
			return nil, ErrManualChallenge

		default:
			if len(cookies) == 0 && (!interacted || time.Since(lastInteraction) >= w.cfg.InteractionEvery) {
				res := w.tryInteract(ctx, s)
				if res.Attempted {
					interacted = true
					lastInteraction = time.Now()
					if res.Err != nil {
						w.logger.Printf("interaction on %q failed: %v", res.Selector, res.Err)
					} else {
						w.logger.Printf("interaction on %q succeeded", res.Selector)
					}
				}
			}
		}

		if err := w.sleep(ctx); err != nil {
			return nil, err
		}
	}
}

// findClearance scans cookies for the success token and assembles the
// artifact. The client identity read is best-effort.
func (w *Waiter) findClearance(ctx context.Context, s session.Session, target string, cookies []session.Cookie) *Clearance {
	for _, c := range cookies {
		if c.Name != w.cfg.CookieName {
			continue
		}
		ua, err := s.RunScript(ctx, "navigator.userAgent")
		if err != nil {
			w.logger.Printf("user agent read failed: %v", err)
		}
		return &Clearance{
			Token:     c.Value,
			Cookies:   cookies,
			UserAgent: ua,
			Target:    target,
			CreatedAt: time.Now(),
		}
	}
	return nil
}

// tryInteract clicks known interaction targets until one succeeds. Errors
// are reported, never propagated.
func (w *Waiter) tryInteract(ctx context.Context, s session.Session) InteractionResult {
	res := InteractionResult{Attempted: true}
	for _, sel := range w.cfg.InteractionSelectors {
		res.Selector = sel
		if err := s.Click(ctx, sel); err != nil {
			res.Err = err
			continue
		}
		res.Err = nil
		return res
	}
	return res
}

func (w *Waiter) sleep(ctx context.Context) error {
	d := w.cfg.Interval
	if w.cfg.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(w.cfg.Jitter)))
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
