// Package chromedp adapts a headless Chrome instance to the session.Engine
// port using the chromedp CDP client.
package chromedp

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/odvcencio/gatepass/pkg/proxy"
	"github.com/odvcencio/gatepass/pkg/session"
)

// Options tunes the Chrome engine.
type Options struct {
	// ExecPath overrides the Chrome binary location. Empty uses chromedp's
	// lookup.
	ExecPath string

	// UserAgent is applied to sessions that do not set their own.
	UserAgent string
}

// Engine launches one Chrome process per session. Session configuration
// (proxy, headless) is fixed at process start, so sessions are never
// reconfigured, only closed.
type Engine struct {
	opts   Options
	closed atomic.Bool
}

// NewEngine creates a chromedp-backed session engine.
func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Open starts a browser and returns a live session on its first tab.
func (e *Engine) Open(ctx context.Context, cfg session.Config) (session.Session, error) {
	if e == nil || e.closed.Load() {
		return nil, session.ErrEngineUnavailable
	}

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if e.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(e.opts.ExecPath))
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = e.opts.UserAgent
	}
	if ua != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(ua))
	}
	if cfg.Proxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(proxy.Normalize(cfg.Proxy)))
	}

	// The browser outlives the Open call; it is torn down by Close, not by
	// the caller's context.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		id:          "sess-" + uuid.NewString()[:8],
		browserCtx:  browserCtx,
		cancelCtx:   browserCancel,
		cancelAlloc: allocCancel,
	}

	// Start the process eagerly so creation failures surface here rather
	// than on the first navigation.
	if err := s.run(ctx, network.Enable()); err != nil {
		s.teardown()
		return nil, session.NewCreationError(cfg.Channel(), err)
	}
	return s, nil
}

// Close marks the engine unavailable. Open sessions stay valid until
// individually closed.
func (e *Engine) Close() error {
	if e != nil {
		e.closed.Store(true)
	}
	return nil
}

type chromeSession struct {
	id          string
	browserCtx  context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
	closed      atomic.Bool
}

func (s *chromeSession) ID() string { return s.id }

// run executes CDP actions against the browser context while honoring the
// caller's cancellation and deadline.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.closed.Load() {
		return session.ErrSessionClosed
	}
	runCtx, cancel := context.WithCancel(s.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *chromeSession) Cookies(ctx context.Context) ([]session.Cookie, error) {
	var cookies []session.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		raw, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		cookies = make([]session.Cookie, 0, len(raw))
		for _, c := range raw {
			cookies = append(cookies, session.Cookie{Name: c.Name, Value: c.Value})
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return cookies, nil
}

func (s *chromeSession) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (s *chromeSession) RunScript(ctx context.Context, src string) (string, error) {
	var result string
	if err := s.run(ctx, chromedp.Evaluate(src, &result)); err != nil {
		return "", err
	}
	return strings.TrimSpace(result), nil
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (s *chromeSession) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	// Graceful browser shutdown first, then the allocator.
	err := chromedp.Cancel(s.browserCtx)
	s.teardown()
	return err
}

func (s *chromeSession) teardown() {
	s.cancelCtx()
	s.cancelAlloc()
}
