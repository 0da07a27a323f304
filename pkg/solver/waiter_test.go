package solver

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/odvcencio/gatepass/pkg/session"
)

// frame is one observable page state. The scripted session advances to the
// next frame after each HTML read, mirroring one poll tick.
type frame struct {
	cookies []session.Cookie
	title   string
	html    string
}

type scriptedSession struct {
	frames   []frame
	idx      int
	clicks   []string
	clickErr error
}

func (s *scriptedSession) current() frame {
	if s.idx >= len(s.frames) {
		return s.frames[len(s.frames)-1]
	}
	return s.frames[s.idx]
}

func (s *scriptedSession) ID() string                                   { return "scripted" }
func (s *scriptedSession) Navigate(ctx context.Context, u string) error { return nil }

func (s *scriptedSession) Cookies(ctx context.Context) ([]session.Cookie, error) {
	return s.current().cookies, nil
}

func (s *scriptedSession) Title(ctx context.Context) (string, error) {
	return s.current().title, nil
}

func (s *scriptedSession) HTML(ctx context.Context) (string, error) {
	h := s.current().html
	if s.idx < len(s.frames)-1 {
		s.idx++
	}
	return h, nil
}

func (s *scriptedSession) RunScript(ctx context.Context, src string) (string, error) {
	return "Mozilla/5.0 test", nil
}

func (s *scriptedSession) Click(ctx context.Context, selector string) error {
	s.clicks = append(s.clicks, selector)
	return s.clickErr
}

func (s *scriptedSession) Close() error { return nil }

func testWaiter() *Waiter {
	return NewWaiter(WaitConfig{
		Interval: 2 * time.Millisecond,
		Logger:   log.New(io.Discard, "", 0),
	})
}

func clearanceCookies(token string) []session.Cookie {
	return []session.Cookie{
		{Name: "__cf_bm", Value: "bm"},
		{Name: "cf_clearance", Value: token},
	}
}

func TestWaitImmediateClearance(t *testing.T) {
	s := &scriptedSession{frames: []frame{
		{cookies: clearanceCookies("tok-1")},
	}}

	c, err := testWaiter().Wait(context.Background(), s, "https://example.com", time.Second)
	if err != nil {
		t.Fatalf("expected clearance, got %v", err)
	}
	if c.Token != "tok-1" {
		t.Errorf("expected token tok-1, got %q", c.Token)
	}
	if c.UserAgent != "Mozilla/5.0 test" {
		t.Errorf("expected user agent capture, got %q", c.UserAgent)
	}
	if c.Target != "https://example.com" {
		t.Errorf("expected target recorded, got %q", c.Target)
	}
	if len(c.Cookies) != 2 {
		t.Errorf("expected full cookie jar, got %+v", c.Cookies)
	}
}

func TestWaitPollsThroughAutoVerify(t *testing.T) {
	s := &scriptedSession{frames: []frame{
		{title: "Just a moment..."},
		{title: "Just a moment..."},
		{title: "Example", cookies: clearanceCookies("tok-2")},
	}}

	c, err := testWaiter().Wait(context.Background(), s, "https://example.com", time.Second)
	if err != nil {
		t.Fatalf("expected clearance, got %v", err)
	}
	if c.Token != "tok-2" {
		t.Errorf("expected token tok-2, got %q", c.Token)
	}
	// Auto-verifying pages resolve on their own; nothing should be clicked.
	if len(s.clicks) != 0 {
		t.Errorf("expected no interactions, got %v", s.clicks)
	}
}

func TestWaitManualChallenge(t *testing.T) {
	s := &scriptedSession{frames: []frame{
		{title: "Just a moment...", html: turnstileWidgetHTML},
		{title: "Just a moment...", html: turnstileWidgetHTML},
	}}

	_, err := testWaiter().Wait(context.Background(), s, "https://example.com", time.Second)
	if !errors.Is(err, ErrManualChallenge) {
		t.Fatalf("expected ErrManualChallenge, got %v", err)
	}
}

func TestWaitManualChallengeCookieRace(t *testing.T) {
	// The widget is still on screen but the cookie lands between the page
	// read and the re-check. The attempt must succeed, not error.
	s := &scriptedSession{frames: []frame{
		{title: "Just a moment...", html: turnstileWidgetHTML},
		{title: "Just a moment...", html: turnstileWidgetHTML, cookies: clearanceCookies("tok-3")},
	}}

	c, err := testWaiter().Wait(context.Background(), s, "https://example.com", time.Second)
	if err != nil {
		t.Fatalf("expected clearance from re-check, got %v", err)
	}
	if c.Token != "tok-3" {
		t.Errorf("expected token tok-3, got %q", c.Token)
	}
}

func TestWaitTimeout(t *testing.T) {
	s := &scriptedSession{frames: []frame{
		{title: "Example", html: plainPageHTML},
	}}

	_, err := testWaiter().Wait(context.Background(), s, "https://example.com", 30*time.Millisecond)
	if !errors.Is(err, ErrClearanceTimeout) {
		t.Fatalf("expected ErrClearanceTimeout, got %v", err)
	}
}

func TestWaitContextCancellation(t *testing.T) {
	s := &scriptedSession{frames: []frame{
		{title: "Just a moment..."},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := testWaiter().Wait(ctx, s, "https://example.com", time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaitInteractsOnUnknownState(t *testing.T) {
	s := &scriptedSession{frames: []frame{
		{title: "Example", html: plainPageHTML},
		{title: "Example", cookies: clearanceCookies("tok-4")},
	}}

	c, err := testWaiter().Wait(context.Background(), s, "https://example.com", time.Second)
	if err != nil {
		t.Fatalf("expected clearance, got %v", err)
	}
	if c.Token != "tok-4" {
		t.Errorf("expected token tok-4, got %q", c.Token)
	}
	if len(s.clicks) == 0 {
		t.Error("expected an interaction attempt on the unclassified page")
	}
}

func TestWaitInteractionThrottled(t *testing.T) {
	// A cookie-less unclassified page is the steady state mid-challenge;
	// repeated ticks inside one InteractionEvery window must not click
	// more than once.
	s := &scriptedSession{frames: []frame{
		{title: "Example", html: plainPageHTML},
	}}

	w := NewWaiter(WaitConfig{
		Interval:         2 * time.Millisecond,
		InteractionEvery: 500 * time.Millisecond,
		Logger:           log.New(io.Discard, "", 0),
	})

	_, err := w.Wait(context.Background(), s, "https://example.com", 60*time.Millisecond)
	if !errors.Is(err, ErrClearanceTimeout) {
		t.Fatalf("expected ErrClearanceTimeout, got %v", err)
	}
	if len(s.clicks) != 1 {
		t.Errorf("expected exactly one interaction within the throttle window, got %d", len(s.clicks))
	}
}

func TestWaitNoInteractionWhenCookiesPresent(t *testing.T) {
	// Interaction targets cookie-less pages; once any cookie exists the
	// challenge is progressing and clicking only risks disturbing it.
	s := &scriptedSession{frames: []frame{
		{cookies: []session.Cookie{{Name: "__cf_bm", Value: "bm"}}, title: "Example", html: plainPageHTML},
	}}

	_, err := testWaiter().Wait(context.Background(), s, "https://example.com", 30*time.Millisecond)
	if !errors.Is(err, ErrClearanceTimeout) {
		t.Fatalf("expected ErrClearanceTimeout, got %v", err)
	}
	if len(s.clicks) != 0 {
		t.Errorf("expected no interactions while cookies are present, got %v", s.clicks)
	}
}

func TestWaitIgnoresOtherCookies(t *testing.T) {
	s := &scriptedSession{frames: []frame{
		{cookies: []session.Cookie{{Name: "session_id", Value: "abc"}}, title: "Example", html: plainPageHTML},
	}}

	_, err := testWaiter().Wait(context.Background(), s, "https://example.com", 30*time.Millisecond)
	if !errors.Is(err, ErrClearanceTimeout) {
		t.Fatalf("expected timeout when only unrelated cookies exist, got %v", err)
	}
}

func TestWaiterDefaults(t *testing.T) {
	w := NewWaiter(WaitConfig{})
	if w.cfg.CookieName != "cf_clearance" {
		t.Errorf("expected default cookie name, got %q", w.cfg.CookieName)
	}
	if w.cfg.Interval != 750*time.Millisecond {
		t.Errorf("expected default interval, got %v", w.cfg.Interval)
	}
	if len(w.cfg.InteractionSelectors) == 0 {
		t.Error("expected default interaction selectors")
	}
}
