// Package session defines the port to the automated browser engine that
// produces clearance sessions. The core never talks to a browser directly;
// it consumes these interfaces.
package session

import "context"

// Engine opens browser sessions.
type Engine interface {
	Open(ctx context.Context, cfg Config) (Session, error)
	Close() error
}

// Session is a single live browser page. A session is owned exclusively by
// whichever component currently holds it and is never used concurrently.
type Session interface {
	ID() string
	Navigate(ctx context.Context, url string) error
	Cookies(ctx context.Context) ([]Cookie, error)
	Title(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	RunScript(ctx context.Context, src string) (string, error)
	Click(ctx context.Context, selector string) error
	Close() error
}

// Cookie is a single browser cookie. Order within a slice follows the
// engine's reporting order.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Config configures a new session. Proxy is the channel identity; empty
// means the direct network path.
type Config struct {
	Proxy     string
	Headless  bool
	UserAgent string
}

// Channel returns the normalized channel identity for cache and pool
// scoping.
func (c Config) Channel() string {
	if c.Proxy == "" {
		return "direct"
	}
	return c.Proxy
}
