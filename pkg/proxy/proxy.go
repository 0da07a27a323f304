// Package proxy parses operator-supplied proxy lists and hands out
// addresses round-robin.
package proxy

import (
	"strings"
	"sync"
)

// Normalize converts a single proxy line into a dialable address.
// Accepted forms: host:port, user:pass@host:port, or any scheme://...
// form, which is passed through untouched. Blank lines and comments
// return "".
func Normalize(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	if strings.Contains(line, "://") {
		return line
	}
	return "http://" + line
}

// Parse splits a newline-separated proxy list into normalized addresses,
// dropping blanks and comments.
func Parse(list string) []string {
	var out []string
	for _, line := range strings.Split(list, "\n") {
		if p := Normalize(line); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Rotator hands out proxies round-robin. The zero value is unusable; use
// NewRotator.
type Rotator struct {
	mu      sync.Mutex
	proxies []string
	next    int
}

// NewRotator builds a rotator from a newline-separated proxy list.
func NewRotator(list string) *Rotator {
	return &Rotator{proxies: Parse(list)}
}

// Next returns the next proxy in rotation, or "" when the list is empty.
func (r *Rotator) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.proxies) == 0 {
		return ""
	}
	p := r.proxies[r.next%len(r.proxies)]
	r.next++
	return p
}

// Len returns the number of configured proxies.
func (r *Rotator) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proxies)
}

// Reload replaces the proxy list, resetting rotation.
func (r *Rotator) Reload(list string) {
	parsed := Parse(list)
	r.mu.Lock()
	r.proxies = parsed
	r.next = 0
	r.mu.Unlock()
}
