// Package solver drives a browser session until a verification challenge
// clears, classifying intermediate page states along the way.
package solver

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// State classifies what a challenge page is currently doing.
type State int

const (
	// StateUnknown means no challenge signal matched; the page may already
	// be past the challenge or still loading.
	StateUnknown State = iota

	// StateAutoVerifying means the page is running a time-based check that
	// resolves on its own; keep polling.
	StateAutoVerifying

	// StateManualChallenge means the page demands human interaction the
	// solver cannot reliably perform.
	StateManualChallenge
)

func (s State) String() string {
	switch s {
	case StateAutoVerifying:
		return "auto-verifying"
	case StateManualChallenge:
		return "manual-challenge"
	default:
		return "unknown"
	}
}

// Titles shown while the interstitial verifies the client automatically.
var autoVerifyingTitles = []string{
	"just a moment",
	"checking your browser",
	"please wait",
	"ddos protection",
}

// Content markers that only appear when the widget requires interaction.
var manualChallengeSelectors = []string{
	"input[name=\"cf-turnstile-response\"]",
	".cf-turnstile",
	"#challenge-form input[type=\"checkbox\"]",
	"iframe[src*=\"challenges.cloudflare.com\"]",
}

var manualChallengePhrases = []string{
	"verify you are human",
	"complete the security check",
	"confirm you are human",
}

// Classify inspects a page's title, URL and HTML snapshot and returns a
// closed challenge state. It is a pure function; callers decide what to do
// with the answer.
func Classify(title, pageURL, html string) State {
	if hasManualMarkers(html) {
		return StateManualChallenge
	}

	lowerTitle := strings.ToLower(title)
	for _, t := range autoVerifyingTitles {
		if strings.Contains(lowerTitle, t) {
			return StateAutoVerifying
		}
	}
	if strings.Contains(pageURL, "/cdn-cgi/challenge-platform/") {
		return StateAutoVerifying
	}
	return StateUnknown
}

// hasManualMarkers parses the HTML snapshot for interaction widgets. A
// snapshot that fails to parse falls back to substring matching so a
// half-rendered page still classifies.
func hasManualMarkers(html string) bool {
	if strings.TrimSpace(html) == "" {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		for _, sel := range manualChallengeSelectors {
			if doc.Find(sel).Length() > 0 {
				return true
			}
		}
		text := strings.ToLower(doc.Text())
		for _, phrase := range manualChallengePhrases {
			if strings.Contains(text, phrase) {
				return true
			}
		}
		return false
	}

	lower := strings.ToLower(html)
	for _, phrase := range manualChallengePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return strings.Contains(lower, "cf-turnstile-response")
}
