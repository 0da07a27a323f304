package solver

import "testing"

const turnstileHTML = `<html><body>
<form id="challenge-form">
<input type="hidden" name="cf-turnstile-response" value="">
</form>
</body></html>`

const turnstileWidgetHTML = `<html><body>
<div class="cf-turnstile" data-sitekey="abc"></div>
</body></html>`

const verifyPhraseHTML = `<html><body>
<p>Verify you are human by completing the action below.</p>
</body></html>`

const plainPageHTML = `<html><head><title>Example</title></head>
<body><h1>Welcome</h1></body></html>`

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		title string
		url   string
		html  string
		want  State
	}{
		{"interstitial title", "Just a moment...", "https://example.com", plainPageHTML, StateAutoVerifying},
		{"browser check title", "Checking your browser before accessing", "https://example.com", "", StateAutoVerifying},
		{"ddos title", "DDoS protection by Cloudflare", "https://example.com", "", StateAutoVerifying},
		{"title case insensitive", "JUST A MOMENT", "https://example.com", "", StateAutoVerifying},
		{"challenge platform url", "Example", "https://example.com/cdn-cgi/challenge-platform/h/b", "", StateAutoVerifying},
		{"turnstile input", "Just a moment...", "https://example.com", turnstileHTML, StateManualChallenge},
		{"turnstile widget", "Example", "https://example.com", turnstileWidgetHTML, StateManualChallenge},
		{"verify phrase", "Example", "https://example.com", verifyPhraseHTML, StateManualChallenge},
		{"manual wins over auto title", "Just a moment...", "https://example.com", turnstileWidgetHTML, StateManualChallenge},
		{"plain page", "Example Domain", "https://example.com", plainPageHTML, StateUnknown},
		{"empty everything", "", "", "", StateUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.title, tt.url, tt.html); got != tt.want {
				t.Errorf("Classify(%q, %q, ...) = %v, want %v", tt.title, tt.url, got, tt.want)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	if StateAutoVerifying.String() != "auto-verifying" {
		t.Errorf("unexpected string %q", StateAutoVerifying.String())
	}
	if StateManualChallenge.String() != "manual-challenge" {
		t.Errorf("unexpected string %q", StateManualChallenge.String())
	}
	if StateUnknown.String() != "unknown" {
		t.Errorf("unexpected string %q", StateUnknown.String())
	}
}
