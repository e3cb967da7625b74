package scraper

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// challengeSignatures mark interstitial pages that carry no real content.
// Shared with the hosted-API plugins, which see the same pages rendered
// down to markdown.
var challengeSignatures = []string{
	"checking your browser",
	"cf-browser-verification",
	"just a moment",
	"attention required",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
}

// bodyMarkers map body substrings to a block type, checked in order.
// "captcha" also covers recaptcha and hcaptcha.
var bodyMarkers = []struct {
	marker string
	kind   BlockType
}{
	{"cf-browser-verification", BlockCloudflare},
	{"checking your browser", BlockCloudflare},
	{"just a moment", BlockCloudflare},
	{"captcha", BlockCaptcha},
}

// containsChallenge reports whether lowercased content reads like an
// anti-bot interstitial rather than a page body.
func containsChallenge(lower string) bool {
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// DetectBlock classifies an HTTP response as blocked by anti-bot
// protection, and by what kind.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		switch {
		case resp.Header.Get("cf-ray") != "",
			resp.Header.Get("cf-cache-status") != "",
			resp.Header.Get("server") == "cloudflare":
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))
	for _, m := range bodyMarkers {
		if strings.Contains(lower, m.marker) {
			return true, m.kind
		}
	}

	// A near-empty shell that demands javascript is a block in effect
	// even without a named vendor behind it.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
