// Package redirectengine decides, for one redirect-class response, whether
// and how to build the next request. It has no teacher counterpart (the
// teacher never follows redirects); its seed-test semantics are grounded on
// original_source/tests/redirect.rs (method/body rewriting per status class,
// sensitive header scrubbing, Referer injection, the invalid-Location-stops
// -without-error case, and the policy-returns-error case).
package redirectengine

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/duskline/rawhttp/internal/herr"
)

// Verdict is what a CustomRedirectPolicy function returns for one hop.
type Verdict int

const (
	Follow Verdict = iota
	Stop
	Error
)

// Policy controls how many (if any) redirects Client.Do follows.
type Policy struct {
	kind   policyKind
	max    int
	custom func(next *url.URL, chain []*url.URL) Verdict
}

type policyKind int

const (
	kindMaxRedirects policyKind = iota
	kindNoRedirect
	kindCustom
)

// NoRedirect never follows a redirect; the redirect response itself is
// returned to the caller.
func NoRedirect() Policy { return Policy{kind: kindNoRedirect} }

// MaxRedirects fails with TooManyRedirects once the visited chain (the
// starting URL included) holds n URLs, so at most n-1 hops are followed.
func MaxRedirects(n int) Policy { return Policy{kind: kindMaxRedirects, max: n} }

// CustomRedirectPolicy defers the follow/stop/error decision to fn, which
// receives the candidate next URL and the chain of URLs visited so far
// (oldest first, not including next).
func CustomRedirectPolicy(fn func(next *url.URL, chain []*url.URL) Verdict) Policy {
	return Policy{kind: kindCustom, custom: fn}
}

// Request is the minimal view of a request the engine needs to build the
// next hop, mirroring the root package's *Request without importing it
// (avoids an import cycle).
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
	// Replayable is false for a streaming body that cannot be resent; a
	// non-replayable body on a 307/308 stops the redirect loop without error.
	Replayable bool
}

// Outcome is the result of evaluating one response for a redirect.
type Outcome struct {
	// Next is non-nil when the engine wants Client to issue another request.
	Next *Request
	// Stop is true when no further redirect should be attempted and the
	// current response should be returned to the caller as final.
	Stop bool
}

var redirectStatuses = map[int]bool{301: true, 302: true, 303: true, 307: true, 308: true}

// sensitiveHeaders are stripped when the next hop crosses origin.
var sensitiveHeaders = []string{"Authorization", "Cookie", "Proxy-Authorization", "WWW-Authenticate"}

// Evaluate decides the outcome of one redirect-class response. prevURL is
// the URL the response came from; chain is every URL visited so far,
// including prevURL, oldest first.
func Evaluate(policy Policy, prev *Request, prevURL *url.URL, statusCode int, header http.Header, httpsOnly, refererEnabled bool, chain []*url.URL) (Outcome, error) {
	if !redirectStatuses[statusCode] {
		return Outcome{Stop: true}, nil
	}

	loc := header.Get("Location")
	if loc == "" {
		return Outcome{Stop: true}, nil
	}
	next, err := prevURL.Parse(loc)
	if err != nil {
		// Malformed Location: stop silently, matching
		// test_invalid_location_stops_redirect_gh484.
		return Outcome{Stop: true}, nil
	}

	if httpsOnly && next.Scheme != "https" {
		return Outcome{}, herr.NewRedirectToInsecureError(next.String())
	}

	switch policy.kind {
	case kindNoRedirect:
		return Outcome{Stop: true}, nil
	case kindMaxRedirects:
		if len(chain) >= policy.max {
			return Outcome{}, herr.NewTooManyRedirectsError(next.String(), policy.max)
		}
	case kindCustom:
		switch policy.custom(next, chain) {
		case Stop:
			return Outcome{Stop: true}, nil
		case Error:
			return Outcome{}, herr.NewRedirectPolicyError(next.String(), nil)
		}
	}

	method, body, replayable := rewriteMethodAndBody(statusCode, prev)
	if !replayable {
		return Outcome{Stop: true}, nil
	}

	nextHeader := scrubAndCarry(prev.Header, prevURL, next)
	if refererEnabled && shouldSetReferer(prevURL, next) {
		nextHeader.Set("Referer", refererFor(prevURL))
	}

	return Outcome{Next: &Request{
		Method:     method,
		URL:        next,
		Header:     nextHeader,
		Body:       body,
		Replayable: true,
	}}, nil
}

// rewriteMethodAndBody applies the 301/302/303-changes-to-GET vs
// 307/308-preserves-method-and-body rule.
func rewriteMethodAndBody(statusCode int, prev *Request) (method string, body []byte, replayable bool) {
	switch statusCode {
	case 307, 308:
		if !prev.Replayable {
			return "", nil, false
		}
		return prev.Method, prev.Body, true
	default: // 301, 302, 303
		if prev.Method == http.MethodGet || prev.Method == http.MethodHead {
			return prev.Method, nil, true
		}
		return http.MethodGet, nil, true
	}
}

func scrubAndCarry(prevHeader http.Header, prevURL, nextURL *url.URL) http.Header {
	h := prevHeader.Clone()
	if !sameOrigin(prevURL, nextURL) {
		for _, name := range sensitiveHeaders {
			h.Del(name)
		}
	}
	h.Del("Referer")
	h.Del("Content-Length")
	return h
}

func shouldSetReferer(prevURL, nextURL *url.URL) bool {
	if prevURL.Scheme == "https" && nextURL.Scheme != "https" {
		return false
	}
	return true
}

func refererFor(u *url.URL) string {
	stripped := *u
	stripped.User = nil
	stripped.Fragment = ""
	return stripped.String()
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Hostname(), b.Hostname()) && portOf(a) == portOf(b)
}

func portOf(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if u.Scheme == "https" {
		return "443"
	}
	return "80"
}
