package rawhttp

import (
	"net/http"
	"net/url"
	"time"
)

// Request is the value the wire encoder serializes. Header uses net/http's
// Header type directly (a map of canonical header names to value lists, each
// list kept in insertion order) rather than reinventing a header map, matching the
// spec's instruction to treat header primitives as an external collaborator.
type Request struct {
	Method      string
	URL         *url.URL
	Header      http.Header
	Body        Body
	Timeout     time.Duration
	ProtoMajor  int
	ProtoMinor  int
}

// NewRequest builds a bare Request for method/rawURL with an empty body.
// Host is not set here; the encoder derives it from URL if the caller never
// set a Host header explicitly.
func NewRequest(method, rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &Request{
		Method:     method,
		URL:        u,
		Header:     make(http.Header),
		Body:       EmptyBody(),
		ProtoMajor: 1,
		ProtoMinor: 1,
	}, nil
}

// clone returns a deep-enough copy of r: the URL and Header are copied so
// mutating the clone never affects the original (Client.Do's prepareInitial
// relies on this to leave the caller's Request untouched).
func (r *Request) clone() *Request {
	u2 := *r.URL
	h2 := make(http.Header, len(r.Header))
	for k, v := range r.Header {
		vv := make([]string, len(v))
		copy(vv, v)
		h2[k] = vv
	}
	return &Request{
		Method:     r.Method,
		URL:        &u2,
		Header:     h2,
		Body:       r.Body,
		Timeout:    r.Timeout,
		ProtoMajor: r.ProtoMajor,
		ProtoMinor: r.ProtoMinor,
	}
}

// origin returns the (scheme, host, port) triple used for same-origin
// comparisons. The redirect engine's header scrubbing uses its own
// equivalent in internal/redirectengine, not this helper.
func origin(u *url.URL) (scheme, host, port string) {
	scheme = u.Scheme
	host = u.Hostname()
	port = u.Port()
	if port == "" {
		if scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return
}

func sameOrigin(a, b *url.URL) bool {
	as, ah, ap := origin(a)
	bs, bh, bp := origin(b)
	return as == bs && ah == bh && ap == bp
}
