// Package rawhttp provides a high-level HTTP client library that performs
// HTTP/1.1 exchanges over plain TCP or TLS using sockets the caller's
// goroutine owns exclusively for the duration of one request. It offers a
// fluent builder to construct requests, a redirect engine with method/body
// rewriting and sensitive-header scrubbing, proxy selection with CONNECT
// tunneling, content-encoding decoding, and a typed response value with
// text/JSON conveniences.
package rawhttp

import (
	"github.com/duskline/rawhttp/internal/herr"
)

// Version is the current version of the rawhttp library.
const Version = "1.0.0"

// GetVersion returns the current version of the library.
func GetVersion() string {
	return Version
}

// Error is a structured error carrying a Kind tag, the URL being processed
// (if known), and an optional cause chain reachable via errors.Unwrap.
type Error = herr.Error

// Kind categorizes what stage of an exchange failed: Builder, Request,
// Connect, Timeout, Io, Decode, Redirect, or Status.
type Kind = herr.Kind

// The Kind tag set, mirrored here so callers never need to import the
// internal herr package directly.
const (
	KindBuilder  = herr.KindBuilder
	KindRequest  = herr.KindRequest
	KindConnect  = herr.KindConnect
	KindTimeout  = herr.KindTimeout
	KindIO       = herr.KindIO
	KindDecode   = herr.KindDecode
	KindRedirect = herr.KindRedirect
	KindStatus   = herr.KindStatus
)

// IsTimeout reports whether err represents a timed-out exchange, whether
// from this library's own Timeout kind, a net.Error, or a context deadline.
func IsTimeout(err error) bool { return herr.IsTimeout(err) }

// IsProxyAuthRequired reports whether err is a 407-from-proxy Connect error.
func IsProxyAuthRequired(err error) bool { return herr.IsProxyAuthRequired(err) }

// GetKind returns the Kind of err if it is a *Error, or the empty Kind otherwise.
func GetKind(err error) Kind { return herr.GetKind(err) }
