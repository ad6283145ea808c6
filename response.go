package rawhttp

import (
	"encoding/json"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/duskline/rawhttp/internal/herr"
)

// ConnectionInfo is trace metadata about the socket an exchange used,
// surfaced as a supplement to spec.md's core data model (see SPEC_FULL.md
// section 12), generalizing the teacher's flat Response connection fields
// into one accessor.
type ConnectionInfo struct {
	ID         string
	ResolvedIP string
	ProxyUsed  bool
	TLSVersion string
	Reused     bool
}

// Response is the typed result of one exchange: final (post-redirect) URL,
// status, protocol version, headers, and the fully content-decoded body.
// It is immutable after construction except for the consuming conversions
// Text/JSON, which read Body without mutating it.
type Response struct {
	URL        *url.URL
	StatusCode int
	Status     string
	ProtoMajor int
	ProtoMinor int
	Header     http.Header
	RawBody    []byte

	trace *ConnectionInfo
	// upgradedConn is non-nil only for a 101 Switching Protocols response;
	// Client.executeOnce leaves this stream open (rather than closing it on
	// exchange completion) so Upgrade can hand it to the caller.
	upgradedConn net.Conn
}

// Proto returns the declared HTTP version, e.g. "HTTP/1.1".
func (r *Response) Proto() string {
	return "HTTP/" + strconv.Itoa(r.ProtoMajor) + "." + strconv.Itoa(r.ProtoMinor)
}

// ContentLength returns len(Body); Content-Length is always exact here
// since bodies are fully materialized (see Body's invariant, SPEC_FULL.md
// section 3).
func (r *Response) ContentLength() int {
	return len(r.RawBody)
}

// Bytes returns the raw, already content-decoded body.
func (r *Response) Bytes() []byte {
	return r.RawBody
}

// Trace returns connection metadata for the exchange that produced this
// Response. Client.Do always sets it; it is nil only for a Response that was
// not produced by a Client.
func (r *Response) Trace() *ConnectionInfo {
	return r.trace
}

// Upgrade returns the live connection underlying a 101 Switching Protocols
// response and transfers ownership of it to the caller, who becomes
// responsible for reading, writing, and eventually closing it (the stream's
// single-owner discipline, SPEC_FULL.md section 4.1, moves from Client to
// the caller at this point). It is the HTTP/1.1 upgrade handshake surface
// spec.md's WebSocket Non-goal leaves in scope ("beyond the 101 Switching
// handshake surface"); framing whatever protocol runs atop the returned
// net.Conn is the caller's concern, not this library's.
//
// Upgrade fails if this Response's status was not 101, or if it has already
// been called once for this Response. Grounded on
// original_source/tests/upgrade.rs's res.upgrade().
func (r *Response) Upgrade() (net.Conn, error) {
	if r.StatusCode != http.StatusSwitchingProtocols {
		return nil, herr.NewDecodeError("upgrade", "response did not switch protocols", nil)
	}
	if r.upgradedConn == nil {
		return nil, herr.NewDecodeError("upgrade", "connection already taken via Upgrade", nil)
	}
	conn := r.upgradedConn
	r.upgradedConn = nil
	return conn, nil
}

// Text decodes Body as text using the charset named in the Content-Type
// header, falling back to UTF-8 when absent or unrecognized. Equivalent to
// TextWithCharset("utf-8").
func (r *Response) Text() (string, error) {
	return r.TextWithCharset("utf-8")
}

// TextWithCharset decodes Body using the charset parameter of Content-Type
// if present, otherwise defaultEncoding (an IANA charset label, e.g.
// "gbk", "iso-8859-1"). Unknown labels fall back to UTF-8. Grounded in
// original_source/src/lunatic_impl/response.rs's text_with_charset, using
// golang.org/x/text/encoding/htmlindex for WHATWG-compatible label lookup.
func (r *Response) TextWithCharset(defaultEncoding string) (string, error) {
	label := charsetFromContentType(r.Header.Get("Content-Type"))
	if label == "" {
		label = defaultEncoding
	}
	enc, err := htmlindex.Get(label)
	if err != nil || enc == nil {
		enc = encoding.Nop
	}
	decoded, err := enc.NewDecoder().Bytes(r.RawBody)
	if err != nil {
		return "", herr.NewDecodeError("decode_text", "failed to decode body as "+label, err)
	}
	return string(decoded), nil
}

func charsetFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// JSON unmarshals Body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.RawBody, v); err != nil {
		return herr.NewDecodeError("decode_json", "failed to unmarshal response body as json", err)
	}
	return nil
}

// ErrorForStatus returns (r, nil) for a non-error status, or (r, *Error) of
// KindStatus for a 4xx/5xx response. The Response is always returned so
// callers can still inspect the body of a failed request.
func (r *Response) ErrorForStatus() (*Response, error) {
	if err := r.ErrorForStatusRef(); err != nil {
		return r, err
	}
	return r, nil
}

// ErrorForStatusRef reports whether this Response's status is 4xx/5xx as a
// *Error, without bundling the Response itself into the return value
// (supplemented from original_source's error_for_status_ref, SPEC_FULL.md
// section 12).
func (r *Response) ErrorForStatusRef() error {
	if r.StatusCode >= 400 && r.StatusCode < 600 {
		return herr.NewStatusError(urlString(r.URL), r.StatusCode, r.Status)
	}
	return nil
}

func urlString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}
