// Package wire implements the HTTP/1.1 request encoder and the streaming
// response parser (the two largest single components in SPEC_FULL.md).
// The response-reading strategy (bufio.Reader, RFC 7230 §3.2.4 header
// continuation handling, chunked/fixed/until-close dispatch) is grounded on
// the teacher's pkg/client/client.go readResponse/readHeaders/readChunkedBody
// /readFixedBody/readUntilClose. Size limits (MaxResponseSize, initial read
// chunk, MaxHeaders) are grounded on original_source/src/lunatic_impl/decoder.rs
// parse_response's MAX_REQUEST_SIZE/REQUEST_BUFFER_SIZE/MAX_HEADERS constants.
package wire

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/duskline/rawhttp/internal/herr"
)

// EncodedRequest is the minimal view of a request the encoder needs, kept
// separate from the root package's *Request to avoid an import cycle.
type EncodedRequest struct {
	Method          string
	URL             *url.URL
	Header          http.Header
	Body            []byte
	AbsoluteForm    bool // true when writing through a non-tunneling HTTP proxy for an http target
	AcceptEncodings []string
	UserAgent       string
}

// Write serializes req onto w as a single HTTP/1.1 message: request line,
// Host header (derived if absent), any caller headers, auto-headers that
// were not already supplied, then the body.
func Write(w io.Writer, req *EncodedRequest) error {
	bw := bufio.NewWriter(w)

	target := req.URL.RequestURI()
	if req.AbsoluteForm {
		target = req.URL.String()
	}
	if _, err := fmt.Fprintf(bw, "%s %s HTTP/1.1\r\n", req.Method, target); err != nil {
		return herr.NewIOError("write", "writing request line", err)
	}

	header := req.Header.Clone()
	if header.Get("Host") == "" {
		host := req.URL.Host
		if host == "" {
			host = req.URL.Hostname()
		}
		header.Set("Host", host)
	}
	if header.Get("User-Agent") == "" && req.UserAgent != "" {
		header.Set("User-Agent", req.UserAgent)
	}
	if header.Get("Accept") == "" {
		header.Set("Accept", "*/*")
	}
	if header.Get("Accept-Encoding") == "" && len(req.AcceptEncodings) > 0 {
		header.Set("Accept-Encoding", strings.Join(req.AcceptEncodings, ", "))
	}
	if header.Get("Content-Length") == "" && header.Get("Transfer-Encoding") == "" && len(req.Body) > 0 {
		header.Set("Content-Length", strconv.Itoa(len(req.Body)))
	}

	// Host must be emitted first (right after the request line) per RFC 7230
	// §5.4, then remaining headers in a stable order for reproducibility.
	if host := header.Get("Host"); host != "" {
		if _, err := fmt.Fprintf(bw, "Host: %s\r\n", host); err != nil {
			return herr.NewIOError("write", "writing host header", err)
		}
	}

	names := make([]string, 0, len(header))
	for name := range header {
		if name == "Host" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range header[name] {
			if _, err := fmt.Fprintf(bw, "%s: %s\r\n", name, v); err != nil {
				return herr.NewIOError("write", "writing header", err)
			}
		}
	}

	if _, err := bw.WriteString("\r\n"); err != nil {
		return herr.NewIOError("write", "writing header terminator", err)
	}

	chunked := strings.EqualFold(header.Get("Transfer-Encoding"), "chunked")
	if chunked {
		if err := writeChunked(bw, req.Body); err != nil {
			return err
		}
	} else if len(req.Body) > 0 {
		if _, err := bw.Write(req.Body); err != nil {
			return herr.NewIOError("write", "writing body", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return herr.NewIOError("write", "flushing request", err)
	}
	return nil
}

func writeChunked(w *bufio.Writer, body []byte) error {
	const chunkSize = 8192
	for len(body) > 0 {
		n := chunkSize
		if n > len(body) {
			n = len(body)
		}
		if _, err := fmt.Fprintf(w, "%x\r\n", n); err != nil {
			return herr.NewIOError("write", "writing chunk size", err)
		}
		if _, err := w.Write(body[:n]); err != nil {
			return herr.NewIOError("write", "writing chunk data", err)
		}
		if _, err := w.WriteString("\r\n"); err != nil {
			return herr.NewIOError("write", "writing chunk terminator", err)
		}
		body = body[n:]
	}
	_, err := w.WriteString("0\r\n\r\n")
	if err != nil {
		return herr.NewIOError("write", "writing final chunk", err)
	}
	return nil
}

// CanonicalHeaderKey re-exports textproto's canonicalization so callers
// outside this package can key headers the same way they are keyed on the
// wire.
func CanonicalHeaderKey(name string) string {
	return textproto.CanonicalMIMEHeaderKey(name)
}
