// Package decode applies content-encoding removal (gzip, brotli, deflate) to
// a response body, in the priority order and zero-length-body special case
// spec.md section 4.6 describes. The priority list and the
// zero-length-with-encoding-header warning are grounded on
// original_source/src/lunatic_impl/decoder.rs's detect_encoding/Decoder::detect.
package decode

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/duskline/rawhttp/internal/herr"
)

// Enabled lists which content-encodings the caller's ClientConfig allows
// auto-decompressing, mirroring spec.md's ClientConfig.auto_decompress.
type Enabled struct {
	GZIP    bool
	Brotli  bool
	Deflate bool
}

// AcceptEncodingTokens returns the Accept-Encoding value tokens for the
// enabled decoders, in the fixed priority order gzip, br, deflate.
func (e Enabled) AcceptEncodingTokens() []string {
	var tokens []string
	if e.GZIP {
		tokens = append(tokens, "gzip")
	}
	if e.Brotli {
		tokens = append(tokens, "br")
	}
	if e.Deflate {
		tokens = append(tokens, "deflate")
	}
	return tokens
}

// Decode inspects header for a matched, enabled content-encoding and returns
// the decoded body, deleting the Content-Encoding/Content-Length entries from
// header in place. If no enabled encoding matches, body is returned
// unchanged.
func Decode(header http.Header, body []byte, enabled Enabled) ([]byte, error) {
	type candidate struct {
		token   string
		allowed bool
		decode  func([]byte) ([]byte, error)
	}
	candidates := []candidate{
		{"gzip", enabled.GZIP, decodeGzip},
		{"br", enabled.Brotli, decodeBrotli},
		{"deflate", enabled.Deflate, decodeDeflate},
	}

	for _, c := range candidates {
		if !c.allowed {
			continue
		}
		if !headerListContains(header, "Content-Encoding", c.token) && !headerListContains(header, "Transfer-Encoding", c.token) {
			continue
		}
		if header.Get("Content-Length") == "0" {
			slog.Warn("rawhttp: response declared a content-encoding with a zero-length body; treating as plain", "encoding", c.token)
			return body, nil
		}
		decoded, err := c.decode(body)
		if err != nil {
			return nil, herr.NewDecodeError("decode_"+c.token, "failed to decode "+c.token+" body", err)
		}
		header.Del("Content-Encoding")
		header.Del("Content-Length")
		return decoded, nil
	}
	return body, nil
}

func headerListContains(header http.Header, name, token string) bool {
	for _, v := range header.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

func decodeGzip(body []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func decodeBrotli(body []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(body))
	return io.ReadAll(r)
}

func decodeDeflate(body []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(body))
	defer r.Close()
	return io.ReadAll(r)
}
