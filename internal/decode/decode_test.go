package decode

import (
	"bytes"
	"compress/flate"
	"net/http"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

func gzipCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func brotliCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("brotli write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("brotli close: %v", err)
	}
	return buf.Bytes()
}

func deflateCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("flate.NewWriter: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("flate write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("flate close: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeGzipRoundTrip(t *testing.T) {
	body := gzipCompress(t, []byte("hello world"))
	header := http.Header{"Content-Encoding": []string{"gzip"}}
	out, err := Decode(header, body, Enabled{GZIP: true})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("decoded = %q", out)
	}
	if header.Get("Content-Encoding") != "" {
		t.Fatal("Content-Encoding should be stripped after decode")
	}
}

func TestDecodeBrotliRoundTrip(t *testing.T) {
	body := brotliCompress(t, []byte("hello brotli"))
	header := http.Header{"Content-Encoding": []string{"br"}}
	out, err := Decode(header, body, Enabled{Brotli: true})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(out) != "hello brotli" {
		t.Fatalf("decoded = %q", out)
	}
}

func TestDecodeDeflateRoundTrip(t *testing.T) {
	body := deflateCompress(t, []byte("hello deflate"))
	header := http.Header{"Content-Encoding": []string{"deflate"}}
	out, err := Decode(header, body, Enabled{Deflate: true})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(out) != "hello deflate" {
		t.Fatalf("decoded = %q", out)
	}
}

func TestDecodeDisabledEncodingPassesThrough(t *testing.T) {
	body := gzipCompress(t, []byte("hello"))
	header := http.Header{"Content-Encoding": []string{"gzip"}}
	out, err := Decode(header, body, Enabled{GZIP: false})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(out, body) {
		t.Fatal("disabled encoding must pass body through unchanged")
	}
}

func TestDecodeZeroLengthBodyWithEncodingHeaderIsPassthrough(t *testing.T) {
	header := http.Header{"Content-Encoding": []string{"gzip"}, "Content-Length": []string{"0"}}
	out, err := Decode(header, nil, Enabled{GZIP: true})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("decoded = %q, want empty", out)
	}
}

func TestDecodeNoMatchingEncodingPassesThrough(t *testing.T) {
	body := []byte("plain text")
	out, err := Decode(make(http.Header), body, Enabled{GZIP: true, Brotli: true, Deflate: true})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(out, body) {
		t.Fatal("body without Content-Encoding must pass through unchanged")
	}
}

func TestAcceptEncodingTokensOrder(t *testing.T) {
	tokens := Enabled{GZIP: true, Brotli: true, Deflate: true}.AcceptEncodingTokens()
	want := []string{"gzip", "br", "deflate"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v", tokens)
	}
	for i, tok := range want {
		if tokens[i] != tok {
			t.Fatalf("tokens[%d] = %q, want %q", i, tokens[i], tok)
		}
	}
}
