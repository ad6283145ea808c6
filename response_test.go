package rawhttp

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/duskline/rawhttp/internal/herr"
)

func newTestResponse(status int, header http.Header, body []byte) *Response {
	u, _ := url.Parse("http://example.com/")
	return &Response{URL: u, StatusCode: status, Status: http.StatusText(status), Header: header, RawBody: body}
}

func TestErrorForStatusRefNilForSuccess(t *testing.T) {
	resp := newTestResponse(200, make(http.Header), nil)
	if err := resp.ErrorForStatusRef(); err != nil {
		t.Fatalf("expected nil error for 200, got %v", err)
	}
}

func TestErrorForStatusRefForClientError(t *testing.T) {
	resp := newTestResponse(404, make(http.Header), nil)
	err := resp.ErrorForStatusRef()
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
	if herr.GetKind(err) != herr.KindStatus {
		t.Fatalf("kind = %v, want KindStatus", herr.GetKind(err))
	}
}

func TestErrorForStatusReturnsResponseRegardless(t *testing.T) {
	resp := newTestResponse(500, make(http.Header), []byte("boom"))
	got, err := resp.ErrorForStatus()
	if got != resp {
		t.Fatal("ErrorForStatus must still return the Response")
	}
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestTextDecodesUTF8ByDefault(t *testing.T) {
	resp := newTestResponse(200, http.Header{"Content-Type": []string{"text/plain"}}, []byte("hello"))
	text, err := resp.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "hello" {
		t.Fatalf("text = %q", text)
	}
}

func TestTextUsesCharsetFromContentType(t *testing.T) {
	// 0xE9 is "é" in ISO-8859-1/Latin-1.
	resp := newTestResponse(200, http.Header{"Content-Type": []string{"text/plain; charset=iso-8859-1"}}, []byte{0xE9})
	text, err := resp.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "é" {
		t.Fatalf("text = %q, want é", text)
	}
}

func TestJSONUnmarshalsBody(t *testing.T) {
	resp := newTestResponse(200, http.Header{"Content-Type": []string{"application/json"}}, []byte(`{"name":"gopher"}`))
	var v struct {
		Name string `json:"name"`
	}
	if err := resp.JSON(&v); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if v.Name != "gopher" {
		t.Fatalf("name = %q", v.Name)
	}
}

func TestContentLengthMatchesBodyLength(t *testing.T) {
	resp := newTestResponse(200, make(http.Header), []byte("12345"))
	if resp.ContentLength() != 5 {
		t.Fatalf("ContentLength = %d", resp.ContentLength())
	}
}

func TestProtoFormatsVersion(t *testing.T) {
	resp := newTestResponse(200, make(http.Header), nil)
	resp.ProtoMajor, resp.ProtoMinor = 1, 1
	if resp.Proto() != "HTTP/1.1" {
		t.Fatalf("Proto() = %q", resp.Proto())
	}
}

func TestTraceNilWhenNotCaptured(t *testing.T) {
	resp := newTestResponse(200, make(http.Header), nil)
	if resp.Trace() != nil {
		t.Fatal("expected nil Trace() when the Client did not populate one")
	}
}

func TestUpgradeFailsForNonSwitchingProtocolsStatus(t *testing.T) {
	resp := newTestResponse(200, make(http.Header), nil)
	if _, err := resp.Upgrade(); err == nil {
		t.Fatal("expected an error calling Upgrade on a non-101 response")
	}
}
