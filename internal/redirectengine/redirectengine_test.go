package redirectengine

import (
	"net/http"
	"net/url"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

func TestEvaluateNonRedirectStatusStops(t *testing.T) {
	prev := &Request{Method: "GET", URL: mustParse(t, "http://example.com/"), Header: make(http.Header)}
	outcome, err := Evaluate(MaxRedirects(5), prev, prev.URL, 200, make(http.Header), false, true, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !outcome.Stop || outcome.Next != nil {
		t.Fatalf("outcome = %+v, want Stop", outcome)
	}
}

func TestEvaluate303RewritesToGETAndDropsBody(t *testing.T) {
	prevURL := mustParse(t, "http://example.com/form")
	prev := &Request{Method: "POST", URL: prevURL, Header: make(http.Header), Body: []byte("data"), Replayable: true}
	header := http.Header{"Location": []string{"/done"}}
	outcome, err := Evaluate(MaxRedirects(5), prev, prevURL, 303, header, false, true, []*url.URL{prevURL})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if outcome.Next == nil {
		t.Fatal("expected a next request")
	}
	if outcome.Next.Method != "GET" || outcome.Next.Body != nil {
		t.Fatalf("303 must rewrite to GET with no body, got method=%s body=%q", outcome.Next.Method, outcome.Next.Body)
	}
}

func TestEvaluate307PreservesMethodAndBody(t *testing.T) {
	prevURL := mustParse(t, "http://example.com/form")
	prev := &Request{Method: "POST", URL: prevURL, Header: make(http.Header), Body: []byte("data"), Replayable: true}
	header := http.Header{"Location": []string{"/done"}}
	outcome, err := Evaluate(MaxRedirects(5), prev, prevURL, 307, header, false, true, []*url.URL{prevURL})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if outcome.Next.Method != "POST" || string(outcome.Next.Body) != "data" {
		t.Fatalf("307 must preserve method/body, got method=%s body=%q", outcome.Next.Method, outcome.Next.Body)
	}
}

func TestEvaluate307StopsWithoutErrorForNonReplayableBody(t *testing.T) {
	prevURL := mustParse(t, "http://example.com/form")
	prev := &Request{Method: "POST", URL: prevURL, Header: make(http.Header), Body: []byte("data"), Replayable: false}
	header := http.Header{"Location": []string{"/done"}}
	outcome, err := Evaluate(MaxRedirects(5), prev, prevURL, 307, header, false, true, []*url.URL{prevURL})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !outcome.Stop || outcome.Next != nil {
		t.Fatalf("outcome = %+v, want Stop without error", outcome)
	}
}

func TestEvaluateScrubsSensitiveHeadersCrossOrigin(t *testing.T) {
	prevURL := mustParse(t, "http://a.example/")
	header := http.Header{"Location": []string{"http://b.example/"}}
	prevHeader := http.Header{"Authorization": []string{"Bearer secret"}, "Cookie": []string{"a=b"}, "X-Keep": []string{"yes"}}
	prev := &Request{Method: "GET", URL: prevURL, Header: prevHeader, Replayable: true}
	outcome, err := Evaluate(MaxRedirects(5), prev, prevURL, 302, header, false, true, []*url.URL{prevURL})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if outcome.Next.Header.Get("Authorization") != "" || outcome.Next.Header.Get("Cookie") != "" {
		t.Fatalf("cross-origin redirect must scrub sensitive headers, got %+v", outcome.Next.Header)
	}
	if outcome.Next.Header.Get("X-Keep") != "yes" {
		t.Fatal("non-sensitive headers must survive the hop")
	}
}

func TestEvaluateKeepsSensitiveHeadersSameOrigin(t *testing.T) {
	prevURL := mustParse(t, "http://a.example/x")
	header := http.Header{"Location": []string{"/y"}}
	prevHeader := http.Header{"Authorization": []string{"Bearer secret"}}
	prev := &Request{Method: "GET", URL: prevURL, Header: prevHeader, Replayable: true}
	outcome, err := Evaluate(MaxRedirects(5), prev, prevURL, 302, header, false, true, []*url.URL{prevURL})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if outcome.Next.Header.Get("Authorization") != "Bearer secret" {
		t.Fatal("same-origin redirect must keep Authorization")
	}
}

func TestEvaluateSetsReferer(t *testing.T) {
	prevURL := mustParse(t, "http://a.example/page?token=secret#frag")
	header := http.Header{"Location": []string{"http://a.example/next"}}
	prev := &Request{Method: "GET", URL: prevURL, Header: make(http.Header), Replayable: true}
	outcome, err := Evaluate(MaxRedirects(5), prev, prevURL, 302, header, false, true, []*url.URL{prevURL})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := outcome.Next.Header.Get("Referer"); got != "http://a.example/page?token=secret" {
		t.Fatalf("Referer = %q", got)
	}
}

func TestEvaluateRefererDisabled(t *testing.T) {
	prevURL := mustParse(t, "http://a.example/page")
	header := http.Header{"Location": []string{"http://a.example/next"}}
	prev := &Request{Method: "GET", URL: prevURL, Header: make(http.Header), Replayable: true}
	outcome, err := Evaluate(MaxRedirects(5), prev, prevURL, 302, header, false, false, []*url.URL{prevURL})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if outcome.Next.Header.Get("Referer") != "" {
		t.Fatal("Referer must not be set when disabled")
	}
}

func TestEvaluateHTTPSOnlyRejectsInsecureRedirect(t *testing.T) {
	prevURL := mustParse(t, "https://a.example/")
	header := http.Header{"Location": []string{"http://a.example/"}}
	prev := &Request{Method: "GET", URL: prevURL, Header: make(http.Header), Replayable: true}
	_, err := Evaluate(MaxRedirects(5), prev, prevURL, 302, header, true, true, []*url.URL{prevURL})
	if err == nil {
		t.Fatal("expected error redirecting from https to http under HTTPSOnly")
	}
}

func TestEvaluateMaxRedirectsExceeded(t *testing.T) {
	prevURL := mustParse(t, "http://a.example/")
	header := http.Header{"Location": []string{"/next"}}
	prev := &Request{Method: "GET", URL: prevURL, Header: make(http.Header), Replayable: true}
	chain := []*url.URL{prevURL, prevURL}
	_, err := Evaluate(MaxRedirects(2), prev, prevURL, 302, header, false, true, chain)
	if err == nil {
		t.Fatal("expected TooManyRedirects error")
	}
}

func TestEvaluateCustomPolicyCanError(t *testing.T) {
	prevURL := mustParse(t, "http://a.example/")
	header := http.Header{"Location": []string{"/next"}}
	prev := &Request{Method: "GET", URL: prevURL, Header: make(http.Header), Replayable: true}
	policy := CustomRedirectPolicy(func(next *url.URL, chain []*url.URL) Verdict { return Error })
	_, err := Evaluate(policy, prev, prevURL, 302, header, false, true, nil)
	if err == nil {
		t.Fatal("expected custom policy error")
	}
}

func TestEvaluateCustomPolicyCanStopWithoutError(t *testing.T) {
	prevURL := mustParse(t, "http://a.example/")
	header := http.Header{"Location": []string{"/next"}}
	prev := &Request{Method: "GET", URL: prevURL, Header: make(http.Header), Replayable: true}
	policy := CustomRedirectPolicy(func(next *url.URL, chain []*url.URL) Verdict { return Stop })
	outcome, err := Evaluate(policy, prev, prevURL, 302, header, false, true, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !outcome.Stop || outcome.Next != nil {
		t.Fatalf("outcome = %+v, want Stop without error", outcome)
	}
}

func TestEvaluateInvalidLocationStopsWithoutError(t *testing.T) {
	prevURL := mustParse(t, "http://a.example/")
	header := http.Header{"Location": []string{"://not a url"}}
	prev := &Request{Method: "GET", URL: prevURL, Header: make(http.Header), Replayable: true}
	outcome, err := Evaluate(MaxRedirects(5), prev, prevURL, 302, header, false, true, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !outcome.Stop || outcome.Next != nil {
		t.Fatalf("outcome = %+v, want Stop without error for invalid Location", outcome)
	}
}

func TestEvaluateNoLocationHeaderStops(t *testing.T) {
	prevURL := mustParse(t, "http://a.example/")
	prev := &Request{Method: "GET", URL: prevURL, Header: make(http.Header), Replayable: true}
	outcome, err := Evaluate(MaxRedirects(5), prev, prevURL, 302, make(http.Header), false, true, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !outcome.Stop {
		t.Fatal("missing Location header must stop without error")
	}
}

func TestEvaluateNoRedirectPolicyStops(t *testing.T) {
	prevURL := mustParse(t, "http://a.example/")
	header := http.Header{"Location": []string{"/next"}}
	prev := &Request{Method: "GET", URL: prevURL, Header: make(http.Header), Replayable: true}
	outcome, err := Evaluate(NoRedirect(), prev, prevURL, 302, header, false, true, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !outcome.Stop || outcome.Next != nil {
		t.Fatalf("outcome = %+v, want Stop", outcome)
	}
}
