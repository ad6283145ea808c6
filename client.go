package rawhttp

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/duskline/rawhttp/internal/connector"
	"github.com/duskline/rawhttp/internal/decode"
	"github.com/duskline/rawhttp/internal/herr"
	"github.com/duskline/rawhttp/internal/proxy"
	"github.com/duskline/rawhttp/internal/redirectengine"
	"github.com/duskline/rawhttp/internal/wire"
)

// Client orchestrates one HTTP exchange at a time: merge default headers,
// apply auto-headers, connect, encode, parse, decode, then follow redirects
// per the configured RedirectPolicy. A Client's ClientConfig is immutable
// after ClientBuilder.Build, so a single Client is safe to call Do on
// concurrently from many goroutines, each exchange owning its own
// connection exclusively (SPEC_FULL.md section 5).
type Client struct {
	cfg     ClientConfig
	connCfg connector.Config
}

// Get returns a RequestBuilder for a GET request to rawURL.
func (c *Client) Get(rawURL string) *RequestBuilder { return c.NewRequest(http.MethodGet, rawURL) }

// Post returns a RequestBuilder for a POST request to rawURL.
func (c *Client) Post(rawURL string) *RequestBuilder { return c.NewRequest(http.MethodPost, rawURL) }

// Put returns a RequestBuilder for a PUT request to rawURL.
func (c *Client) Put(rawURL string) *RequestBuilder { return c.NewRequest(http.MethodPut, rawURL) }

// Delete returns a RequestBuilder for a DELETE request to rawURL.
func (c *Client) Delete(rawURL string) *RequestBuilder {
	return c.NewRequest(http.MethodDelete, rawURL)
}

// Patch returns a RequestBuilder for a PATCH request to rawURL.
func (c *Client) Patch(rawURL string) *RequestBuilder { return c.NewRequest(http.MethodPatch, rawURL) }

// Head returns a RequestBuilder for a HEAD request to rawURL.
func (c *Client) Head(rawURL string) *RequestBuilder { return c.NewRequest(http.MethodHead, rawURL) }

// NewRequest returns a RequestBuilder for method/rawURL, bound to this Client
// so Send can be called directly.
func (c *Client) NewRequest(method, rawURL string) *RequestBuilder {
	return newRequestBuilder(c, method, rawURL)
}

// Do executes req to completion, following redirects per the Client's
// RedirectPolicy. It has no side effects on the Client itself except via
// the configured CookieJar.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	current := c.prepareInitial(req)
	chain := []*url.URL{current.URL}

	for {
		select {
		case <-ctx.Done():
			return nil, herr.NewTimeoutError("do", c.cfg.Timeout, ctx.Err())
		default:
		}

		resp, err := c.executeOnce(ctx, current)
		if err != nil {
			if ctx.Err() != nil {
				return nil, herr.NewTimeoutError("do", c.cfg.Timeout, ctx.Err())
			}
			return nil, err
		}
		c.recordCookies(resp)

		outcome, err := redirectengine.Evaluate(
			c.cfg.RedirectPolicy,
			toEngineRequest(current),
			current.URL,
			resp.StatusCode,
			resp.Header,
			c.cfg.HTTPSOnly,
			c.cfg.RefererEnabled,
			chain,
		)
		if err != nil {
			return nil, err
		}
		if outcome.Next == nil {
			return resp, nil
		}

		current = fromEngineRequest(current, outcome.Next)
		c.injectCookies(current)
		chain = append(chain, current.URL)
	}
}

// prepareInitial merges default headers and the cookie jar into req,
// cloning it so the caller's *Request is never mutated.
func (c *Client) prepareInitial(req *Request) *Request {
	next := req.clone()
	for name, values := range c.cfg.DefaultHeaders {
		if next.Header.Get(name) == "" {
			for _, v := range values {
				next.Header.Add(name, v)
			}
		}
	}
	c.injectCookies(next)
	return next
}

func (c *Client) recordCookies(resp *Response) {
	if c.cfg.CookieJar == nil {
		return
	}
	if cookies := (&http.Response{Header: resp.Header}).Cookies(); len(cookies) > 0 {
		c.cfg.CookieJar.SetCookies(resp.URL, cookies)
	}
}

func (c *Client) injectCookies(req *Request) {
	if c.cfg.CookieJar == nil {
		return
	}
	for _, ck := range c.cfg.CookieJar.Cookies(req.URL) {
		req.Header.Add("Cookie", ck.String())
	}
}

// executeOnce performs exactly one connect → encode → parse → decode
// round trip, with no redirect handling. The stream is closed on every path
// except a 101 Switching Protocols response, which hands the live connection
// to the caller via Response.Upgrade (SPEC_FULL.md section 12).
func (c *Client) executeOnce(ctx context.Context, req *Request) (*Response, error) {
	conn, info, err := connector.Connect(ctx, c.connCfg, req.URL)
	if err != nil {
		return nil, err
	}
	closeConn := true
	defer func() {
		if closeConn {
			conn.Close()
		}
	}()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	encReq := &wire.EncodedRequest{
		Method:          req.Method,
		URL:             req.URL,
		Header:          req.Header,
		Body:            req.Body.Bytes(),
		AbsoluteForm:    c.usesAbsoluteForm(req.URL, info),
		AcceptEncodings: c.cfg.AutoDecompress.AcceptEncodingTokens(),
		UserAgent:       c.cfg.UserAgent,
	}
	if err := wire.Write(conn, encReq); err != nil {
		return nil, err
	}

	parsed, err := wire.Read(conn, req.Method)
	if err != nil {
		return nil, err
	}

	body, err := decode.Decode(parsed.Header, parsed.Body, c.cfg.AutoDecompress)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		URL:        req.URL,
		StatusCode: parsed.StatusCode,
		Status:     parsed.Status,
		ProtoMajor: parsed.ProtoMajor,
		ProtoMinor: parsed.ProtoMinor,
		Header:     parsed.Header,
		RawBody:    body,
		trace: &ConnectionInfo{
			ID:         uuid.NewString(),
			ResolvedIP: info.ResolvedIP,
			ProxyUsed:  info.ProxyUsed,
			TLSVersion: info.TLSVersion,
		},
	}
	if parsed.StatusCode == http.StatusSwitchingProtocols {
		closeConn = false
		_ = conn.SetDeadline(time.Time{}) // ownership moves to the caller; clear Do's deadline
		resp.upgradedConn = conn
	}
	return resp, nil
}

// usesAbsoluteForm reports whether the request-target must be written in
// absolute-form: true whenever a non-tunneling HTTP or HTTPS proxy is
// carrying a plain http:// target (RequestEncoder rule, SPEC_FULL.md section
// 4.4), matching connectViaProxy's own non-tunneling branch condition
// (internal/connector/connector.go) exactly — both an HTTP and an HTTPS
// proxy skip the CONNECT tunnel for a plain http:// target and expect
// absolute-form requests on the resulting plain/TLS-to-proxy connection.
func (c *Client) usesAbsoluteForm(target *url.URL, info *connector.Info) bool {
	if !info.ProxyUsed || target.Scheme == "https" {
		return false
	}
	return info.ProxyScheme == proxy.SchemeHTTP || info.ProxyScheme == proxy.SchemeHTTPS
}

func toEngineRequest(req *Request) *redirectengine.Request {
	return &redirectengine.Request{
		Method:     req.Method,
		URL:        req.URL,
		Header:     req.Header,
		Body:       req.Body.Bytes(),
		Replayable: req.Body.Replayable(),
	}
}

func fromEngineRequest(prev *Request, next *redirectengine.Request) *Request {
	return &Request{
		Method:     next.Method,
		URL:        next.URL,
		Header:     next.Header,
		Body:       BytesBody(next.Body),
		Timeout:    prev.Timeout,
		ProtoMajor: prev.ProtoMajor,
		ProtoMinor: prev.ProtoMinor,
	}
}
