package rawhttp

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"time"

	"github.com/duskline/rawhttp/internal/herr"
)

// RequestBuilder fluently accumulates one Request before sending it. Errors
// encountered mid-chain (a failed JSON or multipart encode) are
// deferred and surfaced at Build/Send rather than panicking, mirroring
// ClientBuilder's deferred-error-state discipline (SPEC_FULL.md section
// 4.9).
type RequestBuilder struct {
	client *Client
	method string

	rawURL string
	query  url.Values

	header  http.Header
	body    Body
	timeout time.Duration

	protoMajor, protoMinor int

	err error
}

func newRequestBuilder(c *Client, method, rawURL string) *RequestBuilder {
	return &RequestBuilder{
		client:     c,
		method:     method,
		rawURL:     rawURL,
		header:     make(http.Header),
		body:       EmptyBody(),
		protoMajor: 1,
		protoMinor: 1,
	}
}

// Header adds one header value (does not replace existing values for name).
func (b *RequestBuilder) Header(name, value string) *RequestBuilder {
	b.header.Add(name, value)
	return b
}

// Headers merges h into the accumulated headers, adding to any existing
// values rather than replacing them.
func (b *RequestBuilder) Headers(h http.Header) *RequestBuilder {
	for k, v := range h {
		for _, vv := range v {
			b.header.Add(k, vv)
		}
	}
	return b
}

// BasicAuth sets the Authorization header to a base64-encoded "user:pass"
// Basic credential (supplemented convenience, SPEC_FULL.md section 12).
func (b *RequestBuilder) BasicAuth(user, pass string) *RequestBuilder {
	token := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
	b.header.Set("Authorization", "Basic "+token)
	return b
}

// BearerAuth sets the Authorization header to "Bearer <token>" (supplemented
// convenience, SPEC_FULL.md section 12).
func (b *RequestBuilder) BearerAuth(token string) *RequestBuilder {
	b.header.Set("Authorization", "Bearer "+token)
	return b
}

// Body sets an arbitrary request body, replacing any previously set body.
func (b *RequestBuilder) Body(body Body) *RequestBuilder {
	b.body = body
	if ct := body.ContentType(); ct != "" && b.header.Get("Content-Type") == "" {
		b.header.Set("Content-Type", ct)
	}
	return b
}

// Form sets the request body to an application/x-www-form-urlencoded
// encoding of values.
func (b *RequestBuilder) Form(values url.Values) *RequestBuilder {
	return b.Body(FormBody(values))
}

// JSON sets the request body to the JSON encoding of v, deferring any
// marshal error to Build/Send.
func (b *RequestBuilder) JSON(v any) *RequestBuilder {
	body, err := JSONBody(v)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	return b.Body(body)
}

// Multipart sets the request body to the multipart/form-data encoding of
// form, deferring any encode error to Build/Send.
func (b *RequestBuilder) Multipart(form *MultipartForm) *RequestBuilder {
	body, err := MultipartBody(form)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	return b.Body(body)
}

// Query adds one query-string parameter, appended to any query already
// present in rawURL (supplemented convenience, SPEC_FULL.md section 12).
func (b *RequestBuilder) Query(key, value string) *RequestBuilder {
	if b.query == nil {
		b.query = make(url.Values)
	}
	b.query.Add(key, value)
	return b
}

// Timeout overrides the Client's configured total timeout for this request only.
func (b *RequestBuilder) Timeout(d time.Duration) *RequestBuilder {
	b.timeout = d
	return b
}

// Version records the HTTP version on the built Request's ProtoMajor/
// ProtoMinor. The wire encoder writes every request line as HTTP/1.1; it
// does not read these fields.
func (b *RequestBuilder) Version(major, minor int) *RequestBuilder {
	b.protoMajor, b.protoMinor = major, minor
	return b
}

// Build resolves the accumulated state into a *Request without sending it.
func (b *RequestBuilder) Build() (*Request, error) {
	if b.err != nil {
		return nil, b.err
	}

	u, err := url.Parse(b.rawURL)
	if err != nil {
		return nil, herr.NewBuilderURLError("build", u, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, herr.NewBuilderURLError("build", u, nil)
	}

	if len(b.query) > 0 {
		q := u.Query()
		for k, vs := range b.query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	return &Request{
		Method:     b.method,
		URL:        u,
		Header:     b.header,
		Body:       b.body,
		Timeout:    b.timeout,
		ProtoMajor: b.protoMajor,
		ProtoMinor: b.protoMinor,
	}, nil
}

// Send builds the request and executes it against the bound Client,
// applying Timeout as a per-call override of the Client's default when set.
func (b *RequestBuilder) Send(ctx context.Context) (*Response, error) {
	req, err := b.Build()
	if err != nil {
		return nil, err
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	return b.client.Do(ctx, req)
}
