package rawhttp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestBuilderBuildAppliesQueryAndHeaders(t *testing.T) {
	b := newRequestBuilder(nil, "GET", "http://example.com/search?existing=1").
		Query("q", "go").
		Header("X-Trace", "abc")

	req, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "abc", req.Header.Get("X-Trace"))
	assert.Equal(t, "existing=1&q=go", req.URL.RawQuery)
}

func TestRequestBuilderBasicAuth(t *testing.T) {
	req, err := newRequestBuilder(nil, "GET", "http://example.com/").BasicAuth("alice", "secret").Build()
	require.NoError(t, err)
	assert.Equal(t, "Basic YWxpY2U6c2VjcmV0", req.Header.Get("Authorization"))
}

func TestRequestBuilderBearerAuth(t *testing.T) {
	req, err := newRequestBuilder(nil, "GET", "http://example.com/").BearerAuth("tok123").Build()
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok123", req.Header.Get("Authorization"))
}

func TestRequestBuilderJSONSetsContentType(t *testing.T) {
	req, err := newRequestBuilder(nil, "POST", "http://example.com/").JSON(map[string]string{"a": "b"}).Build()
	require.NoError(t, err)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"a":"b"}`, string(req.Body.Bytes()))
}

func TestRequestBuilderRejectsNonHTTPScheme(t *testing.T) {
	_, err := newRequestBuilder(nil, "GET", "ftp://example.com/").Build()
	require.Error(t, err)
}

func TestRequestBuilderRejectsMalformedURL(t *testing.T) {
	_, err := newRequestBuilder(nil, "GET", "http://%zz").Build()
	require.Error(t, err)
}

func TestRequestBuilderDeferredErrorSurfacesAtBuild(t *testing.T) {
	// JSON with an unmarshalable value (a channel) fails at encode time; the
	// error must be deferred to Build rather than panicking mid-chain.
	b := newRequestBuilder(nil, "POST", "http://example.com/").JSON(make(chan int)).Header("X-After-Error", "still-chainable")
	_, err := b.Build()
	require.Error(t, err)
}

func TestRequestBuilderMultipartSetsBoundaryContentType(t *testing.T) {
	form := NewMultipartForm().AddField("k", "v")
	req, err := newRequestBuilder(nil, "POST", "http://example.com/").Multipart(form).Build()
	require.NoError(t, err)
	assert.Contains(t, req.Header.Get("Content-Type"), "multipart/form-data; boundary=")
}

func TestRequestBuilderVersionOverride(t *testing.T) {
	req, err := newRequestBuilder(nil, "GET", "http://example.com/").Version(1, 0).Build()
	require.NoError(t, err)
	assert.Equal(t, 1, req.ProtoMajor)
	assert.Equal(t, 0, req.ProtoMinor)
}
