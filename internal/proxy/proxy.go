// Package proxy decides whether an outgoing request is intercepted by an
// upstream proxy and, if so, dials through it: HTTP/HTTPS CONNECT
// tunneling, manual SOCKS4, and golang.org/x/net/proxy-backed SOCKS5.
// CONNECT request framing and the 407-vs-other-failure distinction are
// grounded on original_source/src/connect.rs's mock_tunnel tests
// (test_tunnel, test_tunnel_proxy_unauthorized, test_tunnel_basic_auth);
// the SOCKS4 byte layout and the HTTP CONNECT/SOCKS5 dial plumbing are
// grounded on the teacher's pkg/transport/transport.go
// connectViaHTTPProxy/connectViaSOCKS4Proxy/connectViaSOCKS5Proxy, and
// ParseProxyURL is adapted from the teacher's pkg/client/proxy_parser.go.
package proxy

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	netproxy "golang.org/x/net/proxy"

	"github.com/duskline/rawhttp/internal/herr"
)

// Scheme identifies the proxy protocol.
type Scheme int

const (
	SchemeNone Scheme = iota
	SchemeHTTP
	SchemeHTTPS
	SchemeSOCKS4
	SchemeSOCKS5
)

// Decision is what Intercept returns for one outgoing URL.
type Decision struct {
	Scheme Scheme
	Proxy  *Proxy
}

// Credentials is Basic-auth material attached to a proxy.
type Credentials struct {
	Username, Password string
}

// Proxy is one configured upstream proxy.
type Proxy struct {
	Scheme     Scheme
	Host       string
	Port       int
	Auth       *Credentials
	RemoteDNS  bool        // SOCKS5 only: true sends the hostname to the proxy, false resolves locally first
	TLSConfig  *tls.Config // only consulted when Scheme == SchemeHTTPS (TLS to the proxy itself)
	forScheme  string      // "http", "https", or "" for ForAll
}

func (p *Proxy) addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// ForHTTP builds a proxy that intercepts only http:// targets.
func ForHTTP(scheme Scheme, host string, port int) *Proxy {
	return &Proxy{Scheme: scheme, Host: host, Port: port, forScheme: "http"}
}

// ForHTTPS builds a proxy that intercepts only https:// targets.
func ForHTTPS(scheme Scheme, host string, port int) *Proxy {
	return &Proxy{Scheme: scheme, Host: host, Port: port, forScheme: "https"}
}

// ForAll builds a proxy that intercepts every target scheme.
func ForAll(scheme Scheme, host string, port int) *Proxy {
	return &Proxy{Scheme: scheme, Host: host, Port: port}
}

// WithBasicAuth attaches Basic credentials, used for HTTP/HTTPS proxies'
// Proxy-Authorization header and SOCKS5's username/password negotiation.
func (p *Proxy) WithBasicAuth(user, pass string) *Proxy {
	p.Auth = &Credentials{Username: user, Password: pass}
	return p
}

// WithRemoteDNS controls, for a SOCKS5 proxy, whether hostnames are resolved
// by the proxy (true, the default golang.org/x/net/proxy behavior) or
// locally before dialing (false).
func (p *Proxy) WithRemoteDNS(remote bool) *Proxy {
	p.RemoteDNS = remote
	return p
}

// RestrictToScheme narrows interception to targets of the given scheme
// ("http" or "https"); an empty scheme restores ForAll behavior. Used by
// ParseProxyURL-based constructors that need the ForHTTP/ForHTTPS
// distinction without re-parsing the URL.
func (p *Proxy) RestrictToScheme(scheme string) *Proxy {
	p.forScheme = scheme
	return p
}

// Intercept reports which configured proxy (if any) should carry target.
func Intercept(proxies []*Proxy, target *url.URL) Decision {
	for _, p := range proxies {
		if p.forScheme != "" && p.forScheme != target.Scheme {
			continue
		}
		return Decision{Scheme: p.Scheme, Proxy: p}
	}
	return Decision{Scheme: SchemeNone}
}

// ParseProxyURL parses "scheme://[user:pass@]host[:port]" into a Proxy,
// applying the teacher's default ports (http 8080, https 443, socks4/5 1080).
func ParseProxyURL(raw string) (*Proxy, error) {
	if raw == "" {
		return nil, herr.NewBuilderError("parse_proxy_url", "proxy URL cannot be empty", nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, herr.NewBuilderError("parse_proxy_url", "invalid proxy url", err)
	}

	var scheme Scheme
	switch u.Scheme {
	case "http":
		scheme = SchemeHTTP
	case "https":
		scheme = SchemeHTTPS
	case "socks4":
		scheme = SchemeSOCKS4
	case "socks5":
		scheme = SchemeSOCKS5
	case "":
		return nil, herr.NewBuilderError("parse_proxy_url", "proxy url must include a scheme", nil)
	default:
		return nil, herr.NewBuilderError("parse_proxy_url", "unsupported proxy scheme: "+u.Scheme, nil)
	}

	host := u.Hostname()
	if host == "" {
		return nil, herr.NewBuilderError("parse_proxy_url", "proxy url must include a host", nil)
	}

	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return nil, herr.NewBuilderError("parse_proxy_url", "invalid proxy port: "+p, nil)
		}
	} else {
		switch scheme {
		case SchemeHTTP:
			port = 8080
		case SchemeHTTPS:
			port = 443
		case SchemeSOCKS4, SchemeSOCKS5:
			port = 1080
		}
	}

	proxy := &Proxy{Scheme: scheme, Host: host, Port: port, RemoteDNS: scheme == SchemeSOCKS5}
	if u.User != nil {
		pass, _ := u.User.Password()
		proxy.Auth = &Credentials{Username: u.User.Username(), Password: pass}
	}
	return proxy, nil
}

// FromEnvironment builds the system-proxy configuration from
// http_proxy/HTTP_PROXY, https_proxy/HTTPS_PROXY, and no_proxy/NO_PROXY,
// lowercase variables taking precedence when both forms are set.
func FromEnvironment() (proxies []*Proxy, bypass func(host string) bool) {
	httpURL := firstNonEmpty(os.Getenv("http_proxy"), os.Getenv("HTTP_PROXY"))
	httpsURL := firstNonEmpty(os.Getenv("https_proxy"), os.Getenv("HTTPS_PROXY"))
	noProxy := firstNonEmpty(os.Getenv("no_proxy"), os.Getenv("NO_PROXY"))

	if httpURL != "" {
		if p, err := ParseProxyURL(httpURL); err == nil {
			p.forScheme = "http"
			proxies = append(proxies, p)
		}
	}
	if httpsURL != "" {
		if p, err := ParseProxyURL(httpsURL); err == nil {
			p.forScheme = "https"
			proxies = append(proxies, p)
		}
	}

	var suffixes []string
	for _, s := range strings.Split(noProxy, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			suffixes = append(suffixes, strings.ToLower(s))
		}
	}
	bypass = func(host string) bool {
		host = strings.ToLower(host)
		for _, suf := range suffixes {
			if host == suf || strings.HasSuffix(host, "."+suf) {
				return true
			}
		}
		return false
	}
	return proxies, bypass
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// DialPlain opens a connection to p itself (TLS if p.Scheme is SchemeHTTPS)
// without issuing a CONNECT tunnel, for the "HTTP proxy carrying a plain
// http:// target" case (spec.md section 4.2 step 3): requests to such a
// proxy are written in absolute-form directly on this connection, so no
// tunnel handshake is needed or wanted.
func DialPlain(ctx context.Context, p *Proxy) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.addr())
	if err != nil {
		return nil, herr.NewProxyConnectError(p.addr(), p.addr(), err)
	}
	if p.Scheme != SchemeHTTPS {
		return conn, nil
	}
	tlsCfg := p.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{ServerName: p.Host}
	} else {
		tlsCfg = tlsCfg.Clone()
		if tlsCfg.ServerName == "" {
			tlsCfg.ServerName = p.Host
		}
	}
	tlsConn := tls.Client(conn, tlsCfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, herr.NewTLSHandshakeError(p.addr(), p.addr(), err)
	}
	return tlsConn, nil
}

// Dial connects to target (host:port) through proxy, returning a stream
// already inside the tunnel (for HTTP(S)/SOCKS4/5) ready for the caller to
// layer TLS atop if the target scheme is https.
func Dial(ctx context.Context, p *Proxy, targetHost string, targetPort int, userAgent string) (net.Conn, error) {
	targetAddr := net.JoinHostPort(targetHost, strconv.Itoa(targetPort))
	switch p.Scheme {
	case SchemeHTTP, SchemeHTTPS:
		return dialHTTPConnect(ctx, p, targetAddr, userAgent)
	case SchemeSOCKS4:
		return dialSOCKS4(ctx, p, targetHost, targetPort)
	case SchemeSOCKS5:
		return dialSOCKS5(ctx, p, targetAddr)
	default:
		return nil, herr.NewProxyConnectError(targetAddr, p.addr(), nil)
	}
}

// dialHTTPConnect implements the CONNECT tunnel handshake: connect to the
// proxy (TLS first if the proxy itself is https), write a CONNECT request
// with Host/User-Agent/Proxy-Authorization, and require a 2xx status,
// surfacing 407 as a distinct ProxyAuthRequired error.
func dialHTTPConnect(ctx context.Context, p *Proxy, targetAddr, userAgent string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.addr())
	if err != nil {
		return nil, herr.NewProxyConnectError(targetAddr, p.addr(), err)
	}

	if p.Scheme == SchemeHTTPS {
		tlsCfg := p.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{ServerName: p.Host}
		} else {
			tlsCfg = tlsCfg.Clone()
			if tlsCfg.ServerName == "" {
				tlsCfg.ServerName = p.Host
			}
		}
		tlsConn := tls.Client(conn, tlsCfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, herr.NewTLSHandshakeError(targetAddr, p.addr(), err)
		}
		conn = tlsConn
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CONNECT %s HTTP/1.1\r\n", targetAddr)
	fmt.Fprintf(&b, "Host: %s\r\n", targetAddr)
	if userAgent != "" {
		fmt.Fprintf(&b, "User-Agent: %s\r\n", userAgent)
	}
	if p.Auth != nil {
		auth := base64.StdEncoding.EncodeToString([]byte(p.Auth.Username + ":" + p.Auth.Password))
		fmt.Fprintf(&b, "Proxy-Authorization: Basic %s\r\n", auth)
	}
	b.WriteString("\r\n")

	if _, err := conn.Write([]byte(b.String())); err != nil {
		conn.Close()
		return nil, herr.NewProxyConnectError(targetAddr, p.addr(), err)
	}

	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, herr.NewProxyConnectError(targetAddr, p.addr(), err)
	}
	if strings.Contains(statusLine, " 407") {
		conn.Close()
		return nil, herr.NewProxyAuthRequiredError(targetAddr, p.addr())
	}
	if fields := strings.Fields(statusLine); len(fields) < 2 || len(fields[1]) != 3 || fields[1][0] != '2' {
		conn.Close()
		return nil, herr.NewProxyConnectError(targetAddr, p.addr(), nil)
	}
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			conn.Close()
			return nil, herr.NewProxyConnectError(targetAddr, p.addr(), err)
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}
	return conn, nil
}

// dialSOCKS4 implements the minimal SOCKS4 CONNECT exchange. SOCKS4 is
// IPv4-only and resolves hostnames locally, never through the proxy.
func dialSOCKS4(ctx context.Context, p *Proxy, targetHost string, targetPort int) (net.Conn, error) {
	targetAddr := net.JoinHostPort(targetHost, strconv.Itoa(targetPort))

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", targetHost)
	if err != nil || len(ips) == 0 {
		return nil, herr.NewDNSError(targetAddr, targetHost, err)
	}
	ip4 := ips[0].To4()
	if ip4 == nil {
		return nil, herr.NewDNSError(targetAddr, targetHost, nil)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.addr())
	if err != nil {
		return nil, herr.NewProxyConnectError(targetAddr, p.addr(), err)
	}

	req := []byte{0x04, 0x01, byte(targetPort >> 8), byte(targetPort & 0xFF)}
	req = append(req, ip4...)
	if p.Auth != nil {
		req = append(req, []byte(p.Auth.Username)...)
	}
	req = append(req, 0x00)

	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, herr.NewProxyConnectError(targetAddr, p.addr(), err)
	}

	resp := make([]byte, 8)
	if _, err := io.ReadFull(conn, resp); err != nil {
		conn.Close()
		return nil, herr.NewProxyConnectError(targetAddr, p.addr(), err)
	}
	if resp[1] != 0x5A {
		conn.Close()
		return nil, herr.NewProxyConnectError(targetAddr, p.addr(), nil)
	}
	return conn, nil
}

// dialSOCKS5 uses golang.org/x/net/proxy for RFC 1928 compliance. That
// dialer always resolves via the proxy; when p.RemoteDNS is false the
// target host is resolved locally first and the resulting IP is dialed
// instead of the hostname.
func dialSOCKS5(ctx context.Context, p *Proxy, targetAddr string) (net.Conn, error) {
	var auth *netproxy.Auth
	if p.Auth != nil {
		auth = &netproxy.Auth{User: p.Auth.Username, Password: p.Auth.Password}
	}

	dialer, err := netproxy.SOCKS5("tcp", p.addr(), auth, &net.Dialer{})
	if err != nil {
		return nil, herr.NewProxyConnectError(targetAddr, p.addr(), err)
	}

	dialAddr := targetAddr
	if !p.RemoteDNS {
		host, port, splitErr := net.SplitHostPort(targetAddr)
		if splitErr == nil {
			if ips, lookupErr := net.DefaultResolver.LookupIPAddr(ctx, host); lookupErr == nil && len(ips) > 0 {
				dialAddr = net.JoinHostPort(ips[0].IP.String(), port)
			}
		}
	}

	conn, err := dialer.Dial("tcp", dialAddr)
	if err != nil {
		return nil, herr.NewProxyConnectError(targetAddr, p.addr(), err)
	}
	return conn, nil
}
