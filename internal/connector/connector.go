// Package connector establishes the single HttpStream for one exchange:
// proxy interception, DNS-override resolution, TCP dial, and TLS handshake,
// with per-phase timeouts (DNS plus TCP dial, proxy dial plus its tunnel
// handshake, and the target TLS handshake each get one). Grounded on the teacher's
// pkg/transport/transport.go Connect/resolveAddress/connectTCP/upgradeTLS,
// generalized to use internal/proxy and internal/dnsresolve instead of the
// teacher's single-file proxy/pool machinery.
package connector

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/duskline/rawhttp/internal/dnsresolve"
	"github.com/duskline/rawhttp/internal/herr"
	"github.com/duskline/rawhttp/internal/proxy"
	"github.com/duskline/rawhttp/internal/tlsprofile"
)

// Config mirrors SPEC_FULL.md's Connector configuration.
type Config struct {
	Proxies      []*proxy.Proxy
	Timeout      time.Duration
	KeepAlive    time.Duration
	DNSOverrides map[string][]string
	TLS          tlsprofile.Options
	UserAgent    string
	// Bypass, when non-nil, reports whether host matches the no_proxy/
	// NO_PROXY suffix list; a matching host skips every configured proxy
	// even though it would otherwise be intercepted.
	Bypass func(host string) bool
}

// Info is the connection metadata a completed Connect call reports back,
// used by Response.Trace() and cmd/proxycheck.
type Info struct {
	Host         string
	Port         int
	ResolvedIP   string
	ProxyUsed    bool
	ProxyScheme  proxy.Scheme
	TLSVersion   string
	NegotiatedH1 bool
}

// Connect establishes the HttpStream for target, honoring proxy
// interception, DNS overrides, and TLS as target's scheme dictates.
func Connect(ctx context.Context, cfg Config, target *url.URL) (net.Conn, *Info, error) {
	host := target.Hostname()
	port := portFor(target)
	info := &Info{Host: host, Port: port}

	if cfg.Bypass == nil || !cfg.Bypass(host) {
		decision := proxy.Intercept(cfg.Proxies, target)
		if decision.Scheme != proxy.SchemeNone {
			return connectViaProxy(ctx, cfg, decision, target, host, port, info)
		}
	}
	return connectDirect(ctx, cfg, target, host, port, info)
}

func portFor(u *url.URL) int {
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err == nil {
			return n
		}
	}
	if u.Scheme == "https" {
		return 443
	}
	return 80
}

func connectDirect(ctx context.Context, cfg Config, target *url.URL, host string, port int, info *Info) (net.Conn, *Info, error) {
	dialTimeout := cfg.Timeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	resolver := dnsresolve.NewResolver(cfg.DNSOverrides)
	addrs, err := resolver.ResolveAddrs(dialCtx, host)
	if err != nil {
		return nil, nil, err
	}

	conn, err := dnsresolve.DialFirst(dialCtx, addrs, strconv.Itoa(port), func(ctx context.Context, address string) (net.Conn, error) {
		d := net.Dialer{KeepAlive: cfg.KeepAlive}
		return d.DialContext(ctx, "tcp", address)
	})
	if err != nil {
		return nil, nil, herr.NewConnectionRefusedError(target.String(), net.JoinHostPort(host, strconv.Itoa(port)), err)
	}
	if len(addrs) > 0 {
		info.ResolvedIP = addrs[0]
	}

	if target.Scheme != "https" {
		return conn, info, nil
	}

	tlsConn, tlsInfo, err := upgradeTLS(ctx, conn, cfg, host, target)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	info.TLSVersion = tlsInfo
	return tlsConn, info, nil
}

func connectViaProxy(ctx context.Context, cfg Config, decision proxy.Decision, target *url.URL, host string, port int, info *Info) (net.Conn, *Info, error) {
	info.ProxyUsed = true
	info.ProxyScheme = decision.Scheme

	proxyTimeout := cfg.Timeout
	if proxyTimeout <= 0 {
		proxyTimeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, proxyTimeout)
	defer cancel()

	// An HTTP(S) proxy carrying a plain http:// target never tunnels: the
	// caller writes the request in absolute-form straight onto a plain
	// connection to the proxy (spec.md section 4.2 step 3). Every other
	// combination (https target through an HTTP(S) proxy, or any target
	// through SOCKS4/5) goes through proxy.Dial's CONNECT/SOCKS handshake.
	if (decision.Scheme == proxy.SchemeHTTP || decision.Scheme == proxy.SchemeHTTPS) && target.Scheme != "https" {
		conn, err := proxy.DialPlain(dialCtx, decision.Proxy)
		if err != nil {
			return nil, nil, err
		}
		return conn, info, nil
	}

	conn, err := proxy.Dial(dialCtx, decision.Proxy, host, port, cfg.UserAgent)
	if err != nil {
		return nil, nil, err
	}

	if target.Scheme != "https" {
		return conn, info, nil
	}

	tlsConn, tlsInfo, err := upgradeTLS(ctx, conn, cfg, host, target)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	info.TLSVersion = tlsInfo
	return tlsConn, info, nil
}

func upgradeTLS(ctx context.Context, conn net.Conn, cfg Config, host string, target *url.URL) (net.Conn, string, error) {
	handshakeTimeout := cfg.Timeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	tlsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	tlsCfg, err := tlsprofile.Build(host, cfg.TLS)
	if err != nil {
		return nil, "", err
	}

	tlsConn := tls.Client(conn, tlsCfg)
	if err := tlsConn.HandshakeContext(tlsCtx); err != nil {
		return nil, "", herr.NewTLSHandshakeError(target.String(), net.JoinHostPort(host, "443"), err)
	}
	return tlsConn, tlsprofile.GetVersionName(tlsConn.ConnectionState().Version), nil
}
