package connector

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"testing"

	"github.com/duskline/rawhttp/internal/proxy"
)

// TestConnectBypassSkipsConfiguredProxy exercises no_proxy/NO_PROXY semantics
// (spec.md section 6, "Environment variables consumed"): a host matching the
// Bypass predicate must dial the target directly even though a proxy is
// configured, proven here by pointing the configured proxy at a closed port
// that would refuse any connection attempt.
func TestConnectBypassSkipsConfiguredProxy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi: %v", err)
	}

	deadProxy := proxy.ForAll(proxy.SchemeHTTP, "127.0.0.1", 1)

	target, err := url.Parse("http://127.0.0.1:" + portStr + "/")
	if err != nil {
		t.Fatalf("parse target: %v", err)
	}

	cfg := Config{
		Proxies: []*proxy.Proxy{deadProxy},
		Bypass:  func(host string) bool { return host == "127.0.0.1" },
	}

	conn, info, err := Connect(context.Background(), cfg, target)
	if err != nil {
		t.Fatalf("Connect with bypass: %v", err)
	}
	defer conn.Close()
	if info.ProxyUsed {
		t.Errorf("ProxyUsed = true, want false (host is on the bypass list)")
	}
	if info.Port != port {
		t.Errorf("Port = %d, want %d", info.Port, port)
	}
}

// TestConnectWithoutBypassUsesProxy is the negative case: with no Bypass
// predicate (or one that returns false), the configured proxy is consulted.
func TestConnectWithoutBypassUsesProxy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan struct{}, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- struct{}{}
		c.Close()
	}()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi: %v", err)
	}

	p := proxy.ForAll(proxy.SchemeHTTP, "127.0.0.1", port)
	target, err := url.Parse("http://example.invalid/")
	if err != nil {
		t.Fatalf("parse target: %v", err)
	}

	cfg := Config{Proxies: []*proxy.Proxy{p}}
	conn, info, err := Connect(context.Background(), cfg, target)
	if err != nil {
		t.Fatalf("Connect via proxy: %v", err)
	}
	defer conn.Close()
	if !info.ProxyUsed {
		t.Errorf("ProxyUsed = false, want true")
	}
	select {
	case <-accepted:
	default:
		t.Errorf("proxy listener never accepted a connection")
	}
}
