package dnsresolve

import (
	"context"
	"errors"
	"net"
	"testing"
)

func TestResolveAddrsUsesOverrideBeforeSystem(t *testing.T) {
	r := NewResolver(map[string][]string{"service.internal": {"10.0.0.5"}})
	addrs, err := r.ResolveAddrs(context.Background(), "service.internal")
	if err != nil {
		t.Fatalf("ResolveAddrs: %v", err)
	}
	if len(addrs) != 1 || addrs[0] != "10.0.0.5" {
		t.Fatalf("addrs = %v", addrs)
	}
}

func TestResolveAddrsFallsBackWithoutOverride(t *testing.T) {
	r := NewResolver(nil)
	_, err := r.ResolveAddrs(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("ResolveAddrs for a literal IP should not need network access: %v", err)
	}
}

func TestDialFirstTriesInOrderUntilSuccess(t *testing.T) {
	var attempts []string
	dial := func(ctx context.Context, address string) (net.Conn, error) {
		attempts = append(attempts, address)
		if address == "2.2.2.2:80" {
			return &net.TCPConn{}, nil
		}
		return nil, errors.New("refused")
	}
	conn, err := DialFirst(context.Background(), []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"}, "80", dial)
	if err != nil {
		t.Fatalf("DialFirst: %v", err)
	}
	if conn == nil {
		t.Fatal("expected a non-nil conn")
	}
	if len(attempts) != 2 || attempts[0] != "1.1.1.1:80" || attempts[1] != "2.2.2.2:80" {
		t.Fatalf("attempts = %v, want fallback to stop at the first success", attempts)
	}
}

func TestDialFirstReturnsErrorWhenAllFail(t *testing.T) {
	dial := func(ctx context.Context, address string) (net.Conn, error) {
		return nil, errors.New("refused: " + address)
	}
	_, err := DialFirst(context.Background(), []string{"1.1.1.1", "2.2.2.2"}, "80", dial)
	if err == nil {
		t.Fatal("expected error when every candidate fails")
	}
}

func TestDialFirstEmptyAddrsIsError(t *testing.T) {
	_, err := DialFirst(context.Background(), nil, "80", func(ctx context.Context, address string) (net.Conn, error) {
		return nil, nil
	})
	if err == nil {
		t.Fatal("expected error for empty address list")
	}
}
