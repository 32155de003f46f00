package transport

import (
	"net/http"
	"testing"
)

func TestGet_SameOriginReturnsSamePool(t *testing.T) {
	p := New()
	a := p.Get("http", "backend:3000")
	b := p.Get("http", "backend:3000")
	if a != b {
		t.Fatalf("expected the same pooled transport for the same origin")
	}
}

func TestGet_DistinctOriginsGetDistinctPools(t *testing.T) {
	p := New()
	a := p.Get("http", "backend:3000")
	b := p.Get("https", "backend:3000")
	c := p.Get("http", "backend:3001")
	if a == b || a == c || b == c {
		t.Fatalf("scheme or host:port differences must yield distinct pools")
	}
}

func TestGet_ConcurrentFirstAccessIsSafe(t *testing.T) {
	p := New()
	done := make(chan http.RoundTripper, 16)
	for i := 0; i < 16; i++ {
		go func() {
			done <- p.Get("http", "backend:3000")
		}()
	}
	first := <-done
	for i := 1; i < 16; i++ {
		if rt := <-done; rt != first {
			t.Fatalf("concurrent first access produced divergent pools")
		}
	}
}
