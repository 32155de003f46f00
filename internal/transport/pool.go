// Package transport maintains the upstream connection pools (§4.6.2.e, §9):
// one pool per (scheme, host, port), bounded to 100 concurrent sockets and
// 10 idle sockets, with a 60-second idle timeout. It is grounded on the
// teacher's internal/forward/registry.go, narrowed from a named-transport
// registry to a pool keyed by the upstream origin itself, since the core
// never needs more than one RoundTripper shape per origin.
package transport

import (
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	maxConnsPerHost     = 100
	maxIdleConnsPerHost = 10
	idleConnTimeout     = 60 * time.Second

	dialTimeout   = 5 * time.Second
	dialKeepAlive = 60 * time.Second
)

// Pools is a threadsafe registry of http.Transport instances, one per
// upstream origin. Safe for concurrent use; internally synchronized
// per host:port as §5 requires.
type Pools struct {
	mu    sync.RWMutex
	byKey map[string]*http.Transport
}

func New() *Pools {
	return &Pools{byKey: make(map[string]*http.Transport)}
}

// Get returns the pooled RoundTripper for scheme://host:port, creating one
// on first use. scheme must be "http" or "https"; the loader's validator
// guarantees this for every configured target (§4.3).
func (p *Pools) Get(scheme, hostport string) http.RoundTripper {
	key := scheme + "://" + hostport

	p.mu.RLock()
	tr, ok := p.byKey[key]
	p.mu.RUnlock()
	if ok {
		return tr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tr, ok := p.byKey[key]; ok {
		return tr
	}
	tr = newTransport()
	p.byKey[key] = tr
	return tr
}

// CloseIdle drops every pooled idle connection across every origin. Called
// during graceful shutdown once all listeners have drained (§4.5).
func (p *Pools) CloseIdle() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, tr := range p.byKey {
		tr.CloseIdleConnections()
	}
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: dialKeepAlive,
	}
	return &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     false,
		TLSClientConfig:       &tls.Config{NextProtos: []string{"http/1.1"}},
		MaxConnsPerHost:       maxConnsPerHost,
		MaxIdleConnsPerHost:   maxIdleConnsPerHost,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
