// Package listener implements the listener fabric (C5): one net/http
// server per configured port, TLS-terminating when the config carries TLS
// material for that port, plain otherwise. Bind and TLS-material failures
// are isolated to the offending port; the rest of the fabric still comes
// up (§4.5, §7). Grounded on the teacher's cmd/gateway/main.go server
// construction, generalized from a single listener to one per port.
package listener

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fabian4/edge-gateway/internal/model"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
)

// HandlerFor builds the per-port http.Handler. The listener fabric doesn't
// know how to dispatch a request itself — that's C6 — it only knows
// whether the port it's binding terminates TLS.
type HandlerFor func(port int, isTLS bool) http.Handler

// Fabric owns every bound *http.Server, keyed by port, so Stop can drain
// them all on shutdown.
type Fabric struct {
	mu      sync.Mutex
	servers map[int]*http.Server
}

// Start binds one listener per port in routes, loading TLS material from
// tlsMap where present. It returns immediately; each listener serves on
// its own goroutine. A bind or TLS-load failure is logged and that port is
// skipped — Start never aborts the whole fabric over one bad port (§4.5).
func Start(routes model.RoutingTable, tlsMap map[int]model.TLSMaterial, handlerFor HandlerFor) *Fabric {
	f := &Fabric{servers: make(map[int]*http.Server)}

	for port := range routes {
		mat, hasTLS := tlsMap[port]

		var tlsConfig *tls.Config
		if hasTLS {
			cert, err := tls.LoadX509KeyPair(mat.CertFile, mat.KeyFile)
			if err != nil {
				log.Printf("listener: port %d: failed to load TLS material: %v (skipping)", port, err)
				continue
			}
			tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
			if mat.CAFile != "" {
				pool, err := loadCAPool(mat.CAFile)
				if err != nil {
					log.Printf("listener: port %d: failed to load CA bundle: %v (skipping)", port, err)
					continue
				}
				tlsConfig.ClientCAs = pool
				tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
			}
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handlerFor(port, hasTLS),
			ReadHeaderTimeout: readHeaderTimeout,
			IdleTimeout:       idleTimeout,
			TLSConfig:         tlsConfig,
		}

		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			log.Printf("listener: port %d: bind failed: %v (skipping)", port, err)
			continue
		}

		f.mu.Lock()
		f.servers[port] = srv
		f.mu.Unlock()

		go func(port int, srv *http.Server, ln net.Listener, isTLS bool) {
			var err error
			if isTLS {
				err = srv.ServeTLS(ln, "", "")
			} else {
				err = srv.Serve(ln)
			}
			if err != nil && err != http.ErrServerClosed {
				log.Printf("listener: port %d: serve failed: %v", port, err)
			}
		}(port, srv, ln, hasTLS)
	}

	return f
}

// Stop gracefully shuts down every listener, draining in-flight requests
// up to the given timeout per listener (§4.5).
func (f *Fabric) Stop(timeout time.Duration) {
	f.mu.Lock()
	servers := make([]*http.Server, 0, len(f.servers))
	for _, srv := range f.servers {
		servers = append(servers, srv)
	}
	f.mu.Unlock()

	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Printf("listener: shutdown: %v", err)
			}
		}(srv)
	}
	wg.Wait()
}

// Ports returns the set of ports currently bound.
func (f *Fabric) Ports() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.servers))
	for p := range f.servers {
		out = append(out, p)
	}
	return out
}
