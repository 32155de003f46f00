package listener

import (
	"net/http"
	"testing"
	"time"

	"github.com/fabian4/edge-gateway/internal/model"
)

func TestStart_SkipsPortWithUnreadableTLSMaterial(t *testing.T) {
	routes := model.RoutingTable{
		1: model.HostMap{},
	}
	tlsMap := map[int]model.TLSMaterial{
		1: {CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"},
	}

	f := Start(routes, tlsMap, func(port int, isTLS bool) http.Handler {
		return http.NotFoundHandler()
	})
	defer f.Stop(time.Second)

	for _, p := range f.Ports() {
		if p == 1 {
			t.Fatalf("port 1 must be skipped when its TLS material fails to load")
		}
	}
}

func TestStop_IsIdempotentAndReturnsPromptly(t *testing.T) {
	f := &Fabric{servers: make(map[int]*http.Server)}
	done := make(chan struct{})
	go func() {
		f.Stop(100 * time.Millisecond)
		f.Stop(100 * time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop on an empty fabric must return promptly")
	}
}
