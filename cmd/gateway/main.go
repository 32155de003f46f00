package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fabian4/edge-gateway/internal/config"
	"github.com/fabian4/edge-gateway/internal/dispatch"
	"github.com/fabian4/edge-gateway/internal/listener"
	"github.com/fabian4/edge-gateway/internal/metrics"
	"github.com/fabian4/edge-gateway/internal/router"
	"github.com/fabian4/edge-gateway/internal/selector"
	"github.com/fabian4/edge-gateway/internal/transport"
)

const shutdownDrain = 10 * time.Second

func main() {
	configPath := flag.String("config", "./config.json", "path to the routing configuration (JSON, or YAML as a convenience superset)")
	metricsAddr := flag.String("metrics-addr", ":9090", "address the Prometheus scrape endpoint binds")
	flag.Parse()

	raw, err := os.ReadFile(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	cfg, diags, err := config.Load(raw)
	if err != nil {
		for _, e := range diags.Errors {
			log.Printf("config error [%s] %s: %s", e.Code, e.Path, e.Message)
		}
		log.Fatalf("config: %v", err)
	}
	for _, w := range diags.Warnings {
		log.Printf("config warning [%s] %s: %s", w.Code, w.Path, w.Message)
	}

	reg := metrics.NewRegistry()
	d := &dispatch.Dispatcher{
		Routes:    router.New(cfg.Routes),
		Cursors:   selector.New(),
		Pools:     transport.New(),
		Defaults:  cfg.Defaults,
		AccessLog: os.Stdout,
		Metrics:   reg,
	}

	fabric := listener.Start(cfg.Routes, cfg.TLS, d.Handler)
	log.Printf("edge-gateway listening on ports %v", fabric.Ports())

	go func() {
		if err := http.ListenAndServe(*metricsAddr, reg.Handler()); err != nil {
			log.Printf("metrics: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Printf("shutting down, draining in-flight requests")
	fabric.Stop(shutdownDrain)
	d.Pools.CloseIdle()
}
