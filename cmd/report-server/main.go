// Command report-server loads the configured energy data and serves report
// rows to dashboards over WebSocket, with Prometheus metrics alongside.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"home_energy/internal/aggregate"
	"home_energy/internal/config"
	"home_energy/internal/ingest"
	"home_energy/internal/metrics"
	"home_energy/internal/ws"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "YAML config file (default $HOME_ENERGY_CONFIG)")
	addr := flag.String("addr", "", "listen address (overrides config)")
	staticDir := flag.String("static-dir", "", "directory of dashboard files served at /")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("warn: reading .env: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	reload := loader(cfg.Sources, loc, log.Default())
	agg, err := reload(ctx, nil)
	if err != nil {
		log.Fatalf("Failed to load data: %v", err)
	}
	if tr, ok := agg.TimeRange(); ok {
		log.Printf("Data loaded: %s to %s", tr.Start.Format("2006-01-02"), tr.End.Format("2006-01-02"))
	} else {
		log.Printf("No data loaded yet")
	}

	reg := prometheus.NewRegistry()
	var handler *ws.Handler
	m := metrics.New(reg, metrics.NewCollector(func() aggregate.Stats {
		return handler.Aggregator().Stats()
	}))
	m.LoadsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	handler = ws.NewHandler(ws.NewHub(), agg, reload, ws.WithMetrics(m))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newMux(handler, reg, *staticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var g run.Group
	g.Add(func() error {
		log.Printf("Starting server on %s", srv.Addr)
		return srv.ListenAndServe()
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	})
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err = g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		log.Printf("received %s, exiting", sig.Signal)
		return
	}
	if err != nil {
		log.Fatal(err)
	}
}

// loader returns a ws.ReloadFunc that reads every configured source into a
// new aggregator.
func loader(specs []ingest.Spec, loc *time.Location, logger *log.Logger) ws.ReloadFunc {
	return func(ctx context.Context, observer aggregate.Observer) (*aggregate.Aggregator, error) {
		opts := []aggregate.Option{aggregate.WithLogger(logger), aggregate.WithLocation(loc)}
		if observer != nil {
			opts = append(opts, aggregate.WithObserver(observer))
		}
		agg := aggregate.New(opts...)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := ingest.LoadAll(agg, specs, loc, logger); err != nil {
			return nil, err
		}
		if n := agg.Validate(); n > 0 {
			logger.Printf("warn: %d hour(s) with conflicting sources report zero energy", n)
		}
		return agg, nil
	}
}

func newMux(handler http.Handler, reg *prometheus.Registry, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("/ws", handler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	if staticDir != "" {
		if _, err := os.Stat(staticDir); err == nil {
			log.Printf("Serving dashboard from %s", staticDir)
			mux.Handle("/", http.FileServer(http.Dir(staticDir)))
		}
	}
	return mux
}
