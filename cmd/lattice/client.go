package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	lattice "github.com/aretw0/lattice"
	"github.com/aretw0/lattice/internal/logging"
	redisadapter "github.com/aretw0/lattice/pkg/adapters/redis"
	"github.com/aretw0/lattice/pkg/observability"
)

// client bundles everything a subcommand needs to talk to the
// coordination service.
type client struct {
	cfg     Config
	conn    *lattice.Conn
	logger  *slog.Logger
	metrics *observability.Metrics
}

// newClient loads the config, connects to the coordination service and
// starts the debug listener when one is configured.
func newClient(cmd *cobra.Command) (*client, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if memberID, _ := cmd.Flags().GetString("member-id"); memberID != "" {
		cfg.MemberID = memberID
	}

	logger := logging.New(parseLevel(cfg.LogLevel))
	reg := prometheus.NewRegistry()
	metrics := observability.New(reg)

	coordOpts := []redisadapter.Option{redisadapter.WithLogger(logger)}
	if cfg.Redis.Prefix != "" {
		coordOpts = append(coordOpts, redisadapter.WithPrefix(cfg.Redis.Prefix))
	}
	coord := redisadapter.New(cfg.Redis.Address, coordOpts...)

	conn := lattice.New(coord,
		cfg.Namespace.ISD, cfg.Namespace.AS, cfg.Namespace.Service,
		cfg.MemberID,
		lattice.WithStartupTimeout(time.Duration(cfg.Timeouts.Startup)),
		lattice.WithLogger(logger),
		lattice.WithMetrics(metrics),
		lattice.WithFatalFunc(func() {}), // error is reported below
	)
	if err := conn.Start(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Redis.Address, err)
	}

	if cfg.DebugAddr != "" {
		go serveDebug(cfg.DebugAddr, reg, logger)
	}

	return &client{cfg: cfg, conn: conn, logger: logger, metrics: metrics}, nil
}

func (c *client) close() {
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("closing connection", "err", err)
	}
}

// serveDebug exposes prometheus metrics and a liveness probe.
func serveDebug(addr string, reg *prometheus.Registry, logger *slog.Logger) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	logger.Info("debug listener up", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("debug listener failed", "err", err)
	}
}
