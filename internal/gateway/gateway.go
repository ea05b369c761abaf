// Package gateway provides the HTTP decision surface for pending
// confirmations: a JSON API to list and resolve them, a WebSocket stream of
// coordinator events, and Prometheus metrics. It binds to loopback by
// default.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/toolgate/toolgate/internal/audit"
	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/confirm"
)

// Gateway is the HTTP server exposing the decision API.
type Gateway struct {
	config      config.GatewayConfig
	logger      *slog.Logger
	coordinator *confirm.Coordinator
	journal     *audit.Journal
	registry    *prometheus.Registry
	stream      *Stream
	server      *http.Server
	startedAt   time.Time
}

// Options carries optional collaborators. Nil fields disable the
// corresponding endpoint.
type Options struct {
	// Journal backs GET /api/decisions.
	Journal *audit.Journal

	// Registry backs GET /metrics.
	Registry *prometheus.Registry
}

// New creates a gateway for the given coordinator. The returned gateway's
// Stream should be registered as a coordinator observer before Start.
func New(cfg config.GatewayConfig, coordinator *confirm.Coordinator, logger *slog.Logger, opts Options) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")
	return &Gateway{
		config:      cfg,
		logger:      logger,
		coordinator: coordinator,
		journal:     opts.Journal,
		registry:    opts.Registry,
		stream:      NewStream(logger),
	}
}

// Stream returns the WebSocket broadcast hub. It implements
// confirm.Observer.
func (g *Gateway) Stream() *Stream {
	return g.stream
}

// Start begins serving on the configured bind address. It returns once the
// listener is running; serve errors are logged from a background goroutine.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	go func() {
		g.logger.Info("gateway listening", "bind", g.config.Bind)
		if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve failed", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down, bounded by the configured
// shutdown timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()
	g.stream.CloseAll()
	return g.server.Shutdown(ctx)
}
