// Package app wires the gateway's components together and owns their
// lifecycle: start order, signal handling, and reverse-order shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/toolgate/toolgate/internal/audit"
	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/confirm"
	"github.com/toolgate/toolgate/internal/gateway"
	"github.com/toolgate/toolgate/internal/metrics"
	"github.com/toolgate/toolgate/internal/prompt"
	"github.com/toolgate/toolgate/internal/sweep"
	"github.com/toolgate/toolgate/internal/toolserver"
	"github.com/toolgate/toolgate/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

// App holds every running component of the gateway.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	version string

	coordinator *confirm.Coordinator
	manager     *toolserver.Manager
	gateway     *gateway.Gateway
	sweeper     *sweep.Sweeper
	prompter    *prompt.Prompter
	journal     *audit.Journal
}

// New builds the component graph from a validated config. Nothing is
// started yet; call Start or Run.
func New(cfg *config.Config, logger *slog.Logger, version string) (*App, error) {
	coordinator := confirm.NewCoordinator(logger)

	m := metrics.New()
	coordinator.AddObserver(m)

	var journal *audit.Journal
	if cfg.Audit.Path != "" {
		j, err := audit.Open(cfg.Audit.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("app: open audit journal: %w", err)
		}
		coordinator.AddObserver(j)
		journal = j
	}

	gw := gateway.New(cfg.Gateway, coordinator, logger, gateway.Options{
		Journal:  journal,
		Registry: m.Registry(),
	})
	coordinator.AddObserver(gw.Stream())

	a := &App{
		cfg:         cfg,
		logger:      logger.With("component", "app"),
		version:     version,
		coordinator: coordinator,
		manager:     toolserver.NewManager(coordinator, logger, version),
		gateway:     gw,
		journal:     journal,
	}

	mode, err := prompt.ParseMode(cfg.Prompt.Mode)
	if err != nil {
		return nil, err
	}
	if mode != prompt.ModeOff {
		a.prompter = prompt.New(mode, coordinator, logger)
		coordinator.AddObserver(a.prompter)
	}

	if cfg.Sweep.Schedule != "" {
		a.sweeper = sweep.New(coordinator, cfg.Sweep.Schedule, cfg.Sweep.MaxAge, logger)
	}

	return a, nil
}

// Coordinator exposes the confirmation coordinator, mainly for tests.
func (a *App) Coordinator() *confirm.Coordinator { return a.coordinator }

// Manager exposes the tool server manager.
func (a *App) Manager() *toolserver.Manager { return a.manager }

// Start brings the components up: tracing, tool servers, prompter,
// sweeper, then the HTTP gateway last so no request arrives before the
// rest are ready.
func (a *App) Start(ctx context.Context) error {
	if a.cfg.Tracing.Enabled {
		if err := tracing.Init(ctx, a.cfg.Tracing.Endpoint, a.version); err != nil {
			return fmt.Errorf("app: init tracing: %w", err)
		}
	}

	a.manager.Connect(ctx, a.cfg.Servers)

	if a.prompter != nil {
		a.prompter.Start()
	}
	if a.sweeper != nil {
		if err := a.sweeper.Start(); err != nil {
			return fmt.Errorf("app: start sweeper: %w", err)
		}
	}
	if err := a.gateway.Start(); err != nil {
		return fmt.Errorf("app: start gateway: %w", err)
	}

	a.logger.Info("toolgate started",
		"version", a.version,
		"bind", a.cfg.Gateway.Bind,
		"servers", len(a.manager.Names()),
	)
	return nil
}

// Stop shuts components down in reverse start order.
func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.gateway.Stop(ctx); err != nil {
		a.logger.Error("gateway shutdown", "error", err)
	}
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.prompter != nil {
		a.prompter.Stop()
	}

	// Deny whatever is still pending so awaiting invocations unblock.
	for _, p := range a.coordinator.Pending() {
		a.coordinator.Cancel(p.ServerID)
	}

	a.manager.Close()
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Error("audit journal close", "error", err)
		}
	}
	if a.cfg.Tracing.Enabled {
		if err := tracing.Shutdown(ctx); err != nil {
			a.logger.Error("tracing shutdown", "error", err)
		}
	}
}

// Run starts the app and blocks until a shutdown signal is received.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		a.logger.Info("run context cancelled")
	}

	a.Stop()
	a.logger.Info("shutdown complete")
	return nil
}
