// Package app wires the sandbox together: provider gateway, bridge, session
// flow controller and the HTTP harness, with environment config and graceful
// lifecycle handling.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkellersch/authsandbox/internal/auth/bridge"
	"github.com/dkellersch/authsandbox/internal/auth/flow"
	"github.com/dkellersch/authsandbox/internal/auth/gateway"
	"github.com/dkellersch/authsandbox/internal/auth/gateway/httpgw"
	"github.com/dkellersch/authsandbox/internal/auth/gateway/memgw"
	"github.com/dkellersch/authsandbox/internal/sandbox/httpapi"
	"github.com/dkellersch/authsandbox/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application is the assembled sandbox.
type Application struct {
	cfg    Config
	logger *slog.Logger

	gw         gateway.Gateway
	mem        *memgw.Gateway // non-nil only in offline mode
	pipe       *bridge.Pipe   // non-nil only in host bridge mode
	controller *flow.Controller

	server   *http.Server
	pumpDone chan struct{}
}

// New assembles an Application from config.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authsandbox",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		pumpDone: make(chan struct{}),
	}

	if cfg.ProviderURL != "" {
		app.gw = httpgw.New(cfg.ProviderURL)
		app.logger.Info("using hosted identity provider", "url", cfg.ProviderURL)
	} else {
		app.mem = memgw.New(memgw.Options{Issuer: cfg.Issuer})
		app.gw = app.mem
		app.logger.Info("using in-process identity provider", "issuer", cfg.Issuer)
	}

	flowCfg := flow.Config{
		Gateway:       app.gw,
		Logger:        app.logger,
		GlobalSignOut: cfg.GlobalSignOut,
	}
	if cfg.BridgeMode == "host" {
		app.pipe = newHostPipe(app.logger)
		flowCfg.Bridge = app.pipe
	}
	app.controller = flow.New(flowCfg)

	routerCfg := httpapi.Config{
		Controller:   app.controller,
		Logger:       app.logger,
		BuildVersion: BuildVersion,
		Env:          cfg.Env,
	}
	if app.pipe != nil {
		routerCfg.Bridge = app.pipe
	}
	if app.mem != nil {
		routerCfg.Completer = app.mem
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpapi.New(routerCfg),
		ReadHeaderTimeout: 3 * time.Second,
	}

	return app, nil
}

// Run starts the sandbox and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.startEventPump()

	app.logger.Info("sandbox starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown stops the server, the bridge and the event pump.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down sandbox...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.pipe != nil {
		app.pipe.Close()
		<-app.pumpDone
	}

	app.logger.Info("sandbox stopped")
	return nil
}

// startEventPump forwards bridge result events into the event log, the same
// listener-logs-event loop the original UI ran per window event.
func (app *Application) startEventPump() {
	if app.pipe == nil {
		close(app.pumpDone)
		return
	}

	go func() {
		defer close(app.pumpDone)
		for ev := range app.pipe.Events() {
			app.controller.Log().Append(ev.Name, ev.Payload)
		}
	}()
}
