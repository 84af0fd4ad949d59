// Command shelld runs the Axiom Shell: the supervisor process that hosts
// tenant WebAssembly kernels, dispatches HTTP calls into them, and brokers
// their outbound egress through the resilience pipeline.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/axiom-run/shell/pkg/bridge"
	"github.com/axiom-run/shell/pkg/ccp"
	"github.com/axiom-run/shell/pkg/config"
	"github.com/axiom-run/shell/pkg/dbprovider"
	"github.com/axiom-run/shell/pkg/egress"
	"github.com/axiom-run/shell/pkg/frontdoor"
	"github.com/axiom-run/shell/pkg/hotreload"
	"github.com/axiom-run/shell/pkg/ratelimit"
	"github.com/axiom-run/shell/pkg/registryfile"
	"github.com/axiom-run/shell/pkg/supervisor"
	"github.com/axiom-run/shell/pkg/tenant"
)

func main() {
	cfg := config.Load()

	logLevel := new(slog.LevelVar)
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = nil
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runtime, err := bridge.NewRuntime(ctx, 0)
	if err != nil {
		logger.Error("shelld: failed to build wasm runtime", "error", err)
		os.Exit(1)
	}
	defer runtime.Close(ctx)

	tenants := tenant.NewManager(runtime)
	bindings := egress.NewBindingTable()
	manifest := egress.NewManifest()
	security := egress.NewSecurityStore()
	db := dbprovider.NewRegistry()

	var downstreamLimiter ratelimit.Store
	if cfg.RedisAddr != "" {
		downstreamLimiter = ratelimit.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, 0)
	}
	pipeline := egress.NewPipeline(bindings, manifest, security, tenants, nil, downstreamLimiter, cfg.DownstreamRPS, cfg.RetryUnsafeMethods)

	br, err := bridge.NewBridge(ctx, runtime, pipeline, db, logger)
	if err != nil {
		logger.Error("shelld: failed to register host module", "error", err)
		os.Exit(1)
	}

	ccpClient := ccp.NewClient(cfg.CCPBaseURL)
	writer := registryfile.NewWriter(cfg.RegistryPath)
	sup := supervisor.New(tenants, pipeline, db, br, ccpClient, writer, logger)

	targets := registryfile.Targets{Bindings: bindings, Manifests: manifest, Security: security, Databases: db}
	if _, err := registryfile.Apply(cfg.RegistryPath, targets); err != nil {
		logger.Error("shelld: initial registry load failed", "error", err)
	}

	go sup.RunHealthLoop(ctx)

	listener := hotreload.New(cfg.SocketPath, sup, logger)
	go func() {
		if err := listener.Serve(ctx); err != nil {
			logger.Error("shelld: hot-reload listener failed", "error", err)
		}
	}()

	upstreamLimiter := ratelimit.NewInMemoryStore()
	publicBaseURL := "http://" + cfg.HTTPAddr
	server := frontdoor.NewServer(sup, security, upstreamLimiter, cfg.UpstreamRPS, cfg.RegistryPath, targets, publicBaseURL, logger)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Routes(),
	}

	go func() {
		logger.Info("shelld: http front door listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("shelld: http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shelld: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shelld: graceful shutdown failed", "error", err)
	}
}
