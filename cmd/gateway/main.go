package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubenschmidt/voicebridge-gateway/internal/callsession"
	"github.com/hubenschmidt/voicebridge-gateway/internal/configsvc"
	"github.com/hubenschmidt/voicebridge-gateway/internal/gpuclient"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	t := loadTuning("gateway.yaml")
	cfg := loadConfig()

	gpu := gpuclient.New(cfg.gpuInferenceURL, cfg.gpuInferenceAPIKey)
	configSvc := configsvc.New(cfg.configSvcURL, cfg.configSvcSecret)
	registry := callsession.NewRegistry()

	d := &deps{
		cfg:       cfg,
		tuning:    t,
		gpu:       gpu,
		configSvc: configSvc,
		registry:  registry,
	}

	mux := http.NewServeMux()
	registerRoutes(mux, d)

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go awaitShutdown(srv)

	slog.Info("gateway starting", "addr", addr, "max_concurrent_calls", cfg.maxConcurrentCalls)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway stopped")
}

// awaitShutdown blocks until SIGINT/SIGTERM, then calls srv.Shutdown with a
// 30s deadline. Shutdown closes the listener at once and waits only for
// ordinary HTTP requests to finish; upgraded audio WebSockets are hijacked
// connections, so their adapter.Run loops are neither waited for nor
// cancelled, and main returns as soon as ListenAndServe reports the shutdown.
func awaitShutdown(srv *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv.Shutdown(ctx)
}
