package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Randy-sin/dse-realtime-gateway/internal/history"
	"github.com/Randy-sin/dse-realtime-gateway/internal/realtime"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	d := deps{
		dialer: realtime.NewDialer(realtime.EnvConfig{}),
	}

	var store *history.Store
	if cfg.databaseURL != "" {
		var err error
		store, err = history.Open(cfg.databaseURL, cfg.probeKeepLimit)
		if err != nil {
			slog.Warn("probe history disabled", "error", err)
		} else {
			d.history = store
			slog.Info("probe history enabled", "keep_limit", cfg.probeKeepLimit)
		}
	}

	mux := http.NewServeMux()
	registerRoutes(mux, d)

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.shutdownTimeout)*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("gateway starting", "addr", addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	if store != nil {
		store.Close()
	}
	slog.Info("gateway stopped")
}
