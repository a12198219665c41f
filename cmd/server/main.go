package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yangwenmai/vidlens/internal/api"
	"github.com/yangwenmai/vidlens/internal/app"
	"github.com/yangwenmai/vidlens/internal/config"
	"github.com/yangwenmai/vidlens/internal/logger"
	"github.com/yangwenmai/vidlens/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vidlens-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LoggerOptions())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Media.AssertReady(ctx); err != nil {
		log.Warn("media tools unavailable, ingest will fail", "error", err)
	}

	srv := api.New(a.Store, a.Ingest, a.Retriever, a.Composer, api.Options{
		CORSOrigin:     cfg.CORSOrigin,
		RateLimit:      cfg.APIRateLimit,
		IngestDefaults: a.IngestOptions(),
	}, log.With("component", "api"))
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.WatchDir != "" {
		w := worker.New(cfg.WatchDir, a.Ingest, a.IngestOptions(), cfg.WatchInterval, log.With("component", "worker"))
		g.Go(func() error {
			w.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		log.Info("vidlens server listening", "addr", "http://localhost:"+cfg.Port)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
