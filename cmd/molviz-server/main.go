package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daniacca/molviz/internal/molviz"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := loadServerConfig()
	logger := NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Infof("Starting molviz-server: log_level=%s addr=%s", cfg.LogLevel, cfg.Addr)

	library, err := molviz.OpenPresetLibrary(cfg.PresetDir, cfg.CatalogueFile, logger)
	if err != nil {
		logger.Fatalf("Failed to load presets: dir=%q error=%v", cfg.PresetDir, err)
	}
	logger.Infof("Presets loaded: dir=%q presets=%d", cfg.PresetDir, len(library.Catalogue().Entries()))

	srv := NewServer(cfg, library, logger)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("molviz-server listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := library.Watch(gctx, cfg.WatchDebounce); err != nil {
			logger.Warnf("Preset watcher stopped, catalogue will not reload: error=%v", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Infof("Shutting down")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("HTTP shutdown: %v", err)
		}
		return srv.Close()
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("Server error: %v", err)
	}
}
