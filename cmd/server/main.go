// Package main provides the reach API HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/driftwise/reach-api/internal/adapter/store"
	"github.com/driftwise/reach-api/internal/adapter/store/postgres"
	"github.com/driftwise/reach-api/internal/config"
	reachhttp "github.com/driftwise/reach-api/internal/http"
	"github.com/driftwise/reach-api/internal/logging"
	"github.com/driftwise/reach-api/internal/usecase"
)

const version = "0.1.0"

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("reach-api server version %s\n", version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	st := postgres.New(db, postgres.Options{}, log)

	// The ingestor owns the schema; the server only reads it.
	cache, err := store.LoadCache(ctx, st)
	if err != nil {
		return fmt.Errorf("reference cache: %w", err)
	}
	log.Info("reference cache loaded", zap.Int("reaches", cache.Len()))

	catalog, err := config.LoadCatalog(cfg.Documents)
	if err != nil {
		return fmt.Errorf("scoring documents: %w", err)
	}
	log.Info("scoring catalog loaded",
		zap.Int("species", len(catalog.AllSpecies())),
		zap.Int("hatches", len(catalog.AllHatches())))

	service := usecase.New(st, cache, catalog, cfg.Scoring, cfg.Thermal.Params(), log)
	router := reachhttp.SetupRouter(service, cfg.Server.AllowedOrigins, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.RequestTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
