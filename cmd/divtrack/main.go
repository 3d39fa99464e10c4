package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minhokang/divtrack/internal/alimtalk"
	"github.com/minhokang/divtrack/internal/config"
	"github.com/minhokang/divtrack/internal/dart"
	"github.com/minhokang/divtrack/internal/dividend"
	"github.com/minhokang/divtrack/internal/dps"
	"github.com/minhokang/divtrack/internal/fx"
	"github.com/minhokang/divtrack/internal/holdings"
	"github.com/minhokang/divtrack/internal/marketdata"
	"github.com/minhokang/divtrack/internal/platform/sqlite"
	"github.com/minhokang/divtrack/internal/prefetch"
	dividendrepo "github.com/minhokang/divtrack/internal/repository/dividend"
	dpscacherepo "github.com/minhokang/divtrack/internal/repository/dpscache"
	fxraterepo "github.com/minhokang/divtrack/internal/repository/fxrate"
	holdingsrepo "github.com/minhokang/divtrack/internal/repository/holdings"
	prefetchrepo "github.com/minhokang/divtrack/internal/repository/prefetchjob"
	pricecacherepo "github.com/minhokang/divtrack/internal/repository/pricecache"
	"github.com/minhokang/divtrack/internal/server"
)

func main() {
	cfg := config.Load()

	// Root context: cancelled on SIGINT/SIGTERM so in-flight provider
	// fetches stop promptly during graceful shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Open database
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Repositories
	dpsCacheRepo := dpscacherepo.NewRepository(db.DB)
	prefetchJobRepo := prefetchrepo.NewRepository(db.DB)
	dividendRepo := dividendrepo.NewRepository(db.DB)
	fxRateRepo := fxraterepo.NewRepository(db.DB)
	holdingsRepo := holdingsrepo.NewRepository(db.DB)
	priceCacheRepo := pricecacherepo.NewRepository(db.DB)

	// Services
	dartClient := dart.New(cfg.DartAPIKeyPath, dart.WithRateLimit(cfg.DartRatePerSec))
	dpsSvc := dps.NewService(dpsCacheRepo, dartClient)
	prefetchSvc := prefetch.NewService(prefetchJobRepo, dpsCacheRepo, dpsSvc,
		prefetch.WithTxRunner(prefetchrepo.NewTxRunner(db.DB, dartClient)))
	dividendSvc := dividend.NewService(dividendRepo)
	fxSvc := fx.NewService(fxRateRepo)
	holdingsSvc := holdings.NewService(holdingsRepo)
	marketSvc := marketdata.NewService(marketdata.Default(), priceCacheRepo,
		marketdata.WithWorkers(cfg.FetchWorkers))
	alimtalkImp := alimtalk.NewImporter(dividendSvc, fxSvc)

	// HTTP server — rootCtx is used as BaseContext so every request context
	// inherits from it and is cancelled on shutdown.
	srv := server.New(rootCtx, cfg.Port, server.Services{
		Prefetch: prefetchSvc,
		DPS:      dpsSvc,
		Dividend: dividendSvc,
		Holdings: holdingsSvc,
		Market:   marketSvc,
		Alimtalk: alimtalkImp,
	})

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	<-done

	// Cancel root context first so in-flight requests begin winding down
	// immediately.
	rootCancel()

	// Then drain connections with a deadline.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
