// Package main запускает HTTP-сервер сервиса парковки.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/parkdesk/internal/config"
	"github.com/mmeshcher/parkdesk/internal/handler"
	"github.com/mmeshcher/parkdesk/internal/repository"
	"github.com/mmeshcher/parkdesk/internal/scheduler"
	"github.com/mmeshcher/parkdesk/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	decimal.MarshalJSONWithoutQuotes = true

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	loc, err := cfg.Location()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	store, err := openStore(cfg)
	if err != nil {
		sugar.Fatalw("storage initialization error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := service.NewService(ctx, store, logger, service.WithLocation(loc))
	defer func() {
		if err := svc.Close(); err != nil {
			sugar.Errorw("storage close error", "error", err)
		}
	}()

	sched, err := scheduler.New(svc, logger, loc)
	if err != nil {
		sugar.Fatalw("scheduler initialization error", "error", err.Error())
	}

	h := handler.NewHandler(svc, logger, cfg.Origins())

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Смена дня в полночь
	g.Go(func() error {
		return sched.Run(ctx)
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting parking server", "addr", cfg.RunAddress, "timezone", loc.String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Errorw("application terminated with error", "error", err)
	}
}

// openStore выбирает хранилище: PostgreSQL, SQLite или память.
func openStore(cfg *config.Config) (service.Store, error) {
	switch {
	case cfg.DatabaseURI != "":
		return repository.NewPostgresRepository(cfg.DatabaseURI)
	case cfg.SQLitePath != "":
		return repository.NewSQLiteRepository(cfg.SQLitePath)
	default:
		return repository.NewMemoryRepository(), nil
	}
}
