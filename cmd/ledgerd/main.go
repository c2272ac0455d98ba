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

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	enginehttp "github.com/odyssey-erp/odyssey-ledger/internal/engine/http"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	rt, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		os.Exit(1)
	}
	defer rt.Close()

	metrics := observability.NewMetrics()
	redisOpts := cfg.QueueRedisOpts()

	var jobHandler *jobs.Handler
	if rt.Redis != nil {
		client, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init jobs client", slog.Any("error", err))
			os.Exit(1)
		}
		defer client.Close()
		inspector := asynq.NewInspector(redisOpts)
		defer inspector.Close()
		jobHandler = jobs.NewHandler(inspector, client, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		LedgerHandler: enginehttp.NewHandler(rt.Engine, cfg.BaseCurrency, logger),
		JobHandler:    jobHandler,
		Metrics:       metrics,
		Ready:         rt.Ready,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.Store))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.WorkerEmbedded {
		if rt.Redis == nil {
			logger.Warn("embedded worker disabled: redis unavailable")
		} else {
			worker, err := app.NewWorker(cfg, rt.Engine, redisOpts, metrics.Jobs(), logger)
			if err != nil {
				logger.Error("init worker", slog.Any("error", err))
				os.Exit(1)
			}
			g.Go(func() error {
				if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		logger.Error("ledgerd", slog.Any("error", err))
		os.Exit(1)
	}
}
