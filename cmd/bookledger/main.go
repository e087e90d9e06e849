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

	"github.com/odyssey-erp/bookledger/internal/app"
	"github.com/odyssey-erp/bookledger/internal/auth"
	"github.com/odyssey-erp/bookledger/internal/ledger"
	"github.com/odyssey-erp/bookledger/internal/ledger/documents"
	"github.com/odyssey-erp/bookledger/internal/ledger/payments"
	"github.com/odyssey-erp/bookledger/internal/ledger/sequences"
	"github.com/odyssey-erp/bookledger/internal/ledger/statements"
	"github.com/odyssey-erp/bookledger/internal/observability"
	"github.com/odyssey-erp/bookledger/internal/platform/cache"
	"github.com/odyssey-erp/bookledger/internal/platform/db"
	"github.com/odyssey-erp/bookledger/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	txManager := db.NewTxManager(dbpool, cfg.DBTxMaxAttempts)
	txManager.OnRetry(func(attempt int, err error) {
		metrics.TxRetried()
		logger.Warn("transaction retry", slog.Int("attempt", attempt), slog.Any("error", err))
	})

	var statementCache *statements.Cache
	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Warn("redis unavailable, statements served uncached", slog.Any("error", err))
	} else {
		statementCache = statements.NewCache(redisClient, cfg.StatementCacheTTL).WithLogger(logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	jobClient, err := jobs.NewClient(cfg.RedisOptions().AsynqOpt(), logger)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	services := ledger.NewServices(ledger.Config{
		Pool:     dbpool,
		Tx:       txManager,
		Cache:    statementCache,
		Notifier: jobClient,
		Metrics:  metrics,
		Logger:   logger,
	})

	inspector := asynq.NewInspector(cfg.RedisOptions().AsynqOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Auth:             auth.Middleware{Tokens: auth.NewTokens(cfg.AuthSecret, cfg.AuthIssuer), Logger: logger},
		PeriodsService:   services.Periods,
		SequenceHandler:  sequences.NewHandler(logger, services.Sequences),
		DocumentHandler:  documents.NewHandler(logger, services.Documents),
		PaymentHandler:   payments.NewHandler(logger, services.Payments),
		StatementHandler: statements.NewHandler(logger, services.Statements),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
