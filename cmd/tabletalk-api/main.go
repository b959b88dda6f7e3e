package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tabletalk/tabletalk/internal/api"
	"github.com/tabletalk/tabletalk/internal/assistant"
	"github.com/tabletalk/tabletalk/internal/auth"
	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/observability"
	s3store "github.com/tabletalk/tabletalk/internal/storage/s3"
	"github.com/tabletalk/tabletalk/internal/warehouse"
	"github.com/tabletalk/tabletalk/internal/warehouse/lake"
	"github.com/tabletalk/tabletalk/internal/warehouse/postgres"
)

func main() {
	cfg, err := config.LoadFromEnv("tabletalk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	wh, err := openWarehouse(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to open warehouse", slog.String("driver", cfg.Warehouse.Driver), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = wh.Close() }()

	gateway, err := llm.NewOpenAIGateway(llm.OpenAIConfig{
		Endpoint: cfg.LLM.Endpoint,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize language model gateway", slog.Any("error", err))
		os.Exit(1)
	}

	service := assistant.New(gateway, wh, assistant.Options{
		SampleRows:        cfg.Sampling.SampleRows,
		SampleFetchLimit:  cfg.Sampling.SampleFetchLimit,
		ResultPreviewRows: cfg.Sampling.ResultPreviewRows,
		Logger:            logger,
	})

	deps := api.Dependencies{
		Logger:            logger,
		Assistant:         service,
		Readiness:         api.CombineReadinessChecks(service.Ping),
		DependencyTimeout: 2 * time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		if validator.Len() == 0 {
			logger.Warn("auth required but no static keys configured; every request will be rejected")
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("warehouse", cfg.Warehouse.Driver),
			slog.String("model", gateway.Model()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func openWarehouse(ctx context.Context, cfg config.Config) (warehouse.Warehouse, error) {
	switch cfg.Warehouse.Driver {
	case config.WarehousePostgres:
		db, err := postgres.Open(ctx, postgres.DBConfig{
			DSN:             cfg.Warehouse.DSN,
			MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
			MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
			ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		return postgres.New(db, cfg.Warehouse.Schema), nil
	case config.WarehouseLake:
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:        cfg.Lake.Endpoint,
			Region:          cfg.Lake.Region,
			Bucket:          cfg.Lake.Bucket,
			AccessKeyID:     cfg.Lake.AccessKeyID,
			SecretAccessKey: cfg.Lake.SecretAccessKey,
			UseSSL:          cfg.Lake.UseSSL,
			Prefix:          cfg.Lake.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return lake.New(store), nil
	default:
		return nil, fmt.Errorf("unsupported warehouse driver %q", cfg.Warehouse.Driver)
	}
}
