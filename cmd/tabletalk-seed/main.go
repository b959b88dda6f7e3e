package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/demo/seed"
	"github.com/tabletalk/tabletalk/internal/observability"
	s3store "github.com/tabletalk/tabletalk/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("tabletalk-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	seedCfg, err := seed.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		logger.Error("failed to load seed config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.Lake.Endpoint,
		Region:           cfg.Lake.Region,
		Bucket:           cfg.Lake.Bucket,
		AccessKeyID:      cfg.Lake.AccessKeyID,
		SecretAccessKey:  cfg.Lake.SecretAccessKey,
		UseSSL:           cfg.Lake.UseSSL,
		Prefix:           cfg.Lake.Prefix,
		AutoCreateBucket: true,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	seeder, err := seed.NewSeeder(seedCfg, store, logger)
	if err != nil {
		logger.Error("failed to initialize seeder", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("seeding lake table",
		slog.String("bucket", cfg.Lake.Bucket),
		slog.String("prefix", cfg.Lake.Prefix),
		slog.String("table", seedCfg.TableName),
		slog.Int("rows", seedCfg.Rows),
		slog.Int("rows_per_file", seedCfg.RowsPerFile),
	)
	result, err := seeder.Run(ctx)
	if err != nil {
		logger.Error("seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("seeding finished",
		slog.Int("written", len(result.Written)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("removed", len(result.Removed)),
		slog.Int64("rows", result.Rows),
	)
}
