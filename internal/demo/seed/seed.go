// Package seed writes a synthetic events table into the lake so the API has
// something to answer questions about.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/tabletalk/tabletalk/internal/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

type Result struct {
	Written []string
	Skipped []string
	// Removed lists stale part files deleted by an overwrite run.
	Removed []string
	Rows    int64
}

type Seeder struct {
	cfg   Config
	store storage.ObjectStore
	log   *slog.Logger
}

func NewSeeder(cfg Config, store storage.ObjectStore, logger *slog.Logger) (*Seeder, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if err := storage.ValidateTableName(cfg.TableName); err != nil {
		return nil, err
	}
	if cfg.Rows <= 0 || cfg.RowsPerFile <= 0 || cfg.UserCardinality <= 0 {
		return nil, fmt.Errorf("rows, rows per file and user cardinality must be > 0")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Seeder{cfg: cfg, store: store, log: logger}, nil
}

// Run writes ceil(Rows/RowsPerFile) files named part-00000.parquet onwards.
// Existing files are left alone unless Overwrite is set; their rows are
// still generated so the remaining files do not depend on what was skipped.
// With Overwrite, part files beyond the new count are deleted afterwards.
func (s *Seeder) Run(ctx context.Context) (Result, error) {
	generator := NewGenerator(s.cfg.Seed, s.cfg.UserCardinality)
	var result Result

	for part, remaining := 0, s.cfg.Rows; remaining > 0; part++ {
		n := min(remaining, s.cfg.RowsPerFile)
		remaining -= n
		events := generator.Batch(n)

		key, err := storage.BuildTableFilePath(s.cfg.TableName, fmt.Sprintf("part-%05d", part))
		if err != nil {
			return result, err
		}
		if !s.cfg.Overwrite {
			exists, err := s.exists(ctx, key)
			if err != nil {
				return result, err
			}
			if exists {
				s.log.Info("seed file exists; skipping", slog.String("key", key))
				result.Skipped = append(result.Skipped, key)
				continue
			}
		}

		encoded, err := EncodeEvents(events)
		if err != nil {
			return result, err
		}
		if _, err := s.store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: parquetContentType}); err != nil {
			return result, fmt.Errorf("put %s: %w", key, err)
		}
		s.log.Info("seed file written",
			slog.String("key", key),
			slog.Int64("rows", encoded.RecordCount),
			slog.Time("min_event_time", *encoded.MinEventTime),
			slog.Time("max_event_time", *encoded.MaxEventTime),
		)
		result.Written = append(result.Written, key)
		result.Rows += encoded.RecordCount
	}
	if s.cfg.Overwrite {
		removed, err := s.pruneStaleParts(ctx, result.Written)
		result.Removed = removed
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// pruneStaleParts deletes part-*.parquet files of the table that this run
// did not write. Other files under the table prefix are kept.
func (s *Seeder) pruneStaleParts(ctx context.Context, written []string) ([]string, error) {
	prefix, err := storage.TablePrefix(s.cfg.TableName)
	if err != nil {
		return nil, err
	}
	objects, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	keep := make(map[string]struct{}, len(written))
	for _, key := range written {
		keep[key] = struct{}{}
	}

	var removed []string
	for _, object := range objects {
		if _, ok := keep[object.Key]; ok {
			continue
		}
		if table, ok := storage.TableFromKey(object.Key); !ok || table != s.cfg.TableName {
			continue
		}
		if !strings.HasPrefix(path.Base(object.Key), "part-") {
			continue
		}
		if err := s.store.Delete(ctx, object.Key); err != nil {
			return removed, fmt.Errorf("delete %s: %w", object.Key, err)
		}
		s.log.Info("stale seed file removed", slog.String("key", object.Key))
		removed = append(removed, object.Key)
	}
	return removed, nil
}

func (s *Seeder) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.store.Stat(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
}
