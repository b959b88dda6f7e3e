package seed

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tabletalk/tabletalk/internal/storage"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	TableName       string
	Rows            int
	RowsPerFile     int
	UserCardinality int
	Seed            int64
	// Overwrite replaces files that already exist instead of skipping them.
	Overwrite bool
}

func DefaultConfig() Config {
	return Config{
		TableName:       "events",
		Rows:            1000,
		RowsPerFile:     250,
		UserCardinality: 200,
		Seed:            time.Now().UTC().UnixNano(),
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	for _, apply := range []func() error{
		func() error { return applyString(lookup, "TABLETALK_SEED_TABLE", &cfg.TableName) },
		func() error { return applyInt(lookup, "TABLETALK_SEED_ROWS", &cfg.Rows) },
		func() error { return applyInt(lookup, "TABLETALK_SEED_ROWS_PER_FILE", &cfg.RowsPerFile) },
		func() error { return applyInt(lookup, "TABLETALK_SEED_USER_CARDINALITY", &cfg.UserCardinality) },
		func() error { return applyInt64(lookup, "TABLETALK_SEED_SEED", &cfg.Seed) },
		func() error { return applyBool(lookup, "TABLETALK_SEED_OVERWRITE", &cfg.Overwrite) },
	} {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	if err := storage.ValidateTableName(cfg.TableName); err != nil {
		return Config{}, fmt.Errorf("TABLETALK_SEED_TABLE: %w", err)
	}
	if cfg.Rows <= 0 {
		return Config{}, fmt.Errorf("TABLETALK_SEED_ROWS must be > 0")
	}
	if cfg.RowsPerFile <= 0 {
		return Config{}, fmt.Errorf("TABLETALK_SEED_ROWS_PER_FILE must be > 0")
	}
	if cfg.UserCardinality <= 0 {
		return Config{}, fmt.Errorf("TABLETALK_SEED_USER_CARDINALITY must be > 0")
	}
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
