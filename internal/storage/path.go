package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const ParquetExt = ".parquet"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// ValidateTableName accepts plain SQL identifiers only, so table names can
// be used as view names without further escaping surprises.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name: %q", name)
	}
	return nil
}

// BuildTableFilePath returns the key of one data file of a lake table:
// <table>/<file>.parquet.
func BuildTableFilePath(tableName, fileName string) (string, error) {
	if err := ValidateTableName(tableName); err != nil {
		return "", err
	}
	base := path.Base(strings.TrimSpace(fileName))
	if !strings.HasSuffix(strings.ToLower(base), ParquetExt) {
		base += ParquetExt
	}
	if err := validatePathComponent(base, "file name"); err != nil {
		return "", err
	}
	return path.Join(tableName, base), nil
}

// TablePrefix is the key prefix shared by all files of a table.
func TablePrefix(tableName string) (string, error) {
	if err := ValidateTableName(tableName); err != nil {
		return "", err
	}
	return tableName + "/", nil
}

// TableFromKey reports the table a data file key belongs to. Keys that are
// not exactly <table>/<file>.parquet are ignored.
func TableFromKey(key string) (string, bool) {
	parts := strings.Split(strings.TrimPrefix(key, "/"), "/")
	if len(parts) != 2 {
		return "", false
	}
	if !strings.HasSuffix(strings.ToLower(parts[1]), ParquetExt) {
		return "", false
	}
	if ValidateTableName(parts[0]) != nil {
		return "", false
	}
	return parts[0], true
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
