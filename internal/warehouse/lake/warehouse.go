// Package lake serves warehouse tables stored as parquet files in an object
// store. Each call downloads the files it needs into a scratch directory,
// loads them into an in-process DuckDB and runs the query there with
// external access disabled.
package lake

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/storage"
	"github.com/tabletalk/tabletalk/internal/warehouse"
)

// ObjectLister is the slice of storage.ObjectStore the lake reads from.
type ObjectLister interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
}

type Warehouse struct {
	store ObjectLister
	// TempDir is the parent of per-call scratch directories; empty uses the OS default.
	TempDir string
}

func New(store ObjectLister) *Warehouse {
	return &Warehouse{store: store}
}

func (w *Warehouse) ListTables(ctx context.Context) ([]string, error) {
	files, err := w.tableFiles(ctx, "")
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(files))
	for table := range files {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables, nil
}

func (w *Warehouse) TableSchema(ctx context.Context, table string) ([]dataset.Column, error) {
	files, err := w.filesFor(ctx, table)
	if err != nil {
		return nil, err
	}
	return readSchema(ctx, w.store, files[0].Key)
}

func (w *Warehouse) SampleRows(ctx context.Context, table string, limit int) (warehouse.Result, error) {
	files, err := w.filesFor(ctx, table)
	if err != nil {
		return warehouse.Result{}, err
	}
	sqlText := fmt.Sprintf("SELECT * FROM %s LIMIT %d", warehouse.QuoteIdent(table), limit)
	return w.run(ctx, map[string][]storage.ObjectInfo{table: files}, sqlText)
}

func (w *Warehouse) Execute(ctx context.Context, sqlText string) (warehouse.Result, error) {
	statement, err := warehouse.SingleStatement(sqlText)
	if err != nil {
		return warehouse.Result{}, &warehouse.QueryError{SQL: sqlText, Err: err}
	}
	files, err := w.tableFiles(ctx, "")
	if err != nil {
		return warehouse.Result{}, err
	}
	return w.run(ctx, files, statement)
}

func (w *Warehouse) Ping(ctx context.Context) error {
	if _, err := w.store.List(ctx, ""); err != nil {
		return fmt.Errorf("list lake objects: %w", err)
	}
	return nil
}

func (w *Warehouse) Close() error {
	return nil
}

func (w *Warehouse) filesFor(ctx context.Context, table string) ([]storage.ObjectInfo, error) {
	prefix, err := storage.TablePrefix(table)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", warehouse.ErrTableNotFound, table)
	}
	files, err := w.tableFiles(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(files[table]) == 0 {
		return nil, fmt.Errorf("%w: %s", warehouse.ErrTableNotFound, table)
	}
	return files[table], nil
}

func (w *Warehouse) tableFiles(ctx context.Context, prefix string) (map[string][]storage.ObjectInfo, error) {
	objects, err := w.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list lake objects: %w", err)
	}
	grouped := map[string][]storage.ObjectInfo{}
	for _, object := range objects {
		table, ok := storage.TableFromKey(object.Key)
		if !ok {
			continue
		}
		grouped[table] = append(grouped[table], object)
	}
	return grouped, nil
}

// run copies files into a scratch directory, loads one table per lake table
// into a fresh in-memory DuckDB and executes sqlText as a single prepared
// statement. External access is switched off and the configuration locked
// before sqlText runs, so the query cannot reach host files.
func (w *Warehouse) run(ctx context.Context, files map[string][]storage.ObjectInfo, sqlText string) (warehouse.Result, error) {
	start := time.Now()
	workDir, err := os.MkdirTemp(w.TempDir, "tabletalk-lake-")
	if err != nil {
		return warehouse.Result{}, fmt.Errorf("create lake temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPaths := map[string][]string{}
	for table, objects := range files {
		for index, object := range objects {
			localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", table, index))
			if err := download(ctx, w.store, object.Key, localPath); err != nil {
				return warehouse.Result{}, err
			}
			localPaths[table] = append(localPaths[table], localPath)
		}
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return warehouse.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	// Settings and tables must live on the connection that runs sqlText.
	conn, err := db.Conn(ctx)
	if err != nil {
		return warehouse.Result{}, fmt.Errorf("connect duckdb: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := loadTables(ctx, conn, localPaths); err != nil {
		return warehouse.Result{}, err
	}
	if err := sandbox(ctx, conn); err != nil {
		return warehouse.Result{}, err
	}

	stmt, err := conn.PrepareContext(ctx, sqlText)
	if err != nil {
		return warehouse.Result{}, &warehouse.QueryError{SQL: sqlText, Err: err}
	}
	defer func() { _ = stmt.Close() }()

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return warehouse.Result{}, &warehouse.QueryError{SQL: sqlText, Err: err}
	}
	defer func() { _ = rows.Close() }()

	result, err := warehouse.ScanRows(rows)
	if err != nil {
		return warehouse.Result{}, &warehouse.QueryError{SQL: sqlText, Err: err}
	}
	result.Duration = time.Since(start)
	return result, nil
}

func loadTables(ctx context.Context, conn *sql.Conn, localPaths map[string][]string) error {
	tables := make([]string, 0, len(localPaths))
	for table := range localPaths {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		createSQL := fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM read_parquet(%s, union_by_name = true)`, warehouse.QuoteIdent(table), quoteStringArray(localPaths[table]))
		if _, err := conn.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("load table %q: %w", table, err)
		}
	}
	return nil
}

// sandboxSettings are applied in order; lock_configuration must come last.
var sandboxSettings = []string{
	"SET enable_external_access = false",
	"SET lock_configuration = true",
}

func sandbox(ctx context.Context, conn *sql.Conn) error {
	for _, stmt := range sandboxSettings {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
