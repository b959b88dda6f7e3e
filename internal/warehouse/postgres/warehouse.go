// Package postgres serves warehouse tables straight from a PostgreSQL schema.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/warehouse"
)

const DefaultSchema = "public"

type Warehouse struct {
	db     *sql.DB
	schema string
}

func New(db *sql.DB, schema string) *Warehouse {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = DefaultSchema
	}
	return &Warehouse{db: db, schema: schema}
}

func (w *Warehouse) ListTables(ctx context.Context) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_type IN ('BASE TABLE', 'VIEW')
ORDER BY table_name`, w.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

func (w *Warehouse) TableSchema(ctx context.Context, table string) ([]dataset.Column, error) {
	rows, err := w.db.QueryContext(ctx, `
SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`, w.schema, table)
	if err != nil {
		return nil, fmt.Errorf("describe table %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]dataset.Column, 0)
	for rows.Next() {
		var column dataset.Column
		if err := rows.Scan(&column.Name, &column.DataType); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s", warehouse.ErrTableNotFound, table)
	}
	return columns, nil
}

func (w *Warehouse) SampleRows(ctx context.Context, table string, limit int) (warehouse.Result, error) {
	var exists bool
	err := w.db.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2
)`, w.schema, table).Scan(&exists)
	if err != nil {
		return warehouse.Result{}, fmt.Errorf("check table %q: %w", table, err)
	}
	if !exists {
		return warehouse.Result{}, fmt.Errorf("%w: %s", warehouse.ErrTableNotFound, table)
	}

	sqlText := fmt.Sprintf("SELECT * FROM %s.%s LIMIT $1", warehouse.QuoteIdent(w.schema), warehouse.QuoteIdent(table))
	return w.query(ctx, sqlText, limit)
}

func (w *Warehouse) Execute(ctx context.Context, sqlText string) (warehouse.Result, error) {
	statement, err := warehouse.SingleStatement(sqlText)
	if err != nil {
		return warehouse.Result{}, &warehouse.QueryError{SQL: sqlText, Err: err}
	}
	return w.query(ctx, statement)
}

func (w *Warehouse) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

func (w *Warehouse) Close() error {
	return w.db.Close()
}

func (w *Warehouse) query(ctx context.Context, sqlText string, args ...any) (warehouse.Result, error) {
	start := time.Now()
	rows, err := w.db.QueryContext(ctx, sqlText, args...)
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
