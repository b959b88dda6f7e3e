// Package warehouse is the database collaborator: it lists tables, describes
// them and runs SQL that has already passed the safety gate.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tabletalk/tabletalk/internal/dataset"
)

var ErrTableNotFound = errors.New("table not found")

// ErrMultipleStatements rejects batches such as "select 1; copy ...".
var ErrMultipleStatements = errors.New("only a single statement may be executed")

// QueryError is a statement the database rejected or failed to run.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return e.Err.Error()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

func (r Result) Table() dataset.Table {
	return dataset.FromColumns(r.Columns, r.Rows)
}

type Warehouse interface {
	ListTables(ctx context.Context) ([]string, error)
	// TableSchema returns columns in ordinal order, or ErrTableNotFound.
	TableSchema(ctx context.Context, table string) ([]dataset.Column, error)
	// SampleRows returns at most limit rows of table, or ErrTableNotFound.
	SampleRows(ctx context.Context, table string, limit int) (Result, error)
	Execute(ctx context.Context, sqlText string) (Result, error)
	Ping(ctx context.Context) error
	Close() error
}

// ScanRows drains rows into a Result with normalized values.
func ScanRows(rows *sql.Rows) (Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, NormalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	return Result{Columns: columns, Rows: resultRows}, nil
}

// NormalizeValues converts driver values into JSON-friendly scalars.
func NormalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case interface{ Float64() float64 }:
			normalized[i] = typed.Float64()
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// StripTrailingSemicolons removes statement terminators so the text can be
// embedded in a larger statement.
func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

// SingleStatement strips trailing terminators and rejects text that still
// holds a semicolon anywhere, string literals included.
func SingleStatement(sqlText string) (string, error) {
	statement := StripTrailingSemicolons(sqlText)
	if statement == "" {
		return "", errors.New("sql is required")
	}
	if strings.Contains(statement, ";") {
		return "", ErrMultipleStatements
	}
	return statement, nil
}
