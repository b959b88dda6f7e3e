// Package dataset holds the in-memory table model shared by sampling,
// prompt rendering and the HTTP layer.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row maps a column name to a scalar value (number, text, bool or nil).
type Row map[string]any

// Table is an ordered set of columns plus rows. Column types are never
// declared; they are inferred from the values when needed.
type Table struct {
	Columns []string
	Rows    []Row
}

// FromColumns builds a table from positional result tuples.
func FromColumns(columns []string, rows [][]any) Table {
	table := Table{
		Columns: append([]string(nil), columns...),
		Rows:    make([]Row, 0, len(rows)),
	}
	for _, values := range rows {
		row := make(Row, len(columns))
		for i, column := range columns {
			if i < len(values) {
				row[column] = values[i]
			} else {
				row[column] = nil
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func (t Table) Len() int {
	return len(t.Rows)
}

// Head returns a table holding at most n leading rows.
func (t Table) Head(n int) Table {
	if n < 0 {
		n = 0
	}
	if n >= len(t.Rows) {
		return t
	}
	return Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// Records returns the rows as plain maps in row order.
func (t Table) Records() []map[string]any {
	out := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		record := make(map[string]any, len(t.Columns))
		for _, column := range t.Columns {
			record[column] = row[column]
		}
		out = append(out, record)
	}
	return out
}

// UnmarshalJSON decodes an array of objects. Columns are collected in the
// order keys are first seen so the rendering order matches what the client
// sent. Numbers are kept as json.Number.
func (t *Table) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	tok, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("decode table: %w", err)
	}
	*t = Table{Columns: []string{}, Rows: []Row{}}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("decode table: expected array of objects")
	}

	seen := map[string]struct{}{}
	for decoder.More() {
		row, err := decodeRow(decoder, func(key string) {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				t.Columns = append(t.Columns, key)
			}
		})
		if err != nil {
			return err
		}
		t.Rows = append(t.Rows, row)
	}
	if _, err := decoder.Token(); err != nil {
		return fmt.Errorf("decode table: %w", err)
	}
	return nil
}

func decodeRow(decoder *json.Decoder, onKey func(string)) (Row, error) {
	tok, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("decode row: expected object")
	}
	row := Row{}
	for decoder.More() {
		keyTok, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("decode row key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("decode row: expected string key")
		}
		var value any
		if err := decoder.Decode(&value); err != nil {
			return nil, fmt.Errorf("decode value for %q: %w", key, err)
		}
		onKey(key)
		row[key] = value
	}
	if _, err := decoder.Token(); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return row, nil
}

// MarshalJSON encodes the rows as an array of objects with keys in column
// order. Missing values are written as null.
func (t Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range t.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, column := range t.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(column)
			if err != nil {
				return nil, err
			}
			value, err := json.Marshal(row[column])
			if err != nil {
				return nil, fmt.Errorf("encode value for %q: %w", column, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(value)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
