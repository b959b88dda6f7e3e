package dataset

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

const nullText = "NULL"

// FormatValue renders a scalar for inclusion in prompt text.
func FormatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return nullText
	case string:
		return typed
	case []byte:
		return string(typed)
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(typed)
	case time.Time:
		return typed.Format(time.RFC3339)
	default:
		return fmt.Sprint(typed)
	}
}

// RenderLine renders one row on a single line, fields in column order.
func RenderLine(columns []string, row Row) string {
	parts := make([]string, 0, len(columns))
	for _, column := range columns {
		parts = append(parts, column+": "+singleLine(FormatValue(row[column])))
	}
	return strings.Join(parts, " | ")
}

// RenderLines renders every row with RenderLine, one per line.
func RenderLines(table Table) string {
	lines := make([]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		lines = append(lines, RenderLine(table.Columns, row))
	}
	return strings.Join(lines, "\n")
}

// RenderFixedWidth renders the table as right-aligned, space-padded columns
// with a header line and no index column.
func RenderFixedWidth(table Table) string {
	if len(table.Columns) == 0 {
		return "(no rows)"
	}

	var sb strings.Builder
	writer := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', tabwriter.AlignRight)
	writeCells(writer, table.Columns)
	for _, row := range table.Rows {
		cells := make([]string, 0, len(table.Columns))
		for _, column := range table.Columns {
			cells = append(cells, singleLine(FormatValue(row[column])))
		}
		writeCells(writer, cells)
	}
	_ = writer.Flush()

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	if len(table.Rows) == 0 {
		lines = append(lines, "(no rows)")
	}
	return strings.Join(lines, "\n")
}

func writeCells(writer *tabwriter.Writer, cells []string) {
	for _, cell := range cells {
		_, _ = fmt.Fprint(writer, cell, "\t")
	}
	_, _ = fmt.Fprintln(writer)
}

func singleLine(value string) string {
	if !strings.ContainsAny(value, "\r\n\t") {
		return value
	}
	return strings.Join(strings.Fields(value), " ")
}
