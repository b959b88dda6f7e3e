package warehouse

import (
	"errors"
	"reflect"
	"testing"
)

type decimalValue float64

func (d decimalValue) Float64() float64 { return float64(d) }

func TestNormalizeValues(t *testing.T) {
	got := NormalizeValues([]any{[]byte("north"), decimalValue(2.5), int64(3), nil})
	want := []any{"north", 2.5, int64(3), nil}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeValues() = %#v", got)
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := QuoteIdent(`odd"name`); got != `"odd""name"` {
		t.Fatalf("QuoteIdent() = %s", got)
	}
}

func TestStripTrailingSemicolons(t *testing.T) {
	for in, want := range map[string]string{
		"SELECT 1;":      "SELECT 1",
		" SELECT 1 ; ; ": "SELECT 1",
		";":              "",
		"SELECT ';'":     "SELECT ';'",
	} {
		if got := StripTrailingSemicolons(in); got != want {
			t.Fatalf("StripTrailingSemicolons(%q) = %q", in, got)
		}
	}
}

func TestSingleStatement(t *testing.T) {
	got, err := SingleStatement(" SELECT 1 ;; ")
	if err != nil || got != "SELECT 1" {
		t.Fatalf("SingleStatement() = %q, %v", got, err)
	}
	for _, in := range []string{
		"select 1; COPY (SELECT 42) TO '/tmp/x.csv'",
		"SELECT ';'",
	} {
		if _, err := SingleStatement(in); !errors.Is(err, ErrMultipleStatements) {
			t.Fatalf("SingleStatement(%q) error = %v", in, err)
		}
	}
	if _, err := SingleStatement(" ; "); err == nil || errors.Is(err, ErrMultipleStatements) {
		t.Fatalf("SingleStatement(empty) error = %v", err)
	}
}

func TestResultTable(t *testing.T) {
	table := Result{Columns: []string{"a", "b"}, Rows: [][]any{{1, "x"}}}.Table()
	if table.Len() != 1 || table.Rows[0]["b"] != "x" {
		t.Fatalf("Table() = %#v", table)
	}
}

func TestQueryErrorUnwraps(t *testing.T) {
	cause := errors.New("syntax error")
	err := error(&QueryError{SQL: "SELEC 1", Err: cause})
	if !errors.Is(err, cause) || err.Error() != "syntax error" {
		t.Fatalf("QueryError = %v", err)
	}
}
