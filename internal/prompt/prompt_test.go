package prompt

import (
	"strings"
	"testing"

	"github.com/tabletalk/tabletalk/internal/dataset"
)

func sampleDictionary() []dataset.DictionaryEntry {
	return []dataset.DictionaryEntry{
		{Column: "region", Description: "sales region"},
		{Column: "amount", Description: "order total in EUR"},
	}
}

func TestSQLGenerationEmbedsContext(t *testing.T) {
	sample := dataset.FromColumns([]string{"region", "amount"}, [][]any{{"north", 12.5}, {"south", nil}})
	p := SQLGeneration("orders", "total per region?", sampleDictionary(), sample)

	if p.Kind != KindSQL || p.Temperature != SQLTemperature {
		t.Fatalf("prompt = %#v", p)
	}
	for _, want := range []string{
		"`orders` table",
		"- region: sales region\n- amount: order total in EUR",
		"region: north | amount: 12.5\nregion: south | amount: NULL",
		`"""total per region?"""`,
		"Generate a SQL SELECT query",
		"Use only the `orders` table",
	} {
		if !strings.Contains(p.User, want) {
			t.Fatalf("user prompt missing %q:\n%s", want, p.User)
		}
	}
	if !strings.Contains(p.System, "SQL") {
		t.Fatalf("System = %q", p.System)
	}
}

func TestDataDictionaryListsSchema(t *testing.T) {
	p := DataDictionary("orders", []dataset.Column{{Name: "id", DataType: "integer"}, {Name: "note", DataType: "text"}})
	if p.Kind != KindDictionary || p.Temperature != DefaultTemperature {
		t.Fatalf("prompt = %#v", p)
	}
	if !strings.Contains(p.User, "- id (integer)\n- note (text)") {
		t.Fatalf("schema section missing:\n%s", p.User)
	}
	if !strings.Contains(p.User, "- column_name: description") {
		t.Fatalf("output format missing:\n%s", p.User)
	}
}

func TestSampleQuestionsPlaceholderWithoutRows(t *testing.T) {
	p := SampleQuestions("orders", sampleDictionary(), dataset.Table{})
	if !strings.Contains(p.User, "### Sample Data:\n"+NoSampleData+"\n") {
		t.Fatalf("placeholder missing:\n%s", p.User)
	}
	if !strings.Contains(p.User, "Generate 3 example") {
		t.Fatalf("question count missing:\n%s", p.User)
	}

	withRows := SampleQuestions("orders", nil, dataset.FromColumns([]string{"a"}, [][]any{{1}}))
	if strings.Contains(withRows.User, NoSampleData) {
		t.Fatal("placeholder rendered despite rows")
	}
	if !strings.Contains(withRows.User, "a: 1") {
		t.Fatalf("sample row missing:\n%s", withRows.User)
	}
}

func TestResultPromptsRenderFixedWidthPreview(t *testing.T) {
	preview := dataset.FromColumns([]string{"region", "total"}, [][]any{{"north", 10}, {"south", 2000}})
	sql := "SELECT region, SUM(amount) AS total FROM orders GROUP BY region"

	summary := ResultSummary(sql, preview)
	chart := ChartSuggestion(sql, preview)
	table := dataset.RenderFixedWidth(preview)

	for _, p := range []Prompt{summary, chart} {
		if !strings.Contains(p.User, "### SQL Query:\n"+sql) {
			t.Fatalf("%s: sql missing", p.Kind)
		}
		if !strings.Contains(p.User, table) {
			t.Fatalf("%s: table missing:\n%s", p.Kind, p.User)
		}
		if !strings.Contains(p.User, "top 2 rows") {
			t.Fatalf("%s: row count missing", p.Kind)
		}
	}
	if !strings.Contains(summary.User, "1-2 sentences") {
		t.Fatalf("summary instruction missing:\n%s", summary.User)
	}
	for _, want := range []string{"Chart Type: <", "X-Axis: <", "Y-Axis: <", "Chart Type: None"} {
		if !strings.Contains(chart.User, want) {
			t.Fatalf("chart prompt missing %q", want)
		}
	}
}

func TestDictionarySectionEmpty(t *testing.T) {
	if got := DictionarySection(nil); got != "" {
		t.Fatalf("DictionarySection(nil) = %q", got)
	}
}
