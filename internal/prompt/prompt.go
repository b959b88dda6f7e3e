// Package prompt renders the fixed instruction templates sent to the
// language model. Every template pins down the exact output shape the
// parsers in package parse expect.
package prompt

import (
	"fmt"
	"strings"

	"github.com/tabletalk/tabletalk/internal/dataset"
)

const (
	SQLTemperature     = 0.2
	DefaultTemperature = 0.3

	// NoSampleData stands in for the sample section when no rows are known.
	NoSampleData = "(No sample data provided)"
)

// Kind names the call site a prompt belongs to.
type Kind string

const (
	KindSQL        Kind = "generate_sql"
	KindDictionary Kind = "data_dictionary"
	KindQuestions  Kind = "sample_questions"
	KindSummary    Kind = "describe_results"
	KindChart      Kind = "suggest_chart"
)

// Prompt is one system/user message pair plus its sampling temperature.
type Prompt struct {
	Kind        Kind
	System      string
	User        string
	Temperature float64
}

// SQLGeneration asks for a single SELECT statement over table.
func SQLGeneration(table, question string, dictionary []dataset.DictionaryEntry, sample dataset.Table) Prompt {
	user := fmt.Sprintf(`You are an assistant that generates SQL queries from natural language.

The user is asking a question about the `+"`%[1]s`"+` table.

### Data Dictionary:
%[2]s

### Sample Data:
%[3]s

User's question:
"""%[4]s"""

Generate a SQL SELECT query that best answers the question.
Use only the `+"`%[1]s`"+` table. Do not return explanations, only the SQL.
`, table, DictionarySection(dictionary), dataset.RenderLines(sample), question)

	return Prompt{
		Kind:        KindSQL,
		System:      "You are a helpful assistant that generates SQL queries from natural language.",
		User:        user,
		Temperature: SQLTemperature,
	}
}

// DataDictionary asks for one "- column: description" bullet per column.
func DataDictionary(table string, schema []dataset.Column) Prompt {
	lines := make([]string, 0, len(schema))
	for _, column := range schema {
		lines = append(lines, fmt.Sprintf("- %s (%s)", column.Name, column.DataType))
	}

	user := fmt.Sprintf(`You are documenting the `+"`%[1]s`"+` table for business users.

### Columns:
%[2]s

Write a short, plain-language description for every column listed above.
Respond with one bullet per column in exactly this format and nothing else:
- column_name: description
`, table, strings.Join(lines, "\n"))

	return Prompt{
		Kind:        KindDictionary,
		System:      "You are a helpful assistant that describes database tables.",
		User:        user,
		Temperature: DefaultTemperature,
	}
}

// SampleQuestions asks for exactly three example questions as bullets.
func SampleQuestions(table string, dictionary []dataset.DictionaryEntry, sample dataset.Table) Prompt {
	sampleSection := NoSampleData
	if sample.Len() > 0 {
		sampleSection = dataset.RenderLines(sample)
	}

	user := fmt.Sprintf(`You are a helpful assistant that suggests example questions users might ask about the `+"`%[1]s`"+` table.

### Data Dictionary:
%[2]s

### Sample Data:
%[3]s

Generate 3 example natural language questions that could be answered using a SQL SELECT query on the `+"`%[1]s`"+` table.
Do not include any explanations, only the questions, each as a separate bullet point.
`, table, DictionarySection(dictionary), sampleSection)

	return Prompt{
		Kind:        KindQuestions,
		System:      "You are a helpful assistant that suggests natural language queries for SQL generation.",
		User:        user,
		Temperature: DefaultTemperature,
	}
}

// ResultSummary asks for a one or two sentence description of preview,
// which callers cut down to the leading result rows.
func ResultSummary(sql string, preview dataset.Table) Prompt {
	user := fmt.Sprintf(`You are a data analyst assistant.

Given the following SQL query and sample results from that query, provide a short natural language summary of what the query result is showing. Do not explain SQL. Describe the result as if speaking to a non-technical user.

### SQL Query:
%s

### Sample Results (top %d rows):
%s

Summarize the data shown above in 1-2 sentences.
`, sql, preview.Len(), dataset.RenderFixedWidth(preview))

	return Prompt{
		Kind:        KindSummary,
		System:      "You are a helpful assistant who explains SQL query results to business users.",
		User:        user,
		Temperature: DefaultTemperature,
	}
}

// ChartSuggestion asks for the three-line Chart Type / X-Axis / Y-Axis
// answer, with None as an accepted value.
func ChartSuggestion(sql string, preview dataset.Table) Prompt {
	user := fmt.Sprintf(`You are a data visualization assistant.

Given the following SQL query and sample result data, decide whether a chart is useful.

If a chart makes sense, suggest:
- A chart type (bar, line, pie, scatter, etc)
- A column for the X-axis
- A column for the Y-axis

If a chart does **not** make sense (e.g., text-heavy, too few rows, non-numeric data), say:
Chart Type: None

### SQL Query:
%s

### Sample Results (top %d rows):
%s

Respond in this exact format:
Chart Type: <bar, line, pie, scatter, none>
X-Axis: <column name or 'None'>
Y-Axis: <column name or 'None'>
`, sql, preview.Len(), dataset.RenderFixedWidth(preview))

	return Prompt{
		Kind:        KindChart,
		System:      "You are a helpful assistant for visualizing SQL result data.",
		User:        user,
		Temperature: DefaultTemperature,
	}
}

// DictionarySection renders entries as "- column: description" lines.
func DictionarySection(entries []dataset.DictionaryEntry) string {
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, "- "+entry.Column+": "+entry.Description)
	}
	return strings.Join(lines, "\n")
}
