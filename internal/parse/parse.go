// Package parse turns free-form model output into typed results. Parsers
// never fail: text that does not have the expected shape produces an empty
// or partial result, so conversational filler around the answer is
// tolerated.
package parse

import (
	"regexp"
	"strings"

	"github.com/tabletalk/tabletalk/internal/dataset"
)

// Parser converts raw model text into T.
type Parser[T any] interface {
	Parse(text string) T
}

// Func adapts a plain function to Parser.
type Func[T any] func(text string) T

func (f Func[T]) Parse(text string) T {
	return f(text)
}

var (
	SQL        Parser[string]                    = Func[string](ExtractSQL)
	Dictionary Parser[[]dataset.DictionaryEntry] = Func[[]dataset.DictionaryEntry](ParseDictionary)
	Chart      Parser[ChartSuggestion]           = Func[ChartSuggestion](ParseChart)
	Questions  Parser[[]string]                  = Func[[]string](ParseQuestions)
)

const fence = "```"

// ExtractSQL trims the text and, when it opens with a code fence, drops
// every fence line and rejoins the rest.
func ExtractSQL(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, fence) {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), fence) {
			continue
		}
		kept = append(kept, strings.TrimRight(line, "\r"))
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

var dictionaryLine = regexp.MustCompile("^\\s*[-*•]\\s*`?(\\w+)`?\\s*:\\s*(.+?)\\s*$")

// ParseDictionary collects every "- column: description" line. The column
// may be wrapped in backticks; lines of any other shape are skipped.
func ParseDictionary(text string) []dataset.DictionaryEntry {
	entries := []dataset.DictionaryEntry{}
	for _, line := range splitLines(text) {
		match := dictionaryLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		entries = append(entries, dataset.DictionaryEntry{Column: match[1], Description: match[2]})
	}
	return entries
}

// ParseQuestions returns one question per non-empty line with bullet
// characters trimmed from both ends.
func ParseQuestions(text string) []string {
	questions := []string{}
	for _, line := range splitLines(text) {
		question := strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "•- "))
		if question == "" {
			continue
		}
		questions = append(questions, question)
	}
	return questions
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
