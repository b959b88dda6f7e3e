// Package assistant runs the request pipelines behind every endpoint:
// sample rows, render a prompt, call the model, parse the answer, and for
// execution paths gate the SQL before the warehouse sees it.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/parse"
	"github.com/tabletalk/tabletalk/internal/prompt"
	"github.com/tabletalk/tabletalk/internal/sampler"
	"github.com/tabletalk/tabletalk/internal/sqlgate"
	"github.com/tabletalk/tabletalk/internal/warehouse"
)

const (
	DefaultSampleRows        = 10
	DefaultSampleFetchLimit  = 100
	DefaultResultPreviewRows = 10
)

type Options struct {
	SampleRows        int
	SampleFetchLimit  int
	ResultPreviewRows int
	Logger            *slog.Logger
	// NewRand supplies the random source for one sampling call.
	NewRand func() *rand.Rand
}

type Service struct {
	gateway     llm.Gateway
	warehouse   warehouse.Warehouse
	logger      *slog.Logger
	sampleRows  int
	fetchLimit  int
	previewRows int
	newRand     func() *rand.Rand
}

func New(gateway llm.Gateway, wh warehouse.Warehouse, opts Options) *Service {
	s := &Service{
		gateway:     gateway,
		warehouse:   wh,
		logger:      opts.Logger,
		sampleRows:  opts.SampleRows,
		fetchLimit:  opts.SampleFetchLimit,
		previewRows: opts.ResultPreviewRows,
		newRand:     opts.NewRand,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.sampleRows <= 0 {
		s.sampleRows = DefaultSampleRows
	}
	if s.fetchLimit < s.sampleRows {
		s.fetchLimit = max(DefaultSampleFetchLimit, s.sampleRows)
	}
	if s.previewRows <= 0 {
		s.previewRows = DefaultResultPreviewRows
	}
	if s.newRand == nil {
		s.newRand = sampler.NewRand
	}
	return s
}

// QuestionContext is what the client knows about a table when asking for
// SQL or example questions.
type QuestionContext struct {
	Table      string
	Question   string
	Dictionary []dataset.DictionaryEntry
	SampleData dataset.Table
}

type SQLResult struct {
	SQL    string
	Prompt string
}

func (s *Service) ListTables(ctx context.Context) ([]string, error) {
	start := time.Now()
	tables, err := s.warehouse.ListTables(ctx)
	observability.ObserveWarehouseQuery("list_tables", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

// SampleData fetches up to the fetch limit and reduces it to a diverse
// sample, rows in selection order.
func (s *Service) SampleData(ctx context.Context, table string) (dataset.Table, error) {
	start := time.Now()
	result, err := s.warehouse.SampleRows(ctx, table, s.fetchLimit)
	observability.ObserveWarehouseQuery("sample_rows", err, time.Since(start))
	if err != nil {
		return dataset.Table{}, fmt.Errorf("fetch rows of %q: %w", table, err)
	}
	return s.sample(result.Table()), nil
}

func (s *Service) DataDictionary(ctx context.Context, table string) ([]dataset.DictionaryEntry, error) {
	start := time.Now()
	schema, err := s.warehouse.TableSchema(ctx, table)
	observability.ObserveWarehouseQuery("table_schema", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("describe %q: %w", table, err)
	}

	text, err := s.complete(ctx, prompt.DataDictionary(table, schema))
	if err != nil {
		return nil, err
	}
	entries := parse.Dictionary.Parse(text)
	if len(entries) == 0 {
		s.degraded(ctx, prompt.KindDictionary, "no dictionary lines matched")
	}
	return entries, nil
}

func (s *Service) GenerateSQL(ctx context.Context, req QuestionContext) (SQLResult, error) {
	p := prompt.SQLGeneration(req.Table, req.Question, req.Dictionary, s.sample(req.SampleData))
	text, err := s.complete(ctx, p)
	if err != nil {
		return SQLResult{}, err
	}
	sql := parse.SQL.Parse(text)
	if sql == "" {
		s.degraded(ctx, prompt.KindSQL, "empty sql")
	}
	return SQLResult{SQL: sql, Prompt: p.User}, nil
}

func (s *Service) SampleQuestions(ctx context.Context, req QuestionContext) ([]string, error) {
	sample := req.SampleData
	if sample.Len() > 0 {
		sample = s.sample(sample)
	}
	text, err := s.complete(ctx, prompt.SampleQuestions(req.Table, req.Dictionary, sample))
	if err != nil {
		return nil, err
	}
	questions := parse.Questions.Parse(text)
	if len(questions) == 0 {
		s.degraded(ctx, prompt.KindQuestions, "no questions found")
	}
	return questions, nil
}

// RunSQL executes sql when the gate allows it. Rejections are returned as
// *sqlgate.ForbiddenError and never reach the warehouse.
func (s *Service) RunSQL(ctx context.Context, sql string) (warehouse.Result, error) {
	if violations := sqlgate.Inspect(sql); len(violations) > 0 {
		observability.IncrementGateRejection(string(violations[0].Reason))
		observability.WithTrace(ctx, s.logger).WarnContext(ctx, "sql rejected by gate",
			slog.String("violations", sqlgate.Describe(violations)),
		)
		return warehouse.Result{}, sqlgate.Check(sql)
	}

	start := time.Now()
	result, err := s.warehouse.Execute(ctx, sql)
	observability.ObserveWarehouseQuery("execute", err, time.Since(start))
	if err != nil {
		return warehouse.Result{}, fmt.Errorf("execute sql: %w", err)
	}
	return result, nil
}

func (s *Service) DescribeResults(ctx context.Context, sql string, rows dataset.Table) (string, error) {
	text, err := s.complete(ctx, prompt.ResultSummary(sql, rows.Head(s.previewRows)))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (s *Service) SuggestChart(ctx context.Context, sql string, rows dataset.Table) (parse.ChartSuggestion, error) {
	text, err := s.complete(ctx, prompt.ChartSuggestion(sql, rows.Head(s.previewRows)))
	if err != nil {
		return parse.ChartSuggestion{}, err
	}
	chart := parse.Chart.Parse(text)
	if chart.ChartType == nil || *chart.ChartType == "" {
		s.degraded(ctx, prompt.KindChart, "no chart type line")
	}
	return chart, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.warehouse.Ping(ctx)
}

func (s *Service) sample(table dataset.Table) dataset.Table {
	start := time.Now()
	result := sampler.Select(table, s.sampleRows, s.newRand())
	observability.ObserveSample(table.Len(), time.Since(start))
	return result.Table()
}

func (s *Service) complete(ctx context.Context, p prompt.Prompt) (string, error) {
	start := time.Now()
	text, err := s.gateway.Complete(ctx, p.System, p.User, p.Temperature)
	elapsed := time.Since(start)
	observability.ObserveLLMCall(string(p.Kind), outcome(err), elapsed)

	logger := observability.WithTrace(ctx, s.logger)
	attrs := []any{
		slog.String("kind", string(p.Kind)),
		slog.Int("prompt_bytes", len(p.System)+len(p.User)),
		slog.String("duration", elapsed.String()),
	}
	if err != nil {
		logger.ErrorContext(ctx, "language model call failed", append(attrs, slog.String("error", err.Error()))...)
		return "", fmt.Errorf("%s completion: %w", p.Kind, err)
	}
	logger.DebugContext(ctx, "language model call", append(attrs, slog.String("response", text))...)
	return text, nil
}

func (s *Service) degraded(ctx context.Context, kind prompt.Kind, reason string) {
	observability.IncrementDegradedParse(string(kind))
	observability.WithTrace(ctx, s.logger).WarnContext(ctx, "model answer did not match expected shape",
		slog.String("kind", string(kind)),
		slog.String("reason", reason),
	)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return observability.OutcomeCanceled
	case errors.Is(err, llm.ErrMalformedResponse):
		return observability.OutcomeMalformed
	default:
		return observability.OutcomeUnavailable
	}
}
