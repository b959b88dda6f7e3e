package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tabletalk/tabletalk/internal/assistant"
	"github.com/tabletalk/tabletalk/internal/auth"
	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/sqlgate"
	"github.com/tabletalk/tabletalk/internal/warehouse"
)

const maxRequestBodyBytes = 8 << 20

type questionRequest struct {
	TableName      string                    `json:"table_name"`
	Question       string                    `json:"question"`
	DataDictionary []dataset.DictionaryEntry `json:"data_dictionary"`
	SampleData     dataset.Table             `json:"sample_data"`
}

type dictionaryRequest struct {
	TableName string `json:"table_name"`
}

type runSQLRequest struct {
	SQL string `json:"sql"`
}

type resultsRequest struct {
	SQL  string        `json:"sql"`
	Rows dataset.Table `json:"rows"`
}

type runSQLResponse struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func handleListTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.RoleQueryReader) {
		return
	}
	tables, err := deps.Assistant.ListTables(r.Context())
	if err != nil {
		writeAssistantError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

func handleSampleData(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.RoleQueryReader) {
		return
	}
	table := strings.TrimSpace(r.PathValue("table"))
	if table == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TABLE_REQUIRED", "table name is required", false, nil)
		return
	}
	sample, err := deps.Assistant.SampleData(r.Context(), table)
	if err != nil {
		writeAssistantError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func handleGenerateSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.RoleQueryReader) {
		return
	}
	var req questionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requireField(w, r, req.TableName, "TABLE_REQUIRED", "table_name is required") ||
		!requireField(w, r, req.Question, "QUESTION_REQUIRED", "question is required") {
		return
	}

	result, err := deps.Assistant.GenerateSQL(r.Context(), req.questionContext())
	if err != nil {
		writeAssistantError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sql": result.SQL, "prompt": result.Prompt})
}

func handleDataDictionary(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.RoleQueryReader) {
		return
	}
	var req dictionaryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requireField(w, r, req.TableName, "TABLE_REQUIRED", "table_name is required") {
		return
	}

	entries, err := deps.Assistant.DataDictionary(r.Context(), strings.TrimSpace(req.TableName))
	if err != nil {
		writeAssistantError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dictionary": entries})
}

func handleRunSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.RoleSQLRunner) {
		return
	}
	var req runSQLRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := deps.Assistant.RunSQL(r.Context(), req.SQL)
	if err != nil {
		writeAssistantError(r.Context(), w, err)
		return
	}
	response := runSQLResponse{Columns: result.Columns, Rows: result.Rows}
	if response.Columns == nil {
		response.Columns = []string{}
	}
	if response.Rows == nil {
		response.Rows = [][]any{}
	}
	writeJSON(w, http.StatusOK, response)
}

func handleSampleQuestions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.RoleQueryReader) {
		return
	}
	var req questionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requireField(w, r, req.TableName, "TABLE_REQUIRED", "table_name is required") {
		return
	}

	questions, err := deps.Assistant.SampleQuestions(r.Context(), req.questionContext())
	if err != nil {
		writeAssistantError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func handleDescribeResults(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.RoleQueryReader) {
		return
	}
	var req resultsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requireField(w, r, req.SQL, "SQL_REQUIRED", "sql is required") {
		return
	}

	summary, err := deps.Assistant.DescribeResults(r.Context(), req.SQL, req.Rows)
	if err != nil {
		writeAssistantError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

func handleSuggestChart(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r, auth.RoleQueryReader) {
		return
	}
	var req resultsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requireField(w, r, req.SQL, "SQL_REQUIRED", "sql is required") {
		return
	}

	chart, err := deps.Assistant.SuggestChart(r.Context(), req.SQL, req.Rows)
	if err != nil {
		writeAssistantError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

func (q questionRequest) questionContext() assistant.QuestionContext {
	return assistant.QuestionContext{
		Table:      strings.TrimSpace(q.TableName),
		Question:   q.Question,
		Dictionary: q.DataDictionary,
		SampleData: q.SampleData,
	}
}

func authorize(w http.ResponseWriter, r *http.Request, role string) bool {
	if err := auth.RequireRole(r.Context(), role); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := decoder.Decode(target); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}

func requireField(w http.ResponseWriter, r *http.Request, value, code, message string) bool {
	if strings.TrimSpace(value) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, code, message, false, nil)
		return false
	}
	return true
}

// writeAssistantError maps pipeline failures onto the error envelope.
func writeAssistantError(ctx context.Context, w http.ResponseWriter, err error) {
	var forbidden *sqlgate.ForbiddenError
	var queryErr *warehouse.QueryError
	switch {
	case errors.As(err, &forbidden):
		code := "NOT_SELECT"
		if forbidden.Reason == sqlgate.ReasonForbiddenKeyword {
			code = "FORBIDDEN_KEYWORD"
		}
		writeError(ctx, w, http.StatusForbidden, code, forbidden.Error(), false, nil)
	case errors.Is(err, warehouse.ErrTableNotFound):
		writeError(ctx, w, http.StatusNotFound, "TABLE_NOT_FOUND", "table not found", false, map[string]any{"details": err.Error()})
	case errors.As(err, &queryErr):
		writeError(ctx, w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", queryErr.Error(), false, nil)
	case errors.Is(err, llm.ErrUpstreamUnavailable), errors.Is(err, llm.ErrMalformedResponse):
		writeError(ctx, w, http.StatusBadGateway, "LLM_UNAVAILABLE", "language model request failed", true, map[string]any{"details": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusGatewayTimeout, "TIMEOUT", "request timed out", true, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", "internal error", true, map[string]any{"details": err.Error()})
	}
}
