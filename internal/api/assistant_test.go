package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tabletalk/tabletalk/internal/assistant"
	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/warehouse"
)

type fakeGateway struct {
	reply string
	err   error
	users []string
}

func (f *fakeGateway) Complete(_ context.Context, _, user string, _ float64) (string, error) {
	f.users = append(f.users, user)
	return f.reply, f.err
}

type fakeWarehouse struct {
	tables   []string
	schemas  map[string][]dataset.Column
	rows     map[string]warehouse.Result
	execErr  error
	executed []string
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		tables: []string{"orders", "users"},
		schemas: map[string][]dataset.Column{
			"orders": {{Name: "id", DataType: "integer"}, {Name: "region", DataType: "text"}},
		},
		rows: map[string]warehouse.Result{
			"orders": {
				Columns: []string{"id", "region"},
				Rows:    [][]any{{int64(1), "north"}, {int64(2), "south"}},
			},
		},
	}
}

func (f *fakeWarehouse) ListTables(context.Context) ([]string, error) {
	return f.tables, nil
}

func (f *fakeWarehouse) TableSchema(_ context.Context, table string) ([]dataset.Column, error) {
	schema, ok := f.schemas[table]
	if !ok {
		return nil, warehouse.ErrTableNotFound
	}
	return schema, nil
}

func (f *fakeWarehouse) SampleRows(_ context.Context, table string, _ int) (warehouse.Result, error) {
	result, ok := f.rows[table]
	if !ok {
		return warehouse.Result{}, warehouse.ErrTableNotFound
	}
	return result, nil
}

func (f *fakeWarehouse) Execute(_ context.Context, sqlText string) (warehouse.Result, error) {
	f.executed = append(f.executed, sqlText)
	if f.execErr != nil {
		return warehouse.Result{}, &warehouse.QueryError{SQL: sqlText, Err: f.execErr}
	}
	return warehouse.Result{Columns: []string{"region", "total"}, Rows: [][]any{{"north", 3.5}}}, nil
}

func (f *fakeWarehouse) Ping(context.Context) error { return nil }

func (f *fakeWarehouse) Close() error { return nil }

func newTestAssistant(gateway llm.Gateway, wh warehouse.Warehouse) *assistant.Service {
	return assistant.New(gateway, wh, assistant.Options{
		NewRand: func() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) },
	})
}

func serve(t *testing.T, gateway llm.Gateway, wh warehouse.Warehouse, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Assistant: newTestAssistant(gateway, wh)})
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestListTablesReturnsBareArray(t *testing.T) {
	rr := serve(t, &fakeGateway{}, newFakeWarehouse(), http.MethodGet, "/tables", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var tables []string
	if err := json.Unmarshal(rr.Body.Bytes(), &tables); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(tables, ",") != "orders,users" {
		t.Fatalf("tables = %#v", tables)
	}
}

func TestSampleDataReturnsRecords(t *testing.T) {
	rr := serve(t, &fakeGateway{}, newFakeWarehouse(), http.MethodGet, "/sample-data/orders", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var records []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 2 || records[0]["region"] != "north" {
		t.Fatalf("records = %#v", records)
	}
}

func TestSampleDataUnknownTable(t *testing.T) {
	rr := serve(t, &fakeGateway{}, newFakeWarehouse(), http.MethodGet, "/sample-data/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeResponse(t, rr); body["error_code"] != "TABLE_NOT_FOUND" {
		t.Fatalf("body = %#v", body)
	}
}

func TestGenerateSQL(t *testing.T) {
	gateway := &fakeGateway{reply: "```sql\nSELECT region FROM orders;\n```"}
	rr := serve(t, gateway, newFakeWarehouse(), http.MethodPost, "/generate-sql", `{
		"table_name": "orders",
		"question": "which regions?",
		"data_dictionary": [{"Column": "region", "Description": "sales region"}],
		"sample_data": [{"id": 1, "region": "north"}],
		"ui_state": "ignored"
	}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeResponse(t, rr)
	if body["sql"] != "SELECT region FROM orders;" {
		t.Fatalf("sql = %#v", body["sql"])
	}
	promptText, _ := body["prompt"].(string)
	if !strings.Contains(promptText, "which regions?") || !strings.Contains(promptText, "sales region") {
		t.Fatalf("prompt = %q", promptText)
	}
	if len(gateway.users) != 1 || gateway.users[0] != promptText {
		t.Fatalf("gateway saw %#v", gateway.users)
	}
}

func TestGenerateSQLValidation(t *testing.T) {
	cases := []struct {
		body string
		code string
	}{
		{body: `{"question":"q"}`, code: "TABLE_REQUIRED"},
		{body: `{"table_name":"orders","question":"  "}`, code: "QUESTION_REQUIRED"},
		{body: `{"table_name":`, code: "INVALID_JSON"},
		{body: `{"table_name":"orders","question":"q","sample_data":{"a":1}}`, code: "INVALID_JSON"},
	}
	for _, tc := range cases {
		gateway := &fakeGateway{reply: "SELECT 1"}
		rr := serve(t, gateway, newFakeWarehouse(), http.MethodPost, "/generate-sql", tc.body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", tc.body, rr.Code)
		}
		if body := decodeResponse(t, rr); body["error_code"] != tc.code {
			t.Fatalf("%s: body = %#v", tc.body, body)
		}
		if len(gateway.users) != 0 {
			t.Fatalf("%s: model was called", tc.body)
		}
	}
}

func TestGenerateSQLUpstreamFailure(t *testing.T) {
	gateway := &fakeGateway{err: &llm.UpstreamError{StatusCode: http.StatusServiceUnavailable, Body: "down"}}
	rr := serve(t, gateway, newFakeWarehouse(), http.MethodPost, "/generate-sql", `{"table_name":"orders","question":"q"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeResponse(t, rr)
	if body["error_code"] != "LLM_UNAVAILABLE" || body["retryable"] != true {
		t.Fatalf("body = %#v", body)
	}
	if body["error"] == "" || body["error"] == nil {
		t.Fatalf("error key missing: %#v", body)
	}
}

func TestDataDictionary(t *testing.T) {
	gateway := &fakeGateway{reply: "- id: order identifier\n- region: sales region\nnoise"}
	rr := serve(t, gateway, newFakeWarehouse(), http.MethodPost, "/data-dictionary", `{"table_name":"orders"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var body struct {
		Dictionary []dataset.DictionaryEntry `json:"dictionary"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Dictionary) != 2 || body.Dictionary[1].Column != "region" || body.Dictionary[1].Description != "sales region" {
		t.Fatalf("dictionary = %#v", body.Dictionary)
	}
	if !strings.Contains(rr.Body.String(), `"Column":"id"`) {
		t.Fatalf("entry keys changed: %s", rr.Body.String())
	}
}

func TestDataDictionaryUnknownTable(t *testing.T) {
	gateway := &fakeGateway{reply: "- a: b"}
	rr := serve(t, gateway, newFakeWarehouse(), http.MethodPost, "/data-dictionary", `{"table_name":"missing"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(gateway.users) != 0 {
		t.Fatal("model should not be called for unknown table")
	}
}

func TestDataDictionaryDegradedIsEmptyList(t *testing.T) {
	rr := serve(t, &fakeGateway{reply: "I cannot help"}, newFakeWarehouse(), http.MethodPost, "/data-dictionary", `{"table_name":"orders"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"dictionary":[]}` {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestRunSQL(t *testing.T) {
	wh := newFakeWarehouse()
	rr := serve(t, &fakeGateway{}, wh, http.MethodPost, "/run-sql", `{"sql":"SELECT region, sum(total) FROM orders GROUP BY region"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	want := `{"columns":["region","total"],"rows":[["north",3.5]]}`
	if strings.TrimSpace(rr.Body.String()) != want {
		t.Fatalf("body = %s", rr.Body.String())
	}
	if len(wh.executed) != 1 {
		t.Fatalf("executed = %#v", wh.executed)
	}
}

func TestRunSQLRejectedByGate(t *testing.T) {
	cases := map[string]string{
		`{"sql":"DROP TABLE orders"}`:             "FORBIDDEN_KEYWORD",
		`{"sql":"SELECT updated_at FROM orders"}`: "FORBIDDEN_KEYWORD",
		`{"sql":"SHOW TABLES"}`:                   "NOT_SELECT",
		`{"sql":""}`:                              "NOT_SELECT",
	}
	for payload, code := range cases {
		wh := newFakeWarehouse()
		rr := serve(t, &fakeGateway{}, wh, http.MethodPost, "/run-sql", payload)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s: status = %d", payload, rr.Code)
		}
		body := decodeResponse(t, rr)
		if body["error_code"] != code {
			t.Fatalf("%s: body = %#v", payload, body)
		}
		if len(wh.executed) != 0 {
			t.Fatalf("%s: warehouse was called", payload)
		}
	}
}

func TestRunSQLQueryFailure(t *testing.T) {
	wh := newFakeWarehouse()
	wh.execErr = errors.New(`column "nope" does not exist`)
	rr := serve(t, &fakeGateway{}, wh, http.MethodPost, "/run-sql", `{"sql":"SELECT nope FROM orders"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeResponse(t, rr)
	if body["error_code"] != "QUERY_EXECUTION_FAILED" || !strings.Contains(body["message"].(string), "nope") {
		t.Fatalf("body = %#v", body)
	}
}

func TestSampleQuestions(t *testing.T) {
	gateway := &fakeGateway{reply: "1. How many orders?\n\n- Which region sells most?"}
	rr := serve(t, gateway, newFakeWarehouse(), http.MethodPost, "/generate-sample-questions", `{"table_name":"orders"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var body struct {
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Questions) != 2 {
		t.Fatalf("questions = %#v", body.Questions)
	}
	if !strings.Contains(gateway.users[0], "(No sample data provided)") {
		t.Fatalf("prompt = %q", gateway.users[0])
	}
}

func TestDescribeResults(t *testing.T) {
	gateway := &fakeGateway{reply: "  North leads.\n"}
	rr := serve(t, gateway, newFakeWarehouse(), http.MethodPost, "/describe-results", `{"sql":"SELECT 1","rows":[{"region":"north","total":3}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if body := decodeResponse(t, rr); body["summary"] != "North leads." {
		t.Fatalf("body = %#v", body)
	}
	if !strings.Contains(gateway.users[0], "north") {
		t.Fatalf("prompt = %q", gateway.users[0])
	}
}

func TestDescribeResultsRequiresSQL(t *testing.T) {
	rr := serve(t, &fakeGateway{}, newFakeWarehouse(), http.MethodPost, "/describe-results", `{"rows":[]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeResponse(t, rr); body["error_code"] != "SQL_REQUIRED" {
		t.Fatalf("body = %#v", body)
	}
}

func TestSuggestChart(t *testing.T) {
	gateway := &fakeGateway{reply: "Chart type: bar\nX-axis: region\nY-axis: total"}
	rr := serve(t, gateway, newFakeWarehouse(), http.MethodPost, "/suggest-chart", `{"sql":"SELECT 1","rows":[{"region":"north","total":3}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	want := `{"chart_type":"bar","x_axis":"region","y_axis":"total"}`
	if strings.TrimSpace(rr.Body.String()) != want {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestSuggestChartNoneHasNullAxes(t *testing.T) {
	gateway := &fakeGateway{reply: "Chart type: None\nX-axis: None\nY-axis: None"}
	rr := serve(t, gateway, newFakeWarehouse(), http.MethodPost, "/suggest-chart", `{"sql":"SELECT 1","rows":[]}`)
	want := `{"chart_type":"None","x_axis":null,"y_axis":null}`
	if strings.TrimSpace(rr.Body.String()) != want {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestMalformedModelResponseIsBadGateway(t *testing.T) {
	gateway := &fakeGateway{err: llm.ErrMalformedResponse}
	rr := serve(t, gateway, newFakeWarehouse(), http.MethodPost, "/suggest-chart", `{"sql":"SELECT 1"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rr := serve(t, &fakeGateway{}, newFakeWarehouse(), http.MethodGet, "/generate-sql", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rr.Code)
	}
}
