package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	alhttp "github.com/agentlens/agentlens/internal/adapter/http"
	"github.com/agentlens/agentlens/internal/domain/call"
	"github.com/agentlens/agentlens/internal/port/history"
	"github.com/agentlens/agentlens/internal/service"
)

// memStore implements history.Store in memory for handler tests.
type memStore struct {
	mu      sync.Mutex
	records []call.Record
	nextSeq int64
	gen     uint64
}

func newMemStore() *memStore {
	return &memStore{nextSeq: 1}
}

func (m *memStore) Append(_ context.Context, rec *call.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.SequenceID = m.nextSeq
	m.nextSeq++
	m.gen++
	m.records = append(m.records, *rec)
	return nil
}

func (m *memStore) Snapshot() history.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]call.Record, len(m.records))
	copy(out, m.records)
	return history.Snapshot{Records: out, Generation: m.gen}
}

func (m *memStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memStore) Close() error { return nil }

func newTestRouter(store *memStore) chi.Router {
	h := &alhttp.Handlers{
		Inspect: service.NewInspectService(store, nil, nil),
		Record:  service.NewRecordService(store, nil, nil, nil),
		Version: "test",
	}
	r := chi.NewRouter()
	alhttp.MountRoutes(r, h)
	return r
}

func seedStore(t *testing.T, store *memStore, n int) {
	t.Helper()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i := range n {
		rec := call.Record{
			ToolName:  fmt.Sprintf("tool_%d", i%4),
			Succeeded: true,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			SessionID: "sess-1",
		}
		rec.Normalize(rec.Timestamp)
		if err := store.Append(context.Background(), &rec); err != nil {
			t.Fatal(err)
		}
	}
}

func TestHealthz(t *testing.T) {
	store := newMemStore()
	seedStore(t, store, 3)
	r := newTestRouter(store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Status       string `json:"status"`
		HistoryDepth int    `json:"history_depth"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.HistoryDepth != 3 {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestListCallsTail(t *testing.T) {
	store := newMemStore()
	seedStore(t, store, 30)
	r := newTestRouter(store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/calls?offset=-10&max_results=10", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var page call.Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Records) != 10 {
		t.Fatalf("expected 10 records, got %d", len(page.Records))
	}
	if page.TotalMatches != 30 {
		t.Fatalf("expected 30 total matches, got %d", page.TotalMatches)
	}
	if page.Records[0].SequenceID != 21 || page.Records[9].SequenceID != 30 {
		t.Fatalf("expected window 21..30, got %d..%d",
			page.Records[0].SequenceID, page.Records[9].SequenceID)
	}
}

func TestListCallsFilterByTool(t *testing.T) {
	store := newMemStore()
	seedStore(t, store, 20)
	r := newTestRouter(store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/calls?tool_name=tool_2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var page call.Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.TotalMatches != 5 {
		t.Fatalf("expected 5 matches, got %d", page.TotalMatches)
	}
	for _, c := range page.Records {
		if c.ToolName != "tool_2" {
			t.Fatalf("expected only tool_2 records, got %q", c.ToolName)
		}
	}
}

func TestListCallsBadParams(t *testing.T) {
	store := newMemStore()
	r := newTestRouter(store)

	cases := []struct {
		name string
		url  string
	}{
		{"bad offset", "/v1/calls?offset=ten"},
		{"bad since", "/v1/calls?since=yesterday"},
		{"bad max_results", "/v1/calls?max_results=-5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.url, nil))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestUsageStats(t *testing.T) {
	store := newMemStore()
	seedStore(t, store, 12)
	r := newTestRouter(store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var usage call.Usage
	if err := json.Unmarshal(rec.Body.Bytes(), &usage); err != nil {
		t.Fatal(err)
	}
	if usage.TotalCalls != 12 || usage.Successes != 12 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
	if usage.SuccessRate != 1.0 {
		t.Fatalf("expected success rate 1.0, got %f", usage.SuccessRate)
	}
}

func TestRecordCall(t *testing.T) {
	store := newMemStore()
	r := newTestRouter(store)

	body := `{"tool_name":"read_file","arguments":{"path":"main.go"},"succeeded":true,"duration_ms":12}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/calls", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created call.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.SequenceID != 1 {
		t.Fatalf("expected sequence 1, got %d", created.SequenceID)
	}
	if created.Category != call.CategoryFilesystem {
		t.Fatalf("expected filesystem category, got %q", created.Category)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 stored record, got %d", store.Len())
	}
}

func TestRecordCallValidation(t *testing.T) {
	store := newMemStore()
	r := newTestRouter(store)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/calls", strings.NewReader(`{"succeeded":true}`))
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if store.Len() != 0 {
		t.Fatalf("store should stay empty, got %d", store.Len())
	}
}

func TestRecordCallSkipsMetaTools(t *testing.T) {
	store := newMemStore()
	r := newTestRouter(store)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/calls",
		strings.NewReader(`{"tool_name":"inspect_tool_calls","succeeded":true}`))
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "skipped" {
		t.Fatalf("expected skipped status, got %+v", body)
	}
	if store.Len() != 0 {
		t.Fatalf("meta tool must not be recorded, got %d records", store.Len())
	}
}

func TestRecordCallOversizedBody(t *testing.T) {
	store := newMemStore()
	r := newTestRouter(store)

	big := bytes.Repeat([]byte("x"), 2<<20)
	payload := fmt.Sprintf(`{"tool_name":"write_file","output":%q,"succeeded":true}`, big)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/calls", strings.NewReader(payload))
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}
