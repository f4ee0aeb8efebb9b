package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/embedded"

	lensotel "github.com/agentlens/agentlens/internal/adapter/otel"
	"github.com/agentlens/agentlens/internal/domain"
	"github.com/agentlens/agentlens/internal/domain/call"
	"github.com/agentlens/agentlens/internal/port/cache"
)

var _ cache.Cache = (*mockCache)(nil)

type mockCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
	hits    int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string][]byte)}
}

func (m *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	data, ok := m.entries[key]
	if ok {
		m.hits++
	}
	return data, ok, nil
}

func (m *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func seededStore(n int) *mockStore {
	store := &mockStore{}
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := range n {
		tool := "read_file"
		if i%2 == 0 {
			tool = "grep"
		}
		rec := call.Record{
			ToolName:  tool,
			Category:  call.CategoryFor(tool),
			Succeeded: i%3 != 0,
			Timestamp: base.Add(time.Duration(i) * time.Second),
			SessionID: "s1",
		}
		_ = store.Append(context.Background(), &rec)
	}
	return store
}

func TestListCallsValidatesBeforeStore(t *testing.T) {
	svc := NewInspectService(seededStore(5), nil, nil)

	_, err := svc.ListCalls(context.Background(), call.Query{MaxResults: -1})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestListCallsTailPage(t *testing.T) {
	svc := NewInspectService(seededStore(100), nil, nil)

	page, err := svc.ListCalls(context.Background(), call.Query{Offset: -20, MaxResults: call.DefaultMaxResults})
	if err != nil {
		t.Fatal(err)
	}
	if page.TotalMatches != 100 || len(page.Records) != 20 || page.HasMore {
		t.Fatalf("unexpected page: total=%d len=%d has_more=%v",
			page.TotalMatches, len(page.Records), page.HasMore)
	}
	if page.Records[0].SequenceID != 81 {
		t.Errorf("expected tail to start at sequence 81, got %d", page.Records[0].SequenceID)
	}
}

func TestListCallsUsesCachePerGeneration(t *testing.T) {
	store := seededStore(10)
	c := newMockCache()
	svc := NewInspectService(store, c, nil)
	q := call.Query{ToolName: "grep", MaxResults: call.DefaultMaxResults}
	ctx := context.Background()

	first, err := svc.ListCalls(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.ListCalls(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if c.hits != 1 {
		t.Fatalf("expected 1 cache hit for repeated query, got %d", c.hits)
	}
	if second.TotalMatches != first.TotalMatches || len(second.Records) != len(first.Records) {
		t.Fatal("cached page differs from computed page")
	}

	// An append bumps the generation; the stale entry must not be served.
	_ = store.Append(ctx, &call.Record{ToolName: "grep", Succeeded: true, Timestamp: time.Now(), SessionID: "s1"})
	third, err := svc.ListCalls(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if third.TotalMatches != first.TotalMatches+1 {
		t.Fatalf("expected fresh result after append, got total %d", third.TotalMatches)
	}
}

func TestUsageStatsMatchesRecount(t *testing.T) {
	store := seededStore(9)
	svc := NewInspectService(store, newMockCache(), nil)
	ctx := context.Background()

	usage, err := svc.UsageStats(ctx)
	if err != nil {
		t.Fatal(err)
	}

	want := call.Aggregate(store.Snapshot().Records)
	if usage.TotalCalls != want.TotalCalls || usage.Successes != want.Successes {
		t.Fatalf("usage %+v diverges from recount %+v", usage, want)
	}

	// Cached round trip stays consistent.
	again, err := svc.UsageStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again.TotalCalls != want.TotalCalls || again.SuccessRate != want.SuccessRate {
		t.Fatal("cached usage diverges from recount")
	}
}

func TestUsageStatsEmptyStore(t *testing.T) {
	svc := NewInspectService(&mockStore{}, nil, nil)

	usage, err := svc.UsageStats(context.Background())
	if err != nil {
		t.Fatalf("empty store must not error: %v", err)
	}
	if usage.TotalCalls != 0 || usage.SuccessRate != 0 {
		t.Fatalf("expected zero stats, got %+v", usage)
	}
}

func TestUsageStatsScenario(t *testing.T) {
	// Three records: succeeded true, true, false.
	store := &mockStore{}
	ctx := context.Background()
	for _, ok := range []bool{true, true, false} {
		_ = store.Append(ctx, &call.Record{ToolName: "read_file", Succeeded: ok, Timestamp: time.Now(), SessionID: "s1"})
	}
	svc := NewInspectService(store, nil, nil)

	usage, err := svc.UsageStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if usage.TotalCalls != 3 || usage.Successes != 2 || usage.Failures != 1 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
	if usage.SuccessRate < 0.66 || usage.SuccessRate > 0.67 {
		t.Fatalf("expected success rate ~0.667, got %f", usage.SuccessRate)
	}
}

func TestDepth(t *testing.T) {
	svc := NewInspectService(seededStore(7), nil, nil)
	if svc.Depth() != 7 {
		t.Fatalf("expected depth 7, got %d", svc.Depth())
	}
}

type countingCounter struct {
	embedded.Int64Counter
	mu sync.Mutex
	n  int64
}

func (c *countingCounter) Add(_ context.Context, v int64, _ ...metric.AddOption) {
	c.mu.Lock()
	c.n += v
	c.mu.Unlock()
}

func (c *countingCounter) Enabled(context.Context) bool { return true }

func (c *countingCounter) count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestServedCountersIncludeCacheHits(t *testing.T) {
	queries := &countingCounter{}
	stats := &countingCounter{}
	metrics := &lensotel.Metrics{QueriesServed: queries, StatsServed: stats}
	svc := NewInspectService(seededStore(10), newMockCache(), metrics)
	ctx := context.Background()
	q := call.Query{MaxResults: call.DefaultMaxResults}

	// Second round of each is served from cache; both rounds count.
	for range 2 {
		if _, err := svc.ListCalls(ctx, q); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.UsageStats(ctx); err != nil {
			t.Fatal(err)
		}
	}

	if queries.count() != 2 {
		t.Errorf("expected 2 served queries counted, got %d", queries.count())
	}
	if stats.count() != 2 {
		t.Errorf("expected 2 served stats requests counted, got %d", stats.count())
	}
}
