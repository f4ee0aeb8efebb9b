package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	lensotel "github.com/agentlens/agentlens/internal/adapter/otel"
	"github.com/agentlens/agentlens/internal/domain/call"
	"github.com/agentlens/agentlens/internal/port/cache"
	"github.com/agentlens/agentlens/internal/port/history"
)

// DefaultCacheTTL bounds how long a cached inspection response may live.
// Keys embed the store generation, so the TTL only controls memory pressure,
// never staleness.
const DefaultCacheTTL = 5 * time.Minute

// InspectService serves the two inspection operations from store snapshots.
// All reads are pure functions of a snapshot; results are cached per store
// generation so a cached page can never disagree with a recount.
type InspectService struct {
	store    history.Store
	cache    cache.Cache
	metrics  *lensotel.Metrics
	cacheTTL time.Duration
}

// NewInspectService creates an InspectService. cache and metrics may be nil.
func NewInspectService(store history.Store, c cache.Cache, metrics *lensotel.Metrics) *InspectService {
	return &InspectService{
		store:    store,
		cache:    c,
		metrics:  metrics,
		cacheTTL: DefaultCacheTTL,
	}
}

// ListCalls validates q and returns the matching page of call records.
func (s *InspectService) ListCalls(ctx context.Context, q call.Query) (*call.Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, span := lensotel.StartQuerySpan(ctx, q.ToolName, q.Offset, q.MaxResults)
	defer span.End()

	// Counted up front so cache hits are served queries too.
	if s.metrics != nil {
		s.metrics.QueriesServed.Add(ctx, 1)
	}

	snap := s.store.Snapshot()
	key := queryCacheKey(snap.Generation, q)

	var page call.Page
	if s.cacheGet(ctx, key, &page) {
		return &page, nil
	}

	page = call.Search(snap.Records, q)
	s.cachePut(ctx, key, &page)

	return &page, nil
}

// UsageStats returns the usage summary of the entire retained window.
func (s *InspectService) UsageStats(ctx context.Context) (*call.Usage, error) {
	ctx, span := lensotel.StartStatsSpan(ctx)
	defer span.End()

	if s.metrics != nil {
		s.metrics.StatsServed.Add(ctx, 1)
	}

	snap := s.store.Snapshot()
	key := fmt.Sprintf("stats:%d", snap.Generation)

	var usage call.Usage
	if s.cacheGet(ctx, key, &usage) {
		return &usage, nil
	}

	usage = call.Aggregate(snap.Records)
	s.cachePut(ctx, key, &usage)

	return &usage, nil
}

// Depth reports the number of currently retained records (health endpoint).
func (s *InspectService) Depth() int {
	return s.store.Len()
}

func queryCacheKey(gen uint64, q call.Query) string {
	since := ""
	if q.Since != nil {
		since = q.Since.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("calls:%d:%s:%d:%d:%s", gen, q.ToolName, q.Offset, q.MaxResults, since)
}

// cacheGet loads a cached response into v. Cache failures degrade to a
// recompute, never to an error.
func (s *InspectService) cacheGet(ctx context.Context, key string, v any) bool {
	if s.cache == nil {
		return false
	}
	data, found, err := s.cache.Get(ctx, key)
	if err != nil || !found {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		slog.Warn("discarding undecodable cache entry", "key", key, "error", err)
		_ = s.cache.Delete(ctx, key)
		return false
	}
	return true
}

func (s *InspectService) cachePut(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, key, data, s.cacheTTL)
}
