package call

import (
	"sort"
	"time"
)

// Span is the earliest and latest timestamp across a set of records.
type Span struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// ToolUsage holds per-tool call counts and duration totals.
type ToolUsage struct {
	CallCount       int   `json:"call_count"`
	TotalDurationMS int64 `json:"total_duration_ms,omitempty"`
	AvgDurationMS   int64 `json:"avg_duration_ms,omitempty"`
}

// Usage is the derived statistical summary of the retained history window.
// It is a pure function of a snapshot and always matches a direct recount.
type Usage struct {
	TotalCalls        int                  `json:"total_calls"`
	Successes         int                  `json:"successes"`
	Failures          int                  `json:"failures"`
	SuccessRate       float64              `json:"success_rate"`
	ByCategory        map[string]int       `json:"by_category"`
	ByTool            map[string]int       `json:"by_tool"`
	ToolUsage         map[string]ToolUsage `json:"tool_usage,omitempty"`
	SessionIDs        []string             `json:"session_ids"`
	TimeSpan          *Span                `json:"time_span,omitempty"`
	SessionDurationMS int64                `json:"session_duration_ms,omitempty"`
}

// Aggregate computes usage statistics over a full snapshot. No filtering is
// applied: it summarizes the entire retained window. An empty snapshot yields
// zero counts and a zero success rate, not an error.
func Aggregate(records []Record) Usage {
	u := Usage{
		ByCategory: make(map[string]int),
		ByTool:     make(map[string]int),
		SessionIDs: []string{},
	}
	if len(records) == 0 {
		return u
	}

	toolUsage := make(map[string]ToolUsage)
	sessions := make(map[string]struct{})
	span := Span{Earliest: records[0].Timestamp, Latest: records[0].Timestamp}

	for _, r := range records {
		u.TotalCalls++
		if r.Succeeded {
			u.Successes++
		}

		cat := r.Category
		if cat == "" {
			cat = CategoryFor(r.ToolName)
		}
		u.ByCategory[cat]++
		u.ByTool[r.ToolName]++

		tu := toolUsage[r.ToolName]
		tu.CallCount++
		tu.TotalDurationMS += r.DurationMS
		toolUsage[r.ToolName] = tu

		if r.SessionID != "" {
			sessions[r.SessionID] = struct{}{}
		}
		if r.Timestamp.Before(span.Earliest) {
			span.Earliest = r.Timestamp
		}
		if r.Timestamp.After(span.Latest) {
			span.Latest = r.Timestamp
		}
	}

	u.Failures = u.TotalCalls - u.Successes
	u.SuccessRate = float64(u.Successes) / float64(u.TotalCalls)

	for name, tu := range toolUsage {
		tu.AvgDurationMS = tu.TotalDurationMS / int64(tu.CallCount)
		toolUsage[name] = tu
	}
	u.ToolUsage = toolUsage

	for id := range sessions {
		u.SessionIDs = append(u.SessionIDs, id)
	}
	sort.Strings(u.SessionIDs)

	u.TimeSpan = &span
	u.SessionDurationMS = span.Latest.Sub(span.Earliest).Milliseconds()

	return u
}
