package call

import (
	"fmt"
	"time"

	"github.com/agentlens/agentlens/internal/domain"
)

// Pagination limits for history queries.
const (
	DefaultMaxResults = 50
	MaxPageSize       = 500
)

// Query selects a filtered, paginated slice of the history.
//
// Offset >= 0 counts from the earliest matching record. Offset < 0 means
// "the last |offset| matches" (tail semantics). MaxResults is clamped to
// MaxPageSize; zero returns an empty page with an accurate total.
type Query struct {
	ToolName   string     `json:"tool_name,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
	Offset     int        `json:"offset"`
	MaxResults int        `json:"max_results"`
}

// Page is one page of query results in chronological order.
type Page struct {
	Records      []Record `json:"records"`
	TotalMatches int      `json:"total_matches"`
	HasMore      bool     `json:"has_more"`
}

// Validate rejects malformed query parameters before the store is consulted.
func (q Query) Validate() error {
	if q.MaxResults < 0 {
		return fmt.Errorf("max_results must not be negative: %w", domain.ErrValidation)
	}
	return nil
}

// Search runs the query against a snapshot of records. The snapshot must be
// in ascending sequence order, which is how the store hands it out. Search is
// pure: repeated identical calls on the same snapshot return identical pages.
func Search(records []Record, q Query) Page {
	matches := records
	if q.ToolName != "" || q.Since != nil {
		matches = make([]Record, 0, len(records))
		for _, r := range records {
			if q.ToolName != "" && r.ToolName != q.ToolName {
				continue
			}
			if q.Since != nil && r.Timestamp.Before(*q.Since) {
				continue
			}
			matches = append(matches, r)
		}
	}

	total := len(matches)

	start := q.Offset
	if start < 0 {
		start = total + q.Offset
		if start < 0 {
			start = 0
		}
	}
	if start > total {
		start = total
	}

	limit := q.MaxResults
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	end := start + limit
	if end > total {
		end = total
	}

	page := make([]Record, end-start)
	copy(page, matches[start:end])

	return Page{
		Records:      page,
		TotalMatches: total,
		HasMore:      end < total,
	}
}
