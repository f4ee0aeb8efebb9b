// Package call defines the tool-call record domain entity: one immutable
// fact per completed tool invocation, plus the query and aggregation logic
// that reads them.
package call

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentlens/agentlens/internal/domain"
)

// Category labels grouping related tools.
const (
	CategoryFilesystem = "filesystem"
	CategoryTerminal   = "terminal"
	CategoryEdit       = "edit"
	CategorySearch     = "search"
	CategoryWeb        = "web"
	CategoryOther      = "other"
)

// Record is a single completed tool invocation. Records are immutable once
// appended; SequenceID is assigned by the store and is authoritative for
// chronological order (Timestamp is used for filtering only).
type Record struct {
	SequenceID int64           `json:"sequence_id"`
	ToolName   string          `json:"tool_name"`
	Category   string          `json:"category,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Succeeded  bool            `json:"succeeded"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	SessionID  string          `json:"session_id,omitempty"`
}

// categoryByTool maps well-known tool names to their category.
var categoryByTool = map[string]string{
	"read_file":      CategoryFilesystem,
	"write_file":     CategoryFilesystem,
	"create_file":    CategoryFilesystem,
	"delete_file":    CategoryFilesystem,
	"list_directory": CategoryFilesystem,
	"move_file":      CategoryFilesystem,
	"stat_file":      CategoryFilesystem,

	"execute_command": CategoryTerminal,
	"run_command":     CategoryTerminal,
	"terminal":        CategoryTerminal,
	"shell":           CategoryTerminal,

	"edit_file":     CategoryEdit,
	"apply_patch":   CategoryEdit,
	"replace_lines": CategoryEdit,

	"grep":         CategorySearch,
	"glob":         CategorySearch,
	"search_files": CategorySearch,
	"code_search":  CategorySearch,

	"fetch_url":  CategoryWeb,
	"web_search": CategoryWeb,
	"http_get":   CategoryWeb,
}

// CategoryFor returns the category for a tool name, falling back to prefix
// heuristics and finally CategoryOther.
func CategoryFor(toolName string) string {
	if c, ok := categoryByTool[toolName]; ok {
		return c
	}
	switch {
	case strings.HasPrefix(toolName, "file_"), strings.HasSuffix(toolName, "_file"):
		return CategoryFilesystem
	case strings.HasPrefix(toolName, "search_"), strings.HasSuffix(toolName, "_search"):
		return CategorySearch
	default:
		return CategoryOther
	}
}

// Validate checks that the record is well-formed enough to append.
func (r *Record) Validate() error {
	if r.ToolName == "" {
		return fmt.Errorf("tool_name is required: %w", domain.ErrValidation)
	}
	return nil
}

// Normalize fills derived and defaulted fields before append: category from
// the tool name when the caller supplied none, and the current time when the
// timestamp is zero.
func (r *Record) Normalize(now time.Time) {
	if r.Category == "" {
		r.Category = CategoryFor(r.ToolName)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
}
