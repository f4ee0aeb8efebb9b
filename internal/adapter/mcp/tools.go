package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/agentlens/agentlens/internal/domain"
	"github.com/agentlens/agentlens/internal/domain/call"
)

// Tool names exposed to the agent runtime.
const (
	ToolInspectToolCalls  = "inspect_tool_calls"
	ToolInspectUsageStats = "inspect_usage_stats"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.inspectToolCallsTool(),
		s.inspectUsageStatsTool(),
	)
}

func (s *Server) inspectToolCallsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool(ToolInspectToolCalls,
		mcplib.WithDescription(
			"Get recent tool call history with their arguments and outputs. "+
				"Returns a chronological page of tool calls with pagination via "+
				"offset (negative for tail behavior, e.g. -20 = last 20 calls). "+
				"Useful for onboarding new chats about work already done, "+
				"recovering context after chat history loss, and debugging "+
				"tool call sequences. History keeps the last 1000 calls, "+
				"persisted to disk; inspection tools do not track themselves."),
		mcplib.WithString("tool_name",
			mcplib.Description("Exact tool name to filter by"),
		),
		mcplib.WithString("since",
			mcplib.Description("Only calls at or after this ISO-8601 timestamp"),
		),
		mcplib.WithNumber("offset",
			mcplib.Description("Pagination start, 0-based; negative counts from the most recent call backward"),
		),
		mcplib.WithNumber("max_results",
			mcplib.Description("Page size (default 50, capped at 500)"),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
		mcplib.WithDestructiveHintAnnotation(false),
		mcplib.WithIdempotentHintAnnotation(true),
		mcplib.WithOpenWorldHintAnnotation(false),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleInspectToolCalls,
	}
}

func (s *Server) inspectUsageStatsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool(ToolInspectUsageStats,
		mcplib.WithDescription(
			"Get aggregated usage statistics for tool calls: totals, "+
				"success/failure rates, per-tool and per-category breakdowns, "+
				"active sessions and the covered time span. Useful for "+
				"monitoring usage patterns and identifying frequently used "+
				"or failing tools."),
		mcplib.WithReadOnlyHintAnnotation(true),
		mcplib.WithDestructiveHintAnnotation(false),
		mcplib.WithIdempotentHintAnnotation(true),
		mcplib.WithOpenWorldHintAnnotation(false),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleInspectUsageStats,
	}
}

// toolCallsOutput is the structured payload returned by inspect_tool_calls.
type toolCallsOutput struct {
	Summary        string        `json:"summary"`
	Count          int           `json:"count"`
	TotalMatches   int           `json:"total_matches"`
	HasMore        bool          `json:"has_more"`
	Calls          []call.Record `json:"calls"`
	Offset         int           `json:"offset"`
	MaxResults     int           `json:"max_results"`
	FilterToolName string        `json:"filter_tool_name,omitempty"`
	FilterSince    string        `json:"filter_since,omitempty"`
}

func (s *Server) handleInspectToolCalls(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Calls == nil {
		return mcplib.NewToolResultError("call reader not configured"), nil
	}

	q, errMsg := parseQueryArgs(req.GetArguments())
	if errMsg != "" {
		return mcplib.NewToolResultError(errMsg), nil
	}

	page, err := s.deps.Calls.ListCalls(ctx, q)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return mcplib.NewToolResultError(err.Error()), nil
		}
		return mcplib.NewToolResultErrorFromErr("failed to query tool history", err), nil
	}

	out := toolCallsOutput{
		Summary:        callsSummary(page),
		Count:          len(page.Records),
		TotalMatches:   page.TotalMatches,
		HasMore:        page.HasMore,
		Calls:          page.Records,
		Offset:         q.Offset,
		MaxResults:     q.MaxResults,
		FilterToolName: q.ToolName,
	}
	if q.Since != nil {
		out.FilterSince = q.Since.UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal tool history", err), nil
	}
	return toolResultJSON(string(data)), nil
}

// usageOutput is the structured payload returned by inspect_usage_stats.
type usageOutput struct {
	Summary string `json:"summary"`
	call.Usage
}

func (s *Server) handleInspectUsageStats(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Stats == nil {
		return mcplib.NewToolResultError("stats reader not configured"), nil
	}

	usage, err := s.deps.Stats.UsageStats(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to aggregate usage stats", err), nil
	}

	out := usageOutput{
		Summary: fmt.Sprintf("Usage Statistics: %d calls, %d succeeded, %d failed (%.1f%% success)",
			usage.TotalCalls, usage.Successes, usage.Failures, usage.SuccessRate*100),
		Usage: *usage,
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal usage stats", err), nil
	}
	return toolResultJSON(string(data)), nil
}

// parseQueryArgs maps loose MCP arguments onto a Query, rejecting values of
// the wrong shape before anything touches the store. Returns a non-empty
// message on validation failure.
func parseQueryArgs(args map[string]any) (call.Query, string) {
	q := call.Query{MaxResults: call.DefaultMaxResults}

	if v, ok := args["tool_name"]; ok {
		name, ok := v.(string)
		if !ok {
			return q, "tool_name must be a string"
		}
		q.ToolName = name
	}

	if v, ok := args["since"]; ok {
		raw, ok := v.(string)
		if !ok {
			return q, "since must be an ISO-8601 timestamp string"
		}
		if raw != "" {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return q, fmt.Sprintf("since is not a valid ISO-8601 timestamp: %v", err)
			}
			q.Since = &ts
		}
	}

	if v, ok := args["offset"]; ok {
		n, msg := intArg(v, "offset")
		if msg != "" {
			return q, msg
		}
		q.Offset = n
	}

	if v, ok := args["max_results"]; ok {
		n, msg := intArg(v, "max_results")
		if msg != "" {
			return q, msg
		}
		if n < 0 {
			return q, "max_results must not be negative"
		}
		q.MaxResults = n
	}

	return q, ""
}

// intArg coerces a JSON number to an int, rejecting fractions.
func intArg(v any, name string) (int, string) {
	f, ok := v.(float64)
	if !ok {
		return 0, name + " must be an integer"
	}
	if f != math.Trunc(f) {
		return 0, name + " must be an integer"
	}
	return int(f), ""
}

func callsSummary(page *call.Page) string {
	if len(page.Records) == 0 {
		return "Tool Call History: no calls matching criteria"
	}
	latest := page.Records[len(page.Records)-1].ToolName
	return fmt.Sprintf("Tool Call History: %d of %d matching calls, latest: %s",
		len(page.Records), page.TotalMatches, latest)
}
