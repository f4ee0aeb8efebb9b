package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/agentlens/agentlens/internal/domain/call"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"agentlens://calls",
			"Recent Tool Calls",
			mcplib.WithResourceDescription("The most recent page of recorded tool calls"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleCallsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"agentlens://stats",
			"Usage Statistics",
			mcplib.WithResourceDescription("Aggregated usage statistics for the retained history window"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleStatsResource,
	)
}

func (s *Server) handleCallsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Calls == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"call reader not configured"}`,
			},
		}, nil
	}

	// The resource mirrors the default tail view: the last 50 calls.
	page, err := s.deps.Calls.ListCalls(ctx, call.Query{
		Offset:     -call.DefaultMaxResults,
		MaxResults: call.DefaultMaxResults,
	})
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(page)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleStatsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Stats == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"stats reader not configured"}`,
			},
		}, nil
	}
	usage, err := s.deps.Stats.UsageStats(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(usage)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
