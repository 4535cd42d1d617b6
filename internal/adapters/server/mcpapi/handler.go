// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hylla/strand/internal/app"
	"github.com/hylla/strand/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the stream, commit,
// and stats tools.
func NewHandler(cfg Config, svc *app.Service) (*Handler, error) {
	if svc == nil {
		return nil, fmt.Errorf("stream service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerStreamTools(mcpSrv, svc)
	registerCommitTools(mcpSrv, svc)
	registerStatsTool(mcpSrv, svc)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "strand"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerStreamTools registers the stream lifecycle tools.
func registerStreamTools(srv *mcpserver.MCPServer, svc *app.Service) {
	srv.AddTool(
		mcp.NewTool(
			"strand.list_streams",
			mcp.WithDescription("List work streams, optionally filtered by status and category."),
			mcp.WithString("status", mcp.Description("Filter by lifecycle status"), mcp.Enum("initializing", "active", "blocked", "paused", "completed", "archived")),
			mcp.WithString("category", mcp.Description("Filter by category"), mcp.Enum("backend", "frontend", "infra", "tooling", "research")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			streams, err := svc.ListStreams(ctx, app.StreamFilter{
				Status:   domain.Status(req.GetString("status", "")),
				Category: domain.Category(req.GetString("category", "")),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"streams": streams})
			if err != nil {
				return nil, fmt.Errorf("encode list_streams result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"strand.get_stream",
			mcp.WithDescription("Fetch one work stream by id."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Stream identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			stream, ok, err := svc.GetStream(ctx, id)
			if err != nil {
				return toolResultFromError(err), nil
			}
			if !ok {
				return mcp.NewToolResultError("not_found: stream " + id), nil
			}
			result, err := mcp.NewToolResultJSON(stream)
			if err != nil {
				return nil, fmt.Errorf("encode get_stream result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"strand.create_stream",
			mcp.WithDescription("Create a new work stream in the initializing status."),
			mcp.WithString("stream_number", mcp.Required(), mcp.Description("Human-facing stream number")),
			mcp.WithString("title", mcp.Required(), mcp.Description("Short stream title")),
			mcp.WithString("category", mcp.Required(), mcp.Description("Stream category"), mcp.Enum("backend", "frontend", "infra", "tooling", "research")),
			mcp.WithString("priority", mcp.Description("Priority, defaults to medium"), mcp.Enum("critical", "high", "medium", "low")),
			mcp.WithString("worktree_path", mcp.Required(), mcp.Description("Worktree path for the stream")),
			mcp.WithString("branch", mcp.Required(), mcp.Description("Branch name for the stream")),
			mcp.WithArray("phases", mcp.Description("Ordered phase names"), mcp.Items(map[string]any{"type": "string"})),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			streamNumber, err := req.RequireString("stream_number")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			title, err := req.RequireString("title")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			category, err := req.RequireString("category")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			worktreePath, err := req.RequireString("worktree_path")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			branch, err := req.RequireString("branch")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			stream, err := svc.CreateStream(ctx, app.CreateStreamInput{
				StreamNumber: streamNumber,
				Title:        title,
				Category:     domain.Category(category),
				Priority:     domain.Priority(req.GetString("priority", "")),
				WorktreePath: worktreePath,
				Branch:       branch,
				Phases:       req.GetStringSlice("phases", nil),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(stream)
			if err != nil {
				return nil, fmt.Errorf("encode create_stream result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"strand.update_stream",
			mcp.WithDescription("Patch a stream's status, progress, phase, or blocker. Omitted fields are left unchanged."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Stream identifier")),
			mcp.WithString("status", mcp.Description("New lifecycle status"), mcp.Enum("initializing", "active", "blocked", "paused", "completed", "archived")),
			mcp.WithNumber("progress", mcp.Description("Progress percentage 0-100")),
			mcp.WithNumber("current_phase", mcp.Description("Index into the stream's phase list")),
			mcp.WithString("blocked_by", mcp.Description("Free-text blocker, empty clears it")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			stream, err := svc.UpdateStream(ctx, id, patchFromArguments(req.GetArguments()))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(stream)
			if err != nil {
				return nil, fmt.Errorf("encode update_stream result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"strand.complete_stream",
			mcp.WithDescription("Mark a stream completed with an optional summary."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Stream identifier")),
			mcp.WithString("summary", mcp.Description("Completion summary recorded in history")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			stream, err := svc.CompleteStream(ctx, id, req.GetString("summary", ""))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(stream)
			if err != nil {
				return nil, fmt.Errorf("encode complete_stream result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"strand.archive_stream",
			mcp.WithDescription("Move a stream into the archived status, preserving its history."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Stream identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			stream, err := svc.ArchiveStream(ctx, id)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(stream)
			if err != nil {
				return nil, fmt.Errorf("encode archive_stream result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"strand.stream_history",
			mcp.WithDescription("List the audit events for one stream, newest first."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Stream identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			events, err := svc.ListHistory(ctx, id)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"events": events})
			if err != nil {
				return nil, fmt.Errorf("encode stream_history result: %w", err)
			}
			return result, nil
		},
	)
}

// registerCommitTools registers the commit ledger tools.
func registerCommitTools(srv *mcpserver.MCPServer, svc *app.Service) {
	srv.AddTool(
		mcp.NewTool(
			"strand.record_commit",
			mcp.WithDescription("Record one commit against a stream. The stream id is not validated, so commits outlive archived streams."),
			mcp.WithString("stream_id", mcp.Required(), mcp.Description("Stream identifier")),
			mcp.WithString("commit_hash", mcp.Required(), mcp.Description("Commit hash")),
			mcp.WithString("message", mcp.Description("Commit message")),
			mcp.WithString("author", mcp.Description("Commit author")),
			mcp.WithNumber("files_changed", mcp.Description("Number of files changed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			streamID, err := req.RequireString("stream_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			hash, err := req.RequireString("commit_hash")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			commit, err := svc.RecordCommit(ctx, domain.CommitInput{
				StreamID:     streamID,
				CommitHash:   hash,
				Message:      req.GetString("message", ""),
				Author:       req.GetString("author", ""),
				FilesChanged: req.GetInt("files_changed", 0),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(commit)
			if err != nil {
				return nil, fmt.Errorf("encode record_commit result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"strand.list_commits",
			mcp.WithDescription("List recent commits, optionally scoped to one stream."),
			mcp.WithString("stream_id", mcp.Description("Limit to one stream")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of commits, defaults to 20")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			limit := req.GetInt("limit", 0)
			streamID := strings.TrimSpace(req.GetString("stream_id", ""))

			var (
				commits []domain.Commit
				err     error
			)
			if streamID == "" {
				commits, err = svc.RecentCommits(ctx, limit)
			} else {
				commits, err = svc.CommitsByStream(ctx, streamID, limit)
			}
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"commits": commits})
			if err != nil {
				return nil, fmt.Errorf("encode list_commits result: %w", err)
			}
			return result, nil
		},
	)
}

// registerStatsTool registers the aggregate rollup tool.
func registerStatsTool(srv *mcpserver.MCPServer, svc *app.Service) {
	srv.AddTool(
		mcp.NewTool(
			"strand.quick_stats",
			mcp.WithDescription("Return the derived dashboard counters for streams and commits."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			stats, err := svc.QuickStats(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(stats)
			if err != nil {
				return nil, fmt.Errorf("encode quick_stats result: %w", err)
			}
			return result, nil
		},
	)
}

// patchFromArguments builds a stream patch from the raw argument map so an
// omitted field stays nil instead of collapsing to its zero value.
func patchFromArguments(args map[string]any) domain.StreamPatch {
	var patch domain.StreamPatch
	if v, ok := args["status"].(string); ok {
		status := domain.Status(v)
		patch.Status = &status
	}
	if v, ok := args["progress"].(float64); ok {
		progress := int(v)
		patch.Progress = &progress
	}
	if v, ok := args["current_phase"].(float64); ok {
		phase := int(v)
		patch.CurrentPhase = &phase
	}
	if v, ok := args["blocked_by"].(string); ok {
		patch.BlockedBy = &v
	}
	return patch
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, domain.ErrValidation):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, app.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
