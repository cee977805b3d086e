// Package mcp implements the Model Context Protocol surface of the
// gateway. MCP-compatible agents get the same capabilities as the HTTP
// API: submit missions, search case law, read cases, file appeals. All
// writes still flow through the Elder, so governance cannot be bypassed
// by switching transports.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/RedBackRubbish/TheNest/internal/elder"
	"github.com/RedBackRubbish/TheNest/internal/model"
)

// Server wraps the MCP server around the Elder.
type Server struct {
	mcpServer *mcpserver.MCPServer
	elder     *elder.Elder
	logger    *slog.Logger
}

// New creates and configures the MCP server with all resources and tools.
func New(e *elder.Elder, version string, logger *slog.Logger) *Server {
	s := &Server{
		elder:  e,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"thenest",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// HTTPHandler returns the StreamableHTTP transport for mounting on the
// gateway's mux.
func (s *Server) HTTPHandler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.mcpServer)
}

func (s *Server) registerResources() {
	// thenest://chronicle/stats — case-law store totals.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"thenest://chronicle/stats",
			"Chronicle Stats",
			mcplib.WithResourceDescription("Totals for the append-only case-law store"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleStatsResource,
	)

	// thenest://chronicle/case/{id} — one precedent by case id.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"thenest://chronicle/case/{id}",
			"Case Record",
			mcplib.WithTemplateDescription("One precedent from the case-law store, with its full deliberation"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleCaseResource,
	)
}

func (s *Server) registerTools() {
	// nest_run_mission — full governed deliberation.
	s.mcpServer.AddTool(
		mcplib.NewTool("nest_run_mission",
			mcplib.WithDescription("Submit a mission for governed code generation. The Senate deliberates; the outcome includes votes, the artifact, and the case id."),
			mcplib.WithString("mission", mcplib.Description("The mission to deliberate"), mcplib.Required()),
		),
		s.handleRunMission,
	)

	// nest_search_chronicle — keyword precedent retrieval.
	s.mcpServer.AddTool(
		mcplib.NewTool("nest_search_chronicle",
			mcplib.WithDescription("Search past rulings by keyword overlap. Find precedents before submitting a similar mission."),
			mcplib.WithString("query", mcplib.Description("Keywords to match against past questions"), mcplib.Required()),
		),
		s.handleSearchChronicle,
	)

	// nest_get_case — one case with full deliberation.
	s.mcpServer.AddTool(
		mcplib.NewTool("nest_get_case",
			mcplib.WithDescription("Retrieve one case by id, including its deliberation and appeal history"),
			mcplib.WithString("case_id", mcplib.Description("Case identifier"), mcplib.Required()),
		),
		s.handleGetCase,
	)

	// nest_appeal_case — file an appeal.
	s.mcpServer.AddTool(
		mcplib.NewTool("nest_appeal_case",
			mcplib.WithDescription("Appeal a decided case under expanded context. Liability escalates with each appeal; the original record is never modified."),
			mcplib.WithString("case_id", mcplib.Description("Case identifier of the original ruling"), mcplib.Required()),
			mcplib.WithString("appellant_reason", mcplib.Description("Why the ruling should be reconsidered"), mcplib.Required()),
			mcplib.WithString("expanded_context", mcplib.Description("JSON object of additional context")),
			mcplib.WithString("constraint_changes", mcplib.Description("JSON object of changed constraints")),
		),
		s.handleAppealCase,
	)
}

func (s *Server) handleStatsResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	stats, err := s.elder.Chronicle().Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: chronicle stats: %w", err)
	}

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal stats: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "thenest://chronicle/stats",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleCaseResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	caseID := strings.TrimPrefix(uri, "thenest://chronicle/case/")
	if caseID == "" || caseID == uri {
		return nil, fmt.Errorf("mcp: invalid case URI: %s", uri)
	}

	p, err := s.elder.Chronicle().GetCaseByID(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("mcp: get case: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal case: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleRunMission(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	mission := request.GetString("mission", "")
	if mission == "" {
		return errorResult("mission is required"), nil
	}
	if len(mission) > model.MaxMissionLen {
		return errorResult(fmt.Sprintf("mission exceeds maximum length of %d bytes", model.MaxMissionLen)), nil
	}

	outcome, err := s.elder.RunMission(ctx, mission, elder.RunOptions{})
	if err != nil {
		s.logger.Error("mcp: mission failed", "error", err)
		return errorResult(fmt.Sprintf("mission failed: %v", err)), nil
	}

	return jsonResult(outcome)
}

func (s *Server) handleSearchChronicle(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return errorResult("query is required"), nil
	}

	results, err := s.elder.Chronicle().RetrievePrecedent(ctx, query)
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleGetCase(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	caseID := request.GetString("case_id", "")
	if caseID == "" {
		return errorResult("case_id is required"), nil
	}

	p, err := s.elder.Chronicle().GetCaseByID(ctx, caseID)
	if err != nil {
		return errorResult(fmt.Sprintf("get case failed: %v", err)), nil
	}

	return jsonResult(p)
}

func (s *Server) handleAppealCase(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	req := model.AppealRequest{
		CaseID:          request.GetString("case_id", ""),
		AppellantReason: request.GetString("appellant_reason", ""),
	}
	if err := req.Validate(); err != nil {
		return errorResult(err.Error()), nil
	}

	if raw := request.GetString("expanded_context", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.ExpandedContext); err != nil {
			return errorResult("expanded_context must be a JSON object"), nil
		}
	}
	if raw := request.GetString("constraint_changes", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.ConstraintChanges); err != nil {
			return errorResult("constraint_changes must be a JSON object"), nil
		}
	}

	outcome, err := s.elder.ProcessAppeal(ctx, req)
	if err != nil {
		s.logger.Error("mcp: appeal failed", "error", err, "case_id", req.CaseID)
		return errorResult(fmt.Sprintf("appeal failed: %v", err)), nil
	}

	return jsonResult(outcome)
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
