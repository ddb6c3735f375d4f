// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Heirloom plan tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/heirloom/internal/apperr"
	"github.com/starford/heirloom/internal/planservice"
)

const planFormatURI = "heirloom://plan-format"

// Server wraps the MCP server with Heirloom tools.
type Server struct {
	mcp   *server.MCPServer
	plans *planservice.Service
}

// New creates a new MCP server with all Heirloom tools registered.
func New(plans *planservice.Service) *Server {
	s := &Server{plans: plans}

	s.mcp = server.NewMCPServer(
		"Heirloom",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_plan",
		mcp.WithDescription("Read an inheritance plan by owner address. Secret answers are never returned."),
		mcp.WithString("owner_address", mcp.Required(), mcp.Description("0x-prefixed owner address")),
	), s.getPlan)

	s.mcp.AddTool(mcp.NewTool("plan_status",
		mcp.WithDescription("Liveness status of a plan: next deadline, seconds remaining, overdue and claim flags."),
		mcp.WithString("owner_address", mcp.Required(), mcp.Description("0x-prefixed owner address")),
	), s.planStatus)

	s.mcp.AddTool(mcp.NewTool("create_plan",
		mcp.WithDescription("Create an inheritance plan. The payload MUST follow the plan format contract; "+
			"read it first via the get_plan_contract tool or the "+planFormatURI+" resource."),
		mcp.WithString("plan", mcp.Required(), mcp.Description("Plan payload as a JSON object")),
	), s.createPlan)

	s.mcp.AddTool(mcp.NewTool("record_check_in",
		mcp.WithDescription("Record proof of life for the owner, pushing the claim deadline back by one interval."),
		mcp.WithString("owner_address", mcp.Required(), mcp.Description("0x-prefixed owner address")),
		mcp.WithString("note", mcp.Description("Optional note stored with the check-in")),
	), s.recordCheckIn)

	s.mcp.AddTool(mcp.NewTool("list_activity",
		mcp.WithDescription("List the most recent audit log entries of a plan, oldest first."),
		mcp.WithString("owner_address", mcp.Required(), mcp.Description("0x-prefixed owner address")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 50)")),
	), s.listActivity)

	s.mcp.AddTool(mcp.NewTool("get_plan_contract",
		mcp.WithDescription("Returns the plan payload contract. Call this before create_plan."),
	), s.getPlanContract)

	// Resource: plan format contract.
	s.mcp.AddResource(
		mcp.NewResource(planFormatURI, "Plan Format Contract",
			mcp.WithResourceDescription("Payload format and rules for inheritance plans."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPlanFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) getPlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := req.RequireString("owner_address")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.plans.GetPlan(ctx, owner)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(p), nil
}

func (s *Server) planStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := req.RequireString("owner_address")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.plans.Status(ctx, owner)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(st), nil
}

func (s *Server) createPlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("plan")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var in planservice.CreatePlanInput
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid plan JSON: %v", err)), nil
	}
	p, err := s.plans.CreatePlan(ctx, in)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", p.OwnerAddress)), nil
}

func (s *Server) recordCheckIn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := req.RequireString("owner_address")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note := req.GetString("note", "")
	res, err := s.plans.CheckIn(ctx, owner, "mcp", note)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) listActivity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := req.RequireString("owner_address")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	acts, err := s.plans.ListActivities(ctx, owner, req.GetInt("limit", 0))
	if err != nil {
		return toolError(err), nil
	}
	if len(acts) == 0 {
		return mcp.NewToolResultText("no activity found"), nil
	}
	lines := make([]string, 0, len(acts))
	for _, a := range acts {
		lines = append(lines, fmt.Sprintf("%s %s %s", a.Timestamp.Format("2006-01-02T15:04:05Z"), a.Type, a.Description))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getPlanContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PlanFormatContract), nil
}

func (s *Server) readPlanFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      planFormatURI,
			MIMEType: "text/markdown",
			Text:     PlanFormatContract,
		},
	}, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(apperr.Message(err))
}
