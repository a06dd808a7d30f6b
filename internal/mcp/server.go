package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/rqc/internal/models"
	"github.com/joescharf/rqc/internal/orchestrator"
	"github.com/joescharf/rqc/internal/review"
	"github.com/joescharf/rqc/internal/store"
)

// Generator runs one review cycle. *orchestrator.Orchestrator implements it.
type Generator interface {
	Generate(ctx context.Context, req orchestrator.Request) *models.GenerationAttempt
}

// Server exposes the review pipeline and its data layer as MCP tools.
type Server struct {
	store   store.Store
	gen     Generator
	version string
}

// NewServer creates the MCP server wrapper. gen may be nil when no backend is
// configured; rqc_review then reports an error.
func NewServer(s store.Store, gen Generator, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{store: s, gen: gen, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("rqc", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.reviewTool())
	srv.AddTool(s.decideTool())
	srv.AddTool(s.getPlanTool())
	srv.AddTool(s.setPlanTool())
	srv.AddTool(s.reportTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// rqc_review
func (s *Server) reviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rqc_review",
		mcp.WithDescription("Generate a roast reply to a comment and run it through the quality-control pipeline. Always returns a reply; the method field says whether it was reviewed, moderated, or a fallback."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The comment to reply to")),
		mcp.WithString("user_id", mcp.Description("User whose plan and tone apply (default: anonymous)")),
	)
	return tool, s.handleReview
}

func (s *Server) handleReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil || strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}
	if s.gen == nil {
		return mcp.NewToolResultError("no generation backend configured"), nil
	}

	att := s.gen.Generate(ctx, orchestrator.Request{
		UserID: request.GetString("user_id", ""),
		Text:   text,
	})
	return jsonResult(att)
}

// rqc_decide
func (s *Server) decideTool() (mcp.Tool, server.ToolHandlerFunc) {
	verdictDesc := `"pass" or "fail" optionally followed by ":reason"`
	tool := mcp.NewTool("rqc_decide",
		mcp.WithDescription("Apply the decision rules to three reviewer verdicts: a moderator fail is a veto, otherwise 2 of 3 passes approve."),
		mcp.WithString("moderator", mcp.Required(), mcp.Description(verdictDesc)),
		mcp.WithString("comedian", mcp.Required(), mcp.Description(verdictDesc)),
		mcp.WithString("style", mcp.Required(), mcp.Description(verdictDesc)),
	)
	return tool, s.handleDecide
}

func (s *Server) handleDecide(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var verdicts [3]models.ReviewerVerdict
	for i, name := range []string{"moderator", "comedian", "style"} {
		raw, err := request.RequireString(name)
		if err != nil {
			return mcp.NewToolResultError("missing required parameter: " + name), nil
		}
		v, err := review.ParseVerdictArg(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %v", name, err)), nil
		}
		verdicts[i] = v
	}
	return jsonResult(review.Decide(verdicts[0], verdicts[1], verdicts[2]))
}

type planOut struct {
	UserID            string      `json:"user_id"`
	Plan              models.Plan `json:"plan"`
	Tone              models.Tone `json:"tone"`
	Intensity         int         `json:"intensity"`
	CustomStylePrompt string      `json:"custom_style_prompt,omitempty"`
	MaxRegenerations  int         `json:"max_regenerations"`
	RQCEnabled        bool        `json:"rqc_enabled"`
	Default           bool        `json:"default,omitempty"`
}

func toPlanOut(c *models.ReviewConfig, isDefault bool) planOut {
	return planOut{
		UserID:            c.UserID,
		Plan:              c.Plan,
		Tone:              c.Tone,
		Intensity:         c.Tone.Intensity(),
		CustomStylePrompt: c.CustomStylePrompt,
		MaxRegenerations:  c.MaxRegenerations,
		RQCEnabled:        c.RQCEnabled,
		Default:           isDefault,
	}
}

// rqc_get_plan
func (s *Server) getPlanTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rqc_get_plan",
		mcp.WithDescription("Get a user's review configuration. Users without one get the starter_trial defaults, flagged with default=true."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User ID")),
	)
	return tool, s.handleGetPlan
}

func (s *Server) handleGetPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user_id"), nil
	}

	cfg, err := s.store.GetReviewConfig(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return jsonResult(toPlanOut(models.DefaultReviewConfig(userID), true))
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get plan: %v", err)), nil
	}
	return jsonResult(toPlanOut(cfg, false))
}

// rqc_set_plan
func (s *Server) setPlanTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rqc_set_plan",
		mcp.WithDescription("Create or replace a user's review configuration. Unset fields take the plan's defaults."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User ID")),
		mcp.WithString("plan", mcp.Required(), mcp.Description("Plan tier"),
			mcp.Enum("starter_trial", "starter", "pro", "plus", "custom")),
		mcp.WithString("tone", mcp.Description("Tone (default: balanced)"),
			mcp.Enum("gentle", "balanced", "harsh")),
		mcp.WithString("custom_style_prompt", mcp.Description("Free-form style guidance for the style reviewer")),
		mcp.WithNumber("max_regenerations", mcp.Description("Override the plan's regeneration budget (>= 0)")),
		mcp.WithBoolean("rqc_enabled", mcp.Description("Override whether the full reviewer panel runs")),
	)
	return tool, s.handleSetPlan
}

func (s *Server) handleSetPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user_id"), nil
	}
	planStr, err := request.RequireString("plan")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: plan"), nil
	}
	plan := models.Plan(planStr)
	if !plan.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("invalid plan: %s", planStr)), nil
	}
	tone := models.Tone(request.GetString("tone", string(models.ToneBalanced)))
	if !tone.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("invalid tone: %s", tone)), nil
	}

	cfg := models.NewReviewConfig(userID, plan, tone)
	cfg.CustomStylePrompt = request.GetString("custom_style_prompt", "")

	args := request.GetArguments()
	if _, ok := args["max_regenerations"]; ok {
		n := request.GetInt("max_regenerations", cfg.MaxRegenerations)
		if n < 0 {
			return mcp.NewToolResultError("max_regenerations must be >= 0"), nil
		}
		cfg.MaxRegenerations = n
	}
	if _, ok := args["rqc_enabled"]; ok {
		cfg.RQCEnabled = request.GetBool("rqc_enabled", cfg.RQCEnabled)
	}

	if err := s.store.UpsertReviewConfig(ctx, cfg); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save plan: %v", err)), nil
	}
	return jsonResult(toPlanOut(cfg, false))
}

// rqc_report
func (s *Server) reportTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("rqc_report",
		mcp.WithDescription("Summarize review telemetry: cycles, approval rate, per-method counts, average tokens, cost and latency, plus the most recent records."),
		mcp.WithString("user_id", mcp.Description("Only include this user's cycles")),
		mcp.WithNumber("limit", mcp.Description("Number of recent records to include (default 10)")),
	)
	return tool, s.handleReport
}

func (s *Server) handleReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.TelemetryFilter{
		UserID: request.GetString("user_id", ""),
		Limit:  request.GetInt("limit", 10),
	}

	sum, err := s.store.TelemetrySummary(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to summarize telemetry: %v", err)), nil
	}
	recent, err := s.store.ListTelemetry(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list telemetry: %v", err)), nil
	}
	if recent == nil {
		recent = []*models.TelemetryRecord{}
	}

	out := struct {
		Summary      *models.TelemetrySummary  `json:"summary"`
		ApprovalRate float64                   `json:"approval_rate"`
		Recent       []*models.TelemetryRecord `json:"recent"`
	}{sum, sum.ApprovalRate(), recent}
	return jsonResult(out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
