package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/joescharf/rqc/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client run review cycles and manage plans. Configure with:

  {
    "mcpServers": {
      "rqc": { "command": "rqc", "args": ["mcp"] }
    }
  }

Available tools: rqc_review, rqc_decide, rqc_get_plan, rqc_set_plan, rqc_report

rqc_review needs a configured backend; the other tools work without one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var gen mcp.Generator
	orch, err := newOrchestrator(ctx, s)
	switch {
	case err == nil:
		gen = orch
	case errors.Is(err, errNoAPIKey):
		logger.Warn("review tool disabled", "error", err)
	default:
		return err
	}

	return mcp.NewServer(s, gen, buildVersion).ServeStdio(ctx)
}
