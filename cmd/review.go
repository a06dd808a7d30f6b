package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/rqc/internal/models"
	"github.com/joescharf/rqc/internal/orchestrator"
	"github.com/joescharf/rqc/internal/output"
)

var (
	reviewUser string
	reviewJSON bool
)

var reviewCmd = &cobra.Command{
	Use:   "review <comment>",
	Short: "Generate a reviewed roast reply to a comment",
	Long: `Generate a roast reply to a comment and run it through the review cycle
for the given user. Users on plans with the reviewer panel get full review
with regeneration; others get a single moderated generation.

A reply is always printed. The method shows which path produced it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewRun(cmd, strings.Join(args, " "))
	},
}

func init() {
	reviewCmd.Flags().StringVarP(&reviewUser, "user", "u", "", "User whose plan and tone apply")
	reviewCmd.Flags().BoolVar(&reviewJSON, "json", false, "Print the full attempt as JSON")
	rootCmd.AddCommand(reviewCmd)
}

func reviewRun(cmd *cobra.Command, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("comment text is empty")
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	orch, err := newOrchestrator(ctx, s)
	if err != nil {
		return err
	}

	att := orch.Generate(ctx, orchestrator.Request{UserID: reviewUser, Text: text})

	if reviewJSON {
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(att)
	}
	printAttempt(att)
	return nil
}

func printAttempt(att *models.GenerationAttempt) {
	fmt.Fprintln(ui.Out, att.CandidateText)
	fmt.Fprintln(ui.Out)

	ui.Field("Method", output.MethodColor(string(att.Method)))
	ui.Field("Approved", output.VerdictColor(att.Approved))
	ui.Field("Plan", att.Plan)
	ui.Field("Attempt", fmt.Sprintf("%d of %d", att.AttemptNumber, att.TotalAttempts))
	ui.Field("Tokens", att.TokensUsed)
	ui.Field("Cost", fmt.Sprintf("%.2f¢", att.CostCents))
	ui.Field("Time", fmt.Sprintf("%dms", att.ProcessingTimeMs))

	if o := att.Outcome; o != nil {
		ui.Field("Moderator", verdictLine(o.ModeratorPass, o.ModeratorReason))
		ui.Field("Comedian", verdictLine(o.ComedianPass, o.ComedianReason))
		ui.Field("Style", verdictLine(o.StylePass, o.StyleReason))
		ui.Field("Decision", o.DecisionReason)
	}
	if att.Method.IsFallback() {
		switch {
		case att.Error != "":
			ui.Warning("Fell back after error: %s", att.Error)
		case att.Method == models.MethodFallbackAfterRQC:
			ui.Warning("No candidate approved within the regeneration budget; safe reply used")
		}
	}
}

func verdictLine(passed bool, reason *string) string {
	s := output.VerdictColor(passed)
	if reason != nil && *reason != "" {
		s += " (" + *reason + ")"
	}
	return s
}
