package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/rqc/internal/models"
	"github.com/joescharf/rqc/internal/output"
	"github.com/joescharf/rqc/internal/store"
)

var (
	planTone             string
	planCustomStyle      string
	planMaxRegenerations int
	planRQC              bool
	planListFilter       string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage per-user review configuration",
}

var planSetCmd = &cobra.Command{
	Use:   "set <user> <plan>",
	Short: "Create or replace a user's review configuration",
	Long: `Create or replace a user's review configuration. The plan's defaults
apply unless overridden with flags.

Plans: starter_trial, starter, pro, plus, custom
Tones: gentle, balanced, harsh`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return planSetRun(cmd, args[0], args[1])
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show <user>",
	Short: "Show a user's effective review configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return planShowRun(cmd, args[0])
	},
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return planListRun(cmd)
	},
}

var planDeleteCmd = &cobra.Command{
	Use:   "delete <user>",
	Short: "Delete a user's review configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return planDeleteRun(cmd, args[0])
	},
}

func init() {
	planSetCmd.Flags().StringVar(&planTone, "tone", string(models.ToneBalanced), "Tone: gentle, balanced, harsh")
	planSetCmd.Flags().StringVar(&planCustomStyle, "style", "", "Custom style prompt for the style reviewer")
	planSetCmd.Flags().IntVar(&planMaxRegenerations, "max-regenerations", 0, "Override the plan's regeneration budget")
	planSetCmd.Flags().BoolVar(&planRQC, "rqc", false, "Override whether the reviewer panel runs")
	planListCmd.Flags().StringVar(&planListFilter, "plan", "", "Only list this plan")

	planCmd.AddCommand(planSetCmd)
	planCmd.AddCommand(planShowCmd)
	planCmd.AddCommand(planListCmd)
	planCmd.AddCommand(planDeleteCmd)
	rootCmd.AddCommand(planCmd)
}

func planSetRun(cmd *cobra.Command, userID, planName string) error {
	plan := models.Plan(planName)
	if !plan.Valid() {
		return fmt.Errorf("invalid plan: %s (use: %v)", planName, models.Plans)
	}
	tone := models.Tone(planTone)
	if !tone.Valid() {
		return fmt.Errorf("invalid tone: %s (use: gentle, balanced, harsh)", planTone)
	}

	cfg := models.NewReviewConfig(userID, plan, tone)
	cfg.CustomStylePrompt = planCustomStyle
	if cmd.Flags().Changed("max-regenerations") {
		if planMaxRegenerations < 0 {
			return fmt.Errorf("--max-regenerations must be >= 0")
		}
		cfg.MaxRegenerations = planMaxRegenerations
	}
	if cmd.Flags().Changed("rqc") {
		cfg.RQCEnabled = planRQC
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	if err := s.UpsertReviewConfig(cmd.Context(), cfg); err != nil {
		return err
	}

	ui.Success("Saved %s plan for %s", output.Cyan(string(cfg.Plan)), cfg.UserID)
	printReviewConfig(cfg)
	return nil
}

func planShowRun(cmd *cobra.Command, userID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	cfg, err := s.GetReviewConfig(cmd.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		ui.Info("No config for %s; using defaults", userID)
		cfg = models.DefaultReviewConfig(userID)
	} else if err != nil {
		return err
	}

	printReviewConfig(cfg)
	return nil
}

func planListRun(cmd *cobra.Command) error {
	plan := models.Plan(planListFilter)
	if plan != "" && !plan.Valid() {
		return fmt.Errorf("invalid plan: %s", planListFilter)
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	configs, err := s.ListReviewConfigs(cmd.Context(), plan)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		ui.Info("No review configs. Add one with: rqc plan set <user> <plan>")
		return nil
	}

	table := ui.Table([]string{"User", "Plan", "Tone", "Regens", "RQC", "Custom Style", "Updated"})
	for _, c := range configs {
		rqc := "-"
		if c.RQCEnabled {
			rqc = output.Green("on")
		}
		table.Append([]string{
			c.UserID,
			string(c.Plan),
			string(c.Tone),
			fmt.Sprintf("%d", c.MaxRegenerations),
			rqc,
			truncate(c.CustomStylePrompt, 30),
			c.UpdatedAt.Format("2006-01-02"),
		})
	}
	return table.Render()
}

func planDeleteRun(cmd *cobra.Command, userID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	if err := s.DeleteReviewConfig(cmd.Context(), userID); err != nil {
		return err
	}
	ui.Success("Deleted review config for %s", userID)
	return nil
}

func printReviewConfig(c *models.ReviewConfig) {
	ui.Field("User", c.UserID)
	ui.Field("Plan", c.Plan)
	ui.Field("Tone", fmt.Sprintf("%s (intensity %d/5)", c.Tone, c.Tone.Intensity()))
	ui.Field("Regenerations", c.MaxRegenerations)
	ui.Field("Reviewer panel", c.RQCEnabled)
	if c.CustomStylePrompt != "" {
		ui.Field("Custom style", c.CustomStylePrompt)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
