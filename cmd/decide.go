package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/rqc/internal/models"
	"github.com/joescharf/rqc/internal/output"
	"github.com/joescharf/rqc/internal/review"
)

var decideJSON bool

var decideCmd = &cobra.Command{
	Use:   "decide <moderator> <comedian> <style>",
	Short: "Apply the decision rules to three verdicts",
	Long: `Apply the decision rules to three hand-written reviewer verdicts.
Each verdict is "pass" or "fail", optionally followed by ":reason".

A moderator fail is a veto. Otherwise two passes out of three approve.

Example:
  rqc decide pass fail:"too tame" pass`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decideRun(args)
	},
}

func init() {
	decideCmd.Flags().BoolVar(&decideJSON, "json", false, "Print the decision as JSON")
	rootCmd.AddCommand(decideCmd)
}

func decideRun(args []string) error {
	var verdicts [3]models.ReviewerVerdict
	for i, name := range []string{"moderator", "comedian", "style"} {
		v, err := review.ParseVerdictArg(args[i])
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		verdicts[i] = v
	}

	d := review.Decide(verdicts[0], verdicts[1], verdicts[2])

	if decideJSON {
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}

	action := output.Green(string(d.Action))
	if d.Action != models.DecisionApproved {
		action = output.Yellow(string(d.Action))
	}
	ui.Field("Decision", action)
	ui.Field("Reason", d.Reason)
	return nil
}
