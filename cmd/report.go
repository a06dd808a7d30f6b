package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/rqc/internal/models"
	"github.com/joescharf/rqc/internal/output"
	"github.com/joescharf/rqc/internal/store"
)

var (
	reportFormat string
	reportUser   string
	reportMethod string
	reportSince  time.Duration
	reportLimit  int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report review telemetry",
	Long: `Summarize recorded review cycles (approval rate, method mix, tokens,
cost, latency) and list the most recent ones.

Formats: table (default), json, csv, markdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportRun(cmd)
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "table", "Output format: table, json, csv, markdown")
	reportCmd.Flags().StringVarP(&reportUser, "user", "u", "", "Only include this user's cycles")
	reportCmd.Flags().StringVar(&reportMethod, "method", "", "Only include cycles that ended with this method")
	reportCmd.Flags().DurationVar(&reportSince, "since", 0, "Only include cycles newer than this (e.g. 24h)")
	reportCmd.Flags().IntVarP(&reportLimit, "limit", "n", 20, "Number of recent cycles to list (0 = all)")
	rootCmd.AddCommand(reportCmd)
}

func reportRun(cmd *cobra.Command) error {
	filter := store.TelemetryFilter{
		UserID: reportUser,
		Method: models.Method(reportMethod),
		Limit:  reportLimit,
	}
	if reportSince > 0 {
		filter.Since = time.Now().Add(-reportSince)
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	sum, err := s.TelemetrySummary(ctx, filter)
	if err != nil {
		return err
	}
	records, err := s.ListTelemetry(ctx, filter)
	if err != nil {
		return err
	}

	switch reportFormat {
	case "table":
		return writeReportTable(sum, records)
	case "json":
		return writeReportJSON(ui.Out, sum, records)
	case "csv":
		return writeReportCSV(ui.Out, records)
	case "markdown":
		return writeReportMarkdown(ui.Out, sum, records)
	default:
		return fmt.Errorf("unknown format: %s (use: table, json, csv, markdown)", reportFormat)
	}
}

// sortedMethods returns the summary's methods in a stable order.
func sortedMethods(sum *models.TelemetrySummary) []models.Method {
	methods := make([]models.Method, 0, len(sum.ByMethod))
	for m := range sum.ByMethod {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}

func writeReportTable(sum *models.TelemetrySummary, records []*models.TelemetryRecord) error {
	if sum.Cycles == 0 {
		ui.Info("No review cycles recorded yet. Run: rqc review <comment> --user <id>")
		return nil
	}

	ui.Field("Cycles", sum.Cycles)
	ui.Field("Approval rate", output.RateColor(sum.ApprovalRate()))
	for _, m := range sortedMethods(sum) {
		ui.Field(string(m), sum.ByMethod[m])
	}
	ui.Field("Avg tokens", fmt.Sprintf("%.0f", sum.AvgTokens))
	ui.Field("Avg cost", fmt.Sprintf("%.3f¢", sum.AvgCostCents))
	ui.Field("Total cost", fmt.Sprintf("%.2f¢", sum.TotalCostCents))
	ui.Field("Avg time", fmt.Sprintf("%.0fms", sum.AvgProcessingMs))
	ui.Field("Avg review", fmt.Sprintf("%.0fms", sum.AvgReviewMs))
	fmt.Fprintln(ui.Out)

	table := ui.Table([]string{"When", "User", "Plan", "Method", "Attempt", "Approved", "Tokens", "Cost", "Time", "Reason"})
	for _, r := range records {
		table.Append([]string{
			r.Timestamp.Local().Format("01-02 15:04"),
			r.UserID,
			string(r.Plan),
			output.MethodColor(string(r.Method)),
			strconv.Itoa(r.AttemptNumber),
			output.VerdictColor(r.Approved),
			strconv.Itoa(r.TokensUsed),
			fmt.Sprintf("%.2f", r.CostCents),
			fmt.Sprintf("%dms", r.ProcessingTimeMs),
			truncate(reasonOrError(r), 40),
		})
	}
	return table.Render()
}

func reasonOrError(r *models.TelemetryRecord) string {
	if r.Error != "" {
		return r.Error
	}
	return r.DecisionReason
}

func writeReportJSON(w io.Writer, sum *models.TelemetrySummary, records []*models.TelemetryRecord) error {
	if records == nil {
		records = []*models.TelemetryRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Summary      *models.TelemetrySummary  `json:"summary"`
		ApprovalRate float64                   `json:"approval_rate"`
		Records      []*models.TelemetryRecord `json:"records"`
	}{sum, sum.ApprovalRate(), records})
}

func writeReportCSV(w io.Writer, records []*models.TelemetryRecord) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"ID", "CycleID", "UserID", "Plan", "Attempt", "Method", "Approved", "Decision",
		"DecisionReason", "Tokens", "CostCents", "ReviewMs", "ProcessingMs", "Error", "Timestamp"})
	for _, r := range records {
		_ = cw.Write([]string{
			r.ID, r.CycleID, r.UserID, string(r.Plan), strconv.Itoa(r.AttemptNumber), string(r.Method),
			strconv.FormatBool(r.Approved), string(r.Decision), r.DecisionReason, strconv.Itoa(r.TokensUsed),
			strconv.FormatFloat(r.CostCents, 'f', 4, 64), strconv.FormatInt(r.ReviewDurationMs, 10),
			strconv.FormatInt(r.ProcessingTimeMs, 10), r.Error, r.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
	return cw.Error()
}

func writeReportMarkdown(w io.Writer, sum *models.TelemetrySummary, records []*models.TelemetryRecord) error {
	fmt.Fprintln(w, "# Review Report")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "- Cycles: %d\n", sum.Cycles)
	fmt.Fprintf(w, "- Approval rate: %.0f%%\n", sum.ApprovalRate()*100)
	for _, m := range sortedMethods(sum) {
		fmt.Fprintf(w, "- %s: %d\n", m, sum.ByMethod[m])
	}
	fmt.Fprintf(w, "- Avg tokens: %.0f\n", sum.AvgTokens)
	fmt.Fprintf(w, "- Total cost: %.2f¢\n", sum.TotalCostCents)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| User | Method | Attempt | Approved | Tokens | Reason |")
	fmt.Fprintln(w, "|------|--------|---------|----------|--------|--------|")
	for _, r := range records {
		fmt.Fprintf(w, "| %s | %s | %d | %t | %d | %s |\n",
			r.UserID, r.Method, r.AttemptNumber, r.Approved, r.TokensUsed, reasonOrError(r))
	}
	return nil
}
