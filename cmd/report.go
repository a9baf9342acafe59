package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marbeek/stagescore/internal/application"
	"github.com/marbeek/stagescore/internal/domain"
	"github.com/marbeek/stagescore/internal/output"
)

var reportFormat string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize the corpus by bucket and lifecycle state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportRun()
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "text", "Output format: text, json")
	rootCmd.AddCommand(reportCmd)
}

// Display order: best reception first, then the lifecycle flow.
var (
	bucketOrder = []domain.Bucket{
		domain.BucketRave, domain.BucketPositive, domain.BucketMixed,
		domain.BucketNegative, domain.BucketPan,
	}
	stateOrder = []domain.ReviewState{
		domain.StateUnflagged, domain.StateQueued,
		domain.StateResolvedConfident, domain.StateAutoAccepted,
	}
)

func reportRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	report, err := application.BuildCorpusReport(context.Background(), s)
	if err != nil {
		return err
	}

	switch reportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "text":
		return renderReport(report)
	default:
		return fmt.Errorf("unknown format: %s (use: text, json)", reportFormat)
	}
}

func renderReport(report application.Report) error {
	ui.Info("Corpus: %d reviews, %d scored", report.Total, report.Scored)
	fmt.Fprintln(ui.Out)

	buckets := ui.Table([]string{"BUCKET", "REVIEWS"})
	for _, b := range bucketOrder {
		if n := report.ByBucket[b]; n > 0 {
			_ = buckets.Append([]string{output.BucketColor(b), fmt.Sprintf("%d", n)})
		}
	}
	if err := buckets.Render(); err != nil {
		return err
	}
	fmt.Fprintln(ui.Out)

	states := ui.Table([]string{"STATE", "REVIEWS"})
	for _, st := range stateOrder {
		if n := report.ByState[st]; n > 0 {
			_ = states.Append([]string{output.StateColor(st), fmt.Sprintf("%d", n)})
		}
	}
	return states.Render()
}
