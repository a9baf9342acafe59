package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marbeek/stagescore/internal/audit"
	"github.com/marbeek/stagescore/internal/output"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit the corpus for signal disagreement",
	Long: `Audit compares every review's ensemble score against its explicit
critic rating, flags statistical outliers and duplicate excerpts, and
queues Tier C reviews for adjudication.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return auditRun()
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

func auditRun() error {
	p, err := getPipeline()
	if err != nil {
		return err
	}

	ui.DryRunMsg("Auditing without queueing reviews or writing the snapshot (re-run with --apply to commit)")

	summary, findings, err := p.AuditAll(context.Background(), effectiveDryRun())
	if err != nil {
		return err
	}

	ui.Info("Corpus baseline: %d paired reviews, mean diff %.1f, stddev %.1f",
		summary.Stats.Count, summary.Stats.Mean, summary.Stats.StdDev)
	ui.Success("Audit complete: %d Tier A, %d Tier B, %d Tier C (%d queued)",
		summary.TierA, summary.TierB, summary.TierC, summary.Queued)

	flagged := flaggedFindings(findings)
	if len(flagged) == 0 {
		return nil
	}

	table := ui.Table([]string{"REVIEW", "TIER", "DIFF", "FLAGS"})
	for _, f := range flagged {
		diff := "-"
		if f.Diff != nil {
			diff = fmt.Sprintf("%+.0f", *f.Diff)
		}
		flags := make([]string, 0, len(f.Flags))
		for _, flag := range f.Flags {
			flags = append(flags, string(flag))
		}
		_ = table.Append([]string{f.ReviewID, output.TierColor(string(f.Tier)), diff, strings.Join(flags, ", ")})
	}
	return table.Render()
}

// flaggedFindings filters out clean Tier A results so the table only
// shows reviews worth a look.
func flaggedFindings(findings []audit.Finding) []audit.Finding {
	var flagged []audit.Finding
	for _, f := range findings {
		if len(f.Flags) > 0 {
			flagged = append(flagged, f)
		}
	}
	return flagged
}
