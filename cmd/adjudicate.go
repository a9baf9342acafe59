package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var adjudicateCmd = &cobra.Command{
	Use:   "adjudicate",
	Short: "Re-judge queued reviews through the escalation loop",
	Long: `Adjudicate runs the current queue snapshot through the escalation
state machine. Each queued review is re-judged with its disagreement
context; a confident judgment resolves it, and a review that exhausts
the attempt ceiling is auto-accepted with its original automated score.

Reviews left queued after a run are a normal outcome; run adjudicate
again after the next audit to give them another pass.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return adjudicateRun()
	},
}

func init() {
	rootCmd.AddCommand(adjudicateCmd)
}

func adjudicateRun() error {
	p, err := getPipeline()
	if err != nil {
		return err
	}

	ui.DryRunMsg("Adjudicating without persisting outcomes (re-run with --apply to commit)")

	summary, err := p.AdjudicateAll(context.Background(), effectiveDryRun())
	if err != nil {
		return err
	}

	ui.Success("Adjudication complete: %d resolved, %d auto-accepted, %d requeued",
		summary.Resolved, summary.AutoAccepted, summary.Requeued)
	if summary.Failed > 0 {
		ui.Warning("%d reviews failed to adjudicate (run with -v for details)", summary.Failed)
	}
	ui.VerboseLog("%d skipped (already terminal)", summary.Skipped)
	return nil
}
