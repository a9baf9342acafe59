package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score unscored reviews with the oracle ensemble",
	Long: `Score runs ensemble consensus over every review that has excerpt
text and no persisted score. Each review fans out to the configured
oracle panel concurrently; the majority bucket wins and the consensus
score is persisted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return scoreRun()
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}

func scoreRun() error {
	p, err := getPipeline()
	if err != nil {
		return err
	}

	ui.DryRunMsg("Scoring without persisting results (re-run with --apply to commit)")

	summary, err := p.ScoreAll(context.Background(), effectiveDryRun())
	if err != nil {
		return err
	}

	ui.Success("Scored %d reviews", summary.Scored)
	if summary.Rejected > 0 {
		ui.Warning("%d reviews rejected by the panel (not review text)", summary.Rejected)
	}
	if summary.Failed > 0 {
		ui.Warning("%d reviews failed to score (run with -v for details)", summary.Failed)
	}
	ui.VerboseLog("%d already scored, %d without excerpt text", summary.Skipped, summary.NoText)
	return nil
}
