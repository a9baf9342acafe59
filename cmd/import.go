package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marbeek/stagescore/internal/application"
)

var importCmd = &cobra.Command{
	Use:   "import <reviews.yaml>",
	Short: "Import raw review records into the store",
	Long: `Import reads a YAML file of raw review records and upserts each
into the store by its (show, outlet, critic) key. Existing records keep
their score, state, and adjudication history; only the raw signals are
refreshed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return importRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func importRun(path string) error {
	records, err := application.LoadReviewRecords(path)
	if err != nil {
		return err
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	ui.DryRunMsg("Would import %d review records from %s (re-run with --apply to commit)", len(records), path)

	summary, err := application.ImportRecords(context.Background(), s, records, effectiveDryRun())
	if err != nil {
		return fmt.Errorf("import reviews: %w", err)
	}

	ui.Success("Imported %d records (%d created, %d updated)",
		summary.Created+summary.Updated, summary.Created, summary.Updated)
	return nil
}
