// Package cmd implements the stagescore CLI.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marbeek/stagescore/infrastructure/store"
	"github.com/marbeek/stagescore/internal/output"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui          *output.UI
	reviewStore *store.SQLiteStore

	verbose bool
	dryRun  bool
	apply   bool
)

// effectiveDryRun reports whether mutating commands should suppress
// persistence. Committing requires an explicit --apply; --dry-run
// overrides it.
func effectiveDryRun() bool {
	return dryRun || !apply
}

var rootCmd = &cobra.Command{
	Use:   "stagescore",
	Short: "Critical-reception scoring for theater reviews",
	Long: `stagescore scores theater reviews on a 0-100 critical-reception
scale. It normalizes explicit critic ratings, runs an ensemble of LLM
oracles to score review excerpts, audits the corpus for disagreement
between the two signals, and adjudicates flagged reviews through a
bounded escalation loop.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().BoolVar(&apply, "apply", false, "Persist results (without it mutating commands run dry)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/stagescore/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "stagescore")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("STAGESCORE")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "stagescore")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "stagescore.db"))
	viper.SetDefault("queue_path", filepath.Join(defaultConfigDir, "queue.yaml"))
	viper.SetDefault("run_config", filepath.Join(defaultConfigDir, "run.yaml"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = effectiveDryRun()

	// The store opens lazily so config and version commands run
	// without a database.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (*store.SQLiteStore, error) {
	if reviewStore != nil {
		return reviewStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	reviewStore = s
	return reviewStore, nil
}
