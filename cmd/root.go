package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/rqc/internal/logging"
	"github.com/joescharf/rqc/internal/output"
	"github.com/joescharf/rqc/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    *slog.Logger
	dataStore store.Store

	verbose bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "rqc",
	Short: "Roast quality control - generate, review, and gate roast replies",
	Long: `rqc generates roast replies and runs them through a reviewer panel
(moderator, comedian, style) before they are posted. A moderator rejection
is a veto; otherwise two of three approvals are enough. Rejected replies are
regenerated within the user's plan budget, and every cycle ends with a reply,
falling back to a safe one when review or generation fails.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closeStore()
		os.Exit(1)
	}
	closeStore()
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (debug logging)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print results and errors")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/rqc/config.yaml)")
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

		viper.AddConfigPath(filepath.Join(home, ".config", "rqc"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("RQC")
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every known key with viper.SetDefault.
func setDefaults() {
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "rqc")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "rqc.db"))
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "auto")

	viper.SetDefault("backend.provider", "anthropic")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("gemini.model", "gemini-2.5-flash")

	viper.SetDefault("features.rqc", true)
	viper.SetDefault("features.custom_prompt", false)

	viper.SetDefault("review.temperature", 0.1)
	viper.SetDefault("review.max_tokens", 120)
	viper.SetDefault("review.model", "")
	viper.SetDefault("review.cents_per_1k_tokens", 0.2)

	viper.SetDefault("orchestrator.cycle_timeout", "60s")
	viper.SetDefault("orchestrator.fallback_timeout", "15s")
	viper.SetDefault("orchestrator.telemetry_timeout", "5s")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.Quiet = quiet

	logCfg := logging.DefaultConfig()
	if level := viper.GetString("log.level"); level != "" {
		logCfg.Level = level
	}
	if format := viper.GetString("log.format"); format != "" {
		logCfg.Format = format
	}
	if verbose {
		logCfg.Level = "debug"
	}
	logger = logging.New(logCfg)

	// Store is opened lazily, only when commands actually need it.
	// This allows config/version/decide to run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx := rootCmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

func closeStore() {
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
}
