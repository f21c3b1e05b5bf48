package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"qoze/internal/config"
	"qoze/internal/logging"
)

var (
	// Global flags
	verbose   bool
	workspace string
	provider  string
	model     string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "qoze",
	Short: "qoze - terminal-resident AI agent",
	Long: `qoze is a terminal-resident AI agent.

It runs a reasoning loop against a configured LLM provider, executing
shell, filesystem, search and browser tools inside a sandboxed working
directory until the task is done.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if workspace == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to determine working directory: %w", err)
			}
			workspace = wd
		}

		var err error
		cfg, err = config.Load(workspace)
		if err != nil {
			return err
		}
		if provider != "" {
			cfg.LLM.Provider = provider
		}
		if model != "" {
			cfg.LLM.Model = model
		}

		opts := logging.Options{
			DebugMode:  cfg.Logging.DebugMode || verbose,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		}
		return logging.Initialize(workspace, opts)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Shutdown()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging under .qoze/logs")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "Override the configured LLM provider")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Override the configured model id")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
