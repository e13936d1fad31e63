package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	noColor      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "shelfwise",
	Short: "WeRead library aggregation and reading assistant",
	Long: `shelfwise serves a WeRead reader's shelf, notes and reading statistics over
HTTP and MCP, with an AI reading assistant.

Examples:
  shelfwise serve
  shelfwise stats --format json
  shelfwise notes 3300064831
  shelfwise ask "这本书的核心观点是什么" --book 3300064831`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case formatText, formatJSON, formatYAML:
			return nil
		default:
			return fmt.Errorf("unknown --format %q (want text, json or yaml)", outputFormat)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/shelfwise/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", formatText, "output format: text, json or yaml")

	rootCmd.AddCommand(serveCmd, mcpCmd, statusCmd)
	rootCmd.AddCommand(statsCmd, shelfCmd, recentCmd, notesCmd, chaptersCmd)
	rootCmd.AddCommand(askCmd, modelsCmd, configCmd)
}
