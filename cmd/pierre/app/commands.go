// Package app provides the entry point for the pierre command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "pierre",
	DisableAutoGenTag: true,
	Short:             "Pierre is a multi-tenant MCP gateway for fitness data",
	Long: `Pierre exposes Strava and Fitbit data to AI assistants over the Model
Context Protocol. Users register locally, link provider accounts through an
OAuth2 flow, and issue MCP tool calls that are fanned out to the provider
APIs under their stored credentials.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// NewRootCmd creates the root command for the pierre CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Warnf("Failed to bind debug flag: %v", err)
	}
	rootCmd.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		// Re-initialize so the debug flag takes effect.
		logger.Initialize()
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
