package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Mosaic CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mosaic",
		Short: "Mosaic - A plugin-driven image viewer host",
		Long: `Mosaic is a plugin-driven image viewer. The host process owns the
plugin registry and the event bus; gallery features ship as plugins
loaded from per-plugin manifests.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "mosaic.yaml", "config file path")

	// Add subcommands
	cmd.AddCommand(NewHostCmd())
	cmd.AddCommand(NewPluginsCmd())

	return cmd
}
