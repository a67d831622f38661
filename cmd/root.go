// Package cmd wires the hub's cobra CLI, following the teacher's
// flat-package, one-file-per-command layout (cmd/root.go, cmd/serve.go,
// cmd/migrate.go).
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via
// -ldflags "-X github.com/nextlevelbuilder/tsphub/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tsphub",
	Short: "TSP Hub — tool-routing hub for Tool Server Protocol back ends",
	Long:  "tsphub aggregates multiple back-end Tool Server Protocol servers' catalogs, predicts the per-turn relevant tool subset, and routes CallTool invocations to the owning back end.",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: hub.json5 or $HUB_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(migrateCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("tsphub %s\n", Version)
		},
	}
}

// resolveConfigPath follows the teacher's flag → env → default idiom
// (cmd/root.go's resolveConfigPath).
func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("HUB_CONFIG"); v != "" {
		return v
	}
	return "hub.json5"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
