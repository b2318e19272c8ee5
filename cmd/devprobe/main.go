package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/devprobe/internal/config"
	"github.com/hazz-dev/devprobe/internal/version"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "devprobe",
		Short:        "Check whether local development services are up",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")

	root.AddCommand(versionCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(mcpCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(presetsCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(initCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
