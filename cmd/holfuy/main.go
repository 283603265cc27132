// Package main is the entry point for the holfuy CLI.
//
// Usage:
//
//	holfuy serve -c holfuy.yaml    # poll on schedule and serve the API
//	holfuy poll -c holfuy.yaml     # run one cycle and print the result
//	holfuy validate -c holfuy.yaml # validate configuration
//	holfuy version                 # show version info
//
// Every setting can also come from the environment or a .env file, so the
// config file is optional.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "holfuy",
	Short: "Holfuy weather station poller",
	Long: `holfuy polls the Holfuy live API for a group of weather stations,
normalizes the responses into one map per station and exposes the latest
readings over HTTP and, optionally, MQTT.

Quick start:
  export HOLFUY_API_KEY=...
  export HOLFUY_STATIONS=101,214
  holfuy serve`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "holfuy %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to an optional YAML config file")
	rootCmd.AddCommand(versionCmd)
}
