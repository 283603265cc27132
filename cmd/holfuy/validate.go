package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Resolve the configuration from the optional YAML file, .env and the
environment, validate it and print a summary. The API key is never printed.

Exit codes:
  0 - config is valid
  1 - config is invalid (details printed to stderr)`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ids := make([]string, 0, len(cfg.StationIDs))
	for _, id := range cfg.StationIDs {
		ids = append(ids, id.String())
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Stations:      %s\n", strings.Join(ids, ","))
	fmt.Fprintf(out, "  Units:         %s, %s\n", cfg.WindUnit, cfg.TempUnit)
	fmt.Fprintf(out, "  Poll interval: %s (max %s)\n", cfg.PollInterval, cfg.MaxPollInterval)
	fmt.Fprintf(out, "  Port:          %s\n", cfg.Port)
	if cfg.MQTT.Enabled() {
		fmt.Fprintf(out, "  MQTT:          %s (%s/<station>/state)\n", cfg.MQTT.Broker, cfg.MQTT.TopicPrefix)
	}
	return nil
}
