package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/stefanh12/holfuy/internal/logging"
	"github.com/stefanh12/holfuy/internal/weather"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one poll cycle and print the result as JSON",
	Long: `Run a single poll cycle against the configured stations and print the
normalized station map with derived readings to stdout. Logs go to stderr.

Exit codes:
  0 - at least one station was fetched
  1 - the cycle failed`,
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
}

type polledStation struct {
	ID      weather.StationID       `json:"id"`
	Name    string                  `json:"name"`
	Reading weather.Reading         `json:"reading"`
	Raw     weather.StationSnapshot `json:"raw"`
}

func runPoll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg, version)
	c := wire(cfg, logger, false)

	stations, err := c.poller.Poll(cmd.Context())
	if err != nil {
		return fmt.Errorf("poll failed (%s): %w", weather.KindOf(err), err)
	}

	out := make([]polledStation, 0, len(stations))
	for id, snap := range stations {
		out = append(out, polledStation{
			ID:      id,
			Name:    weather.DisplayName(id, snap),
			Reading: weather.Sensors(snap),
			Raw:     snap,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(pollOutput{
		Units:    cfg.Units(),
		Stations: out,
		Missing:  missing(cfg.StationIDs, stations),
	})
}

type pollOutput struct {
	Units    weather.Units       `json:"units"`
	Stations []polledStation     `json:"stations"`
	Missing  []weather.StationID `json:"missing,omitempty"`
}

func missing(want []weather.StationID, got weather.StationMap) []weather.StationID {
	var out []weather.StationID
	for _, id := range want {
		if _, ok := got[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
