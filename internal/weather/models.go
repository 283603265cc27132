package weather

import (
	"strconv"
	"strings"
	"time"
)

// StationID is the canonical string form of a Holfuy station identifier.
type StationID string

// CanonicalStationID normalizes a raw identifier.
// Whitespace is trimmed and purely numeric ids lose their leading zeros,
// so "0101", " 101" and "101" all compare equal.
func CanonicalStationID(raw string) StationID {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return StationID(s)
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return StationID(s)
	}
	return StationID(strconv.FormatUint(n, 10))
}

func (id StationID) String() string {
	return string(id)
}

// StationSnapshot is the upstream payload for one station, as decoded from JSON.
// The engine only routes it; field semantics belong to the consumer (see Sensors).
type StationSnapshot map[string]any

// StationMap maps station ids to their latest snapshot. It may be partial:
// a missing station means "no data this cycle", not necessarily an error.
type StationMap map[StationID]StationSnapshot

// IDs returns the station ids present in the map, in no particular order.
func (m StationMap) IDs() []StationID {
	ids := make([]StationID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}

// WindUnit is the wind speed unit requested from the upstream API.
type WindUnit string

const (
	WindMetersPerSecond WindUnit = "m/s"
	WindKmPerHour       WindUnit = "km/h"
	WindMilesPerHour    WindUnit = "mph"
	WindKnots           WindUnit = "knots"
)

// TempUnit is the temperature unit requested from the upstream API.
type TempUnit string

const (
	TempCelsius    TempUnit = "C"
	TempFahrenheit TempUnit = "F"
)

// Units bundles the unit preferences sent with every request.
type Units struct {
	Wind WindUnit `json:"wind"`
	Temp TempUnit `json:"temp"`
}

// DefaultUnits matches the upstream defaults.
func DefaultUnits() Units {
	return Units{Wind: WindMetersPerSecond, Temp: TempCelsius}
}

// Query describes what one poll cycle asks the upstream for.
type Query struct {
	Stations []StationID
	APIKey   string
	Units    Units
}

// Snapshot is what the data sinks receive after a successful cycle.
type Snapshot struct {
	Stations  StationMap `json:"stations"`
	Timestamp time.Time  `json:"timestamp"` // always UTC
}
