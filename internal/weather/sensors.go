package weather

import (
	"fmt"

	"github.com/stefanh12/holfuy/internal/common"
)

// SensorKey names one derived value of a station snapshot.
type SensorKey string

const (
	SensorWindSpeed     SensorKey = "wind_speed"
	SensorWindGust      SensorKey = "wind_gust"
	SensorWindMin       SensorKey = "wind_min"
	SensorWindDirection SensorKey = "wind_direction"
	SensorTemperature   SensorKey = "temperature"
)

// SensorInfo describes a sensor for presentation adapters.
type SensorInfo struct {
	Key  SensorKey `json:"key"`
	Name string    `json:"name"`
	Unit string    `json:"unit"`
	Icon string    `json:"icon"`
}

// SensorKeys lists every sensor in display order.
var SensorKeys = []SensorKey{
	SensorWindSpeed,
	SensorWindGust,
	SensorWindMin,
	SensorWindDirection,
	SensorTemperature,
}

var sensorNames = map[SensorKey]string{
	SensorWindSpeed:     "Wind Speed",
	SensorWindGust:      "Wind Gust",
	SensorWindMin:       "Wind Min",
	SensorWindDirection: "Wind Direction",
	SensorTemperature:   "Temperature",
}

// Catalogue returns the sensor descriptions for the given units.
func Catalogue(u Units) []SensorInfo {
	out := make([]SensorInfo, 0, len(SensorKeys))
	for _, k := range SensorKeys {
		info, _ := Describe(k, u)
		out = append(out, info)
	}
	return out
}

// Describe returns the description of one sensor.
func Describe(k SensorKey, u Units) (SensorInfo, bool) {
	name, ok := sensorNames[k]
	if !ok {
		return SensorInfo{}, false
	}
	info := SensorInfo{Key: k, Name: name}
	switch k {
	case SensorTemperature:
		info.Unit = "°" + string(u.Temp)
		info.Icon = "mdi:thermometer"
	case SensorWindDirection:
		info.Unit = "°"
		info.Icon = "mdi:compass"
	default:
		info.Unit = string(u.Wind)
		info.Icon = "mdi:weather-windy"
	}
	return info, true
}

// Reading holds the values derived from a station snapshot.
// A nil pointer means the value was absent or not numeric.
type Reading struct {
	WindSpeed     *float64 `json:"wind_speed"`
	WindGust      *float64 `json:"wind_gust"`
	WindMin       *float64 `json:"wind_min"`
	WindDirection *float64 `json:"wind_direction"`
	Temperature   *float64 `json:"temperature"`
	StationName   string   `json:"station_name,omitempty"`
	LastUpdate    string   `json:"last_update,omitempty"`
}

// Sensors extracts a Reading from a snapshot. It tolerates missing fields and
// unexpected types; a nil snapshot yields an empty Reading.
func Sensors(snap StationSnapshot) Reading {
	var r Reading
	if snap == nil {
		return r
	}

	if wind, ok := snap["wind"].(map[string]any); ok {
		r.WindSpeed = number(wind["speed"])
		r.WindGust = number(wind["gust"])
		r.WindMin = number(wind["min"])
		r.WindDirection = number(wind["direction"])
	}
	r.Temperature = number(snap["temperature"])

	if s, ok := snap["stationName"].(string); ok {
		r.StationName = s
	}
	if s, ok := common.ScalarString(snap["dateTime"]); ok {
		r.LastUpdate = s
	}
	return r
}

// Value returns the value of one sensor.
func (r Reading) Value(k SensorKey) *float64 {
	switch k {
	case SensorWindSpeed:
		return r.WindSpeed
	case SensorWindGust:
		return r.WindGust
	case SensorWindMin:
		return r.WindMin
	case SensorWindDirection:
		return r.WindDirection
	case SensorTemperature:
		return r.Temperature
	default:
		return nil
	}
}

// DisplayName returns the station name carried by the snapshot, or
// "Station <id>" when there is none.
func DisplayName(id StationID, snap StationSnapshot) string {
	if name := Sensors(snap).StationName; name != "" {
		return name
	}
	return fmt.Sprintf("Station %s", id)
}

func number(v any) *float64 {
	f, ok := common.Float(v)
	if !ok {
		return nil
	}
	return &f
}
