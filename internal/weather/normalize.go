package weather

import (
	"fmt"

	"github.com/stefanh12/holfuy/internal/common"
)

// listAliases are the keys under which a combined response may carry a
// collection of station objects.
var listAliases = []string{"stations", "data", "measurements", "results"}

// idAliases are the keys inspected, in order, to find the station id of a
// collection item.
var idAliases = []string{"stationId", "station_id", "station", "id", "s"}

// singleStationFields mark a payload describing exactly one station.
var singleStationFields = []string{"wind", "temperature", "stationName", "dateTime", "stationId"}

// Normalize turns a decoded combined response into a StationMap.
//
// Empty input yields an empty map. An object keyed by (a subset of) the
// expected ids is re-keyed to canonical ids. A collection, either bare or
// under one of listAliases, is indexed by the id found in each item.
// Everything else, notably a single-station payload returned by an upstream
// that ignored the multi-station query, yields ErrNeedsFallback.
//
// Normalize performs no I/O and never panics.
func Normalize(raw any, expected []StationID) (StationMap, error) {
	if isEmpty(raw) {
		return StationMap{}, nil
	}

	switch v := raw.(type) {
	case map[string]any:
		if m, ok := keyedByStation(v, expected); ok {
			return m, nil
		}
		for _, alias := range listAliases {
			items, ok := v[alias].([]any)
			if !ok {
				continue
			}
			return indexItems(items)
		}
		if common.HasAnyKey(v, singleStationFields...) {
			return nil, fmt.Errorf("%w: single-station payload", ErrNeedsFallback)
		}
		return nil, fmt.Errorf("%w: unrecognized object", ErrNeedsFallback)
	case []any:
		return indexItems(v)
	default:
		return nil, fmt.Errorf("%w: unexpected %T", ErrNeedsFallback, raw)
	}
}

func isEmpty(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case string:
		return v == ""
	default:
		return false
	}
}

// keyedByStation accepts objects whose keys all name expected stations and
// whose values are all objects.
func keyedByStation(obj map[string]any, expected []StationID) (StationMap, bool) {
	want := make(map[StationID]struct{}, len(expected))
	for _, id := range expected {
		want[CanonicalStationID(string(id))] = struct{}{}
	}

	out := make(StationMap, len(obj))
	for k, v := range obj {
		id := CanonicalStationID(k)
		if _, ok := want[id]; !ok {
			return nil, false
		}
		snap, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		out[id] = StationSnapshot(snap)
	}
	return out, true
}

// indexItems builds a StationMap from a list of station objects, skipping
// items without a usable id. A non-empty list with no usable item at all
// cannot be decomposed.
func indexItems(items []any) (StationMap, error) {
	out := make(StationMap, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		raw, ok := common.FirstScalar(obj, idAliases...)
		if !ok {
			continue
		}
		id := CanonicalStationID(raw)
		if id == "" {
			continue
		}
		out[id] = StationSnapshot(obj)
	}
	if len(out) == 0 && len(items) > 0 {
		return nil, fmt.Errorf("%w: no station ids in collection", ErrNeedsFallback)
	}
	return out, nil
}
