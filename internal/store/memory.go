package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/stefanh12/holfuy/internal/weather"
)

var (
	// ErrNotFound is returned when no data is available for a station.
	ErrNotFound = errors.New("no data for station")
)

// StationEntry is the latest snapshot of one station.
type StationEntry struct {
	ID       weather.StationID       `json:"id"`
	Name     string                  `json:"name"`
	Snapshot weather.StationSnapshot `json:"snapshot"`
	Reading  weather.Reading         `json:"reading"`
}

// MemoryStore is a concurrency-safe in-memory weather.DataSink.
// It keeps only the station map of the most recent successful cycle; each
// Publish replaces the previous map entirely.
type MemoryStore struct {
	mu sync.RWMutex

	stations  weather.StationMap
	updatedAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stations: make(weather.StationMap),
	}
}

// Publish stores snap as the latest state.
func (s *MemoryStore) Publish(_ context.Context, snap weather.Snapshot) error {
	next := make(weather.StationMap, len(snap.Stations))
	for id, data := range snap.Stations {
		next[id] = data
	}

	ts := snap.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stations = next
	s.updatedAt = ts
	return nil
}

// GetLatest returns the most recent entry for a station.
func (s *MemoryStore) GetLatest(id weather.StationID) (StationEntry, error) {
	id = weather.CanonicalStationID(string(id))

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.stations[id]
	if !ok {
		return StationEntry{}, ErrNotFound
	}
	return entry(id, snap), nil
}

// All returns every stored entry ordered by station id.
func (s *MemoryStore) All() []StationEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]StationEntry, 0, len(s.stations))
	for id, snap := range s.stations {
		out = append(out, entry(id, snap))
	}
	sort.Slice(out, func(i, j int) bool {
		return lessID(out[i].ID, out[j].ID)
	})
	return out
}

// UpdatedAt returns the timestamp of the latest published snapshot, or the
// zero time when nothing was published yet.
func (s *MemoryStore) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

func entry(id weather.StationID, snap weather.StationSnapshot) StationEntry {
	return StationEntry{
		ID:       id,
		Name:     weather.DisplayName(id, snap),
		Snapshot: snap,
		Reading:  weather.Sensors(snap),
	}
}

// lessID orders numeric ids numerically and everything else lexically.
func lessID(a, b weather.StationID) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
