package weather

import "time"

// PollState is the process-lifetime state of one station group.
// It is owned by a single caller and mutated only inside Engine.Poll.
type PollState struct {
	ConsecutiveErrors int               `json:"consecutiveErrors"`
	Interval          time.Duration     `json:"interval"`
	StationFailures   map[StationID]int `json:"stationFailures"`
	LastErrorKind     ErrorKind         `json:"lastErrorKind,omitempty"`
	LastSuccess       time.Time         `json:"lastSuccess,omitempty"`
	LastFailure       time.Time         `json:"lastFailure,omitempty"`
}

// NewPollState returns the initial state for a station group.
func NewPollState(defaultInterval time.Duration) *PollState {
	return &PollState{
		Interval:        defaultInterval,
		StationFailures: make(map[StationID]int),
	}
}

// Clone returns a deep copy, safe to hand to readers outside the cycle.
func (s *PollState) Clone() PollState {
	cp := *s
	cp.StationFailures = make(map[StationID]int, len(s.StationFailures))
	for id, n := range s.StationFailures {
		cp.StationFailures[id] = n
	}
	return cp
}

// backoffInterval returns min(def × 2^(errors−1), max). Errors below one
// yield the default.
func backoffInterval(def, max time.Duration, consecutiveErrors int) time.Duration {
	if consecutiveErrors <= 1 || def <= 0 {
		return capInterval(def, max)
	}
	d := def
	for i := 1; i < consecutiveErrors; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	return capInterval(d, max)
}

func capInterval(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}
