package weather

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a request or a whole cycle failed.
type ErrorKind string

const (
	KindAuth            ErrorKind = "auth"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindHTTP            ErrorKind = "http_error"
	KindConnection      ErrorKind = "connection"
	KindTimeout         ErrorKind = "timeout"
	KindUnknown         ErrorKind = "unknown"
)

// kindPriority orders kinds when several stations failed for different reasons.
var kindPriority = []ErrorKind{
	KindAuth,
	KindInvalidResponse,
	KindHTTP,
	KindTimeout,
	KindConnection,
	KindUnknown,
}

var (
	// ErrNeedsFallback is returned by Normalize when a combined response
	// cannot be split per station.
	ErrNeedsFallback = errors.New("response not decomposable per station")

	// ErrAllStationsFailed is wrapped by the cycle failure raised when no
	// station could be fetched in the fallback pass.
	ErrAllStationsFailed = errors.New("all stations failed")
)

// PollError is a classified failure of a single request or of a whole cycle.
type PollError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int // zero unless Kind is auth or http_error
	Err        error
}

func (e *PollError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// NewPollError builds a PollError of the given kind.
func NewPollError(kind ErrorKind, message string, err error) *PollError {
	return &PollError{Kind: kind, Message: message, Err: err}
}

// KindOf returns the ErrorKind carried by err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var pe *PollError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// dominantKind picks the kind describing a set of failures: the most frequent
// one, ties broken by kindPriority.
func dominantKind(errs []error) ErrorKind {
	counts := make(map[ErrorKind]int)
	for _, err := range errs {
		counts[KindOf(err)]++
	}
	best := KindUnknown
	bestCount := 0
	for _, k := range kindPriority {
		if counts[k] > bestCount {
			best = k
			bestCount = counts[k]
		}
	}
	return best
}
