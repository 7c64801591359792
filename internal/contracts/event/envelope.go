package event

import (
	"reflect"
	"time"
)

// Version is the envelope schema version stamped on every published event.
const Version = "1.0"

// Envelope is the canonical event record moved through the bus. The bus owns
// event_id and timestamp; they are assigned once at publish and never mutated
// downstream. data is opaque to the bus except for subscriber filter matching.
type Envelope struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	Data          map[string]any `json:"data"`
	SourceService string         `json:"source_service"`
	CorrelationID string         `json:"correlation_id"`
	UserID        string         `json:"user_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Version       string         `json:"version"`
}

// MatchesFilter reports whether every key in criteria equals the corresponding
// value in the envelope's data. An empty criteria matches everything. Values
// are compared as decoded JSON (numbers are float64, objects are maps).
func (e Envelope) MatchesFilter(criteria map[string]any) bool {
	for k, want := range criteria {
		got, ok := e.Data[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
