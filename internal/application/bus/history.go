package bus

import (
	"sync"
	"time"

	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/contracts/event"
)

// HistoryEntry is a published envelope as recorded in the audit ledger.
// Entries are never mutated after insertion.
type HistoryEntry struct {
	event.Envelope
	PublishedAt time.Time `json:"published_at"`
	Status      string    `json:"status"`
}

// HistoryQuery filters the ledger. Results preserve insertion order.
type HistoryQuery struct {
	EventType     string
	SourceService string
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

// Stats aggregates ledger entries newer than a cutoff.
type Stats struct {
	TotalEvents         int            `json:"total_events"`
	EventTypes          map[string]int `json:"event_types"`
	Services            map[string]int `json:"services"`
	ActiveSubscriptions int            `json:"active_subscriptions"`
}

// History is the bounded in-memory ledger of recently published events: an
// audit and replay aid, not a durability guarantee. Oldest entries are
// evicted first. A single writer lock guards appends; reads work on
// snapshots.
type History struct {
	mu       sync.Mutex
	capacity int
	entries  []HistoryEntry
}

func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1000
	}
	return &History{
		capacity: capacity,
		entries:  make([]HistoryEntry, 0, capacity),
	}
}

func (h *History) Append(env event.Envelope, publishedAt time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, HistoryEntry{
		Envelope:    env,
		PublishedAt: publishedAt,
		Status:      "published",
	})
	if len(h.entries) > h.capacity {
		h.entries = h.entries[len(h.entries)-h.capacity:]
	}
}

func (h *History) snapshot() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Find returns the entry for an event id, if still retained.
func (h *History) Find(eventID string) (HistoryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].EventID == eventID {
			return h.entries[i], true
		}
	}
	return HistoryEntry{}, false
}

// Query is a pure filter plus pagination over the ledger, no side effects.
func (h *History) Query(q HistoryQuery) []HistoryEntry {
	matched := make([]HistoryEntry, 0)
	for _, e := range h.snapshot() {
		if q.EventType != "" && e.EventType != q.EventType {
			continue
		}
		if q.SourceService != "" && e.SourceService != q.SourceService {
			continue
		}
		if q.From != nil && e.Timestamp.Before(*q.From) {
			continue
		}
		if q.To != nil && e.Timestamp.After(*q.To) {
			continue
		}
		matched = append(matched, e)
	}

	if q.Offset >= len(matched) {
		return []HistoryEntry{}
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched
}

// StatsSince aggregates entries published after the cutoff.
func (h *History) StatsSince(cutoff time.Time) Stats {
	st := Stats{
		EventTypes: map[string]int{},
		Services:   map[string]int{},
	}
	for _, e := range h.snapshot() {
		if e.PublishedAt.Before(cutoff) {
			continue
		}
		st.TotalEvents++
		st.EventTypes[e.EventType]++
		st.Services[e.SourceService]++
	}
	return st
}
