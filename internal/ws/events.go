// Package ws streams committed ledger events to WebSocket subscribers, one
// organization per connection.
package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Feed event types.
const (
	EventEntryAppended = "entry.appended"
	EventRootCreated   = "root.created"
	EventChainBroken   = "chain.broken"
	eventShutdown      = "shutdown"
	eventReset         = "reset"
)

// Event is the structured message sent to subscribers. ID increases by one
// per organization and is what clients echo back as last_event_id.
type Event struct {
	Type  string          `json:"type"`
	ID    uint64          `json:"id"`
	OrgID string          `json:"organization_id"`
	Data  json.RawMessage `json:"data"`
	Time  time.Time       `json:"time"`
}

// SubscribeMsg is sent by the client to request replay after a reconnect.
type SubscribeMsg struct {
	Type        string `json:"type"`
	LastEventID uint64 `json:"last_event_id"`
}

// ResetMsg tells the client its last_event_id is no longer buffered and it
// should re-read the ledger over HTTP.
type ResetMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// EventSequence tracks monotonic event IDs per organization.
type EventSequence struct {
	mu       sync.Mutex
	counters map[string]*atomic.Uint64
}

// NewEventSequence creates a new EventSequence.
func NewEventSequence() *EventSequence {
	return &EventSequence{
		counters: make(map[string]*atomic.Uint64),
	}
}

// Next returns the next event ID for an organization.
func (es *EventSequence) Next(orgID string) uint64 {
	es.mu.Lock()
	counter, ok := es.counters[orgID]
	if !ok {
		counter = &atomic.Uint64{}
		es.counters[orgID] = counter
	}
	es.mu.Unlock()

	return counter.Add(1)
}
