package ws

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	defaultBufferMaxLen = 1000
	defaultBufferMaxAge = time.Hour
	bufferSweepInterval = 10 * time.Minute
)

// EventBuffer keeps recent events per organization for replay on reconnect.
type EventBuffer struct {
	mu     sync.RWMutex
	events map[string][]Event
	maxAge time.Duration
	maxLen int
	now    func() time.Time
}

// NewEventBuffer creates an EventBuffer with the given limits.
func NewEventBuffer(maxLen int, maxAge time.Duration) *EventBuffer {
	if maxLen <= 0 {
		maxLen = defaultBufferMaxLen
	}

	if maxAge <= 0 {
		maxAge = defaultBufferMaxAge
	}

	return &EventBuffer{
		events: make(map[string][]Event),
		maxAge: maxAge,
		maxLen: maxLen,
		now:    time.Now,
	}
}

// Sweep drops organizations whose newest event is older than maxAge, every
// bufferSweepInterval until ctx is cancelled.
func (eb *EventBuffer) Sweep(ctx context.Context) {
	ticker := time.NewTicker(bufferSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eb.evictStale()
		}
	}
}

func (eb *EventBuffer) evictStale() {
	cutoff := eb.now().Add(-eb.maxAge)

	eb.mu.Lock()
	defer eb.mu.Unlock()

	for org, buf := range eb.events {
		if len(buf) == 0 || buf[len(buf)-1].Time.Before(cutoff) {
			delete(eb.events, org)
		}
	}
}

// Append stores evt, evicting expired events and keeping at most maxLen.
func (eb *EventBuffer) Append(evt *Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	buf := eb.events[evt.OrgID]

	cutoff := eb.now().Add(-eb.maxAge)
	start := 0
	for start < len(buf) && buf[start].Time.Before(cutoff) {
		start++
	}
	buf = buf[start:]

	buf = append(buf, *evt)
	if len(buf) > eb.maxLen {
		buf = buf[len(buf)-eb.maxLen:]
	}

	eb.events[evt.OrgID] = buf
}

// Since returns a copy of the organization's events with ID > lastEventID.
func (eb *EventBuffer) Since(orgID string, lastEventID uint64) []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	buf := eb.events[orgID]
	i := sort.Search(len(buf), func(i int) bool { return buf[i].ID > lastEventID })
	if i >= len(buf) {
		return nil
	}

	out := make([]Event, len(buf)-i)
	copy(out, buf[i:])

	return out
}

// OldestID returns the oldest buffered event ID for an organization, or 0.
func (eb *EventBuffer) OldestID(orgID string) uint64 {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	buf := eb.events[orgID]
	if len(buf) == 0 {
		return 0
	}

	return buf[0].ID
}
