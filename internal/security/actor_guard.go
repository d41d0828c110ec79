// Package security guards the API against clients that repeatedly present
// missing or malformed actor identities.
package security

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	ActorGuardMaxFailures = 5
	ActorGuardWindow      = 15 * time.Minute
	ActorGuardLockout     = 5 * time.Minute
	actorGuardCleanup     = 60 * time.Second
	actorGuardMaxRecords  = 10000
)

type failureRecord struct {
	failures  int
	firstFail time.Time
	lockedAt  time.Time
}

// ActorGuard tracks per-client actor header failures and locks out clients
// that exceed the failure threshold within the tracking window.
type ActorGuard struct {
	mu      sync.Mutex
	records map[string]*failureRecord
	log     *logrus.Logger
	now     func() time.Time
}

// NewActorGuard creates a guard and starts a background cleanup goroutine
// that stops when ctx is cancelled.
func NewActorGuard(ctx context.Context, log *logrus.Logger) *ActorGuard {
	g := newActorGuard(log, time.Now)
	go g.cleanupLoop(ctx)

	return g
}

func newActorGuard(log *logrus.Logger, now func() time.Time) *ActorGuard {
	return &ActorGuard{
		records: make(map[string]*failureRecord),
		log:     log,
		now:     now,
	}
}

// IsBlocked reports whether client is currently locked out.
func (g *ActorGuard) IsBlocked(client string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[client]
	if !ok || rec.lockedAt.IsZero() {
		return false
	}

	return g.now().Sub(rec.lockedAt) < ActorGuardLockout
}

// RecordFailure records a rejected actor header from client.
func (g *ActorGuard) RecordFailure(client string) {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[client]
	if !ok {
		g.records[client] = &failureRecord{failures: 1, firstFail: now}
		return
	}

	// Reset if outside the tracking window.
	if now.Sub(rec.firstFail) > ActorGuardWindow {
		rec.failures = 1
		rec.firstFail = now
		rec.lockedAt = time.Time{}

		return
	}

	rec.failures++
	if rec.failures >= ActorGuardMaxFailures && rec.lockedAt.IsZero() {
		rec.lockedAt = now
		g.log.WithField("client", client).Warn("client locked out after repeated actor header failures")
	}
}

// Reset clears failure tracking for client.
func (g *ActorGuard) Reset(client string) {
	g.mu.Lock()
	delete(g.records, client)
	g.mu.Unlock()
}

// Tracked returns the number of clients with recorded failures.
func (g *ActorGuard) Tracked() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.records)
}

func (g *ActorGuard) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(actorGuardCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sweep()
		}
	}
}

// sweep drops expired lockouts and stale windows, then caps the table size.
func (g *ActorGuard) sweep() {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	for k, rec := range g.records {
		if !rec.lockedAt.IsZero() && now.Sub(rec.lockedAt) >= ActorGuardLockout {
			delete(g.records, k)
		} else if rec.lockedAt.IsZero() && now.Sub(rec.firstFail) >= ActorGuardWindow {
			delete(g.records, k)
		}
	}

	if len(g.records) > actorGuardMaxRecords {
		g.evictOldest(len(g.records) - actorGuardMaxRecords)
	}
}

// evictOldest removes n entries with the oldest firstFail times.
// Caller must hold g.mu.
func (g *ActorGuard) evictOldest(n int) {
	type entry struct {
		key  string
		time time.Time
	}

	entries := make([]entry, 0, len(g.records))
	for k, rec := range g.records {
		entries = append(entries, entry{k, rec.firstFail})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].time.Before(entries[j].time)
	})

	for i := range n {
		delete(g.records, entries[i].key)
	}
}
