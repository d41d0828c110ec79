package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/metrics"
)

// Hub channel buffer sizes.
const (
	broadcastBuffer = 256
	registerBuffer  = 64
)

// maxEventPayload caps the data of a single event.
const maxEventPayload = 4096

// drainTimeout is how long the hub waits for clients to flush after shutdown.
const drainTimeout = 3 * time.Second

// Limits caps concurrent subscribers. Zero values select defaults.
type Limits struct {
	MaxClients int
	MaxPerOrg  int
}

// broadcast is handed to the Run goroutine. An empty orgID fans out to every
// organization that has subscribers.
type broadcast struct {
	orgID string
	typ   string
	data  json.RawMessage
	at    time.Time
}

// Hub fans ledger events out to subscribers. All client map mutations happen
// in the Run goroutine.
type Hub struct {
	clients      map[*Client]bool
	orgCount     map[string]int
	register     chan *Client
	unregister   chan *Client
	broadcast    chan broadcast
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
	count        atomic.Int64
	log          *logrus.Logger
	seq          *EventSequence
	buffer       *EventBuffer
	limits       Limits
}

// NewHub creates a new Hub.
func NewHub(log *logrus.Logger, limits Limits) *Hub {
	if limits.MaxClients <= 0 {
		limits.MaxClients = 1000
	}

	if limits.MaxPerOrg <= 0 {
		limits.MaxPerOrg = 50
	}

	return &Hub{
		clients:    make(map[*Client]bool),
		orgCount:   make(map[string]int),
		register:   make(chan *Client, registerBuffer),
		unregister: make(chan *Client, registerBuffer),
		broadcast:  make(chan broadcast, broadcastBuffer),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		log:        log,
		seq:        NewEventSequence(),
		buffer:     NewEventBuffer(defaultBufferMaxLen, defaultBufferMaxAge),
		limits:     limits,
	}
}

// Run is the hub event loop. It exits, closing every client, when Shutdown is
// called or ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	go h.buffer.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			h.drainClients()
			return
		case <-h.shutdown:
			h.drainClients()
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case b := <-h.broadcast:
			h.deliver(b)
		}
	}
}

func (h *Hub) add(c *Client) {
	if len(h.clients) >= h.limits.MaxClients {
		h.log.Warn("feed connection limit reached, dropping client")
		c.closeSend()
		return
	}

	if h.orgCount[c.OrgID] >= h.limits.MaxPerOrg {
		h.log.WithField("organization_id", c.OrgID).Warn("per-organization feed limit reached, dropping client")
		c.closeSend()
		return
	}

	h.clients[c] = true
	h.orgCount[c.OrgID]++
	h.updateCount()
	h.log.WithFields(logrus.Fields{"organization_id": c.OrgID, "actor_id": c.ActorID, "total": len(h.clients)}).Info("feed client registered")
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	delete(h.clients, c)
	c.closeSend()

	h.orgCount[c.OrgID]--
	if h.orgCount[c.OrgID] <= 0 {
		delete(h.orgCount, c.OrgID)
	}

	h.updateCount()
	h.log.WithField("total", len(h.clients)).Info("feed client unregistered")
}

func (h *Hub) updateCount() {
	h.count.Store(int64(len(h.clients)))
	metrics.FeedConnections.Set(float64(len(h.clients)))
}

// deliver stamps b for each target organization, buffers it for replay and
// sends it to that organization's subscribers. Slow clients are dropped.
func (h *Hub) deliver(b broadcast) {
	targets := []string{b.orgID}
	if b.orgID == "" {
		targets = make([]string, 0, len(h.orgCount))
		for org := range h.orgCount {
			targets = append(targets, org)
		}
	}

	for _, org := range targets {
		evt := Event{Type: b.typ, ID: h.seq.Next(org), OrgID: org, Data: b.data, Time: b.at}

		msg, err := json.Marshal(evt)
		if err != nil {
			h.log.WithError(err).Error("marshaling feed event")
			continue
		}

		h.buffer.Append(&evt)

		for c := range h.clients {
			if c.OrgID != org {
				continue
			}

			if !c.trySend(msg) {
				metrics.FeedEventsDropped.Inc()
				h.remove(c)
			}
		}
	}
}

// BroadcastEvent queues an event for orgID, or for every subscribed
// organization when orgID is empty. It never blocks; oversized payloads and
// events arriving while the queue is full are dropped.
func (h *Hub) BroadcastEvent(eventType, orgID string, data json.RawMessage) {
	if len(data) > maxEventPayload {
		h.log.WithFields(logrus.Fields{
			"organization_id": orgID,
			"type":            eventType,
			"payload_size":    len(data),
		}).Warn("dropping oversized feed event")
		metrics.FeedEventsDropped.Inc()
		return
	}

	select {
	case h.broadcast <- broadcast{orgID: orgID, typ: eventType, data: data, at: time.Now().UTC()}:
	default:
		metrics.FeedEventsDropped.Inc()
		h.log.WithField("type", eventType).Warn("feed broadcast queue full, dropping event")
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	default:
		h.log.Warn("feed register queue full, dropping client")
		c.closeSend()
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Shutdown notifies every client and waits for the Run loop to drain them.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() { close(h.shutdown) })
	<-h.done
}

// drainClients sends a shutdown frame to every client, waits for their send
// buffers to empty or drainTimeout to pass, then closes them.
func (h *Hub) drainClients() {
	if len(h.clients) == 0 {
		return
	}

	h.log.WithField("clients", len(h.clients)).Info("draining feed clients")

	msg := []byte(`{"type":"` + eventShutdown + `","reason":"server shutting down"}`)
	for c := range h.clients {
		c.trySend(msg)
	}

	deadline := time.After(drainTimeout)
	ticker := time.NewTicker(50 * time.Millisecond) //nolint:mnd // poll interval
	defer ticker.Stop()

wait:
	for h.pending() {
		select {
		case <-deadline:
			h.log.Warn("feed drain timeout, closing remaining clients")
			break wait
		case <-ticker.C:
		}
	}

	for c := range h.clients {
		c.closeSend()
		delete(h.clients, c)
	}

	h.orgCount = make(map[string]int)
	h.updateCount()
}

func (h *Hub) pending() bool {
	for c := range h.clients {
		if len(c.send) > 0 {
			return true
		}
	}

	return false
}

// ReplayEvents queues the client's buffered events newer than lastEventID.
// It returns false when lastEventID is older than the buffer reaches.
func (h *Hub) ReplayEvents(c *Client, lastEventID uint64) bool {
	oldest := h.buffer.OldestID(c.OrgID)
	if oldest > 0 && lastEventID > 0 && lastEventID < oldest-1 {
		return false
	}

	for _, evt := range h.buffer.Since(c.OrgID, lastEventID) {
		msg, err := json.Marshal(evt)
		if err != nil {
			continue
		}

		if !c.trySend(msg) {
			break
		}
	}

	return true
}
