package ws

import (
	"encoding/json"
	"time"

	"github.com/persistorai/ledger/internal/ledger"
	"github.com/persistorai/ledger/internal/models"
)

var _ ledger.Publisher = (*Hub)(nil)

// entrySummary is the feed payload for an appended entry. Metadata is left
// out; subscribers fetch the full entry over HTTP when they need it.
type entrySummary struct {
	Seq        int64     `json:"seq"`
	EventName  string    `json:"event_name"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id,omitempty"`
	Category   string    `json:"category"`
	Severity   string    `json:"severity"`
	Outcome    string    `json:"outcome"`
	ActorID    string    `json:"actor_id,omitempty"`
	Hash       string    `json:"hash"`
	CreatedAt  time.Time `json:"created_at"`
}

// EntriesCommitted implements ledger.Publisher.
func (h *Hub) EntriesCommitted(entries []*models.Entry) {
	for _, e := range entries {
		h.publish(EventEntryAppended, e.OrganizationID, entrySummary{
			Seq:        e.Seq,
			EventName:  e.EventName,
			TargetType: e.TargetType,
			TargetID:   e.TargetID,
			Category:   e.Category,
			Severity:   e.Severity,
			Outcome:    e.Outcome,
			ActorID:    e.ActorID,
			Hash:       e.Hash,
			CreatedAt:  e.CreatedAt,
		})
	}
}

// RootCreated implements ledger.Publisher. Roots span organizations, so the
// event goes to every subscriber.
func (h *Hub) RootCreated(root *models.Root) {
	h.publish(EventRootCreated, "", root)
}

// ChainBroken implements ledger.Publisher.
func (h *Hub) ChainBroken(res *models.VerificationResult) {
	h.publish(EventChainBroken, res.OrganizationID, res)
}

func (h *Hub) publish(eventType, orgID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.WithError(err).WithField("type", eventType).Error("marshaling feed payload")
		return
	}

	h.BroadcastEvent(eventType, orgID, data)
}
