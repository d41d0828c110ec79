package ledger

import "github.com/persistorai/ledger/internal/models"

// Publisher receives ledger events after they are durable. Implementations
// must not block: calls happen on the request path.
type Publisher interface {
	// EntriesCommitted is called once per committed transaction with the
	// entries it wrote, in seq order.
	EntriesCommitted(entries []*models.Entry)
	RootCreated(root *models.Root)
	ChainBroken(res *models.VerificationResult)
}

type noopPublisher struct{}

func (noopPublisher) EntriesCommitted([]*models.Entry) {}
func (noopPublisher) RootCreated(*models.Root) {}
func (noopPublisher) ChainBroken(*models.VerificationResult) {}

// checked publishes res when verification found a break.
func (l *Ledger) checked(res *models.VerificationResult) *models.VerificationResult {
	if res != nil && !res.OK {
		l.pub.ChainBroken(res)
	}

	return res
}
