package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/models"
)

// Checkpointer creates ledger roots.
type Checkpointer interface {
	Checkpoint(ctx context.Context) (*models.Root, bool, error)
}

// AnchorWorker checkpoints the ledger on a fixed interval and on demand from
// a single goroutine, so checkpoints from one process never overlap.
type AnchorWorker struct {
	ledger   Checkpointer
	log      *logrus.Logger
	interval time.Duration
	trigger  chan struct{}
}

// NewAnchorWorker creates an AnchorWorker. A non-positive interval defaults
// to five minutes.
func NewAnchorWorker(ledger Checkpointer, log *logrus.Logger, interval time.Duration) *AnchorWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &AnchorWorker{
		ledger:   ledger,
		log:      log,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests an immediate checkpoint. Non-blocking; a request already
// pending absorbs this one.
func (w *AnchorWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run checkpoints until the context is cancelled.
func (w *AnchorWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.process(ctx)
		case <-w.trigger:
			w.process(ctx)
		}
	}
}

func (w *AnchorWorker) process(ctx context.Context) {
	root, created, err := w.ledger.Checkpoint(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.WithError(err).Warn("anchor checkpoint failed")
		}

		return
	}

	if !created {
		w.log.Debug("anchor checkpoint: nothing new to anchor")
		return
	}

	w.log.WithFields(logrus.Fields{
		"root_id":   root.ID,
		"first_seq": root.FirstSeq,
		"last_seq":  root.LastSeq,
	}).Debug("anchor checkpoint")
}
