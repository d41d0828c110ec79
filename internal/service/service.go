// Package service provides business logic between API handlers and the
// transactional backend. Every write runs in one ledger.Run transaction, so a
// watched mutation and its ledger entry commit or roll back together.
package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/domain"
	"github.com/persistorai/ledger/internal/ledger"
	"github.com/persistorai/ledger/internal/models"
)

// Runner opens the backend transactions domain services write through.
type Runner = ledger.Runner[domain.UnitOfWork]

// Deps holds what every domain service needs.
type Deps struct {
	Ledger *ledger.Ledger
	Runner Runner
	Log    *logrus.Logger

	// Now is overridden in tests. Defaults to time.Now.
	Now func() time.Time
}

type base struct {
	ledger *ledger.Ledger
	runner Runner
	log    *logrus.Logger
	now    func() time.Time
}

func newBase(d Deps) base {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}

	if d.Now == nil {
		d.Now = time.Now
	}

	return base{ledger: d.Ledger, runner: d.Runner, log: d.Log, now: d.Now}
}

func (b *base) run(
	ctx context.Context, actor ledger.Actor, fn func(ctx context.Context, s *ledger.Session, tx domain.UnitOfWork) error,
) error {
	return ledger.Run(ctx, b.ledger, b.runner, actor, fn)
}

// timestamp returns the current time at stored precision.
func (b *base) timestamp() time.Time {
	return ledger.NormalizeTime(b.now())
}

// logExplicit appends d and marks the transaction's next watched mutation
// as already logged.
func logExplicit(ctx context.Context, s *ledger.Session, d models.Draft) error {
	if _, err := s.Append(ctx, d); err != nil {
		return err
	}

	s.MarkExplicitLog()

	return nil
}
