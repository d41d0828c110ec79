package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/persistorai/ledger/internal/metrics"
	"github.com/persistorai/ledger/internal/models"
)

var errSessionClosed = errors.New("ledger session used outside its transaction")

// Actor identifies who performed the action being logged.
type Actor struct {
	ID   string
	Role string
}

// Observer receives every watched mutation a backend performs. Backends call
// Observe synchronously, inside the transaction, right after the statement
// that changed the row.
type Observer interface {
	Observe(ctx context.Context, m models.Mutation) error
}

// Runner opens backend transactions. fn's tx is valid only for the duration
// of fn; returning an error rolls everything back, entries included.
type Runner[T Tx] interface {
	WithinTx(ctx context.Context, obs Observer, fn func(ctx context.Context, tx T) error) error
}

// Session carries the transaction-scoped write state: the acting identity,
// the dedup flag, and the entries written so far. A Session belongs to one
// transaction and is not safe for concurrent use.
type Session struct {
	ledger   *Ledger
	tx       Tx
	actor    Actor
	explicit bool
	entries  []*models.Entry
}

// Actor returns the identity entries in this session are attributed to.
func (s *Session) Actor() Actor {
	return s.actor
}

// MarkExplicitLog tells the auto-logger that the next watched mutation in
// this transaction is logged explicitly and needs no fallback entry.
func (s *Session) MarkExplicitLog() {
	s.explicit = true
}

// Append writes an explicit entry. Actor fields left empty on the draft are
// filled from the session.
func (s *Session) Append(ctx context.Context, d models.Draft) (*models.Entry, error) {
	return s.append(ctx, d, metrics.PathExplicit)
}

func (s *Session) append(ctx context.Context, d models.Draft, path string) (*models.Entry, error) {
	if s.tx == nil {
		return nil, errSessionClosed
	}

	if d.ActorID == "" {
		d.ActorID = s.actor.ID
	}

	if d.ActorRole == "" {
		d.ActorRole = s.actor.Role
	}

	e, err := s.ledger.writer.Append(ctx, s.tx, d, path)
	if err != nil {
		return nil, err
	}

	s.entries = append(s.entries, e)

	return e, nil
}

// Observe implements Observer. A pending explicit mark is consumed by the
// first watched mutation; otherwise the auto-logger writes the fallback entry.
func (s *Session) Observe(ctx context.Context, m models.Mutation) error {
	if !s.ledger.rules.Watches(m.EntityType) {
		return nil
	}

	if s.explicit {
		s.explicit = false
		metrics.DuplicatesSuppressed.Inc()

		return nil
	}

	d, ok := s.ledger.rules.Fallback(&m)
	if !ok {
		return nil
	}

	if _, err := s.append(ctx, d, metrics.PathAuto); err != nil {
		return fmt.Errorf("auto-logging %s %s: %w", m.EntityType, m.Op, err)
	}

	return nil
}

// Entries returns the entries written in this session, in write order.
func (s *Session) Entries() []*models.Entry {
	return s.entries
}

// Run executes fn in one backend transaction with a fresh Session observing
// it. The business mutation and every entry it produced commit or roll back
// together. Committed entries are handed to the ledger's Publisher. The
// transaction is cancelled after the ledger's write timeout.
func Run[T Tx](ctx context.Context, l *Ledger, r Runner[T], actor Actor, fn func(ctx context.Context, s *Session, tx T) error) error {
	ctx, cancel := context.WithTimeout(ctx, l.writeTimeout)
	defer cancel()

	s := &Session{ledger: l, actor: actor}

	err := r.WithinTx(ctx, s, func(ctx context.Context, tx T) error {
		s.tx = tx
		defer func() { s.tx = nil }()

		return fn(ctx, s, tx)
	})
	if err != nil {
		return err
	}

	if len(s.entries) > 0 {
		l.invalidate(ctx, s.entries)
		l.pub.EntriesCommitted(s.entries)
	}

	return nil
}

type txOnly[T Tx] struct {
	r Runner[T]
}

func (a txOnly[T]) WithinTx(ctx context.Context, obs Observer, fn func(ctx context.Context, tx Tx) error) error {
	return a.r.WithinTx(ctx, obs, func(ctx context.Context, tx T) error {
		return fn(ctx, tx)
	})
}

// LedgerOnly narrows a backend runner to the plain ledger transaction.
func LedgerOnly[T Tx](r Runner[T]) Runner[Tx] {
	return txOnly[T]{r: r}
}
