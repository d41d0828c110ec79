package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/persistorai/ledger/internal/metrics"
	"github.com/persistorai/ledger/internal/models"
)

// Store is the read side of a ledger backend plus its elevated transactions.
type Store interface {
	ChainReader
	RootStore

	// ListEntries returns one page of an organization's entries and whether
	// more exist.
	ListEntries(ctx context.Context, orgID string, opts models.ListOpts) ([]models.Entry, bool, error)

	WithinBackfillTx(ctx context.Context, fn func(ctx context.Context, tx BackfillTx) error) error
}

// ResultCache holds recent verification results for the integrity indicator.
// A miss returns nil, nil. An organization's result is invalidated whenever
// new entries for it commit.
type ResultCache interface {
	Get(ctx context.Context, orgID string) (*models.VerificationResult, error)
	Set(ctx context.Context, res *models.VerificationResult) error
	Invalidate(ctx context.Context, orgID string) error
}

// Options configures a Ledger. Zero values select defaults.
type Options struct {
	Log          *logrus.Logger
	Rules        *Registry
	Cache        ResultCache
	Publisher    Publisher
	AnchorSettle time.Duration
	// WriteTimeout bounds every write transaction started by Run. It is kept
	// below AnchorSettle so a checkpoint never covers a seq still held open.
	WriteTimeout time.Duration
	PageSize     int
	Now          func() time.Time
}

// Ledger is the entry point for writing, reading, verifying and anchoring.
type Ledger struct {
	store    Store
	runner   Runner[Tx]
	writer   *Writer
	rules    *Registry
	verifier *Verifier
	anchorer *Anchorer
	cache    ResultCache
	pub      Publisher
	log      *logrus.Logger
	group    singleflight.Group

	writeTimeout time.Duration
}

// New creates a Ledger over store. runner opens the transactions used by
// Append; domain services pass their own runner to Run.
func New(store Store, runner Runner[Tx], opts Options) *Ledger {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	if opts.Rules == nil {
		opts.Rules = DefaultRegistry()
	}

	if opts.Publisher == nil {
		opts.Publisher = noopPublisher{}
	}

	settle := opts.AnchorSettle
	if settle <= 0 {
		settle = DefaultAnchorSettle
	}

	if opts.WriteTimeout <= 0 || opts.WriteTimeout >= settle {
		opts.WriteTimeout = settle / 2
	}

	return &Ledger{
		store:    store,
		runner:   runner,
		writer:   NewWriter(opts.Log, opts.Now),
		rules:    opts.Rules,
		verifier: NewVerifier(store, opts.PageSize, opts.Log),
		anchorer: NewAnchorer(store, opts.AnchorSettle, opts.Log, opts.Now),
		cache:    opts.Cache,
		pub:      opts.Publisher,
		log:      opts.Log,

		writeTimeout: opts.WriteTimeout,
	}
}

// Append writes one explicit entry in its own transaction. It serves callers
// that log facts without a watched mutation, such as access changes.
func (l *Ledger) Append(ctx context.Context, actor Actor, d models.Draft) (*models.Entry, error) {
	var entry *models.Entry

	err := Run(ctx, l, l.runner, actor, func(ctx context.Context, s *Session, _ Tx) error {
		e, err := s.Append(ctx, d)
		if err != nil {
			return err
		}

		entry = e

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// List returns a page of an organization's entries.
func (l *Ledger) List(ctx context.Context, orgID string, opts models.ListOpts) ([]models.Entry, bool, error) {
	if orgID == "" {
		return nil, false, models.ErrMissingOrganization
	}

	return l.store.ListEntries(ctx, orgID, opts)
}

// Verify walks the organization's chain over [fromSeq, toSeq].
func (l *Ledger) Verify(ctx context.Context, orgID string, fromSeq, toSeq *int64) (*models.VerificationResult, error) {
	res, err := l.verifier.Verify(ctx, orgID, fromSeq, toSeq)
	if err != nil {
		return nil, err
	}

	return l.checked(res), nil
}

// IntegrityStatus returns a full-chain verification result, served from the
// cache when a recent one exists. Concurrent misses for one organization
// share a single walk.
func (l *Ledger) IntegrityStatus(ctx context.Context, orgID string) (*models.VerificationResult, error) {
	if orgID == "" {
		return nil, models.ErrMissingOrganization
	}

	if l.cache != nil {
		res, err := l.cache.Get(ctx, orgID)
		switch {
		case err != nil:
			metrics.IntegrityCacheLookups.WithLabelValues("error").Inc()
			l.log.WithError(err).WithField("organization_id", orgID).Warn("ledger.integrity_cache_get")
		case res != nil:
			metrics.IntegrityCacheLookups.WithLabelValues("hit").Inc()
			return res, nil
		default:
			metrics.IntegrityCacheLookups.WithLabelValues("miss").Inc()
		}
	}

	v, err, _ := l.group.Do(orgID, func() (any, error) {
		res, err := l.verifier.Verify(ctx, orgID, nil, nil)
		if err != nil {
			return nil, err
		}

		l.checked(res)

		if l.cache != nil {
			if err := l.cache.Set(ctx, res); err != nil {
				l.log.WithError(err).WithField("organization_id", orgID).Warn("ledger.integrity_cache_set")
			}
		}

		return res, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*models.VerificationResult), nil //nolint:forcetypeassert // set above.
}

// invalidate drops cached integrity results for the organizations entries
// were committed to. Failures are logged; the entry TTL bounds staleness.
func (l *Ledger) invalidate(ctx context.Context, entries []*models.Entry) {
	if l.cache == nil {
		return
	}

	seen := make(map[string]bool, 1)
	for _, e := range entries {
		if seen[e.OrganizationID] {
			continue
		}
		seen[e.OrganizationID] = true

		if err := l.cache.Invalidate(ctx, e.OrganizationID); err != nil {
			l.log.WithError(err).WithField("organization_id", e.OrganizationID).Warn("ledger.integrity_cache_invalidate")
		}
	}
}

// Checkpoint anchors every settled entry since the latest root.
func (l *Ledger) Checkpoint(ctx context.Context) (*models.Root, bool, error) {
	root, created, err := l.anchorer.Checkpoint(ctx)
	if err != nil {
		return nil, false, err
	}

	if created {
		l.pub.RootCreated(root)
	}

	return root, created, nil
}

// Roots lists roots overlapping rng.
func (l *Ledger) Roots(ctx context.Context, rng models.RootRange) ([]models.Root, error) {
	return l.anchorer.Roots(ctx, rng)
}

// VerifyRoot recomputes a stored root.
func (l *Ledger) VerifyRoot(ctx context.Context, id int64) (*RootVerification, error) {
	return l.anchorer.VerifyRoot(ctx, id)
}

// Backfill assigns seq, prev_hash and hash to legacy rows written before
// chaining existed. It is the only path that modifies persisted entries.
func (l *Ledger) Backfill(ctx context.Context) (*BackfillReport, error) {
	var report *BackfillReport

	err := l.store.WithinBackfillTx(ctx, func(ctx context.Context, tx BackfillTx) error {
		r, err := l.backfill(ctx, tx)
		if err != nil {
			return err
		}

		report = r

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("backfill: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"entries":       report.Entries,
		"organizations": report.Organizations,
		"last_seq":      report.LastSeq,
	}).Info("ledger.backfill")

	return report, nil
}
