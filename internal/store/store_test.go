package store_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/db"
	"github.com/persistorai/ledger/internal/dbpool"
	"github.com/persistorai/ledger/internal/domain"
	"github.com/persistorai/ledger/internal/ledger"
	"github.com/persistorai/ledger/internal/models"
	"github.com/persistorai/ledger/internal/store"
)

// testEnv holds shared test infrastructure (single pool across all tests).
type testEnv struct {
	pool  *dbpool.Pool
	log   *logrus.Logger
	store *store.Store
}

var (
	sharedEnv *testEnv
	envOnce   sync.Once
	envErr    error
)

func getTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	envOnce.Do(func() {
		ctx := context.Background()

		log := logrus.New()
		log.SetLevel(logrus.ErrorLevel)

		pool, err := dbpool.NewPool(ctx, dbURL, dbpool.Options{ApplicationName: "ledger-store-test"})
		if err != nil {
			envErr = err
			return
		}

		if _, err := db.RunMigrations(ctx, pool, log, nil); err != nil {
			envErr = err
			return
		}

		sharedEnv = &testEnv{pool: pool, log: log, store: store.New(store.Base{Pool: pool, Log: log})}
	})

	if envErr != nil {
		t.Fatalf("setting up test DB: %v", envErr)
	}

	return sharedEnv
}

func newLedger(env *testEnv, opts ledger.Options) *ledger.Ledger {
	opts.Log = env.log

	return ledger.New(env.store, ledger.LedgerOnly[domain.UnitOfWork](env.store), opts)
}

func newOrg() string {
	return "org-" + uuid.NewString()
}

var actor = ledger.Actor{ID: "user-1", Role: "supervisor"}

func appendN(t *testing.T, l *ledger.Ledger, orgID string, n int) []*models.Entry {
	t.Helper()

	out := make([]*models.Entry, 0, n)
	for i := 0; i < n; i++ {
		e, err := l.Append(context.Background(), actor, models.Draft{
			OrganizationID: orgID,
			EventName:      "access.granted",
			TargetType:     "user",
			TargetID:       "user-2",
			Metadata:       map[string]any{"i": i, "scope": "jobs"},
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		out = append(out, e)
	}

	return out
}

func TestLedger_AppendAndVerify(t *testing.T) {
	env := getTestEnv(t)
	l := newLedger(env, ledger.Options{})
	orgID := newOrg()

	entries := appendN(t, l, orgID, 5)

	if entries[0].PrevHash != nil {
		t.Fatal("first entry of an organization must have no prev_hash")
	}

	for i := 1; i < len(entries); i++ {
		if entries[i].PrevHash == nil || *entries[i].PrevHash != entries[i-1].Hash {
			t.Fatalf("entry %d does not link to entry %d", i, i-1)
		}

		if entries[i].Seq <= entries[i-1].Seq {
			t.Fatalf("seq did not increase: %d then %d", entries[i-1].Seq, entries[i].Seq)
		}
	}

	res, err := l.Verify(context.Background(), orgID, nil, nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	if !res.OK || res.EntriesChecked != 5 {
		t.Fatalf("unexpected result: %+v", res)
	}

	listed, hasMore, err := l.List(context.Background(), orgID, models.ListOpts{Limit: 3, Order: models.OrderDesc})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(listed) != 3 || !hasMore || listed[0].Seq != entries[4].Seq {
		t.Fatalf("unexpected listing: %d entries, hasMore=%v", len(listed), hasMore)
	}
}

func TestLedger_ConcurrentAppendsStayLinear(t *testing.T) {
	env := getTestEnv(t)
	l := newLedger(env, ledger.Options{})
	orgID := newOrg()

	var wg sync.WaitGroup
	errs := make(chan error, 40)

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				_, err := l.Append(context.Background(), actor, models.Draft{
					OrganizationID: orgID, EventName: "access.granted", TargetType: "user",
				})
				if err != nil {
					errs <- err
				}
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("append: %v", err)
	}

	all, _, err := l.List(context.Background(), orgID, models.ListOpts{Limit: 100})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	seen := make(map[string]bool)
	for _, e := range all {
		key := "<nil>"
		if e.PrevHash != nil {
			key = *e.PrevHash
		}

		if seen[key] {
			t.Fatalf("two entries share prev_hash %s", key)
		}
		seen[key] = true
	}

	res, err := l.Verify(context.Background(), orgID, nil, nil)
	if err != nil || !res.OK || res.EntriesChecked != 40 {
		t.Fatalf("verify = %+v, %v", res, err)
	}
}

func TestRun_AutoLogsAndDedups(t *testing.T) {
	env := getTestEnv(t)
	l := newLedger(env, ledger.Options{})
	orgID := newOrg()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	job := &models.Job{ID: uuid.NewString(), OrganizationID: orgID, Title: "Trench", Status: models.JobPlanned, CreatedAt: now, UpdatedAt: now}

	// Explicit entry plus mark: the insert must not produce a second entry.
	err := ledger.Run(ctx, l, env.store, actor, func(ctx context.Context, s *ledger.Session, tx domain.UnitOfWork) error {
		if _, err := s.Append(ctx, models.Draft{
			OrganizationID: orgID, EventName: "job.created", TargetType: models.EntityJob, TargetID: job.ID,
			Metadata: map[string]any{"title": job.Title},
		}); err != nil {
			return err
		}
		s.MarkExplicitLog()

		return tx.InsertJob(ctx, job)
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// No mark: the auto-logger writes the reassignment.
	err = ledger.Run(ctx, l, env.store, actor, func(ctx context.Context, _ *ledger.Session, tx domain.UnitOfWork) error {
		j, err := tx.GetJobForUpdate(ctx, orgID, job.ID)
		if err != nil {
			return err
		}
		j.AssignedTo = "crew-7"

		return tx.UpdateJob(ctx, j)
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	entries, _, err := l.List(ctx, orgID, models.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	if entries[0].EventName != "job.created" || entries[1].EventName != "job.reassigned" {
		t.Fatalf("events = %s, %s", entries[0].EventName, entries[1].EventName)
	}

	if entries[1].Metadata["source"] != "auto" || entries[1].ActorID != actor.ID {
		t.Fatalf("auto entry = %+v", entries[1])
	}
}

func TestRun_RollbackDiscardsEntries(t *testing.T) {
	env := getTestEnv(t)
	l := newLedger(env, ledger.Options{})
	orgID := newOrg()
	ctx := context.Background()
	boom := errors.New("boom")

	err := ledger.Run(ctx, l, env.store, actor, func(ctx context.Context, _ *ledger.Session, tx domain.UnitOfWork) error {
		if err := tx.InsertJob(ctx, &models.Job{ID: uuid.NewString(), OrganizationID: orgID, Title: "x", Status: models.JobPlanned}); err != nil {
			return err
		}

		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	entries, _, err := l.List(ctx, orgID, models.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(entries) != 0 {
		t.Fatalf("rolled back transaction left %d entries", len(entries))
	}
}

func TestImmutability(t *testing.T) {
	env := getTestEnv(t)
	l := newLedger(env, ledger.Options{})
	ctx := context.Background()

	e := appendN(t, l, newOrg(), 1)[0]

	e.Metadata = map[string]any{"scope": "everything"}
	if err := env.store.UpdateEntry(ctx, e); !errors.Is(err, models.ErrImmutableRecord) {
		t.Fatalf("UpdateEntry: expected ErrImmutableRecord, got %v", err)
	}

	if err := env.store.DeleteEntry(ctx, e.ID); !errors.Is(err, models.ErrImmutableRecord) {
		t.Fatalf("DeleteEntry: expected ErrImmutableRecord, got %v", err)
	}

	statements := map[string]string{
		"update":   "UPDATE ledger_entries SET event_name = 'x' WHERE id = $1",
		"delete":   "DELETE FROM ledger_entries WHERE id = $1",
		"truncate": "TRUNCATE ledger_entries",
	}

	for name, sql := range statements {
		t.Run(name, func(t *testing.T) {
			var args []any
			if name != "truncate" {
				args = append(args, e.ID)
			}

			_, err := env.pool.Exec(ctx, sql, args...)

			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) || pgErr.Code != "LD001" {
				t.Fatalf("expected SQLSTATE LD001, got %v", err)
			}
		})
	}

	res, err := l.Verify(ctx, e.OrganizationID, nil, nil)
	if err != nil || !res.OK {
		t.Fatalf("chain changed after refused writes: %+v, %v", res, err)
	}
}

func TestBackfill(t *testing.T) {
	env := getTestEnv(t)
	l := newLedger(env, ledger.Options{})
	ctx := context.Background()
	orgID := newOrg()

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	for i, event := range []string{"job.created", "control.waived", "job.completed"} {
		_, err := env.pool.Exec(ctx, `INSERT INTO ledger_entries
			(organization_id, actor_id, event_name, target_type, target_id, metadata, created_at)
			VALUES ($1, 'legacy-user', $2, 'job', 'job-1', '{"legacy": true}', $3)`,
			orgID, event, base.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("seeding legacy row: %v", err)
		}
	}

	report, err := l.Backfill(ctx)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}

	if report.Entries < 3 {
		t.Fatalf("backfilled %d entries, want at least 3", report.Entries)
	}

	entries, _, err := l.List(ctx, orgID, models.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(entries) != 3 || entries[1].EventName != "control.waived" || entries[1].Category != models.CategoryGovernance {
		t.Fatalf("unexpected backfilled entries: %+v", entries)
	}

	res, err := l.Verify(ctx, orgID, nil, nil)
	if err != nil || !res.OK || res.EntriesChecked != 3 {
		t.Fatalf("verify after backfill = %+v, %v", res, err)
	}

	again, err := l.Backfill(ctx)
	if err != nil || again.Entries != 0 {
		t.Fatalf("second backfill = %+v, %v", again, err)
	}
}

func TestCheckpoint(t *testing.T) {
	env := getTestEnv(t)
	writer := newLedger(env, ledger.Options{})
	l := newLedger(env, ledger.Options{AnchorSettle: 200 * time.Millisecond})
	ctx := context.Background()

	appendN(t, writer, newOrg(), 3)
	time.Sleep(250 * time.Millisecond)

	root, created, err := l.Checkpoint(ctx)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	if !created || root == nil || root.EntryCount < 3 {
		t.Fatalf("unexpected checkpoint: %+v created=%v", root, created)
	}

	again, created, err := l.Checkpoint(ctx)
	if err != nil || created || again.ID != root.ID {
		t.Fatalf("idempotent checkpoint = %+v created=%v err=%v", again, created, err)
	}

	v, err := l.VerifyRoot(ctx, root.ID)
	if err != nil || !v.OK {
		t.Fatalf("verify root = %+v, %v", v, err)
	}

	roots, err := l.Roots(ctx, models.RootRange{FromSeq: root.FirstSeq, ToSeq: root.LastSeq})
	if err != nil || len(roots) == 0 {
		t.Fatalf("roots = %v, %v", roots, err)
	}

	_, err = env.pool.Exec(ctx, "UPDATE ledger_roots SET root_hash = 'x' WHERE id = $1", root.ID)

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "LD001" {
		t.Fatalf("expected roots to be immutable, got %v", err)
	}
}
