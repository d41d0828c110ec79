package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/persistorai/ledger/internal/models"
)

func TestBuildEntryFilter(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	where, args, next := buildEntryFilter("org-a", models.ListOpts{
		Severity:   models.SeverityCritical,
		TargetType: "job",
		Since:      &since,
	})

	want := "WHERE organization_id = $1 AND severity = $2 AND target_type = $3 AND created_at >= $4"
	if where != want {
		t.Fatalf("where = %q, want %q", where, want)
	}

	if len(args) != 4 || args[0] != "org-a" || args[1] != models.SeverityCritical || args[2] != "job" {
		t.Fatalf("unexpected args: %v", args)
	}

	if next != 5 {
		t.Fatalf("next arg = %d, want 5", next)
	}
}

func TestBuildEntryFilter_OrganizationOnly(t *testing.T) {
	where, args, next := buildEntryFilter("org-a", models.ListOpts{})

	if where != "WHERE organization_id = $1" || len(args) != 1 || next != 2 {
		t.Fatalf("got %q %v %d", where, args, next)
	}
}

func TestEntryOrder(t *testing.T) {
	if got := entryOrder(models.ListOpts{}); got != "ORDER BY seq ASC NULLS FIRST, id ASC" {
		t.Errorf("asc order = %q", got)
	}

	if got := entryOrder(models.ListOpts{Order: models.OrderDesc}); got != "ORDER BY seq DESC NULLS LAST, id DESC" {
		t.Errorf("desc order = %q", got)
	}
}

func TestMapPgError(t *testing.T) {
	guard := fmt.Errorf("exec: %w", &pgconn.PgError{Code: immutableSQLState, Message: "ledger entry 7 is immutable"})
	if err := mapPgError(guard); !errors.Is(err, models.ErrImmutableRecord) {
		t.Fatalf("expected ErrImmutableRecord, got %v", err)
	}

	other := &pgconn.PgError{Code: "23505"}
	if err := mapPgError(other); errors.Is(err, models.ErrImmutableRecord) || err != other {
		t.Fatalf("unrelated error changed: %v", err)
	}
}

func TestDecodeMetadata_KeepsNumbersExact(t *testing.T) {
	meta, err := decodeMetadata([]byte(`{"big":9007199254740993,"ratio":0.5}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if meta["big"] != json.Number("9007199254740993") {
		t.Fatalf("big = %#v", meta["big"])
	}

	empty, err := decodeMetadata(nil)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("empty metadata = %v, %v", empty, err)
	}
}
