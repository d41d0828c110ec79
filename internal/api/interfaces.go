package api

import (
	"context"

	"github.com/persistorai/ledger/internal/domain"
)

// Services consumed by the handlers.
type (
	LedgerService   = domain.LedgerService
	JobService      = domain.JobService
	ControlService  = domain.ControlService
	EvidenceService = domain.EvidenceService
	ExportService   = domain.ExportService
)

// Database is the connection pool as seen by the readiness probe.
type Database interface {
	HealthCheck(ctx context.Context) error
	Stats() (total, idle int32)
}

// SchemaChecker returns the migration version applied to the database.
type SchemaChecker func(ctx context.Context) (int64, error)
