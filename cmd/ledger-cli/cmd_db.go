package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/persistorai/ledger/internal/db"
	"github.com/persistorai/ledger/internal/dbpool"
	"github.com/persistorai/ledger/internal/domain"
	"github.com/persistorai/ledger/internal/ledger"
	"github.com/persistorai/ledger/internal/store"
)

var errNoDatabase = errors.New("database URL required: set --database-url, LEDGER_DATABASE_URL, or database_url in ~/.ledger/config.yaml")

// newDBCmd groups commands that talk to Postgres directly rather than
// through the API.
func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Maintenance commands that connect to the database directly",
	}
	cmd.PersistentFlags().StringVar(&flagDB, "database-url", "", "Postgres URL (env: LEDGER_DATABASE_URL)")

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newBackfillCmd())
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, pool *dbpool.Pool, log *logrus.Logger) error {
				applied, err := db.RunMigrations(ctx, pool, log, nil)
				if err != nil {
					return err
				}
				current, err := db.AppliedVersion(ctx, pool)
				if err != nil {
					return err
				}
				output(map[string]int64{"applied": int64(applied), "version": current}, strconv.FormatInt(current, 10))
				return nil
			})
		},
	}
}

func newBackfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Chain legacy ledger rows written before hashing existed",
		Long: "Assigns seq, prev_hash and hash to every unchained row in created_at order,\n" +
			"appending each organization's legacy rows to its existing chain. Runs as one transaction.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, pool *dbpool.Pool, log *logrus.Logger) error {
				st := store.New(store.Base{Pool: pool, Log: log})
				l := ledger.New(st, ledger.LedgerOnly[domain.UnitOfWork](st), ledger.Options{Log: log})

				report, err := l.Backfill(ctx)
				if err != nil {
					return err
				}
				output(report, strconv.Itoa(report.Entries))
				return nil
			})
		},
	}
}

func withPool(fn func(ctx context.Context, pool *dbpool.Pool, log *logrus.Logger) error) error {
	if flagDB == "" {
		return errNoDatabase
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := dbpool.NewPool(ctx, flagDB, dbpool.Options{ApplicationName: "ledger-cli", MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, pool, log)
}
