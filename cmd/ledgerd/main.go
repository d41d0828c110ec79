// Command ledgerd serves the audit ledger API, applies schema migrations on
// startup and anchors the ledger on a fixed interval.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/ledger/internal/api"
	"github.com/persistorai/ledger/internal/cache"
	"github.com/persistorai/ledger/internal/config"
	"github.com/persistorai/ledger/internal/db"
	"github.com/persistorai/ledger/internal/dbpool"
	"github.com/persistorai/ledger/internal/domain"
	"github.com/persistorai/ledger/internal/ledger"
	"github.com/persistorai/ledger/internal/service"
	"github.com/persistorai/ledger/internal/store"
	"github.com/persistorai/ledger/internal/ws"
)

const shutdownTimeout = 20 * time.Second

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("loading config")
	}

	level, _ := logrus.ParseLevel(cfg.LogLevel) //nolint:errcheck // validated by config.Load.
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("ledgerd exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value(), dbpool.Options{
		ApplicationName: "ledgerd",
		MaxConns:        int32(cfg.DBMaxConns), //nolint:gosec // bounded by config validation.
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := db.RunMigrations(ctx, pool, log, nil)
	if err != nil {
		return err
	}

	log.WithField("applied", applied).Info("migrations complete")

	st := store.New(store.Base{Pool: pool, Log: log})

	opts := ledger.Options{
		Log:          log,
		AnchorSettle: cfg.AnchorSettle,
		PageSize:     cfg.VerifyPageSize,
	}

	if cfg.RedisURL != "" {
		rdb, err := cache.OpenRedis(ctx, cache.RedisConfig{URL: cfg.RedisURL.Value()})
		if err != nil {
			return err
		}
		defer closeRedis(rdb, log)

		opts.Cache = cache.NewIntegrityCache(rdb, cfg.IntegrityCacheTTL)
		log.WithField("ttl", cfg.IntegrityCacheTTL.String()).Info("integrity cache enabled")
	}

	hub := ws.NewHub(log, ws.Limits{})
	opts.Publisher = hub

	l := ledger.New(st, ledger.LedgerOnly[domain.UnitOfWork](st), opts)
	deps := service.Deps{Ledger: l, Runner: st, Log: log}

	gin.SetMode(gin.ReleaseMode)

	handler := api.NewRouter(ctx, &api.RouterDeps{
		Log:            log,
		DB:             pool,
		Schema:         func(ctx context.Context) (int64, error) { return db.AppliedVersion(ctx, pool) },
		WantSchema:     int64(db.SchemaVersion()),
		Ledger:         l,
		Jobs:           service.NewJobService(deps),
		Controls:       service.NewControlService(deps),
		Evidence:       service.NewEvidenceService(deps),
		Exports:        service.NewExportService(deps),
		Feed:           hub,
		CORSOrigins:    cfg.CORSOrigins,
		Version:        config.Version,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})

	apiSrv := newServer(cfg.Addr(), handler)
	metricsSrv := newServer(cfg.MetricsAddr(), promhttp.Handler())
	anchors := service.NewAnchorWorker(l, log, cfg.AnchorInterval)
	// Anchor whatever settled while the server was down instead of waiting a full interval.
	anchors.Trigger()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return serve(apiSrv, "api", log) })
	g.Go(func() error { return serve(metricsSrv, "metrics", log) })
	g.Go(func() error {
		anchors.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		hub.Shutdown()

		return errors.Join(apiSrv.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
	})

	log.WithFields(logrus.Fields{
		"addr":            cfg.Addr(),
		"metrics_addr":    cfg.MetricsAddr(),
		"anchor_interval": cfg.AnchorInterval.String(),
		"version":         config.Version,
	}).Info("ledgerd started")

	return g.Wait()
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func serve(srv *http.Server, name string, log *logrus.Logger) error {
	log.WithField("addr", srv.Addr).Infof("%s listening", name)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func closeRedis(rdb *redis.Client, log *logrus.Logger) {
	if err := rdb.Close(); err != nil {
		log.WithError(err).Warn("closing redis")
	}
}
