package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/middleware"
	"github.com/persistorai/ledger/internal/security"
	"github.com/persistorai/ledger/internal/ws"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log            *logrus.Logger
	DB             Database
	Schema         SchemaChecker
	WantSchema     int64
	Ledger         LedgerService
	Jobs           JobService
	Controls       ControlService
	Evidence       EvidenceService
	Exports        ExportService
	Feed           *ws.Hub
	CORSOrigins    []string
	Version        string
	RateLimitRPS   int
	RateLimitBurst int
	MaxBodyBytes   int64

	// ServeMetrics mounts /metrics on the API listener as well as the
	// dedicated metrics listener.
	ServeMetrics bool
}

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  deps.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Content-Type", middleware.ActorIDHeader, middleware.ActorRoleHeader, middleware.RequestIDHeader},
			ExposeHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
			MaxAge:        1 * time.Hour,
		}))
	}
	r.Use(middleware.Metrics())

	if deps.ServeMetrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	health := NewHealthHandler(deps.DB, deps.Schema, deps.WantSchema, deps.Log, deps.Version)
	r.GET("/health", health.Liveness)
	r.GET("/ready", health.Readiness)

	r.Use(ginLogger())
	r.Use(middleware.ActorGuard(security.NewActorGuard(ctx, deps.Log)))
	r.Use(middleware.Actor())
	r.Use(middleware.NewRateLimiter(ctx, deps.RateLimitRPS, deps.RateLimitBurst).Handler())
	r.Use(middleware.RequestBody(deps.MaxBodyBytes))
}

// registerRoutes sets up all API route handlers on the given router group.
func registerRoutes(ctx context.Context, api *gin.RouterGroup, deps *RouterDeps) {
	ledgerH := NewLedgerHandler(deps.Ledger, deps.Log)
	jobs := NewJobHandler(deps.Jobs, deps.Log)
	records := NewRecordHandler(deps.Controls, deps.Evidence, deps.Exports, deps.Log)

	// Cross-organization anchoring.
	api.POST("/ledger/checkpoints", ledgerH.Checkpoint)
	api.GET("/ledger/roots", ledgerH.Roots)
	api.GET("/ledger/roots/:id/verify", ledgerH.VerifyRoot)

	org := api.Group("/orgs/:org_id", middleware.OrgScope())

	// Ledger.
	org.GET("/ledger", ledgerH.List)
	org.POST("/ledger", ledgerH.Append)
	org.GET("/ledger/verify", ledgerH.Verify)
	org.GET("/integrity", ledgerH.Integrity)

	if deps.Feed != nil {
		org.GET("/ledger/stream", feedHandler(ctx, deps.Log, deps.Feed, deps.CORSOrigins))
	}

	// Jobs.
	org.POST("/jobs", jobs.Create)
	org.PATCH("/jobs/:id/status", jobs.UpdateStatus)
	org.PATCH("/jobs/:id/assignee", jobs.Assign)
	org.DELETE("/jobs/:id", jobs.Delete)

	// Hazard controls.
	org.POST("/jobs/:id/controls", records.AddControl)
	org.POST("/controls/:id/complete", records.CompleteControl)
	org.POST("/controls/:id/waive", records.WaiveControl)
	org.DELETE("/controls/:id", records.RemoveControl)

	// Evidence.
	org.POST("/jobs/:id/evidence", records.UploadEvidence)
	org.POST("/evidence/:id/seal", records.SealEvidence)

	// Exports.
	org.POST("/jobs/:id/exports", records.RequestExport)
	org.POST("/exports/:id/complete", records.CompleteExport)
	org.POST("/exports/:id/fail", records.FailExport)
}

// NewRouter creates and configures the Gin engine with all middleware and
// routes. Health and readiness sit outside /api/v1 and skip the actor and
// rate limit middleware.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	if deps.RateLimitRPS <= 0 {
		deps.RateLimitRPS = 50
	}

	if deps.RateLimitBurst < deps.RateLimitRPS {
		deps.RateLimitBurst = deps.RateLimitRPS * 2
	}

	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = 1 << 20
	}

	r := gin.New()
	setupMiddleware(ctx, r, deps)
	registerRoutes(ctx, r.Group("/api/v1"), deps)

	return r
}
