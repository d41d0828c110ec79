// Package api provides the HTTP handlers for the ledger service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	db         Database
	schema     SchemaChecker
	wantSchema int64
	log        *logrus.Logger
	version    string
	startTime  time.Time
}

// NewHealthHandler creates a HealthHandler. wantSchema is the migration
// version this binary expects the database to be at.
func NewHealthHandler(db Database, schema SchemaChecker, wantSchema int64, log *logrus.Logger, version string) *HealthHandler {
	return &HealthHandler{
		db:         db,
		schema:     schema,
		wantSchema: wantSchema,
		log:        log,
		version:    version,
		startTime:  time.Now(),
	}
}

// healthResponse is the JSON payload returned by the liveness endpoint.
type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// readinessResponse is the JSON payload returned by the readiness endpoint.
type readinessResponse struct {
	Status        string            `json:"status"`
	Checks        map[string]string `json:"checks"`
	SchemaVersion int64             `json:"schema_version"`
	Connections   *poolStats        `json:"connections,omitempty"`
}

type poolStats struct {
	Total int32 `json:"total"`
	Idle  int32 `json:"idle"`
}

// Liveness handles GET /health. It never touches the database.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	})
}

// Readiness handles GET /ready: the database answers and its schema is at
// the version this binary was built for.
func (h *HealthHandler) Readiness(c *gin.Context) {
	resp := readinessResponse{
		Status: "ready",
		Checks: map[string]string{"database": "ok", "schema": "ok"},
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if h.db == nil {
		resp.Checks["database"] = "not_configured"
	} else if err := h.db.HealthCheck(ctx); err != nil {
		h.log.WithError(err).Error("readiness: database health check failed")
		resp.Checks["database"] = "error"
	} else {
		total, idle := h.db.Stats()
		resp.Connections = &poolStats{Total: total, Idle: idle}
	}

	switch {
	case resp.Checks["database"] != "ok":
		resp.Checks["schema"] = "unknown"
	case h.schema != nil:
		v, err := h.schema(ctx)
		resp.SchemaVersion = v

		if err != nil {
			h.log.WithError(err).Error("readiness: schema check failed")
			resp.Checks["schema"] = "error"
		} else if v != h.wantSchema {
			h.log.WithFields(logrus.Fields{"applied": v, "expected": h.wantSchema}).Warn("readiness: schema version mismatch")
			resp.Checks["schema"] = "outdated"
		}
	}

	status := http.StatusOK
	for _, v := range resp.Checks {
		if v != "ok" {
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, resp)
}
