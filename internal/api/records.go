package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/middleware"
	"github.com/persistorai/ledger/internal/models"
)

// RecordHandler serves hazard control, evidence and export endpoints.
type RecordHandler struct {
	controls ControlService
	evidence EvidenceService
	exports  ExportService
	log      *logrus.Logger
}

// NewRecordHandler creates a RecordHandler.
func NewRecordHandler(controls ControlService, evidence EvidenceService, exports ExportService, log *logrus.Logger) *RecordHandler {
	return &RecordHandler{controls: controls, evidence: evidence, exports: exports, log: log}
}

// AddControl handles POST /orgs/:org_id/jobs/:id/controls.
func (h *RecordHandler) AddControl(c *gin.Context) {
	jobID := pathID(c, "id")
	if jobID == "" {
		return
	}

	var req models.AddControlRequest
	if !bindValid(c, &req) {
		return
	}

	control, err := h.controls.AddControl(c.Request.Context(), middleware.ActorFrom(c), c.Param("org_id"), jobID, req)
	if err != nil {
		respondServiceError(c, err, "adding control")
		return
	}

	c.JSON(http.StatusCreated, control)
}

// CompleteControl handles POST /orgs/:org_id/controls/:id/complete.
func (h *RecordHandler) CompleteControl(c *gin.Context) {
	controlID := pathID(c, "id")
	if controlID == "" {
		return
	}

	control, err := h.controls.CompleteControl(c.Request.Context(), middleware.ActorFrom(c), c.Param("org_id"), controlID)
	if err != nil {
		respondServiceError(c, err, "completing control")
		return
	}

	c.JSON(http.StatusOK, control)
}

// WaiveControl handles POST /orgs/:org_id/controls/:id/waive.
func (h *RecordHandler) WaiveControl(c *gin.Context) {
	controlID := pathID(c, "id")
	if controlID == "" {
		return
	}

	var req models.WaiveControlRequest
	if !bindValid(c, &req) {
		return
	}

	control, err := h.controls.WaiveControl(c.Request.Context(), middleware.ActorFrom(c), c.Param("org_id"), controlID, req)
	if err != nil {
		respondServiceError(c, err, "waiving control")
		return
	}

	c.JSON(http.StatusOK, control)
}

// RemoveControl handles DELETE /orgs/:org_id/controls/:id.
func (h *RecordHandler) RemoveControl(c *gin.Context) {
	controlID := pathID(c, "id")
	if controlID == "" {
		return
	}

	if err := h.controls.RemoveControl(c.Request.Context(), middleware.ActorFrom(c), c.Param("org_id"), controlID); err != nil {
		respondServiceError(c, err, "removing control")
		return
	}

	c.Status(http.StatusNoContent)
}

// UploadEvidence handles POST /orgs/:org_id/jobs/:id/evidence.
func (h *RecordHandler) UploadEvidence(c *gin.Context) {
	jobID := pathID(c, "id")
	if jobID == "" {
		return
	}

	var req models.UploadEvidenceRequest
	if !bindValid(c, &req) {
		return
	}

	ev, err := h.evidence.UploadEvidence(c.Request.Context(), middleware.ActorFrom(c), c.Param("org_id"), jobID, req)
	if err != nil {
		respondServiceError(c, err, "uploading evidence")
		return
	}

	c.JSON(http.StatusCreated, ev)
}

// SealEvidence handles POST /orgs/:org_id/evidence/:id/seal.
func (h *RecordHandler) SealEvidence(c *gin.Context) {
	evidenceID := pathID(c, "id")
	if evidenceID == "" {
		return
	}

	ev, err := h.evidence.SealEvidence(c.Request.Context(), middleware.ActorFrom(c), c.Param("org_id"), evidenceID)
	if err != nil {
		respondServiceError(c, err, "sealing evidence")
		return
	}

	c.JSON(http.StatusOK, ev)
}

// RequestExport handles POST /orgs/:org_id/jobs/:id/exports.
func (h *RecordHandler) RequestExport(c *gin.Context) {
	jobID := pathID(c, "id")
	if jobID == "" {
		return
	}

	// The body is optional; an empty one requests the default kind.
	var req models.RequestExportRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	if err := req.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())
		return
	}

	exp, err := h.exports.RequestExport(c.Request.Context(), middleware.ActorFrom(c), c.Param("org_id"), jobID, req)
	if err != nil {
		respondServiceError(c, err, "requesting export")
		return
	}

	c.JSON(http.StatusCreated, exp)
}

// CompleteExport handles POST /orgs/:org_id/exports/:id/complete.
func (h *RecordHandler) CompleteExport(c *gin.Context) {
	exportID := pathID(c, "id")
	if exportID == "" {
		return
	}

	var req models.CompleteExportRequest
	if !bindValid(c, &req) {
		return
	}

	exp, err := h.exports.CompleteExport(c.Request.Context(), middleware.ActorFrom(c), c.Param("org_id"), exportID, req)
	if err != nil {
		respondServiceError(c, err, "completing export")
		return
	}

	c.JSON(http.StatusOK, exp)
}

// FailExport handles POST /orgs/:org_id/exports/:id/fail.
func (h *RecordHandler) FailExport(c *gin.Context) {
	exportID := pathID(c, "id")
	if exportID == "" {
		return
	}

	var req models.FailExportRequest
	if !bindValid(c, &req) {
		return
	}

	exp, err := h.exports.FailExport(c.Request.Context(), middleware.ActorFrom(c), c.Param("org_id"), exportID, req)
	if err != nil {
		respondServiceError(c, err, "failing export")
		return
	}

	c.JSON(http.StatusOK, exp)
}
