package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/middleware"
	"github.com/persistorai/ledger/internal/models"
)

// JobHandler serves job endpoints.
type JobHandler struct {
	svc JobService
	log *logrus.Logger
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(svc JobService, log *logrus.Logger) *JobHandler {
	return &JobHandler{svc: svc, log: log}
}

// Create handles POST /orgs/:org_id/jobs.
func (h *JobHandler) Create(c *gin.Context) {
	var req models.CreateJobRequest
	if !bindValid(c, &req) {
		return
	}

	job, err := h.svc.CreateJob(c.Request.Context(), middleware.ActorFrom(c), c.Param("org_id"), req)
	if err != nil {
		respondServiceError(c, err, "creating job")
		return
	}

	c.JSON(http.StatusCreated, job)
}

// UpdateStatus handles PATCH /orgs/:org_id/jobs/:id/status.
func (h *JobHandler) UpdateStatus(c *gin.Context) {
	jobID := pathID(c, "id")
	if jobID == "" {
		return
	}

	var req models.UpdateJobStatusRequest
	if !bindValid(c, &req) {
		return
	}

	job, err := h.svc.UpdateJobStatus(c.Request.Context(), middleware.ActorFrom(c), c.Param("org_id"), jobID, req.Status)
	if err != nil {
		respondServiceError(c, err, "updating job status")
		return
	}

	c.JSON(http.StatusOK, job)
}

// Assign handles PATCH /orgs/:org_id/jobs/:id/assignee.
func (h *JobHandler) Assign(c *gin.Context) {
	jobID := pathID(c, "id")
	if jobID == "" {
		return
	}

	var req models.AssignJobRequest
	if !bindValid(c, &req) {
		return
	}

	job, err := h.svc.AssignJob(c.Request.Context(), middleware.ActorFrom(c), c.Param("org_id"), jobID, req.AssignedTo)
	if err != nil {
		respondServiceError(c, err, "assigning job")
		return
	}

	c.JSON(http.StatusOK, job)
}

// Delete handles DELETE /orgs/:org_id/jobs/:id.
func (h *JobHandler) Delete(c *gin.Context) {
	jobID := pathID(c, "id")
	if jobID == "" {
		return
	}

	if err := h.svc.DeleteJob(c.Request.Context(), middleware.ActorFrom(c), c.Param("org_id"), jobID); err != nil {
		respondServiceError(c, err, "deleting job")
		return
	}

	c.Status(http.StatusNoContent)
}
