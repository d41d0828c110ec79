package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/middleware"
	"github.com/persistorai/ledger/internal/models"
)

// LedgerHandler serves the ledger read, append, verification and anchoring
// endpoints.
type LedgerHandler struct {
	svc LedgerService
	log *logrus.Logger
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(svc LedgerService, log *logrus.Logger) *LedgerHandler {
	return &LedgerHandler{svc: svc, log: log}
}

// List handles GET /orgs/:org_id/ledger.
func (h *LedgerHandler) List(c *gin.Context) {
	opts := models.ListOpts{
		Category:   c.Query("category"),
		Severity:   c.Query("severity"),
		Outcome:    c.Query("outcome"),
		TargetType: c.Query("target_type"),
		TargetID:   c.Query("target_id"),
		Order:      c.DefaultQuery("order", models.OrderAsc),
		Limit:      parseLimit(c.Query("limit"), 100),
		Offset:     parseOffset(c.Query("offset")),
	}

	if opts.Order != models.OrderAsc && opts.Order != models.OrderDesc {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "order must be asc or desc")
		return
	}

	var err error
	if opts.Since, err = parseTime(c, "since"); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	if opts.Until, err = parseTime(c, "until"); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	entries, hasMore, err := h.svc.List(c.Request.Context(), c.Param("org_id"), opts)
	if err != nil {
		respondServiceError(c, err, "listing ledger entries")
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "has_more": hasMore})
}

// Append handles POST /orgs/:org_id/ledger. The organization comes from the
// path and the actor from the gateway headers; body values for either are
// ignored.
func (h *LedgerHandler) Append(c *gin.Context) {
	var d models.Draft
	if !bindJSON(c, &d) {
		return
	}

	d.OrganizationID = c.Param("org_id")
	d.ActorID = ""
	d.ActorRole = ""

	if err := d.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())
		return
	}

	entry, err := h.svc.Append(c.Request.Context(), middleware.ActorFrom(c), d)
	if err != nil {
		respondServiceError(c, err, "appending ledger entry")
		return
	}

	middleware.Logger(c).WithFields(logrus.Fields{
		"organization_id": entry.OrganizationID,
		"seq":             entry.Seq,
		"event_name":      entry.EventName,
	}).Info("ledger.append")

	c.JSON(http.StatusCreated, entry)
}

// Verify handles GET /orgs/:org_id/ledger/verify. A broken chain is a
// successful verification with ok=false.
func (h *LedgerHandler) Verify(c *gin.Context) {
	from, err := parseSeq(c, "from_seq")
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	to, err := parseSeq(c, "to_seq")
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	if from != nil && to != nil && *from > *to {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, models.ErrInvalidSeqRange.Error())
		return
	}

	res, err := h.svc.Verify(c.Request.Context(), c.Param("org_id"), from, to)
	if err != nil {
		respondServiceError(c, err, "verifying ledger chain")
		return
	}

	if !res.OK {
		middleware.Logger(c).WithError(res.Err()).Warn("ledger.verify")
	}

	c.JSON(http.StatusOK, res)
}

// Integrity handles GET /orgs/:org_id/integrity.
func (h *LedgerHandler) Integrity(c *gin.Context) {
	res, err := h.svc.IntegrityStatus(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		respondServiceError(c, err, "reading integrity status")
		return
	}

	c.JSON(http.StatusOK, res)
}

// Checkpoint handles POST /ledger/checkpoints. It answers 201 with the new
// root, or 200 with the latest root when nothing new had settled.
func (h *LedgerHandler) Checkpoint(c *gin.Context) {
	root, created, err := h.svc.Checkpoint(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "creating checkpoint")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	c.JSON(status, gin.H{"created": created, "root": root})
}

// Roots handles GET /ledger/roots.
func (h *LedgerHandler) Roots(c *gin.Context) {
	from, err := parseSeq(c, "from_seq")
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	to, err := parseSeq(c, "to_seq")
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	rng := models.RootRange{Limit: parseLimit(c.Query("limit"), 100)}
	if from != nil {
		rng.FromSeq = *from
	}
	if to != nil {
		rng.ToSeq = *to
	}

	roots, err := h.svc.Roots(c.Request.Context(), rng)
	if err != nil {
		respondServiceError(c, err, "listing roots")
		return
	}

	c.JSON(http.StatusOK, gin.H{"roots": roots})
}

// VerifyRoot handles GET /ledger/roots/:id/verify.
func (h *LedgerHandler) VerifyRoot(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "root id must be a positive integer")
		return
	}

	res, err := h.svc.VerifyRoot(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "verifying root")
		return
	}

	if !res.OK {
		h.log.WithFields(logrus.Fields{"root_id": id, "reason": res.Reason}).Warn("ledger.verify_root")
	}

	c.JSON(http.StatusOK, res)
}
