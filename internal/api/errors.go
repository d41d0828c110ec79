package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/ledger/internal/httputil"
	"github.com/persistorai/ledger/internal/metrics"
	"github.com/persistorai/ledger/internal/middleware"
	"github.com/persistorai/ledger/internal/models"
)

// Error code constants for standardized API responses.
const (
	ErrCodeInvalidRequest    = "invalid_request"
	ErrCodeValidationError   = "validation_error"
	ErrCodeNotFound          = "not_found"
	ErrCodeImmutableRecord   = "immutable_record"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeBlocked           = "blocked"
	ErrCodeInternalError     = "internal_error"
)

// validationErrors are returned before anything is written.
var validationErrors = []error{
	models.ErrMissingOrganization,
	models.ErrMissingEventName,
	models.ErrMissingTargetType,
	models.ErrMissingTitle,
	models.ErrMissingDescription,
	models.ErrMissingFileName,
	models.ErrMissingFileHash,
	models.ErrInvalidFileHash,
	models.ErrMissingReason,
	models.ErrMissingAssignee,
	models.ErrInvalidSeqRange,
}

// respondError writes a standardized JSON error response.
func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}

// respondServiceError maps a service error onto its HTTP status. Unknown
// errors are logged with action and reported as 500 without detail.
func respondServiceError(c *gin.Context, err error, action string) {
	var blocked *models.BlockedError

	switch {
	case errors.As(err, &blocked):
		respondError(c, http.StatusUnprocessableEntity, ErrCodeBlocked, blocked.Error())
	case errors.Is(err, models.ErrImmutableRecord):
		middleware.Logger(c).WithError(err).Warn(action)
		respondError(c, http.StatusConflict, ErrCodeImmutableRecord, models.ErrImmutableRecord.Error())
	case errors.Is(err, models.ErrInvalidTransition):
		respondError(c, http.StatusConflict, ErrCodeInvalidTransition, err.Error())
	case errors.Is(err, models.ErrNotFound):
		respondError(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case isValidation(err):
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())
	default:
		middleware.Logger(c).WithError(err).Error(action)
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
	}
}

func isValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
