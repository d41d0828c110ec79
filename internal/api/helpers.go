package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/middleware"
)

// maxPaginationLimit caps the maximum number of items per page.
const maxPaginationLimit = 1000

// maxPaginationOffset caps the maximum offset for paginated queries.
const maxPaginationOffset = 100000

func ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		}
		if org := c.Param("org_id"); org != "" {
			fields["organization_id"] = org
		}

		middleware.Logger(c).WithFields(fields).Info("request")
	}
}

func parseLimit(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return fallback
	}

	if v > maxPaginationLimit {
		return maxPaginationLimit
	}

	return v
}

func parseOffset(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0
	}

	if v > maxPaginationOffset {
		return maxPaginationOffset
	}

	return v
}

// parseSeq parses an optional positive sequence number query parameter.
func parseSeq(c *gin.Context, name string) (*int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, fmt.Errorf("%s must be a positive integer", name)
	}

	return &v, nil
}

// parseTime parses an optional RFC 3339 timestamp query parameter.
func parseTime(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC 3339 timestamp", name)
	}

	return &t, nil
}

// pathID returns a validated path parameter, or "" after responding 400.
func pathID(c *gin.Context, name string) string {
	id := c.Param(name)
	if id == "" || len(id) > 255 {
		respondError(c, 400, ErrCodeInvalidRequest, name+" must be 1-255 characters")
		return ""
	}

	return id
}

// bindJSON decodes the request body into dst, responding 400 on failure.
// Numbers inside untyped values stay json.Number so metadata is hashed and
// stored exactly as sent.
func bindJSON(c *gin.Context, dst any) bool {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()

	if err := dec.Decode(dst); err != nil {
		respondError(c, 400, ErrCodeInvalidRequest, "invalid request body")
		return false
	}

	return true
}

// validator is implemented by request payloads.
type validator interface {
	Validate() error
}

// bindValid decodes and validates a request payload.
func bindValid(c *gin.Context, dst validator) bool {
	if !bindJSON(c, dst) {
		return false
	}

	if err := dst.Validate(); err != nil {
		respondError(c, 400, ErrCodeValidationError, err.Error())
		return false
	}

	return true
}
