package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/httputil"
)

const (
	// RequestIDHeader is the HTTP header used to propagate the request ID.
	RequestIDHeader = "X-Request-ID"

	loggerKey = "request_logger"
)

// RequestID assigns each request a canonical ID and a request-scoped logger.
// A UUID supplied by the gateway is kept so gateway and ledger logs join on
// it; anything else is replaced and logged as client_request_id.
func RequestID(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		fields := logrus.Fields{}

		if clientID := c.GetHeader(RequestIDHeader); clientID != "" {
			if parsed, err := uuid.Parse(clientID); err == nil {
				id = parsed.String()
			} else if len(clientID) <= 128 {
				fields["client_request_id"] = clientID
			}
		}

		fields["request_id"] = id

		c.Set(httputil.RequestIDKey, id)
		c.Set(loggerKey, log.WithFields(fields))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// Logger returns the request-scoped logger, falling back to the standard
// logger outside the RequestID middleware.
func Logger(c *gin.Context) *logrus.Entry {
	if v, ok := c.Get(loggerKey); ok {
		if entry, ok := v.(*logrus.Entry); ok {
			return entry
		}
	}

	return logrus.NewEntry(logrus.StandardLogger())
}
