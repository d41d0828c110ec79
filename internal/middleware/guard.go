package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/ledger/internal/httputil"
	"github.com/persistorai/ledger/internal/security"
)

// ActorGuard refuses clients locked out by guard and records a failure each
// time Actor rejects a request's identity headers. It must run before Actor.
func ActorGuard(guard *security.ActorGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := c.ClientIP()

		if guard.IsBlocked(client) {
			Logger(c).WithField("client", client).Warn("request from locked out client")
			httputil.RespondError(c, http.StatusTooManyRequests, "actor_locked_out", "too many invalid actor headers")

			return
		}

		c.Next()

		if c.GetBool(actorRejectedKey) {
			guard.RecordFailure(client)
		}
	}
}
