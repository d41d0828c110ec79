package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/httputil"
	"github.com/persistorai/ledger/internal/ledger"
)

// Headers set by the authenticating gateway in front of the ledger.
const (
	ActorIDHeader   = "X-Actor-ID"
	ActorRoleHeader = "X-Actor-Role"

	actorKey         = "actor"
	actorRejectedKey = "actor_rejected"
)

var (
	actorPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,255}$`)
	rolePattern  = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)
	orgPattern   = regexp.MustCompile(`^[A-Za-z0-9._-]{1,255}$`)
)

// Actor reads the acting identity forwarded by the gateway. Reads may be
// anonymous; writes without an actor are refused, since every entry they
// produce must be attributable.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(ActorIDHeader)
		role := c.GetHeader(ActorRoleHeader)

		if id != "" && !actorPattern.MatchString(id) {
			c.Set(actorRejectedKey, true)
			httputil.RespondError(c, http.StatusBadRequest, "invalid_actor", "X-Actor-ID is malformed")
			return
		}

		if role != "" && !rolePattern.MatchString(role) {
			c.Set(actorRejectedKey, true)
			httputil.RespondError(c, http.StatusBadRequest, "invalid_actor", "X-Actor-Role is malformed")
			return
		}

		if id == "" && isWrite(c.Request.Method) {
			c.Set(actorRejectedKey, true)
			httputil.RespondError(c, http.StatusUnauthorized, "missing_actor", "X-Actor-ID is required for writes")
			return
		}

		c.Set(actorKey, ledger.Actor{ID: id, Role: role})

		if id != "" {
			entry := Logger(c).WithFields(logrus.Fields{"actor_id": id, "actor_role": role})
			c.Set(loggerKey, entry)
		}

		c.Next()
	}
}

// ActorFrom returns the actor stored by Actor, or the zero Actor.
func ActorFrom(c *gin.Context) ledger.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(ledger.Actor); ok {
			return a
		}
	}

	return ledger.Actor{}
}

// OrgScope validates the :org_id path parameter.
func OrgScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !orgPattern.MatchString(c.Param("org_id")) {
			httputil.RespondError(c, http.StatusBadRequest, "invalid_org", "organization id is malformed")
			return
		}

		c.Next()
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
