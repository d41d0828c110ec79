package security

import (
	"time"

	"github.com/sirupsen/logrus"
)

// NewActorGuardAt builds a guard on a caller-controlled clock without the
// cleanup goroutine.
func NewActorGuardAt(log *logrus.Logger, now func() time.Time) *ActorGuard {
	return newActorGuard(log, now)
}

// Sweep runs one cleanup pass.
func (g *ActorGuard) Sweep() { g.sweep() }
