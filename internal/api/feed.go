package api

import (
	"context"
	"net/url"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/ledger/internal/middleware"
	"github.com/persistorai/ledger/internal/ws"
)

// feedHandler upgrades GET /orgs/:org_id/ledger/stream to a WebSocket that
// receives the organization's committed entries, new roots and chain breaks.
func feedHandler(appCtx context.Context, log *logrus.Logger, hub *ws.Hub, corsOrigins []string) gin.HandlerFunc {
	patterns := originPatterns(corsOrigins)

	return func(c *gin.Context) {
		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
			OriginPatterns:       patterns,
			CompressionMode:      websocket.CompressionContextTakeover,
			CompressionThreshold: 128,
		})
		if err != nil {
			log.WithError(err).Warn("feed websocket accept failed")
			return
		}

		client := ws.NewClient(hub, conn, c.Param("org_id"), middleware.ActorFrom(c).ID)
		hub.Register(client)

		// Cancel when either the server shuts down or the request ends.
		feedCtx, cancel := context.WithCancel(appCtx)
		defer cancel()

		go func() {
			select {
			case <-c.Request.Context().Done():
				cancel()
			case <-feedCtx.Done():
			}
		}()

		go client.WritePump(feedCtx)
		client.ReadPump(feedCtx)
	}
}

// originPatterns turns CORS origins such as "https://app.example.com" into
// the host patterns websocket.Accept matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		out = append(out, u.Host)
	}

	return out
}
