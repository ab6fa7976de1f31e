package notify

import (
	"context"
	"net/http"
	"time"

	"communityboard/internal/domain"
	"communityboard/internal/middleware"
	"communityboard/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// StatusReader supplies the state sent right after connecting.
type StatusReader interface {
	Status(ctx context.Context, p domain.Principal) (bool, *time.Time, error)
}

type Handler struct {
	hub    *Hub
	status StatusReader
}

func NewHandler(hub *Hub, status StatusReader) *Handler {
	return &Handler{hub: hub, status: status}
}

// RegisterRoutes mounts GET /ws/penalty. The group must run middleware.Auth,
// which also accepts ?token= since browsers cannot set headers on upgrades.
func (h *Handler) RegisterRoutes(ws *gin.RouterGroup) {
	ws.GET("/penalty", h.Serve)
}

func (h *Handler) Serve(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	initial := &Event{Type: EventStatus, Allowed: true}
	if h.status != nil {
		allowed, until, err := h.status.Status(c.Request.Context(), p)
		if err == nil {
			initial.Allowed = allowed
			initial.Until = until
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	h.hub.ServeWS(conn, p.ExternalID, initial)
}
