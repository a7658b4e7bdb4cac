package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Dispatch/internal/core"
)

// PresenceSource is the read side of the registry.
type PresenceSource interface {
	Snapshot() []core.PresenceDTO
	Online() int
	Connections() int
}

type Handlers struct {
	Presence PresenceSource
	ICE      []webrtc.ICEServer
	// Done is closed when the hub stops accepting work.
	Done <-chan struct{}
}

type OnlineResponse struct {
	Count int                `json:"count"`
	Users []core.PresenceDTO `json:"users"`
}

type ICEResponse struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Online      int    `json:"online"`
	Connections int    `json:"connections"`
}

func (h *Handlers) Online(c *gin.Context) {
	users := h.Presence.Snapshot()
	c.JSON(http.StatusOK, OnlineResponse{Count: len(users), Users: users})
}

func (h *Handlers) ICEServers(c *gin.Context) {
	c.JSON(http.StatusOK, ICEResponse{ICEServers: h.ICE})
}

func (h *Handlers) Healthz(c *gin.Context) {
	resp := HealthResponse{
		Status:      "ok",
		Online:      h.Presence.Online(),
		Connections: h.Presence.Connections(),
	}
	select {
	case <-h.Done:
		resp.Status = "stopping"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	default:
	}
	c.JSON(http.StatusOK, resp)
}
