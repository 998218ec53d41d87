package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"catalogbridge/internal/progress"
)

// ProgressHandler upgrades a merge status poll into a live stream of
// progress.Event frames for the merge's device.
type ProgressHandler struct {
	hubs     *progress.Registry
	merges   *MergeHandler
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewProgressHandler returns a ProgressHandler that streams events from
// hubs for merges tracked by merges.
func NewProgressHandler(hubs *progress.Registry, merges *MergeHandler, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{
		hubs:   hubs,
		merges: merges,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Stream handles GET /merges/:id/events. It resolves the job's device ID,
// subscribes to that device's progress hub, and relays every event until
// it has written a done or failed event, a write to the client fails, or
// the hub drops the subscription because its buffer filled up.
func (h *ProgressHandler) Stream(c *gin.Context) {
	deviceID, ok := h.merges.deviceFor(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown merge job"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	hub := h.hubs.HubFor(deviceID)
	events := hub.Subscribe()
	defer hub.Unsubscribe(events)

	// Drain the peer's read side so a client-initiated close is detected
	// promptly; this endpoint is write-only from the server's perspective.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for e := range events {
		data, err := e.Marshal()
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
		if e.Stage == progress.StageDone || e.Stage == progress.StageFailed {
			return
		}
	}
}
