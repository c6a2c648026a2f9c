package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type videoChangePayload struct {
	VideoIDs  []string `json:"videoIds"`
	Source    string   `json:"source"`
	Timestamp int64    `json:"timestamp"`
}

type followerChangePayload struct {
	Identity  string `json:"identity"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
}

type heartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// handleEventStream relays catalog events to the caller as server-sent events.
func (h *httpHandler) handleEventStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.events.Subscribe(ctx)
	defer cleanup()

	h.metrics.streamOpened()
	defer h.metrics.streamClosed()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	h.logger.Debug("event stream opened", zap.String("user_id", c.GetString(userIDContextKey)))
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-stream:
			if !ok {
				return false
			}
			writeCatalogEvent(c, event)
			return true
		case tick := <-ticker.C:
			c.SSEvent(eventHeartbeat, heartbeatPayload{Timestamp: tick.UTC().Unix()})
			return true
		}
	})
	h.logger.Debug("event stream closed", zap.String("user_id", c.GetString(userIDContextKey)))
}

func writeCatalogEvent(c *gin.Context, event CatalogEvent) {
	switch event.EventType {
	case EventVideoChanged:
		c.SSEvent(EventVideoChanged, videoChangePayload{
			VideoIDs:  event.VideoIDs,
			Source:    eventSourceBackend,
			Timestamp: event.Timestamp.Unix(),
		})
	case EventFollowerChanged:
		c.SSEvent(EventFollowerChanged, followerChangePayload{
			Identity:  event.Identity,
			Source:    eventSourceBackend,
			Timestamp: event.Timestamp.Unix(),
		})
	}
}
