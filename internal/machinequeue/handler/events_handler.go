package handler

import (
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/machinequeue/events"
	"github.com/bitfantasy/nimo-mes/internal/shared/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const heartbeatInterval = 30 * time.Second

type EventsHandler struct {
	hub *events.Hub
}

func NewEventsHandler(hub *events.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// Stream GET /api/machines/:id/queue/events 或 /api/queues/events?machine_id=
func (h *EventsHandler) Stream(c *gin.Context) {
	machineID := c.Param("id")
	if machineID == "" {
		machineID = c.Query("machine_id")
	}
	sub := &events.Subscriber{
		ID:        response.GetUserID(c) + "_" + uuid.NewString(),
		MachineID: machineID,
		Events:    make(chan events.Event, 64),
	}
	h.hub.Register(sub)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"subscriber_id\":%q}\n\n", sub.ID)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	gone := c.Request.Context().Done()
	for {
		select {
		case <-gone:
			h.hub.Unregister(sub.ID)
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Type, ev.Data)
			c.Writer.Flush()
		case <-heartbeat.C:
			c.Writer.WriteString(": keepalive\n\n")
			c.Writer.Flush()
		}
	}
}
