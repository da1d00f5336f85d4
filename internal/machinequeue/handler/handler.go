package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/service"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers 机台排队 HTTP 处理器集合
type Handlers struct {
	Machine *MachineHandler
	Queue   *QueueHandler
	Events  *EventsHandler
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		Machine: NewMachineHandler(services.Machine, services.Queue),
		Queue:   NewQueueHandler(services.Queue),
		Events:  NewEventsHandler(services.Events),
	}
}

func RegisterRoutes(r gin.IRouter, h *Handlers, auth gin.HandlerFunc) {
	api := r.Group("/api", auth)

	read := middleware.RequirePermission("queues:read")
	write := middleware.RequirePermission("queues:write")

	machines := api.Group("/machines")
	{
		machines.GET("", read, h.Machine.List)
		machines.POST("", write, h.Machine.Create)
		machines.GET("/:id", read, h.Machine.Get)
		machines.PUT("/:id", write, h.Machine.Update)
		machines.DELETE("/:id", write, h.Machine.Delete)
		machines.GET("/:id/queue", read, h.Machine.Queue)
		machines.POST("/:id/queue/start", write, h.Machine.StartNext)
		machines.GET("/:id/queue/events", read, h.Events.Stream)
	}

	queues := api.Group("/queues")
	{
		queues.GET("", read, h.Queue.List)
		queues.POST("", write, h.Queue.Enqueue)
		queues.GET("/events", read, h.Events.Stream)
		queues.GET("/:queue_id", read, h.Queue.Get)
		queues.POST("/:queue_id/complete", write, h.Queue.Complete)
		queues.POST("/:queue_id/pause", write, h.Queue.Pause)
		queues.POST("/:queue_id/resume", write, h.Queue.Resume)
		queues.POST("/:queue_id/cancel", write, h.Queue.Cancel)
		queues.PUT("/:queue_id/position", write, h.Queue.Reposition)
	}
}
