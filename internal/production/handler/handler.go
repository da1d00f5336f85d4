package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/production/service"
	"github.com/gin-gonic/gin"
)

// Handlers 生产 HTTP 处理器集合
type Handlers struct {
	Request  *RequestHandler
	Batch    *BatchHandler
	Feedback *FeedbackHandler
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		Request:  NewRequestHandler(services.Request),
		Batch:    NewBatchHandler(services.Batch, services.Step),
		Feedback: NewFeedbackHandler(services.Feedback),
	}
}

// RegisterRoutes mounts the production API under /api behind auth.
func RegisterRoutes(r gin.IRouter, h *Handlers, auth gin.HandlerFunc) {
	api := r.Group("/api", auth)

	read := middleware.RequirePermission("production:read")
	write := middleware.RequirePermission("production:write")

	requests := api.Group("/requests")
	{
		requests.GET("", read, h.Request.List)
		requests.POST("", write, h.Request.Create)
		requests.GET("/:id", read, h.Request.Get)
		requests.POST("/:id/approve", write, h.Request.Approve)
		requests.POST("/:id/reject", write, h.Request.Reject)
		requests.POST("/:id/cancel", write, h.Request.Cancel)
	}

	batches := api.Group("/batches")
	{
		batches.GET("", read, h.Batch.List)
		batches.GET("/:id", read, h.Batch.Get)
		batches.PUT("/:id/assignments", write, h.Batch.SetAssignments)
		batches.POST("/:id/schedule", write, h.Batch.Schedule)
		batches.POST("/:id/start", write, h.Batch.Start)
		batches.POST("/:id/complete", write, h.Batch.Complete)
		batches.POST("/:id/cancel", write, h.Batch.Cancel)

		batches.GET("/:id/steps", read, h.Batch.ListSteps)
		batches.POST("/:id/steps", write, h.Batch.AddStep)
		batches.POST("/:id/steps/:stepId/start", write, h.Batch.StartStep)
		batches.POST("/:id/steps/:stepId/complete", write, h.Batch.CompleteStep)
		batches.POST("/:id/steps/:stepId/skip", write, h.Batch.SkipStep)

		batches.GET("/:id/feedback", read, h.Feedback.ListByBatch)
		batches.POST("/:id/feedback", write, h.Feedback.Create)
		batches.GET("/:id/feedback/summary", read, h.Feedback.Summary)
	}

	api.GET("/feedback", read, h.Feedback.List)
}
