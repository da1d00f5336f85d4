package handler

import (
	"context"
	"strconv"

	"github.com/bitfantasy/nimo-mes/internal/machinequeue/entity"
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/repository"
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/service"
	"github.com/bitfantasy/nimo-mes/internal/shared/response"
	"github.com/gin-gonic/gin"
)

type QueueHandler struct {
	svc *service.QueueService
}

func NewQueueHandler(svc *service.QueueService) *QueueHandler {
	return &QueueHandler{svc: svc}
}

// List GET /api/queues
func (h *QueueHandler) List(c *gin.Context) {
	page, size := response.GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), repository.QueueListParams{
		MachineID: c.Query("machine_id"),
		BatchID:   c.Query("batch_id"),
		Status:    c.Query("status"),
		Page:      page,
		Size:      size,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.List(c, items, total, page, size)
}

// Enqueue POST /api/queues
func (h *QueueHandler) Enqueue(c *gin.Context) {
	var req service.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	e, err := h.svc.Enqueue(c.Request.Context(), &req, response.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, e)
}

// Get GET /api/queues/:queue_id
func (h *QueueHandler) Get(c *gin.Context) {
	e, err := h.svc.Get(c.Request.Context(), c.Param("queue_id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, e)
}

// Complete POST /api/queues/:queue_id/complete?advance=true
func (h *QueueHandler) Complete(c *gin.Context) {
	advance, _ := strconv.ParseBool(c.DefaultQuery("advance", "false"))
	result, err := h.svc.Complete(c.Request.Context(), c.Param("queue_id"), advance)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// Pause POST /api/queues/:queue_id/pause
func (h *QueueHandler) Pause(c *gin.Context) {
	h.respond(c, h.svc.Pause)
}

// Resume POST /api/queues/:queue_id/resume
func (h *QueueHandler) Resume(c *gin.Context) {
	h.respond(c, h.svc.Resume)
}

func (h *QueueHandler) respond(c *gin.Context, fn func(ctx context.Context, queueID string) (*entity.QueueEntry, error)) {
	e, err := fn(c.Request.Context(), c.Param("queue_id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, e)
}

// Cancel POST /api/queues/:queue_id/cancel
func (h *QueueHandler) Cancel(c *gin.Context) {
	var req service.CancelRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BindError(c, err)
			return
		}
	}
	e, err := h.svc.Cancel(c.Request.Context(), c.Param("queue_id"), req.Reason)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, e)
}

// Reposition PUT /api/queues/:queue_id/position
func (h *QueueHandler) Reposition(c *gin.Context) {
	var req service.RepositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	e, err := h.svc.Reposition(c.Request.Context(), c.Param("queue_id"), req.Position)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, e)
}
