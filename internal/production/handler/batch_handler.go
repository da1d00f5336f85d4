package handler

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/production/entity"
	"github.com/bitfantasy/nimo-mes/internal/production/repository"
	"github.com/bitfantasy/nimo-mes/internal/production/service"
	"github.com/bitfantasy/nimo-mes/internal/shared/response"
	"github.com/gin-gonic/gin"
)

type BatchHandler struct {
	batches *service.BatchService
	steps   *service.StepService
}

func NewBatchHandler(batches *service.BatchService, steps *service.StepService) *BatchHandler {
	return &BatchHandler{batches: batches, steps: steps}
}

// bindOptional binds a JSON body when one was sent.
func bindOptional(c *gin.Context, obj interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		response.BindError(c, err)
		return false
	}
	return true
}

// List GET /api/batches
func (h *BatchHandler) List(c *gin.Context) {
	page, size := response.GetPagination(c)
	items, total, err := h.batches.List(c.Request.Context(), repository.BatchListParams{
		RequestID: c.Query("request_id"),
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

// Get GET /api/batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	b, err := h.batches.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, b)
}

// SetAssignments PUT /api/batches/:id/assignments
func (h *BatchHandler) SetAssignments(c *gin.Context) {
	var req service.AssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	b, err := h.batches.SetAssignments(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, b)
}

// Schedule POST /api/batches/:id/schedule
func (h *BatchHandler) Schedule(c *gin.Context) {
	var req service.ScheduleRequest
	if !bindOptional(c, &req) {
		return
	}
	b, err := h.batches.Schedule(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, b)
}

// Start POST /api/batches/:id/start
func (h *BatchHandler) Start(c *gin.Context) {
	h.respond(c, h.batches.Start)
}

// Complete POST /api/batches/:id/complete
func (h *BatchHandler) Complete(c *gin.Context) {
	h.respond(c, h.batches.Complete)
}

func (h *BatchHandler) respond(c *gin.Context, fn func(ctx context.Context, id string) (*entity.ProductionBatch, error)) {
	b, err := fn(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, b)
}

// Cancel POST /api/batches/:id/cancel
func (h *BatchHandler) Cancel(c *gin.Context) {
	var req service.CancelRequest
	if !bindOptional(c, &req) {
		return
	}
	b, err := h.batches.Cancel(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, b)
}

// ListSteps GET /api/batches/:id/steps
func (h *BatchHandler) ListSteps(c *gin.Context) {
	steps, err := h.steps.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, steps)
}

// AddStep POST /api/batches/:id/steps
func (h *BatchHandler) AddStep(c *gin.Context) {
	var req service.StepInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	step, err := h.steps.Add(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, step)
}

// StartStep POST /api/batches/:id/steps/:stepId/start
func (h *BatchHandler) StartStep(c *gin.Context) {
	h.stepAction(c, h.steps.Start)
}

// CompleteStep POST /api/batches/:id/steps/:stepId/complete
func (h *BatchHandler) CompleteStep(c *gin.Context) {
	h.stepAction(c, h.steps.Complete)
}

// SkipStep POST /api/batches/:id/steps/:stepId/skip
func (h *BatchHandler) SkipStep(c *gin.Context) {
	h.stepAction(c, h.steps.Skip)
}

func (h *BatchHandler) stepAction(c *gin.Context, fn func(ctx context.Context, batchID, stepID, operator string) (*entity.ProductionStep, error)) {
	step, err := fn(c.Request.Context(), c.Param("id"), c.Param("stepId"), response.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, step)
}
