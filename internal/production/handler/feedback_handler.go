package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/production/repository"
	"github.com/bitfantasy/nimo-mes/internal/production/service"
	"github.com/bitfantasy/nimo-mes/internal/shared/response"
	"github.com/gin-gonic/gin"
)

type FeedbackHandler struct {
	svc *service.FeedbackService
}

func NewFeedbackHandler(svc *service.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{svc: svc}
}

// List GET /api/feedback
func (h *FeedbackHandler) List(c *gin.Context) {
	h.list(c, c.Query("batch_id"))
}

// ListByBatch GET /api/batches/:id/feedback
func (h *FeedbackHandler) ListByBatch(c *gin.Context) {
	h.list(c, c.Param("id"))
}

func (h *FeedbackHandler) list(c *gin.Context, batchID string) {
	page, size := response.GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), repository.FeedbackListParams{
		BatchID:    batchID,
		ReportedBy: c.Query("reported_by"),
		Page:       page,
		Size:       size,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.List(c, items, total, page, size)
}

// Create POST /api/batches/:id/feedback
func (h *FeedbackHandler) Create(c *gin.Context) {
	var req service.CreateFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	fb, err := h.svc.Create(c.Request.Context(), c.Param("id"), &req, response.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, fb)
}

// Summary GET /api/batches/:id/feedback/summary
func (h *FeedbackHandler) Summary(c *gin.Context) {
	summary, err := h.svc.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, summary)
}
