package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/production/repository"
	"github.com/bitfantasy/nimo-mes/internal/production/service"
	"github.com/bitfantasy/nimo-mes/internal/shared/response"
	"github.com/gin-gonic/gin"
)

type RequestHandler struct {
	svc *service.RequestService
}

func NewRequestHandler(svc *service.RequestService) *RequestHandler {
	return &RequestHandler{svc: svc}
}

// List GET /api/requests
func (h *RequestHandler) List(c *gin.Context) {
	page, size := response.GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), repository.RequestListParams{
		Status:      c.Query("status"),
		Priority:    c.Query("priority"),
		ProductCode: c.Query("product_code"),
		Page:        page,
		Size:        size,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.List(c, items, total, page, size)
}

// Create POST /api/requests
func (h *RequestHandler) Create(c *gin.Context) {
	var req service.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	pr, err := h.svc.Create(c.Request.Context(), &req, response.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, pr)
}

// Get GET /api/requests/:id
func (h *RequestHandler) Get(c *gin.Context) {
	pr, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, pr)
}

// Approve POST /api/requests/:id/approve
func (h *RequestHandler) Approve(c *gin.Context) {
	var req service.ApproveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BindError(c, err)
			return
		}
	}
	result, err := h.svc.Approve(c.Request.Context(), c.Param("id"), &req, response.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// Reject POST /api/requests/:id/reject
func (h *RequestHandler) Reject(c *gin.Context) {
	var req service.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	pr, err := h.svc.Reject(c.Request.Context(), c.Param("id"), &req, response.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, pr)
}

// Cancel POST /api/requests/:id/cancel
func (h *RequestHandler) Cancel(c *gin.Context) {
	pr, err := h.svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, pr)
}
