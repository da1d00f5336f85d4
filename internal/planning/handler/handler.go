package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/planning/repository"
	"github.com/bitfantasy/nimo-mes/internal/planning/service"
	"github.com/bitfantasy/nimo-mes/internal/shared/response"
	"github.com/gin-gonic/gin"
)

// PlanHandler 生产计划处理器
type PlanHandler struct {
	planner *service.Planner
}

func NewPlanHandler(planner *service.Planner) *PlanHandler {
	return &PlanHandler{planner: planner}
}

func RegisterRoutes(r gin.IRouter, h *PlanHandler, auth gin.HandlerFunc) {
	api := r.Group("/api", auth)

	read := middleware.RequirePermission("production:read")
	write := middleware.RequirePermission("plans:write")

	plans := api.Group("/plans")
	{
		plans.GET("", read, h.List)
		plans.POST("", write, h.Create)
		plans.GET("/:id", read, h.Get)
		plans.POST("/:id/cancel", write, h.Cancel)
	}
}

// List GET /api/plans
func (h *PlanHandler) List(c *gin.Context) {
	page, size := response.GetPagination(c)
	items, total, err := h.planner.List(c.Request.Context(), repository.PlanListParams{
		BatchID:   c.Query("batch_id"),
		MachineID: c.Query("machine_id"),
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

// Create POST /api/plans
func (h *PlanHandler) Create(c *gin.Context) {
	var req service.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	plan, err := h.planner.CreatePlan(c.Request.Context(), &req, response.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, plan)
}

// Get GET /api/plans/:id
func (h *PlanHandler) Get(c *gin.Context) {
	plan, err := h.planner.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, plan)
}

// Cancel POST /api/plans/:id/cancel
func (h *PlanHandler) Cancel(c *gin.Context) {
	var req service.CancelPlanRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BindError(c, err)
			return
		}
	}
	plan, err := h.planner.CancelPlan(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, plan)
}
