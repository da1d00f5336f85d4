package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/repository"
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/service"
	"github.com/bitfantasy/nimo-mes/internal/shared/response"
	"github.com/gin-gonic/gin"
)

type MachineHandler struct {
	machines *service.MachineService
	queue    *service.QueueService
}

func NewMachineHandler(machines *service.MachineService, queue *service.QueueService) *MachineHandler {
	return &MachineHandler{machines: machines, queue: queue}
}

// List GET /api/machines
func (h *MachineHandler) List(c *gin.Context) {
	page, size := response.GetPagination(c)
	items, total, err := h.machines.List(c.Request.Context(), repository.MachineListParams{
		Keyword:     c.Query("keyword"),
		MachineType: c.Query("machine_type"),
		Status:      c.Query("status"),
		Page:        page,
		Size:        size,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.List(c, items, total, page, size)
}

// Create POST /api/machines
func (h *MachineHandler) Create(c *gin.Context) {
	var req service.CreateMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	m, err := h.machines.Create(c.Request.Context(), &req, response.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, m)
}

// Get GET /api/machines/:id
func (h *MachineHandler) Get(c *gin.Context) {
	m, err := h.machines.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, m)
}

// Update PUT /api/machines/:id
func (h *MachineHandler) Update(c *gin.Context) {
	var req service.UpdateMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	m, err := h.machines.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, m)
}

// Delete DELETE /api/machines/:id
func (h *MachineHandler) Delete(c *gin.Context) {
	if err := h.machines.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, nil)
}

// Queue GET /api/machines/:id/queue
func (h *MachineHandler) Queue(c *gin.Context) {
	q, err := h.queue.MachineQueue(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, q)
}

// StartNext POST /api/machines/:id/queue/start
func (h *MachineHandler) StartNext(c *gin.Context) {
	e, err := h.queue.StartNext(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, e)
}
