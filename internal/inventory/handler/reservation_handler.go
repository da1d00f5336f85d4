package handler

import (
	"strconv"

	"github.com/bitfantasy/nimo-mes/internal/inventory/repository"
	"github.com/bitfantasy/nimo-mes/internal/inventory/service"
	"github.com/bitfantasy/nimo-mes/internal/shared/response"
	"github.com/gin-gonic/gin"
)

type ReservationHandler struct {
	ledger *service.LedgerService
}

func NewReservationHandler(ledger *service.LedgerService) *ReservationHandler {
	return &ReservationHandler{ledger: ledger}
}

// List GET /api/reservations
func (h *ReservationHandler) List(c *gin.Context) {
	page, size := response.GetPagination(c)
	items, total, err := h.ledger.ListReservations(c.Request.Context(), repository.ReservationListParams{
		BatchID: c.Query("batch_id"),
		Status:  c.Query("status"),
		Page:    page,
		Size:    size,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.List(c, items, total, page, size)
}

// Create POST /api/reservations
func (h *ReservationHandler) Create(c *gin.Context) {
	var req service.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	res, err := h.ledger.Reserve(c.Request.Context(), req, response.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, res)
}

// Get GET /api/reservations/:id
func (h *ReservationHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid reservation id")
		return
	}
	res, err := h.ledger.GetReservation(c.Request.Context(), uint(id))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, res)
}

// GetByBatch GET /api/reservations/batch/:batch_id
func (h *ReservationHandler) GetByBatch(c *gin.Context) {
	res, err := h.ledger.GetReservationByBatch(c.Request.Context(), c.Param("batch_id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, res)
}

// Release POST /api/reservations/batch/:batch_id/release
func (h *ReservationHandler) Release(c *gin.Context) {
	res, err := h.ledger.Release(c.Request.Context(), c.Param("batch_id"), response.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, res)
}

// Issue POST /api/reservations/batch/:batch_id/issue
func (h *ReservationHandler) Issue(c *gin.Context) {
	res, err := h.ledger.Issue(c.Request.Context(), c.Param("batch_id"), response.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, res)
}
