package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/inventory/repository"
	"github.com/bitfantasy/nimo-mes/internal/inventory/service"
	"github.com/bitfantasy/nimo-mes/internal/shared/response"
	"github.com/gin-gonic/gin"
)

type MaterialHandler struct {
	svc    *service.MaterialService
	ledger *service.LedgerService
	report *service.ReportService
}

func NewMaterialHandler(svc *service.MaterialService, ledger *service.LedgerService, report *service.ReportService) *MaterialHandler {
	return &MaterialHandler{svc: svc, ledger: ledger, report: report}
}

// List GET /api/materials
func (h *MaterialHandler) List(c *gin.Context) {
	page, size := response.GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), repository.MaterialListParams{
		Keyword:    c.Query("keyword"),
		Category:   c.Query("category"),
		SupplierID: c.Query("supplier_id"),
		LowStock:   c.Query("low_stock") == "true",
		Page:       page,
		Size:       size,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.List(c, items, total, page, size)
}

// Create POST /api/materials
func (h *MaterialHandler) Create(c *gin.Context) {
	var req service.CreateMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	m, err := h.svc.Create(c.Request.Context(), req, response.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, m)
}

// Get GET /api/materials/:material_id
func (h *MaterialHandler) Get(c *gin.Context) {
	m, err := h.svc.Get(c.Request.Context(), c.Param("material_id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, m)
}

// Update PUT /api/materials/:material_id
func (h *MaterialHandler) Update(c *gin.Context) {
	var req service.UpdateMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	m, err := h.svc.Update(c.Request.Context(), c.Param("material_id"), req, response.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, m)
}

// Delete DELETE /api/materials/:material_id
func (h *MaterialHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("material_id"), response.GetUserID(c)); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, nil)
}

// AddStock POST /api/materials/:material_id/add-stock
func (h *MaterialHandler) AddStock(c *gin.Context) {
	var req service.StockChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	m, err := h.ledger.AddStock(c.Request.Context(), c.Param("material_id"), req, response.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, m)
}

// Consume POST /api/materials/:material_id/consume
func (h *MaterialHandler) Consume(c *gin.Context) {
	var req service.StockChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	m, err := h.ledger.ConsumeStock(c.Request.Context(), c.Param("material_id"), req, response.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, m)
}

// Alerts GET /api/materials/alerts
func (h *MaterialHandler) Alerts(c *gin.Context) {
	alerts, err := h.svc.GetAlerts(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, alerts)
}

// Export GET /api/materials/export
func (h *MaterialHandler) Export(c *gin.Context) {
	f, filename, err := h.report.ExportStock(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		_ = c.Error(err)
	}
}

// Transactions GET /api/transactions
func (h *MaterialHandler) Transactions(c *gin.Context) {
	page, size := response.GetPagination(c)
	txs, total, err := h.svc.ListTransactions(c.Request.Context(), repository.TransactionListParams{
		MaterialID:      c.Query("material_id"),
		TransactionType: c.Query("type"),
		ReferenceID:     c.Query("reference_id"),
		Page:            page,
		Size:            size,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.List(c, txs, total, page, size)
}
