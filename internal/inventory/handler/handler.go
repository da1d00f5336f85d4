package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/inventory/service"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers 库存 HTTP 处理器集合
type Handlers struct {
	Material    *MaterialHandler
	Reservation *ReservationHandler
	Supplier    *SupplierHandler
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		Material:    NewMaterialHandler(services.Material, services.Ledger, services.Report),
		Reservation: NewReservationHandler(services.Ledger),
		Supplier:    NewSupplierHandler(services.Supplier),
	}
}

// RegisterRoutes mounts the inventory API under /api behind auth.
func RegisterRoutes(r gin.IRouter, h *Handlers, auth gin.HandlerFunc) {
	api := r.Group("/api", auth)

	read := middleware.RequirePermission("materials:read")
	write := middleware.RequirePermission("materials:write")
	reserve := middleware.RequirePermission("reservations:write")

	materials := api.Group("/materials")
	{
		materials.GET("", read, h.Material.List)
		materials.POST("", write, h.Material.Create)
		materials.GET("/alerts", read, h.Material.Alerts)
		materials.GET("/export", read, h.Material.Export)
		materials.GET("/:material_id", read, h.Material.Get)
		materials.PUT("/:material_id", write, h.Material.Update)
		materials.DELETE("/:material_id", write, h.Material.Delete)
		materials.POST("/:material_id/add-stock", write, h.Material.AddStock)
		materials.POST("/:material_id/consume", write, h.Material.Consume)
	}

	reservations := api.Group("/reservations")
	{
		reservations.GET("", read, h.Reservation.List)
		reservations.POST("", reserve, h.Reservation.Create)
		reservations.GET("/:id", read, h.Reservation.Get)
		reservations.GET("/batch/:batch_id", read, h.Reservation.GetByBatch)
		reservations.POST("/batch/:batch_id/release", reserve, h.Reservation.Release)
		reservations.POST("/batch/:batch_id/issue", reserve, h.Reservation.Issue)
	}

	suppliers := api.Group("/suppliers")
	{
		suppliers.GET("", read, h.Supplier.List)
		suppliers.POST("", write, h.Supplier.Create)
		suppliers.GET("/:id", read, h.Supplier.Get)
		suppliers.PUT("/:id", write, h.Supplier.Update)
		suppliers.DELETE("/:id", write, h.Supplier.Delete)
	}

	api.GET("/transactions", read, h.Material.Transactions)
}
