package service

import (
	"context"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/inventory/entity"
	"github.com/bitfantasy/nimo-mes/internal/inventory/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type MaterialService struct {
	repos  *repository.Repositories
	logger *zap.Logger
}

func NewMaterialService(repos *repository.Repositories, logger *zap.Logger) *MaterialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaterialService{repos: repos, logger: logger}
}

type CreateMaterialRequest struct {
	MaterialID    string          `json:"material_id" binding:"required,max=64"`
	Name          string          `json:"name" binding:"required,max=200"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	UnitOfMeasure string          `json:"unit_of_measure"`
	CurrentStock  decimal.Decimal `json:"current_stock" binding:"gte=0"`
	MinimumStock  decimal.Decimal `json:"minimum_stock" binding:"gte=0"`
	StandardCost  decimal.Decimal `json:"standard_cost" binding:"gte=0"`
	SupplierID    *string         `json:"supplier_id"`
	Location      string          `json:"location"`
}

// UpdateMaterialRequest 更新物料。CurrentStock 非空时按盘点数调整库存。
type UpdateMaterialRequest struct {
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	Category      *string          `json:"category"`
	UnitOfMeasure *string          `json:"unit_of_measure"`
	CurrentStock  *decimal.Decimal `json:"current_stock"`
	MinimumStock  *decimal.Decimal `json:"minimum_stock"`
	StandardCost  *decimal.Decimal `json:"standard_cost"`
	SupplierID    *string          `json:"supplier_id"`
	Location      *string          `json:"location"`
	Notes         string           `json:"notes"`
}

func (s *MaterialService) checkSupplier(ctx context.Context, r *repository.Repositories, supplierID *string) error {
	if supplierID == nil || *supplierID == "" {
		return nil
	}
	if _, err := r.Supplier.FindByID(ctx, *supplierID); err != nil {
		return err
	}
	return nil
}

func (s *MaterialService) Create(ctx context.Context, req CreateMaterialRequest, userID string) (*entity.Material, error) {
	req.MaterialID = strings.TrimSpace(req.MaterialID)
	if req.MaterialID == "" {
		return nil, apperr.Validation("material_id is required")
	}
	if req.CurrentStock.IsNegative() || req.MinimumStock.IsNegative() || req.StandardCost.IsNegative() {
		return nil, apperr.Validation("quantities must not be negative")
	}
	for field, q := range map[string]decimal.Decimal{
		"current_stock": req.CurrentStock, "minimum_stock": req.MinimumStock, "standard_cost": req.StandardCost,
	} {
		if err := entity.CheckScale(field, q); err != nil {
			return nil, err
		}
	}
	unit := req.UnitOfMeasure
	if unit == "" {
		unit = "pcs"
	}
	if req.SupplierID != nil && *req.SupplierID == "" {
		req.SupplierID = nil
	}

	m := &entity.Material{
		ID:             uuid.New().String(),
		MaterialID:     req.MaterialID,
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		UnitOfMeasure:  unit,
		CurrentStock:   req.CurrentStock,
		ReservedStock:  decimal.Zero,
		AvailableStock: req.CurrentStock,
		MinimumStock:   req.MinimumStock,
		StandardCost:   req.StandardCost,
		SupplierID:     req.SupplierID,
		Location:       req.Location,
		Version:        1,
		CreatedBy:      userID,
		UpdatedBy:      userID,
	}

	err := s.repos.InTx(ctx, func(r *repository.Repositories) error {
		exists, err := r.Material.ExistsByMaterialID(ctx, m.MaterialID)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Conflict("material %s already exists", m.MaterialID)
		}
		if err := s.checkSupplier(ctx, r, m.SupplierID); err != nil {
			return err
		}
		if err := r.Material.Create(ctx, m); err != nil {
			return err
		}
		if m.CurrentStock.IsPositive() {
			tx := newTransaction(m, entity.TxTypeReceipt, m.CurrentStock, entity.RefTypeManual, "", "opening balance", userID)
			return r.Transaction.Create(ctx, tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("material created", zap.String("material_id", m.MaterialID), zap.String("user_id", userID))
	return m, nil
}

func (s *MaterialService) Get(ctx context.Context, materialID string) (*entity.Material, error) {
	return s.repos.Material.GetByMaterialID(ctx, materialID)
}

func (s *MaterialService) List(ctx context.Context, params repository.MaterialListParams) ([]entity.Material, int64, error) {
	return s.repos.Material.List(ctx, params)
}

func (s *MaterialService) Update(ctx context.Context, materialID string, req UpdateMaterialRequest, userID string) (*entity.Material, error) {
	var out *entity.Material
	err := s.repos.InTx(ctx, func(r *repository.Repositories) error {
		m, err := r.Material.LockForUpdate(ctx, materialID)
		if err != nil {
			return err
		}

		fields := map[string]interface{}{"updated_by": userID}
		if req.Name != nil {
			if strings.TrimSpace(*req.Name) == "" {
				return apperr.Validation("name must not be empty")
			}
			m.Name = *req.Name
			fields["name"] = m.Name
		}
		if req.Description != nil {
			m.Description = *req.Description
			fields["description"] = m.Description
		}
		if req.Category != nil {
			m.Category = *req.Category
			fields["category"] = m.Category
		}
		if req.UnitOfMeasure != nil {
			m.UnitOfMeasure = *req.UnitOfMeasure
			fields["unit_of_measure"] = m.UnitOfMeasure
		}
		if req.MinimumStock != nil {
			if req.MinimumStock.IsNegative() {
				return apperr.Validation("minimum_stock must not be negative")
			}
			if err := entity.CheckScale("minimum_stock", *req.MinimumStock); err != nil {
				return err
			}
			m.MinimumStock = *req.MinimumStock
			fields["minimum_stock"] = m.MinimumStock
		}
		if req.StandardCost != nil {
			if req.StandardCost.IsNegative() {
				return apperr.Validation("standard_cost must not be negative")
			}
			if err := entity.CheckScale("standard_cost", *req.StandardCost); err != nil {
				return err
			}
			m.StandardCost = *req.StandardCost
			fields["standard_cost"] = m.StandardCost
		}
		if req.SupplierID != nil {
			if *req.SupplierID == "" {
				m.SupplierID = nil
			} else {
				if err := s.checkSupplier(ctx, r, req.SupplierID); err != nil {
					return err
				}
				m.SupplierID = req.SupplierID
			}
			fields["supplier_id"] = m.SupplierID
		}
		if req.Location != nil {
			m.Location = *req.Location
			fields["location"] = m.Location
		}

		var adjustTx *entity.InventoryTransaction
		if req.CurrentStock != nil {
			delta, err := m.Adjust(*req.CurrentStock)
			if err != nil {
				return err
			}
			fields["current_stock"] = m.CurrentStock
			fields["available_stock"] = m.AvailableStock
			if !delta.IsZero() {
				adjustTx = newTransaction(m, entity.TxTypeAdjustment, delta, entity.RefTypeManual, "", req.Notes, userID)
			}
		}

		if err := r.Material.UpdateFields(ctx, m, fields); err != nil {
			return err
		}
		if adjustTx != nil {
			if err := r.Transaction.Create(ctx, adjustTx); err != nil {
				return err
			}
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete soft-deletes a material. Materials with reserved stock cannot be
// deleted.
func (s *MaterialService) Delete(ctx context.Context, materialID, userID string) error {
	err := s.repos.InTx(ctx, func(r *repository.Repositories) error {
		m, err := r.Material.LockForUpdate(ctx, materialID)
		if err != nil {
			return err
		}
		if m.ReservedStock.IsPositive() {
			return apperr.Conflict("material %s has %s reserved and cannot be deleted",
				m.MaterialID, m.ReservedStock.StringFixed(2))
		}
		active, err := r.Reservation.CountActiveByMaterial(ctx, materialID)
		if err != nil {
			return err
		}
		if active > 0 {
			return apperr.Conflict("material %s is referenced by %d active reservations", materialID, active)
		}
		return r.Material.SoftDelete(ctx, m.ID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("material deleted", zap.String("material_id", materialID), zap.String("user_id", userID))
	return nil
}

func (s *MaterialService) GetAlerts(ctx context.Context) ([]entity.Material, error) {
	return s.repos.Material.GetAlerts(ctx)
}

func (s *MaterialService) ListTransactions(ctx context.Context, params repository.TransactionListParams) ([]entity.InventoryTransaction, int64, error) {
	return s.repos.Transaction.List(ctx, params)
}
