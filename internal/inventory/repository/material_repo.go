package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/inventory/entity"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MaterialRepository struct {
	db *gorm.DB
}

func NewMaterialRepository(db *gorm.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

func (r *MaterialRepository) Create(ctx context.Context, m *entity.Material) error {
	err := r.db.WithContext(ctx).Create(m).Error
	return conflictOnDuplicate(err, "material %s already exists", m.MaterialID)
}

// GetByMaterialID 按物料编号查询
func (r *MaterialRepository) GetByMaterialID(ctx context.Context, materialID string) (*entity.Material, error) {
	var m entity.Material
	err := r.db.WithContext(ctx).Preload("Supplier").
		Where("material_id = ? AND deleted_at IS NULL", materialID).
		First(&m).Error
	if err != nil {
		return nil, notFoundOr(err, "material %s not found", materialID)
	}
	return &m, nil
}

// ExistsByMaterialID reports whether a live material uses the id.
func (r *MaterialRepository) ExistsByMaterialID(ctx context.Context, materialID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Material{}).
		Where("material_id = ? AND deleted_at IS NULL", materialID).
		Count(&count).Error
	return count > 0, err
}

// LockForUpdate loads one material with SELECT ... FOR UPDATE.
// Only meaningful inside a transaction.
func (r *MaterialRepository) LockForUpdate(ctx context.Context, materialID string) (*entity.Material, error) {
	var m entity.Material
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("material_id = ? AND deleted_at IS NULL", materialID).
		First(&m).Error
	if err != nil {
		return nil, notFoundOr(err, "material %s not found", materialID)
	}
	return &m, nil
}

// LockMany locks the given materials in the order given and returns those
// found, keyed by material id. Callers pass ids sorted so concurrent
// reservations acquire locks in the same order.
func (r *MaterialRepository) LockMany(ctx context.Context, materialIDs []string) (map[string]*entity.Material, error) {
	out := make(map[string]*entity.Material, len(materialIDs))
	for _, id := range materialIDs {
		m, err := r.LockForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out[id] = m
	}
	return out, nil
}

// SaveStock writes the stock columns if the row still has the version the
// caller read. The in-memory version is bumped on success.
func (r *MaterialRepository) SaveStock(ctx context.Context, m *entity.Material, updatedBy string) error {
	res := r.db.WithContext(ctx).Model(&entity.Material{}).
		Where("id = ? AND version = ?", m.ID, m.Version).
		Updates(map[string]interface{}{
			"current_stock":   m.CurrentStock,
			"reserved_stock":  m.ReservedStock,
			"available_stock": m.AvailableStock,
			"version":         m.Version + 1,
			"updated_by":      updatedBy,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("material %s was modified concurrently", m.MaterialID)
	}
	m.Version++
	return nil
}

// UpdateFields updates descriptive columns under the same version check.
func (r *MaterialRepository) UpdateFields(ctx context.Context, m *entity.Material, fields map[string]interface{}) error {
	fields["version"] = m.Version + 1
	fields["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).Model(&entity.Material{}).
		Where("id = ? AND version = ?", m.ID, m.Version).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("material %s was modified concurrently", m.MaterialID)
	}
	m.Version++
	return nil
}

func (r *MaterialRepository) SoftDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&entity.Material{}).
		Where("id = ?", id).
		Update("deleted_at", time.Now()).Error
}

type MaterialListParams struct {
	Keyword    string
	Category   string
	SupplierID string
	LowStock   bool
	Page       int
	Size       int
}

func (r *MaterialRepository) List(ctx context.Context, params MaterialListParams) ([]entity.Material, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Material{}).Where("deleted_at IS NULL")
	if params.Keyword != "" {
		kw := "%" + params.Keyword + "%"
		query = query.Where("material_id ILIKE ? OR name ILIKE ?", kw, kw)
	}
	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}
	if params.SupplierID != "" {
		query = query.Where("supplier_id = ?", params.SupplierID)
	}
	if params.LowStock {
		query = query.Where("available_stock < minimum_stock AND minimum_stock > 0")
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page, size := normalizePage(params.Page, params.Size)
	var items []entity.Material
	err := query.Preload("Supplier").Order("material_id ASC").
		Offset((page - 1) * size).Limit(size).Find(&items).Error
	return items, total, err
}

// ListAll returns every live material, for reports.
func (r *MaterialRepository) ListAll(ctx context.Context) ([]entity.Material, error) {
	var items []entity.Material
	err := r.db.WithContext(ctx).Preload("Supplier").
		Where("deleted_at IS NULL").
		Order("material_id ASC").
		Find(&items).Error
	return items, err
}

// GetAlerts 获取低于最低库存的物料
func (r *MaterialRepository) GetAlerts(ctx context.Context) ([]entity.Material, error) {
	var alerts []entity.Material
	err := r.db.WithContext(ctx).
		Where("available_stock < minimum_stock AND minimum_stock > 0 AND deleted_at IS NULL").
		Order("material_id ASC").
		Find(&alerts).Error
	return alerts, err
}

// CountBySupplier counts live materials referencing a supplier.
func (r *MaterialRepository) CountBySupplier(ctx context.Context, supplierID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Material{}).
		Where("supplier_id = ? AND deleted_at IS NULL", supplierID).
		Count(&count).Error
	return count, err
}
