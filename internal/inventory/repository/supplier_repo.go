package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/inventory/entity"
	"gorm.io/gorm"
)

type SupplierRepository struct {
	db *gorm.DB
}

func NewSupplierRepository(db *gorm.DB) *SupplierRepository {
	return &SupplierRepository{db: db}
}

func (r *SupplierRepository) Create(ctx context.Context, s *entity.Supplier) error {
	err := r.db.WithContext(ctx).Create(s).Error
	return conflictOnDuplicate(err, "supplier code %s already exists", s.SupplierCode)
}

func (r *SupplierRepository) FindByID(ctx context.Context, id string) (*entity.Supplier, error) {
	var s entity.Supplier
	err := r.db.WithContext(ctx).Where("id = ? AND deleted_at IS NULL", id).First(&s).Error
	if err != nil {
		return nil, notFoundOr(err, "supplier %s not found", id)
	}
	return &s, nil
}

func (r *SupplierRepository) Update(ctx context.Context, s *entity.Supplier) error {
	err := r.db.WithContext(ctx).Save(s).Error
	return conflictOnDuplicate(err, "supplier code %s already exists", s.SupplierCode)
}

func (r *SupplierRepository) SoftDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&entity.Supplier{}).
		Where("id = ?", id).
		Update("deleted_at", time.Now()).Error
}

func (r *SupplierRepository) List(ctx context.Context, keyword, status string, page, size int) ([]entity.Supplier, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Supplier{}).Where("deleted_at IS NULL")
	if keyword != "" {
		kw := "%" + keyword + "%"
		query = query.Where("supplier_code ILIKE ? OR name ILIKE ?", kw, kw)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page, size = normalizePage(page, size)
	var items []entity.Supplier
	err := query.Order("supplier_code ASC").Offset((page - 1) * size).Limit(size).Find(&items).Error
	return items, total, err
}
