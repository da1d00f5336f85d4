package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/production/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// GenerateNumber 生成申请编号 PR-{yyyymmdd}-{4位}
func (r *RequestRepository) GenerateNumber(ctx context.Context) (string, error) {
	return nextCode(ctx, r.db, &entity.ProductionRequest{}, "request_number", "PR", time.Now())
}

func (r *RequestRepository) Create(ctx context.Context, req *entity.ProductionRequest) error {
	err := r.db.WithContext(ctx).Create(req).Error
	return conflictOnDuplicate(err, "request number %s already exists", req.RequestNumber)
}

func (r *RequestRepository) FindByID(ctx context.Context, id string) (*entity.ProductionRequest, error) {
	var req entity.ProductionRequest
	err := r.db.WithContext(ctx).
		Preload("Batches").
		Where("id = ? AND deleted_at IS NULL", id).
		First(&req).Error
	if err != nil {
		return nil, notFoundOr(err, "production request %s not found", id)
	}
	return &req, nil
}

// LockByID 加行锁读取
func (r *RequestRepository) LockByID(ctx context.Context, id string) (*entity.ProductionRequest, error) {
	var req entity.ProductionRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&req).Error
	if err != nil {
		return nil, notFoundOr(err, "production request %s not found", id)
	}
	return &req, nil
}

func (r *RequestRepository) Update(ctx context.Context, req *entity.ProductionRequest, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(req).Updates(fields).Error
}

type RequestListParams struct {
	Status      string
	Priority    string
	ProductCode string
	Page        int
	Size        int
}

func (r *RequestRepository) List(ctx context.Context, params RequestListParams) ([]entity.ProductionRequest, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.ProductionRequest{}).Where("deleted_at IS NULL")
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Priority != "" {
		query = query.Where("priority = ?", params.Priority)
	}
	if params.ProductCode != "" {
		query = query.Where("product_code = ?", params.ProductCode)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := normalizePage(params.Page, params.Size)
	var items []entity.ProductionRequest
	err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&items).Error
	return items, total, err
}
