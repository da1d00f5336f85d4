package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/production/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func orderedSteps(db *gorm.DB) *gorm.DB {
	return db.Order("sequence ASC")
}

// GenerateNumber 生成批次号 B-{yyyymmdd}-{4位}
func (r *BatchRepository) GenerateNumber(ctx context.Context) (string, error) {
	return nextCode(ctx, r.db, &entity.ProductionBatch{}, "batch_number", "B", time.Now())
}

// Create inserts the batch and its steps.
func (r *BatchRepository) Create(ctx context.Context, b *entity.ProductionBatch) error {
	err := r.db.WithContext(ctx).Create(b).Error
	return conflictOnDuplicate(err, "batch number %s already exists", b.BatchNumber)
}

func (r *BatchRepository) FindByID(ctx context.Context, id string) (*entity.ProductionBatch, error) {
	var b entity.ProductionBatch
	err := r.db.WithContext(ctx).
		Preload("Steps", orderedSteps).
		Where("id = ?", id).
		First(&b).Error
	if err != nil {
		return nil, notFoundOr(err, "batch %s not found", id)
	}
	return &b, nil
}

// LockByID reads the batch FOR UPDATE, then loads its steps.
func (r *BatchRepository) LockByID(ctx context.Context, id string) (*entity.ProductionBatch, error) {
	var b entity.ProductionBatch
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&b).Error
	if err != nil {
		return nil, notFoundOr(err, "batch %s not found", id)
	}
	if err := orderedSteps(r.db.WithContext(ctx)).Where("batch_id = ?", b.ID).Find(&b.Steps).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// Save writes the batch row only; steps are saved through StepRepository.
func (r *BatchRepository) Save(ctx context.Context, b *entity.ProductionBatch) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(b).Error
}

type BatchListParams struct {
	RequestID string
	Status    string
	Page      int
	Size      int
}

func (r *BatchRepository) List(ctx context.Context, params BatchListParams) ([]entity.ProductionBatch, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.ProductionBatch{})
	if params.RequestID != "" {
		query = query.Where("request_id = ?", params.RequestID)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := normalizePage(params.Page, params.Size)
	var items []entity.ProductionBatch
	err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&items).Error
	return items, total, err
}
