package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/production/entity"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type FeedbackRepository struct {
	db *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) Create(ctx context.Context, fb *entity.ProductionFeedback) error {
	return r.db.WithContext(ctx).Create(fb).Error
}

type FeedbackListParams struct {
	BatchID    string
	ReportedBy string
	Page       int
	Size       int
}

func (r *FeedbackRepository) List(ctx context.Context, params FeedbackListParams) ([]entity.ProductionFeedback, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.ProductionFeedback{})
	if params.BatchID != "" {
		query = query.Where("batch_id = ?", params.BatchID)
	}
	if params.ReportedBy != "" {
		query = query.Where("reported_by = ?", params.ReportedBy)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := normalizePage(params.Page, params.Size)
	var items []entity.ProductionFeedback
	err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&items).Error
	return items, total, err
}

// Summary 汇总批次反馈
func (r *FeedbackRepository) Summary(ctx context.Context, batchID string) (*entity.FeedbackSummary, error) {
	var row struct {
		Entries          int64
		QuantityProduced decimal.Decimal
		QuantityScrapped decimal.Decimal
		AverageRating    decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&entity.ProductionFeedback{}).
		Select(`COUNT(*) AS entries,
			COALESCE(SUM(quantity_produced), 0) AS quantity_produced,
			COALESCE(SUM(quantity_scrapped), 0) AS quantity_scrapped,
			COALESCE(AVG(NULLIF(quality_rating, 0)), 0) AS average_rating`).
		Where("batch_id = ?", batchID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return entity.NewFeedbackSummary(batchID, row.Entries, row.QuantityProduced, row.QuantityScrapped, row.AverageRating), nil
}
