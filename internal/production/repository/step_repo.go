package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/production/entity"
	"gorm.io/gorm"
)

type StepRepository struct {
	db *gorm.DB
}

func NewStepRepository(db *gorm.DB) *StepRepository {
	return &StepRepository{db: db}
}

func (r *StepRepository) Create(ctx context.Context, step *entity.ProductionStep) error {
	return r.db.WithContext(ctx).Create(step).Error
}

func (r *StepRepository) ListByBatch(ctx context.Context, batchID string) ([]entity.ProductionStep, error) {
	var steps []entity.ProductionStep
	err := orderedSteps(r.db.WithContext(ctx)).Where("batch_id = ?", batchID).Find(&steps).Error
	return steps, err
}

func (r *StepRepository) FindByID(ctx context.Context, batchID, stepID string) (*entity.ProductionStep, error) {
	var step entity.ProductionStep
	err := r.db.WithContext(ctx).Where("id = ? AND batch_id = ?", stepID, batchID).First(&step).Error
	if err != nil {
		return nil, notFoundOr(err, "step %s not found in batch %s", stepID, batchID)
	}
	return &step, nil
}

// NextSequence returns max(sequence)+1 for the batch.
func (r *StepRepository) NextSequence(ctx context.Context, batchID string) (int, error) {
	var maxSeq int
	err := r.db.WithContext(ctx).Model(&entity.ProductionStep{}).
		Select("COALESCE(MAX(sequence), 0)").
		Where("batch_id = ?", batchID).
		Scan(&maxSeq).Error
	return maxSeq + 1, err
}

func (r *StepRepository) Save(ctx context.Context, step *entity.ProductionStep) error {
	return r.db.WithContext(ctx).Save(step).Error
}
