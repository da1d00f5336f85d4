package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/machinequeue/entity"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"gorm.io/gorm"
)

type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

func (r *QueueRepository) Create(ctx context.Context, e *entity.QueueEntry) error {
	err := r.db.WithContext(ctx).Create(e).Error
	return conflictOnDuplicate(err, "machine %s already has an entry in progress", e.MachineID)
}

func (r *QueueRepository) FindByID(ctx context.Context, queueID string) (*entity.QueueEntry, error) {
	var e entity.QueueEntry
	err := r.db.WithContext(ctx).Where("queue_id = ?", queueID).First(&e).Error
	if err != nil {
		return nil, notFoundOr(err, "queue entry %s not found", queueID)
	}
	return &e, nil
}

// Line returns the waiting and paused entries of a machine by position.
func (r *QueueRepository) Line(ctx context.Context, machineID string) ([]*entity.QueueEntry, error) {
	var line []*entity.QueueEntry
	err := r.db.WithContext(ctx).
		Where("machine_id = ? AND status IN ?", machineID, []string{entity.QueueStatusWaiting, entity.QueueStatusPaused}).
		Order("position ASC, created_at ASC").
		Find(&line).Error
	return line, err
}

// Running returns the in-progress entry of a machine, or nil.
func (r *QueueRepository) Running(ctx context.Context, machineID string) (*entity.QueueEntry, error) {
	var running []entity.QueueEntry
	err := r.db.WithContext(ctx).
		Where("machine_id = ? AND status = ?", machineID, entity.QueueStatusInProgress).
		Limit(1).
		Find(&running).Error
	if err != nil || len(running) == 0 {
		return nil, err
	}
	return &running[0], nil
}

// Save writes the mutable columns when the version still matches.
func (r *QueueRepository) Save(ctx context.Context, e *entity.QueueEntry) error {
	res := r.db.WithContext(ctx).Model(&entity.QueueEntry{}).
		Where("queue_id = ? AND version = ?", e.QueueID, e.Version).
		Updates(map[string]interface{}{
			"position":      e.Position,
			"status":        e.Status,
			"actual_start":  e.ActualStart,
			"actual_end":    e.ActualEnd,
			"cancel_reason": e.CancelReason,
			"version":       e.Version + 1,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return conflictOnDuplicate(res.Error, "machine %s already has an entry in progress", e.MachineID)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("queue entry %s was modified concurrently", e.QueueID)
	}
	e.Version++
	return nil
}

// SaveLine persists entries whose position differs from before.
func (r *QueueRepository) SaveLine(ctx context.Context, line []*entity.QueueEntry, before map[string]int) error {
	for _, e := range line {
		if old, ok := before[e.QueueID]; ok && old == e.Position {
			continue
		}
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *QueueRepository) HasActive(ctx context.Context, machineID, batchID, stepID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.QueueEntry{}).
		Where("machine_id = ? AND batch_id = ? AND step_id = ? AND status IN ?", machineID, batchID, stepID,
			[]string{entity.QueueStatusWaiting, entity.QueueStatusInProgress, entity.QueueStatusPaused}).
		Count(&count).Error
	return count > 0, err
}

func (r *QueueRepository) CountActive(ctx context.Context, machineID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.QueueEntry{}).
		Where("machine_id = ? AND status IN ?", machineID,
			[]string{entity.QueueStatusWaiting, entity.QueueStatusInProgress, entity.QueueStatusPaused}).
		Count(&count).Error
	return count, err
}

type QueueListParams struct {
	MachineID string
	BatchID   string
	Status    string
	Page      int
	Size      int
}

func (r *QueueRepository) List(ctx context.Context, params QueueListParams) ([]entity.QueueEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.QueueEntry{})
	if params.MachineID != "" {
		query = query.Where("machine_id = ?", params.MachineID)
	}
	if params.BatchID != "" {
		query = query.Where("batch_id = ?", params.BatchID)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := normalizePage(params.Page, params.Size)
	var items []entity.QueueEntry
	err := query.Order("machine_id, position ASC, created_at ASC").Offset((page - 1) * size).Limit(size).Find(&items).Error
	return items, total, err
}
