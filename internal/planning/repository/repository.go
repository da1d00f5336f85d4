package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/planning/entity"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Repositories 计划仓库集合
type Repositories struct {
	db   *gorm.DB
	Plan *PlanRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:   db,
		Plan: NewPlanRepository(db),
	}
}

type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// Create inserts the plan with its items.
func (r *PlanRepository) Create(ctx context.Context, plan *entity.ProductionPlan) error {
	err := r.db.WithContext(ctx).Create(plan).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("batch %s already has an active plan", plan.BatchID)
	}
	return err
}

func (r *PlanRepository) FindByID(ctx context.Context, id string) (*entity.ProductionPlan, error) {
	var plan entity.ProductionPlan
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id = ?", id).
		First(&plan).Error
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.Is(err, gorm.ErrRecordNotFound) || (errors.As(err, &pgErr) && pgErr.Code == "22P02") {
			return nil, apperr.NotFound("plan %s not found", id)
		}
		return nil, err
	}
	return &plan, nil
}

// HasActive reports whether the batch has a running or planned plan.
func (r *PlanRepository) HasActive(ctx context.Context, batchID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.ProductionPlan{}).
		Where("batch_id = ? AND status IN ?", batchID, []string{entity.PlanStatusRunning, entity.PlanStatusPlanned}).
		Count(&count).Error
	return count > 0, err
}

func (r *PlanRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	return r.db.WithContext(ctx).Model(&entity.ProductionPlan{}).Where("id = ?", id).Updates(fields).Error
}

// Transition moves the plan from one status to another, failing with a
// conflict when it is no longer in from.
func (r *PlanRepository) Transition(ctx context.Context, id, from, to string) error {
	res := r.db.WithContext(ctx).Model(&entity.ProductionPlan{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("plan %s is no longer %s", id, from)
	}
	return nil
}

func (r *PlanRepository) AddEvent(ctx context.Context, event *entity.PlanEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

type PlanListParams struct {
	BatchID   string
	MachineID string
	Status    string
	Page      int
	Size      int
}

func (r *PlanRepository) List(ctx context.Context, params PlanListParams) ([]entity.ProductionPlan, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.ProductionPlan{})
	if params.BatchID != "" {
		query = query.Where("batch_id = ?", params.BatchID)
	}
	if params.MachineID != "" {
		query = query.Where("machine_id = ?", params.MachineID)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := params.Page, params.Size
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	var items []entity.ProductionPlan
	err := query.Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&items).Error
	return items, total, err
}
