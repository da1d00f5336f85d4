package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/machinequeue/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MachineRepository struct {
	db *gorm.DB
}

func NewMachineRepository(db *gorm.DB) *MachineRepository {
	return &MachineRepository{db: db}
}

func (r *MachineRepository) Create(ctx context.Context, m *entity.Machine) error {
	err := r.db.WithContext(ctx).Create(m).Error
	return conflictOnDuplicate(err, "machine code %s already exists", m.MachineCode)
}

func (r *MachineRepository) FindByID(ctx context.Context, id string) (*entity.Machine, error) {
	var m entity.Machine
	err := r.db.WithContext(ctx).Where("id = ? AND deleted_at IS NULL", id).First(&m).Error
	if err != nil {
		return nil, notFoundOr(err, "machine %s not found", id)
	}
	return &m, nil
}

// LockByID 锁定机台行，所有排队变更都在该锁下进行
func (r *MachineRepository) LockByID(ctx context.Context, id string) (*entity.Machine, error) {
	var m entity.Machine
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&m).Error
	if err != nil {
		return nil, notFoundOr(err, "machine %s not found", id)
	}
	return &m, nil
}

func (r *MachineRepository) Update(ctx context.Context, m *entity.Machine, fields map[string]interface{}) error {
	err := r.db.WithContext(ctx).Model(m).Updates(fields).Error
	return conflictOnDuplicate(err, "machine code already exists")
}

func (r *MachineRepository) SetStatus(ctx context.Context, m *entity.Machine, status string) error {
	if m.Status == status {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(m).Update("status", status).Error; err != nil {
		return err
	}
	m.Status = status
	return nil
}

func (r *MachineRepository) SoftDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&entity.Machine{}).
		Where("id = ?", id).
		Update("deleted_at", time.Now()).Error
}

type MachineListParams struct {
	Keyword     string
	MachineType string
	Status      string
	Page        int
	Size        int
}

func (r *MachineRepository) List(ctx context.Context, params MachineListParams) ([]entity.Machine, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Machine{}).Where("deleted_at IS NULL")
	if params.Keyword != "" {
		kw := "%" + params.Keyword + "%"
		query = query.Where("machine_code ILIKE ? OR name ILIKE ?", kw, kw)
	}
	if params.MachineType != "" {
		query = query.Where("machine_type = ?", params.MachineType)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := normalizePage(params.Page, params.Size)
	var items []entity.Machine
	err := query.Order("machine_code ASC").Offset((page - 1) * size).Limit(size).Find(&items).Error
	return items, total, err
}
