package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/inventory/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// Create inserts the reservation with its items.
func (r *ReservationRepository) Create(ctx context.Context, res *entity.Reservation) error {
	err := r.db.WithContext(ctx).Create(res).Error
	return conflictOnDuplicate(err, "batch %s already has an active reservation", res.BatchID)
}

func (r *ReservationRepository) FindByID(ctx context.Context, id uint) (*entity.Reservation, error) {
	var res entity.Reservation
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		First(&res, id).Error
	if err != nil {
		return nil, notFoundOr(err, "reservation %d not found", id)
	}
	return &res, nil
}

// FindLatestByBatch returns the newest reservation of a batch in any status.
func (r *ReservationRepository) FindLatestByBatch(ctx context.Context, batchID string) (*entity.Reservation, error) {
	var res entity.Reservation
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		Where("batch_id = ?", batchID).
		Order("id DESC").
		First(&res).Error
	if err != nil {
		return nil, notFoundOr(err, "no reservation for batch %s", batchID)
	}
	return &res, nil
}

// LockActiveByBatch locks the batch's reserved reservation for update.
func (r *ReservationRepository) LockActiveByBatch(ctx context.Context, batchID string) (*entity.Reservation, error) {
	var res entity.Reservation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("batch_id = ? AND status = ?", batchID, entity.ReservationStatusReserved).
		First(&res).Error
	if err != nil {
		return nil, notFoundOr(err, "no active reservation for batch %s", batchID)
	}
	if err := r.db.WithContext(ctx).Where("reservation_id = ?", res.ID).Order("line_no ASC").Find(&res.Items).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *ReservationRepository) HasActive(ctx context.Context, batchID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Reservation{}).
		Where("batch_id = ? AND status = ?", batchID, entity.ReservationStatusReserved).
		Count(&count).Error
	return count > 0, err
}

// CountActiveByMaterial counts reserved reservations holding a material.
func (r *ReservationRepository) CountActiveByMaterial(ctx context.Context, materialID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.ReservationItem{}).
		Joins("JOIN inv_reservations ON inv_reservations.id = inv_reservation_items.reservation_id").
		Where("inv_reservation_items.material_id = ? AND inv_reservations.status = ?", materialID, entity.ReservationStatusReserved).
		Count(&count).Error
	return count, err
}

func (r *ReservationRepository) UpdateStatus(ctx context.Context, res *entity.Reservation, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(res).Updates(fields).Error
}

type ReservationListParams struct {
	BatchID string
	Status  string
	Page    int
	Size    int
}

func (r *ReservationRepository) List(ctx context.Context, params ReservationListParams) ([]entity.Reservation, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Reservation{})
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
	var items []entity.Reservation
	err := query.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		Order("id DESC").
		Offset((page - 1) * size).Limit(size).Find(&items).Error
	return items, total, err
}
