package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus 预留状态
const (
	ReservationStatusPending  = "pending"
	ReservationStatusReserved = "reserved"
	ReservationStatusReleased = "released"
	ReservationStatusConsumed = "consumed"
)

// Reservation 生产批次的物料预留。一个批次同时最多只有一条 reserved 记录。
type Reservation struct {
	ID         uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	BatchID    string     `json:"batch_id" gorm:"size:64;not null;index;uniqueIndex:idx_inv_reservations_active_batch,where:status = 'reserved'"`
	Status     string     `json:"status" gorm:"size:20;not null;default:pending"`
	Notes      string     `json:"notes" gorm:"type:text"`
	CreatedBy  string     `json:"created_by" gorm:"size:64"`
	ReleasedBy string     `json:"released_by,omitempty" gorm:"size:64"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Items []ReservationItem `json:"items" gorm:"foreignKey:ReservationID"`
}

func (Reservation) TableName() string {
	return "inv_reservations"
}

// Lines returns the reservation's items as ledger lines.
func (r *Reservation) Lines() []Line {
	lines := make([]Line, 0, len(r.Items))
	for _, item := range r.Items {
		lines = append(lines, Line{MaterialID: item.MaterialID, Quantity: item.QuantityReserved})
	}
	return lines
}

type ReservationItem struct {
	ID               uint            `json:"-" gorm:"primaryKey;autoIncrement"`
	ReservationID    uint            `json:"-" gorm:"not null;index"`
	LineNo           int             `json:"line_no" gorm:"not null"`
	MaterialID       string          `json:"material_id" gorm:"size:64;not null"`
	QuantityReserved decimal.Decimal `json:"quantity_reserved" gorm:"type:decimal(14,4);not null"`
	UnitOfMeasure    string          `json:"unit_of_measure" gorm:"size:20"`
}

func (ReservationItem) TableName() string {
	return "inv_reservation_items"
}
