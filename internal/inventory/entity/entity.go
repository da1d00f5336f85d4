package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType 库存交易类型
const (
	TxTypeReceipt     = "RECEIPT"     // 入库
	TxTypeConsumption = "CONSUMPTION" // 领用
	TxTypeReservation = "RESERVATION" // 预留
	TxTypeRelease     = "RELEASE"     // 释放预留
	TxTypeIssue       = "ISSUE"       // 预留发料
	TxTypeAdjustment  = "ADJUSTMENT"  // 库存调整
)

// ReferenceType 交易关联单据类型
const (
	RefTypeManual      = "MANUAL"
	RefTypeReservation = "RESERVATION"
	RefTypeBatch       = "BATCH"
)

// Material 物料及其库存
type Material struct {
	ID             string          `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	MaterialID     string          `json:"material_id" gorm:"size:64;not null;uniqueIndex:idx_inv_materials_material_id,where:deleted_at IS NULL"`
	Name           string          `json:"name" gorm:"size:200;not null"`
	Description    string          `json:"description" gorm:"type:text"`
	Category       string          `json:"category" gorm:"size:50"`
	UnitOfMeasure  string          `json:"unit_of_measure" gorm:"size:20;not null;default:pcs"`
	CurrentStock   decimal.Decimal `json:"current_stock" gorm:"type:decimal(14,4);not null;default:0"`
	ReservedStock  decimal.Decimal `json:"reserved_stock" gorm:"type:decimal(14,4);not null;default:0"`
	AvailableStock decimal.Decimal `json:"available_stock" gorm:"type:decimal(14,4);not null;default:0"`
	MinimumStock   decimal.Decimal `json:"minimum_stock" gorm:"type:decimal(14,4);not null;default:0"`
	StandardCost   decimal.Decimal `json:"standard_cost" gorm:"type:decimal(14,4);not null;default:0"`
	SupplierID     *string         `json:"supplier_id" gorm:"type:uuid;index"`
	Location       string          `json:"location" gorm:"size:100"`
	Version        int64           `json:"version" gorm:"not null;default:1"`
	CreatedBy      string          `json:"created_by" gorm:"size:64"`
	UpdatedBy      string          `json:"updated_by" gorm:"size:64"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty" gorm:"index"`

	Supplier *Supplier `json:"supplier,omitempty" gorm:"foreignKey:SupplierID"`
}

func (Material) TableName() string {
	return "inv_materials"
}

// IsLowStock reports whether available stock has fallen under the minimum.
func (m *Material) IsLowStock() bool {
	return m.MinimumStock.IsPositive() && m.AvailableStock.LessThan(m.MinimumStock)
}

// Supplier 供应商
const (
	SupplierStatusActive   = "ACTIVE"
	SupplierStatusInactive = "INACTIVE"
)

type Supplier struct {
	ID           string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	SupplierCode string     `json:"supplier_code" gorm:"size:50;not null;uniqueIndex:idx_inv_suppliers_code,where:deleted_at IS NULL"`
	Name         string     `json:"name" gorm:"size:200;not null"`
	ContactName  string     `json:"contact_name" gorm:"size:100"`
	Phone        string     `json:"phone" gorm:"size:30"`
	Email        string     `json:"email" gorm:"size:100"`
	Address      string     `json:"address" gorm:"size:500"`
	LeadTimeDays int        `json:"lead_time_days" gorm:"default:0"`
	Status       string     `json:"status" gorm:"size:20;not null;default:ACTIVE"`
	Notes        string     `json:"notes" gorm:"type:text"`
	CreatedBy    string     `json:"created_by" gorm:"size:64"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" gorm:"index"`
}

func (Supplier) TableName() string {
	return "inv_suppliers"
}

// InventoryTransaction 库存交易流水。Quantity 正数为入，负数为出；
// 预留/释放不改变现存量，记录预留量变化。
type InventoryTransaction struct {
	ID              string          `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	MaterialID      string          `json:"material_id" gorm:"size:64;not null;index"`
	TransactionType string          `json:"transaction_type" gorm:"size:20;not null"`
	Quantity        decimal.Decimal `json:"quantity" gorm:"type:decimal(14,4);not null"`
	CurrentAfter    decimal.Decimal `json:"current_after" gorm:"type:decimal(14,4);not null"`
	ReservedAfter   decimal.Decimal `json:"reserved_after" gorm:"type:decimal(14,4);not null"`
	ReferenceType   string          `json:"reference_type" gorm:"size:50;not null"`
	ReferenceID     string          `json:"reference_id" gorm:"size:64"`
	Notes           string          `json:"notes" gorm:"type:text"`
	CreatedBy       string          `json:"created_by" gorm:"size:64"`
	CreatedAt       time.Time       `json:"created_at" gorm:"index"`
}

func (InventoryTransaction) TableName() string {
	return "inv_transactions"
}
