package entity

import (
	"time"

	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/shopspring/decimal"
)

// QuantityScale 数量小数位，与 decimal(14,4) 列一致
const QuantityScale = 4

// CheckQuantity rejects negative values and values with more fractional
// digits than the quantity columns store.
func CheckQuantity(field string, q decimal.Decimal) error {
	if q.IsNegative() {
		return apperr.Validation("%s must not be negative", field)
	}
	if !q.Equal(q.Truncate(QuantityScale)) {
		return apperr.Validation("%s %s has more than %d decimal places", field, q.String(), QuantityScale)
	}
	return nil
}

// RequestStatus 生产申请状态
const (
	RequestStatusPending   = "pending"
	RequestStatusApproved  = "approved"
	RequestStatusRejected  = "rejected"
	RequestStatusCancelled = "cancelled"
)

// Priority 优先级
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// ProductionRequest 生产申请
type ProductionRequest struct {
	ID            string          `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	RequestNumber string          `json:"request_number" gorm:"size:50;not null;uniqueIndex"`
	ProductCode   string          `json:"product_code" gorm:"size:64;not null;index"`
	ProductName   string          `json:"product_name" gorm:"size:200"`
	Quantity      decimal.Decimal `json:"quantity" gorm:"type:decimal(14,4);not null"`
	Priority      string          `json:"priority" gorm:"size:20;not null;default:normal"`
	DueDate       *time.Time      `json:"due_date"`
	Status        string          `json:"status" gorm:"size:20;not null;default:pending;index"`
	Notes         string          `json:"notes" gorm:"type:text"`
	RequestedBy   string          `json:"requested_by" gorm:"size:64;not null"`
	ApprovedBy    string          `json:"approved_by,omitempty" gorm:"size:64"`
	ApprovedAt    *time.Time      `json:"approved_at,omitempty"`
	RejectReason  string          `json:"reject_reason,omitempty" gorm:"type:text"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     *time.Time      `json:"deleted_at,omitempty" gorm:"index"`

	Batches []ProductionBatch `json:"batches,omitempty" gorm:"foreignKey:RequestID"`
}

func (ProductionRequest) TableName() string {
	return "prd_requests"
}

// ProductionFeedback 生产反馈
type ProductionFeedback struct {
	ID               string          `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	BatchID          string          `json:"batch_id" gorm:"type:uuid;not null;index"`
	StepID           *string         `json:"step_id,omitempty" gorm:"type:uuid"`
	QuantityProduced decimal.Decimal `json:"quantity_produced" gorm:"type:decimal(14,4);not null;default:0"`
	QuantityScrapped decimal.Decimal `json:"quantity_scrapped" gorm:"type:decimal(14,4);not null;default:0"`
	QualityRating    int             `json:"quality_rating" gorm:"not null;default:0"` // 1-5
	Issues           string          `json:"issues" gorm:"type:text"`
	Comments         string          `json:"comments" gorm:"type:text"`
	ReportedBy       string          `json:"reported_by" gorm:"size:64;not null"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (ProductionFeedback) TableName() string {
	return "prd_feedback"
}

// FeedbackSummary 批次反馈汇总
type FeedbackSummary struct {
	BatchID          string          `json:"batch_id"`
	Entries          int64           `json:"entries"`
	QuantityProduced decimal.Decimal `json:"quantity_produced"`
	QuantityScrapped decimal.Decimal `json:"quantity_scrapped"`
	ScrapRate        decimal.Decimal `json:"scrap_rate"`
	AverageRating    decimal.Decimal `json:"average_rating"`
}

// NewFeedbackSummary rounds the rate and the average to two decimals. Scrap
// rate is scrapped / (produced + scrapped).
func NewFeedbackSummary(batchID string, entries int64, produced, scrapped, avgRating decimal.Decimal) *FeedbackSummary {
	s := &FeedbackSummary{
		BatchID:          batchID,
		Entries:          entries,
		QuantityProduced: produced,
		QuantityScrapped: scrapped,
		ScrapRate:        decimal.Zero,
		AverageRating:    avgRating.Round(2),
	}
	if total := produced.Add(scrapped); total.IsPositive() {
		s.ScrapRate = scrapped.Div(total).Round(2)
	}
	return s
}
