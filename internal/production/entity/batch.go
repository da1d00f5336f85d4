package entity

import (
	"time"

	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/shopspring/decimal"
)

// BatchStatus 批次状态
const (
	BatchStatusPending    = "pending"
	BatchStatusScheduled  = "scheduled"
	BatchStatusInProgress = "in_progress"
	BatchStatusCompleted  = "completed"
	BatchStatusCancelled  = "cancelled"
)

// StepStatus 工序状态
const (
	StepStatusPending    = "pending"
	StepStatusInProgress = "in_progress"
	StepStatusCompleted  = "completed"
	StepStatusSkipped    = "skipped"
)

var batchTransitions = map[string][]string{
	BatchStatusPending:    {BatchStatusScheduled, BatchStatusCancelled},
	BatchStatusScheduled:  {BatchStatusInProgress, BatchStatusCancelled},
	BatchStatusInProgress: {BatchStatusCompleted, BatchStatusCancelled},
}

var stepTransitions = map[string][]string{
	StepStatusPending:    {StepStatusInProgress, StepStatusSkipped},
	StepStatusInProgress: {StepStatusCompleted},
}

func allowed(table map[string][]string, from, to string) bool {
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ProductionBatch 生产批次
type ProductionBatch struct {
	ID                 string          `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	BatchNumber        string          `json:"batch_number" gorm:"size:50;not null;uniqueIndex"`
	RequestID          string          `json:"request_id" gorm:"type:uuid;not null;index"`
	ProductCode        string          `json:"product_code" gorm:"size:64;not null"`
	Quantity           decimal.Decimal `json:"quantity" gorm:"type:decimal(14,4);not null"`
	Status             string          `json:"status" gorm:"size:20;not null;default:pending;index"`
	MaterialsAssigned  bool            `json:"materials_assigned" gorm:"not null;default:false"`
	MachineAssigned    bool            `json:"machine_assigned" gorm:"not null;default:false"`
	ScheduledStartDate *time.Time      `json:"scheduled_start_date"`
	ScheduledEndDate   *time.Time      `json:"scheduled_end_date"`
	ActualStartDate    *time.Time      `json:"actual_start_date"`
	ActualEndDate      *time.Time      `json:"actual_end_date"`
	CancelReason       string          `json:"cancel_reason,omitempty" gorm:"type:text"`
	Notes              string          `json:"notes" gorm:"type:text"`
	CreatedBy          string          `json:"created_by" gorm:"size:64;not null"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`

	Steps []ProductionStep `json:"steps,omitempty" gorm:"foreignKey:BatchID"`
}

func (ProductionBatch) TableName() string {
	return "prd_batches"
}

func (b *ProductionBatch) IsTerminal() bool {
	return b.Status == BatchStatusCompleted || b.Status == BatchStatusCancelled
}

// Transition moves the batch to status to, or returns a conflict naming the
// current status.
func (b *ProductionBatch) Transition(to string, now time.Time) error {
	if !allowed(batchTransitions, b.Status, to) {
		return apperr.Conflict("batch %s cannot move from %s to %s", b.BatchNumber, b.Status, to)
	}
	b.Status = to
	switch to {
	case BatchStatusInProgress:
		b.ActualStartDate = &now
	case BatchStatusCompleted, BatchStatusCancelled:
		b.ActualEndDate = &now
	}
	return nil
}

// Schedule requires materials to have been assigned first.
func (b *ProductionBatch) Schedule(start, end *time.Time, now time.Time) error {
	if b.Status != BatchStatusPending {
		return apperr.Conflict("batch %s is %s, only pending batches can be scheduled", b.BatchNumber, b.Status)
	}
	if !b.MaterialsAssigned {
		return apperr.Conflict("batch %s has no materials assigned", b.BatchNumber)
	}
	if start != nil && end != nil && end.Before(*start) {
		return apperr.Validation("scheduled_end_date is before scheduled_start_date")
	}
	if start != nil {
		b.ScheduledStartDate = start
	}
	if end != nil {
		b.ScheduledEndDate = end
	}
	return b.Transition(BatchStatusScheduled, now)
}

// Complete requires every step to be completed or skipped.
func (b *ProductionBatch) Complete(now time.Time) error {
	for _, s := range b.Steps {
		if s.Status != StepStatusCompleted && s.Status != StepStatusSkipped {
			return apperr.Conflict("step %d (%s) of batch %s is %s", s.Sequence, s.Name, b.BatchNumber, s.Status)
		}
	}
	return b.Transition(BatchStatusCompleted, now)
}

// SetAssignments updates the assignment flags. Flags can only change while
// the batch is not terminal.
func (b *ProductionBatch) SetAssignments(materials, machine *bool) error {
	if b.IsTerminal() {
		return apperr.Conflict("batch %s is %s", b.BatchNumber, b.Status)
	}
	if materials != nil {
		b.MaterialsAssigned = *materials
	}
	if machine != nil {
		b.MachineAssigned = *machine
	}
	return nil
}

// ProductionStep 批次工序
type ProductionStep struct {
	ID               string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	BatchID          string     `json:"batch_id" gorm:"type:uuid;not null;index"`
	Sequence         int        `json:"sequence" gorm:"not null"`
	Name             string     `json:"name" gorm:"size:100;not null"`
	MachineType      string     `json:"machine_type" gorm:"size:50"`
	EstimatedMinutes int        `json:"estimated_minutes" gorm:"default:0"`
	Status           string     `json:"status" gorm:"size:20;not null;default:pending"`
	Operator         string     `json:"operator,omitempty" gorm:"size:64"`
	StartedAt        *time.Time `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	Notes            string     `json:"notes" gorm:"type:text"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (ProductionStep) TableName() string {
	return "prd_steps"
}

func (s *ProductionStep) Transition(to, operator string, now time.Time) error {
	if !allowed(stepTransitions, s.Status, to) {
		return apperr.Conflict("step %s cannot move from %s to %s", s.Name, s.Status, to)
	}
	s.Status = to
	switch to {
	case StepStatusInProgress:
		s.StartedAt = &now
		s.Operator = operator
	case StepStatusCompleted, StepStatusSkipped:
		s.CompletedAt = &now
	}
	return nil
}
