package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlanStatus 计划状态
const (
	PlanStatusRunning   = "running"
	PlanStatusPlanned   = "planned"
	PlanStatusFailed    = "failed"
	PlanStatusCancelled = "cancelled"
)

// Saga step names
const (
	StepLoadBatch       = "load_batch"
	StepReserve         = "reserve_materials"
	StepMarkMaterials   = "mark_materials_assigned"
	StepEnqueue         = "enqueue_machine"
	StepMarkMachine     = "mark_machine_assigned"
	StepScheduleBatch   = "schedule_batch"
	StepCancelQueue     = "cancel_queue_entry"
	StepReleaseMaterial = "release_materials"
	StepCancelBatch     = "cancel_batch"
)

// Event actions and outcomes
const (
	ActionExecute    = "execute"
	ActionCompensate = "compensate"

	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// ProductionPlan 生产计划（跨服务编排记录）
type ProductionPlan struct {
	ID               string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	BatchID          string     `json:"batch_id" gorm:"size:64;not null;index;uniqueIndex:idx_pln_plans_active_batch,where:status <> 'failed' AND status <> 'cancelled'"`
	BatchNumber      string     `json:"batch_number" gorm:"size:50"`
	MachineID        string     `json:"machine_id" gorm:"size:64;not null;index"`
	StepID           string     `json:"step_id" gorm:"size:64"`
	Priority         string     `json:"priority" gorm:"size:20;not null;default:normal"`
	EstimatedMinutes int        `json:"estimated_minutes" gorm:"default:0"`
	ScheduledStart   *time.Time `json:"scheduled_start"`
	ScheduledEnd     *time.Time `json:"scheduled_end"`
	Status           string     `json:"status" gorm:"size:20;not null;default:running;index"`
	ReservationID    *uint      `json:"reservation_id"`
	QueueID          string     `json:"queue_id" gorm:"size:64"`
	FailedStep       string     `json:"failed_step,omitempty" gorm:"size:50"`
	FailureReason    string     `json:"failure_reason,omitempty" gorm:"type:text"`
	Notes            string     `json:"notes" gorm:"type:text"`
	CreatedBy        string     `json:"created_by" gorm:"size:64"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	Items  []PlanItem  `json:"items,omitempty" gorm:"foreignKey:PlanID"`
	Events []PlanEvent `json:"events,omitempty" gorm:"foreignKey:PlanID"`
}

func (ProductionPlan) TableName() string {
	return "pln_plans"
}

// PlanItem 计划物料行
type PlanItem struct {
	ID         uint            `json:"-" gorm:"primaryKey;autoIncrement"`
	PlanID     string          `json:"-" gorm:"type:uuid;not null;index"`
	MaterialID string          `json:"material_id" gorm:"size:64;not null"`
	Quantity   decimal.Decimal `json:"quantity" gorm:"type:decimal(14,4);not null"`
}

func (PlanItem) TableName() string {
	return "pln_plan_items"
}

// PlanEvent 编排步骤日志
type PlanEvent struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	PlanID    string    `json:"plan_id" gorm:"type:uuid;not null;index"`
	Step      string    `json:"step" gorm:"size:50;not null"`
	Action    string    `json:"action" gorm:"size:20;not null"`
	Outcome   string    `json:"outcome" gorm:"size:20;not null"`
	Message   string    `json:"message" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

func (PlanEvent) TableName() string {
	return "pln_plan_events"
}
