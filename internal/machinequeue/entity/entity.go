package entity

import (
	"time"
)

// MachineStatus 机台状态
const (
	MachineStatusAvailable   = "available"
	MachineStatusBusy        = "busy"
	MachineStatusMaintenance = "maintenance"
	MachineStatusOffline     = "offline"
)

// QueueStatus 排队状态
const (
	QueueStatusWaiting    = "waiting"
	QueueStatusInProgress = "in_progress"
	QueueStatusCompleted  = "completed"
	QueueStatusPaused     = "paused"
	QueueStatusCancelled  = "cancelled"
)

// Priority 优先级
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

const (
	// PositionRunning is the position of the entry being worked.
	PositionRunning = 0
	// PositionNone marks completed and cancelled entries.
	PositionNone = -1
)

// Machine 机台
type Machine struct {
	ID          string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	MachineCode string     `json:"machine_code" gorm:"size:50;not null;uniqueIndex:idx_mq_machines_code,where:deleted_at IS NULL"`
	Name        string     `json:"name" gorm:"size:100;not null"`
	MachineType string     `json:"machine_type" gorm:"size:50;index"`
	Location    string     `json:"location" gorm:"size:100"`
	Status      string     `json:"status" gorm:"size:20;not null;default:available"`
	Description string     `json:"description" gorm:"type:text"`
	CreatedBy   string     `json:"created_by" gorm:"size:64"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" gorm:"index"`
}

func (Machine) TableName() string {
	return "mq_machines"
}

// Accepting reports whether new work may be queued or started.
func (m *Machine) Accepting() bool {
	return m.Status == MachineStatusAvailable || m.Status == MachineStatusBusy
}

// QueueEntry 机台排队记录
type QueueEntry struct {
	QueueID          string     `json:"queue_id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	MachineID        string     `json:"machine_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_mq_entries_running,where:status = 'in_progress'"`
	BatchID          string     `json:"batch_id" gorm:"size:64;not null;index"`
	StepID           string     `json:"step_id" gorm:"size:64"`
	Position         int        `json:"position" gorm:"not null"`
	Status           string     `json:"status" gorm:"size:20;not null;default:waiting;index"`
	Priority         string     `json:"priority" gorm:"size:20;not null;default:normal"`
	EstimatedMinutes int        `json:"estimated_minutes" gorm:"default:0"`
	ScheduledStart   *time.Time `json:"scheduled_start"`
	ScheduledEnd     *time.Time `json:"scheduled_end"`
	ActualStart      *time.Time `json:"actual_start"`
	ActualEnd        *time.Time `json:"actual_end"`
	Notes            string     `json:"notes" gorm:"type:text"`
	CancelReason     string     `json:"cancel_reason,omitempty" gorm:"type:text"`
	CreatedBy        string     `json:"created_by" gorm:"size:64"`
	Version          int64      `json:"version" gorm:"not null;default:1"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (QueueEntry) TableName() string {
	return "mq_queue_entries"
}

// InLine reports whether the entry holds a numbered place (1..n).
func (e *QueueEntry) InLine() bool {
	return e.Status == QueueStatusWaiting || e.Status == QueueStatusPaused
}

func (e *QueueEntry) IsActive() bool {
	return e.InLine() || e.Status == QueueStatusInProgress
}
