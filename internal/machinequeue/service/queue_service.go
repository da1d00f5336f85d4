package service

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/machinequeue/entity"
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/events"
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QueueService keeps per-machine work lines. Every mutation runs in one
// transaction holding the machine row lock; waiting and paused entries are
// numbered 1..n and the worked entry sits at position 0.
type QueueService struct {
	repos  *repository.Repositories
	hub    *events.Hub
	logger *zap.Logger
}

// NewQueueService builds the service. hub may be nil.
func NewQueueService(repos *repository.Repositories, hub *events.Hub, logger *zap.Logger) *QueueService {
	return &QueueService{repos: repos, hub: hub, logger: logger}
}

// 事务提交后通知订阅者
func (s *QueueService) publish(machineID, queueID, action string) {
	s.hub.Publish(events.QueueUpdate{MachineID: machineID, QueueID: queueID, Action: action})
}

type EnqueueRequest struct {
	MachineID        string     `json:"machine_id" binding:"required"`
	BatchID          string     `json:"batch_id" binding:"required"`
	StepID           string     `json:"step_id"`
	Priority         string     `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	EstimatedMinutes int        `json:"estimated_minutes" binding:"gte=0"`
	ScheduledStart   *time.Time `json:"scheduled_start"`
	ScheduledEnd     *time.Time `json:"scheduled_end"`
	Notes            string     `json:"notes"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type RepositionRequest struct {
	Position int `json:"position" binding:"required,min=1"`
}

// MachineQueue 机台当前队列视图
type MachineQueue struct {
	Machine *entity.Machine      `json:"machine"`
	Running *entity.QueueEntry   `json:"running"`
	Waiting []*entity.QueueEntry `json:"waiting"`
}

type CompleteResult struct {
	Completed *entity.QueueEntry `json:"completed"`
	Next      *entity.QueueEntry `json:"next,omitempty"`
}

func (s *QueueService) withMachine(ctx context.Context, machineID string, fn func(r *repository.Repositories, m *entity.Machine) error) error {
	return s.repos.InTx(ctx, func(r *repository.Repositories) error {
		m, err := r.Machine.LockByID(ctx, machineID)
		if err != nil {
			return err
		}
		return fn(r, m)
	})
}

// withEntry locks the entry's machine, then reloads the entry under it.
func (s *QueueService) withEntry(ctx context.Context, queueID string, fn func(r *repository.Repositories, m *entity.Machine, e *entity.QueueEntry) error) error {
	current, err := s.repos.Queue.FindByID(ctx, queueID)
	if err != nil {
		return err
	}
	return s.withMachine(ctx, current.MachineID, func(r *repository.Repositories, m *entity.Machine) error {
		e, err := r.Queue.FindByID(ctx, queueID)
		if err != nil {
			return err
		}
		return fn(r, m, e)
	})
}

// syncMachineStatus keeps busy/available in step with the queue. Machines in
// maintenance or offline are left alone.
func syncMachineStatus(ctx context.Context, r *repository.Repositories, m *entity.Machine, running bool) error {
	if m.Status != entity.MachineStatusAvailable && m.Status != entity.MachineStatusBusy {
		return nil
	}
	status := entity.MachineStatusAvailable
	if running {
		status = entity.MachineStatusBusy
	}
	return r.Machine.SetStatus(ctx, m, status)
}

// Enqueue 入队
func (s *QueueService) Enqueue(ctx context.Context, req *EnqueueRequest, userID string) (*entity.QueueEntry, error) {
	priority := req.Priority
	if priority == "" {
		priority = entity.PriorityNormal
	}

	var out *entity.QueueEntry
	err := s.withMachine(ctx, req.MachineID, func(r *repository.Repositories, m *entity.Machine) error {
		if !m.Accepting() {
			return apperr.Validation("machine %s is %s and cannot take work", m.MachineCode, m.Status)
		}
		dup, err := r.Queue.HasActive(ctx, m.ID, req.BatchID, req.StepID)
		if err != nil {
			return err
		}
		if dup {
			return apperr.Conflict("batch %s step %q is already queued on machine %s", req.BatchID, req.StepID, m.MachineCode)
		}

		line, err := r.Queue.Line(ctx, m.ID)
		if err != nil {
			return err
		}
		before := positions(line)

		e := &entity.QueueEntry{
			QueueID:          uuid.New().String(),
			MachineID:        m.ID,
			BatchID:          req.BatchID,
			StepID:           req.StepID,
			Status:           entity.QueueStatusWaiting,
			Priority:         priority,
			EstimatedMinutes: req.EstimatedMinutes,
			ScheduledStart:   req.ScheduledStart,
			ScheduledEnd:     req.ScheduledEnd,
			Notes:            req.Notes,
			CreatedBy:        userID,
			Version:          1,
		}
		line = entity.Insert(line, e, entity.InsertIndex(line, priority))
		if err := r.Queue.Create(ctx, e); err != nil {
			return err
		}
		before[e.QueueID] = e.Position
		if err := r.Queue.SaveLine(ctx, line, before); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("entry queued",
		zap.String("queue_id", out.QueueID),
		zap.String("machine_id", out.MachineID),
		zap.String("batch_id", out.BatchID),
		zap.String("priority", out.Priority),
		zap.Int("position", out.Position))
	s.publish(out.MachineID, out.QueueID, events.ActionEnqueued)
	return out, nil
}

func (s *QueueService) Get(ctx context.Context, queueID string) (*entity.QueueEntry, error) {
	return s.repos.Queue.FindByID(ctx, queueID)
}

func (s *QueueService) List(ctx context.Context, params repository.QueueListParams) ([]entity.QueueEntry, int64, error) {
	return s.repos.Queue.List(ctx, params)
}

func (s *QueueService) MachineQueue(ctx context.Context, machineID string) (*MachineQueue, error) {
	m, err := s.repos.Machine.FindByID(ctx, machineID)
	if err != nil {
		return nil, err
	}
	running, err := s.repos.Queue.Running(ctx, machineID)
	if err != nil {
		return nil, err
	}
	line, err := s.repos.Queue.Line(ctx, machineID)
	if err != nil {
		return nil, err
	}
	return &MachineQueue{Machine: m, Running: running, Waiting: line}, nil
}

// startNext moves the first waiting entry to position 0. It returns nil when
// nothing is waiting.
func startNext(ctx context.Context, r *repository.Repositories, m *entity.Machine) (*entity.QueueEntry, error) {
	line, err := r.Queue.Line(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	next := entity.NextWaiting(line)
	if next == nil {
		return nil, nil
	}
	before := positions(line)
	if err := next.Start(time.Now()); err != nil {
		return nil, err
	}
	line = entity.Remove(line, next.QueueID)
	if err := r.Queue.Save(ctx, next); err != nil {
		return nil, err
	}
	if err := r.Queue.SaveLine(ctx, line, before); err != nil {
		return nil, err
	}
	return next, nil
}

// StartNext 机台开始下一个等待任务
func (s *QueueService) StartNext(ctx context.Context, machineID string) (*entity.QueueEntry, error) {
	var out *entity.QueueEntry
	err := s.withMachine(ctx, machineID, func(r *repository.Repositories, m *entity.Machine) error {
		if !m.Accepting() {
			return apperr.Validation("machine %s is %s", m.MachineCode, m.Status)
		}
		running, err := r.Queue.Running(ctx, m.ID)
		if err != nil {
			return err
		}
		if running != nil {
			return apperr.Conflict("machine %s is already working on %s", m.MachineCode, running.QueueID)
		}
		next, err := startNext(ctx, r, m)
		if err != nil {
			return err
		}
		if next == nil {
			return apperr.Conflict("machine %s has no waiting entries", m.MachineCode)
		}
		out = next
		return syncMachineStatus(ctx, r, m, true)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("entry started", zap.String("queue_id", out.QueueID), zap.String("machine_id", machineID))
	s.publish(machineID, out.QueueID, events.ActionStarted)
	return out, nil
}

// Complete finishes the worked entry; with advance the next waiting entry
// starts in the same transaction.
func (s *QueueService) Complete(ctx context.Context, queueID string, advance bool) (*CompleteResult, error) {
	result := &CompleteResult{}
	err := s.withEntry(ctx, queueID, func(r *repository.Repositories, m *entity.Machine, e *entity.QueueEntry) error {
		if err := e.Complete(time.Now()); err != nil {
			return err
		}
		if err := r.Queue.Save(ctx, e); err != nil {
			return err
		}
		result.Completed = e

		if advance && m.Accepting() {
			next, err := startNext(ctx, r, m)
			if err != nil {
				return err
			}
			result.Next = next
		}
		return syncMachineStatus(ctx, r, m, result.Next != nil)
	})
	if err != nil {
		return nil, err
	}
	fields := []zap.Field{zap.String("queue_id", queueID), zap.String("machine_id", result.Completed.MachineID)}
	if result.Next != nil {
		fields = append(fields, zap.String("next_queue_id", result.Next.QueueID))
	}
	s.logger.Info("entry completed", fields...)
	s.publish(result.Completed.MachineID, queueID, events.ActionCompleted)
	if result.Next != nil {
		s.publish(result.Next.MachineID, result.Next.QueueID, events.ActionStarted)
	}
	return result, nil
}

// Pause 暂停在制任务，回到队首
func (s *QueueService) Pause(ctx context.Context, queueID string) (*entity.QueueEntry, error) {
	var out *entity.QueueEntry
	err := s.withEntry(ctx, queueID, func(r *repository.Repositories, m *entity.Machine, e *entity.QueueEntry) error {
		if err := e.Pause(); err != nil {
			return err
		}
		line, err := r.Queue.Line(ctx, m.ID)
		if err != nil {
			return err
		}
		before := positions(line)
		line = entity.Insert(line, e, 0)
		if err := r.Queue.SaveLine(ctx, line, before); err != nil {
			return err
		}
		out = e
		return syncMachineStatus(ctx, r, m, false)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("entry paused", zap.String("queue_id", queueID))
	s.publish(out.MachineID, queueID, events.ActionPaused)
	return out, nil
}

func (s *QueueService) Resume(ctx context.Context, queueID string) (*entity.QueueEntry, error) {
	var out *entity.QueueEntry
	err := s.withEntry(ctx, queueID, func(r *repository.Repositories, m *entity.Machine, e *entity.QueueEntry) error {
		if err := e.Resume(); err != nil {
			return err
		}
		if err := r.Queue.Save(ctx, e); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("entry resumed", zap.String("queue_id", queueID), zap.Int("position", out.Position))
	s.publish(out.MachineID, queueID, events.ActionResumed)
	return out, nil
}

func (s *QueueService) Cancel(ctx context.Context, queueID, reason string) (*entity.QueueEntry, error) {
	var out *entity.QueueEntry
	err := s.withEntry(ctx, queueID, func(r *repository.Repositories, m *entity.Machine, e *entity.QueueEntry) error {
		wasRunning := e.Status == entity.QueueStatusInProgress
		wasInLine := e.InLine()
		if err := e.Cancel(reason, time.Now()); err != nil {
			return err
		}
		if err := r.Queue.Save(ctx, e); err != nil {
			return err
		}
		out = e

		if wasInLine {
			line, err := r.Queue.Line(ctx, m.ID)
			if err != nil {
				return err
			}
			before := positions(line)
			entity.Resequence(line)
			if err := r.Queue.SaveLine(ctx, line, before); err != nil {
				return err
			}
		}
		if wasRunning {
			return syncMachineStatus(ctx, r, m, false)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Warn("entry cancelled", zap.String("queue_id", queueID), zap.String("reason", reason))
	s.publish(out.MachineID, queueID, events.ActionCancelled)
	return out, nil
}

// Reposition 手动调整排队位置
func (s *QueueService) Reposition(ctx context.Context, queueID string, position int) (*entity.QueueEntry, error) {
	var out *entity.QueueEntry
	err := s.withEntry(ctx, queueID, func(r *repository.Repositories, m *entity.Machine, e *entity.QueueEntry) error {
		if !e.InLine() {
			return apperr.Conflict("queue entry %s is %s and has no place in line", e.QueueID, e.Status)
		}
		line, err := r.Queue.Line(ctx, m.ID)
		if err != nil {
			return err
		}
		before := positions(line)
		line, err = entity.Move(line, e.QueueID, position)
		if err != nil {
			return err
		}
		if err := r.Queue.SaveLine(ctx, line, before); err != nil {
			return err
		}
		for _, le := range line {
			if le.QueueID == e.QueueID {
				out = le
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("entry repositioned", zap.String("queue_id", queueID), zap.Int("position", out.Position))
	s.publish(out.MachineID, queueID, events.ActionRepositioned)
	return out, nil
}
