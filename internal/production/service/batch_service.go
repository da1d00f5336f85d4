package service

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/production/entity"
	"github.com/bitfantasy/nimo-mes/internal/production/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"go.uber.org/zap"
)

const reservationStatusReserved = "reserved"

type BatchService struct {
	repos   *repository.Repositories
	checker ReservationChecker
	logger  *zap.Logger
}

func NewBatchService(repos *repository.Repositories, checker ReservationChecker, logger *zap.Logger) *BatchService {
	return &BatchService{repos: repos, checker: checker, logger: logger}
}

// AssignmentRequest 批次分配标记，空字段保持不变
type AssignmentRequest struct {
	MaterialsAssigned *bool `json:"materials_assigned"`
	MachineAssigned   *bool `json:"machine_assigned"`
}

type ScheduleRequest struct {
	ScheduledStartDate *time.Time `json:"scheduled_start_date"`
	ScheduledEndDate   *time.Time `json:"scheduled_end_date"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

func (s *BatchService) Get(ctx context.Context, id string) (*entity.ProductionBatch, error) {
	return s.repos.Batch.FindByID(ctx, id)
}

func (s *BatchService) List(ctx context.Context, params repository.BatchListParams) ([]entity.ProductionBatch, int64, error) {
	return s.repos.Batch.List(ctx, params)
}

// requireReservation asks inventory whether the batch holds a reserved
// reservation.
func (s *BatchService) requireReservation(ctx context.Context, b *entity.ProductionBatch) error {
	if s.checker == nil {
		return nil
	}
	res, err := s.checker.GetReservation(ctx, b.ID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Conflict("batch %s has no material reservation", b.BatchNumber)
		}
		return err
	}
	if res.Status != reservationStatusReserved {
		return apperr.Conflict("reservation of batch %s is %s", b.BatchNumber, res.Status)
	}
	return nil
}

// update locks the batch, applies fn and saves it.
func (s *BatchService) update(ctx context.Context, id string, fn func(b *entity.ProductionBatch) error) (*entity.ProductionBatch, error) {
	var out *entity.ProductionBatch
	err := s.repos.InTx(ctx, func(r *repository.Repositories) error {
		b, err := r.Batch.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
		if err := r.Batch.Save(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// SetAssignments 设置物料/机台分配标记
func (s *BatchService) SetAssignments(ctx context.Context, id string, req *AssignmentRequest) (*entity.ProductionBatch, error) {
	if req.MaterialsAssigned != nil && *req.MaterialsAssigned {
		b, err := s.repos.Batch.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.requireReservation(ctx, b); err != nil {
			return nil, err
		}
	}

	b, err := s.update(ctx, id, func(b *entity.ProductionBatch) error {
		return b.SetAssignments(req.MaterialsAssigned, req.MachineAssigned)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("batch assignments updated",
		zap.String("batch_number", b.BatchNumber),
		zap.Bool("materials_assigned", b.MaterialsAssigned),
		zap.Bool("machine_assigned", b.MachineAssigned))
	return b, nil
}

// Schedule pending → scheduled. The reservation is checked again so a
// released reservation cannot slip through.
func (s *BatchService) Schedule(ctx context.Context, id string, req *ScheduleRequest) (*entity.ProductionBatch, error) {
	current, err := s.repos.Batch.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.MaterialsAssigned {
		if err := s.requireReservation(ctx, current); err != nil {
			return nil, err
		}
	}

	b, err := s.update(ctx, id, func(b *entity.ProductionBatch) error {
		return b.Schedule(req.ScheduledStartDate, req.ScheduledEndDate, time.Now())
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("batch scheduled", zap.String("batch_number", b.BatchNumber))
	return b, nil
}

func (s *BatchService) Start(ctx context.Context, id string) (*entity.ProductionBatch, error) {
	b, err := s.update(ctx, id, func(b *entity.ProductionBatch) error {
		return b.Transition(entity.BatchStatusInProgress, time.Now())
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("batch started", zap.String("batch_number", b.BatchNumber))
	return b, nil
}

func (s *BatchService) Complete(ctx context.Context, id string) (*entity.ProductionBatch, error) {
	b, err := s.update(ctx, id, func(b *entity.ProductionBatch) error {
		return b.Complete(time.Now())
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("batch completed", zap.String("batch_number", b.BatchNumber))
	return b, nil
}

func (s *BatchService) Cancel(ctx context.Context, id string, req *CancelRequest) (*entity.ProductionBatch, error) {
	b, err := s.update(ctx, id, func(b *entity.ProductionBatch) error {
		if err := b.Transition(entity.BatchStatusCancelled, time.Now()); err != nil {
			return err
		}
		b.CancelReason = req.Reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Warn("batch cancelled", zap.String("batch_number", b.BatchNumber), zap.String("reason", req.Reason))
	return b, nil
}
