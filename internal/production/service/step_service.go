package service

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/production/entity"
	"github.com/bitfantasy/nimo-mes/internal/production/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"go.uber.org/zap"
)

type StepService struct {
	repos  *repository.Repositories
	logger *zap.Logger
}

func NewStepService(repos *repository.Repositories, logger *zap.Logger) *StepService {
	return &StepService{repos: repos, logger: logger}
}

func (s *StepService) List(ctx context.Context, batchID string) ([]entity.ProductionStep, error) {
	if _, err := s.repos.Batch.FindByID(ctx, batchID); err != nil {
		return nil, err
	}
	return s.repos.Step.ListByBatch(ctx, batchID)
}

// Add appends a step to a batch that has not started yet.
func (s *StepService) Add(ctx context.Context, batchID string, req *StepInput) (*entity.ProductionStep, error) {
	var out *entity.ProductionStep
	err := s.repos.InTx(ctx, func(r *repository.Repositories) error {
		b, err := r.Batch.LockByID(ctx, batchID)
		if err != nil {
			return err
		}
		if b.Status != entity.BatchStatusPending && b.Status != entity.BatchStatusScheduled {
			return apperr.Conflict("batch %s is %s, steps can no longer be added", b.BatchNumber, b.Status)
		}
		seq, err := r.Step.NextSequence(ctx, batchID)
		if err != nil {
			return err
		}
		step := &entity.ProductionStep{
			BatchID:          batchID,
			Sequence:         seq,
			Name:             req.Name,
			MachineType:      req.MachineType,
			EstimatedMinutes: req.EstimatedMinutes,
			Status:           entity.StepStatusPending,
			Notes:            req.Notes,
		}
		if err := r.Step.Create(ctx, step); err != nil {
			return err
		}
		out = step
		return nil
	})
	return out, err
}

// Start 开始工序；已排产的批次随之进入生产中
func (s *StepService) Start(ctx context.Context, batchID, stepID, operator string) (*entity.ProductionStep, error) {
	return s.transition(ctx, batchID, stepID, entity.StepStatusInProgress, operator)
}

func (s *StepService) Complete(ctx context.Context, batchID, stepID, operator string) (*entity.ProductionStep, error) {
	return s.transition(ctx, batchID, stepID, entity.StepStatusCompleted, operator)
}

func (s *StepService) Skip(ctx context.Context, batchID, stepID, operator string) (*entity.ProductionStep, error) {
	return s.transition(ctx, batchID, stepID, entity.StepStatusSkipped, operator)
}

func (s *StepService) transition(ctx context.Context, batchID, stepID, to, operator string) (*entity.ProductionStep, error) {
	var out *entity.ProductionStep
	err := s.repos.InTx(ctx, func(r *repository.Repositories) error {
		b, err := r.Batch.LockByID(ctx, batchID)
		if err != nil {
			return err
		}
		now := time.Now()
		switch b.Status {
		case entity.BatchStatusInProgress:
		case entity.BatchStatusScheduled:
			if to != entity.StepStatusInProgress {
				return apperr.Conflict("batch %s has not started", b.BatchNumber)
			}
			if err := b.Transition(entity.BatchStatusInProgress, now); err != nil {
				return err
			}
			if err := r.Batch.Save(ctx, b); err != nil {
				return err
			}
			s.logger.Info("batch started by first step", zap.String("batch_number", b.BatchNumber))
		default:
			return apperr.Conflict("batch %s is %s", b.BatchNumber, b.Status)
		}

		step, err := r.Step.FindByID(ctx, batchID, stepID)
		if err != nil {
			return err
		}
		if err := step.Transition(to, operator, now); err != nil {
			return err
		}
		if err := r.Step.Save(ctx, step); err != nil {
			return err
		}
		out = step
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("step updated",
		zap.String("batch_id", batchID),
		zap.String("step", out.Name),
		zap.String("status", out.Status))
	return out, nil
}
