package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/planning/entity"
	"github.com/bitfantasy/nimo-mes/internal/planning/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/bitfantasy/nimo-mes/internal/shared/client"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const batchStatusPending = "pending"

// ProductionGateway is the slice of the production service the planner
// drives. *client.ProductionClient implements it.
type ProductionGateway interface {
	GetBatch(ctx context.Context, id string) (*client.Batch, error)
	SetAssignments(ctx context.Context, id string, upd client.AssignmentUpdate) (*client.Batch, error)
	ScheduleBatch(ctx context.Context, id string, req client.ScheduleRequest) (*client.Batch, error)
	CancelBatch(ctx context.Context, id, reason string) (*client.Batch, error)
}

// InventoryGateway is implemented by *client.InventoryClient.
type InventoryGateway interface {
	Reserve(ctx context.Context, req client.ReserveRequest) (*client.Reservation, error)
	Release(ctx context.Context, batchID string) (*client.Reservation, error)
}

// QueueGateway is implemented by *client.MachineQueueClient.
type QueueGateway interface {
	Enqueue(ctx context.Context, req client.EnqueueRequest) (*client.QueueEntry, error)
	Cancel(ctx context.Context, queueID, reason string) (*client.QueueEntry, error)
}

// Planner assigns a batch its materials and machine across services.
type Planner struct {
	repos      *repository.Repositories
	production ProductionGateway
	inventory  InventoryGateway
	queue      QueueGateway
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewPlanner(repos *repository.Repositories, production ProductionGateway, inventory InventoryGateway, queue QueueGateway, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		repos:      repos,
		production: production,
		inventory:  inventory,
		queue:      queue,
		logger:     logger,
		tracer:     otel.Tracer("nimo-mes/planning"),
	}
}

type PlanItemInput struct {
	MaterialID string          `json:"material_id" binding:"required"`
	Quantity   decimal.Decimal `json:"quantity" binding:"required,gt=0"`
}

type CreatePlanRequest struct {
	BatchID          string          `json:"batch_id" binding:"required"`
	MachineID        string          `json:"machine_id" binding:"required"`
	StepID           string          `json:"step_id"`
	Priority         string          `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	EstimatedMinutes int             `json:"estimated_minutes" binding:"gte=0"`
	Items            []PlanItemInput `json:"items" binding:"required,min=1,dive"`
	ScheduledStart   *time.Time      `json:"scheduled_start"`
	ScheduledEnd     *time.Time      `json:"scheduled_end"`
	Notes            string          `json:"notes"`
}

type CancelPlanRequest struct {
	Reason string `json:"reason"`
}

func (p *Planner) recorder(planID string) recordFunc {
	return func(ctx context.Context, step, action, outcome, message string) {
		ev := &entity.PlanEvent{PlanID: planID, Step: step, Action: action, Outcome: outcome, Message: message}
		if err := p.repos.Plan.AddEvent(context.WithoutCancel(ctx), ev); err != nil {
			p.logger.Error("failed to record plan event",
				zap.String("plan_id", planID),
				zap.String("step", step),
				zap.Error(err))
		}
	}
}

// CreatePlan 执行编排：取批次 → 预留物料 → 标记物料 → 机台入队 → 标记机台 → 排产
func (p *Planner) CreatePlan(ctx context.Context, req *CreatePlanRequest, userID string) (*entity.ProductionPlan, error) {
	if req.ScheduledStart != nil && req.ScheduledEnd != nil && req.ScheduledEnd.Before(*req.ScheduledStart) {
		return nil, apperr.Validation("scheduled_end is before scheduled_start")
	}
	priority := req.Priority
	if priority == "" {
		priority = "normal"
	}

	active, err := p.repos.Plan.HasActive(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, apperr.Conflict("batch %s already has an active plan", req.BatchID)
	}

	plan := &entity.ProductionPlan{
		BatchID:          req.BatchID,
		MachineID:        req.MachineID,
		StepID:           req.StepID,
		Priority:         priority,
		EstimatedMinutes: req.EstimatedMinutes,
		ScheduledStart:   req.ScheduledStart,
		ScheduledEnd:     req.ScheduledEnd,
		Status:           entity.PlanStatusRunning,
		Notes:            req.Notes,
		CreatedBy:        userID,
	}
	for _, it := range req.Items {
		plan.Items = append(plan.Items, entity.PlanItem{MaterialID: it.MaterialID, Quantity: it.Quantity})
	}
	if err := p.repos.Plan.Create(ctx, plan); err != nil {
		return nil, err
	}

	ctx, span := p.tracer.Start(ctx, "planner.CreatePlan")
	failedStep, sagaErr := p.newSaga(plan.ID).execute(ctx, p.planSteps(plan, req))
	endSpan(span, sagaErr)

	// the outcome is stored even if the caller has gone away
	fields := map[string]interface{}{
		"batch_number":   plan.BatchNumber,
		"reservation_id": plan.ReservationID,
		"queue_id":       plan.QueueID,
	}
	if sagaErr != nil {
		fields["status"] = entity.PlanStatusFailed
		fields["failed_step"] = failedStep
		fields["failure_reason"] = apperr.Message(sagaErr)
	} else {
		fields["status"] = entity.PlanStatusPlanned
	}
	if err := p.repos.Plan.Update(context.WithoutCancel(ctx), plan.ID, fields); err != nil {
		p.logger.Error("failed to store plan outcome", zap.String("plan_id", plan.ID), zap.Error(err))
	}

	if sagaErr != nil {
		p.logger.Warn("plan failed",
			zap.String("plan_id", plan.ID),
			zap.String("batch_id", plan.BatchID),
			zap.String("failed_step", failedStep),
			zap.Error(sagaErr))
		return nil, sagaErr
	}
	p.logger.Info("plan created",
		zap.String("plan_id", plan.ID),
		zap.String("batch_id", plan.BatchID),
		zap.String("queue_id", plan.QueueID))
	return p.repos.Plan.FindByID(ctx, plan.ID)
}

func (p *Planner) newSaga(planID string) *saga {
	return &saga{planID: planID, tracer: p.tracer, logger: p.logger, record: p.recorder(planID)}
}

// planSteps builds the forward steps. Results are written onto plan as they
// arrive so compensations can use them.
func (p *Planner) planSteps(plan *entity.ProductionPlan, req *CreatePlanRequest) []sagaStep {
	no := false
	yes := true
	rollback := fmt.Sprintf("plan %s rolled back", plan.ID)

	return []sagaStep{
		{
			name: entity.StepLoadBatch,
			run: func(ctx context.Context) error {
				b, err := p.production.GetBatch(ctx, plan.BatchID)
				if err != nil {
					return err
				}
				plan.BatchNumber = b.BatchNumber
				if b.Status != batchStatusPending {
					return apperr.Conflict("batch %s is %s, only pending batches can be planned", b.BatchNumber, b.Status)
				}
				if b.MaterialsAssigned || b.MachineAssigned {
					return apperr.Conflict("batch %s already has assignments", b.BatchNumber)
				}
				return nil
			},
		},
		{
			name: entity.StepReserve,
			run: func(ctx context.Context) error {
				lines := make([]client.ReservationLine, 0, len(req.Items))
				for _, it := range req.Items {
					lines = append(lines, client.ReservationLine{MaterialID: it.MaterialID, Quantity: it.Quantity})
				}
				res, err := p.inventory.Reserve(ctx, client.ReserveRequest{
					BatchID: plan.BatchID,
					Items:   lines,
					Notes:   "plan " + plan.ID,
				})
				if err != nil {
					return err
				}
				plan.ReservationID = &res.ID
				return nil
			},
			compensate: func(ctx context.Context) error {
				_, err := p.inventory.Release(ctx, plan.BatchID)
				return err
			},
		},
		{
			name: entity.StepMarkMaterials,
			run: func(ctx context.Context) error {
				_, err := p.production.SetAssignments(ctx, plan.BatchID, client.AssignmentUpdate{MaterialsAssigned: &yes})
				return err
			},
			compensate: func(ctx context.Context) error {
				_, err := p.production.SetAssignments(ctx, plan.BatchID, client.AssignmentUpdate{MaterialsAssigned: &no})
				return err
			},
		},
		{
			name: entity.StepEnqueue,
			run: func(ctx context.Context) error {
				e, err := p.queue.Enqueue(ctx, client.EnqueueRequest{
					MachineID:        plan.MachineID,
					BatchID:          plan.BatchID,
					StepID:           plan.StepID,
					Priority:         plan.Priority,
					EstimatedMinutes: plan.EstimatedMinutes,
					ScheduledStart:   plan.ScheduledStart,
					ScheduledEnd:     plan.ScheduledEnd,
					Notes:            "plan " + plan.ID,
				})
				if err != nil {
					return err
				}
				plan.QueueID = e.QueueID
				return nil
			},
			compensate: func(ctx context.Context) error {
				_, err := p.queue.Cancel(ctx, plan.QueueID, rollback)
				return err
			},
		},
		{
			name: entity.StepMarkMachine,
			run: func(ctx context.Context) error {
				_, err := p.production.SetAssignments(ctx, plan.BatchID, client.AssignmentUpdate{MachineAssigned: &yes})
				return err
			},
			compensate: func(ctx context.Context) error {
				_, err := p.production.SetAssignments(ctx, plan.BatchID, client.AssignmentUpdate{MachineAssigned: &no})
				return err
			},
		},
		{
			name: entity.StepScheduleBatch,
			run: func(ctx context.Context) error {
				_, err := p.production.ScheduleBatch(ctx, plan.BatchID, client.ScheduleRequest{
					ScheduledStartDate: plan.ScheduledStart,
					ScheduledEndDate:   plan.ScheduledEnd,
				})
				return err
			},
		},
	}
}

func (p *Planner) Get(ctx context.Context, id string) (*entity.ProductionPlan, error) {
	return p.repos.Plan.FindByID(ctx, id)
}

func (p *Planner) List(ctx context.Context, params repository.PlanListParams) ([]entity.ProductionPlan, int64, error) {
	return p.repos.Plan.List(ctx, params)
}

// tolerable reports errors meaning the downstream side is already undone.
func tolerable(err error) bool {
	return errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrConflict)
}

// CancelPlan 取消计划：取消排队 → 释放物料 → 取消批次
func (p *Planner) CancelPlan(ctx context.Context, id string, req *CancelPlanRequest) (*entity.ProductionPlan, error) {
	plan, err := p.repos.Plan.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.Status != entity.PlanStatusPlanned {
		return nil, apperr.Conflict("plan %s is %s, only planned plans can be cancelled", plan.ID, plan.Status)
	}
	reason := req.Reason
	if reason == "" {
		reason = "plan " + plan.ID + " cancelled"
	}

	ctx, span := p.tracer.Start(ctx, "planner.CancelPlan")
	defer span.End()

	record := p.recorder(plan.ID)
	steps := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{entity.StepCancelQueue, func(ctx context.Context) error {
			if plan.QueueID == "" {
				return nil
			}
			_, err := p.queue.Cancel(ctx, plan.QueueID, reason)
			return err
		}},
		{entity.StepReleaseMaterial, func(ctx context.Context) error {
			_, err := p.inventory.Release(ctx, plan.BatchID)
			return err
		}},
		{entity.StepCancelBatch, func(ctx context.Context) error {
			_, err := p.production.CancelBatch(ctx, plan.BatchID, reason)
			return err
		}},
	}
	for _, step := range steps {
		err := step.run(ctx)
		switch {
		case err == nil:
			record(ctx, step.name, entity.ActionCompensate, entity.OutcomeSucceeded, "")
		case tolerable(err):
			record(ctx, step.name, entity.ActionCompensate, entity.OutcomeSkipped, apperr.Message(err))
		default:
			record(ctx, step.name, entity.ActionCompensate, entity.OutcomeFailed, apperr.Message(err))
			span.RecordError(err)
			return nil, err
		}
	}

	if err := p.repos.Plan.Transition(ctx, plan.ID, entity.PlanStatusPlanned, entity.PlanStatusCancelled); err != nil {
		return nil, err
	}
	p.logger.Info("plan cancelled", zap.String("plan_id", plan.ID), zap.String("batch_id", plan.BatchID))
	return p.repos.Plan.FindByID(ctx, plan.ID)
}
