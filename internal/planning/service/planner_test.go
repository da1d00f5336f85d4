package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/planning/entity"
	"github.com/bitfantasy/nimo-mes/internal/planning/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/bitfantasy/nimo-mes/internal/shared/client"
	"github.com/bitfantasy/nimo-mes/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProduction struct {
	mu          sync.Mutex
	batches     map[string]*client.Batch
	scheduleErr error
}

func (f *fakeProduction) GetBatch(ctx context.Context, id string) (*client.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return nil, apperr.NotFound("batch %s not found", id)
	}
	copied := *b
	return &copied, nil
}

func (f *fakeProduction) SetAssignments(ctx context.Context, id string, upd client.AssignmentUpdate) (*client.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.batches[id]
	if upd.MaterialsAssigned != nil {
		b.MaterialsAssigned = *upd.MaterialsAssigned
	}
	if upd.MachineAssigned != nil {
		b.MachineAssigned = *upd.MachineAssigned
	}
	return b, nil
}

func (f *fakeProduction) ScheduleBatch(ctx context.Context, id string, req client.ScheduleRequest) (*client.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheduleErr != nil {
		return nil, f.scheduleErr
	}
	b := f.batches[id]
	b.Status = "scheduled"
	return b, nil
}

func (f *fakeProduction) CancelBatch(ctx context.Context, id, reason string) (*client.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.batches[id]
	b.Status = "cancelled"
	return b, nil
}

type fakeInventory struct {
	reserved map[string]bool
	released []string
	err      error
}

func (f *fakeInventory) Reserve(ctx context.Context, req client.ReserveRequest) (*client.Reservation, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.reserved[req.BatchID] = true
	return &client.Reservation{ID: 7, BatchID: req.BatchID, Status: "reserved"}, nil
}

func (f *fakeInventory) Release(ctx context.Context, batchID string) (*client.Reservation, error) {
	if !f.reserved[batchID] {
		return nil, apperr.NotFound("no active reservation for batch %s", batchID)
	}
	delete(f.reserved, batchID)
	f.released = append(f.released, batchID)
	return &client.Reservation{ID: 7, BatchID: batchID, Status: "released"}, nil
}

type fakeQueue struct {
	entries   map[string]string
	cancelled []string
	err       error
}

func (f *fakeQueue) Enqueue(ctx context.Context, req client.EnqueueRequest) (*client.QueueEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	id := "q-" + req.BatchID
	f.entries[id] = "waiting"
	return &client.QueueEntry{QueueID: id, MachineID: req.MachineID, BatchID: req.BatchID, Position: 1, Status: "waiting"}, nil
}

func (f *fakeQueue) Cancel(ctx context.Context, queueID, reason string) (*client.QueueEntry, error) {
	f.entries[queueID] = "cancelled"
	f.cancelled = append(f.cancelled, queueID)
	return &client.QueueEntry{QueueID: queueID, Status: "cancelled"}, nil
}

type plannerEnv struct {
	planner    *Planner
	production *fakeProduction
	inventory  *fakeInventory
	queue      *fakeQueue
}

func setupPlanner(t *testing.T) *plannerEnv {
	t.Helper()
	db := testutil.SetupTestDB(t, &entity.ProductionPlan{}, &entity.PlanItem{}, &entity.PlanEvent{})
	env := &plannerEnv{
		production: &fakeProduction{batches: map[string]*client.Batch{
			"b-1": {ID: "b-1", BatchNumber: "B-20261017-0001", Status: "pending"},
			"b-2": {ID: "b-2", BatchNumber: "B-20261017-0002", Status: "in_progress"},
		}},
		inventory: &fakeInventory{reserved: map[string]bool{}},
		queue:     &fakeQueue{entries: map[string]string{}},
	}
	env.planner = NewPlanner(repository.NewRepositories(db), env.production, env.inventory, env.queue, zap.NewNop())
	return env
}

func planRequest(batchID string) *CreatePlanRequest {
	return &CreatePlanRequest{
		BatchID:   batchID,
		MachineID: "m-1",
		Priority:  "high",
		Items: []PlanItemInput{
			{MaterialID: "MAT001", Quantity: decimal.NewFromInt(100)},
		},
	}
}

func eventSteps(plan *entity.ProductionPlan, action string) []string {
	var out []string
	for _, ev := range plan.Events {
		if ev.Action == action {
			out = append(out, ev.Step+":"+ev.Outcome)
		}
	}
	return out
}

func TestCreatePlan(t *testing.T) {
	env := setupPlanner(t)
	ctx := context.Background()

	plan, err := env.planner.CreatePlan(ctx, planRequest("b-1"), "planner")
	require.NoError(t, err)
	assert.Equal(t, entity.PlanStatusPlanned, plan.Status)
	assert.Equal(t, "q-b-1", plan.QueueID)
	require.NotNil(t, plan.ReservationID)
	assert.Equal(t, uint(7), *plan.ReservationID)
	assert.Len(t, plan.Items, 1)
	assert.Len(t, eventSteps(plan, entity.ActionExecute), 6)

	b := env.production.batches["b-1"]
	assert.True(t, b.MaterialsAssigned)
	assert.True(t, b.MachineAssigned)
	assert.Equal(t, "scheduled", b.Status)

	_, err = env.planner.CreatePlan(ctx, planRequest("b-1"), "planner")
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestCreatePlanCompensatesWhenQueueFails(t *testing.T) {
	env := setupPlanner(t)
	env.queue.err = apperr.Validation("machine MX-01 is maintenance and cannot take work")

	_, err := env.planner.CreatePlan(context.Background(), planRequest("b-1"), "planner")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	assert.Equal(t, []string{"b-1"}, env.inventory.released)
	assert.False(t, env.production.batches["b-1"].MaterialsAssigned)
	assert.Equal(t, "pending", env.production.batches["b-1"].Status)

	plans, total, err := env.planner.List(context.Background(), repository.PlanListParams{BatchID: "b-1"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	plan, err := env.planner.Get(context.Background(), plans[0].ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PlanStatusFailed, plan.Status)
	assert.Equal(t, entity.StepEnqueue, plan.FailedStep)
	assert.Equal(t, []string{
		entity.StepMarkMaterials + ":" + entity.OutcomeSucceeded,
		entity.StepReserve + ":" + entity.OutcomeSucceeded,
	}, eventSteps(plan, entity.ActionCompensate))

	// a failed plan does not block a retry
	env.queue.err = nil
	_, err = env.planner.CreatePlan(context.Background(), planRequest("b-1"), "planner")
	assert.NoError(t, err)
}

func TestCreatePlanCompensatesWhenScheduleFails(t *testing.T) {
	env := setupPlanner(t)
	env.production.scheduleErr = apperr.Upstream("production", errors.New("connection refused"))

	_, err := env.planner.CreatePlan(context.Background(), planRequest("b-1"), "planner")
	assert.True(t, errors.Is(err, apperr.ErrUpstream))

	assert.Equal(t, []string{"q-b-1"}, env.queue.cancelled)
	assert.Equal(t, []string{"b-1"}, env.inventory.released)
	b := env.production.batches["b-1"]
	assert.False(t, b.MaterialsAssigned)
	assert.False(t, b.MachineAssigned)
}

func TestCreatePlanRejectsStartedBatch(t *testing.T) {
	env := setupPlanner(t)

	_, err := env.planner.CreatePlan(context.Background(), planRequest("b-2"), "planner")
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Empty(t, env.inventory.reserved)

	_, err = env.planner.CreatePlan(context.Background(), planRequest("missing"), "planner")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCancelPlan(t *testing.T) {
	env := setupPlanner(t)
	ctx := context.Background()

	plan, err := env.planner.CreatePlan(ctx, planRequest("b-1"), "planner")
	require.NoError(t, err)

	cancelled, err := env.planner.CancelPlan(ctx, plan.ID, &CancelPlanRequest{Reason: "customer withdrew"})
	require.NoError(t, err)
	assert.Equal(t, entity.PlanStatusCancelled, cancelled.Status)
	assert.Equal(t, "cancelled", env.queue.entries["q-b-1"])
	assert.Equal(t, []string{"b-1"}, env.inventory.released)
	assert.Equal(t, "cancelled", env.production.batches["b-1"].Status)

	_, err = env.planner.CancelPlan(ctx, plan.ID, &CancelPlanRequest{})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}
