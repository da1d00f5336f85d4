package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/planning/entity"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type recorded struct {
	step, action, outcome string
}

func newTestSaga(events *[]recorded) *saga {
	return &saga{
		planID: "p1",
		tracer: otel.Tracer("test"),
		logger: zap.NewNop(),
		record: func(ctx context.Context, step, action, outcome, message string) {
			*events = append(*events, recorded{step, action, outcome})
		},
	}
}

func TestSagaCompensatesInReverse(t *testing.T) {
	var events []recorded
	var undone []string
	step := func(name string, fail bool) sagaStep {
		return sagaStep{
			name: name,
			run: func(ctx context.Context) error {
				if fail {
					return errors.New(name + " broke")
				}
				return nil
			},
			compensate: func(ctx context.Context) error {
				undone = append(undone, name)
				return nil
			},
		}
	}

	failed, err := newTestSaga(&events).execute(context.Background(), []sagaStep{
		step("a", false), step("b", false), step("c", true), step("d", false),
	})
	assert.Error(t, err)
	assert.Equal(t, "c", failed)
	assert.Equal(t, []string{"b", "a"}, undone)
	assert.Equal(t, []recorded{
		{"a", entity.ActionExecute, entity.OutcomeSucceeded},
		{"b", entity.ActionExecute, entity.OutcomeSucceeded},
		{"c", entity.ActionExecute, entity.OutcomeFailed},
		{"b", entity.ActionCompensate, entity.OutcomeSucceeded},
		{"a", entity.ActionCompensate, entity.OutcomeSucceeded},
	}, events)
}

func TestSagaKeepsOriginalErrorWhenCompensationFails(t *testing.T) {
	var events []recorded
	original := errors.New("queue full")
	ranAfter := false

	_, err := newTestSaga(&events).execute(context.Background(), []sagaStep{
		{name: "first", run: func(ctx context.Context) error { return nil },
			compensate: func(ctx context.Context) error { ranAfter = true; return nil }},
		{name: "second", run: func(ctx context.Context) error { return nil },
			compensate: func(ctx context.Context) error { return errors.New("release failed") }},
		{name: "third", run: func(ctx context.Context) error { return original }},
	})
	assert.Same(t, original, err)
	assert.True(t, ranAfter, "earlier compensations still run")
	assert.Contains(t, events, recorded{"second", entity.ActionCompensate, entity.OutcomeFailed})
}

func TestSagaCompensationSurvivesCancelledContext(t *testing.T) {
	var events []recorded
	ctx, cancel := context.WithCancel(context.Background())
	var compErr error

	_, err := newTestSaga(&events).execute(ctx, []sagaStep{
		{name: "reserve", run: func(ctx context.Context) error { return nil },
			compensate: func(ctx context.Context) error { compErr = ctx.Err(); return nil }},
		{name: "enqueue", run: func(ctx context.Context) error { cancel(); return ctx.Err() }},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, compErr)
}

func TestSagaSuccess(t *testing.T) {
	var events []recorded
	failed, err := newTestSaga(&events).execute(context.Background(), []sagaStep{
		{name: "only", run: func(ctx context.Context) error { return nil }},
	})
	assert.NoError(t, err)
	assert.Empty(t, failed)
	assert.Len(t, events, 1)
}
