package service

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/planning/entity"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const compensationTimeout = 30 * time.Second

// sagaStep is one forward action and, when it has side effects elsewhere,
// the action that undoes it.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// recordFunc persists one plan event. Failures to record are logged only.
type recordFunc func(ctx context.Context, step, action, outcome, message string)

type saga struct {
	planID string
	tracer trace.Tracer
	logger *zap.Logger
	record recordFunc
}

func (s *saga) span(ctx context.Context, name, step string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("plan_id", s.planID),
		attribute.String("saga.step", step),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Message(err))
	}
	span.End()
}

// execute runs steps in order. On the first failure the completed steps are
// compensated in reverse order and the failed step name and its error are
// returned. Compensation errors are recorded but never replace the original
// error.
func (s *saga) execute(ctx context.Context, steps []sagaStep) (string, error) {
	for i, step := range steps {
		stepCtx, span := s.span(ctx, "saga."+step.name, step.name)
		err := step.run(stepCtx)
		endSpan(span, err)

		if err == nil {
			s.record(ctx, step.name, entity.ActionExecute, entity.OutcomeSucceeded, "")
			continue
		}

		s.record(ctx, step.name, entity.ActionExecute, entity.OutcomeFailed, apperr.Message(err))
		s.logger.Warn("saga step failed, compensating",
			zap.String("plan_id", s.planID),
			zap.String("step", step.name),
			zap.Error(err))
		s.compensate(ctx, steps[:i])
		return step.name, err
	}
	return "", nil
}

// compensate undoes done in reverse. It runs on a context that survives
// cancellation of the caller's request.
func (s *saga) compensate(ctx context.Context, done []sagaStep) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.compensate == nil {
			continue
		}
		stepCtx, span := s.span(cctx, "saga.compensate."+step.name, step.name)
		err := step.compensate(stepCtx)
		endSpan(span, err)

		if err != nil {
			s.record(cctx, step.name, entity.ActionCompensate, entity.OutcomeFailed, apperr.Message(err))
			s.logger.Error("saga compensation failed",
				zap.String("plan_id", s.planID),
				zap.String("step", step.name),
				zap.Error(err))
			continue
		}
		s.record(cctx, step.name, entity.ActionCompensate, entity.OutcomeSucceeded, "")
		s.logger.Info("saga step compensated", zap.String("plan_id", s.planID), zap.String("step", step.name))
	}
}
