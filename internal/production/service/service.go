package service

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-mes/internal/production/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/bitfantasy/nimo-mes/internal/shared/client"
	"go.uber.org/zap"
)

// ReservationChecker looks up the current reservation of a batch.
// *client.InventoryClient implements it.
type ReservationChecker interface {
	GetReservation(ctx context.Context, batchID string) (*client.Reservation, error)
}

// Services 生产服务集合
type Services struct {
	Request  *RequestService
	Batch    *BatchService
	Step     *StepService
	Feedback *FeedbackService
}

// NewServices wires the production services. checker may be nil, in which
// case materials_assigned is trusted without asking inventory.
func NewServices(repos *repository.Repositories, checker ReservationChecker, logger *zap.Logger) *Services {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Services{
		Request:  NewRequestService(repos, logger.Named("request")),
		Batch:    NewBatchService(repos, checker, logger.Named("batch")),
		Step:     NewStepService(repos, logger.Named("step")),
		Feedback: NewFeedbackService(repos),
	}
}

const codeAttempts = 3

// withCodeRetry reruns fn when a generated number collided with a
// concurrent insert.
func withCodeRetry(fn func() error) error {
	var err error
	for i := 0; i < codeAttempts; i++ {
		if err = fn(); !errors.Is(err, apperr.ErrConflict) {
			return err
		}
	}
	return err
}
