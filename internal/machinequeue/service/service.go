package service

import (
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/entity"
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/events"
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/repository"
	"go.uber.org/zap"
)

// Services 机台排队服务集合
type Services struct {
	Machine *MachineService
	Queue   *QueueService
	Events  *events.Hub
}

func NewServices(repos *repository.Repositories, logger *zap.Logger) *Services {
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := events.NewHub(logger.Named("events"))
	return &Services{
		Machine: NewMachineService(repos, logger.Named("machine")),
		Queue:   NewQueueService(repos, hub, logger.Named("queue")),
		Events:  hub,
	}
}

func positions(line []*entity.QueueEntry) map[string]int {
	out := make(map[string]int, len(line))
	for _, e := range line {
		out[e.QueueID] = e.Position
	}
	return out
}
