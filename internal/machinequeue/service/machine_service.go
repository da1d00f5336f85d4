package service

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/machinequeue/entity"
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"go.uber.org/zap"
)

type MachineService struct {
	repos  *repository.Repositories
	logger *zap.Logger
}

func NewMachineService(repos *repository.Repositories, logger *zap.Logger) *MachineService {
	return &MachineService{repos: repos, logger: logger}
}

type CreateMachineRequest struct {
	MachineCode string `json:"machine_code" binding:"required,max=50"`
	Name        string `json:"name" binding:"required,max=100"`
	MachineType string `json:"machine_type" binding:"max=50"`
	Location    string `json:"location"`
	Status      string `json:"status" binding:"omitempty,oneof=available maintenance offline"`
	Description string `json:"description"`
}

type UpdateMachineRequest struct {
	MachineCode *string `json:"machine_code" binding:"omitempty,max=50"`
	Name        *string `json:"name" binding:"omitempty,max=100"`
	MachineType *string `json:"machine_type"`
	Location    *string `json:"location"`
	Status      *string `json:"status" binding:"omitempty,oneof=available maintenance offline"`
	Description *string `json:"description"`
}

func (s *MachineService) Create(ctx context.Context, req *CreateMachineRequest, userID string) (*entity.Machine, error) {
	status := req.Status
	if status == "" {
		status = entity.MachineStatusAvailable
	}
	m := &entity.Machine{
		MachineCode: req.MachineCode,
		Name:        req.Name,
		MachineType: req.MachineType,
		Location:    req.Location,
		Status:      status,
		Description: req.Description,
		CreatedBy:   userID,
	}
	if err := s.repos.Machine.Create(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Info("machine created", zap.String("machine_code", m.MachineCode))
	return m, nil
}

func (s *MachineService) Get(ctx context.Context, id string) (*entity.Machine, error) {
	return s.repos.Machine.FindByID(ctx, id)
}

func (s *MachineService) List(ctx context.Context, params repository.MachineListParams) ([]entity.Machine, int64, error) {
	return s.repos.Machine.List(ctx, params)
}

// Update 更新机台；有在制任务时不能下线或转维护
func (s *MachineService) Update(ctx context.Context, id string, req *UpdateMachineRequest) (*entity.Machine, error) {
	err := s.repos.InTx(ctx, func(r *repository.Repositories) error {
		m, err := r.Machine.LockByID(ctx, id)
		if err != nil {
			return err
		}
		fields := map[string]interface{}{}
		if req.MachineCode != nil {
			fields["machine_code"] = *req.MachineCode
		}
		if req.Name != nil {
			fields["name"] = *req.Name
		}
		if req.MachineType != nil {
			fields["machine_type"] = *req.MachineType
		}
		if req.Location != nil {
			fields["location"] = *req.Location
		}
		if req.Description != nil {
			fields["description"] = *req.Description
		}
		if req.Status != nil && *req.Status != m.Status {
			running, err := r.Queue.Running(ctx, id)
			if err != nil {
				return err
			}
			if running != nil {
				return apperr.Conflict("machine %s is working on %s", m.MachineCode, running.QueueID)
			}
			fields["status"] = *req.Status
		}
		if len(fields) == 0 {
			return nil
		}
		return r.Machine.Update(ctx, m, fields)
	})
	if err != nil {
		return nil, err
	}
	return s.repos.Machine.FindByID(ctx, id)
}

func (s *MachineService) Delete(ctx context.Context, id string) error {
	return s.repos.InTx(ctx, func(r *repository.Repositories) error {
		m, err := r.Machine.LockByID(ctx, id)
		if err != nil {
			return err
		}
		active, err := r.Queue.CountActive(ctx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return apperr.Conflict("machine %s still has %d queued entries", m.MachineCode, active)
		}
		return r.Machine.SoftDelete(ctx, id)
	})
}
