package service

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/production/entity"
	"github.com/bitfantasy/nimo-mes/internal/production/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type RequestService struct {
	repos  *repository.Repositories
	logger *zap.Logger
}

func NewRequestService(repos *repository.Repositories, logger *zap.Logger) *RequestService {
	return &RequestService{repos: repos, logger: logger}
}

type CreateRequestRequest struct {
	ProductCode string          `json:"product_code" binding:"required,max=64"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required,gt=0"`
	Priority    string          `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	DueDate     *time.Time      `json:"due_date"`
	Notes       string          `json:"notes"`
}

type StepInput struct {
	Name             string `json:"name" binding:"required,max=100"`
	MachineType      string `json:"machine_type"`
	EstimatedMinutes int    `json:"estimated_minutes" binding:"gte=0"`
	Notes            string `json:"notes"`
}

type ApproveRequest struct {
	Steps []StepInput `json:"steps" binding:"omitempty,dive"`
	Notes string      `json:"notes"`
}

type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ApproveResult 审批结果
type ApproveResult struct {
	Request *entity.ProductionRequest `json:"request"`
	Batch   *entity.ProductionBatch   `json:"batch"`
}

func (s *RequestService) Create(ctx context.Context, req *CreateRequestRequest, userID string) (*entity.ProductionRequest, error) {
	if !req.Quantity.IsPositive() {
		return nil, apperr.Validation("quantity must be greater than 0")
	}
	if err := entity.CheckQuantity("quantity", req.Quantity); err != nil {
		return nil, err
	}
	priority := req.Priority
	if priority == "" {
		priority = entity.PriorityNormal
	}

	var out *entity.ProductionRequest
	err := withCodeRetry(func() error {
		number, err := s.repos.Request.GenerateNumber(ctx)
		if err != nil {
			return err
		}
		pr := &entity.ProductionRequest{
			RequestNumber: number,
			ProductCode:   req.ProductCode,
			ProductName:   req.ProductName,
			Quantity:      req.Quantity,
			Priority:      priority,
			DueDate:       req.DueDate,
			Status:        entity.RequestStatusPending,
			Notes:         req.Notes,
			RequestedBy:   userID,
		}
		if err := s.repos.Request.Create(ctx, pr); err != nil {
			return err
		}
		out = pr
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("production request created",
		zap.String("request_number", out.RequestNumber),
		zap.String("product_code", out.ProductCode),
		zap.String("quantity", out.Quantity.String()))
	return out, nil
}

func (s *RequestService) Get(ctx context.Context, id string) (*entity.ProductionRequest, error) {
	return s.repos.Request.FindByID(ctx, id)
}

func (s *RequestService) List(ctx context.Context, params repository.RequestListParams) ([]entity.ProductionRequest, int64, error) {
	return s.repos.Request.List(ctx, params)
}

// Approve 审批通过并生成批次与工序
func (s *RequestService) Approve(ctx context.Context, id string, req *ApproveRequest, userID string) (*ApproveResult, error) {
	var result *ApproveResult
	err := withCodeRetry(func() error {
		return s.repos.InTx(ctx, func(r *repository.Repositories) error {
			pr, err := r.Request.LockByID(ctx, id)
			if err != nil {
				return err
			}
			if pr.Status != entity.RequestStatusPending {
				return apperr.Conflict("request %s is %s, only pending requests can be approved", pr.RequestNumber, pr.Status)
			}

			number, err := r.Batch.GenerateNumber(ctx)
			if err != nil {
				return err
			}
			batch := &entity.ProductionBatch{
				BatchNumber: number,
				RequestID:   pr.ID,
				ProductCode: pr.ProductCode,
				Quantity:    pr.Quantity,
				Status:      entity.BatchStatusPending,
				Notes:       req.Notes,
				CreatedBy:   userID,
			}
			for i, st := range req.Steps {
				batch.Steps = append(batch.Steps, entity.ProductionStep{
					Sequence:         i + 1,
					Name:             st.Name,
					MachineType:      st.MachineType,
					EstimatedMinutes: st.EstimatedMinutes,
					Status:           entity.StepStatusPending,
					Notes:            st.Notes,
				})
			}
			if err := r.Batch.Create(ctx, batch); err != nil {
				return err
			}

			now := time.Now()
			if err := r.Request.Update(ctx, pr, map[string]interface{}{
				"status":      entity.RequestStatusApproved,
				"approved_by": userID,
				"approved_at": now,
			}); err != nil {
				return err
			}
			pr.Status = entity.RequestStatusApproved
			pr.ApprovedBy = userID
			pr.ApprovedAt = &now

			result = &ApproveResult{Request: pr, Batch: batch}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("production request approved",
		zap.String("request_number", result.Request.RequestNumber),
		zap.String("batch_number", result.Batch.BatchNumber),
		zap.Int("steps", len(result.Batch.Steps)))
	return result, nil
}

func (s *RequestService) Reject(ctx context.Context, id string, req *RejectRequest, userID string) (*entity.ProductionRequest, error) {
	return s.close(ctx, id, entity.RequestStatusRejected, map[string]interface{}{
		"reject_reason": req.Reason,
		"approved_by":   userID,
	})
}

func (s *RequestService) Cancel(ctx context.Context, id string) (*entity.ProductionRequest, error) {
	return s.close(ctx, id, entity.RequestStatusCancelled, nil)
}

func (s *RequestService) close(ctx context.Context, id, status string, extra map[string]interface{}) (*entity.ProductionRequest, error) {
	var out *entity.ProductionRequest
	err := s.repos.InTx(ctx, func(r *repository.Repositories) error {
		pr, err := r.Request.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if pr.Status != entity.RequestStatusPending {
			return apperr.Conflict("request %s is already %s", pr.RequestNumber, pr.Status)
		}
		fields := map[string]interface{}{"status": status}
		for k, v := range extra {
			fields[k] = v
		}
		if err := r.Request.Update(ctx, pr, fields); err != nil {
			return err
		}
		out = pr
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("production request closed", zap.String("request_number", out.RequestNumber), zap.String("status", status))
	return s.repos.Request.FindByID(ctx, id)
}
