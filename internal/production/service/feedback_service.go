package service

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/production/entity"
	"github.com/bitfantasy/nimo-mes/internal/production/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/shopspring/decimal"
)

type FeedbackService struct {
	repos *repository.Repositories
}

func NewFeedbackService(repos *repository.Repositories) *FeedbackService {
	return &FeedbackService{repos: repos}
}

type CreateFeedbackRequest struct {
	StepID           *string         `json:"step_id"`
	QuantityProduced decimal.Decimal `json:"quantity_produced" binding:"gte=0"`
	QuantityScrapped decimal.Decimal `json:"quantity_scrapped" binding:"gte=0"`
	QualityRating    int             `json:"quality_rating" binding:"omitempty,min=1,max=5"`
	Issues           string          `json:"issues"`
	Comments         string          `json:"comments"`
}

// Create 记录生产反馈
func (s *FeedbackService) Create(ctx context.Context, batchID string, req *CreateFeedbackRequest, userID string) (*entity.ProductionFeedback, error) {
	if err := entity.CheckQuantity("quantity_produced", req.QuantityProduced); err != nil {
		return nil, err
	}
	if err := entity.CheckQuantity("quantity_scrapped", req.QuantityScrapped); err != nil {
		return nil, err
	}
	b, err := s.repos.Batch.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status == entity.BatchStatusPending || b.Status == entity.BatchStatusCancelled {
		return nil, apperr.Conflict("batch %s is %s, feedback not accepted", b.BatchNumber, b.Status)
	}
	if req.StepID != nil && *req.StepID != "" {
		if _, err := s.repos.Step.FindByID(ctx, batchID, *req.StepID); err != nil {
			return nil, err
		}
	} else {
		req.StepID = nil
	}

	fb := &entity.ProductionFeedback{
		BatchID:          batchID,
		StepID:           req.StepID,
		QuantityProduced: req.QuantityProduced,
		QuantityScrapped: req.QuantityScrapped,
		QualityRating:    req.QualityRating,
		Issues:           req.Issues,
		Comments:         req.Comments,
		ReportedBy:       userID,
	}
	if err := s.repos.Feedback.Create(ctx, fb); err != nil {
		return nil, err
	}
	return fb, nil
}

func (s *FeedbackService) List(ctx context.Context, params repository.FeedbackListParams) ([]entity.ProductionFeedback, int64, error) {
	return s.repos.Feedback.List(ctx, params)
}

func (s *FeedbackService) Summary(ctx context.Context, batchID string) (*entity.FeedbackSummary, error) {
	if _, err := s.repos.Batch.FindByID(ctx, batchID); err != nil {
		return nil, err
	}
	return s.repos.Feedback.Summary(ctx, batchID)
}
