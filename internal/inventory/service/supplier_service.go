package service

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/inventory/entity"
	"github.com/bitfantasy/nimo-mes/internal/inventory/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/google/uuid"
)

type SupplierService struct {
	repos *repository.Repositories
}

func NewSupplierService(repos *repository.Repositories) *SupplierService {
	return &SupplierService{repos: repos}
}

type CreateSupplierRequest struct {
	SupplierCode string `json:"supplier_code" binding:"required,max=50"`
	Name         string `json:"name" binding:"required,max=200"`
	ContactName  string `json:"contact_name"`
	Phone        string `json:"phone"`
	Email        string `json:"email" binding:"omitempty,email"`
	Address      string `json:"address"`
	LeadTimeDays int    `json:"lead_time_days" binding:"gte=0"`
	Notes        string `json:"notes"`
}

type UpdateSupplierRequest struct {
	Name         *string `json:"name"`
	ContactName  *string `json:"contact_name"`
	Phone        *string `json:"phone"`
	Email        *string `json:"email" binding:"omitempty,email"`
	Address      *string `json:"address"`
	LeadTimeDays *int    `json:"lead_time_days" binding:"omitempty,gte=0"`
	Status       *string `json:"status" binding:"omitempty,oneof=ACTIVE INACTIVE"`
	Notes        *string `json:"notes"`
}

func (s *SupplierService) Create(ctx context.Context, req CreateSupplierRequest, userID string) (*entity.Supplier, error) {
	supplier := &entity.Supplier{
		ID:           uuid.New().String(),
		SupplierCode: req.SupplierCode,
		Name:         req.Name,
		ContactName:  req.ContactName,
		Phone:        req.Phone,
		Email:        req.Email,
		Address:      req.Address,
		LeadTimeDays: req.LeadTimeDays,
		Status:       entity.SupplierStatusActive,
		Notes:        req.Notes,
		CreatedBy:    userID,
	}
	if err := s.repos.Supplier.Create(ctx, supplier); err != nil {
		return nil, err
	}
	return supplier, nil
}

func (s *SupplierService) Get(ctx context.Context, id string) (*entity.Supplier, error) {
	return s.repos.Supplier.FindByID(ctx, id)
}

func (s *SupplierService) List(ctx context.Context, keyword, status string, page, size int) ([]entity.Supplier, int64, error) {
	return s.repos.Supplier.List(ctx, keyword, status, page, size)
}

func (s *SupplierService) Update(ctx context.Context, id string, req UpdateSupplierRequest) (*entity.Supplier, error) {
	supplier, err := s.repos.Supplier.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		supplier.Name = *req.Name
	}
	if req.ContactName != nil {
		supplier.ContactName = *req.ContactName
	}
	if req.Phone != nil {
		supplier.Phone = *req.Phone
	}
	if req.Email != nil {
		supplier.Email = *req.Email
	}
	if req.Address != nil {
		supplier.Address = *req.Address
	}
	if req.LeadTimeDays != nil {
		supplier.LeadTimeDays = *req.LeadTimeDays
	}
	if req.Status != nil {
		supplier.Status = *req.Status
	}
	if req.Notes != nil {
		supplier.Notes = *req.Notes
	}
	if err := s.repos.Supplier.Update(ctx, supplier); err != nil {
		return nil, err
	}
	return supplier, nil
}

// Delete removes a supplier no live material references.
func (s *SupplierService) Delete(ctx context.Context, id string) error {
	if _, err := s.repos.Supplier.FindByID(ctx, id); err != nil {
		return err
	}
	count, err := s.repos.Material.CountBySupplier(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return apperr.Conflict("supplier is referenced by %d materials", count)
	}
	return s.repos.Supplier.SoftDelete(ctx, id)
}
