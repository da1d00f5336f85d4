package service

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/inventory/entity"
	"github.com/bitfantasy/nimo-mes/internal/inventory/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	batchLockTTL   = 30 * time.Second
	batchLockRetry = 100 * time.Millisecond
)

// LedgerService owns every stock mutation: add, consume, reserve, release
// and issue. Each runs in one transaction holding row locks on the affected
// materials, taken in material id order.
type LedgerService struct {
	repos  *repository.Repositories
	locker *redislock.Client
	logger *zap.Logger
	tracer trace.Tracer
}

// NewLedgerService builds the ledger. locker may be nil, in which case the
// per-batch lock is skipped and row locks alone serialize reservations.
func NewLedgerService(repos *repository.Repositories, locker *redislock.Client, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		repos:  repos,
		locker: locker,
		logger: logger,
		tracer: otel.Tracer("nimo-mes/inventory"),
	}
}

type StockChangeRequest struct {
	Quantity    decimal.Decimal `json:"quantity" binding:"required,gt=0"`
	ReferenceID string          `json:"reference_id"`
	Notes       string          `json:"notes"`
}

type ReserveItem struct {
	MaterialID       string          `json:"material_id" binding:"required"`
	QuantityRequired decimal.Decimal `json:"quantity" binding:"required,gt=0"`
}

type ReserveRequest struct {
	BatchID string        `json:"batch_id" binding:"required"`
	Items   []ReserveItem `json:"items" binding:"required,min=1,dive"`
	Notes   string        `json:"notes"`
}

func (s *LedgerService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Message(err))
	}
	span.End()
}

func newTransaction(m *entity.Material, txType string, qty decimal.Decimal, refType, refID, notes, userID string) *entity.InventoryTransaction {
	return &entity.InventoryTransaction{
		ID:              uuid.New().String(),
		MaterialID:      m.MaterialID,
		TransactionType: txType,
		Quantity:        qty,
		CurrentAfter:    m.CurrentStock,
		ReservedAfter:   m.ReservedStock,
		ReferenceType:   refType,
		ReferenceID:     refID,
		Notes:           notes,
		CreatedBy:       userID,
	}
}

// AddStock 入库
func (s *LedgerService) AddStock(ctx context.Context, materialID string, req StockChangeRequest, userID string) (m *entity.Material, err error) {
	ctx, span := s.startSpan(ctx, "ledger.AddStock", attribute.String("material_id", materialID))
	defer func() { endSpan(span, err) }()

	return s.mutateStock(ctx, materialID, req, userID, entity.TxTypeReceipt, (*entity.Material).AddStock, 1)
}

// ConsumeStock 直接领用
func (s *LedgerService) ConsumeStock(ctx context.Context, materialID string, req StockChangeRequest, userID string) (m *entity.Material, err error) {
	ctx, span := s.startSpan(ctx, "ledger.ConsumeStock", attribute.String("material_id", materialID))
	defer func() { endSpan(span, err) }()

	return s.mutateStock(ctx, materialID, req, userID, entity.TxTypeConsumption, (*entity.Material).ConsumeStock, -1)
}

func (s *LedgerService) mutateStock(ctx context.Context, materialID string, req StockChangeRequest, userID, txType string,
	op func(*entity.Material, decimal.Decimal) error, sign int64) (*entity.Material, error) {
	var out *entity.Material
	err := s.repos.InTx(ctx, func(r *repository.Repositories) error {
		m, err := r.Material.LockForUpdate(ctx, materialID)
		if err != nil {
			return err
		}
		if err := op(m, req.Quantity); err != nil {
			return err
		}
		if err := r.Material.SaveStock(ctx, m, userID); err != nil {
			return err
		}
		refType := entity.RefTypeManual
		if req.ReferenceID != "" {
			refType = entity.RefTypeBatch
		}
		tx := newTransaction(m, txType, req.Quantity.Mul(decimal.NewFromInt(sign)), refType, req.ReferenceID, req.Notes, userID)
		if err := r.Transaction.Create(ctx, tx); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("stock changed",
		zap.String("material_id", materialID),
		zap.String("type", txType),
		zap.String("quantity", req.Quantity.StringFixed(2)),
		zap.String("available", out.AvailableStock.StringFixed(2)),
		zap.String("user_id", userID))
	return out, nil
}

// withBatchLock serializes reservation changes for one batch across
// instances when redis is configured.
func (s *LedgerService) withBatchLock(ctx context.Context, batchID string, fn func() error) error {
	if s.locker == nil {
		return fn()
	}
	lock, err := s.locker.Obtain(ctx, "reservation:batch:"+batchID, batchLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(batchLockRetry), 20),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return apperr.Conflict("reservation for batch %s is being modified", batchID)
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			s.logger.Warn("release batch lock failed", zap.String("batch_id", batchID), zap.Error(err))
		}
	}()
	return fn()
}

// Reserve validates every line against available stock and reserves all of
// them, or none.
func (s *LedgerService) Reserve(ctx context.Context, req ReserveRequest, userID string) (res *entity.Reservation, err error) {
	ctx, span := s.startSpan(ctx, "ledger.Reserve", attribute.String("batch_id", req.BatchID))
	defer func() { endSpan(span, err) }()

	if req.BatchID == "" {
		return nil, apperr.Validation("batch_id is required")
	}
	raw := make([]entity.Line, 0, len(req.Items))
	for _, item := range req.Items {
		raw = append(raw, entity.Line{MaterialID: item.MaterialID, Quantity: item.QuantityRequired})
	}
	lines, err := entity.NormalizeLines(raw)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("lines", len(lines)))

	err = s.withBatchLock(ctx, req.BatchID, func() error {
		return s.repos.InTx(ctx, func(r *repository.Repositories) error {
			active, err := r.Reservation.HasActive(ctx, req.BatchID)
			if err != nil {
				return err
			}
			if active {
				return apperr.Conflict("batch %s already has an active reservation", req.BatchID)
			}

			ids := make([]string, len(lines))
			for i, l := range lines {
				ids[i] = l.MaterialID
			}
			materials, err := r.Material.LockMany(ctx, ids)
			if err != nil {
				return err
			}
			if err := entity.ApplyReservation(materials, lines); err != nil {
				return err
			}

			res = &entity.Reservation{
				BatchID:   req.BatchID,
				Status:    entity.ReservationStatusReserved,
				Notes:     req.Notes,
				CreatedBy: userID,
			}
			for i, l := range lines {
				res.Items = append(res.Items, entity.ReservationItem{
					LineNo:           i + 1,
					MaterialID:       l.MaterialID,
					QuantityReserved: l.Quantity,
					UnitOfMeasure:    materials[l.MaterialID].UnitOfMeasure,
				})
			}
			if err := r.Reservation.Create(ctx, res); err != nil {
				return err
			}

			return s.persistLines(ctx, r, materials, lines, entity.TxTypeReservation, res, userID, 1)
		})
	})
	if err != nil {
		s.logger.Warn("reservation rejected", zap.String("batch_id", req.BatchID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("materials reserved",
		zap.Uint("reservation_id", res.ID),
		zap.String("batch_id", res.BatchID),
		zap.Int("lines", len(res.Items)))
	return res, nil
}

func (s *LedgerService) persistLines(ctx context.Context, r *repository.Repositories, materials map[string]*entity.Material,
	lines []entity.Line, txType string, res *entity.Reservation, userID string, sign int64) error {
	saved := make(map[string]bool, len(materials))
	for _, l := range lines {
		m := materials[l.MaterialID]
		if !saved[l.MaterialID] {
			if err := r.Material.SaveStock(ctx, m, userID); err != nil {
				return err
			}
			saved[l.MaterialID] = true
		}
		tx := newTransaction(m, txType, l.Quantity.Mul(decimal.NewFromInt(sign)), entity.RefTypeReservation,
			uintToString(res.ID), "batch "+res.BatchID, userID)
		if err := r.Transaction.Create(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

// Release reverses every line of the batch's active reservation.
func (s *LedgerService) Release(ctx context.Context, batchID, userID string) (res *entity.Reservation, err error) {
	ctx, span := s.startSpan(ctx, "ledger.Release", attribute.String("batch_id", batchID))
	defer func() { endSpan(span, err) }()

	res, err = s.settle(ctx, batchID, userID, entity.TxTypeRelease, entity.ReverseReservation, entity.ReservationStatusReleased)
	if err != nil {
		return nil, err
	}
	s.logger.Info("reservation released", zap.Uint("reservation_id", res.ID), zap.String("batch_id", batchID))
	return res, nil
}

// Issue consumes the reserved quantities of the batch's active reservation.
func (s *LedgerService) Issue(ctx context.Context, batchID, userID string) (res *entity.Reservation, err error) {
	ctx, span := s.startSpan(ctx, "ledger.Issue", attribute.String("batch_id", batchID))
	defer func() { endSpan(span, err) }()

	res, err = s.settle(ctx, batchID, userID, entity.TxTypeIssue, entity.IssueReservation, entity.ReservationStatusConsumed)
	if err != nil {
		return nil, err
	}
	s.logger.Info("reservation issued", zap.Uint("reservation_id", res.ID), zap.String("batch_id", batchID))
	return res, nil
}

func (s *LedgerService) settle(ctx context.Context, batchID, userID, txType string,
	apply func(map[string]*entity.Material, []entity.Line) error, status string) (*entity.Reservation, error) {
	var res *entity.Reservation
	err := s.withBatchLock(ctx, batchID, func() error {
		return s.repos.InTx(ctx, func(r *repository.Repositories) error {
			var err error
			res, err = r.Reservation.LockActiveByBatch(ctx, batchID)
			if err != nil {
				return err
			}

			lines, err := entity.NormalizeLines(res.Lines())
			if err != nil {
				return err
			}
			ids := make([]string, len(lines))
			for i, l := range lines {
				ids[i] = l.MaterialID
			}
			materials, err := r.Material.LockMany(ctx, ids)
			if err != nil {
				return err
			}
			if err := apply(materials, lines); err != nil {
				return err
			}

			now := time.Now()
			fields := map[string]interface{}{"status": status, "updated_at": now}
			switch status {
			case entity.ReservationStatusReleased:
				fields["released_at"] = now
				fields["released_by"] = userID
				res.ReleasedAt = &now
				res.ReleasedBy = userID
			case entity.ReservationStatusConsumed:
				fields["consumed_at"] = now
				res.ConsumedAt = &now
			}
			if err := r.Reservation.UpdateStatus(ctx, res, fields); err != nil {
				return err
			}
			res.Status = status

			sign := int64(-1)
			return s.persistLines(ctx, r, materials, lines, txType, res, userID, sign)
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *LedgerService) GetReservation(ctx context.Context, id uint) (*entity.Reservation, error) {
	return s.repos.Reservation.FindByID(ctx, id)
}

// GetReservationByBatch returns the batch's latest reservation.
func (s *LedgerService) GetReservationByBatch(ctx context.Context, batchID string) (*entity.Reservation, error) {
	return s.repos.Reservation.FindLatestByBatch(ctx, batchID)
}

func (s *LedgerService) ListReservations(ctx context.Context, params repository.ReservationListParams) ([]entity.Reservation, int64, error) {
	return s.repos.Reservation.List(ctx, params)
}
