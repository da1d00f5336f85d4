package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Repositories 库存仓库集合
type Repositories struct {
	db          *gorm.DB
	Material    *MaterialRepository
	Reservation *ReservationRepository
	Supplier    *SupplierRepository
	Transaction *TransactionRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:          db,
		Material:    NewMaterialRepository(db),
		Reservation: NewReservationRepository(db),
		Supplier:    NewSupplierRepository(db),
		Transaction: NewTransactionRepository(db),
	}
}

// InTx runs fn inside a database transaction with repositories bound to it.
func (r *Repositories) InTx(ctx context.Context, fn func(txRepos *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// notFoundOr maps a missing row, or an id postgres cannot parse (22P02), to
// NotFound.
func notFoundOr(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(format, args...)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
		return apperr.NotFound(format, args...)
	}
	return err
}

func conflictOnDuplicate(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict(format, args...)
	}
	return err
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return page, size
}
