package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Repositories 生产仓库集合
type Repositories struct {
	db       *gorm.DB
	Request  *RequestRepository
	Batch    *BatchRepository
	Step     *StepRepository
	Feedback *FeedbackRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:       db,
		Request:  NewRequestRepository(db),
		Batch:    NewBatchRepository(db),
		Step:     NewStepRepository(db),
		Feedback: NewFeedbackRepository(db),
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

// nextCode 生成编码 {prefix}-{yyyymmdd}-{4位}
func nextCode(ctx context.Context, db *gorm.DB, model interface{}, column, prefix string, now time.Time) (string, error) {
	base := fmt.Sprintf("%s-%s-", prefix, now.Format("20060102"))

	var maxCode string
	err := db.WithContext(ctx).
		Model(model).
		Select("COALESCE(MAX(" + column + "), '')").
		Where(column+" LIKE ?", base+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(strings.TrimPrefix(maxCode, base), "%04d", &seq)
	}
	seq++
	return fmt.Sprintf("%s%04d", base, seq), nil
}
