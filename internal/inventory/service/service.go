package service

import (
	"strconv"

	"github.com/bitfantasy/nimo-mes/internal/inventory/repository"
	"github.com/bsm/redislock"
	"go.uber.org/zap"
)

// Services 库存服务集合
type Services struct {
	Ledger   *LedgerService
	Material *MaterialService
	Supplier *SupplierService
	Report   *ReportService
}

func NewServices(repos *repository.Repositories, locker *redislock.Client, logger *zap.Logger) *Services {
	return &Services{
		Ledger:   NewLedgerService(repos, locker, logger.Named("ledger")),
		Material: NewMaterialService(repos, logger.Named("material")),
		Supplier: NewSupplierService(repos),
		Report:   NewReportService(repos),
	}
}

func uintToString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
