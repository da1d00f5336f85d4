package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/inventory/entity"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// LowStockCacheKey holds the latest low-stock snapshot when redis is enabled.
const LowStockCacheKey = "inventory:low_stock"

type AlertSource interface {
	GetAlerts(ctx context.Context) ([]entity.Material, error)
}

// LowStockAlert is one entry of the cached snapshot.
type LowStockAlert struct {
	MaterialID     string `json:"material_id"`
	Name           string `json:"name"`
	AvailableStock string `json:"available_stock"`
	MinimumStock   string `json:"minimum_stock"`
}

// LowStockScanner periodically checks for materials under their minimum
// stock, logs them and caches the result.
type LowStockScanner struct {
	source AlertSource
	rdb    *redis.Client
	logger *zap.Logger
	cron   *cron.Cron
}

func NewLowStockScanner(source AlertSource, rdb *redis.Client, logger *zap.Logger) *LowStockScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LowStockScanner{source: source, rdb: rdb, logger: logger}
}

// Start registers the scan on spec and starts the cron runner.
func (s *LowStockScanner) Start(spec string) error {
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Scan(ctx); err != nil {
			s.logger.Error("low stock scan failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("low stock scanner started", zap.String("schedule", spec))
	return nil
}

func (s *LowStockScanner) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Scan runs one check and returns the alerts found.
func (s *LowStockScanner) Scan(ctx context.Context) ([]LowStockAlert, error) {
	materials, err := s.source.GetAlerts(ctx)
	if err != nil {
		return nil, err
	}

	alerts := make([]LowStockAlert, 0, len(materials))
	for _, m := range materials {
		alerts = append(alerts, LowStockAlert{
			MaterialID:     m.MaterialID,
			Name:           m.Name,
			AvailableStock: m.AvailableStock.StringFixed(2),
			MinimumStock:   m.MinimumStock.StringFixed(2),
		})
		s.logger.Warn("low stock",
			zap.String("material_id", m.MaterialID),
			zap.String("available", m.AvailableStock.StringFixed(2)),
			zap.String("minimum", m.MinimumStock.StringFixed(2)))
	}

	if s.rdb != nil {
		raw, err := json.Marshal(alerts)
		if err == nil {
			err = s.rdb.Set(ctx, LowStockCacheKey, raw, 0).Err()
		}
		if err != nil {
			s.logger.Warn("cache low stock snapshot failed", zap.Error(err))
		}
	}
	return alerts, nil
}
