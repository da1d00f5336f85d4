package main

import (
	"context"
	"log"

	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/production/entity"
	"github.com/bitfantasy/nimo-mes/internal/production/handler"
	"github.com/bitfantasy/nimo-mes/internal/production/repository"
	"github.com/bitfantasy/nimo-mes/internal/production/service"
	"github.com/bitfantasy/nimo-mes/internal/shared/bootstrap"
	"github.com/bitfantasy/nimo-mes/internal/shared/client"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const serviceName = "production-service"

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := bootstrap.InitLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting nimo-mes "+serviceName, zap.String("version", bootstrap.Version))

	ctx := context.Background()
	shutdownTracing, err := bootstrap.InitTracing(ctx, serviceName, cfg.Tracing)
	if err != nil {
		zapLogger.Warn("Tracing disabled", zap.Error(err))
	} else {
		defer shutdownTracing(context.Background())
	}

	db, err := bootstrap.InitDatabase(cfg.Database, cfg.Log.Level)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(
		&entity.ProductionRequest{},
		&entity.ProductionBatch{},
		&entity.ProductionStep{},
		&entity.ProductionFeedback{},
	); err != nil {
		zapLogger.Fatal("AutoMigrate failed", zap.Error(err))
	}

	rdb, err := bootstrap.InitRedis(ctx, cfg.Redis)
	if err != nil {
		zapLogger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// 物料分配时向库存服务确认预留
	var checker service.ReservationChecker
	if cfg.Services.InventoryServiceURL != "" {
		checker = client.NewInventoryClient(cfg.Services.InventoryServiceURL, cfg.Services.Timeout)
	}

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, checker, zapLogger)

	router := bootstrap.NewRouter(serviceName, cfg, zapLogger, db)
	handler.RegisterRoutes(router, handler.NewHandlers(services), bootstrap.AuthMiddleware(cfg, rdb, zapLogger))

	bootstrap.Run(serviceName, bootstrap.Port(cfg.Server, 8002), router, cfg.Server, zapLogger)
}
