package main

import (
	"context"
	"log"

	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/planning/entity"
	"github.com/bitfantasy/nimo-mes/internal/planning/handler"
	"github.com/bitfantasy/nimo-mes/internal/planning/repository"
	"github.com/bitfantasy/nimo-mes/internal/planning/service"
	"github.com/bitfantasy/nimo-mes/internal/shared/bootstrap"
	"github.com/bitfantasy/nimo-mes/internal/shared/client"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const serviceName = "planning-service"

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
	if err := db.AutoMigrate(&entity.ProductionPlan{}, &entity.PlanItem{}, &entity.PlanEvent{}); err != nil {
		zapLogger.Fatal("AutoMigrate failed", zap.Error(err))
	}

	rdb, err := bootstrap.InitRedis(ctx, cfg.Redis)
	if err != nil {
		zapLogger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// 编排三个下游服务
	timeout := cfg.Services.Timeout
	planner := service.NewPlanner(
		repository.NewRepositories(db),
		client.NewProductionClient(cfg.Services.ProductionServiceURL, timeout),
		client.NewInventoryClient(cfg.Services.InventoryServiceURL, timeout),
		client.NewMachineQueueClient(cfg.Services.MachineQueueServiceURL, timeout),
		zapLogger.Named("planner"),
	)

	router := bootstrap.NewRouter(serviceName, cfg, zapLogger, db)
	handler.RegisterRoutes(router, handler.NewPlanHandler(planner), bootstrap.AuthMiddleware(cfg, rdb, zapLogger))

	bootstrap.Run(serviceName, bootstrap.Port(cfg.Server, 8005), router, cfg.Server, zapLogger)
}
