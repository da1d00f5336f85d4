package main

import (
	"context"
	"log"

	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/entity"
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/handler"
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/repository"
	"github.com/bitfantasy/nimo-mes/internal/machinequeue/service"
	"github.com/bitfantasy/nimo-mes/internal/shared/bootstrap"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const serviceName = "machine-queue-service"

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
	if err := db.AutoMigrate(&entity.Machine{}, &entity.QueueEntry{}); err != nil {
		zapLogger.Fatal("AutoMigrate failed", zap.Error(err))
	}

	rdb, err := bootstrap.InitRedis(ctx, cfg.Redis)
	if err != nil {
		zapLogger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, zapLogger)

	router := bootstrap.NewRouter(serviceName, cfg, zapLogger, db)
	handler.RegisterRoutes(router, handler.NewHandlers(services), bootstrap.AuthMiddleware(cfg, rdb, zapLogger))

	bootstrap.Run(serviceName, bootstrap.Port(cfg.Server, 8004), router, cfg.Server, zapLogger)
}
