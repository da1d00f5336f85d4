package main

import (
	"context"
	"log"

	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/shared/bootstrap"
	"github.com/bitfantasy/nimo-mes/internal/user/entity"
	"github.com/bitfantasy/nimo-mes/internal/user/handler"
	"github.com/bitfantasy/nimo-mes/internal/user/repository"
	"github.com/bitfantasy/nimo-mes/internal/user/service"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const serviceName = "user-service"

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.JWT.Secret == "" {
		log.Fatalf("jwt.secret (JWT_SECRET) is required")
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
	if err := db.AutoMigrate(&entity.User{}, &entity.UserRole{}); err != nil {
		zapLogger.Fatal("AutoMigrate failed", zap.Error(err))
	}

	// 与其他服务共用的 redis，用于禁用账号时清除远程鉴权缓存
	rdb, err := bootstrap.InitRedis(ctx, cfg.Redis)
	if err != nil {
		zapLogger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, cfg.JWT, rdb, zapLogger)
	if _, err := services.User.SeedAdmin(ctx, cfg.Admin); err != nil {
		zapLogger.Fatal("Failed to seed admin account", zap.Error(err))
	}

	router := bootstrap.NewRouter(serviceName, cfg, zapLogger, db)
	// 用户服务自己签发 token，本地校验
	handler.RegisterRoutes(router, handler.NewHandlers(services), middleware.JWTAuth(cfg.JWT.Secret))

	bootstrap.Run(serviceName, bootstrap.Port(cfg.Server, 8001), router, cfg.Server, zapLogger)
}
