package service

import (
	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/user/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services 用户服务集合
type Services struct {
	Auth *AuthService
	User *UserService
}

func NewServices(repos *repository.Repositories, jwtCfg config.JWTConfig, rdb *redis.Client, logger *zap.Logger) *Services {
	return &Services{
		Auth: NewAuthService(repos, jwtCfg, logger.Named("auth")),
		User: NewUserService(repos, rdb, logger.Named("user")),
	}
}
