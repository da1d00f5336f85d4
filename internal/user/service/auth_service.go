package service

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/bitfantasy/nimo-mes/internal/shared/client"
	"github.com/bitfantasy/nimo-mes/internal/user/entity"
	"github.com/bitfantasy/nimo-mes/internal/user/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultTokenExpire = 12 * time.Hour

// AuthService 认证服务
type AuthService struct {
	repos  *repository.Repositories
	cfg    config.JWTConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewAuthService(repos *repository.Repositories, cfg config.JWTConfig, logger *zap.Logger) *AuthService {
	if cfg.AccessTokenExpire <= 0 {
		cfg.AccessTokenExpire = defaultTokenExpire
	}
	return &AuthService{repos: repos, cfg: cfg, logger: logger, now: time.Now}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResult 登录结果
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expires_in"`
	User      *entity.User `json:"user"`
}

// Login checks the credentials and issues an access token. Unknown users,
// wrong passwords and disabled accounts all fail with the same message.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	user, err := s.repos.User.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unauthorized("invalid username or password")
		}
		return nil, err
	}
	ok, err := CheckPassword(user.PasswordHash, req.Password)
	if err != nil {
		s.logger.Warn("password check failed", zap.String("username", user.Username), zap.Error(err))
	}
	if !ok || !user.IsActive() {
		return nil, apperr.Unauthorized("invalid username or password")
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.repos.User.TouchLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("record login time failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	user.LastLoginAt = &now

	s.logger.Info("user logged in", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return &LoginResult{
		Token:     token,
		ExpiresIn: int64(s.cfg.AccessTokenExpire.Seconds()),
		User:      user,
	}, nil
}

// IssueToken signs an HS256 access token carrying the user's roles and
// permissions.
func (s *AuthService) IssueToken(user *entity.User) (string, error) {
	now := s.now()
	claims := middleware.JWTClaims{
		UserID:      user.ID,
		Username:    user.Username,
		Name:        user.Name,
		Email:       user.Email,
		Roles:       user.RoleCodes,
		Permissions: user.PermissionCodes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenExpire)),
			ID:        uuid.New().String(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
}

// Verify validates token and returns the current state of its user, so role
// changes and disabled accounts take effect before the token expires.
func (s *AuthService) Verify(ctx context.Context, token string) (*client.Identity, error) {
	if token == "" {
		return nil, apperr.Unauthorized("token is required")
	}
	claims, err := middleware.ParseToken(token, s.cfg.Secret)
	if err != nil {
		return nil, err
	}
	user, err := s.repos.User.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unauthorized("user no longer exists")
		}
		return nil, err
	}
	if !user.IsActive() {
		return nil, apperr.Unauthorized("user is disabled")
	}
	return &client.Identity{
		ID:          user.ID,
		Username:    user.Username,
		Name:        user.Name,
		Email:       user.Email,
		Roles:       user.RoleCodes,
		Permissions: user.PermissionCodes,
	}, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*entity.User, error) {
	return s.repos.User.FindByID(ctx, userID)
}
