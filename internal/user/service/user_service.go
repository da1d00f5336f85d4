package service

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/bitfantasy/nimo-mes/internal/user/entity"
	"github.com/bitfantasy/nimo-mes/internal/user/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type UserService struct {
	repos  *repository.Repositories
	rdb    *redis.Client
	logger *zap.Logger
}

// NewUserService rdb is the redis shared with the services' remote auth
// cache. It may be nil.
func NewUserService(repos *repository.Repositories, rdb *redis.Client, logger *zap.Logger) *UserService {
	return &UserService{repos: repos, rdb: rdb, logger: logger}
}

// revokeCachedAuth 账号状态、角色或密码变化后清除远程鉴权缓存
func (s *UserService) revokeCachedAuth(ctx context.Context, id string) {
	if err := middleware.InvalidateUserAuth(ctx, s.rdb, id); err != nil {
		s.logger.Warn("failed to drop cached verifications", zap.String("user_id", id), zap.Error(err))
	}
}

type CreateUserRequest struct {
	Username string   `json:"username" binding:"required,min=3,max=64"`
	Name     string   `json:"name" binding:"required,max=64"`
	Email    string   `json:"email" binding:"omitempty,email"`
	Password string   `json:"password" binding:"required,min=8"`
	Roles    []string `json:"roles" binding:"required,min=1"`
}

type UpdateUserRequest struct {
	Name     *string  `json:"name" binding:"omitempty,max=64"`
	Email    *string  `json:"email" binding:"omitempty,email"`
	Password *string  `json:"password" binding:"omitempty,min=8"`
	Status   *string  `json:"status" binding:"omitempty,oneof=active disabled"`
	Roles    []string `json:"roles"`
}

func checkRoles(roles []string) error {
	for _, r := range roles {
		if !entity.ValidRole(r) {
			return apperr.Validation("unknown role %q", r)
		}
	}
	return nil
}

func newUser(username, name, email, password string, roles []string) (*entity.User, error) {
	hashed, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	id := uuid.New().String()
	user := &entity.User{
		ID:           id,
		Username:     username,
		Name:         name,
		Email:        email,
		PasswordHash: hashed,
		Status:       entity.UserStatusActive,
	}
	for _, r := range roles {
		user.Roles = append(user.Roles, entity.UserRole{UserID: id, Role: r})
	}
	return user.Hydrate(), nil
}

func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*entity.User, error) {
	if err := checkRoles(req.Roles); err != nil {
		return nil, err
	}
	user, err := newUser(req.Username, req.Name, req.Email, req.Password, req.Roles)
	if err != nil {
		return nil, err
	}
	if err := s.repos.User.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.Strings("roles", user.RoleCodes))
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*entity.User, error) {
	return s.repos.User.FindByID(ctx, id)
}

func (s *UserService) List(ctx context.Context, p repository.UserListParams) ([]entity.User, int64, error) {
	return s.repos.User.List(ctx, p)
}

func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest) (*entity.User, error) {
	if req.Roles != nil {
		if len(req.Roles) == 0 {
			return nil, apperr.Validation("a user needs at least one role")
		}
		if err := checkRoles(req.Roles); err != nil {
			return nil, err
		}
	}

	fields := map[string]interface{}{"updated_at": time.Now()}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Email != nil {
		fields["email"] = *req.Email
	}
	if req.Status != nil {
		fields["status"] = *req.Status
	}
	if req.Password != nil {
		hashed, err := HashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		fields["password_hash"] = hashed
	}

	err := s.repos.InTx(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.User.FindByID(ctx, id); err != nil {
			return err
		}
		if err := tx.User.Update(ctx, id, fields); err != nil {
			return err
		}
		if req.Roles != nil {
			return tx.User.ReplaceRoles(ctx, id, req.Roles)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if req.Status != nil || req.Roles != nil || req.Password != nil {
		s.revokeCachedAuth(ctx, id)
	}
	return s.repos.User.FindByID(ctx, id)
}

// Disable 禁用用户（删除接口不物理删除）
func (s *UserService) Disable(ctx context.Context, id, operatorID string) error {
	if id == operatorID {
		return apperr.Conflict("cannot disable your own account")
	}
	if _, err := s.repos.User.FindByID(ctx, id); err != nil {
		return err
	}
	if err := s.repos.User.Update(ctx, id, map[string]interface{}{
		"status":     entity.UserStatusDisabled,
		"updated_at": time.Now(),
	}); err != nil {
		return err
	}
	s.revokeCachedAuth(ctx, id)
	s.logger.Info("user disabled", zap.String("user_id", id), zap.String("by", operatorID))
	return nil
}

// SeedAdmin creates the configured admin account when no user exists yet.
// It returns the created user, or nil when the table was already populated.
func (s *UserService) SeedAdmin(ctx context.Context, cfg config.AdminConfig) (*entity.User, error) {
	n, err := s.repos.User.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, nil
	}
	if cfg.Username == "" || cfg.Password == "" {
		s.logger.Warn("users table is empty but no admin credentials are configured")
		return nil, nil
	}
	user, err := newUser(cfg.Username, "Administrator", cfg.Email, cfg.Password, []string{entity.RoleAdmin})
	if err != nil {
		return nil, err
	}
	if err := s.repos.User.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("admin account seeded", zap.String("username", user.Username))
	return user, nil
}
