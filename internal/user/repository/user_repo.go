package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/user/entity"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts the user together with its role rows.
func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	err := r.db.WithContext(ctx).Create(u).Error
	return conflictOnDuplicate(err, "username %s already exists", u.Username)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	var u entity.User
	err := r.db.WithContext(ctx).Preload("Roles").Where("id = ?", id).First(&u).Error
	if err != nil {
		return nil, notFoundOr(err, "user %s not found", id)
	}
	return u.Hydrate(), nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	var u entity.User
	err := r.db.WithContext(ctx).Preload("Roles").Where("username = ?", username).First(&u).Error
	if err != nil {
		return nil, notFoundOr(err, "user %s not found", username)
	}
	return u.Hydrate(), nil
}

func (r *UserRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&entity.User{}).Where("id = ?", id).Updates(fields).Error
}

// ReplaceRoles swaps the user's role rows for roles.
func (r *UserRepository) ReplaceRoles(ctx context.Context, userID string, roles []string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("user_id = ?", userID).Delete(&entity.UserRole{}).Error; err != nil {
		return err
	}
	if len(roles) == 0 {
		return nil
	}
	rows := make([]entity.UserRole, 0, len(roles))
	for _, role := range roles {
		rows = append(rows, entity.UserRole{UserID: userID, Role: role})
	}
	return db.Create(&rows).Error
}

func (r *UserRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&entity.User{}).Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entity.User{}).Count(&n).Error
	return n, err
}

type UserListParams struct {
	Keyword string
	Role    string
	Status  string
	Page    int
	Size    int
}

func (r *UserRepository) List(ctx context.Context, p UserListParams) ([]entity.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.User{})
	if p.Keyword != "" {
		kw := "%" + p.Keyword + "%"
		query = query.Where("username ILIKE ? OR name ILIKE ? OR email ILIKE ?", kw, kw, kw)
	}
	if p.Role != "" {
		query = query.Where("id IN (?)", r.db.Model(&entity.UserRole{}).Select("user_id").Where("role = ?", p.Role))
	}
	if p.Status != "" {
		query = query.Where("status = ?", p.Status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page, size := normalizePage(p.Page, p.Size)
	var users []entity.User
	err := query.Preload("Roles").Order("username ASC").Offset((page - 1) * size).Limit(size).Find(&users).Error
	for i := range users {
		users[i].Hydrate()
	}
	return users, total, err
}
