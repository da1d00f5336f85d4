package entity

import (
	"sort"
	"time"
)

// UserStatus 用户状态
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// Role 角色编码
const (
	RoleAdmin            = "admin"
	RolePlanner          = "planner"
	RoleInventoryManager = "inventory_manager"
	RoleOperator         = "operator"
	RoleViewer           = "viewer"
)

// RolePermissions maps each role to the permission codes checked by
// middleware.RequirePermission. "*" grants everything.
var RolePermissions = map[string][]string{
	RoleAdmin: {"*"},
	RolePlanner: {
		"production:read", "production:write", "plans:write",
		"materials:read", "reservations:write",
		"queues:read", "queues:write",
	},
	RoleInventoryManager: {
		"materials:read", "materials:write", "reservations:write",
		"production:read", "queues:read",
	},
	RoleOperator: {
		"production:read", "production:write",
		"queues:read", "queues:write",
		"materials:read",
	},
	RoleViewer: {"production:read", "materials:read", "queues:read"},
}

func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}

// PermissionsFor returns the sorted union of the permissions of roles.
func PermissionsFor(roles []string) []string {
	set := make(map[string]struct{})
	for _, r := range roles {
		for _, p := range RolePermissions[r] {
			set[p] = struct{}{}
		}
	}
	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms
}

// User 用户实体
type User struct {
	ID           string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Username     string     `json:"username" gorm:"size:64;not null;uniqueIndex"`
	Name         string     `json:"name" gorm:"size:64;not null"`
	Email        string     `json:"email" gorm:"size:128;index"`
	PasswordHash string     `json:"-" gorm:"size:100;not null"`
	Status       string     `json:"status" gorm:"size:16;not null;default:active"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// 关联
	Roles []UserRole `json:"-" gorm:"foreignKey:UserID"`

	// 非数据库字段
	RoleCodes       []string `json:"roles" gorm:"-"`
	PermissionCodes []string `json:"permissions" gorm:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// Hydrate fills RoleCodes and PermissionCodes from the loaded Roles.
func (u *User) Hydrate() *User {
	u.RoleCodes = make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		u.RoleCodes = append(u.RoleCodes, r.Role)
	}
	sort.Strings(u.RoleCodes)
	u.PermissionCodes = PermissionsFor(u.RoleCodes)
	return u
}

// UserRole 用户角色关联
type UserRole struct {
	UserID    string    `json:"user_id" gorm:"primaryKey;type:uuid"`
	Role      string    `json:"role" gorm:"primaryKey;size:32"`
	CreatedAt time.Time `json:"created_at"`
}

func (UserRole) TableName() string {
	return "user_roles"
}
