package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/user/service"
	"github.com/gin-gonic/gin"
)

// Handlers 用户 HTTP 处理器集合
type Handlers struct {
	Auth *AuthHandler
	User *UserHandler
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		Auth: NewAuthHandler(services.Auth),
		User: NewUserHandler(services.User),
	}
}

// RegisterRoutes mounts the auth and user APIs. Login and verify are public;
// verify does its own token extraction.
func RegisterRoutes(r gin.IRouter, h *Handlers, auth gin.HandlerFunc) {
	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/verify", h.Auth.Verify)
		authGroup.GET("/me", auth, h.Auth.Me)
	}

	admin := middleware.RequirePermission("users:admin")
	users := r.Group("/api/users", auth, admin)
	{
		users.GET("", h.User.List)
		users.POST("", h.User.Create)
		users.GET("/:id", h.User.Get)
		users.PUT("/:id", h.User.Update)
		users.DELETE("/:id", h.User.Delete)
	}
}
