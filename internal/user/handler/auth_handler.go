package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/shared/response"
	"github.com/bitfantasy/nimo-mes/internal/user/service"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	result, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// Verify 校验 token：Authorization 头、token cookie，最后是 body 里的 token
func (h *AuthHandler) Verify(c *gin.Context) {
	token := middleware.ExtractToken(c)
	if token == "" {
		var body struct {
			Token string `json:"token"`
		}
		_ = c.ShouldBindJSON(&body)
		token = body.Token
	}
	identity, err := h.svc.Verify(c.Request.Context(), token)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, identity)
}

func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.svc.Me(c.Request.Context(), response.GetUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, user)
}
