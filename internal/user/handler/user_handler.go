package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/shared/response"
	"github.com/bitfantasy/nimo-mes/internal/user/repository"
	"github.com/bitfantasy/nimo-mes/internal/user/service"
	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	svc *service.UserService
}

func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

func (h *UserHandler) List(c *gin.Context) {
	page, size := response.GetPagination(c)
	users, total, err := h.svc.List(c.Request.Context(), repository.UserListParams{
		Keyword: c.Query("keyword"),
		Role:    c.Query("role"),
		Status:  c.Query("status"),
		Page:    page,
		Size:    size,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.List(c, users, total, page, size)
}

func (h *UserHandler) Create(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	user, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, user)
}

func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, user)
}

func (h *UserHandler) Update(c *gin.Context) {
	var req service.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	user, err := h.svc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, user)
}

func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.svc.Disable(c.Request.Context(), c.Param("id"), response.GetUserID(c)); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, nil)
}
