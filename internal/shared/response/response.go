package response

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/gin-gonic/gin"
)

// Error codes. HTTP status is code/100.
const (
	CodeOK                = 0
	CodeValidation        = 40000
	CodeInsufficientStock = 40001
	CodeUnauthorized      = 40100
	CodeForbidden         = 40300
	CodeNotFound          = 40400
	CodeConflict          = 40900
	CodeInternal          = 50000
	CodeUpstream          = 50001
)

// Response 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Code:    CodeOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Code:    CodeOK,
		Message: "success",
		Data:    data,
	})
}

func List(c *gin.Context, items interface{}, total int64, page, pageSize int) {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	Success(c, ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

func Error(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(StatusForCode(code), Response{
		Success: false,
		Code:    code,
		Message: message,
	})
}

// Fail renders err with the code of the sentinel it wraps. The full error is
// attached to the context so the request logger records the cause.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	code := CodeForError(err)
	msg := apperr.Message(err)
	switch code {
	case CodeUpstream:
		msg = "upstream service error"
	case CodeInternal:
		msg = "internal server error"
	}
	Error(c, code, msg)
}

func BadRequest(c *gin.Context, message string) {
	Error(c, CodeValidation, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, CodeNotFound, message)
}

func StatusForCode(code int) int {
	status := code / 100
	if status < 100 || status > 599 {
		return http.StatusInternalServerError
	}
	return status
}

func CodeForError(err error) int {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, apperr.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, apperr.ErrInsufficientStock):
		return CodeInsufficientStock
	case errors.Is(err, apperr.ErrValidation):
		return CodeValidation
	case errors.Is(err, apperr.ErrConflict):
		return CodeConflict
	case errors.Is(err, apperr.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, apperr.ErrUpstream):
		return CodeUpstream
	default:
		return CodeInternal
	}
}

// ErrorForCode is the inverse of CodeForError, used by service clients to
// turn a remote envelope back into a local error.
func ErrorForCode(code int, message string) error {
	switch code {
	case CodeNotFound:
		return apperr.NotFound("%s", message)
	case CodeInsufficientStock:
		return apperr.InsufficientStock("%s", message)
	case CodeValidation:
		return apperr.Validation("%s", message)
	case CodeConflict:
		return apperr.Conflict("%s", message)
	case CodeUnauthorized:
		return apperr.Unauthorized("%s", message)
	case CodeForbidden:
		return apperr.Forbidden("%s", message)
	default:
		return apperr.Upstream("remote", errors.New(message))
	}
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}
