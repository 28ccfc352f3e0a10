package util

import (
	"errors"
	"net/http"

	"socratic_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// PageResponse 分页响应结构
type PageResponse struct {
	List    interface{} `json:"list"`
	Total   int64       `json:"total"`
	Page    int         `json:"page"`
	PerPage int         `json:"per_page"`
	Pages   int         `json:"pages"`
}

func NewPageResponse(list interface{}, total int64, page, perPage int) PageResponse {
	pages := 0
	if perPage > 0 {
		pages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return PageResponse{List: list, Total: total, Page: page, PerPage: perPage, Pages: pages}
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, errCode, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
		Error:   errCode,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, KindUnauthorized.Code(), "Unauthorized")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, KindInvalidRequest.Code(), message)
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, KindInternal.Code(), "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	InternalServerError(c)
}

// HandleError 按错误分类输出响应，内部错误不向客户端暴露细节
func HandleError(c *gin.Context, err error) {
	kind := KindOf(err)
	if kind == KindInternal {
		LogInternalError(c, err)
		return
	}

	message := err.Error()
	var appErr *AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if kind == KindGenerationFailure {
		logger.Log.Warn("Generation failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	Error(c, kind.Status(), kind.Code(), message)
}
