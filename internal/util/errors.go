package util

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind 错误分类，对外暴露稳定的状态码与错误码
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalidRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindExtraction
	KindGenerationFailure
)

var kindInfo = map[ErrorKind]struct {
	status int
	code   string
}{
	KindInvalidRequest:    {http.StatusBadRequest, "invalid_request"},
	KindUnauthorized:      {http.StatusUnauthorized, "unauthorized"},
	KindForbidden:         {http.StatusForbidden, "forbidden"},
	KindNotFound:          {http.StatusNotFound, "not_found"},
	KindExtraction:        {http.StatusUnprocessableEntity, "extraction_error"},
	KindGenerationFailure: {http.StatusBadGateway, "generation_failure"},
	KindInternal:          {http.StatusInternalServerError, "internal_error"},
}

func (k ErrorKind) Status() int {
	if info, ok := kindInfo[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

func (k ErrorKind) Code() string {
	if info, ok := kindInfo[k]; ok {
		return info.code
	}
	return "internal_error"
}

// AppError 服务层返回给控制器的错误
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func newAppError(kind ErrorKind, err error, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func InvalidRequest(format string, args ...any) *AppError {
	return newAppError(KindInvalidRequest, nil, format, args...)
}

func UnauthorizedError(format string, args ...any) *AppError {
	return newAppError(KindUnauthorized, nil, format, args...)
}

func ForbiddenError(format string, args ...any) *AppError {
	return newAppError(KindForbidden, nil, format, args...)
}

func NotFoundError(format string, args ...any) *AppError {
	return newAppError(KindNotFound, nil, format, args...)
}

func ExtractionError(err error, format string, args ...any) *AppError {
	return newAppError(KindExtraction, err, format, args...)
}

func GenerationFailure(err error, format string, args ...any) *AppError {
	return newAppError(KindGenerationFailure, err, format, args...)
}

func InternalError(err error, format string, args ...any) *AppError {
	return newAppError(KindInternal, err, format, args...)
}

// KindOf 非 AppError 一律视为内部错误
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind 判断错误链中是否包含指定分类
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrInactiveUser       = errors.New("inactive user")
	ErrPermissionDenied   = errors.New("permission denied")
)
