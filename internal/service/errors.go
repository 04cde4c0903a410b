package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/in004/bookscape/internal/payment/paypal"
)

// 业务错误，HTTP 层据此映射状态码
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
)

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// translateNotFound 把 gorm 的记录不存在转换成 ErrNotFound
func translateNotFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundf("%s not found", what)
	}
	return err
}

// StatusCode 业务错误对应的 HTTP 状态码
func StatusCode(err error) int {
	var apiErr *paypal.APIError
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, paypal.ErrInvalidOrderID):
		return 400
	case errors.Is(err, ErrInvalidCredentials):
		return 401
	case errors.Is(err, ErrForbidden):
		return 403
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrConflict):
		return 409
	case errors.As(err, &apiErr), errors.Is(err, paypal.ErrNoApprovalLink):
		return 502
	default:
		return 500
	}
}
