package resilience

import (
	"context"
	"errors"
	"fmt"
)

// 错误分类：ConnectionFailure 与 Timeout 可重试并计入熔断器，
// CircuitOpen 不在本地重试，ValidationError 不重试并携带出错字段，
// InternalError 记录完整上下文后以通用失败上报
var (
	ErrConnectionFailure = errors.New("connection failure")
	ErrTimeout           = errors.New("request timeout")
	ErrCircuitOpen       = errors.New("service unavailable, try another source")
	ErrInternal          = errors.New("internal error")
)

// ValidationError 输入校验错误，携带出错字段
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
}

// NewValidationError 创建校验错误
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Retryable 判断错误是否允许在弹性层重试
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrInternal) {
		return false
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}
	if errors.Is(err, ErrConnectionFailure) || errors.Is(err, ErrTimeout) {
		return true
	}
	// 上游调用超时按 Timeout 处理
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}
