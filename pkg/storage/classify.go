package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Unavailable 把底层错误包装成 ErrStoreUnavailable，保留原始原因
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// Rejected 把底层错误包装成 ErrStoreRejected
func Rejected(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreRejected, op, err)
}

// IsTransportError 判断错误是否来自网络层 (连接、DNS、超时、取消)
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// ClassifyStatus 按 HTTP 状态码归类：5xx/429 视为暂时不可用，其余 4xx 视为拒绝
func ClassifyStatus(op string, status int, detail string) error {
	cause := fmt.Errorf("status %d: %s", status, detail)
	if status >= 500 || status == 429 {
		return Unavailable(op, cause)
	}
	return Rejected(op, cause)
}
