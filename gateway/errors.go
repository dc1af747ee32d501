package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// remoteError 标记远程调用错误是否可重试。超时、连接失败、上游 5xx
// 算瞬时错误；参数被拒、服务明确报错不重试。
type remoteError struct {
	transient bool
	msg       string
	cause     error
}

func (e *remoteError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *remoteError) Unwrap() error {
	return e.cause
}

func transientErr(cause error, format string, args ...interface{}) error {
	return &remoteError{transient: true, msg: fmt.Sprintf(format, args...), cause: cause}
}

func permanentErr(cause error, format string, args ...interface{}) error {
	return &remoteError{transient: false, msg: fmt.Sprintf(format, args...), cause: cause}
}

// IsTransient 判断错误是否值得按固定间隔重试
func IsTransient(err error) bool {
	var re *remoteError
	if errors.As(err, &re) {
		return re.transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return false
}
