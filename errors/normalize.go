package errors

import (
	"context"
	stdErrors "errors"
	"io/fs"
)

// Normalize 将标准库/基础设施层的错误规范化为 AppError。
//
// 注意：
//   - 如果传入的 err 已经是 IError，则原样返回；
//   - 未识别的错误保持原样，不强行包装，交由调用方决定是否 Wrap。
func Normalize(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := err.(IError); ok {
		return err
	}

	switch {
	case stdErrors.Is(err, context.DeadlineExceeded):
		return WrapError(err, ErrCodeTimeout, "deadline exceeded")
	case stdErrors.Is(err, context.Canceled):
		return WrapError(err, ErrCodeCanceled, "canceled")
	case stdErrors.Is(err, fs.ErrNotExist):
		return WrapError(err, ErrCodeNotFound, "not found")
	}

	return err
}
