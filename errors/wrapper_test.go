package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWrap 测试基本错误包装
func TestWrap(t *testing.T) {
	original := stdErrors.New("原始错误")

	wrapped := Wrap(context.Background(), original, ErrCodeStorage, "写入失败")

	require.Error(t, wrapped)
	assert.ErrorIs(t, wrapped, original)
	assert.Equal(t, ErrCodeStorage, GetErrorCode(wrapped))
	assert.Contains(t, wrapped.Error(), "写入失败")
}

func TestWrap_NilError(t *testing.T) {
	assert.NoError(t, Wrap(context.Background(), nil, ErrCodeInternal, "消息"))
	assert.NoError(t, WrapWithLog(context.Background(), nil, ErrCodeInternal, "消息"))
	assert.NoError(t, WrapStorageError(context.Background(), nil, "put"))
}

func TestWrapStorageError_KeepsNotFound(t *testing.T) {
	notFound := NewError(ErrCodeNotFound, "missing")
	wrapped := WrapStorageError(context.Background(), notFound, "get entity")
	assert.True(t, IsNotFound(wrapped))

	other := WrapStorageError(context.Background(), stdErrors.New("disk full"), "put entity")
	assert.Equal(t, ErrCodeStorage, GetErrorCode(other))
}

// TestIs_ByCode 同代码的 AppError 之间 errors.Is 成立
func TestIs_ByCode(t *testing.T) {
	sentinel := NewError(ErrCodeWriteDisabled, "write access disabled")
	err := WrapError(sentinel, ErrCodeWriteDisabled, "checkpoint rejected")

	assert.ErrorIs(t, err, sentinel)
	assert.False(t, stdErrors.Is(err, ErrTimeout))
}

func TestIsErrorCode_WalksCauseChain(t *testing.T) {
	inner := NewError(ErrCodeUnsupported, "no persistence capability")
	outer := WrapError(fmt.Errorf("resolve: %w", inner), ErrCodeStorage, "open store")

	assert.True(t, IsErrorCode(outer, ErrCodeStorage))
	assert.True(t, IsUnsupported(outer))
	assert.False(t, IsTimeout(outer))
}

func TestWithContext_DoesNotMutate(t *testing.T) {
	base := NewError(ErrCodeInvalidInput, "bad")
	derived := base.WithContext("id", "e1")

	assert.Empty(t, base.Details())
	assert.Equal(t, "e1", derived.Details()["id"])
	assert.NotEmpty(t, derived.Stack())
}

func TestNormalize(t *testing.T) {
	assert.Nil(t, Normalize(nil))
	assert.True(t, IsTimeout(Normalize(context.DeadlineExceeded)))
	assert.Equal(t, ErrCodeCanceled, GetErrorCode(Normalize(context.Canceled)))
	assert.True(t, IsNotFound(Normalize(fmt.Errorf("open: %w", fs.ErrNotExist))))

	plain := stdErrors.New("plain")
	assert.Same(t, plain, Normalize(plain))

	app := NewError(ErrCodeStorage, "x")
	assert.Equal(t, app, Normalize(app))
}

func TestConcurrentWrap(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := Wrap(context.Background(), fmt.Errorf("err %d", i), ErrCodeStorage, "并发包装")
			assert.Error(t, err)
		}(i)
	}
	wg.Wait()
}
