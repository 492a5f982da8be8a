// Package persister 把原始快照与增量写入对象存储，并从中读回
//
// 写入受显式的写访问生命周期控制：
//
//	Uninitialized -> WriteDisabled -> WriteEnabled -> (WriteDisabled | Stopped)
//
// Stopped 是终态，之后所有操作都返回 ErrStopped。
package persister

import (
	"context"
	"time"

	"rebind/errors"
	"rebind/memento"
)

// MementoPersister 持久化器接口
type MementoPersister interface {
	// LoadMementoRawData 读取存储的全部原始内容；延迟加载的实现可以返回 nil。
	// 单个对象缺失或读取失败报告给 handler，不作为错误返回。
	LoadMementoRawData(ctx context.Context, handler memento.RebindExceptionHandler) (*memento.RawSnapshot, error)

	// LoadMementoManifest 派生清单；raw 为空时先在内部加载原始数据。不可并发调用。
	LoadMementoManifest(ctx context.Context, raw *memento.RawSnapshot, handler memento.RebindExceptionHandler) (*memento.Manifest, error)

	// LoadMemento 完整反序列化；lookup 为空时使用基于清单的查找上下文。不可并发调用。
	LoadMemento(ctx context.Context, raw *memento.RawSnapshot, lookup memento.LookupContext, handler memento.RebindExceptionHandler) (*memento.FullMemento, error)

	// Checkpoint 用快照替换存储的全部持久化状态；失败时原有状态保持不变
	Checkpoint(ctx context.Context, raw *memento.RawSnapshot, handler memento.PersistenceExceptionHandler) error

	// Delta 立即应用增量；可重复应用
	Delta(ctx context.Context, delta memento.Delta, handler memento.PersistenceExceptionHandler) error

	// QueueDelta 把增量合并进下一个写入周期
	QueueDelta(delta memento.Delta) error

	EnableWriteAccess() error

	// DisableWriteAccess graceful 为 true 时先等待写入完成再切换状态
	DisableWriteAccess(ctx context.Context, graceful bool) error

	// Stop 永久停止，可从任意状态调用
	Stop(ctx context.Context, graceful bool) error

	// WaitForWritesCompleted 等待排队与进行中的写入落盘；超时返回 ErrWriteTimeout
	WaitForWritesCompleted(ctx context.Context, timeout time.Duration) error

	State() State
}

// State 写访问状态
type State int32

const (
	StateUninitialized State = iota
	StateWriteDisabled
	StateWriteEnabled
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWriteDisabled:
		return "write-disabled"
	case StateWriteEnabled:
		return "write-enabled"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// 错误定义
var (
	ErrWriteAccessDisabled = errors.NewError(errors.ErrCodeWriteDisabled, "persister write access is disabled")
	ErrStopped             = errors.NewError(errors.ErrCodeStopped, "persister is stopped")
	ErrWriteTimeout        = errors.NewError(errors.ErrCodeTimeout, "timed out waiting for persister writes")
)

// PlaneSubpath 管理平面同步记录所在的子路径；检查点会保留其内容
const PlaneSubpath = "plane"
