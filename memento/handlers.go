package memento

import (
	"context"
	stdErrors "errors"
	"sync"

	"rebind/errors"
	"rebind/logging"
)

// PersistenceExceptionHandler 写路径上可恢复失败的汇聚点
type PersistenceExceptionHandler interface {
	// OnGenerateMementoFailed 生成或序列化 memento 失败
	OnGenerateMementoFailed(t ObjectType, id string, err error)
	// OnPersistMementoFailed 写入单个对象失败
	OnPersistMementoFailed(t ObjectType, id string, err error)
	// OnDeleteMementoFailed 删除单个对象失败
	OnDeleteMementoFailed(t ObjectType, id string, err error)
	// OnPersistRawMementoFailed 原始快照（全量检查点）写入失败；id 为空表示整体失败
	OnPersistRawMementoFailed(t ObjectType, id string, err error)
	IsActive() bool
	Stop()
}

// RebindExceptionHandler 读/重绑定路径上可恢复失败的汇聚点
type RebindExceptionHandler interface {
	// OnLoadMementoFailed 读取或反序列化单个对象失败，该对象被跳过
	OnLoadMementoFailed(t ObjectType, id string, err error)
	// OnDanglingReference 引用的对象不存在
	OnDanglingReference(t ObjectType, id string)
	// OnDone 一次加载结束，按失败模式决定是否返回汇总错误
	OnDone() error
}

// LoggingPersistenceExceptionHandler 记录日志的默认写路径处理器
//
// 同一对象第一次失败记 WARN，之后记 DEBUG，避免周期写入刷屏。Stop 之后只记 DEBUG。
type LoggingPersistenceExceptionHandler struct {
	log logging.ILogger

	mu       sync.Mutex
	active   bool
	seen     map[string]struct{}
	failures int
}

// NewLoggingPersistenceExceptionHandler 创建处理器，logger 为空时使用组件 logger
func NewLoggingPersistenceExceptionHandler(logger logging.ILogger) *LoggingPersistenceExceptionHandler {
	if logger == nil {
		logger = logging.ComponentLogger("memento.persistence")
	}
	return &LoggingPersistenceExceptionHandler{log: logger, active: true, seen: make(map[string]struct{})}
}

func (h *LoggingPersistenceExceptionHandler) OnGenerateMementoFailed(t ObjectType, id string, err error) {
	h.report("generate", t, id, err)
}

func (h *LoggingPersistenceExceptionHandler) OnPersistMementoFailed(t ObjectType, id string, err error) {
	h.report("persist", t, id, err)
}

func (h *LoggingPersistenceExceptionHandler) OnDeleteMementoFailed(t ObjectType, id string, err error) {
	h.report("delete", t, id, err)
}

func (h *LoggingPersistenceExceptionHandler) OnPersistRawMementoFailed(t ObjectType, id string, err error) {
	h.report("persist-raw", t, id, err)
}

func (h *LoggingPersistenceExceptionHandler) IsActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

func (h *LoggingPersistenceExceptionHandler) Stop() {
	h.mu.Lock()
	h.active = false
	h.mu.Unlock()
}

// Failures 已报告的失败次数
func (h *LoggingPersistenceExceptionHandler) Failures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures
}

func (h *LoggingPersistenceExceptionHandler) report(op string, t ObjectType, id string, err error) {
	key := op + "/" + t.String() + "/" + id
	h.mu.Lock()
	h.failures++
	_, repeated := h.seen[key]
	h.seen[key] = struct{}{}
	active := h.active
	h.mu.Unlock()

	fields := []logging.Field{
		logging.String("operation", op),
		logging.String("type", t.String()),
		logging.String("id", id),
		logging.Error(err),
	}
	ctx := context.Background()
	if !active || repeated {
		h.log.Debug(ctx, "[PersistenceExceptionHandler] 持久化失败（重复或已停止）", fields...)
		return
	}
	h.log.Warn(ctx, "[PersistenceExceptionHandler] 持久化失败", fields...)
}

// FailureMode 重绑定失败处理模式
type FailureMode int

const (
	// FailAtEnd 继续加载其余对象，OnDone 返回汇总错误
	FailAtEnd FailureMode = iota
	// Continue 只记录日志，OnDone 永远返回 nil
	Continue
)

// CollectingRebindExceptionHandler 收集失败的默认读路径处理器
type CollectingRebindExceptionHandler struct {
	mode FailureMode
	log  logging.ILogger

	mu       sync.Mutex
	errs     []error
	dangling []Reference
}

// NewCollectingRebindExceptionHandler 创建处理器
func NewCollectingRebindExceptionHandler(mode FailureMode, logger logging.ILogger) *CollectingRebindExceptionHandler {
	if logger == nil {
		logger = logging.ComponentLogger("memento.rebind")
	}
	return &CollectingRebindExceptionHandler{mode: mode, log: logger}
}

func (h *CollectingRebindExceptionHandler) OnLoadMementoFailed(t ObjectType, id string, err error) {
	wrapped := errors.WrapError(err, errors.ErrCodeSerialization, "load "+t.String()+" "+id)
	h.mu.Lock()
	h.errs = append(h.errs, wrapped)
	h.mu.Unlock()
	h.log.Warn(context.Background(), "[RebindExceptionHandler] 加载 memento 失败，已跳过",
		logging.String("type", t.String()), logging.String("id", id), logging.Error(err))
}

func (h *CollectingRebindExceptionHandler) OnDanglingReference(t ObjectType, id string) {
	h.mu.Lock()
	h.dangling = append(h.dangling, Reference{Type: t, ID: id})
	h.errs = append(h.errs, errors.Newf(errors.ErrCodeNotFound, "dangling reference to %s %s", t, id))
	h.mu.Unlock()
	h.log.Warn(context.Background(), "[RebindExceptionHandler] 悬空引用",
		logging.String("type", t.String()), logging.String("id", id))
}

func (h *CollectingRebindExceptionHandler) OnDone() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mode == Continue || len(h.errs) == 0 {
		return nil
	}
	return stdErrors.Join(h.errs...)
}

// Errors 已收集的错误副本
func (h *CollectingRebindExceptionHandler) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]error, len(h.errs))
	copy(out, h.errs)
	return out
}

// Dangling 已报告的悬空引用副本
func (h *CollectingRebindExceptionHandler) Dangling() []Reference {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Reference, len(h.dangling))
	copy(out, h.dangling)
	return out
}
