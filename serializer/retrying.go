package serializer

import (
	"context"
	"sync"

	"rebind/errors"
	"rebind/logging"
	"rebind/memento"
	"rebind/patterns/retry"
)

// DefaultRetries 默认重试次数（不含首次）
const DefaultRetries = 1

// RetryingSerializer 为序列化器增加有限次重试
//
// 部分序列化失败是暂时的（例如读取字段时对象正在被并发修改）。
// 调用方逐个对象调用，单个对象失败不影响其余对象。
type RetryingSerializer struct {
	delegate Serializer
	cfg      retry.Config
	log      logging.ILogger
}

// NewRetryingSerializer 创建重试序列化器，retries 为重试次数（不含首次），负数按 0 处理
func NewRetryingSerializer(delegate Serializer, retries int) *RetryingSerializer {
	s := &RetryingSerializer{
		delegate: delegate,
		log:      logging.ComponentLogger("serializer.retrying"),
	}
	cfg := retry.DefaultConfig().WithRetries(retries)
	cfg.InitialDelay = 0
	// 结构性错误重试也不会成功
	cfg.Retryable = func(err error) bool {
		return !errors.IsUnsupported(err) && !errors.IsErrorCode(err, errors.ErrCodeInvalidInput)
	}
	s.cfg = cfg
	return s
}

// WithLogger 替换日志实现
func (s *RetryingSerializer) WithLogger(logger logging.ILogger) *RetryingSerializer {
	if logger != nil {
		s.log = logger
	}
	return s
}

// Delegate 被包装的序列化器
func (s *RetryingSerializer) Delegate() Serializer { return s.delegate }

func (s *RetryingSerializer) Format() string { return s.delegate.Format() }

// Serialize 序列化，失败时对同一对象重试
func (s *RetryingSerializer) Serialize(m memento.Memento) (string, error) {
	cfg := s.withRetryLog("serialize", m)
	return retry.DoValue(context.Background(), func(ctx context.Context, _ int) (string, error) {
		return s.delegate.Serialize(m)
	}, cfg)
}

// Deserialize 反序列化，失败时重试；同一悬空引用在多次尝试中只报告一次
func (s *RetryingSerializer) Deserialize(t memento.ObjectType, payload string, lookup memento.LookupContext) (memento.Memento, error) {
	if lookup != nil {
		lookup = newReportOnceLookup(lookup)
	}
	cfg := s.cfg
	cfg.OnRetry = func(attempt int, err error) {
		s.log.Debug(context.Background(), "[RetryingSerializer] 反序列化失败，重试",
			logging.String("type", t.String()), logging.Int("attempt", attempt), logging.Error(err))
	}
	return retry.DoValue(context.Background(), func(ctx context.Context, _ int) (memento.Memento, error) {
		return s.delegate.Deserialize(t, payload, lookup)
	}, cfg)
}

// Peek 委托给底层序列化器；不具备 Peek 能力时返回 UNSUPPORTED
func (s *RetryingSerializer) Peek(t memento.ObjectType, payload string) (memento.ManifestEntry, error) {
	p, ok := s.delegate.(memento.Peeker)
	if !ok {
		return memento.ManifestEntry{}, errors.NewError(errors.ErrCodeUnsupported, "serializer cannot peek")
	}
	return p.Peek(t, payload)
}

func (s *RetryingSerializer) withRetryLog(op string, m memento.Memento) retry.Config {
	cfg := s.cfg
	cfg.OnRetry = func(attempt int, err error) {
		fields := []logging.Field{
			logging.String("operation", op),
			logging.Int("attempt", attempt),
			logging.Error(err),
		}
		if m != nil {
			fields = append(fields, logging.String("type", m.GetType().String()), logging.String("id", m.GetID()))
		}
		s.log.Debug(context.Background(), "[RetryingSerializer] 序列化失败，重试", fields...)
	}
	return cfg
}

// reportOnceLookup 包装查找上下文，重复的悬空引用不再报告
type reportOnceLookup struct {
	memento.LookupContext

	mu       sync.Mutex
	reported map[memento.Reference]struct{}
}

func newReportOnceLookup(lookup memento.LookupContext) *reportOnceLookup {
	return &reportOnceLookup{LookupContext: lookup, reported: make(map[memento.Reference]struct{})}
}

func (l *reportOnceLookup) Lookup(t memento.ObjectType, id string) (any, bool) {
	if obj, ok := l.Peek(t, id); ok {
		return obj, true
	}
	ref := memento.Reference{Type: t, ID: id}
	l.mu.Lock()
	_, seen := l.reported[ref]
	l.reported[ref] = struct{}{}
	l.mu.Unlock()
	if seen {
		return nil, false
	}
	return l.LookupContext.Lookup(t, id)
}

var (
	_ Serializer     = (*RetryingSerializer)(nil)
	_ memento.Peeker = (*RetryingSerializer)(nil)
)
