package retry

import (
	"context"
	"time"
)

// Operation 可重试的操作函数类型
type Operation func(ctx context.Context) error

// OperationWithInfo 可获知当前尝试次数（从 1 开始）的操作
type OperationWithInfo func(ctx context.Context, attempt int) error

// ValueOperation 返回结果值的可重试操作
type ValueOperation[T any] func(ctx context.Context, attempt int) (T, error)

// Config 重试配置
type Config struct {
	MaxAttempts   int           // 最大尝试次数（包括首次）
	InitialDelay  time.Duration // 初始退避延迟
	BackoffFactor float64       // 退避倍数（指数退避）
	MaxDelay      time.Duration // 最大延迟

	// Retryable 可选：返回 false 的错误立即返回，不再重试
	Retryable func(err error) bool

	// OnRetry 可选：每次失败且即将重试时回调
	OnRetry func(attempt int, err error)
}

// DefaultConfig 返回默认配置
//
// 默认值：
//   - MaxAttempts: 2（1次初始 + 1次重试）
//   - InitialDelay: 2ms
//   - BackoffFactor: 2.0（指数退避）
//   - MaxDelay: 1s
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   2,
		InitialDelay:  2 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      1 * time.Second,
	}
}

// WithRetries 返回重试次数为 retries（不含首次）的配置副本，负数按 0 处理
func (c Config) WithRetries(retries int) Config {
	if retries < 0 {
		retries = 0
	}
	c.MaxAttempts = retries + 1
	return c
}

// Do 执行带重试的操作
//
// 返回最后一次执行的错误（如果所有尝试都失败），任意一次成功则返回 nil。
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//	    return store.Put(ctx, subpath, id, payload)
//	}, retry.DefaultConfig())
func Do(ctx context.Context, op Operation, cfg Config) error {
	return DoWithInfo(ctx, func(ctx context.Context, _ int) error {
		return op(ctx)
	}, cfg)
}

// DoWithInfo 执行带重试的操作，每次尝试都会传入当前尝试次数
func DoWithInfo(ctx context.Context, op OperationWithInfo, cfg Config) error {
	_, err := DoValue(ctx, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, op(ctx, attempt)
	}, cfg)
	return err
}

// DoValue 执行带重试并返回结果值的操作
func DoValue[T any](ctx context.Context, op ValueOperation[T], cfg Config) (T, error) {
	var (
		zero    T
		lastErr error
	)
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		value, err := op(ctx, attempt)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return zero, err
		}

		// 最后一次尝试不需要等待
		if attempt < attempts {
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, err)
			}
			delay := backoff(cfg, attempt)
			if delay <= 0 {
				continue
			}
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			}
		}
	}

	return zero, lastErr
}

// backoff 计算第 attempt 次失败后的退避延迟（指数退避，受 MaxDelay 限制）
func backoff(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= cfg.BackoffFactor
	}
	d := time.Duration(delay)
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return d
}
