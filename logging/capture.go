package logging

import (
	"context"
	"strings"
	"sync"
)

// Entry 被捕获的一条日志
type Entry struct {
	Level   Level
	Message string
	Fields  []Field
}

// Field 按 key 查找字段值
func (e Entry) Field(key string) (any, bool) {
	for i := len(e.Fields) - 1; i >= 0; i-- {
		if e.Fields[i].Key == key {
			return e.Fields[i].Value, true
		}
	}
	return nil, false
}

// CapturingLogger 将日志记录在内存中，供测试断言使用
type CapturingLogger struct {
	sink   *captureSink
	fields []Field
}

type captureSink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewCapturingLogger 创建捕获型 Logger
func NewCapturingLogger() *CapturingLogger {
	return &CapturingLogger{sink: &captureSink{}}
}

func (l *CapturingLogger) record(level Level, msg string, fields []Field) {
	all := make([]Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)
	l.sink.mu.Lock()
	l.sink.entries = append(l.sink.entries, Entry{Level: level, Message: msg, Fields: all})
	l.sink.mu.Unlock()
}

func (l *CapturingLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.record(DebugLevel, msg, fields)
}

func (l *CapturingLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.record(InfoLevel, msg, fields)
}

func (l *CapturingLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.record(WarnLevel, msg, fields)
}

func (l *CapturingLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.record(ErrorLevel, msg, fields)
}

// WithFields 派生的 Logger 与原 Logger 共享同一个记录缓冲
func (l *CapturingLogger) WithFields(fields ...Field) ILogger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &CapturingLogger{sink: l.sink, fields: merged}
}

// Entries 返回已捕获日志的副本
func (l *CapturingLogger) Entries() []Entry {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	out := make([]Entry, len(l.sink.entries))
	copy(out, l.sink.entries)
	return out
}

// EntriesAt 返回指定级别且消息包含 substr 的日志
func (l *CapturingLogger) EntriesAt(level Level, substr string) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			out = append(out, e)
		}
	}
	return out
}

// Reset 清空缓冲
func (l *CapturingLogger) Reset() {
	l.sink.mu.Lock()
	l.sink.entries = nil
	l.sink.mu.Unlock()
}
