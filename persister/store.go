package persister

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"rebind/errors"
	"rebind/logging"
	"rebind/memento"
	"rebind/objectstore"
	"rebind/serializer"
)

// 默认值
const (
	DefaultDeltaPeriod  = time.Second
	DefaultWriteTimeout = 30 * time.Second
)

// Options StorePersister 配置
type Options struct {
	// Serializer 底层序列化器，默认 JSON；总会被包装成 RetryingSerializer
	Serializer serializer.Serializer
	// SerializationRetries 每个对象序列化失败后的重试次数
	SerializationRetries int
	// DeltaPeriod 排队增量的写入周期
	DeltaPeriod time.Duration
	// WriteTimeout 优雅关闭时等待写入完成的上限
	WriteTimeout time.Duration
	// DeferRawLoad 为 true 时 LoadMementoRawData 返回 nil，原始数据在清单/完整加载时再读取
	DeferRawLoad bool
	// PlaneID 写入加载快照的管理平面 id
	PlaneID string
	// Handler 排队增量使用的写路径异常处理器
	Handler  memento.PersistenceExceptionHandler
	Logger   logging.ILogger
	Recorder IMetricsRecorder
}

// DefaultOptions 默认配置
func DefaultOptions() Options {
	return Options{
		Serializer:           serializer.NewJSONSerializer(),
		SerializationRetries: serializer.DefaultRetries,
		DeltaPeriod:          DefaultDeltaPeriod,
		WriteTimeout:         DefaultWriteTimeout,
	}
}

// StorePersister 基于对象存储的持久化器
//
// 每个对象类型对应存储的一个子路径。检查点通过 ReplaceAll 原子替换；
// 增量按依赖顺序逐类型先写新增再删除。QueueDelta 合并的增量由后台写入器按周期写入。
// 对同一实例的并发 Checkpoint/Delta 在内部串行执行。
type StorePersister struct {
	id    string
	store objectstore.ObjectStore
	ser   *serializer.RetryingSerializer
	opts  Options
	log   logging.ILogger

	mu     sync.Mutex
	state  State
	stopCh chan struct{}
	doneCh chan struct{}

	// writeMu 保证同一时间只有一个写入周期
	writeMu sync.Mutex
	// loadMu 加载不可并发
	loadMu  sync.Mutex
	pending *pendingDelta
	bg      sync.WaitGroup

	metrics *metricsCollector
}

// NewStorePersister 创建持久化器，初始状态为 Uninitialized
func NewStorePersister(store objectstore.ObjectStore, opts Options) *StorePersister {
	def := DefaultOptions()
	if opts.Serializer == nil {
		opts.Serializer = def.Serializer
	}
	if opts.SerializationRetries < 0 {
		opts.SerializationRetries = 0
	}
	if opts.DeltaPeriod <= 0 {
		opts.DeltaPeriod = def.DeltaPeriod
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.ComponentLogger("persister")
	}
	if opts.Handler == nil {
		opts.Handler = memento.NewLoggingPersistenceExceptionHandler(opts.Logger)
	}
	id := uuid.NewString()
	log := opts.Logger.WithFields(logging.String("persister", id[:8]), logging.String("store", store.SummaryName()))
	ser := opts.Serializer
	if r, ok := ser.(*serializer.RetryingSerializer); ok {
		ser = r.Delegate()
	}
	return &StorePersister{
		id:      id,
		store:   store,
		ser:     serializer.NewRetryingSerializer(ser, opts.SerializationRetries).WithLogger(log),
		opts:    opts,
		log:     log,
		pending: newPendingDelta(),
		metrics: &metricsCollector{recorder: opts.Recorder},
	}
}

// ID 实例 id
func (p *StorePersister) ID() string { return p.id }

// Store 绑定的对象存储
func (p *StorePersister) Store() objectstore.ObjectStore { return p.store }

func (p *StorePersister) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Metrics 写入统计快照
func (p *StorePersister) Metrics() Metrics {
	m := p.metrics.snapshot()
	m.QueuedEntries = p.pending.Len()
	return m
}

// ---------------------------------------------------------------------------
// 生命周期

func (p *StorePersister) EnableWriteAccess() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateStopped:
		return ErrStopped
	case StateWriteEnabled:
		return nil
	case StateUninitialized:
		p.state = StateWriteDisabled
	}
	p.state = StateWriteEnabled
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	go p.loop(p.stopCh, p.doneCh)
	p.log.Info(context.Background(), "[Persister] 启用写访问", logging.Duration("delta_period", p.opts.DeltaPeriod))
	return nil
}

// DisableWriteAccess 先关闭写入门再写出排队增量，关闭之后的 QueueDelta 返回 ErrWriteAccessDisabled
func (p *StorePersister) DisableWriteAccess(ctx context.Context, graceful bool) error {
	p.mu.Lock()
	switch p.state {
	case StateStopped:
		p.mu.Unlock()
		return ErrStopped
	case StateWriteDisabled:
		p.mu.Unlock()
		return nil
	case StateUninitialized:
		p.state = StateWriteDisabled
		p.mu.Unlock()
		return nil
	}
	p.state = StateWriteDisabled
	stopCh, doneCh := p.detachWriterLocked()
	p.mu.Unlock()
	stopWriter(stopCh, doneCh)

	var drainErr error
	if graceful {
		drainErr = p.drain(ctx, p.opts.WriteTimeout)
	} else {
		p.flushInBackground()
	}
	p.log.Info(ctx, "[Persister] 禁用写访问", logging.Bool("graceful", graceful))
	return drainErr
}

// Stop 优雅停止时写出所有排队增量，无论之前处于哪个状态
func (p *StorePersister) Stop(ctx context.Context, graceful bool) error {
	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return nil
	}
	p.state = StateStopped
	stopCh, doneCh := p.detachWriterLocked()
	p.mu.Unlock()
	stopWriter(stopCh, doneCh)

	var drainErr error
	if graceful {
		drainErr = p.drain(ctx, p.opts.WriteTimeout)
	}
	if dropped := p.pending.Len(); dropped > 0 {
		p.log.Warn(ctx, "[Persister] 停止时丢弃排队的增量", logging.Int("entries", dropped))
		p.pending.take()
	}
	p.log.Info(ctx, "[Persister] 已停止", logging.Bool("graceful", graceful))
	return drainErr
}

func (p *StorePersister) detachWriterLocked() (chan struct{}, chan struct{}) {
	stopCh, doneCh := p.stopCh, p.doneCh
	p.stopCh, p.doneCh = nil, nil
	return stopCh, doneCh
}

func stopWriter(stopCh, doneCh chan struct{}) {
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

// checkWritable 写操作的状态门
func (p *StorePersister) checkWritable() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateWriteEnabled:
		return nil
	case StateStopped:
		return ErrStopped
	}
	return ErrWriteAccessDisabled
}

func (p *StorePersister) checkNotStopped() error {
	if p.State() == StateStopped {
		return ErrStopped
	}
	return nil
}

// ---------------------------------------------------------------------------
// 写入

func (p *StorePersister) Checkpoint(ctx context.Context, raw *memento.RawSnapshot, handler memento.PersistenceExceptionHandler) error {
	if err := p.checkWritable(); err != nil {
		return err
	}
	if raw == nil {
		return errors.NewError(errors.ErrCodeInvalidInput, "checkpoint requires a raw snapshot")
	}
	if handler == nil {
		handler = p.opts.Handler
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	// 检查点之前排队的增量被检查点取代；写入失败时放回队列
	superseded := p.pending.take()

	start := time.Now()
	contents := make(objectstore.Contents, len(memento.Types())+1)
	for _, t := range memento.Types() {
		contents[t.Subpath()] = raw.Objects(t)
	}
	plane, err := p.readSubpath(ctx, PlaneSubpath)
	if err != nil {
		p.pending.restore(superseded)
		handler.OnPersistRawMementoFailed(memento.ObjectType{}, "", err)
		p.metrics.checkpoint(0, start, err)
		return errors.WrapError(err, errors.ErrCodeStorage, "checkpoint "+p.store.SummaryName())
	}
	if len(plane) > 0 {
		contents[PlaneSubpath] = plane
	}

	if err := p.store.ReplaceAll(ctx, contents); err != nil {
		p.pending.restore(superseded)
		handler.OnPersistRawMementoFailed(memento.ObjectType{}, "", err)
		p.metrics.checkpoint(0, start, err)
		p.log.Warn(ctx, "[Persister] 检查点写入失败", logging.Error(err))
		return errors.WrapError(err, errors.ErrCodeStorage, "checkpoint "+p.store.SummaryName())
	}
	p.metrics.checkpoint(raw.Size(), start, nil)
	p.log.Debug(ctx, "[Persister] 检查点已写入",
		logging.Int("objects", raw.Size()), logging.Int("superseded", superseded.Len()),
		logging.Duration("elapsed", time.Since(start)))
	return nil
}

func (p *StorePersister) readSubpath(ctx context.Context, subpath string) (map[string]string, error) {
	ids, err := p.store.List(ctx, subpath)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		payload, err := p.store.Get(ctx, subpath, id)
		if errors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = payload
	}
	return out, nil
}

func (p *StorePersister) Delta(ctx context.Context, delta memento.Delta, handler memento.PersistenceExceptionHandler) error {
	if err := p.checkWritable(); err != nil {
		return err
	}
	if delta == nil || delta.IsEmpty() {
		return nil
	}
	if handler == nil {
		handler = p.opts.Handler
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.applyDelta(ctx, delta, handler)
}

type deltaResult struct {
	written, removed, failures int
}

// applyDelta 按依赖顺序逐类型写入：先新增/变更，再删除；单个对象失败报告给 handler 后跳过
func (p *StorePersister) applyDelta(ctx context.Context, delta memento.Delta, handler memento.PersistenceExceptionHandler) error {
	start := time.Now()
	var r deltaResult
	defer func() { p.metrics.delta(r, start) }()

	for _, t := range memento.Types() {
		sub := t.Subpath()
		for _, m := range delta.Mementos(t) {
			if err := ctx.Err(); err != nil {
				return err
			}
			payload, err := p.ser.Serialize(m)
			if err != nil {
				r.failures++
				handler.OnGenerateMementoFailed(t, m.GetID(), err)
				continue
			}
			if err := p.store.Put(ctx, sub, m.GetID(), payload); err != nil {
				r.failures++
				handler.OnPersistMementoFailed(t, m.GetID(), err)
				continue
			}
			r.written++
		}
		for _, id := range delta.Removed(t) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.store.Delete(ctx, sub, id); err != nil {
				r.failures++
				handler.OnDeleteMementoFailed(t, id, err)
				continue
			}
			r.removed++
		}
	}
	p.log.Debug(ctx, "[Persister] 增量已写入",
		logging.Int("written", r.written), logging.Int("removed", r.removed), logging.Int("failures", r.failures))
	return nil
}

func (p *StorePersister) QueueDelta(delta memento.Delta) error {
	if err := p.checkWritable(); err != nil {
		return err
	}
	if delta == nil || delta.IsEmpty() {
		return nil
	}
	p.pending.merge(delta)
	return nil
}

// flush 写出排队的增量；会等待进行中的写入
func (p *StorePersister) flush(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	d := p.pending.take()
	if d.IsEmpty() {
		return nil
	}
	return p.applyDelta(ctx, d, p.opts.Handler)
}

func (p *StorePersister) flushInBackground() {
	if p.pending.Len() == 0 {
		return
	}
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		if err := p.flush(context.Background()); err != nil {
			p.log.Warn(context.Background(), "[Persister] 后台写入排队增量失败", logging.Error(err))
		}
	}()
}

// loop 周期写入器
func (p *StorePersister) loop(stopCh, doneCh chan struct{}) {
	ticker := time.NewTicker(p.opts.DeltaPeriod)
	defer func() { ticker.Stop(); close(doneCh) }()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if err := p.flush(context.Background()); err != nil {
				p.log.Warn(context.Background(), "[Persister] 周期写入失败", logging.Error(err))
			}
		}
	}
}

func (p *StorePersister) WaitForWritesCompleted(ctx context.Context, timeout time.Duration) error {
	if err := p.checkNotStopped(); err != nil {
		return err
	}
	return p.drain(ctx, timeout)
}

// drain 写出排队增量并等待进行中的写入，最多等待 timeout
func (p *StorePersister) drain(ctx context.Context, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		// 等待可被中断，已开始的写入继续完成
		err := p.flush(context.WithoutCancel(ctx))
		p.bg.Wait()
		done <- err
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		p.log.Warn(ctx, "[Persister] 等待写入完成超时", logging.Duration("timeout", timeout))
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ---------------------------------------------------------------------------
// 加载

func (p *StorePersister) LoadMementoRawData(ctx context.Context, handler memento.RebindExceptionHandler) (*memento.RawSnapshot, error) {
	if err := p.checkNotStopped(); err != nil {
		return nil, err
	}
	if p.opts.DeferRawLoad {
		return nil, nil
	}
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	return p.loadRaw(ctx, p.rebindHandler(handler))
}

func (p *StorePersister) LoadMementoManifest(ctx context.Context, raw *memento.RawSnapshot, handler memento.RebindExceptionHandler) (*memento.Manifest, error) {
	if err := p.checkNotStopped(); err != nil {
		return nil, err
	}
	handler = p.rebindHandler(handler)
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	if raw == nil {
		var err error
		if raw, err = p.loadRaw(ctx, handler); err != nil {
			return nil, err
		}
	}
	return memento.BuildManifest(raw, p.peeker(), handler), nil
}

func (p *StorePersister) LoadMemento(ctx context.Context, raw *memento.RawSnapshot, lookup memento.LookupContext, handler memento.RebindExceptionHandler) (*memento.FullMemento, error) {
	if err := p.checkNotStopped(); err != nil {
		return nil, err
	}
	handler = p.rebindHandler(handler)
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	if raw == nil {
		var err error
		if raw, err = p.loadRaw(ctx, handler); err != nil {
			return nil, err
		}
	}
	if lookup == nil {
		lookup = memento.NewManifestLookupContext(memento.BuildManifest(raw, p.peeker(), nil), handler)
	}

	b := memento.NewFullMementoBuilder(raw.PlaneID())
	err := raw.ForEach(func(t memento.ObjectType, id, payload string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := p.ser.Deserialize(t, payload, lookup)
		if err != nil {
			handler.OnLoadMementoFailed(t, id, err)
			return nil
		}
		if err := b.Put(m); err != nil {
			handler.OnLoadMementoFailed(t, id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// loadRaw 逐类型读取；单个子路径或对象失败报告后跳过
func (p *StorePersister) loadRaw(ctx context.Context, handler memento.RebindExceptionHandler) (*memento.RawSnapshot, error) {
	start := time.Now()
	b := memento.NewRawSnapshotBuilder().Format(p.ser.Format()).PlaneID(p.opts.PlaneID)
	for _, t := range memento.Types() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids, err := p.store.List(ctx, t.Subpath())
		if err != nil {
			handler.OnLoadMementoFailed(t, "", err)
			continue
		}
		for _, id := range ids {
			payload, err := p.store.Get(ctx, t.Subpath(), id)
			if err != nil {
				handler.OnLoadMementoFailed(t, id, err)
				continue
			}
			b.Put(t, id, payload)
		}
	}
	raw, err := b.Build()
	if err != nil {
		return nil, err
	}
	p.log.Debug(ctx, "[Persister] 已加载原始数据",
		logging.Int("objects", raw.Size()), logging.Duration("elapsed", time.Since(start)))
	return raw, nil
}

func (p *StorePersister) peeker() memento.Peeker {
	if pk, ok := p.ser.Delegate().(memento.Peeker); ok {
		return pk
	}
	return nil
}

func (p *StorePersister) rebindHandler(h memento.RebindExceptionHandler) memento.RebindExceptionHandler {
	if h != nil {
		return h
	}
	return memento.NewCollectingRebindExceptionHandler(memento.Continue, p.log)
}

var _ MementoPersister = (*StorePersister)(nil)
