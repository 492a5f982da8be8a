// Package persistence 持久化编排
//
// 决定快照数据来自本节点存活的管理平面（LOCAL）还是已持久化的副本（REMOTE），
// 把数据写到解析出的对象存储，并在 HA 切换时创建带回退的备份。
package persistence

import (
	"context"

	"rebind/errors"
	"rebind/ha"
	"rebind/logging"
	"rebind/memento"
	"rebind/mgmt"
	"rebind/objectstore"
	"rebind/persister"
	"rebind/serializer"
	"rebind/stores"
)

// StateSerializationRetries 采集状态时每个对象的序列化重试次数
const StateSerializationRetries = 1

func logger() logging.ILogger { return logging.ComponentLogger("persistence") }

// NewPersistenceObjectStore 解析位置并返回准备好共享使用的对象存储
//
// 空规格使用 localhost。位置不具备持久化能力时返回 UNSUPPORTED。
func NewPersistenceObjectStore(ctx context.Context, m mgmt.ManagementContext, locationSpec, container string, persistMode ha.PersistMode, haMode ha.HighAvailabilityMode) (objectstore.ObjectStore, error) {
	store, _, err := openStore(ctx, m, locationSpec, container, persistMode, haMode)
	return store, err
}

func openStore(ctx context.Context, m mgmt.ManagementContext, spec, container string, persistMode ha.PersistMode, haMode ha.HighAvailabilityMode) (objectstore.ObjectStore, mgmt.Location, error) {
	if spec == "" {
		spec = stores.LocalhostSpec
	}
	loc, err := m.Locations().Resolve(spec)
	if err != nil {
		return nil, nil, err
	}
	provider, ok := loc.(objectstore.Provider)
	if !ok {
		return nil, loc, errors.Newf(errors.ErrCodeUnsupported, "location %s does not support persistence", loc.Spec())
	}
	store, err := provider.NewObjectStore(container)
	if err != nil {
		return nil, loc, err
	}
	store.InjectManagementContext(m)
	if err := store.PrepareForSharedUse(persistMode, haMode); err != nil {
		_ = store.Close()
		return nil, loc, err
	}
	logger().Debug(ctx, "[Persistence] 对象存储已就绪",
		logging.String("store", store.SummaryName()),
		logging.String("persist_mode", persistMode.String()),
		logging.String("ha_mode", haMode.String()))
	return store, loc, nil
}

// NewStateMemento 生成状态原始快照；source 必须已解析为 LOCAL 或 REMOTE
func NewStateMemento(ctx context.Context, m mgmt.ManagementContext, source ha.MementoCopyMode) (*memento.RawSnapshot, error) {
	switch source {
	case ha.CopyLocal:
		return newLocalStateMemento(ctx, m)
	case ha.CopyRemote:
		raw := m.RebindManager().LastRawSnapshot()
		if raw == nil {
			return nil, errors.NewError(errors.ErrCodeNotFound, "no persisted state has been retrieved on this node")
		}
		return raw, nil
	}
	return nil, errors.Newf(errors.ErrCodeInvalidInput, "memento copy mode %s must be resolved before use", source)
}

// newLocalStateMemento 遍历存活的管理平面；单个对象失败交给异常处理器后跳过
func newLocalStateMemento(ctx context.Context, m mgmt.ManagementContext) (*memento.RawSnapshot, error) {
	ser := serializer.NewRetryingSerializer(m.Serializer(), StateSerializationRetries)
	c := &collector{
		builder: memento.NewRawSnapshotBuilder().Format(ser.Format()).PlaneID(m.PlaneID()),
		ser:     ser,
		handler: m.PersistenceExceptionHandler(),
	}

	for _, l := range m.Locations().Locations() {
		c.add(l.ObjectType(), l.ID(), l.Memento)
	}
	for _, e := range m.Entities().Entities() {
		e = e.Canonical()
		c.add(e.ObjectType(), e.ID(), e.Memento)
		for _, group := range [][]mgmt.Object{e.Feeds(), e.Enrichers(), e.Policies()} {
			for _, o := range group {
				c.add(o.ObjectType(), o.ID(), o.Memento)
			}
		}
	}
	if registry := m.Catalog(); registry != nil {
		for _, item := range registry.Items() {
			c.add(memento.CatalogItem, item.ID(), func() (memento.Memento, error) { return item.Memento(), nil })
		}
	}

	raw, err := c.builder.Build()
	if err != nil {
		return nil, err
	}
	logger().Debug(ctx, "[Persistence] 已采集本地状态",
		logging.Int("objects", raw.Size()), logging.Int("failures", c.failures))
	return raw, nil
}

type collector struct {
	builder  *memento.RawSnapshotBuilder
	ser      serializer.Serializer
	handler  memento.PersistenceExceptionHandler
	failures int
}

func (c *collector) add(t memento.ObjectType, id string, generate func() (memento.Memento, error)) {
	m, err := generate()
	if err == nil {
		var payload string
		if payload, err = c.ser.Serialize(m); err == nil {
			c.builder.Put(t, id, payload)
			return
		}
	}
	c.failures++
	if c.handler != nil {
		c.handler.OnGenerateMementoFailed(t, id, err)
	}
}

// NewManagerMemento 管理平面同步记录；source 必须已解析为 LOCAL 或 REMOTE
func NewManagerMemento(ctx context.Context, m mgmt.ManagementContext, source ha.MementoCopyMode) (*ha.SyncRecord, error) {
	manager := m.HAManager()
	if manager == nil {
		return nil, errors.NewError(errors.ErrCodeUnsupported, "management context has no HA manager")
	}
	switch source {
	case ha.CopyLocal:
		return manager.LiveSyncRecord(), nil
	case ha.CopyRemote:
		rec := manager.LoadedSyncRecord()
		if rec == nil {
			return nil, errors.NewError(errors.ErrCodeNotFound, "no persisted sync record has been loaded on this node")
		}
		return rec, nil
	}
	return nil, errors.Newf(errors.ErrCodeInvalidInput, "memento copy mode %s must be resolved before use", source)
}

// WriteMemento 用一次性的持久化器把原始快照检查点写入 store，不会留下运行中的持久化器
func WriteMemento(ctx context.Context, m mgmt.ManagementContext, raw *memento.RawSnapshot, store objectstore.ObjectStore) error {
	p := persister.NewStorePersister(store, persister.Options{
		Serializer: m.Serializer(),
		PlaneID:    m.PlaneID(),
		Handler:    m.PersistenceExceptionHandler(),
	})
	if err := p.EnableWriteAccess(); err != nil {
		return err
	}
	if err := p.Checkpoint(ctx, raw, m.PersistenceExceptionHandler()); err != nil {
		_ = p.Stop(ctx, false)
		return err
	}
	return p.Stop(ctx, true)
}

// WriteMementoFrom 按来源生成状态并写入 store；AUTO 在主节点上解析为 LOCAL，否则为 REMOTE
func WriteMementoFrom(ctx context.Context, m mgmt.ManagementContext, store objectstore.ObjectStore, source ha.MementoCopyMode) error {
	source = resolveSource(m, source)
	raw, err := NewStateMemento(ctx, m, source)
	if err != nil {
		return err
	}
	logger().Info(ctx, "[Persistence] 写出状态",
		logging.String("source", source.String()),
		logging.String("store", store.SummaryName()),
		logging.Int("objects", raw.Size()))
	return WriteMemento(ctx, m, raw, store)
}

// WriteManagerMemento 把同步记录写入 store
func WriteManagerMemento(ctx context.Context, m mgmt.ManagementContext, rec *ha.SyncRecord, store objectstore.ObjectStore) error {
	if rec == nil {
		return errors.NewError(errors.ErrCodeInvalidInput, "sync record is nil")
	}
	if err := persister.NewSyncRecordPersister(store).Checkpoint(ctx, rec); err != nil {
		return err
	}
	logger().Debug(ctx, "[Persistence] 已写出同步记录",
		logging.String("node", m.NodeID()),
		logging.String("store", store.SummaryName()),
		logging.Int("nodes", len(rec.Nodes)))
	return nil
}

func resolveSource(m mgmt.ManagementContext, source ha.MementoCopyMode) ha.MementoCopyMode {
	if source != ha.CopyAuto {
		return source
	}
	state := ha.NodeInitializing
	if manager := m.HAManager(); manager != nil {
		state = manager.NodeState()
	}
	return ha.ResolveCopyMode(source, state)
}
