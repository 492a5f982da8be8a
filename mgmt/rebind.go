package mgmt

import (
	"context"
	"sync"
	"time"

	"rebind/catalog"
	"rebind/logging"
	"rebind/memento"
	"rebind/persister"
)

// DefaultRebindManager 重绑定管理器
//
// 缓存最近一次读取的原始快照，作为备用节点写出状态时的 REMOTE 来源。
// 完整重绑定后把目录项恢复到注册表（如已配置）。
type DefaultRebindManager struct {
	catalog *catalog.Registry
	log     logging.ILogger

	mu      sync.RWMutex
	lastRaw *memento.RawSnapshot
}

// NewRebindManager 创建重绑定管理器；registry 可为空
func NewRebindManager(registry *catalog.Registry) *DefaultRebindManager {
	return &DefaultRebindManager{catalog: registry, log: logging.ComponentLogger("mgmt.rebind")}
}

func (m *DefaultRebindManager) RetrieveRawSnapshot(ctx context.Context, p persister.MementoPersister, handler memento.RebindExceptionHandler) (*memento.RawSnapshot, error) {
	start := time.Now()
	raw, err := p.LoadMementoRawData(ctx, handler)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		m.log.Debug(ctx, "[RebindManager] 持久化器延迟加载原始数据，未缓存快照")
		return nil, nil
	}
	m.mu.Lock()
	m.lastRaw = raw
	m.mu.Unlock()
	m.log.Info(ctx, "[RebindManager] 已读取原始快照",
		logging.Int("objects", raw.Size()), logging.Duration("elapsed", time.Since(start)))
	return raw, nil
}

func (m *DefaultRebindManager) LastRawSnapshot() *memento.RawSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRaw
}

// Rebind 读取原始数据、派生清单并完整加载；handler 的汇总错误在最后返回
func (m *DefaultRebindManager) Rebind(ctx context.Context, p persister.MementoPersister, handler memento.RebindExceptionHandler) (*memento.FullMemento, error) {
	if handler == nil {
		handler = memento.NewCollectingRebindExceptionHandler(memento.FailAtEnd, m.log)
	}
	raw, err := m.RetrieveRawSnapshot(ctx, p, handler)
	if err != nil {
		return nil, err
	}
	manifest, err := p.LoadMementoManifest(ctx, raw, handler)
	if err != nil {
		return nil, err
	}
	full, err := p.LoadMemento(ctx, raw, memento.NewManifestLookupContext(manifest, handler), handler)
	if err != nil {
		return nil, err
	}
	m.restoreCatalog(ctx, full, handler)
	m.log.Info(ctx, "[RebindManager] 重绑定完成",
		logging.Int("manifest", manifest.Size()), logging.Int("loaded", full.Size()))
	return full, handler.OnDone()
}

func (m *DefaultRebindManager) restoreCatalog(ctx context.Context, full *memento.FullMemento, handler memento.RebindExceptionHandler) {
	if m.catalog == nil {
		return
	}
	for _, id := range full.IDs(memento.CatalogItem) {
		obj, _ := full.Get(memento.CatalogItem, id)
		item, err := catalog.ItemFromMemento(obj)
		if err == nil {
			err = m.catalog.Add(item)
		}
		if err != nil {
			handler.OnLoadMementoFailed(memento.CatalogItem, id, err)
		}
	}
}

var _ RebindManager = (*DefaultRebindManager)(nil)
