package objectstore

import (
	"context"
	"sync"

	"rebind/ha"
	"rebind/logging"
)

// Base 各后端共享的绑定与准备状态，嵌入到具体实现中使用
type Base struct {
	mu          sync.RWMutex
	mgmt        ManagementContext
	prepared    bool
	shared      bool
	persistMode ha.PersistMode
	haMode      ha.HighAvailabilityMode
}

// InjectManagementContext 绑定管理上下文
func (b *Base) InjectManagementContext(mgmt ManagementContext) {
	b.mu.Lock()
	b.mgmt = mgmt
	b.mu.Unlock()
}

// NodeID 已绑定管理上下文的节点 id，未绑定时为空
func (b *Base) NodeID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.mgmt == nil {
		return ""
	}
	return b.mgmt.NodeID()
}

// Prepare 记录准备参数，返回是否需要清空已有内容
func (b *Base) Prepare(persistMode ha.PersistMode, haMode ha.HighAvailabilityMode) (wipe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prepared = true
	b.persistMode = persistMode
	b.haMode = haMode
	b.shared = haMode.IsShared()
	return persistMode == ha.PersistClean && !haMode.IsStandby()
}

// CheckWritable 未准备时返回 ErrNotPrepared
func (b *Base) CheckWritable() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.prepared {
		return ErrNotPrepared
	}
	return nil
}

// IsShared 是否可能被多个节点写入
func (b *Base) IsShared() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.shared
}

// PrepareWith 通用 PrepareForSharedUse 流程：记录参数，需要时调用 wipe 清空
func (b *Base) PrepareWith(summary string, persistMode ha.PersistMode, haMode ha.HighAvailabilityMode, wipe func(ctx context.Context) error) error {
	log := logging.ComponentLogger("objectstore")
	ctx := context.Background()
	if b.Prepare(persistMode, haMode) {
		log.Info(ctx, "[ObjectStore] 持久化模式为 clean，清空已有内容", logging.String("store", summary))
		if err := wipe(ctx); err != nil {
			return err
		}
	}
	if haMode.IsShared() {
		log.Debug(ctx, "[ObjectStore] 存储可能被多个节点共享",
			logging.String("store", summary), logging.String("ha_mode", haMode.String()))
	}
	return nil
}
