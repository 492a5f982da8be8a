// Package mgmt 定义持久化层所需的管理上下文边界
//
// 实体运行时、位置解析、目录、HA 管理器都在此以接口出现；LocalManagementContext
// 是单进程实现，用于独立部署、命令行工具与测试。
package mgmt

import (
	"context"

	"rebind/catalog"
	"rebind/ha"
	"rebind/memento"
	"rebind/paths"
	"rebind/persister"
	"rebind/serializer"
)

// Object 可持久化的受管对象
type Object interface {
	ID() string
	ObjectType() memento.ObjectType
	// Memento 生成当前状态的 memento；对象正在变更时可能失败
	Memento() (memento.Memento, error)
}

// Entity 受管实体
type Entity interface {
	Object
	// Canonical 去代理后的本地实体；非代理返回自身
	Canonical() Entity
	Feeds() []Object
	Enrichers() []Object
	Policies() []Object
}

// Location 位置；具备持久化能力的位置同时实现 objectstore.Provider
type Location interface {
	Object
	// Spec 解析出该位置的规格字符串
	Spec() string
}

// EntityManager 实体管理
type EntityManager interface {
	Entities() []Entity
	Entity(id string) (Entity, bool)
}

// LocationResolver 把位置规格解析为位置
type LocationResolver interface {
	Resolve(spec string) (Location, error)
}

// LocationManager 位置管理
type LocationManager interface {
	LocationResolver
	Locations() []Location
	Location(id string) (Location, bool)
}

// RebindManager 重绑定管理器
type RebindManager interface {
	// RetrieveRawSnapshot 从持久化器读取原始快照并缓存
	RetrieveRawSnapshot(ctx context.Context, p persister.MementoPersister, handler memento.RebindExceptionHandler) (*memento.RawSnapshot, error)
	// LastRawSnapshot 最近一次读取的原始快照，未读取时为 nil
	LastRawSnapshot() *memento.RawSnapshot
	// Rebind 加载清单与完整 memento
	Rebind(ctx context.Context, p persister.MementoPersister, handler memento.RebindExceptionHandler) (*memento.FullMemento, error)
}

// ManagementContext 管理上下文
type ManagementContext interface {
	NodeID() string
	PlaneID() string
	Entities() EntityManager
	Locations() LocationManager
	Catalog() *catalog.Registry
	RebindManager() RebindManager
	HAManager() ha.Manager
	Paths() *paths.Resolver
	Serializer() serializer.Serializer
	PersistenceExceptionHandler() memento.PersistenceExceptionHandler
}
