package mgmt

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"rebind/catalog"
	"rebind/errors"
	"rebind/ha"
	"rebind/logging"
	"rebind/memento"
	"rebind/paths"
	"rebind/serializer"
)

// EntityRegistry 实体注册表
type EntityRegistry struct {
	mu       sync.RWMutex
	entities map[string]Entity
}

// NewEntityRegistry 创建实体注册表
func NewEntityRegistry() *EntityRegistry {
	return &EntityRegistry{entities: make(map[string]Entity)}
}

// Manage 纳入管理
func (r *EntityRegistry) Manage(e Entity) error {
	if e == nil || e.ID() == "" {
		return errors.NewError(errors.ErrCodeInvalidInput, "entity must have an id")
	}
	r.mu.Lock()
	r.entities[e.ID()] = e
	r.mu.Unlock()
	return nil
}

// Unmanage 移出管理，返回是否存在
func (r *EntityRegistry) Unmanage(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entities[id]
	delete(r.entities, id)
	return ok
}

// Entities 按 id 排序
func (r *EntityRegistry) Entities() []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *EntityRegistry) Entity(id string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[id]
	return e, ok
}

// LocationRegistry 位置注册表；解析委托给注入的 LocationResolver
type LocationRegistry struct {
	mu        sync.RWMutex
	locations map[string]Location
	resolver  LocationResolver
}

// NewLocationRegistry 创建位置注册表；resolver 可为空
func NewLocationRegistry(resolver LocationResolver) *LocationRegistry {
	return &LocationRegistry{locations: make(map[string]Location), resolver: resolver}
}

// SetResolver 替换解析器
func (r *LocationRegistry) SetResolver(resolver LocationResolver) {
	r.mu.Lock()
	r.resolver = resolver
	r.mu.Unlock()
}

// Manage 纳入管理
func (r *LocationRegistry) Manage(l Location) error {
	if l == nil || l.ID() == "" {
		return errors.NewError(errors.ErrCodeInvalidInput, "location must have an id")
	}
	r.mu.Lock()
	r.locations[l.ID()] = l
	r.mu.Unlock()
	return nil
}

// Unmanage 移出管理，返回是否存在
func (r *LocationRegistry) Unmanage(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.locations[id]
	delete(r.locations, id)
	return ok
}

// Locations 按 id 排序
func (r *LocationRegistry) Locations() []Location {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Location, 0, len(r.locations))
	for _, l := range r.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *LocationRegistry) Location(id string) (Location, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.locations[id]
	return l, ok
}

// Resolve 解析位置规格；解析出的位置不会自动纳入管理
func (r *LocationRegistry) Resolve(spec string) (Location, error) {
	r.mu.RLock()
	resolver := r.resolver
	r.mu.RUnlock()
	if resolver == nil {
		return nil, errors.Newf(errors.ErrCodeUnsupported, "no location resolver configured for %q", spec)
	}
	return resolver.Resolve(spec)
}

// LocalOptions 本地管理上下文配置，零值字段使用默认值
type LocalOptions struct {
	NodeID     string
	PlaneID    string
	HAMode     ha.HighAvailabilityMode
	HAManager  ha.Manager
	Paths      *paths.Resolver
	Serializer serializer.Serializer
	Resolver   LocationResolver
	Handler    memento.PersistenceExceptionHandler
	Logger     logging.ILogger
}

// LocalManagementContext 单进程管理上下文
type LocalManagementContext struct {
	nodeID    string
	planeID   string
	entities  *EntityRegistry
	locations *LocationRegistry
	catalog   *catalog.Registry
	rebind    *DefaultRebindManager
	haManager ha.Manager
	paths     *paths.Resolver
	ser       serializer.Serializer
	handler   memento.PersistenceExceptionHandler
	log       logging.ILogger
}

// NewLocal 创建本地管理上下文
func NewLocal(opts LocalOptions) *LocalManagementContext {
	if opts.NodeID == "" {
		opts.NodeID = uuid.NewString()
	}
	if opts.PlaneID == "" {
		opts.PlaneID = uuid.NewString()
	}
	if opts.HAManager == nil {
		opts.HAManager = ha.NewLocalManager(opts.PlaneID, opts.NodeID, opts.HAMode)
	}
	if opts.Paths == nil {
		opts.Paths = paths.NewResolver("")
	}
	if opts.Serializer == nil {
		opts.Serializer = serializer.NewJSONSerializer()
	}
	if opts.Logger == nil {
		opts.Logger = logging.ComponentLogger("mgmt")
	}
	if opts.Handler == nil {
		opts.Handler = memento.NewLoggingPersistenceExceptionHandler(opts.Logger)
	}
	registry := catalog.NewRegistry()
	return &LocalManagementContext{
		nodeID:    opts.NodeID,
		planeID:   opts.PlaneID,
		entities:  NewEntityRegistry(),
		locations: NewLocationRegistry(opts.Resolver),
		catalog:   registry,
		rebind:    NewRebindManager(registry),
		haManager: opts.HAManager,
		paths:     opts.Paths,
		ser:       opts.Serializer,
		handler:   opts.Handler,
		log:       opts.Logger.WithFields(logging.String("node", paths.ShortNodeID(opts.NodeID))),
	}
}

func (c *LocalManagementContext) NodeID() string                    { return c.nodeID }
func (c *LocalManagementContext) PlaneID() string                   { return c.planeID }
func (c *LocalManagementContext) Entities() EntityManager           { return c.entities }
func (c *LocalManagementContext) Locations() LocationManager        { return c.locations }
func (c *LocalManagementContext) Catalog() *catalog.Registry        { return c.catalog }
func (c *LocalManagementContext) RebindManager() RebindManager      { return c.rebind }
func (c *LocalManagementContext) HAManager() ha.Manager             { return c.haManager }
func (c *LocalManagementContext) Paths() *paths.Resolver            { return c.paths }
func (c *LocalManagementContext) Serializer() serializer.Serializer { return c.ser }

func (c *LocalManagementContext) PersistenceExceptionHandler() memento.PersistenceExceptionHandler {
	return c.handler
}

// EntityRegistry 可写的实体注册表
func (c *LocalManagementContext) EntityRegistry() *EntityRegistry { return c.entities }

// LocationRegistry 可写的位置注册表
func (c *LocalManagementContext) LocationRegistry() *LocationRegistry { return c.locations }

// Close 结束上下文生命周期：清空目录并停止异常处理器
func (c *LocalManagementContext) Close() error {
	c.catalog.Reset()
	c.handler.Stop()
	c.log.Info(context.Background(), "[ManagementContext] 已关闭")
	return nil
}

var _ ManagementContext = (*LocalManagementContext)(nil)
