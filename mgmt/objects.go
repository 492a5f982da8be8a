package mgmt

import (
	"sync"

	"rebind/errors"
	"rebind/memento"
)

// BasicObject 以 BasicMemento 为状态的受管对象
type BasicObject struct {
	mu    sync.RWMutex
	state memento.BasicMemento
}

// NewObject 创建受管对象
func NewObject(t memento.ObjectType, id, kind string) *BasicObject {
	return &BasicObject{state: memento.BasicMemento{ID: id, Type: t, Kind: kind}}
}

func (o *BasicObject) ID() string                     { return o.state.ID }
func (o *BasicObject) ObjectType() memento.ObjectType { return o.state.Type }

// SetField 设置字段
func (o *BasicObject) SetField(key string, value any) *BasicObject {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Fields == nil {
		o.state.Fields = make(map[string]any)
	}
	o.state.Fields[key] = value
	return o
}

// SetParent 设置父对象 id
func (o *BasicObject) SetParent(parent string) *BasicObject {
	o.mu.Lock()
	o.state.Parent = parent
	o.mu.Unlock()
	return o
}

// SetCatalogItemID 记录创建该对象的目录项
func (o *BasicObject) SetCatalogItemID(id string) *BasicObject {
	o.mu.Lock()
	o.state.CatalogItemID = id
	o.mu.Unlock()
	return o
}

// AddReference 记录对另一对象的引用
func (o *BasicObject) AddReference(t memento.ObjectType, id string) *BasicObject {
	o.mu.Lock()
	o.state.AddReference(t, id)
	o.mu.Unlock()
	return o
}

// Memento 当前状态的副本
func (o *BasicObject) Memento() (memento.Memento, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshotLocked(), nil
}

func (o *BasicObject) snapshotLocked() *memento.BasicMemento {
	m := o.state
	if o.state.Fields != nil {
		m.Fields = make(map[string]any, len(o.state.Fields))
		for k, v := range o.state.Fields {
			m.Fields[k] = v
		}
	}
	m.References = append([]memento.Reference(nil), o.state.References...)
	m.Tags = append([]string(nil), o.state.Tags...)
	if len(m.References) == 0 {
		m.References = nil
	}
	if len(m.Tags) == 0 {
		m.Tags = nil
	}
	return &m
}

// BasicEntity 带附属对象（feed、enricher、policy）的实体
type BasicEntity struct {
	*BasicObject

	adjMu     sync.RWMutex
	feeds     []Object
	enrichers []Object
	policies  []Object
}

// NewEntity 创建实体
func NewEntity(id, kind string) *BasicEntity {
	return &BasicEntity{BasicObject: NewObject(memento.Entity, id, kind)}
}

func (e *BasicEntity) Canonical() Entity { return e }

// Attach 附加 feed/enricher/policy；实体的 memento 会引用它们
func (e *BasicEntity) Attach(o Object) error {
	if o == nil {
		return errors.NewError(errors.ErrCodeInvalidInput, "adjunct is nil")
	}
	e.adjMu.Lock()
	defer e.adjMu.Unlock()
	switch o.ObjectType() {
	case memento.Feed:
		e.feeds = append(e.feeds, o)
	case memento.Enricher:
		e.enrichers = append(e.enrichers, o)
	case memento.Policy:
		e.policies = append(e.policies, o)
	default:
		return errors.Newf(errors.ErrCodeUnsupported, "cannot attach %s to an entity", o.ObjectType())
	}
	if b, ok := o.(*BasicObject); ok {
		b.SetParent(e.ID())
	}
	return nil
}

func (e *BasicEntity) Feeds() []Object     { return e.adjuncts(&e.feeds) }
func (e *BasicEntity) Enrichers() []Object { return e.adjuncts(&e.enrichers) }
func (e *BasicEntity) Policies() []Object  { return e.adjuncts(&e.policies) }

func (e *BasicEntity) adjuncts(list *[]Object) []Object {
	e.adjMu.RLock()
	defer e.adjMu.RUnlock()
	return append([]Object(nil), (*list)...)
}

// Memento 实体状态加上对附属对象的引用
func (e *BasicEntity) Memento() (memento.Memento, error) {
	e.mu.RLock()
	m := e.snapshotLocked()
	e.mu.RUnlock()
	for _, o := range e.Policies() {
		m.AddReference(memento.Policy, o.ID())
	}
	for _, o := range e.Enrichers() {
		m.AddReference(memento.Enricher, o.ID())
	}
	for _, o := range e.Feeds() {
		m.AddReference(memento.Feed, o.ID())
	}
	return m, nil
}

// EntityProxy 指向实体的代理；持久化时必须先通过 Canonical 去代理
type EntityProxy struct {
	target Entity
}

// NewProxy 创建代理
func NewProxy(target Entity) *EntityProxy {
	return &EntityProxy{target: target}
}

func (p *EntityProxy) ID() string                     { return p.target.ID() }
func (p *EntityProxy) ObjectType() memento.ObjectType { return memento.Entity }
func (p *EntityProxy) Canonical() Entity              { return p.target.Canonical() }
func (p *EntityProxy) Feeds() []Object                { return p.target.Feeds() }
func (p *EntityProxy) Enrichers() []Object            { return p.target.Enrichers() }
func (p *EntityProxy) Policies() []Object             { return p.target.Policies() }

// Memento 代理本身不可持久化
func (p *EntityProxy) Memento() (memento.Memento, error) {
	return nil, errors.Newf(errors.ErrCodeUnsupported, "entity %s is a proxy", p.target.ID())
}

// BasicLocation 不具备持久化能力的位置
type BasicLocation struct {
	*BasicObject
	spec string
}

// NewLocation 创建位置
func NewLocation(id, spec string) *BasicLocation {
	o := NewObject(memento.Location, id, "location")
	o.SetField("spec", spec)
	return &BasicLocation{BasicObject: o, spec: spec}
}

func (l *BasicLocation) Spec() string { return l.spec }

var (
	_ Object   = (*BasicObject)(nil)
	_ Entity   = (*BasicEntity)(nil)
	_ Entity   = (*EntityProxy)(nil)
	_ Location = (*BasicLocation)(nil)
)
