package memento

import "sync"

// LookupContext 在完整反序列化期间把 (类型, id) 解析为存活对象或桩对象
type LookupContext interface {
	// Lookup 解析引用；不存在时向重绑定异常处理器报告
	Lookup(t ObjectType, id string) (any, bool)
	// Peek 解析引用；不存在时不报告
	Peek(t ObjectType, id string) (any, bool)
}

// ManifestLookupContext 基于清单的查找上下文
//
// 已注册的存活对象优先；否则返回清单条目作为桩。清单由同一次加载派生，
// 因此同一检查点中包含的对象总能被解析，与加载顺序无关。
type ManifestLookupContext struct {
	manifest *Manifest
	handler  RebindExceptionHandler

	mu   sync.RWMutex
	live [numTypes]map[string]any
}

// NewManifestLookupContext manifest 可为空（只解析已注册对象）；handler 可为空
func NewManifestLookupContext(manifest *Manifest, handler RebindExceptionHandler) *ManifestLookupContext {
	c := &ManifestLookupContext{manifest: manifest, handler: handler}
	for i := range c.live {
		c.live[i] = make(map[string]any)
	}
	return c
}

// Register 注册存活对象
func (c *ManifestLookupContext) Register(t ObjectType, id string, obj any) {
	if !t.IsValid() {
		return
	}
	c.mu.Lock()
	c.live[t.index()][id] = obj
	c.mu.Unlock()
}

func (c *ManifestLookupContext) Lookup(t ObjectType, id string) (any, bool) {
	obj, ok := c.Peek(t, id)
	if !ok && c.handler != nil {
		c.handler.OnDanglingReference(t, id)
	}
	return obj, ok
}

func (c *ManifestLookupContext) Peek(t ObjectType, id string) (any, bool) {
	if !t.IsValid() {
		return nil, false
	}
	c.mu.RLock()
	obj, ok := c.live[t.index()][id]
	c.mu.RUnlock()
	if ok {
		return obj, true
	}
	if c.manifest != nil {
		if e, ok := c.manifest.Entry(t, id); ok {
			return e, true
		}
	}
	return nil, false
}
