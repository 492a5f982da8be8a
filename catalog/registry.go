// Package catalog 目录项注册表
//
// 注册表由管理上下文显式构造并持有，生命周期与管理上下文一致；不提供全局实例。
package catalog

import (
	"sort"
	"strings"
	"sync"

	"rebind/errors"
	"rebind/memento"
)

// Item 目录项：可被实例化为实体的蓝图
type Item struct {
	Symbol      string
	Version     string
	DisplayName string
	// ItemType 蓝图类别（entity、policy、location...）
	ItemType string
	Plan     map[string]any
	Tags     []string
}

// ID symbol:version；无版本时只有 symbol
func (i Item) ID() string {
	if i.Version == "" {
		return i.Symbol
	}
	return i.Symbol + ":" + i.Version
}

// Memento 转为可持久化的表示
func (i Item) Memento() memento.Memento {
	fields := map[string]any{"symbol": i.Symbol}
	if i.Version != "" {
		fields["version"] = i.Version
	}
	if i.ItemType != "" {
		fields["itemType"] = i.ItemType
	}
	if len(i.Plan) > 0 {
		plan := make(map[string]any, len(i.Plan))
		for k, v := range i.Plan {
			plan[k] = v
		}
		fields["plan"] = plan
	}
	return &memento.BasicMemento{
		ID:          i.ID(),
		Type:        memento.CatalogItem,
		Kind:        "catalog-item",
		DisplayName: i.DisplayName,
		Fields:      fields,
		Tags:        append([]string(nil), i.Tags...),
	}
}

// ItemFromMemento 从持久化表示恢复目录项
func ItemFromMemento(m memento.Memento) (Item, error) {
	b, ok := m.(*memento.BasicMemento)
	if !ok || b == nil || b.Type != memento.CatalogItem {
		return Item{}, errors.NewError(errors.ErrCodeInvalidInput, "not a catalog item memento")
	}
	item := Item{DisplayName: b.DisplayName, Tags: append([]string(nil), b.Tags...)}
	item.Symbol, _ = b.Fields["symbol"].(string)
	item.Version, _ = b.Fields["version"].(string)
	item.ItemType, _ = b.Fields["itemType"].(string)
	if plan, ok := b.Fields["plan"].(map[string]any); ok {
		item.Plan = plan
	}
	if item.Symbol == "" {
		item.Symbol, item.Version, _ = strings.Cut(b.ID, ":")
	}
	return item, nil
}

// Registry 目录项注册表，并发安全
type Registry struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Item)}
}

// Add 注册或替换目录项
func (r *Registry) Add(item Item) error {
	if item.Symbol == "" {
		return errors.NewError(errors.ErrCodeInvalidInput, "catalog item symbol is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID()] = item
	return nil
}

// Remove 删除目录项，返回是否存在
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.items[id]
	delete(r.items, id)
	return ok
}

// Get 按 id 查找
func (r *Registry) Get(id string) (Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	return item, ok
}

// Items 全部目录项，按 id 排序
func (r *Registry) Items() []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.items[id])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Reset 清空注册表（重置目录）
func (r *Registry) Reset() {
	r.mu.Lock()
	r.items = make(map[string]Item)
	r.mu.Unlock()
}
