package memento

import (
	"maps"
	"sync"

	"rebind/errors"
)

// RawSnapshot 不可变的原始快照：每个对象类型一份 {id -> 序列化字符串}
//
// 可以表示完整快照，也可以表示部分数据。同一 id 可以出现在不同类型中。
type RawSnapshot struct {
	format  string
	planeID string
	objects [numTypes]map[string]string
}

// Format 可选的格式/版本标签
func (r *RawSnapshot) Format() string { return r.format }

// PlaneID 管理平面 id（可为空）
func (r *RawSnapshot) PlaneID() string { return r.planeID }

// Objects 返回指定类型映射的副本；类型无效时返回 nil
func (r *RawSnapshot) Objects(t ObjectType) map[string]string {
	if !t.IsValid() {
		return nil
	}
	return maps.Clone(r.objects[t.index()])
}

func (r *RawSnapshot) Entities() map[string]string     { return r.Objects(Entity) }
func (r *RawSnapshot) Locations() map[string]string    { return r.Objects(Location) }
func (r *RawSnapshot) Policies() map[string]string     { return r.Objects(Policy) }
func (r *RawSnapshot) Enrichers() map[string]string    { return r.Objects(Enricher) }
func (r *RawSnapshot) Feeds() map[string]string        { return r.Objects(Feed) }
func (r *RawSnapshot) CatalogItems() map[string]string { return r.Objects(CatalogItem) }

// Get 读取单个对象的序列化内容
func (r *RawSnapshot) Get(t ObjectType, id string) (string, bool) {
	if !t.IsValid() {
		return "", false
	}
	v, ok := r.objects[t.index()][id]
	return v, ok
}

// IDs 指定类型的 id，已排序
func (r *RawSnapshot) IDs(t ObjectType) []string {
	if !t.IsValid() {
		return nil
	}
	return sortedKeys(r.objects[t.index()])
}

// Count 指定类型的对象数量
func (r *RawSnapshot) Count(t ObjectType) int {
	if !t.IsValid() {
		return 0
	}
	return len(r.objects[t.index()])
}

// Size 全部对象数量
func (r *RawSnapshot) Size() int {
	n := 0
	for i := range r.objects {
		n += len(r.objects[i])
	}
	return n
}

// IsEmpty 当且仅当六个映射全部为空
func (r *RawSnapshot) IsEmpty() bool {
	for i := range r.objects {
		if len(r.objects[i]) > 0 {
			return false
		}
	}
	return true
}

// ForEach 按依赖顺序遍历，每个类型内按 id 排序；fn 返回错误时停止
func (r *RawSnapshot) ForEach(fn func(t ObjectType, id, payload string) error) error {
	for _, t := range orderedTypes {
		m := r.objects[t.index()]
		for _, id := range sortedKeys(m) {
			if err := fn(t, id, m[id]); err != nil {
				return err
			}
		}
	}
	return nil
}

// ClearCatalogItems 返回不含目录项的新快照（用于重置目录），原快照不变
func (r *RawSnapshot) ClearCatalogItems() *RawSnapshot {
	out := &RawSnapshot{format: r.format, planeID: r.planeID}
	for i := range r.objects {
		out.objects[i] = r.objects[i]
	}
	out.objects[CatalogItem.index()] = map[string]string{}
	return out
}

// EmptyRawSnapshot 返回空快照
func EmptyRawSnapshot() *RawSnapshot {
	raw, _ := NewRawSnapshotBuilder().Build()
	return raw
}

// RawSnapshotBuilder 增量构造 RawSnapshot，可被多个 goroutine 并发写入
//
// 无效类型或空 id 会记录第一个错误，由 Build 返回。Build 之后构造器冻结。
type RawSnapshotBuilder struct {
	mu      sync.Mutex
	format  string
	planeID string
	objects [numTypes]map[string]string
	err     error
	built   bool
}

// NewRawSnapshotBuilder 创建构造器
func NewRawSnapshotBuilder() *RawSnapshotBuilder {
	b := &RawSnapshotBuilder{}
	for i := range b.objects {
		b.objects[i] = make(map[string]string)
	}
	return b
}

// Format 设置格式标签
func (b *RawSnapshotBuilder) Format(format string) *RawSnapshotBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.checkLocked() {
		b.format = format
	}
	return b
}

// PlaneID 设置管理平面 id
func (b *RawSnapshotBuilder) PlaneID(planeID string) *RawSnapshotBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.checkLocked() {
		b.planeID = planeID
	}
	return b
}

// Put 写入单个对象；同类型同 id 后写覆盖
func (b *RawSnapshotBuilder) Put(t ObjectType, id, payload string) *RawSnapshotBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putLocked(t, id, payload)
	return b
}

// PutAll 批量写入同一类型
func (b *RawSnapshotBuilder) PutAll(t ObjectType, objects map[string]string) *RawSnapshotBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, payload := range objects {
		b.putLocked(t, id, payload)
	}
	return b
}

// From 复制另一个快照的全部内容（含格式与平面 id）
func (b *RawSnapshotBuilder) From(raw *RawSnapshot) *RawSnapshotBuilder {
	if raw == nil {
		return b
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.checkLocked() {
		return b
	}
	b.format = raw.format
	b.planeID = raw.planeID
	for i, t := range orderedTypes {
		for id, payload := range raw.objects[i] {
			b.putLocked(t, id, payload)
		}
	}
	return b
}

// Build 冻结并返回快照
func (b *RawSnapshotBuilder) Build() (*RawSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	if b.built {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "raw snapshot builder already built")
	}
	b.built = true
	out := &RawSnapshot{format: b.format, planeID: b.planeID}
	out.objects = b.objects
	return out, nil
}

func (b *RawSnapshotBuilder) putLocked(t ObjectType, id, payload string) {
	if !b.checkLocked() {
		return
	}
	if !t.IsValid() {
		b.err = unsupported(t)
		return
	}
	if id == "" {
		b.err = errors.Newf(errors.ErrCodeInvalidInput, "empty id for %s", t)
		return
	}
	b.objects[t.index()][id] = payload
}

// checkLocked 已有错误或已构建时返回 false
func (b *RawSnapshotBuilder) checkLocked() bool {
	if b.err != nil {
		return false
	}
	if b.built {
		b.err = errors.NewError(errors.ErrCodeInvalidInput, "raw snapshot builder already built")
		return false
	}
	return true
}
