package memento

import "maps"

// ManifestEntry 清单条目：对象的 id/类型与少量元数据，不做完整反序列化
type ManifestEntry struct {
	ID            string     `json:"id"`
	Type          ObjectType `json:"type"`
	Kind          string     `json:"kind,omitempty"`
	CatalogItemID string     `json:"catalogItemId,omitempty"`
	Parent        string     `json:"parent,omitempty"`
	Digest        Digest     `json:"-"`
}

// Peeker 从序列化内容中廉价地提取清单条目
type Peeker interface {
	Peek(t ObjectType, payload string) (ManifestEntry, error)
}

// Manifest 存储中存在哪些对象的只读索引
type Manifest struct {
	planeID string
	entries [numTypes]map[string]ManifestEntry
}

func (m *Manifest) PlaneID() string { return m.planeID }

// Entries 指定类型的条目副本
func (m *Manifest) Entries(t ObjectType) map[string]ManifestEntry {
	if !t.IsValid() {
		return nil
	}
	return maps.Clone(m.entries[t.index()])
}

// Entry 查找单个条目
func (m *Manifest) Entry(t ObjectType, id string) (ManifestEntry, bool) {
	if !t.IsValid() {
		return ManifestEntry{}, false
	}
	e, ok := m.entries[t.index()][id]
	return e, ok
}

// IDs 指定类型的 id，已排序
func (m *Manifest) IDs(t ObjectType) []string {
	if !t.IsValid() {
		return nil
	}
	return sortedKeys(m.entries[t.index()])
}

// Count 指定类型的条目数
func (m *Manifest) Count(t ObjectType) int {
	if !t.IsValid() {
		return 0
	}
	return len(m.entries[t.index()])
}

// Size 条目总数
func (m *Manifest) Size() int {
	n := 0
	for i := range m.entries {
		n += len(m.entries[i])
	}
	return n
}

func (m *Manifest) IsEmpty() bool { return m.Size() == 0 }

// ManifestBuilder 构造 Manifest
type ManifestBuilder struct {
	m *Manifest
}

func NewManifestBuilder() *ManifestBuilder {
	m := &Manifest{}
	for i := range m.entries {
		m.entries[i] = make(map[string]ManifestEntry)
	}
	return &ManifestBuilder{m: m}
}

func (b *ManifestBuilder) PlaneID(planeID string) *ManifestBuilder {
	b.m.planeID = planeID
	return b
}

// Add 添加条目；类型无效时返回错误
func (b *ManifestBuilder) Add(e ManifestEntry) error {
	if !e.Type.IsValid() {
		return unsupported(e.Type)
	}
	b.m.entries[e.Type.index()][e.ID] = e
	return nil
}

// Build 返回构造结果；之后不应再调用 Add
func (b *ManifestBuilder) Build() *Manifest {
	return b.m
}

// BuildManifest 从原始快照派生清单
//
// peeker 为空时条目只含 id/类型/摘要；单个对象 peek 失败时报告给 handler 并跳过该对象。
func BuildManifest(raw *RawSnapshot, peeker Peeker, handler RebindExceptionHandler) *Manifest {
	b := NewManifestBuilder()
	if raw == nil {
		return b.Build()
	}
	b.PlaneID(raw.PlaneID())
	_ = raw.ForEach(func(t ObjectType, id, payload string) error {
		entry := ManifestEntry{ID: id, Type: t}
		if peeker != nil {
			peeked, err := peeker.Peek(t, payload)
			if err != nil {
				if handler != nil {
					handler.OnLoadMementoFailed(t, id, err)
				}
				return nil
			}
			entry.Kind = peeked.Kind
			entry.CatalogItemID = peeked.CatalogItemID
			entry.Parent = peeked.Parent
		}
		entry.Digest = PayloadDigest(payload)
		_ = b.Add(entry)
		return nil
	})
	return b.Build()
}
