package memento

import "sort"

// Memento 单个受管对象的可持久化状态
type Memento interface {
	GetID() string
	GetType() ObjectType
}

// Reference 对另一个持久化对象的引用，重载时通过 LookupContext 解析
type Reference struct {
	Type ObjectType `json:"type" cbor:"type"`
	ID   string     `json:"id" cbor:"id"`
}

// BasicMemento 通用的 memento 表示
//
// 实体运行时负责填充内容；持久化层只关心 ID/Type 以及引用关系。
type BasicMemento struct {
	ID            string         `json:"id" cbor:"id"`
	Type          ObjectType     `json:"type" cbor:"type"`
	Kind          string         `json:"kind,omitempty" cbor:"kind,omitempty"`
	DisplayName   string         `json:"displayName,omitempty" cbor:"displayName,omitempty"`
	CatalogItemID string         `json:"catalogItemId,omitempty" cbor:"catalogItemId,omitempty"`
	Parent        string         `json:"parent,omitempty" cbor:"parent,omitempty"`
	Fields        map[string]any `json:"fields,omitempty" cbor:"fields,omitempty"`
	References    []Reference    `json:"references,omitempty" cbor:"references,omitempty"`
	Tags          []string       `json:"tags,omitempty" cbor:"tags,omitempty"`
}

func (m *BasicMemento) GetID() string       { return m.ID }
func (m *BasicMemento) GetType() ObjectType { return m.Type }

// AddReference 追加引用并返回自身，便于链式构造
func (m *BasicMemento) AddReference(t ObjectType, id string) *BasicMemento {
	m.References = append(m.References, Reference{Type: t, ID: id})
	return m
}

// ReferencesOf 返回指定类型的引用 id
func (m *BasicMemento) ReferencesOf(t ObjectType) []string {
	var ids []string
	for _, r := range m.References {
		if r.Type == t {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
