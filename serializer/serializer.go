// Package serializer 负责单个 memento 与字符串之间的转换
package serializer

import (
	"strings"

	"rebind/errors"
	"rebind/memento"
)

// Serializer memento 序列化器接口
//
// 实现：
//   - JSON（默认，格式标签 json-v1）
//   - CBOR（格式标签 cbor-v1，base64 文本）
type Serializer interface {
	// Format 格式标签，写入 RawSnapshot.Format
	Format() string

	// Serialize 序列化单个 memento
	Serialize(m memento.Memento) (string, error)

	// Deserialize 反序列化；引用通过 lookup.Lookup 解析，缺失的引用由查找上下文报告
	Deserialize(t memento.ObjectType, payload string, lookup memento.LookupContext) (memento.Memento, error)
}

// 错误定义
var (
	ErrInvalidMemento        = errors.NewError(errors.ErrCodeInvalidInput, "invalid memento")
	ErrSerializationFailed   = errors.NewError(errors.ErrCodeSerialization, "memento serialization failed")
	ErrDeserializationFailed = errors.NewError(errors.ErrCodeSerialization, "memento deserialization failed")
)

const (
	FormatJSON = "json-v1"
	FormatCBOR = "cbor-v1"
)

// ForFormat 按名称选择序列化器，空字符串表示默认 JSON
func ForFormat(name string) (Serializer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json", FormatJSON:
		return NewJSONSerializer(), nil
	case "cbor", FormatCBOR:
		return NewCBORSerializer(), nil
	}
	return nil, errors.Newf(errors.ErrCodeUnsupported, "unsupported serialization format %q", name)
}

// toBasic 把任意 Memento 转成通用表示；非 BasicMemento 只保留 id 与类型
func toBasic(m memento.Memento) (*memento.BasicMemento, error) {
	if m == nil {
		return nil, ErrInvalidMemento
	}
	if b, ok := m.(*memento.BasicMemento); ok {
		if b == nil {
			return nil, ErrInvalidMemento
		}
		return b, nil
	}
	return &memento.BasicMemento{ID: m.GetID(), Type: m.GetType()}, nil
}

// peekHeader 清单所需的最小字段
type peekHeader struct {
	ID            string `json:"id" cbor:"id"`
	Kind          string `json:"kind,omitempty" cbor:"kind,omitempty"`
	CatalogItemID string `json:"catalogItemId,omitempty" cbor:"catalogItemId,omitempty"`
	Parent        string `json:"parent,omitempty" cbor:"parent,omitempty"`
}

func (h peekHeader) entry(t memento.ObjectType) memento.ManifestEntry {
	return memento.ManifestEntry{
		ID:            h.ID,
		Type:          t,
		Kind:          h.Kind,
		CatalogItemID: h.CatalogItemID,
		Parent:        h.Parent,
	}
}

// finishDecode 校验类型并解析引用
func finishDecode(t memento.ObjectType, m *memento.BasicMemento, lookup memento.LookupContext) (memento.Memento, error) {
	if m.ID == "" {
		return nil, errors.WrapError(ErrDeserializationFailed, errors.ErrCodeSerialization, "missing id")
	}
	if !m.Type.IsValid() {
		m.Type = t
	}
	if m.Type != t {
		return nil, errors.Newf(errors.ErrCodeSerialization, "memento %s has type %s, expected %s", m.ID, m.Type, t)
	}
	if lookup != nil {
		for _, ref := range m.References {
			lookup.Lookup(ref.Type, ref.ID)
		}
	}
	return m, nil
}
