package serializer

import (
	"encoding/json"

	"rebind/errors"
	"rebind/memento"
)

// JSONSerializer JSON 序列化器
//
// 默认使用 JSON 序列化，简单且兼容性好。
type JSONSerializer struct{}

// NewJSONSerializer 创建 JSON 序列化器
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

func (s *JSONSerializer) Format() string { return FormatJSON }

// Serialize 序列化 memento
func (s *JSONSerializer) Serialize(m memento.Memento) (string, error) {
	b, err := toBasic(m)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(b)
	if err != nil {
		return "", errors.WrapError(err, errors.ErrCodeSerialization, "marshal "+b.Type.String()+" "+b.ID)
	}
	return string(data), nil
}

// Deserialize 反序列化 memento
func (s *JSONSerializer) Deserialize(t memento.ObjectType, payload string, lookup memento.LookupContext) (memento.Memento, error) {
	if payload == "" {
		return nil, ErrInvalidMemento
	}
	var m memento.BasicMemento
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeSerialization, "unmarshal "+t.String())
	}
	return finishDecode(t, &m, lookup)
}

// Peek 只解码清单字段
func (s *JSONSerializer) Peek(t memento.ObjectType, payload string) (memento.ManifestEntry, error) {
	var h peekHeader
	if err := json.Unmarshal([]byte(payload), &h); err != nil {
		return memento.ManifestEntry{}, errors.WrapError(err, errors.ErrCodeSerialization, "peek "+t.String())
	}
	return h.entry(t), nil
}

var (
	_ Serializer     = (*JSONSerializer)(nil)
	_ memento.Peeker = (*JSONSerializer)(nil)
)
