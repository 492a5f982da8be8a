// Package memento 定义持久化层的数据货币：对象类型、原始快照、增量、清单与完整 memento。
//
// 持久化层只持有对象 id 与序列化后的字符串，不引用任何存活的领域对象。
package memento

import (
	"strconv"
	"strings"

	"rebind/errors"
)

// ObjectType 持久化对象类别
//
// 封闭集合：字段未导出，包外只能使用下面预定义的六个值；零值无效。
type ObjectType struct {
	ordinal uint8
}

const numTypes = 6

var (
	Entity      = ObjectType{ordinal: 1}
	Location    = ObjectType{ordinal: 2}
	Policy      = ObjectType{ordinal: 3}
	Enricher    = ObjectType{ordinal: 4}
	Feed        = ObjectType{ordinal: 5}
	CatalogItem = ObjectType{ordinal: 6}
)

// 依赖顺序：写入与重载都按此顺序进行
var orderedTypes = [numTypes]ObjectType{Entity, Location, Policy, Enricher, Feed, CatalogItem}

var typeNames = [numTypes]string{"entity", "location", "policy", "enricher", "feed", "catalog_item"}

var typeSubpaths = [numTypes]string{"entities", "locations", "policies", "enrichers", "feeds", "catalog"}

// ErrUnsupportedType 未知对象类型（结构性错误，不重试）
var ErrUnsupportedType = errors.NewError(errors.ErrCodeUnsupported, "unsupported object type")

// Types 按固定依赖顺序返回全部对象类型
func Types() []ObjectType {
	out := make([]ObjectType, numTypes)
	copy(out, orderedTypes[:])
	return out
}

// IsValid 是否为六个预定义类型之一
func (t ObjectType) IsValid() bool {
	return t.ordinal >= 1 && t.ordinal <= numTypes
}

func (t ObjectType) index() int {
	return int(t.ordinal) - 1
}

// String 返回类型名称，如 "entity"
func (t ObjectType) String() string {
	if !t.IsValid() {
		return "invalid"
	}
	return typeNames[t.index()]
}

// Subpath 对象存储中该类型所在的子路径
func (t ObjectType) Subpath() string {
	if !t.IsValid() {
		return ""
	}
	return typeSubpaths[t.index()]
}

// MarshalText 实现 encoding.TextMarshaler
func (t ObjectType) MarshalText() ([]byte, error) {
	if !t.IsValid() {
		return nil, errors.WrapError(ErrUnsupportedType, errors.ErrCodeUnsupported, "marshal object type")
	}
	return []byte(t.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (t *ObjectType) UnmarshalText(text []byte) error {
	parsed, err := ParseObjectType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseObjectType 解析类型名称，支持 "entity"、"ENTITY"、"catalog_item"、"catalogItem"、子路径名
func ParseObjectType(s string) (ObjectType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	if norm == "catalogitem" {
		norm = "catalog_item"
	}
	for i := 0; i < numTypes; i++ {
		if norm == typeNames[i] || norm == typeSubpaths[i] {
			return orderedTypes[i], nil
		}
	}
	return ObjectType{}, errors.Newf(errors.ErrCodeUnsupported, "unsupported object type %q", s)
}

// TypeForSubpath 根据存储子路径查找类型
func TypeForSubpath(subpath string) (ObjectType, bool) {
	for i := 0; i < numTypes; i++ {
		if typeSubpaths[i] == subpath {
			return orderedTypes[i], true
		}
	}
	return ObjectType{}, false
}

func unsupported(t ObjectType) error {
	return errors.WrapError(ErrUnsupportedType, errors.ErrCodeUnsupported, "object type ordinal "+strconv.Itoa(int(t.ordinal)))
}
