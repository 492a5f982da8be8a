package memento

import (
	"maps"
	"sync"

	"rebind/errors"
)

// FullMemento 完全反序列化后的 memento 集合
type FullMemento struct {
	planeID string
	objects [numTypes]map[string]Memento
}

func (f *FullMemento) PlaneID() string { return f.planeID }

// Get 查找单个 memento
func (f *FullMemento) Get(t ObjectType, id string) (Memento, bool) {
	if !t.IsValid() {
		return nil, false
	}
	m, ok := f.objects[t.index()][id]
	return m, ok
}

// Objects 指定类型的副本
func (f *FullMemento) Objects(t ObjectType) map[string]Memento {
	if !t.IsValid() {
		return nil
	}
	return maps.Clone(f.objects[t.index()])
}

// IDs 指定类型的 id，已排序
func (f *FullMemento) IDs(t ObjectType) []string {
	if !t.IsValid() {
		return nil
	}
	return sortedKeys(f.objects[t.index()])
}

func (f *FullMemento) Count(t ObjectType) int {
	if !t.IsValid() {
		return 0
	}
	return len(f.objects[t.index()])
}

func (f *FullMemento) Size() int {
	n := 0
	for i := range f.objects {
		n += len(f.objects[i])
	}
	return n
}

func (f *FullMemento) IsEmpty() bool { return f.Size() == 0 }

// FullMementoBuilder 并发安全地构造 FullMemento
type FullMementoBuilder struct {
	mu sync.Mutex
	f  *FullMemento
}

func NewFullMementoBuilder(planeID string) *FullMementoBuilder {
	f := &FullMemento{planeID: planeID}
	for i := range f.objects {
		f.objects[i] = make(map[string]Memento)
	}
	return &FullMementoBuilder{f: f}
}

// Put 添加 memento；类型无效或 id 为空时返回错误
func (b *FullMementoBuilder) Put(m Memento) error {
	if m == nil {
		return errors.NewError(errors.ErrCodeInvalidInput, "nil memento")
	}
	t := m.GetType()
	if !t.IsValid() {
		return unsupported(t)
	}
	if m.GetID() == "" {
		return errors.Newf(errors.ErrCodeInvalidInput, "empty id for %s", t)
	}
	b.mu.Lock()
	b.f.objects[t.index()][m.GetID()] = m
	b.mu.Unlock()
	return nil
}

func (b *FullMementoBuilder) Build() *FullMemento {
	return b.f
}
