package memento

// Delta 增量的只读视图：每个类型的新增/变更 memento（有序）与删除 id
//
// 模型本身不去重；同一 id 同时出现在新增和删除中是合法的，应用顺序由持久化器决定。
type Delta interface {
	Mementos(t ObjectType) []Memento
	Removed(t ObjectType) []string
	IsEmpty() bool
	Len() int
}

// MutableDelta Delta 的可写实现，不是并发安全的
type MutableDelta struct {
	added   [numTypes][]Memento
	removed [numTypes][]string
}

// NewMutableDelta 创建空增量
func NewMutableDelta() *MutableDelta {
	return &MutableDelta{}
}

// Add 追加新增或变更的 memento
func (d *MutableDelta) Add(ms ...Memento) error {
	for _, m := range ms {
		if m == nil {
			continue
		}
		t := m.GetType()
		if !t.IsValid() {
			return unsupported(t)
		}
		d.added[t.index()] = append(d.added[t.index()], m)
	}
	return nil
}

// Remove 追加被删除的 id
func (d *MutableDelta) Remove(t ObjectType, ids ...string) error {
	if !t.IsValid() {
		return unsupported(t)
	}
	d.removed[t.index()] = append(d.removed[t.index()], ids...)
	return nil
}

// Merge 把另一个增量的内容追加到当前增量（保持各自顺序）
func (d *MutableDelta) Merge(other Delta) {
	if other == nil {
		return
	}
	for _, t := range orderedTypes {
		d.added[t.index()] = append(d.added[t.index()], other.Mementos(t)...)
		d.removed[t.index()] = append(d.removed[t.index()], other.Removed(t)...)
	}
}

func (d *MutableDelta) Mementos(t ObjectType) []Memento {
	if !t.IsValid() {
		return nil
	}
	out := make([]Memento, len(d.added[t.index()]))
	copy(out, d.added[t.index()])
	return out
}

func (d *MutableDelta) Removed(t ObjectType) []string {
	if !t.IsValid() {
		return nil
	}
	out := make([]string, len(d.removed[t.index()]))
	copy(out, d.removed[t.index()])
	return out
}

func (d *MutableDelta) IsEmpty() bool {
	return d.Len() == 0
}

// Len 新增与删除条目的总数
func (d *MutableDelta) Len() int {
	n := 0
	for i := 0; i < numTypes; i++ {
		n += len(d.added[i]) + len(d.removed[i])
	}
	return n
}
