package persister

import (
	"slices"
	"sort"
	"sync"

	"rebind/memento"
)

// pendingDelta 排队等待下一个写入周期的合并增量
//
// 同一 id 后写覆盖先写；删除取消尚未写入的新增，新增取消尚未执行的删除。
type pendingDelta struct {
	mu    sync.Mutex
	types map[memento.ObjectType]*pendingType
	size  int
}

type pendingType struct {
	order   []string
	added   map[string]memento.Memento
	removed map[string]struct{}
}

func newPendingDelta() *pendingDelta {
	return &pendingDelta{types: make(map[memento.ObjectType]*pendingType)}
}

func (p *pendingDelta) typeLocked(t memento.ObjectType) *pendingType {
	pt, ok := p.types[t]
	if !ok {
		pt = &pendingType{added: make(map[string]memento.Memento), removed: make(map[string]struct{})}
		p.types[t] = pt
	}
	return pt
}

// merge 按应用顺序合并：每个类型先新增后删除
func (p *pendingDelta) merge(d memento.Delta) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range memento.Types() {
		adds, removes := d.Mementos(t), d.Removed(t)
		if len(adds) == 0 && len(removes) == 0 {
			continue
		}
		pt := p.typeLocked(t)
		for _, m := range adds {
			id := m.GetID()
			if _, ok := pt.added[id]; !ok {
				pt.order = append(pt.order, id)
			}
			pt.added[id] = m
			delete(pt.removed, id)
		}
		for _, id := range removes {
			if _, ok := pt.added[id]; ok {
				delete(pt.added, id)
				pt.order = slices.DeleteFunc(pt.order, func(s string) bool { return s == id })
			}
			pt.removed[id] = struct{}{}
		}
	}
	p.size = p.lenLocked()
}

// restore 把先前取出但未写出的增量放回队列
//
// d 早于当前排队内容，同一 id 以当前排队内容为准；放回的新增排在前面。
func (p *pendingDelta) restore(d memento.Delta) {
	if d == nil || d.IsEmpty() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range memento.Types() {
		adds, removes := d.Mementos(t), d.Removed(t)
		if len(adds) == 0 && len(removes) == 0 {
			continue
		}
		pt := p.typeLocked(t)
		var older []string
		for _, m := range adds {
			id := m.GetID()
			if pt.queuedLocked(id) {
				continue
			}
			pt.added[id] = m
			older = append(older, id)
		}
		pt.order = append(older, pt.order...)
		for _, id := range removes {
			if !pt.queuedLocked(id) {
				pt.removed[id] = struct{}{}
			}
		}
	}
	p.size = p.lenLocked()
}

func (pt *pendingType) queuedLocked(id string) bool {
	_, added := pt.added[id]
	_, removed := pt.removed[id]
	return added || removed
}

// take 取出并清空当前内容
func (p *pendingDelta) take() *memento.MutableDelta {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := memento.NewMutableDelta()
	for _, t := range memento.Types() {
		pt, ok := p.types[t]
		if !ok {
			continue
		}
		for _, id := range pt.order {
			if m, ok := pt.added[id]; ok {
				_ = out.Add(m)
			}
		}
		removed := make([]string, 0, len(pt.removed))
		for id := range pt.removed {
			removed = append(removed, id)
		}
		sort.Strings(removed)
		_ = out.Remove(t, removed...)
	}
	p.types = make(map[memento.ObjectType]*pendingType)
	p.size = 0
	return out
}

// Len 排队条目数
func (p *pendingDelta) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

func (p *pendingDelta) lenLocked() int {
	n := 0
	for _, pt := range p.types {
		n += len(pt.added) + len(pt.removed)
	}
	return n
}
