package persister

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rebind/memento"
)

func TestPendingDelta_Coalescing(t *testing.T) {
	p := newPendingDelta()
	p.merge(deltaOf(t, []memento.Memento{entity("E1", nil), entity("E2", nil)}, nil))
	p.merge(deltaOf(t, []memento.Memento{entity("E1", map[string]any{"v": "2"})},
		map[memento.ObjectType][]string{memento.Entity: {"E2"}, memento.Feed: {"F1"}}))
	assert.Equal(t, 3, p.Len())

	d := p.take()
	added := d.Mementos(memento.Entity)
	if assert.Len(t, added, 1) {
		assert.Equal(t, map[string]any{"v": "2"}, added[0].(*memento.BasicMemento).Fields)
	}
	assert.Equal(t, []string{"E2"}, d.Removed(memento.Entity))
	assert.Equal(t, []string{"F1"}, d.Removed(memento.Feed))
	assert.Equal(t, 0, p.Len())
	assert.True(t, p.take().IsEmpty())
}

func TestPendingDelta_RemoveThenAddInOneDelta(t *testing.T) {
	// 同一增量内先新增后删除，结果为删除
	p := newPendingDelta()
	p.merge(deltaOf(t, []memento.Memento{entity("E1", nil)}, map[memento.ObjectType][]string{memento.Entity: {"E1"}}))
	d := p.take()
	assert.Empty(t, d.Mementos(memento.Entity))
	assert.Equal(t, []string{"E1"}, d.Removed(memento.Entity))
}

func TestPendingDelta_PreservesInsertionOrder(t *testing.T) {
	p := newPendingDelta()
	p.merge(deltaOf(t, []memento.Memento{entity("E3", nil), entity("E1", nil), entity("E2", nil)}, nil))
	var ids []string
	for _, m := range p.take().Mementos(memento.Entity) {
		ids = append(ids, m.GetID())
	}
	assert.Equal(t, []string{"E3", "E1", "E2"}, ids)
}

func TestPendingDelta_ReAddAfterRemoveWritesOnce(t *testing.T) {
	p := newPendingDelta()
	p.merge(deltaOf(t, []memento.Memento{entity("X", nil)}, nil))
	p.merge(deltaOf(t, nil, map[memento.ObjectType][]string{memento.Entity: {"X"}}))
	p.merge(deltaOf(t, []memento.Memento{entity("X", map[string]any{"v": "2"})}, nil))
	assert.Equal(t, 1, p.Len())

	d := p.take()
	added := d.Mementos(memento.Entity)
	if assert.Len(t, added, 1) {
		assert.Equal(t, map[string]any{"v": "2"}, added[0].(*memento.BasicMemento).Fields)
	}
	assert.Empty(t, d.Removed(memento.Entity))
}

func TestPendingDelta_RestoreKeepsNewerEntries(t *testing.T) {
	p := newPendingDelta()
	p.merge(deltaOf(t, []memento.Memento{entity("E1", map[string]any{"v": "1"}), entity("E2", nil)},
		map[memento.ObjectType][]string{memento.Feed: {"F1"}}))
	older := p.take()

	p.merge(deltaOf(t, []memento.Memento{entity("E1", map[string]any{"v": "2"})}, nil))
	p.restore(older)
	assert.Equal(t, 3, p.Len())

	d := p.take()
	var ids []string
	for _, m := range d.Mementos(memento.Entity) {
		ids = append(ids, m.GetID())
		if m.GetID() == "E1" {
			assert.Equal(t, map[string]any{"v": "2"}, m.(*memento.BasicMemento).Fields)
		}
	}
	assert.Equal(t, []string{"E2", "E1"}, ids)
	assert.Equal(t, []string{"F1"}, d.Removed(memento.Feed))
}
