package memento

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebind/errors"
)

func TestMutableDelta_AddRemove(t *testing.T) {
	d := NewMutableDelta()
	assert.True(t, d.IsEmpty())

	require.NoError(t, d.Add(
		&BasicMemento{ID: "E1", Type: Entity},
		&BasicMemento{ID: "L1", Type: Location},
		&BasicMemento{ID: "E2", Type: Entity},
	))
	require.NoError(t, d.Remove(Policy, "P1", "P2"))

	assert.False(t, d.IsEmpty())
	assert.Equal(t, 5, d.Len())

	entities := d.Mementos(Entity)
	require.Len(t, entities, 2)
	assert.Equal(t, "E1", entities[0].GetID())
	assert.Equal(t, "E2", entities[1].GetID())
	assert.Equal(t, []string{"P1", "P2"}, d.Removed(Policy))
	assert.Empty(t, d.Removed(Entity))
}

func TestMutableDelta_NoDedupe(t *testing.T) {
	d := NewMutableDelta()
	require.NoError(t, d.Add(&BasicMemento{ID: "E1", Type: Entity}))
	require.NoError(t, d.Remove(Entity, "E1"))
	require.NoError(t, d.Add(&BasicMemento{ID: "E1", Type: Entity}))

	assert.Len(t, d.Mementos(Entity), 2)
	assert.Equal(t, []string{"E1"}, d.Removed(Entity))
}

func TestMutableDelta_InvalidType(t *testing.T) {
	d := NewMutableDelta()
	err := d.Add(&BasicMemento{ID: "X"})
	assert.True(t, errors.IsUnsupported(err))

	err = d.Remove(ObjectType{}, "X")
	assert.True(t, errors.IsUnsupported(err))
	assert.True(t, d.IsEmpty())
}

func TestMutableDelta_Merge(t *testing.T) {
	a := NewMutableDelta()
	require.NoError(t, a.Add(&BasicMemento{ID: "E1", Type: Entity}))
	b := NewMutableDelta()
	require.NoError(t, b.Add(&BasicMemento{ID: "E2", Type: Entity}))
	require.NoError(t, b.Remove(Feed, "F1"))

	a.Merge(b)
	a.Merge(nil)
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, "E2", a.Mementos(Entity)[1].GetID())
	assert.Equal(t, 2, b.Len())
}

func TestMutableDelta_AccessorsReturnCopies(t *testing.T) {
	d := NewMutableDelta()
	require.NoError(t, d.Remove(Feed, "F1"))
	removed := d.Removed(Feed)
	removed[0] = "changed"
	assert.Equal(t, []string{"F1"}, d.Removed(Feed))
}
