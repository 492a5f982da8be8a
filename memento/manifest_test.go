package memento

import (
	stdErrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebind/errors"
	"rebind/logging"
)

type stubPeeker struct {
	fail map[string]bool
}

func (p stubPeeker) Peek(t ObjectType, payload string) (ManifestEntry, error) {
	if p.fail[payload] {
		return ManifestEntry{}, stdErrors.New("unreadable")
	}
	return ManifestEntry{Kind: "kind-" + payload, Parent: "parent-" + payload}, nil
}

func TestBuildManifest(t *testing.T) {
	raw, err := NewRawSnapshotBuilder().
		PlaneID("plane").
		Put(Entity, "E1", "e1").
		Put(Entity, "E2", "bad").
		Put(Location, "L1", "l1").
		Build()
	require.NoError(t, err)

	handler := NewCollectingRebindExceptionHandler(FailAtEnd, logging.NewNoopLogger())
	m := BuildManifest(raw, stubPeeker{fail: map[string]bool{"bad": true}}, handler)

	assert.Equal(t, "plane", m.PlaneID())
	assert.Equal(t, []string{"E1"}, m.IDs(Entity))
	assert.Equal(t, 2, m.Size())

	e, ok := m.Entry(Entity, "E1")
	require.True(t, ok)
	assert.Equal(t, "kind-e1", e.Kind)
	assert.Equal(t, "parent-e1", e.Parent)
	assert.Equal(t, PayloadDigest("e1"), e.Digest)

	require.Len(t, handler.Errors(), 1)
	assert.Error(t, handler.OnDone())
}

func TestBuildManifest_Empty(t *testing.T) {
	m := BuildManifest(EmptyRawSnapshot(), nil, nil)
	assert.True(t, m.IsEmpty())
	assert.True(t, BuildManifest(nil, nil, nil).IsEmpty())
}

func TestBuildManifest_WithoutPeeker(t *testing.T) {
	raw, err := NewRawSnapshotBuilder().Put(Feed, "F1", "f").Build()
	require.NoError(t, err)

	m := BuildManifest(raw, nil, nil)
	e, ok := m.Entry(Feed, "F1")
	require.True(t, ok)
	assert.Empty(t, e.Kind)
	assert.False(t, e.Digest.IsZero())
}

func TestManifestBuilder_RejectsInvalidType(t *testing.T) {
	err := NewManifestBuilder().Add(ManifestEntry{ID: "x"})
	assert.True(t, errors.IsUnsupported(err))
}

func TestManifestLookupContext(t *testing.T) {
	b := NewManifestBuilder()
	require.NoError(t, b.Add(ManifestEntry{ID: "L1", Type: Location}))
	handler := NewCollectingRebindExceptionHandler(FailAtEnd, logging.NewNoopLogger())
	ctx := NewManifestLookupContext(b.Build(), handler)

	obj, ok := ctx.Lookup(Location, "L1")
	require.True(t, ok)
	assert.Equal(t, "L1", obj.(ManifestEntry).ID)

	live := &BasicMemento{ID: "L1", Type: Location}
	ctx.Register(Location, "L1", live)
	obj, ok = ctx.Lookup(Location, "L1")
	require.True(t, ok)
	assert.Same(t, live, obj)

	_, ok = ctx.Peek(Policy, "missing")
	assert.False(t, ok)
	assert.Empty(t, handler.Dangling())

	_, ok = ctx.Lookup(Policy, "missing")
	assert.False(t, ok)
	assert.Equal(t, []Reference{{Type: Policy, ID: "missing"}}, handler.Dangling())
}

func TestFullMementoBuilder(t *testing.T) {
	b := NewFullMementoBuilder("plane")
	require.NoError(t, b.Put(&BasicMemento{ID: "E1", Type: Entity}))
	require.NoError(t, b.Put(&BasicMemento{ID: "C1", Type: CatalogItem}))
	assert.Error(t, b.Put(nil))
	assert.Error(t, b.Put(&BasicMemento{Type: Entity}))
	assert.True(t, errors.IsUnsupported(b.Put(&BasicMemento{ID: "X"})))

	full := b.Build()
	assert.Equal(t, "plane", full.PlaneID())
	assert.Equal(t, 2, full.Size())
	assert.Equal(t, []string{"E1"}, full.IDs(Entity))
	_, ok := full.Get(CatalogItem, "C1")
	assert.True(t, ok)
}
