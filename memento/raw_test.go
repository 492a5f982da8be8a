package memento

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebind/errors"
)

func TestTypes_DependencyOrder(t *testing.T) {
	types := Types()
	require.Len(t, types, 6)
	assert.Equal(t, []ObjectType{Entity, Location, Policy, Enricher, Feed, CatalogItem}, types)

	// 返回的是副本
	types[0] = Feed
	assert.Equal(t, Entity, Types()[0])
}

func TestObjectType_Names(t *testing.T) {
	assert.Equal(t, "entity", Entity.String())
	assert.Equal(t, "catalog_item", CatalogItem.String())
	assert.Equal(t, "entities", Entity.Subpath())
	assert.Equal(t, "catalog", CatalogItem.Subpath())

	var zero ObjectType
	assert.False(t, zero.IsValid())
	assert.Equal(t, "invalid", zero.String())
	assert.Empty(t, zero.Subpath())
}

func TestParseObjectType(t *testing.T) {
	cases := map[string]ObjectType{
		"entity":       Entity,
		"ENTITY":       Entity,
		"locations":    Location,
		"catalogItem":  CatalogItem,
		"catalog-item": CatalogItem,
		" feed ":       Feed,
	}
	for in, want := range cases {
		got, err := ParseObjectType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseObjectType("sensor")
	assert.True(t, errors.IsUnsupported(err))
}

func TestObjectType_TextRoundTrip(t *testing.T) {
	for _, typ := range Types() {
		text, err := typ.MarshalText()
		require.NoError(t, err)

		var parsed ObjectType
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, typ, parsed)
	}

	_, err := ObjectType{}.MarshalText()
	assert.Error(t, err)
}

func TestRawSnapshot_ConcreteExample(t *testing.T) {
	raw, err := NewRawSnapshotBuilder().
		Put(Entity, "E1", "<E1/>").
		Put(Location, "L1", "<L1/>").
		Build()
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"E1": "<E1/>"}, raw.Entities())
	assert.Equal(t, map[string]string{"L1": "<L1/>"}, raw.Locations())
	assert.Empty(t, raw.Policies())
	assert.Empty(t, raw.Enrichers())
	assert.Empty(t, raw.Feeds())
	assert.Empty(t, raw.CatalogItems())
	assert.False(t, raw.IsEmpty())
	assert.Equal(t, 2, raw.Size())
}

func TestRawSnapshot_IsEmpty(t *testing.T) {
	assert.True(t, EmptyRawSnapshot().IsEmpty())

	for _, typ := range Types() {
		raw, err := NewRawSnapshotBuilder().Put(typ, "x", "payload").Build()
		require.NoError(t, err)
		assert.False(t, raw.IsEmpty(), typ.String())
		assert.Equal(t, 1, raw.Count(typ))
	}
}

func TestRawSnapshot_SameIDAcrossTypes(t *testing.T) {
	raw, err := NewRawSnapshotBuilder().
		Put(Entity, "shared", "e").
		Put(Policy, "shared", "p").
		Build()
	require.NoError(t, err)

	e, ok := raw.Get(Entity, "shared")
	require.True(t, ok)
	assert.Equal(t, "e", e)
	p, ok := raw.Get(Policy, "shared")
	require.True(t, ok)
	assert.Equal(t, "p", p)
}

func TestRawSnapshot_AccessorsReturnCopies(t *testing.T) {
	raw, err := NewRawSnapshotBuilder().Put(Entity, "E1", "a").Build()
	require.NoError(t, err)

	entities := raw.Entities()
	entities["E2"] = "b"
	delete(entities, "E1")

	assert.Equal(t, map[string]string{"E1": "a"}, raw.Entities())
}

func TestRawSnapshotBuilder_InvalidTypeFailsBuild(t *testing.T) {
	_, err := NewRawSnapshotBuilder().
		Put(Entity, "E1", "a").
		Put(ObjectType{}, "X", "b").
		Build()
	require.Error(t, err)
	assert.True(t, errors.IsUnsupported(err))
}

func TestRawSnapshotBuilder_EmptyIDFailsBuild(t *testing.T) {
	_, err := NewRawSnapshotBuilder().Put(Entity, "", "a").Build()
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))
}

func TestRawSnapshotBuilder_FrozenAfterBuild(t *testing.T) {
	b := NewRawSnapshotBuilder().Put(Entity, "E1", "a")
	raw, err := b.Build()
	require.NoError(t, err)

	b.Put(Entity, "E2", "b")
	_, err = b.Build()
	assert.Error(t, err)
	assert.Equal(t, 1, raw.Count(Entity))
}

func TestRawSnapshotBuilder_ConcurrentPut(t *testing.T) {
	b := NewRawSnapshotBuilder()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.Put(Entity, fmt.Sprintf("e-%d-%d", g, i), "x")
			}
		}(g)
	}
	wg.Wait()

	raw, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 400, raw.Count(Entity))
}

func TestRawSnapshot_ClearCatalogItems(t *testing.T) {
	raw, err := NewRawSnapshotBuilder().
		Format("json-v1").
		Put(Entity, "E1", "a").
		Put(CatalogItem, "C1", "c").
		Build()
	require.NoError(t, err)

	cleared := raw.ClearCatalogItems()
	assert.Empty(t, cleared.CatalogItems())
	assert.Equal(t, 1, cleared.Count(Entity))
	assert.Equal(t, "json-v1", cleared.Format())

	// 原快照不变
	assert.Equal(t, 1, raw.Count(CatalogItem))
}

func TestRawSnapshot_ForEachOrder(t *testing.T) {
	raw, err := NewRawSnapshotBuilder().
		Put(CatalogItem, "c", "1").
		Put(Feed, "f", "2").
		Put(Location, "l2", "3").
		Put(Location, "l1", "4").
		Put(Entity, "e", "5").
		Build()
	require.NoError(t, err)

	var visited []string
	require.NoError(t, raw.ForEach(func(typ ObjectType, id, _ string) error {
		visited = append(visited, typ.String()+"/"+id)
		return nil
	}))
	assert.Equal(t, []string{"entity/e", "location/l1", "location/l2", "feed/f", "catalog_item/c"}, visited)
}

func TestRawSnapshotBuilder_From(t *testing.T) {
	src, err := NewRawSnapshotBuilder().PlaneID("plane-1").Put(Policy, "P1", "p").Build()
	require.NoError(t, err)

	copied, err := NewRawSnapshotBuilder().From(src).Put(Feed, "F1", "f").Build()
	require.NoError(t, err)
	assert.Equal(t, "plane-1", copied.PlaneID())
	assert.Equal(t, 2, copied.Size())
	assert.Equal(t, 1, src.Size())
}

func TestFingerprint(t *testing.T) {
	a, err := NewRawSnapshotBuilder().Format("json-v1").Put(Entity, "E1", "a").Put(Location, "L1", "l").Build()
	require.NoError(t, err)
	b, err := NewRawSnapshotBuilder().Put(Location, "L1", "l").Put(Entity, "E1", "a").Build()
	require.NoError(t, err)
	c, err := NewRawSnapshotBuilder().Put(Entity, "E1", "b").Put(Location, "L1", "l").Build()
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.False(t, a.Fingerprint().IsZero())
	assert.Len(t, a.Fingerprint().String(), 64)
	assert.Len(t, a.Fingerprint().Short(), 12)
}

func TestPayloadDigest_DomainSeparated(t *testing.T) {
	raw, err := NewRawSnapshotBuilder().Build()
	require.NoError(t, err)
	assert.NotEqual(t, PayloadDigest(""), raw.Fingerprint())
	assert.Equal(t, PayloadDigest("x"), PayloadDigest("x"))
	assert.NotEqual(t, PayloadDigest("x"), PayloadDigest("y"))
}
