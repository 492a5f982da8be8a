package mgmt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebind/catalog"
	"rebind/errors"
	"rebind/ha"
	"rebind/logging"
	"rebind/memento"
	"rebind/objectstore/memory"
	"rebind/persister"
	"rebind/serializer"
)

func TestBasicEntity_MementoReferencesAdjuncts(t *testing.T) {
	e := NewEntity("E1", "web")
	e.SetField("size", "3")
	pol := NewObject(memento.Policy, "P1", "autoscaler")
	feed := NewObject(memento.Feed, "F1", "http-feed")
	require.NoError(t, e.Attach(pol))
	require.NoError(t, e.Attach(feed))
	assert.True(t, errors.IsUnsupported(e.Attach(NewObject(memento.Location, "L1", "x"))))

	m, err := e.Memento()
	require.NoError(t, err)
	b := m.(*memento.BasicMemento)
	assert.Equal(t, []string{"P1"}, b.ReferencesOf(memento.Policy))
	assert.Equal(t, []string{"F1"}, b.ReferencesOf(memento.Feed))
	assert.Equal(t, "3", b.Fields["size"])

	pm, err := pol.Memento()
	require.NoError(t, err)
	assert.Equal(t, "E1", pm.(*memento.BasicMemento).Parent)
}

func TestBasicObject_MementoIsSnapshot(t *testing.T) {
	o := NewObject(memento.Enricher, "N1", "aggregator").SetField("k", "v1")
	m, err := o.Memento()
	require.NoError(t, err)
	o.SetField("k", "v2")
	assert.Equal(t, "v1", m.(*memento.BasicMemento).Fields["k"])
}

func TestEntityProxy(t *testing.T) {
	e := NewEntity("E1", "web")
	p := NewProxy(e)
	assert.Equal(t, "E1", p.ID())
	assert.Same(t, e, p.Canonical())
	_, err := p.Memento()
	assert.True(t, errors.IsUnsupported(err))
}

type staticResolver map[string]Location

func (r staticResolver) Resolve(spec string) (Location, error) {
	if l, ok := r[spec]; ok {
		return l, nil
	}
	return nil, errors.Newf(errors.ErrCodeNotFound, "unknown location %q", spec)
}

func TestLocationRegistry_Resolve(t *testing.T) {
	reg := NewLocationRegistry(nil)
	_, err := reg.Resolve("localhost")
	assert.True(t, errors.IsUnsupported(err))

	reg.SetResolver(staticResolver{"localhost": NewLocation("L0", "localhost")})
	l, err := reg.Resolve("localhost")
	require.NoError(t, err)
	assert.Equal(t, "localhost", l.Spec())
	assert.Empty(t, reg.Locations())

	require.NoError(t, reg.Manage(l))
	got, ok := reg.Location("L0")
	require.True(t, ok)
	assert.Same(t, l, got)
	assert.True(t, reg.Unmanage("L0"))
}

func TestEntityRegistry_SortedByID(t *testing.T) {
	reg := NewEntityRegistry()
	require.NoError(t, reg.Manage(NewEntity("E2", "x")))
	require.NoError(t, reg.Manage(NewEntity("E1", "x")))
	assert.Error(t, reg.Manage(NewEntity("", "x")))

	var ids []string
	for _, e := range reg.Entities() {
		ids = append(ids, e.ID())
	}
	assert.Equal(t, []string{"E1", "E2"}, ids)
}

func TestNewLocal_Defaults(t *testing.T) {
	c := NewLocal(LocalOptions{NodeID: "node-1", HAMode: ha.HAStandby})
	assert.Equal(t, "node-1", c.NodeID())
	assert.NotEmpty(t, c.PlaneID())
	assert.Equal(t, ha.NodeStandby, c.HAManager().NodeState())
	assert.Equal(t, serializer.FormatJSON, c.Serializer().Format())
	assert.NotNil(t, c.Paths())
	assert.True(t, c.PersistenceExceptionHandler().IsActive())

	require.NoError(t, c.Catalog().Add(catalog.Item{Symbol: "web"}))
	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.Catalog().Len())
	assert.False(t, c.PersistenceExceptionHandler().IsActive())
}

func TestRebindManager_RebindRestoresCatalog(t *testing.T) {
	ctx := context.Background()
	store := memory.New("rebind")
	require.NoError(t, store.PrepareForSharedUse(ha.PersistAuto, ha.HADisabled))
	p := persister.NewStorePersister(store, persister.Options{})
	defer p.Stop(ctx, false)
	require.NoError(t, p.EnableWriteAccess())

	s := serializer.NewJSONSerializer()
	e1 := NewEntity("E1", "web")
	e1.SetCatalogItemID("web:1.0")
	em, _ := e1.Memento()
	ep, err := s.Serialize(em)
	require.NoError(t, err)
	cp, err := s.Serialize(catalog.Item{Symbol: "web", Version: "1.0"}.Memento())
	require.NoError(t, err)
	raw, err := memento.NewRawSnapshotBuilder().
		Put(memento.Entity, "E1", ep).
		Put(memento.CatalogItem, "web:1.0", cp).
		Build()
	require.NoError(t, err)
	require.NoError(t, p.Checkpoint(ctx, raw, nil))

	registry := catalog.NewRegistry()
	rm := NewRebindManager(registry)
	assert.Nil(t, rm.LastRawSnapshot())

	full, err := rm.Rebind(ctx, p, memento.NewCollectingRebindExceptionHandler(memento.FailAtEnd, logging.NewNoopLogger()))
	require.NoError(t, err)
	assert.Equal(t, 2, full.Size())
	assert.Equal(t, 2, rm.LastRawSnapshot().Size())

	item, ok := registry.Get("web:1.0")
	require.True(t, ok)
	assert.Equal(t, "web", item.Symbol)
}

func TestRebindManager_DanglingReferenceFailsAtEnd(t *testing.T) {
	ctx := context.Background()
	store := memory.New("dangling")
	require.NoError(t, store.PrepareForSharedUse(ha.PersistAuto, ha.HADisabled))
	p := persister.NewStorePersister(store, persister.Options{})
	defer p.Stop(ctx, false)
	require.NoError(t, p.EnableWriteAccess())

	e1 := NewEntity("E1", "web")
	e1.AddReference(memento.Location, "L404")
	em, _ := e1.Memento()
	payload, err := serializer.NewJSONSerializer().Serialize(em)
	require.NoError(t, err)
	raw, err := memento.NewRawSnapshotBuilder().Put(memento.Entity, "E1", payload).Build()
	require.NoError(t, err)
	require.NoError(t, p.Checkpoint(ctx, raw, nil))

	full, err := NewRebindManager(nil).Rebind(ctx, p, nil)
	assert.Error(t, err)
	require.NotNil(t, full)
	assert.Equal(t, 1, full.Size())
}
