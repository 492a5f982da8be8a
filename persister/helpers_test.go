package persister

import (
	"context"
	stdErrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rebind/ha"
	"rebind/memento"
	"rebind/objectstore"
	"rebind/objectstore/memory"
	"rebind/serializer"
)

// faultyStore 在内存存储上注入故障
type faultyStore struct {
	*memory.Store

	mu          sync.Mutex
	failPut     map[string]bool
	failGet     map[string]bool
	failReplace bool
	block       chan struct{}
}

func newFaultyStore(t *testing.T) *faultyStore {
	s := &faultyStore{Store: memory.New(t.Name()), failPut: map[string]bool{}, failGet: map[string]bool{}}
	require.NoError(t, s.PrepareForSharedUse(ha.PersistAuto, ha.HADisabled))
	return s
}

func (s *faultyStore) Put(ctx context.Context, subpath, id, payload string) error {
	s.mu.Lock()
	fail, block := s.failPut[id], s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	if fail {
		return stdErrors.New("disk full")
	}
	return s.Store.Put(ctx, subpath, id, payload)
}

func (s *faultyStore) Get(ctx context.Context, subpath, id string) (string, error) {
	s.mu.Lock()
	fail := s.failGet[id]
	s.mu.Unlock()
	if fail {
		return "", stdErrors.New("read error")
	}
	return s.Store.Get(ctx, subpath, id)
}

func (s *faultyStore) ReplaceAll(ctx context.Context, contents objectstore.Contents) error {
	s.mu.Lock()
	fail := s.failReplace
	s.mu.Unlock()
	if fail {
		return stdErrors.New("rename failed")
	}
	return s.Store.ReplaceAll(ctx, contents)
}

// recordingHandler 记录写路径失败
type recordingHandler struct {
	mu       sync.Mutex
	generate []string
	persist  []string
	deletes  []string
	raw      int
}

func (h *recordingHandler) OnGenerateMementoFailed(t memento.ObjectType, id string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.generate = append(h.generate, id)
}

func (h *recordingHandler) OnPersistMementoFailed(t memento.ObjectType, id string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.persist = append(h.persist, id)
}

func (h *recordingHandler) OnDeleteMementoFailed(t memento.ObjectType, id string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deletes = append(h.deletes, id)
}

func (h *recordingHandler) OnPersistRawMementoFailed(t memento.ObjectType, id string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.raw++
}

func (h *recordingHandler) IsActive() bool { return true }
func (h *recordingHandler) Stop()          {}

func entity(id string, fields map[string]any) *memento.BasicMemento {
	return &memento.BasicMemento{ID: id, Type: memento.Entity, Kind: "app", Fields: fields}
}

func location(id string) *memento.BasicMemento {
	return &memento.BasicMemento{ID: id, Type: memento.Location, Kind: "localhost"}
}

// rawOf 用 JSON 序列化构造原始快照
func rawOf(t *testing.T, ms ...memento.Memento) *memento.RawSnapshot {
	s := serializer.NewJSONSerializer()
	b := memento.NewRawSnapshotBuilder().Format(s.Format())
	for _, m := range ms {
		payload, err := s.Serialize(m)
		require.NoError(t, err)
		b.Put(m.GetType(), m.GetID(), payload)
	}
	raw, err := b.Build()
	require.NoError(t, err)
	return raw
}

func newTestPersister(t *testing.T, store objectstore.ObjectStore, handler memento.PersistenceExceptionHandler) *StorePersister {
	p := NewStorePersister(store, Options{
		DeltaPeriod:  time.Hour,
		WriteTimeout: time.Second,
		Handler:      handler,
	})
	t.Cleanup(func() { _ = p.Stop(context.Background(), false) })
	return p
}

func deltaOf(t *testing.T, adds []memento.Memento, removes map[memento.ObjectType][]string) *memento.MutableDelta {
	d := memento.NewMutableDelta()
	require.NoError(t, d.Add(adds...))
	for typ, ids := range removes {
		require.NoError(t, d.Remove(typ, ids...))
	}
	return d
}
