package persistence

import (
	"context"
	stdErrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"rebind/errors"
	"rebind/ha"
	"rebind/logging"
	"rebind/memento"
	"rebind/mgmt"
	"rebind/objectstore"
	"rebind/objectstore/memory"
	"rebind/paths"
	"rebind/serializer"
)

var errBrokenStore = stdErrors.New("disk full")

// memLocation 按容器共享内存存储；fail 非空时检查点失败
type memLocation struct {
	*mgmt.BasicLocation

	mu     sync.Mutex
	stores map[string]*memory.Store
	opens  int
	fail   error
}

func newMemLocation(id, spec string) *memLocation {
	return &memLocation{BasicLocation: mgmt.NewLocation(id, spec), stores: make(map[string]*memory.Store)}
}

func (l *memLocation) NewObjectStore(container string) (objectstore.ObjectStore, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opens++
	s, ok := l.stores[container]
	if !ok {
		s = memory.New(container)
		l.stores[container] = s
	}
	return &keepOpenStore{Store: s, fail: l.fail}, nil
}

func (l *memLocation) Opens() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opens
}

func (l *memLocation) Containers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for c := range l.stores {
		out = append(out, c)
	}
	return out
}

func (l *memLocation) Store(container string) *memory.Store {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stores[container]
}

type keepOpenStore struct {
	*memory.Store
	fail error
}

func (s *keepOpenStore) ReplaceAll(ctx context.Context, contents objectstore.Contents) error {
	if s.fail != nil {
		return s.fail
	}
	return s.Store.ReplaceAll(ctx, contents)
}

func (s *keepOpenStore) Close() error { return nil }

type staticResolver map[string]mgmt.Location

func (r staticResolver) Resolve(spec string) (mgmt.Location, error) {
	if l, ok := r[spec]; ok {
		return l, nil
	}
	return nil, errors.Newf(errors.ErrCodeNotFound, "unknown location %q", spec)
}

// tagSerializer 把对象序列化为 <id/>
type tagSerializer struct{}

func (tagSerializer) Format() string { return "tag-v1" }

func (tagSerializer) Serialize(m memento.Memento) (string, error) {
	return "<" + m.GetID() + "/>", nil
}

func (tagSerializer) Deserialize(t memento.ObjectType, payload string, _ memento.LookupContext) (memento.Memento, error) {
	id := strings.TrimSuffix(strings.TrimPrefix(payload, "<"), "/>")
	return &memento.BasicMemento{ID: id, Type: t}, nil
}

// brokenObject 生成 memento 总是失败
type brokenObject struct {
	id string
	t  memento.ObjectType
}

func (o brokenObject) ID() string                     { return o.id }
func (o brokenObject) ObjectType() memento.ObjectType { return o.t }

func (o brokenObject) Memento() (memento.Memento, error) {
	return nil, stdErrors.New("concurrent modification")
}

type recordingHandler struct {
	mu       sync.Mutex
	generate []string
}

func (h *recordingHandler) OnGenerateMementoFailed(t memento.ObjectType, id string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.generate = append(h.generate, t.String()+"/"+id)
}

func (h *recordingHandler) OnPersistMementoFailed(memento.ObjectType, string, error)    {}
func (h *recordingHandler) OnDeleteMementoFailed(memento.ObjectType, string, error)     {}
func (h *recordingHandler) OnPersistRawMementoFailed(memento.ObjectType, string, error) {}
func (h *recordingHandler) IsActive() bool                                              { return true }
func (h *recordingHandler) Stop()                                                       {}

type fixture struct {
	mgmt      *mgmt.LocalManagementContext
	localhost *memLocation
	resolver  staticResolver
}

var backupTime = time.Date(2026, 10, 19, 8, 30, 15, 42*int(time.Millisecond), time.UTC)

func newFixture(t *testing.T, mode ha.HighAvailabilityMode, opts ...func(*mgmt.LocalOptions)) *fixture {
	t.Helper()
	localhost := newMemLocation("localhost", "localhost")
	resolver := staticResolver{"localhost": localhost}
	o := mgmt.LocalOptions{
		NodeID:     "a1b2c3d4-node",
		PlaneID:    "plane-1",
		HAMode:     mode,
		Paths:      paths.NewResolver(t.TempDir()).WithClock(func() time.Time { return backupTime }),
		Serializer: serializer.NewJSONSerializer(),
		Resolver:   resolver,
		Logger:     logging.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &fixture{mgmt: mgmt.NewLocal(o), localhost: localhost, resolver: resolver}
}

func (f *fixture) manageEntity(t *testing.T, e mgmt.Entity) {
	t.Helper()
	if err := f.mgmt.EntityRegistry().Manage(e); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) manageLocation(t *testing.T, l mgmt.Location) {
	t.Helper()
	if err := f.mgmt.LocationRegistry().Manage(l); err != nil {
		t.Fatal(err)
	}
}
