package natskv

import (
	"context"
	stdErrors "errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebind/errors"
	"rebind/ha"
	"rebind/objectstore"
	"rebind/objectstore/storetest"
)

// fakeEntry 只实现 Value，其余方法由嵌入的接口提供
type fakeEntry struct {
	nats.KeyValueEntry
	value []byte
}

func (e fakeEntry) Value() []byte { return e.value }

// fakeBucket 内存中的键值桶；failPutPrefix 非空时匹配前缀的写入失败
type fakeBucket struct {
	mu            sync.Mutex
	data          map[string][]byte
	failPutPrefix string
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{data: make(map[string][]byte)}
}

func (f *fakeBucket) Get(key string) (nats.KeyValueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, nats.ErrKeyNotFound
	}
	return fakeEntry{value: v}, nil
}

func (f *fakeBucket) Put(key string, value []byte) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPutPrefix != "" && strings.HasPrefix(key, f.failPutPrefix) {
		return 0, stdErrors.New("nats: timeout")
	}
	f.data[key] = append([]byte(nil), value...)
	return uint64(len(f.data)), nil
}

func (f *fakeBucket) Delete(key string, _ ...nats.DeleteOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeBucket) Keys(_ ...nats.WatchOpt) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.data) == 0 {
		return nil, nats.ErrNoKeysFound
	}
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) objectstore.ObjectStore {
		return newWithBucket(newFakeBucket(), DefaultBucket, "state")
	})
}

func TestStore_KeysAreValidNatsSubjects(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBucket()
	s := newWithBucket(fake, DefaultBucket, "plane/1")
	require.NoError(t, s.PrepareForSharedUse(ha.PersistAuto, ha.HADisabled))
	require.NoError(t, s.Put(ctx, "entities", "a b/c.d", "x"))

	for k := range fake.data {
		for _, r := range k {
			ok := r == '-' || r == '_' || r == '.' || r == '=' || r == '/' ||
				(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			assert.True(t, ok, "key %q has invalid rune %q", k, r)
		}
		assert.False(t, strings.HasPrefix(k, ".") || strings.HasSuffix(k, "."))
	}
	assert.Equal(t, "nats:rebind/plane/1", s.SummaryName())
}

func TestStore_ReplaceAllPurgesPreviousGeneration(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBucket()
	s := newWithBucket(fake, DefaultBucket, "state")
	require.NoError(t, s.PrepareForSharedUse(ha.PersistAuto, ha.HADisabled))
	require.NoError(t, s.Put(ctx, "entities", "E1", "v1"))
	require.NoError(t, s.Put(ctx, "entities", "E2", "v1"))

	require.NoError(t, s.ReplaceAll(ctx, objectstore.Contents{"entities": {"E3": "v3"}}))
	// 指针键加一个对象键
	assert.Len(t, fake.data, 2)

	got, err := s.Get(ctx, "entities", "E3")
	require.NoError(t, err)
	assert.Equal(t, "v3", got)
}

func TestStore_FailedReplaceKeepsPriorGeneration(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBucket()
	s := newWithBucket(fake, DefaultBucket, "state")
	require.NoError(t, s.PrepareForSharedUse(ha.PersistAuto, ha.HADisabled))
	require.NoError(t, s.Put(ctx, "entities", "E1", "v1"))

	fake.failPutPrefix = s.pointerKey()
	err := s.ReplaceAll(ctx, objectstore.Contents{"entities": {"E2": "v2"}})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeNetwork))
	fake.failPutPrefix = ""

	ids, err := s.List(ctx, "entities")
	require.NoError(t, err)
	assert.Equal(t, []string{"E1"}, ids)
	// 新一代已写入的键被回收
	assert.Len(t, fake.data, 2)
}

func TestStore_ContainersShareBucket(t *testing.T) {
	ctx := context.Background()
	fake := newFakeBucket()
	a := newWithBucket(fake, DefaultBucket, "a")
	b := newWithBucket(fake, DefaultBucket, "ab")
	require.NoError(t, a.PrepareForSharedUse(ha.PersistAuto, ha.HADisabled))
	require.NoError(t, b.PrepareForSharedUse(ha.PersistAuto, ha.HADisabled))
	require.NoError(t, a.Put(ctx, "entities", "E1", "a"))
	require.NoError(t, b.Put(ctx, "entities", "E1", "b"))

	require.NoError(t, a.DeleteCompletely(ctx))
	got, err := b.Get(ctx, "entities", "E1")
	require.NoError(t, err)
	assert.Equal(t, "b", got)

	_, err = a.Get(ctx, "entities", "E1")
	assert.True(t, errors.IsNotFound(err))
}

func TestNew_RequiresConnection(t *testing.T) {
	_, err := New(Config{}, "state")
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))
	_, err = New(Config{URL: "nats://localhost:4222"}, "")
	assert.Error(t, err)
}
