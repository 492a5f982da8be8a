// Package storetest 对象存储后端的通用行为测试
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebind/errors"
	"rebind/ha"
	"rebind/objectstore"
)

// Factory 每次调用返回一个全新的、未准备的存储
type Factory func(t *testing.T) objectstore.ObjectStore

type nodeContext string

func (n nodeContext) NodeID() string { return string(n) }

func prepared(t *testing.T, f Factory) objectstore.ObjectStore {
	s := f(t)
	s.InjectManagementContext(nodeContext("node-a"))
	require.NoError(t, s.PrepareForSharedUse(ha.PersistAuto, ha.HADisabled))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Run 执行全部通用行为测试
func Run(t *testing.T, f Factory) {
	t.Run("WriteBeforePrepareFails", func(t *testing.T) { testWriteBeforePrepare(t, f) })
	t.Run("PutGetListDelete", func(t *testing.T) { testPutGetListDelete(t, f) })
	t.Run("DeleteIsIdempotent", func(t *testing.T) { testDeleteIdempotent(t, f) })
	t.Run("ReplaceAll", func(t *testing.T) { testReplaceAll(t, f) })
	t.Run("ReplaceAllEmpty", func(t *testing.T) { testReplaceAllEmpty(t, f) })
	t.Run("AwkwardIDs", func(t *testing.T) { testAwkwardIDs(t, f) })
	t.Run("PrepareCleanWipes", func(t *testing.T) { testPrepareClean(t, f) })
	t.Run("DeleteCompletely", func(t *testing.T) { testDeleteCompletely(t, f) })
	t.Run("SummaryName", func(t *testing.T) {
		assert.NotEmpty(t, f(t).SummaryName())
	})
}

func testWriteBeforePrepare(t *testing.T, f Factory) {
	s := f(t)
	defer s.Close()
	err := s.Put(context.Background(), "entities", "E1", "x")
	require.Error(t, err)
	assert.True(t, errors.IsUnsupported(err))
}

func testPutGetListDelete(t *testing.T, f Factory) {
	ctx := context.Background()
	s := prepared(t, f)

	ids, err := s.List(ctx, "entities")
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, s.Put(ctx, "entities", "E2", "two"))
	require.NoError(t, s.Put(ctx, "entities", "E1", "one"))
	require.NoError(t, s.Put(ctx, "locations", "L1", "loc"))
	require.NoError(t, s.Put(ctx, "entities", "E1", "one-v2"))

	ids, err = s.List(ctx, "entities")
	require.NoError(t, err)
	assert.Equal(t, []string{"E1", "E2"}, ids)

	got, err := s.Get(ctx, "entities", "E1")
	require.NoError(t, err)
	assert.Equal(t, "one-v2", got)

	_, err = s.Get(ctx, "entities", "missing")
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, s.Delete(ctx, "entities", "E1"))
	_, err = s.Get(ctx, "entities", "E1")
	assert.True(t, errors.IsNotFound(err))

	got, err = s.Get(ctx, "locations", "L1")
	require.NoError(t, err)
	assert.Equal(t, "loc", got)
}

func testDeleteIdempotent(t *testing.T, f Factory) {
	ctx := context.Background()
	s := prepared(t, f)
	require.NoError(t, s.Put(ctx, "feeds", "F1", "f"))
	require.NoError(t, s.Delete(ctx, "feeds", "F1"))
	require.NoError(t, s.Delete(ctx, "feeds", "F1"))
	require.NoError(t, s.Delete(ctx, "nothing-here", "X"))
}

func testReplaceAll(t *testing.T, f Factory) {
	ctx := context.Background()
	s := prepared(t, f)
	require.NoError(t, s.Put(ctx, "entities", "OLD", "old"))
	require.NoError(t, s.Put(ctx, "policies", "P-OLD", "old"))

	require.NoError(t, s.ReplaceAll(ctx, objectstore.Contents{
		"entities":  {"E1": "<E1/>"},
		"locations": {"L1": "<L1/>"},
	}))

	ids, err := s.List(ctx, "entities")
	require.NoError(t, err)
	assert.Equal(t, []string{"E1"}, ids)

	ids, err = s.List(ctx, "policies")
	require.NoError(t, err)
	assert.Empty(t, ids)

	got, err := s.Get(ctx, "locations", "L1")
	require.NoError(t, err)
	assert.Equal(t, "<L1/>", got)

	// 之后的单对象写入仍然可用
	require.NoError(t, s.Put(ctx, "entities", "E2", "two"))
	ids, err = s.List(ctx, "entities")
	require.NoError(t, err)
	assert.Equal(t, []string{"E1", "E2"}, ids)
}

func testReplaceAllEmpty(t *testing.T, f Factory) {
	ctx := context.Background()
	s := prepared(t, f)
	require.NoError(t, s.Put(ctx, "entities", "E1", "x"))
	require.NoError(t, s.ReplaceAll(ctx, objectstore.Contents{}))

	for _, sub := range []string{"entities", "locations", "catalog"} {
		ids, err := s.List(ctx, sub)
		require.NoError(t, err)
		assert.Empty(t, ids, sub)
	}
}

func testAwkwardIDs(t *testing.T, f Factory) {
	ctx := context.Background()
	s := prepared(t, f)
	ids := []string{"a/b", "with space", "dots.and.more", "ünïcode", "..", "pct%2F"}
	for _, id := range ids {
		require.NoError(t, s.Put(ctx, "catalog", id, "payload:"+id), id)
	}
	listed, err := s.List(ctx, "catalog")
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, listed)
	for _, id := range ids {
		got, err := s.Get(ctx, "catalog", id)
		require.NoError(t, err, id)
		assert.Equal(t, "payload:"+id, got)
	}
}

func testPrepareClean(t *testing.T, f Factory) {
	ctx := context.Background()
	s := prepared(t, f)
	require.NoError(t, s.Put(ctx, "entities", "E1", "x"))

	// 以备用身份启动时不清空
	require.NoError(t, s.PrepareForSharedUse(ha.PersistClean, ha.HAStandby))
	ids, err := s.List(ctx, "entities")
	require.NoError(t, err)
	assert.Equal(t, []string{"E1"}, ids)

	require.NoError(t, s.PrepareForSharedUse(ha.PersistClean, ha.HADisabled))
	ids, err = s.List(ctx, "entities")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func testDeleteCompletely(t *testing.T, f Factory) {
	ctx := context.Background()
	s := prepared(t, f)
	require.NoError(t, s.Put(ctx, "entities", "E1", "x"))
	require.NoError(t, s.DeleteCompletely(ctx))
	ids, err := s.List(ctx, "entities")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
