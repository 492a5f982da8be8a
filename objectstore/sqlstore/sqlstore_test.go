package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "rebind/data/db"
	"rebind/data/db/basic"
	"rebind/errors"
	"rebind/ha"
	"rebind/objectstore"
	"rebind/objectstore/storetest"
)

// 测试辅助：创建临时 sqlite 数据库
func setupTestDB(t *testing.T) core.IDatabase {
	database, err := basic.New(core.DBConfig{
		Driver:       "sqlite",
		Database:     filepath.Join(t.TempDir(), "state.db"),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) objectstore.ObjectStore {
		s, err := New(context.Background(), setupTestDB(t), "", "state")
		require.NoError(t, err)
		return s
	})
}

func TestStore_ContainersAreIsolated(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	p := Provider{DB: database}

	a, err := p.NewObjectStore("a")
	require.NoError(t, err)
	b, err := p.NewObjectStore("b")
	require.NoError(t, err)
	require.NoError(t, a.PrepareForSharedUse(ha.PersistAuto, ha.HADisabled))
	require.NoError(t, b.PrepareForSharedUse(ha.PersistAuto, ha.HADisabled))

	require.NoError(t, a.Put(ctx, "entities", "E1", "a"))
	require.NoError(t, b.ReplaceAll(ctx, objectstore.Contents{"entities": {"E2": "b"}}))

	ids, err := a.List(ctx, "entities")
	require.NoError(t, err)
	assert.Equal(t, []string{"E1"}, ids)

	require.NoError(t, b.PrepareForSharedUse(ha.PersistClean, ha.HADisabled))
	ids, err = a.List(ctx, "entities")
	require.NoError(t, err)
	assert.Equal(t, []string{"E1"}, ids)
}

func TestStore_ReplaceAllIsTransactional(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	s, err := New(ctx, database, "objects", "state")
	require.NoError(t, err)
	require.NoError(t, s.PrepareForSharedUse(ha.PersistAuto, ha.HADisabled))
	require.NoError(t, s.ReplaceAll(ctx, objectstore.Contents{"entities": {"E1": "v1"}}))

	// 触发器拒绝 id 为 BAD 的行，使事务中途失败
	_, err = database.Exec(ctx, `CREATE TRIGGER reject_bad BEFORE INSERT ON objects WHEN NEW.id = 'BAD' BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)

	err = s.ReplaceAll(ctx, objectstore.Contents{"entities": {"E2": "v2", "BAD": "x"}})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDatabase))

	ids, err := s.List(ctx, "entities")
	require.NoError(t, err)
	assert.Equal(t, []string{"E1"}, ids)
}

func TestNew_RejectsBadTable(t *testing.T) {
	_, err := New(context.Background(), setupTestDB(t), "objects; DROP TABLE x", "c")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "open.db"), "", "c")
	require.NoError(t, err)
	require.NoError(t, s.PrepareForSharedUse(ha.PersistAuto, ha.HADisabled))
	require.NoError(t, s.Put(ctx, "feeds", "F1", "f"))
	assert.Equal(t, "sql:rebind_objects/c", s.SummaryName())
	require.NoError(t, s.Close())
}
