package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebind/errors"
	"rebind/ha"
	"rebind/logging"
	"rebind/mgmt"
	"rebind/persister"
)

func TestBackupMode_String(t *testing.T) {
	assert.Equal(t, "promotion", BackupPromotion.String())
	assert.Equal(t, "demotion", BackupDemotion.String())
	assert.Equal(t, "custom", BackupCustom.String())

	m, err := ParseBackupMode(" Demotion ")
	require.NoError(t, err)
	assert.Equal(t, BackupDemotion, m)
	_, err = ParseBackupMode("sideways")
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))
}

func TestBackupMode_ResolveSource(t *testing.T) {
	cases := []struct {
		mode  BackupMode
		state ha.NodeState
		want  ha.MementoCopyMode
	}{
		{BackupPromotion, ha.NodeMaster, ha.CopyRemote},
		{BackupPromotion, ha.NodeStandby, ha.CopyRemote},
		{BackupDemotion, ha.NodeMaster, ha.CopyLocal},
		{BackupDemotion, ha.NodeStandby, ha.CopyLocal},
		{BackupCustom, ha.NodeMaster, ha.CopyLocal},
		{BackupCustom, ha.NodeHotStandby, ha.CopyRemote},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.mode.ResolveSource(ha.CopyAuto, c.state), "%s on %s", c.mode, c.state)
	}
	assert.Equal(t, ha.CopyLocal, BackupPromotion.ResolveSource(ha.CopyLocal, ha.NodeStandby))
}

func TestCreateBackup_WritesStateAndSyncRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ha.HAMaster)
	f.manageEntity(t, mgmt.NewEntity("E1", "web"))
	target := newMemLocation("L-backup", "s3-backups")
	f.resolver["s3-backups"] = target

	res := CreateBackup(ctx, f.mgmt, BackupDemotion, ha.CopyAuto, WithBackupLocation("s3-backups"))
	require.True(t, res.Success, "cause: %v", res.Cause)
	assert.False(t, res.Fallback)
	assert.Equal(t, ha.CopyLocal, res.Source)
	assert.Equal(t, "s3-backups", res.Location)
	assert.Equal(t, "backups/20261019-083015-042-demotion-a1b2c3d4", res.Path)
	assert.Equal(t, 1, res.Objects)
	assert.Zero(t, f.localhost.Opens())

	store := target.Store(res.Path)
	require.NotNil(t, store)
	assert.Equal(t, []string{"E1"}, listIDs(t, store, "entities"))
	rec, err := persister.NewSyncRecordPersister(store).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3d4-node", rec.MasterNodeID)
}

func TestCreateBackup_CustomContainer(t *testing.T) {
	f := newFixture(t, ha.HADisabled)
	res := CreateBackup(context.Background(), f.mgmt, BackupCustom, ha.CopyLocal, WithBackupContainer("manual"))
	require.True(t, res.Success)
	assert.Equal(t, "manual/20261019-083015-042-custom-a1b2c3d4", res.Path)
	assert.Equal(t, []string{res.Path}, f.localhost.Containers())
}

func TestCreateBackup_FallsBackToLocalhostOnce(t *testing.T) {
	ctx := context.Background()
	log := logging.NewCapturingLogger()
	f := newFixture(t, ha.HAMaster)
	f.manageEntity(t, mgmt.NewEntity("E1", "web"))
	broken := newMemLocation("L-broken", "remote-backups")
	broken.fail = errBrokenStore
	f.resolver["remote-backups"] = broken

	res := CreateBackup(ctx, f.mgmt, BackupCustom, ha.CopyAuto,
		WithBackupLocation("remote-backups"), WithBackupLogger(log))
	assert.True(t, res.Success)
	assert.True(t, res.Fallback)
	assert.Equal(t, "localhost", res.Location)
	assert.NoError(t, res.Cause)
	assert.Equal(t, 1, broken.Opens())
	assert.Equal(t, 1, f.localhost.Opens())
	assert.Equal(t, []string{"E1"}, listIDs(t, f.localhost.Store(res.Path), "entities"))
	assert.Len(t, log.EntriesAt(logging.WarnLevel, "回退到 localhost"), 1)
}

func TestCreateBackup_FallbackFailureIsSwallowed(t *testing.T) {
	log := logging.NewCapturingLogger()
	f := newFixture(t, ha.HAMaster)
	f.manageEntity(t, mgmt.NewEntity("E1", "web"))
	broken := newMemLocation("L-broken", "remote-backups")
	broken.fail = errBrokenStore
	f.resolver["remote-backups"] = broken
	f.localhost.fail = errBrokenStore

	res := CreateBackup(context.Background(), f.mgmt, BackupDemotion, ha.CopyAuto,
		WithBackupLocation("remote-backups"), WithBackupLogger(log))
	assert.False(t, res.Success)
	assert.True(t, res.Fallback)
	assert.Error(t, res.Cause)
	assert.Equal(t, 1, broken.Opens())
	assert.Equal(t, 1, f.localhost.Opens())
	assert.Len(t, log.EntriesAt(logging.WarnLevel, "回退到 localhost"), 2)
}

func TestCreateBackup_LocalhostFailureHasNoFallback(t *testing.T) {
	log := logging.NewCapturingLogger()
	f := newFixture(t, ha.HAMaster)
	f.localhost.fail = errBrokenStore

	res := CreateBackup(context.Background(), f.mgmt, BackupCustom, ha.CopyLocal, WithBackupLogger(log))
	assert.False(t, res.Success)
	assert.False(t, res.Fallback)
	assert.ErrorIs(t, res.Cause, errBrokenStore)
	assert.Equal(t, 1, f.localhost.Opens())
	assert.Len(t, log.EntriesAt(logging.WarnLevel, "备份失败"), 1)
}

func TestCreateBackup_UnresolvableLocationFallsBack(t *testing.T) {
	f := newFixture(t, ha.HAMaster)
	res := CreateBackup(context.Background(), f.mgmt, BackupCustom, ha.CopyLocal,
		WithBackupLocation("missing"), WithBackupLogger(logging.NewNoopLogger()))
	assert.True(t, res.Success)
	assert.True(t, res.Fallback)
	assert.Equal(t, 1, f.localhost.Opens())
}

func TestCreateBackup_PromotionWithoutPersistedState(t *testing.T) {
	log := logging.NewCapturingLogger()
	f := newFixture(t, ha.HAStandby)

	res := CreateBackup(context.Background(), f.mgmt, BackupPromotion, ha.CopyAuto, WithBackupLogger(log))
	assert.False(t, res.Success)
	assert.Equal(t, ha.CopyRemote, res.Source)
	assert.True(t, errors.IsNotFound(res.Cause))
	assert.Zero(t, f.localhost.Opens())
	assert.Len(t, log.EntriesAt(logging.WarnLevel, "跳过备份"), 1)
}

func TestCreateBackup_PromotionBacksUpPersistedState(t *testing.T) {
	f := newFixture(t, ha.HAStandby)
	f.manageEntity(t, mgmt.NewEntity("LIVE", "web"))
	seedPersistedState(t, f, "PERSISTED")

	res := CreateBackup(context.Background(), f.mgmt, BackupPromotion, ha.CopyAuto)
	require.True(t, res.Success, "cause: %v", res.Cause)
	assert.Equal(t, []string{"PERSISTED"}, listIDs(t, f.localhost.Store(res.Path), "entities"))
}
