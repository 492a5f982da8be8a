package persistence

import (
	"context"
	"strings"
	"time"

	"rebind/errors"
	"rebind/ha"
	"rebind/logging"
	"rebind/memento"
	"rebind/mgmt"
	"rebind/stores"
)

// BackupMode 触发备份的场景
type BackupMode int

const (
	// BackupPromotion 备用节点成为主节点
	BackupPromotion BackupMode = iota
	// BackupDemotion 主节点让出主身份
	BackupDemotion
	// BackupCustom 手动触发
	BackupCustom
)

var backupModeNames = []string{"promotion", "demotion", "custom"}

// String 小写名称，作为备份路径的一部分
func (m BackupMode) String() string {
	if m < 0 || int(m) >= len(backupModeNames) {
		return "unknown"
	}
	return backupModeNames[m]
}

// ParseBackupMode 不区分大小写
func ParseBackupMode(s string) (BackupMode, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for i, name := range backupModeNames {
		if name == norm {
			return BackupMode(i), nil
		}
	}
	return 0, errors.Newf(errors.ErrCodeInvalidInput, "unknown backup mode %q", s)
}

// ResolveSource 把 AUTO 解析为该场景的数据来源
//
// PROMOTION 使用 REMOTE：在本节点开始写入前备份已持久化的状态。
// DEMOTION 使用 LOCAL：在失去主身份前备份本节点的存活视图。
// CUSTOM 与 WriteMementoFrom 一致，主节点 LOCAL，其余 REMOTE。
func (m BackupMode) ResolveSource(source ha.MementoCopyMode, state ha.NodeState) ha.MementoCopyMode {
	if source != ha.CopyAuto {
		return source
	}
	switch m {
	case BackupPromotion:
		return ha.CopyRemote
	case BackupDemotion:
		return ha.CopyLocal
	}
	return ha.ResolveCopyMode(source, state)
}

// BackupOptions 备份目标
type BackupOptions struct {
	// Location 备份位置规格，空表示 localhost
	Location string
	// Container 备份父容器，空表示 backups
	Container string
	Logger    logging.ILogger
}

// BackupOption 备份选项
type BackupOption func(*BackupOptions)

// WithBackupLocation 指定备份位置
func WithBackupLocation(spec string) BackupOption {
	return func(o *BackupOptions) { o.Location = spec }
}

// WithBackupContainer 指定备份父容器
func WithBackupContainer(container string) BackupOption {
	return func(o *BackupOptions) { o.Container = container }
}

// WithBackupLogger 替换备份日志
func WithBackupLogger(l logging.ILogger) BackupOption {
	return func(o *BackupOptions) { o.Logger = l }
}

// BackupResult 备份结果
//
// 备份失败不能阻塞触发它的 HA 切换，因此 CreateBackup 从不返回错误，失败原因放在 Cause 中。
type BackupResult struct {
	Mode     BackupMode
	Source   ha.MementoCopyMode
	Success  bool
	Fallback bool
	// Location 实际写入的位置规格
	Location string
	// Path 备份容器
	Path    string
	Objects int
	Cause   error
}

// CreateBackup 创建备份
//
// 写入配置的位置失败且该位置不是 localhost 时，改写 localhost 一次；
// 仍然失败时记录日志并在结果中返回原因。
func CreateBackup(ctx context.Context, m mgmt.ManagementContext, mode BackupMode, source ha.MementoCopyMode, opts ...BackupOption) BackupResult {
	var o BackupOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.Location == "" {
		o.Location = stores.LocalhostSpec
	}
	if o.Logger == nil {
		o.Logger = logger()
	}

	state := ha.NodeInitializing
	if manager := m.HAManager(); manager != nil {
		state = manager.NodeState()
	}
	source = mode.ResolveSource(source, state)
	path := m.Paths().Backup(o.Container, mode.String(), m.NodeID()).Resolve()
	result := BackupResult{Mode: mode, Source: source, Location: o.Location, Path: path}
	blog := o.Logger.WithFields(
		logging.String("mode", mode.String()),
		logging.String("source", source.String()),
		logging.String("path", path))

	raw, err := NewStateMemento(ctx, m, source)
	if err != nil {
		result.Cause = err
		blog.Warn(ctx, "[Backup] 无法生成状态快照，跳过备份", logging.Error(err))
		return result
	}
	result.Objects = raw.Size()
	rec, err := NewManagerMemento(ctx, m, source)
	if err != nil {
		blog.Debug(ctx, "[Backup] 同步记录不可用，仅备份状态", logging.Error(err))
		rec = nil
	}

	start := time.Now()
	localhost, err := writeBackup(ctx, m, o.Location, path, raw, rec)
	if err == nil {
		result.Success = true
		blog.Info(ctx, "[Backup] 备份完成",
			logging.String("location", o.Location),
			logging.Int("objects", result.Objects),
			logging.Duration("elapsed", time.Since(start)))
		return result
	}
	if localhost {
		result.Cause = err
		blog.Warn(ctx, "[Backup] 备份失败", logging.String("location", o.Location), logging.Error(err))
		return result
	}

	blog.Warn(ctx, "[Backup] 写入备份位置失败，回退到 localhost",
		logging.String("location", o.Location), logging.Error(err))
	result.Fallback = true
	result.Location = stores.LocalhostSpec
	if _, ferr := writeBackup(ctx, m, stores.LocalhostSpec, path, raw, rec); ferr != nil {
		result.Cause = ferr
		blog.Warn(ctx, "[Backup] 回退到 localhost 的备份也失败",
			logging.String("original", err.Error()), logging.Error(ferr))
		return result
	}
	result.Success = true
	blog.Info(ctx, "[Backup] 已备份到 localhost",
		logging.Int("objects", result.Objects), logging.Duration("elapsed", time.Since(start)))
	return result
}

// writeBackup 返回目标是否为 localhost；解析失败时按规格判断
func writeBackup(ctx context.Context, m mgmt.ManagementContext, spec, path string, raw *memento.RawSnapshot, rec *ha.SyncRecord) (bool, error) {
	store, loc, err := openStore(ctx, m, spec, path, ha.PersistAuto, ha.HADisabled)
	localhost := spec == stores.LocalhostSpec || stores.IsLocalhost(loc)
	if err != nil {
		return localhost, err
	}
	defer func() { _ = store.Close() }()

	if err := WriteMemento(ctx, m, raw, store); err != nil {
		return localhost, err
	}
	if rec != nil {
		if err := WriteManagerMemento(ctx, m, rec, store); err != nil {
			return localhost, err
		}
	}
	return localhost, nil
}
