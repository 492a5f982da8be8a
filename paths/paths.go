// Package paths 解析服务器本地路径：持久化目录与备份位置命名
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// 默认值
const (
	DefaultBaseDir         = "~/.rebind"
	DefaultStateContainer  = "state"
	DefaultBackupContainer = "backups"
)

var userHomeDir = os.UserHomeDir

// Resolver 服务器路径解析器
type Resolver struct {
	baseDir string
	now     func() time.Time
}

// NewResolver 创建解析器；baseDir 为空时使用 DefaultBaseDir，支持 ~ 前缀
func NewResolver(baseDir string) *Resolver {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	return &Resolver{baseDir: expandHome(baseDir), now: time.Now}
}

// WithClock 替换时钟
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// BaseDir 根目录
func (r *Resolver) BaseDir() string { return r.baseDir }

// PersistenceDir 本地持久化根目录，本地位置在其下按容器分目录
func (r *Resolver) PersistenceDir() string {
	return filepath.Join(r.baseDir, "persisted-state")
}

// ContainerDir 容器的本地目录
func (r *Resolver) ContainerDir(container string) string {
	return filepath.Join(r.PersistenceDir(), container)
}

// Backup 为一次备份生成路径解析器
func (r *Resolver) Backup(container, mode, nodeID string) *BackupPathResolver {
	if container == "" {
		container = DefaultBackupContainer
	}
	return &BackupPathResolver{Container: container, Mode: mode, NodeID: nodeID, Time: r.now()}
}

// BackupPathResolver 备份容器命名
//
// 形如 <container>/<yyyyMMdd-HHmmss-SSS>-<mode>-<节点短 id>，同一节点同一毫秒内的两次备份会冲突。
type BackupPathResolver struct {
	Container string
	Mode      string
	NodeID    string
	Time      time.Time
}

// Resolve 备份容器名
func (b *BackupPathResolver) Resolve() string {
	return b.Container + "/" + b.Name()
}

// Name 不含父容器的备份名
func (b *BackupPathResolver) Name() string {
	t := b.Time.UTC()
	stamp := fmt.Sprintf("%s-%03d", t.Format("20060102-150405"), t.Nanosecond()/int(time.Millisecond))
	parts := []string{stamp}
	if b.Mode != "" {
		parts = append(parts, strings.ToLower(b.Mode))
	}
	if short := ShortNodeID(b.NodeID); short != "" {
		parts = append(parts, short)
	}
	return strings.Join(parts, "-")
}

// ShortNodeID 节点 id 的前 8 个字符
func ShortNodeID(nodeID string) string {
	if len(nodeID) > 8 {
		return nodeID[:8]
	}
	return nodeID
}

func expandHome(dir string) string {
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir
	}
	home, err := userHomeDir()
	if err != nil || home == "" {
		return dir
	}
	return filepath.Join(home, strings.TrimPrefix(dir, "~"))
}
