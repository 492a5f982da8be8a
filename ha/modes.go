// Package ha 描述高可用子系统提供给持久化层的输入：节点状态、HA 模式、持久化模式与同步记录。
package ha

import (
	"strings"

	"rebind/errors"
)

// NodeState 管理节点当前的 HA 状态
type NodeState int

const (
	NodeInitializing NodeState = iota
	NodeStandby
	NodeHotStandby
	NodeHotBackup
	NodeMaster
	NodeFailed
	NodeTerminated
)

var nodeStateNames = []string{"initializing", "standby", "hot_standby", "hot_backup", "master", "failed", "terminated"}

func (s NodeState) String() string {
	if s < 0 || int(s) >= len(nodeStateNames) {
		return "unknown"
	}
	return nodeStateNames[s]
}

// IsMaster 是否为主节点
func (s NodeState) IsMaster() bool { return s == NodeMaster }

// IsStandby 是否处于任一备用状态
func (s NodeState) IsStandby() bool {
	return s == NodeStandby || s == NodeHotStandby || s == NodeHotBackup
}

func (s NodeState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *NodeState) UnmarshalText(text []byte) error {
	v, err := ParseNodeState(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseNodeState 解析节点状态（大小写不敏感）
func ParseNodeState(s string) (NodeState, error) {
	i, err := parseName("node state", s, nodeStateNames)
	return NodeState(i), err
}

// HighAvailabilityMode 节点启动时的 HA 模式
type HighAvailabilityMode int

const (
	HADisabled HighAvailabilityMode = iota
	HAAuto
	HAMaster
	HAStandby
	HAHotStandby
	HAHotBackup
)

var haModeNames = []string{"disabled", "auto", "master", "standby", "hot_standby", "hot_backup"}

func (m HighAvailabilityMode) String() string {
	if m < 0 || int(m) >= len(haModeNames) {
		return "unknown"
	}
	return haModeNames[m]
}

// IsStandby 以备用身份启动的模式
func (m HighAvailabilityMode) IsStandby() bool {
	return m == HAStandby || m == HAHotStandby || m == HAHotBackup
}

// IsShared 存储可能被多个节点写入
func (m HighAvailabilityMode) IsShared() bool { return m != HADisabled }

func (m HighAvailabilityMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *HighAvailabilityMode) UnmarshalText(text []byte) error {
	v, err := ParseHighAvailabilityMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func ParseHighAvailabilityMode(s string) (HighAvailabilityMode, error) {
	i, err := parseName("high availability mode", s, haModeNames)
	return HighAvailabilityMode(i), err
}

// PersistMode 启动时如何对待已有的持久化状态
type PersistMode int

const (
	PersistDisabled PersistMode = iota
	// PersistClean 丢弃已有状态
	PersistClean
	// PersistRebind 要求已有状态并从中重绑定
	PersistRebind
	// PersistAuto 有状态则重绑定，否则从空开始
	PersistAuto
)

var persistModeNames = []string{"disabled", "clean", "rebind", "auto"}

func (m PersistMode) String() string {
	if m < 0 || int(m) >= len(persistModeNames) {
		return "unknown"
	}
	return persistModeNames[m]
}

func (m PersistMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *PersistMode) UnmarshalText(text []byte) error {
	v, err := ParsePersistMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func ParsePersistMode(s string) (PersistMode, error) {
	i, err := parseName("persist mode", s, persistModeNames)
	return PersistMode(i), err
}

// MementoCopyMode 快照数据来源
type MementoCopyMode int

const (
	// CopyAuto 由调用方按节点状态解析
	CopyAuto MementoCopyMode = iota
	// CopyLocal 使用本节点存活的管理平面
	CopyLocal
	// CopyRemote 使用已持久化的状态
	CopyRemote
)

var copyModeNames = []string{"auto", "local", "remote"}

func (m MementoCopyMode) String() string {
	if m < 0 || int(m) >= len(copyModeNames) {
		return "unknown"
	}
	return copyModeNames[m]
}

func (m MementoCopyMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *MementoCopyMode) UnmarshalText(text []byte) error {
	v, err := ParseMementoCopyMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func ParseMementoCopyMode(s string) (MementoCopyMode, error) {
	i, err := parseName("memento copy mode", s, copyModeNames)
	return MementoCopyMode(i), err
}

// ResolveCopyMode 把 AUTO 解析为具体来源：主节点使用 LOCAL，其余使用 REMOTE
func ResolveCopyMode(mode MementoCopyMode, state NodeState) MementoCopyMode {
	if mode != CopyAuto {
		return mode
	}
	if state.IsMaster() {
		return CopyLocal
	}
	return CopyRemote
}

func parseName(what, s string, names []string) (int, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	for i, n := range names {
		if n == norm || strings.ReplaceAll(n, "_", "") == norm {
			return i, nil
		}
	}
	return 0, errors.Newf(errors.ErrCodeInvalidInput, "unknown %s %q", what, s)
}
