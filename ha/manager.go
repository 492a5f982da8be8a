package ha

import (
	"sync"
	"time"
)

// Manager HA 管理器中持久化层需要的部分
type Manager interface {
	NodeID() string
	NodeState() NodeState
	Mode() HighAvailabilityMode

	// LiveSyncRecord 本节点视角下的实时同步记录（LOCAL 来源）
	LiveSyncRecord() *SyncRecord

	// LoadedSyncRecord 最近一次从持久化存储加载的同步记录（REMOTE 来源），未加载时为 nil
	LoadedSyncRecord() *SyncRecord
}

// LocalManager 单进程内的 HA 管理器实现
//
// 不参与选主，节点状态由调用方设置；用于独立部署与测试。
type LocalManager struct {
	mu     sync.RWMutex
	nodeID string
	mode   HighAvailabilityMode
	state  NodeState
	live   *SyncRecord
	loaded *SyncRecord
	now    func() time.Time
}

// NewLocalManager 创建本地 HA 管理器；HA 关闭时节点直接成为主节点
func NewLocalManager(planeID, nodeID string, mode HighAvailabilityMode) *LocalManager {
	m := &LocalManager{
		nodeID: nodeID,
		mode:   mode,
		state:  NodeInitializing,
		live:   NewSyncRecord(planeID),
		now:    time.Now,
	}
	switch {
	case mode == HADisabled || mode == HAMaster:
		m.setStateLocked(NodeMaster)
	case mode == HAHotStandby:
		m.setStateLocked(NodeHotStandby)
	case mode == HAHotBackup:
		m.setStateLocked(NodeHotBackup)
	case mode.IsStandby():
		m.setStateLocked(NodeStandby)
	}
	return m
}

// WithClock 替换时钟
func (m *LocalManager) WithClock(now func() time.Time) *LocalManager {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

func (m *LocalManager) NodeID() string { return m.nodeID }

func (m *LocalManager) Mode() HighAvailabilityMode { return m.mode }

func (m *LocalManager) NodeState() NodeState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SetNodeState 设置节点状态并更新实时同步记录
func (m *LocalManager) SetNodeState(state NodeState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStateLocked(state)
}

func (m *LocalManager) setStateLocked(state NodeState) {
	m.state = state
	rec := m.live.Nodes[m.nodeID]
	rec.NodeID = m.nodeID
	rec.Status = state
	rec.LocalTimestamp = m.now()
	m.live.Nodes[m.nodeID] = rec
	switch {
	case state.IsMaster():
		m.live.MasterNodeID = m.nodeID
	case m.live.MasterNodeID == m.nodeID:
		m.live.MasterNodeID = ""
	}
}

// Heartbeat 刷新本节点时间戳
func (m *LocalManager) Heartbeat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.live.Nodes[m.nodeID]
	rec.LocalTimestamp = m.now()
	m.live.Nodes[m.nodeID] = rec
}

// ObservePeer 记录其他节点的状态
func (m *LocalManager) ObservePeer(peer NodeRecord) {
	if peer.NodeID == "" || peer.NodeID == m.nodeID {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	peer.RemoteTimestamp = m.now()
	m.live.Nodes[peer.NodeID] = peer
	if peer.Status.IsMaster() {
		m.live.MasterNodeID = peer.NodeID
	}
}

func (m *LocalManager) LiveSyncRecord() *SyncRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.live.Clone()
}

// SetLoadedSyncRecord 记录从持久化存储读取的同步记录
func (m *LocalManager) SetLoadedSyncRecord(rec *SyncRecord) {
	m.mu.Lock()
	m.loaded = rec.Clone()
	m.mu.Unlock()
}

func (m *LocalManager) LoadedSyncRecord() *SyncRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded.Clone()
}

var _ Manager = (*LocalManager)(nil)
