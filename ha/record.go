package ha

import (
	"sort"
	"time"
)

// NodeRecord 同步记录中单个节点的状态
type NodeRecord struct {
	NodeID          string    `json:"nodeId"`
	Status          NodeState `json:"status"`
	Priority        int       `json:"priority,omitempty"`
	LocalTimestamp  time.Time `json:"localTimestamp"`
	RemoteTimestamp time.Time `json:"remoteTimestamp,omitempty"`
}

// SyncRecord 管理平面同步记录：谁是主节点以及各节点心跳
type SyncRecord struct {
	PlaneID      string                `json:"planeId,omitempty"`
	MasterNodeID string                `json:"masterNodeId,omitempty"`
	Nodes        map[string]NodeRecord `json:"nodes,omitempty"`
}

// NewSyncRecord 创建空记录
func NewSyncRecord(planeID string) *SyncRecord {
	return &SyncRecord{PlaneID: planeID, Nodes: make(map[string]NodeRecord)}
}

// Clone 深拷贝
func (r *SyncRecord) Clone() *SyncRecord {
	if r == nil {
		return nil
	}
	out := &SyncRecord{PlaneID: r.PlaneID, MasterNodeID: r.MasterNodeID, Nodes: make(map[string]NodeRecord, len(r.Nodes))}
	for id, n := range r.Nodes {
		out.Nodes[id] = n
	}
	return out
}

// NodeIDs 节点 id，已排序
func (r *SyncRecord) NodeIDs() []string {
	ids := make([]string, 0, len(r.Nodes))
	for id := range r.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsEmpty 既无主节点也无节点记录
func (r *SyncRecord) IsEmpty() bool {
	return r == nil || (r.MasterNodeID == "" && len(r.Nodes) == 0)
}
