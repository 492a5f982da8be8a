package persister

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"rebind/errors"
	"rebind/ha"
	"rebind/logging"
	"rebind/objectstore"
)

const (
	masterID   = "master"
	nodePrefix = "nodes/"
)

// SyncRecordPersister 在 PlaneSubpath 下持久化管理平面同步记录
//
// master 对象保存平面 id 与主节点 id，每个节点一个 nodes/<id> 对象。
type SyncRecordPersister struct {
	store objectstore.ObjectStore
	log   logging.ILogger
	mu    sync.Mutex
}

type masterRecord struct {
	PlaneID      string `json:"planeId,omitempty"`
	MasterNodeID string `json:"masterNodeId,omitempty"`
}

// NewSyncRecordPersister 创建同步记录持久化器
func NewSyncRecordPersister(store objectstore.ObjectStore) *SyncRecordPersister {
	return &SyncRecordPersister{store: store, log: logging.ComponentLogger("persister.syncrecord")}
}

// Checkpoint 写入完整记录，并删除记录中已不存在的节点
func (p *SyncRecordPersister) Checkpoint(ctx context.Context, rec *ha.SyncRecord) error {
	if rec == nil {
		return errors.NewError(errors.ErrCodeInvalidInput, "sync record is nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, err := p.store.List(ctx, PlaneSubpath)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeStorage, "list sync record")
	}

	master, err := json.Marshal(masterRecord{PlaneID: rec.PlaneID, MasterNodeID: rec.MasterNodeID})
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeSerialization, "marshal sync record")
	}
	if err := p.store.Put(ctx, PlaneSubpath, masterID, string(master)); err != nil {
		return errors.WrapError(err, errors.ErrCodeStorage, "write sync record master")
	}

	keep := make(map[string]struct{}, len(rec.Nodes))
	for _, nodeID := range rec.NodeIDs() {
		data, err := json.Marshal(rec.Nodes[nodeID])
		if err != nil {
			return errors.WrapError(err, errors.ErrCodeSerialization, "marshal node "+nodeID)
		}
		id := nodePrefix + nodeID
		if err := p.store.Put(ctx, PlaneSubpath, id, string(data)); err != nil {
			return errors.WrapError(err, errors.ErrCodeStorage, "write node "+nodeID)
		}
		keep[id] = struct{}{}
	}
	for _, id := range existing {
		if _, ok := keep[id]; ok || !strings.HasPrefix(id, nodePrefix) {
			continue
		}
		if err := p.store.Delete(ctx, PlaneSubpath, id); err != nil {
			return errors.WrapError(err, errors.ErrCodeStorage, "delete stale node "+id)
		}
	}
	p.log.Debug(ctx, "[SyncRecordPersister] 同步记录已写入",
		logging.String("master", rec.MasterNodeID), logging.Int("nodes", len(rec.Nodes)))
	return nil
}

// Load 读取记录；存储中没有记录时返回空记录。损坏的节点对象被跳过。
func (p *SyncRecordPersister) Load(ctx context.Context) (*ha.SyncRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids, err := p.store.List(ctx, PlaneSubpath)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeStorage, "list sync record")
	}
	rec := ha.NewSyncRecord("")
	for _, id := range ids {
		payload, err := p.store.Get(ctx, PlaneSubpath, id)
		if errors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeStorage, "read sync record "+id)
		}
		switch {
		case id == masterID:
			var m masterRecord
			if err := json.Unmarshal([]byte(payload), &m); err != nil {
				return nil, errors.WrapError(err, errors.ErrCodeSerialization, "unmarshal sync record master")
			}
			rec.PlaneID, rec.MasterNodeID = m.PlaneID, m.MasterNodeID
		case strings.HasPrefix(id, nodePrefix):
			var n ha.NodeRecord
			if err := json.Unmarshal([]byte(payload), &n); err != nil {
				p.log.Warn(ctx, "[SyncRecordPersister] 跳过无法解析的节点记录", logging.String("id", id), logging.Error(err))
				continue
			}
			rec.Nodes[strings.TrimPrefix(id, nodePrefix)] = n
		}
	}
	return rec, nil
}
