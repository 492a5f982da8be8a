// Package objectstore 定义持久化器依赖的对象存储边界
//
// 存储按子路径（每个对象类型一个）组织，每个对象是一个 id 对应一个不透明字符串。
// 具体布局（文件、表、哈希、KV 键）由各后端决定。
package objectstore

import (
	"context"

	"rebind/errors"
	"rebind/ha"
)

// ManagementContext 存储需要从管理上下文获取的信息
type ManagementContext interface {
	NodeID() string
}

// Contents 全量内容：子路径 -> id -> 序列化内容
type Contents map[string]map[string]string

// ObjectStore 对象存储接口
type ObjectStore interface {
	// InjectManagementContext 绑定管理上下文
	InjectManagementContext(mgmt ManagementContext)

	// PrepareForSharedUse 按持久化模式与 HA 模式准备存储；写操作前必须调用
	//
	// PersistClean 且不是以备用身份启动时清空存储；HA 开启时标记为多节点共享。
	PrepareForSharedUse(persistMode ha.PersistMode, haMode ha.HighAvailabilityMode) error

	// SummaryName 便于日志展示的存储描述
	SummaryName() string

	// List 子路径下的全部 id，已排序；子路径不存在时返回空
	List(ctx context.Context, subpath string) ([]string, error)

	// Get 读取单个对象，不存在时返回 ErrNotFound
	Get(ctx context.Context, subpath, id string) (string, error)

	// Put 写入单个对象（覆盖）
	Put(ctx context.Context, subpath, id, payload string) error

	// Delete 删除单个对象，不存在时返回 nil
	Delete(ctx context.Context, subpath, id string) error

	// ReplaceAll 原子地用 contents 替换全部内容：读者只能看到旧内容或新内容，
	// 失败时旧内容保持不变
	ReplaceAll(ctx context.Context, contents Contents) error

	// DeleteCompletely 删除存储本身及其全部内容
	DeleteCompletely(ctx context.Context) error

	Close() error
}

// Provider 具备持久化能力的位置
type Provider interface {
	NewObjectStore(container string) (ObjectStore, error)
}

// 错误定义
var (
	ErrNotFound    = errors.NewError(errors.ErrCodeNotFound, "object not found")
	ErrNotPrepared = errors.NewError(errors.ErrCodeUnsupported, "object store not prepared for shared use")
	ErrClosed      = errors.NewError(errors.ErrCodeStorage, "object store closed")
)

// NotFound 构造带位置信息的 ErrNotFound
func NotFound(subpath, id string) error {
	return errors.WrapError(ErrNotFound, errors.ErrCodeNotFound, subpath+"/"+id)
}

// ValidateName 子路径与 id 不能为空
func ValidateName(subpath, id string) error {
	if subpath == "" {
		return errors.NewError(errors.ErrCodeInvalidInput, "empty subpath")
	}
	if id == "" {
		return errors.Newf(errors.ErrCodeInvalidInput, "empty id in %s", subpath)
	}
	return nil
}

// Clone 深拷贝全量内容
func (c Contents) Clone() Contents {
	out := make(Contents, len(c))
	for sub, objs := range c {
		m := make(map[string]string, len(objs))
		for id, p := range objs {
			m[id] = p
		}
		out[sub] = m
	}
	return out
}
