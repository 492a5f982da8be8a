// Package natskv 基于 NATS JetStream 键值桶的对象存储
//
// 键布局：<容器>.<代>.<子路径>.<id>，各段使用 base64url 编码；<容器>.current 指向当前代。
// 全量替换写入新一代后更新指针键，单键写入是原子的，读者只会看到完整的某一代。
package natskv

import (
	"context"
	"encoding/base64"
	stdErrors "errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"rebind/errors"
	"rebind/ha"
	"rebind/logging"
	"rebind/objectstore"
)

// DefaultBucket 默认桶名
const DefaultBucket = "rebind"

const currentKey = "current"

// kvBucket 存储依赖的键值操作子集（便于测试替换）
type kvBucket interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
	Delete(key string, opts ...nats.DeleteOpt) error
	Keys(opts ...nats.WatchOpt) ([]string, error)
}

// Config NATS 存储配置
type Config struct {
	URL    string
	Bucket string
	Conn   *nats.Conn
}

// Store NATS KV 对象存储
type Store struct {
	objectstore.Base

	kv        kvBucket
	bucket    string
	container string
	prefix    string
	conn      *nats.Conn
	log       logging.ILogger

	mu sync.Mutex
}

// New 连接 NATS 并绑定键值桶，桶不存在时创建
func New(cfg Config, container string) (*Store, error) {
	if container == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "nats store container is empty")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	conn := cfg.Conn
	var owned *nats.Conn
	if conn == nil {
		if cfg.URL == "" {
			return nil, errors.NewError(errors.ErrCodeInvalidInput, "nats connection not configured")
		}
		c, err := nats.Connect(cfg.URL)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeNetwork, "connect "+cfg.URL)
		}
		conn, owned = c, c
	}
	js, err := conn.JetStream()
	if err != nil {
		closeConn(owned)
		return nil, errors.WrapError(err, errors.ErrCodeNetwork, "jetstream context")
	}
	kv, err := js.KeyValue(cfg.Bucket)
	if stdErrors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: cfg.Bucket, Description: "rebind object store"})
	}
	if err != nil {
		closeConn(owned)
		return nil, errors.WrapError(err, errors.ErrCodeNetwork, "bind bucket "+cfg.Bucket)
	}
	s := newWithBucket(kv, cfg.Bucket, container)
	s.conn = owned
	return s, nil
}

func closeConn(c *nats.Conn) {
	if c != nil {
		c.Close()
	}
}

func newWithBucket(kv kvBucket, bucket, container string) *Store {
	return &Store{
		kv:        kv,
		bucket:    bucket,
		container: container,
		prefix:    encode(container) + ".",
		log:       logging.ComponentLogger("objectstore.nats"),
	}
}

func encode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func decode(s string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	return string(b), err
}

func (s *Store) SummaryName() string { return "nats:" + s.bucket + "/" + s.container }

func (s *Store) pointerKey() string { return s.prefix + currentKey }

func (s *Store) objectKey(gen, subpath, id string) string {
	return s.prefix + gen + "." + encode(subpath) + "." + encode(id)
}

// generation 当前代；create 为 true 且尚无指针时创建第一代
func (s *Store) generation(create bool) (string, error) {
	entry, err := s.kv.Get(s.pointerKey())
	if err == nil {
		return string(entry.Value()), nil
	}
	if !stdErrors.Is(err, nats.ErrKeyNotFound) {
		return "", err
	}
	if !create {
		return "", nil
	}
	gen := newGeneration()
	if _, err := s.kv.Put(s.pointerKey(), []byte(gen)); err != nil {
		return "", err
	}
	return gen, nil
}

func newGeneration() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// keys 本容器下的全部键
func (s *Store) keys() ([]string, error) {
	all, err := s.kv.Keys()
	if stdErrors.Is(err, nats.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, k := range all {
		if strings.HasPrefix(k, s.prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *Store) PrepareForSharedUse(persistMode ha.PersistMode, haMode ha.HighAvailabilityMode) error {
	return s.PrepareWith(s.SummaryName(), persistMode, haMode, s.DeleteCompletely)
}

func (s *Store) List(ctx context.Context, subpath string) ([]string, error) {
	gen, err := s.generation(false)
	if err != nil {
		return nil, s.wrap(err, "read generation")
	}
	ids := []string{}
	if gen == "" {
		return ids, nil
	}
	keys, err := s.keys()
	if err != nil {
		return nil, s.wrap(err, "list keys")
	}
	prefix := s.prefix + gen + "." + encode(subpath) + "."
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		id, err := decode(strings.TrimPrefix(k, prefix))
		if err != nil {
			s.log.Warn(ctx, "[NatsKVStore] 忽略无法解析的键", logging.String("key", k))
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Get(ctx context.Context, subpath, id string) (string, error) {
	if err := objectstore.ValidateName(subpath, id); err != nil {
		return "", err
	}
	gen, err := s.generation(false)
	if err != nil {
		return "", s.wrap(err, "read generation")
	}
	if gen == "" {
		return "", objectstore.NotFound(subpath, id)
	}
	entry, err := s.kv.Get(s.objectKey(gen, subpath, id))
	if stdErrors.Is(err, nats.ErrKeyNotFound) {
		return "", objectstore.NotFound(subpath, id)
	}
	if err != nil {
		return "", s.wrap(err, "get "+subpath+"/"+id)
	}
	return string(entry.Value()), nil
}

func (s *Store) Put(ctx context.Context, subpath, id, payload string) error {
	if err := s.CheckWritable(); err != nil {
		return err
	}
	if err := objectstore.ValidateName(subpath, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, err := s.generation(true)
	if err != nil {
		return s.wrap(err, "read generation")
	}
	_, err = s.kv.Put(s.objectKey(gen, subpath, id), []byte(payload))
	return s.wrap(err, "put "+subpath+"/"+id)
}

func (s *Store) Delete(ctx context.Context, subpath, id string) error {
	if err := s.CheckWritable(); err != nil {
		return err
	}
	if err := objectstore.ValidateName(subpath, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, err := s.generation(false)
	if err != nil {
		return s.wrap(err, "read generation")
	}
	if gen == "" {
		return nil
	}
	err = s.kv.Delete(s.objectKey(gen, subpath, id))
	if stdErrors.Is(err, nats.ErrKeyNotFound) {
		return nil
	}
	return s.wrap(err, "delete "+subpath+"/"+id)
}

func (s *Store) ReplaceAll(ctx context.Context, contents objectstore.Contents) error {
	if err := s.CheckWritable(); err != nil {
		return err
	}
	for sub, objs := range contents {
		for id := range objs {
			if err := objectstore.ValidateName(sub, id); err != nil {
				return err
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	previous, err := s.generation(false)
	if err != nil {
		return s.wrap(err, "read generation")
	}

	gen := newGeneration()
	written := make([]string, 0)
	abort := func() {
		for _, k := range written {
			_ = s.kv.Delete(k)
		}
	}
	for sub, objs := range contents {
		for id, payload := range objs {
			key := s.objectKey(gen, sub, id)
			if _, err := s.kv.Put(key, []byte(payload)); err != nil {
				abort()
				return s.wrap(err, "stage "+sub+"/"+id)
			}
			written = append(written, key)
		}
	}
	if _, err := s.kv.Put(s.pointerKey(), []byte(gen)); err != nil {
		abort()
		return s.wrap(err, "switch generation")
	}

	if previous != "" {
		s.purgeGeneration(ctx, previous)
	}
	return nil
}

// purgeGeneration 尽力删除旧一代的键，失败只记录日志
func (s *Store) purgeGeneration(ctx context.Context, gen string) {
	keys, err := s.keys()
	if err != nil {
		s.log.Warn(ctx, "[NatsKVStore] 列出旧代键失败", logging.String("generation", gen), logging.Error(err))
		return
	}
	prefix := s.prefix + gen + "."
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			if err := s.kv.Delete(k); err != nil {
				s.log.Warn(ctx, "[NatsKVStore] 删除旧代键失败", logging.String("key", k), logging.Error(err))
			}
		}
	}
}

func (s *Store) DeleteCompletely(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, err := s.keys()
	if err != nil {
		return s.wrap(err, "list keys")
	}
	// 先删指针，剩余键即使删除失败也不再可见
	if err := s.kv.Delete(s.pointerKey()); err != nil && !stdErrors.Is(err, nats.ErrKeyNotFound) {
		return s.wrap(err, "delete generation pointer")
	}
	for _, k := range keys {
		if k == s.pointerKey() {
			continue
		}
		if err := s.kv.Delete(k); err != nil && !stdErrors.Is(err, nats.ErrKeyNotFound) {
			return s.wrap(err, "delete "+k)
		}
	}
	return nil
}

func (s *Store) Close() error {
	closeConn(s.conn)
	return nil
}

func (s *Store) wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.WrapError(err, errors.ErrCodeNetwork, s.SummaryName()+": "+op)
}

// Provider 以 NATS KV 桶作为持久化位置
type Provider struct {
	Config Config
}

func (p Provider) NewObjectStore(container string) (objectstore.ObjectStore, error) {
	return New(p.Config, container)
}

var (
	_ objectstore.ObjectStore = (*Store)(nil)
	_ objectstore.Provider    = Provider{}
	_ kvBucket                = (nats.KeyValue)(nil)
)
