// Package redisstore 基于 Redis 哈希的对象存储
//
// 每个子路径一个哈希：<prefix><container>:<subpath>，字段为对象 id。
// 全量替换先写入暂存哈希，再在 MULTI/EXEC 中删除旧哈希并把暂存哈希改名。
package redisstore

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"rebind/errors"
	"rebind/ha"
	"rebind/logging"
	"rebind/objectstore"
)

// DefaultKeyPrefix 默认键前缀
const DefaultKeyPrefix = "rebind:"

// Config Redis 存储配置
type Config struct {
	Client    redis.UniversalClient
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

// Store Redis 对象存储
type Store struct {
	objectstore.Base

	be        backend
	prefix    string
	container string
	log       logging.ILogger
}

// New 创建 Redis 存储；未提供 Client 时按 Addr 新建并在 Close 时关闭
func New(cfg Config, container string) (*Store, error) {
	if container == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "redis store container is empty")
	}
	g := &goRedis{client: cfg.Client}
	if g.client == nil {
		if cfg.Addr == "" {
			return nil, errors.NewError(errors.ErrCodeInvalidInput, "redis client not configured")
		}
		g.client = redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
		g.own = true
	}
	return newWithBackend(g, cfg.KeyPrefix, container), nil
}

func newWithBackend(be backend, prefix, container string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{
		be:        be,
		prefix:    prefix,
		container: container,
		log:       logging.ComponentLogger("objectstore.redis"),
	}
}

func (s *Store) SummaryName() string { return "redis:" + s.prefix + s.container }

func (s *Store) hashKey(subpath string) string {
	return s.prefix + s.container + ":" + subpath
}

// livePattern 匹配本容器全部子路径哈希，不匹配暂存哈希
func (s *Store) livePattern() string {
	return escapeGlob(s.prefix+s.container+":") + "*"
}

func (s *Store) PrepareForSharedUse(persistMode ha.PersistMode, haMode ha.HighAvailabilityMode) error {
	return s.PrepareWith(s.SummaryName(), persistMode, haMode, s.DeleteCompletely)
}

func (s *Store) List(ctx context.Context, subpath string) ([]string, error) {
	ids, err := s.be.HKeys(ctx, s.hashKey(subpath))
	if err != nil {
		return nil, s.wrap(err, "list "+subpath)
	}
	if ids == nil {
		ids = []string{}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Get(ctx context.Context, subpath, id string) (string, error) {
	v, ok, err := s.be.HGet(ctx, s.hashKey(subpath), id)
	if err != nil {
		return "", s.wrap(err, "get "+subpath+"/"+id)
	}
	if !ok {
		return "", objectstore.NotFound(subpath, id)
	}
	return v, nil
}

func (s *Store) Put(ctx context.Context, subpath, id, payload string) error {
	if err := s.CheckWritable(); err != nil {
		return err
	}
	if err := objectstore.ValidateName(subpath, id); err != nil {
		return err
	}
	return s.wrap(s.be.HSet(ctx, s.hashKey(subpath), map[string]string{id: payload}), "put "+subpath+"/"+id)
}

func (s *Store) Delete(ctx context.Context, subpath, id string) error {
	if err := s.CheckWritable(); err != nil {
		return err
	}
	return s.wrap(s.be.HDel(ctx, s.hashKey(subpath), id), "delete "+subpath+"/"+id)
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

	stagePrefix := s.prefix + s.container + ".staging-" + uuid.NewString() + ":"
	renames := make(map[string]string, len(contents))
	cleanup := func() {
		staged := make([]string, 0, len(renames))
		for k := range renames {
			staged = append(staged, k)
		}
		_ = s.be.Del(context.Background(), staged...)
	}

	for sub, objs := range contents {
		if len(objs) == 0 {
			continue
		}
		key := stagePrefix + sub
		renames[key] = s.hashKey(sub)
		if err := s.be.HSet(ctx, key, objs); err != nil {
			cleanup()
			return s.wrap(err, "stage "+sub)
		}
	}

	live, err := s.be.ScanKeys(ctx, s.livePattern())
	if err != nil {
		cleanup()
		return s.wrap(err, "scan live keys")
	}
	if err := s.be.Swap(ctx, live, renames); err != nil {
		cleanup()
		return s.wrap(err, "swap")
	}
	s.log.Debug(ctx, "[RedisStore] 全量替换完成", logging.String("store", s.SummaryName()), logging.Int("hashes", len(renames)))
	return nil
}

func (s *Store) DeleteCompletely(ctx context.Context) error {
	keys, err := s.be.ScanKeys(ctx, s.livePattern())
	if err != nil {
		return s.wrap(err, "scan keys")
	}
	return s.wrap(s.be.Del(ctx, keys...), "delete keys")
}

func (s *Store) Close() error { return s.be.Close() }

func (s *Store) wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.WrapError(err, errors.ErrCodeNetwork, s.SummaryName()+": "+op)
}

// escapeGlob 转义 redis glob 特殊字符
func escapeGlob(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\', '^', '-':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Provider 以 Redis 实例作为持久化位置
type Provider struct {
	Config Config
}

func (p Provider) NewObjectStore(container string) (objectstore.ObjectStore, error) {
	return New(p.Config, container)
}

var (
	_ objectstore.ObjectStore = (*Store)(nil)
	_ objectstore.Provider    = Provider{}
)
