// Package stores 把位置规格解析为具备持久化能力的位置
//
// 支持的规格：
//
//	localhost               本地持久化目录（paths.Resolver.PersistenceDir）
//	file:///abs/dir         指定目录
//	memory[:name]           进程内存储，同一解析器内按名称共享
//	sqlite:<dsn>            sqlite 数据库
//	redis://[user:pass@]host:port[/db]
//	nats://host:port[?bucket=name]
//
// 其它规格解析为不具备持久化能力的普通位置。
package stores

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"rebind/errors"
	"rebind/logging"
	"rebind/memento"
	"rebind/mgmt"
	"rebind/objectstore"
	"rebind/objectstore/file"
	"rebind/objectstore/memory"
	"rebind/objectstore/natskv"
	"rebind/objectstore/redisstore"
	"rebind/objectstore/sqlstore"
	"rebind/paths"
)

// LocalhostSpec 本地位置规格，也是备份的兜底位置
const LocalhostSpec = "localhost"

// Options 解析器配置
type Options struct {
	Paths *paths.Resolver
	// Compression 本地与 file: 位置的压缩算法
	Compression    objectstore.Compression
	SQLiteTable    string
	RedisKeyPrefix string
	NATSBucket     string
	// Named 命名位置：名称 -> 规格
	Named map[string]string
}

// StoreLocation 具备持久化能力的位置
type StoreLocation struct {
	*mgmt.BasicObject
	spec     string
	provider objectstore.Provider
}

func (l *StoreLocation) Spec() string { return l.spec }

// NewObjectStore 在该位置创建容器对应的对象存储
func (l *StoreLocation) NewObjectStore(container string) (objectstore.ObjectStore, error) {
	return l.provider.NewObjectStore(container)
}

// IsLocalhost 是否为本地兜底位置
func IsLocalhost(l mgmt.Location) bool {
	return l != nil && l.Spec() == LocalhostSpec
}

// Resolver 位置解析器
type Resolver struct {
	opts Options
	log  logging.ILogger

	mu     sync.Mutex
	memory map[string]*memory.Store
}

// NewResolver 创建解析器
func NewResolver(opts Options) *Resolver {
	if opts.Paths == nil {
		opts.Paths = paths.NewResolver("")
	}
	return &Resolver{opts: opts, log: logging.ComponentLogger("stores"), memory: make(map[string]*memory.Store)}
}

// Resolve 解析位置规格
func (r *Resolver) Resolve(spec string) (mgmt.Location, error) {
	spec = strings.TrimSpace(spec)
	if named, ok := r.opts.Named[spec]; ok {
		spec = strings.TrimSpace(named)
	}
	if spec == "" {
		spec = LocalhostSpec
	}

	provider, err := r.provider(spec)
	if err != nil {
		return nil, err
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(spec)).String()
	if provider == nil {
		return mgmt.NewLocation(id, spec), nil
	}
	obj := mgmt.NewObject(memento.Location, id, "store-location").SetField("spec", redact(spec))
	return &StoreLocation{BasicObject: obj, spec: spec, provider: provider}, nil
}

func (r *Resolver) provider(spec string) (objectstore.Provider, error) {
	if spec == LocalhostSpec {
		return file.Provider{Root: r.opts.Paths.PersistenceDir(), Compression: r.opts.Compression}, nil
	}
	scheme, rest, _ := strings.Cut(spec, ":")
	switch strings.ToLower(scheme) {
	case "file":
		dir, err := fileDir(spec)
		if err != nil {
			return nil, err
		}
		return file.Provider{Root: dir, Compression: r.opts.Compression}, nil
	case "memory":
		name := rest
		if name == "" {
			name = "default"
		}
		return memoryProvider{r: r, name: name}, nil
	case "sqlite":
		if rest == "" {
			return nil, errors.NewError(errors.ErrCodeInvalidInput, "sqlite location needs a dsn")
		}
		return sqliteProvider{dsn: rest, table: r.opts.SQLiteTable}, nil
	case "redis", "rediss":
		cfg, err := redisConfig(spec, r.opts.RedisKeyPrefix)
		if err != nil {
			return nil, err
		}
		return redisstore.Provider{Config: cfg}, nil
	case "nats":
		cfg, err := natsConfig(spec, r.opts.NATSBucket)
		if err != nil {
			return nil, err
		}
		return natskv.Provider{Config: cfg}, nil
	}
	return nil, nil
}

func fileDir(spec string) (string, error) {
	u, err := url.Parse(spec)
	if err != nil {
		return "", errors.WrapError(err, errors.ErrCodeInvalidInput, "parse "+spec)
	}
	dir := u.Path
	if dir == "" {
		dir = u.Opaque
	}
	if dir == "" {
		return "", errors.Newf(errors.ErrCodeInvalidInput, "file location %q has no directory", spec)
	}
	return dir, nil
}

func redisConfig(spec, prefix string) (redisstore.Config, error) {
	u, err := url.Parse(spec)
	if err != nil {
		return redisstore.Config{}, errors.WrapError(err, errors.ErrCodeInvalidInput, "parse redis location")
	}
	if u.Host == "" {
		return redisstore.Config{}, errors.NewError(errors.ErrCodeInvalidInput, "redis location has no host")
	}
	cfg := redisstore.Config{Addr: u.Host, KeyPrefix: prefix}
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	if db := strings.Trim(u.Path, "/"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return redisstore.Config{}, errors.Newf(errors.ErrCodeInvalidInput, "redis database %q is not a number", db)
		}
		cfg.DB = n
	}
	return cfg, nil
}

func natsConfig(spec, bucket string) (natskv.Config, error) {
	u, err := url.Parse(spec)
	if err != nil {
		return natskv.Config{}, errors.WrapError(err, errors.ErrCodeInvalidInput, "parse nats location")
	}
	if u.Host == "" {
		return natskv.Config{}, errors.NewError(errors.ErrCodeInvalidInput, "nats location has no host")
	}
	if b := u.Query().Get("bucket"); b != "" {
		bucket = b
	}
	u.RawQuery = ""
	return natskv.Config{URL: u.String(), Bucket: bucket}, nil
}

// redact 去掉规格中的口令，用于持久化与日志
func redact(spec string) string {
	u, err := url.Parse(spec)
	if err != nil || u.User == nil {
		return spec
	}
	return u.Redacted()
}

// memoryProvider 同一解析器内按 名称/容器 共享内存存储
type memoryProvider struct {
	r    *Resolver
	name string
}

func (p memoryProvider) NewObjectStore(container string) (objectstore.ObjectStore, error) {
	key := p.name + "/" + container
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	s, ok := p.r.memory[key]
	if !ok {
		s = memory.New(key)
		p.r.memory[key] = s
	}
	return sharedStore{s}, nil
}

// sharedStore 共享存储的 Close 不关闭底层存储
type sharedStore struct {
	*memory.Store
}

func (sharedStore) Close() error { return nil }

type sqliteProvider struct {
	dsn   string
	table string
}

func (p sqliteProvider) NewObjectStore(container string) (objectstore.ObjectStore, error) {
	return sqlstore.Open(context.Background(), p.dsn, p.table, container)
}

var (
	_ mgmt.LocationResolver = (*Resolver)(nil)
	_ mgmt.Location         = (*StoreLocation)(nil)
	_ objectstore.Provider  = (*StoreLocation)(nil)
)
