// Package config 持久化、HA 与备份的 YAML 配置
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"rebind/errors"
	"rebind/ha"
	"rebind/mgmt"
	"rebind/objectstore"
	"rebind/paths"
	"rebind/persister"
	"rebind/serializer"
	"rebind/stores"
)

// Config 全部配置
type Config struct {
	Node             NodeConfig        `yaml:"node"`
	Persistence      PersistenceConfig `yaml:"persistence"`
	HighAvailability HAConfig          `yaml:"high_availability"`
	Backups          BackupConfig      `yaml:"backups"`
	Stores           StoresConfig      `yaml:"stores"`
	// Locations 命名位置：名称 -> 规格
	Locations map[string]string `yaml:"locations"`
}

// NodeConfig 节点身份与本地目录
type NodeConfig struct {
	ID      string `yaml:"id"`
	PlaneID string `yaml:"plane_id"`
	BaseDir string `yaml:"base_dir"`
}

// PersistenceConfig 状态持久化
type PersistenceConfig struct {
	Mode                 ha.PersistMode `yaml:"mode"`
	Location             string         `yaml:"location"`
	Container            string         `yaml:"container"`
	Format               string         `yaml:"format"`
	DeltaPeriod          time.Duration  `yaml:"delta_period"`
	SerializationRetries *int           `yaml:"serialization_retries"`
	WriteTimeout         time.Duration  `yaml:"write_timeout"`
	DeferRawLoad         bool           `yaml:"defer_raw_load"`
}

// HAConfig 高可用
type HAConfig struct {
	Mode ha.HighAvailabilityMode `yaml:"mode"`
}

// BackupConfig HA 切换时的备份
type BackupConfig struct {
	Location            string                  `yaml:"location"`
	Container           string                  `yaml:"container"`
	Compression         objectstore.Compression `yaml:"compression"`
	EnabledOnPromotion  *bool                   `yaml:"enabled_on_promotion"`
	EnabledOnDemotion   *bool                   `yaml:"enabled_on_demotion"`
}

// StoresConfig 各后端的参数
type StoresConfig struct {
	Compression objectstore.Compression `yaml:"compression"`
	Redis       RedisConfig             `yaml:"redis"`
	NATS        NATSConfig              `yaml:"nats"`
	SQLite      SQLiteConfig            `yaml:"sqlite"`
}

type RedisConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

type NATSConfig struct {
	Bucket string `yaml:"bucket"`
}

type SQLiteConfig struct {
	Table string `yaml:"table"`
}

// Default 全部使用默认值的配置
func Default() *Config {
	c := &Config{}
	c.defaults()
	return c
}

func (c *Config) defaults() {
	if c.Persistence.Location == "" {
		c.Persistence.Location = stores.LocalhostSpec
	}
	if c.Persistence.Container == "" {
		c.Persistence.Container = paths.DefaultStateContainer
	}
	if c.Persistence.Format == "" {
		c.Persistence.Format = serializer.FormatJSON
	}
	if c.Persistence.DeltaPeriod <= 0 {
		c.Persistence.DeltaPeriod = persister.DefaultDeltaPeriod
	}
	if c.Persistence.SerializationRetries == nil {
		n := serializer.DefaultRetries
		c.Persistence.SerializationRetries = &n
	}
	if c.Persistence.WriteTimeout <= 0 {
		c.Persistence.WriteTimeout = persister.DefaultWriteTimeout
	}
	if c.Backups.Location == "" {
		c.Backups.Location = c.Persistence.Location
	}
	if c.Backups.Container == "" {
		c.Backups.Container = paths.DefaultBackupContainer
	}
	if c.Backups.EnabledOnPromotion == nil {
		c.Backups.EnabledOnPromotion = boolPtr(true)
	}
	if c.Backups.EnabledOnDemotion == nil {
		c.Backups.EnabledOnDemotion = boolPtr(true)
	}
	if c.Stores.Redis.KeyPrefix == "" {
		c.Stores.Redis.KeyPrefix = "rebind:"
	}
	if c.Stores.NATS.Bucket == "" {
		c.Stores.NATS.Bucket = "rebind"
	}
	if c.Stores.SQLite.Table == "" {
		c.Stores.SQLite.Table = "rebind_objects"
	}
}

func boolPtr(b bool) *bool { return &b }

// Validate 检查取值组合
func (c *Config) Validate() error {
	if _, err := serializer.ForFormat(c.Persistence.Format); err != nil {
		return err
	}
	if c.Persistence.SerializationRetries != nil && *c.Persistence.SerializationRetries < 0 {
		return errors.NewError(errors.ErrCodeInvalidInput, "persistence.serialization_retries must not be negative")
	}
	if c.Persistence.Mode == ha.PersistClean && c.HighAvailability.Mode.IsStandby() {
		return errors.NewError(errors.ErrCodeInvalidInput, "persistence.mode clean cannot be combined with a standby HA mode")
	}
	if c.Persistence.Mode == ha.PersistDisabled && c.HighAvailability.Mode.IsShared() {
		return errors.NewError(errors.ErrCodeInvalidInput, "high availability requires persistence")
	}
	for name, spec := range c.Locations {
		if name == "" || spec == "" {
			return errors.NewError(errors.ErrCodeInvalidInput, "named locations need both a name and a spec")
		}
	}
	return nil
}

// Load 解析 YAML，补全默认值并校验
func Load(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "parse config")
	}
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile 读取 YAML 配置文件
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "read config "+path)
	}
	return Load(data)
}

// Paths 节点路径解析器
func (c *Config) Paths() *paths.Resolver {
	return paths.NewResolver(c.Node.BaseDir)
}

// StoreOptions 位置解析器参数
func (c *Config) StoreOptions(p *paths.Resolver) stores.Options {
	return stores.Options{
		Paths:          p,
		Compression:    c.Stores.Compression,
		SQLiteTable:    c.Stores.SQLite.Table,
		RedisKeyPrefix: c.Stores.Redis.KeyPrefix,
		NATSBucket:     c.Stores.NATS.Bucket,
		Named:          c.Locations,
	}
}

// Serializer 配置的序列化器
func (c *Config) Serializer() (serializer.Serializer, error) {
	return serializer.ForFormat(c.Persistence.Format)
}

// PersisterOptions 持久化器参数
func (c *Config) PersisterOptions() (persister.Options, error) {
	ser, err := c.Serializer()
	if err != nil {
		return persister.Options{}, err
	}
	opts := persister.Options{
		Serializer:   ser,
		DeltaPeriod:  c.Persistence.DeltaPeriod,
		WriteTimeout: c.Persistence.WriteTimeout,
		DeferRawLoad: c.Persistence.DeferRawLoad,
		PlaneID:      c.Node.PlaneID,
	}
	if c.Persistence.SerializationRetries != nil {
		opts.SerializationRetries = *c.Persistence.SerializationRetries
	}
	return opts, nil
}

// LocalOptions 本地管理上下文参数
func (c *Config) LocalOptions(p *paths.Resolver) (mgmt.LocalOptions, error) {
	ser, err := c.Serializer()
	if err != nil {
		return mgmt.LocalOptions{}, err
	}
	return mgmt.LocalOptions{
		NodeID:     c.Node.ID,
		PlaneID:    c.Node.PlaneID,
		HAMode:     c.HighAvailability.Mode,
		Paths:      p,
		Serializer: ser,
		Resolver:   stores.NewResolver(c.StoreOptions(p)),
	}, nil
}

// BackupEnabled 指定模式是否需要备份；custom 总是启用
func (c *Config) BackupEnabled(mode string) bool {
	switch mode {
	case "promotion":
		return c.Backups.EnabledOnPromotion == nil || *c.Backups.EnabledOnPromotion
	case "demotion":
		return c.Backups.EnabledOnDemotion == nil || *c.Backups.EnabledOnDemotion
	}
	return true
}
