package xshadowconf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xmediator"
	"github.com/omeyang/xshadow/pkg/shadow/xwhitelist"
)

// =============================================================================
// 文档结构
// =============================================================================

// Document 一份完整的影子配置。构建后按只读使用，修改请先 Clone。
type Document struct {
	// Enabled 影子模式总开关。
	Enabled bool `koanf:"enabled"`
	// DisabledCode 与 DisabledReason 在关闭时随拒绝错误一起上报。
	DisabledCode   string `koanf:"disabled_code"`
	DisabledReason string `koanf:"disabled_reason"`

	MQ          NamingConfig    `koanf:"mq"`
	Whitelist   WhitelistConfig `koanf:"whitelist"`
	DataSources []DataSource    `koanf:"datasources"`
	Redis       []RedisConfig   `koanf:"redis"`
	Mongo       []MongoConfig   `koanf:"mongo"`
	Caches      []CacheConfig   `koanf:"caches"`
}

// NamingConfig MQ 影子名称规则，两项都为空时使用 PT_ 前缀。
type NamingConfig struct {
	Prefix string `koanf:"prefix"`
	Suffix string `koanf:"suffix"`
}

// WhitelistConfig 白名单配置。
type WhitelistConfig struct {
	Enabled bool          `koanf:"enabled"`
	Entries []EntryConfig `koanf:"entries"`
}

// EntryConfig 白名单条目，Kind 接受 url、rpc、mq、cache 及其全称。
type EntryConfig struct {
	Kind    string `koanf:"kind"`
	Pattern string `koanf:"pattern"`
}

// DataSource 影子数据源。
//
// Key 为业务数据源名称，可带用户名：name|user。ShadowTable 为 true 时
// 影子流量写同库影子表，URL 可以为空。
type DataSource struct {
	Key         string `koanf:"key"`
	Driver      string `koanf:"driver"`
	URL         string `koanf:"url"`
	Username    string `koanf:"username"`
	Password    string `koanf:"password"`
	ShadowTable bool   `koanf:"shadow_table"`
	MaxOpen     int    `koanf:"max_open"`
	MaxIdle     int    `koanf:"max_idle"`
}

// RedisConfig 影子 Redis。Addr 为空时复用业务集群，按 KeyPrefix（默认 PT_）隔离键空间。
type RedisConfig struct {
	Key       string `koanf:"key"`
	Addr      string `koanf:"addr"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// MongoConfig 影子 MongoDB。URI 为空时复用业务客户端，使用 Database 指定的影子库，
// 未指定时使用业务库名加 PT_ 前缀。
type MongoConfig struct {
	Key      string `koanf:"key"`
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`
}

// CacheConfig 影子本地缓存容量，零值使用适配器默认值。
type CacheConfig struct {
	Key         string `koanf:"key"`
	MaxCost     int64  `koanf:"max_cost"`
	NumCounters int64  `koanf:"num_counters"`
}

// Default 返回默认文档：影子模式与白名单开启，无影子后端。
func Default() *Document {
	return &Document{
		Enabled:   true,
		Whitelist: WhitelistConfig{Enabled: true},
	}
}

// Clone 返回深拷贝。
func (d *Document) Clone() *Document {
	c := *d
	c.Whitelist.Entries = append([]EntryConfig(nil), d.Whitelist.Entries...)
	c.DataSources = append([]DataSource(nil), d.DataSources...)
	c.Redis = append([]RedisConfig(nil), d.Redis...)
	c.Mongo = append([]MongoConfig(nil), d.Mongo...)
	c.Caches = append([]CacheConfig(nil), d.Caches...)
	return &c
}

// =============================================================================
// 派生视图
// =============================================================================

// Naming 返回 MQ 影子名称规则。
func (d *Document) Naming() xclassify.Naming {
	if d.MQ.Prefix == "" && d.MQ.Suffix == "" {
		return xclassify.DefaultNaming
	}
	return xclassify.Naming{Prefix: d.MQ.Prefix, Suffix: d.MQ.Suffix}
}

// WhitelistEntries 把条目配置转换为白名单条目。
func (d *Document) WhitelistEntries() ([]xwhitelist.Entry, error) {
	out := make([]xwhitelist.Entry, 0, len(d.Whitelist.Entries))
	for i, e := range d.Whitelist.Entries {
		kind, err := xwhitelist.ParseKind(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("whitelist.entries[%d]: %w", i, err)
		}
		out = append(out, xwhitelist.Entry{Pattern: strings.TrimSpace(e.Pattern), Kind: kind})
	}
	return out, nil
}

// DataSourceFor 按名称查找影子数据源：先精确匹配，再做冒号后缀匹配，均按声明顺序。
func (d *Document) DataSourceFor(name string) (DataSource, bool) {
	return xmediator.Match(d.DataSources, func(ds DataSource) string { return ds.Key }, name)
}

// RedisFor 按业务键查找影子 Redis。
func (d *Document) RedisFor(key string) (RedisConfig, bool) {
	return xmediator.Match(d.Redis, func(c RedisConfig) string { return c.Key }, key)
}

// MongoFor 按业务键查找影子 MongoDB。
func (d *Document) MongoFor(key string) (MongoConfig, bool) {
	return xmediator.Match(d.Mongo, func(c MongoConfig) string { return c.Key }, key)
}

// CacheFor 按业务键查找影子缓存配置。
func (d *Document) CacheFor(key string) (CacheConfig, bool) {
	return xmediator.Match(d.Caches, func(c CacheConfig) string { return c.Key }, key)
}

// =============================================================================
// 校验
// =============================================================================

// Validate 校验文档，返回所有问题，错误满足 errors.Is(err, ErrInvalidDocument)。
func (d *Document) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	entries, err := d.WhitelistEntries()
	if err != nil {
		errs = append(errs, err)
	} else if err := xwhitelist.Validate(entries); err != nil {
		errs = append(errs, fmt.Errorf("whitelist: %w", err))
	}

	seen := make(map[string]struct{}, len(d.DataSources))
	for i, ds := range d.DataSources {
		switch {
		case ds.Key == "":
			add("datasources[%d]: empty key", i)
		case ds.URL == "" && !ds.ShadowTable:
			add("datasources[%d] %s: empty url", i, ds.Key)
		}
		if _, dup := seen[ds.Key]; dup && ds.Key != "" {
			add("datasources[%d]: duplicate key %s", i, ds.Key)
		}
		seen[ds.Key] = struct{}{}
	}
	for i, r := range d.Redis {
		switch {
		case r.Key == "":
			add("redis[%d]: empty key", i)
		case r.DB < 0:
			add("redis[%d] %s: negative db", i, r.Key)
		}
	}
	for i, m := range d.Mongo {
		if m.Key == "" {
			add("mongo[%d]: empty key", i)
		}
	}
	for i, c := range d.Caches {
		switch {
		case c.Key == "":
			add("caches[%d]: empty key", i)
		case c.MaxCost < 0 || c.NumCounters < 0:
			add("caches[%d] %s: negative size", i, c.Key)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidDocument, errors.Join(errs...))
}
