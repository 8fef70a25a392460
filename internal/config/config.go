// Package config loads groupsync configuration from an optional file,
// GROUPSYNC_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/dreamware/groupsync/internal/cluster"
	"github.com/dreamware/groupsync/internal/executor"
	"github.com/dreamware/groupsync/internal/logging"
	"github.com/dreamware/groupsync/internal/rollback"
)

// EnvPrefix prefixes every environment override, e.g.
// GROUPSYNC_EXECUTOR_MAX_RETRIES=5.
const EnvPrefix = "GROUPSYNC"

// Config is the full groupctl configuration.
type Config struct {
	Hosts     []string       `mapstructure:"hosts"`      // takes precedence over HostsFile when set
	HostsFile string         `mapstructure:"hosts_file"` // one host per line
	Executor  ExecutorConfig `mapstructure:"executor"`
	Rollback  RollbackConfig `mapstructure:"rollback"`
	Log       logging.Config `mapstructure:"log"`
	Metrics   MetricsConfig  `mapstructure:"metrics"`
}

// ExecutorConfig controls per-host calls.
type ExecutorConfig struct {
	Simulate       bool          `mapstructure:"simulate"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryTimeout   time.Duration `mapstructure:"retry_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RollbackConfig selects where the rollback record lives.
type RollbackConfig struct {
	Type     string         `mapstructure:"type"` // file | memory | redis | postgres | etcd
	Path     string         `mapstructure:"path"` // type=file
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Etcd     EtcdConfig     `mapstructure:"etcd"`
}

// RedisConfig is used when RollbackConfig.Type is redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	Key      string `mapstructure:"key"`
	DB       int    `mapstructure:"db"`
}

// PostgresConfig is used when RollbackConfig.Type is postgres.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// EtcdConfig is used when RollbackConfig.Type is etcd.
type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	Key         string        `mapstructure:"key"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// MetricsConfig controls metric export from short-lived CLI runs.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"` // node_exporter textfile path; empty disables
}

// SetDefaults registers every key with its default so that environment
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("hosts", []string{})
	v.SetDefault("hosts_file", "hosts.txt")
	v.SetDefault("executor.simulate", false)
	v.SetDefault("executor.max_retries", 2)
	v.SetDefault("executor.retry_timeout", time.Second)
	v.SetDefault("executor.request_timeout", time.Second)
	v.SetDefault("rollback.type", "file")
	v.SetDefault("rollback.path", "rollback.txt")
	v.SetDefault("rollback.redis.addr", "127.0.0.1:6379")
	v.SetDefault("rollback.redis.password", "")
	v.SetDefault("rollback.redis.db", 0)
	v.SetDefault("rollback.redis.key", rollback.DefaultRedisKey)
	v.SetDefault("rollback.postgres.dsn", "")
	v.SetDefault("rollback.postgres.table", rollback.DefaultPostgresTable)
	v.SetDefault("rollback.etcd.endpoints", []string{"127.0.0.1:2379"})
	v.SetDefault("rollback.etcd.key", rollback.DefaultEtcdKey)
	v.SetDefault("rollback.etcd.dial_timeout", 5*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.textfile", "")
}

// Load reads configuration into a validated Config. path may be empty, in
// which case only defaults, environment and bound flags apply.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Executor.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("executor.max_retries must be at least 1, got %d", c.Executor.MaxRetries))
	}
	if c.Executor.RetryTimeout < 0 {
		errs = append(errs, fmt.Errorf("executor.retry_timeout must not be negative, got %v", c.Executor.RetryTimeout))
	}
	if c.Executor.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("executor.request_timeout must be positive, got %v", c.Executor.RequestTimeout))
	}
	switch c.Rollback.Type {
	case "file":
		if c.Rollback.Path == "" {
			errs = append(errs, errors.New("rollback.path is required for the file store"))
		}
	case "memory":
	case "redis":
		if c.Rollback.Redis.Addr == "" {
			errs = append(errs, errors.New("rollback.redis.addr is required for the redis store"))
		}
	case "postgres":
		if c.Rollback.Postgres.DSN == "" {
			errs = append(errs, errors.New("rollback.postgres.dsn is required for the postgres store"))
		}
	case "etcd":
		if len(c.Rollback.Etcd.Endpoints) == 0 {
			errs = append(errs, errors.New("rollback.etcd.endpoints is required for the etcd store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown rollback.type %q", c.Rollback.Type))
	}
	if len(c.Hosts) == 0 && c.HostsFile == "" {
		errs = append(errs, errors.New("either hosts or hosts_file must be set"))
	}
	return errors.Join(errs...)
}

// ExecutorOptions converts the executor section for executor.New.
func (c *Config) ExecutorOptions() executor.Options {
	return executor.Options{
		Simulate:       c.Executor.Simulate,
		MaxRetries:     c.Executor.MaxRetries,
		RetryTimeout:   c.Executor.RetryTimeout,
		RequestTimeout: c.Executor.RequestTimeout,
	}
}

// ResolveHosts returns the configured host list, reading HostsFile when no
// hosts are listed inline.
func (c *Config) ResolveHosts() ([]cluster.Host, error) {
	if len(c.Hosts) > 0 {
		hosts := make([]cluster.Host, 0, len(c.Hosts))
		for _, h := range c.Hosts {
			if h = strings.TrimSpace(h); h != "" {
				hosts = append(hosts, cluster.Host(h))
			}
		}
		if len(hosts) == 0 {
			return nil, errors.New("hosts list is empty")
		}
		return hosts, nil
	}
	return ReadHostsFile(c.HostsFile)
}

// ReadHostsFile reads one host per line, skipping blank lines and lines
// starting with '#'. An empty list is an error.
func ReadHostsFile(path string) ([]cluster.Host, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hosts file: %w", err)
	}
	defer f.Close()

	hosts, err := ParseHosts(f)
	if err != nil {
		return nil, fmt.Errorf("hosts file %s: %w", path, err)
	}
	return hosts, nil
}

// ParseHosts parses the hosts file format from r.
func ParseHosts(r io.Reader) ([]cluster.Host, error) {
	var hosts []cluster.Host
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hosts = append(hosts, cluster.Host(line))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, errors.New("no hosts found")
	}
	return hosts, nil
}

// OpenStore builds the configured rollback store. The returned close
// function releases any connection and is never nil.
func (c *Config) OpenStore(ctx context.Context) (rollback.Store, func() error, error) {
	noop := func() error { return nil }
	switch c.Rollback.Type {
	case "file":
		return rollback.NewFileStore(c.Rollback.Path), noop, nil
	case "memory":
		return rollback.NewMemoryStore(), noop, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     c.Rollback.Redis.Addr,
			Password: c.Rollback.Redis.Password,
			DB:       c.Rollback.Redis.DB,
		})
		return rollback.NewRedisStore(client, c.Rollback.Redis.Key), client.Close, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, c.Rollback.Postgres.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("connect postgres: %w", err)
		}
		store := rollback.NewPostgresStore(pool, c.Rollback.Postgres.Table)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		return store, func() error { pool.Close(); return nil }, nil
	case "etcd":
		cli, err := clientv3.New(clientv3.Config{
			Endpoints:   c.Rollback.Etcd.Endpoints,
			DialTimeout: c.Rollback.Etcd.DialTimeout,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("connect etcd: %w", err)
		}
		return rollback.NewEtcdStore(cli, c.Rollback.Etcd.Key), cli.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown rollback.type %q", c.Rollback.Type)
	}
}
