// Package config loads the pipeline configuration from YAML with defaults
// and PIPELINE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"go-trip-pipeline/internal/metrics"
	"go-trip-pipeline/internal/model"
	"go-trip-pipeline/internal/objstore"
	"go-trip-pipeline/internal/pipeline"
	"go-trip-pipeline/internal/warehouse"
	"go-trip-pipeline/pkg/utils"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Source drivers.
const (
	SourceLocal = "local"
	SourceGCS   = "gcs"
)

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	LogMode     string `yaml:"log_mode"` // dev, prod
}

type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	LedgerPrefix string `yaml:"ledger_prefix"`
	AlertChannel string `yaml:"alert_channel"`
}

// StoreConfig selects where the ledger and the stage log live. The redis
// driver holds only the ledger; its stage log uses SQLite.
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type SourceConfig struct {
	Driver     string             `yaml:"driver"`
	LocalRoot  string             `yaml:"local_root"`
	GCS        objstore.GCSConfig `yaml:"gcs"`
	Prefix     string             `yaml:"prefix"`
	Extensions []string           `yaml:"extensions"`
	Lookback   string             `yaml:"lookback"`
}

type WarehouseConfig struct {
	warehouse.Config `yaml:",inline"`

	StatementTimeout string  `yaml:"statement_timeout"`
	PollInitial      string  `yaml:"poll_initial"`
	PollMax          string  `yaml:"poll_max"`
	PollMultiplier   float64 `yaml:"poll_multiplier"`
}

type NotifyConfig struct {
	Channels   []string `yaml:"channels"` // log, redis, webhook
	WebhookURL string   `yaml:"webhook_url"`
	Timeout    string   `yaml:"timeout"`
}

type SinkConfig struct {
	Dir       string `yaml:"dir"`
	Workers   int    `yaml:"workers"`
	BatchSize int    `yaml:"batch_size"`
}

type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval"`
}

type BatchConfig struct {
	Pattern  string                   `yaml:"pattern"`
	Bucket   string                   `yaml:"bucket"`
	Datasets map[string]model.Dataset `yaml:"datasets"`
}

// Config is the whole service configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Source    SourceConfig    `yaml:"source"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Notify    NotifyConfig    `yaml:"notify"`
	Sink      SinkConfig      `yaml:"sink"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Metrics   metrics.Config  `yaml:"metrics"`
	Streaming model.Dataset   `yaml:"streaming"`
	Batch     BatchConfig     `yaml:"batch"`
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"PIPELINE_LOG_MODE":        &c.Service.LogMode,
		"PIPELINE_SERVER_ADDR":     &c.Server.Addr,
		"PIPELINE_STORE_DRIVER":    &c.Store.Driver,
		"PIPELINE_SQLITE_PATH":     &c.Store.SQLitePath,
		"PIPELINE_POSTGRES_DSN":    &c.Store.PostgresDSN,
		"PIPELINE_REDIS_ADDR":      &c.Redis.Addr,
		"PIPELINE_REDIS_PASSWORD":  &c.Redis.Password,
		"PIPELINE_SOURCE_DRIVER":   &c.Source.Driver,
		"PIPELINE_SOURCE_ROOT":     &c.Source.LocalRoot,
		"PIPELINE_SOURCE_PREFIX":   &c.Source.Prefix,
		"PIPELINE_LOOKBACK":        &c.Source.Lookback,
		"PIPELINE_GCS_BUCKET":      &c.Source.GCS.Bucket,
		"PIPELINE_GCS_CREDENTIALS": &c.Source.GCS.CredentialsFile,
		"PIPELINE_WAREHOUSE_PATH":  &c.Warehouse.Path,
		"PIPELINE_WEBHOOK_URL":     &c.Notify.WebhookURL,
		"PIPELINE_SINK_DIR":        &c.Sink.Dir,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	if v, ok := os.LookupEnv("PIPELINE_NOTIFY_CHANNELS"); ok {
		c.Notify.Channels = splitList(v)
	}
	if v, ok := os.LookupEnv("PIPELINE_SCHEDULER_ENABLED"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("PIPELINE_SCHEDULER_ENABLED: %w", err)
		}
		c.Scheduler.Enabled = b
	}
	if v, ok := os.LookupEnv("PIPELINE_METRICS_ENABLED"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("PIPELINE_METRICS_ENABLED: %w", err)
		}
		c.Metrics.Enabled = b
	}
	return nil
}

// Validate checks drivers, required settings and dataset definitions.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverMemory:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis store")
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}

	switch c.Source.Driver {
	case SourceLocal:
		if c.Source.LocalRoot == "" {
			return fmt.Errorf("source.local_root is required for the local source")
		}
	case SourceGCS:
		if c.Source.GCS.Bucket == "" {
			return fmt.Errorf("source.gcs.bucket is required for the gcs source")
		}
	default:
		return fmt.Errorf("unknown source.driver %q", c.Source.Driver)
	}

	for _, ch := range c.Notify.Channels {
		switch ch {
		case "log":
		case "redis":
			if c.Redis.Addr == "" {
				return fmt.Errorf("redis.addr is required for redis alerts")
			}
		case "webhook":
			if c.Notify.WebhookURL == "" {
				return fmt.Errorf("notify.webhook_url is required for webhook alerts")
			}
		default:
			return fmt.Errorf("unknown notify channel %q", ch)
		}
	}

	if err := pipeline.ValidateDataset(c.Streaming); err != nil {
		return fmt.Errorf("streaming: %w", err)
	}
	re, err := c.BatchPattern()
	if err != nil {
		return err
	}
	if re.NumSubexp() != 3 {
		return fmt.Errorf("batch.pattern must capture cab type, year and month")
	}
	for cab, ds := range c.Batch.Datasets {
		if err := pipeline.ValidateDataset(ds); err != nil {
			return fmt.Errorf("batch dataset %s: %w", cab, err)
		}
	}
	return nil
}

// BatchPattern compiles the batch object-name pattern.
func (c *Config) BatchPattern() (*regexp.Regexp, error) {
	re, err := regexp.Compile(c.Batch.Pattern)
	if err != nil {
		return nil, fmt.Errorf("batch.pattern: %w", err)
	}
	return re, nil
}

// Lookback is the discovery window. "0" or "off" disables the time filter.
func (c *Config) Lookback() time.Duration {
	switch strings.ToLower(strings.TrimSpace(c.Source.Lookback)) {
	case "0", "off", "none":
		return 0
	}
	return utils.ParseDuration(c.Source.Lookback, 5*time.Minute)
}

func (c *Config) ShutdownTimeout() time.Duration {
	return utils.ParseDuration(c.Server.ShutdownTimeout, 15*time.Second)
}

func (c *Config) SchedulerInterval() time.Duration {
	return utils.ParseDuration(c.Scheduler.Interval, 5*time.Minute)
}

func (c *Config) NotifyTimeout() time.Duration {
	return utils.ParseDuration(c.Notify.Timeout, 10*time.Second)
}

// LoaderConfig returns the statement deadline and poll backoff.
func (c *Config) LoaderConfig() pipeline.LoaderConfig {
	b := model.DefaultBackoff
	b.InitialDelay = utils.ParseDuration(c.Warehouse.PollInitial, b.InitialDelay)
	b.MaxDelay = utils.ParseDuration(c.Warehouse.PollMax, b.MaxDelay)
	if c.Warehouse.PollMultiplier >= 1 {
		b.BackoffMultiplier = c.Warehouse.PollMultiplier
	}
	return pipeline.LoaderConfig{
		StatementTimeout: utils.ParseDuration(c.Warehouse.StatementTimeout, 15*time.Minute),
		Backoff:          b,
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
