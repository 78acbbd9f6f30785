// Package config loads process configuration from defaults, an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/file-ingestion/modules/cache"
	"github.com/example/file-ingestion/modules/ingest"
	"github.com/example/file-ingestion/modules/storage"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FILE_INGESTION_HTTP_PORT.
const EnvPrefix = "FILE_INGESTION"

// Config is the full process configuration.
type Config struct {
	HTTP            HTTPConfig     `mapstructure:"http"`
	Storage         StorageConfig  `mapstructure:"storage"`
	Metadata        MetadataConfig `mapstructure:"metadata"`
	Cache           CacheConfig    `mapstructure:"cache"`
	Ingest          IngestConfig   `mapstructure:"ingest"`
	NATS            NATSConfig     `mapstructure:"nats"`
	ShutdownTimeout time.Duration  `mapstructure:"shutdown_timeout"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Port         int   `mapstructure:"port"`
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// StorageConfig selects the blob store.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Local   struct {
		Root string `mapstructure:"root"`
	} `mapstructure:"local"`
	JetStream struct {
		URL    string `mapstructure:"url"`
		Bucket string `mapstructure:"bucket"`
	} `mapstructure:"jetstream"`
	S3 struct {
		Bucket    string `mapstructure:"bucket"`
		Region    string `mapstructure:"region"`
		Endpoint  string `mapstructure:"endpoint"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
		PathStyle bool   `mapstructure:"path_style"`
	} `mapstructure:"s3"`
}

// MetadataConfig configures the record store.
type MetadataConfig struct {
	DSN   string `mapstructure:"dsn"`
	Debug bool   `mapstructure:"debug"`
}

// CacheConfig configures the listing cache.
type CacheConfig struct {
	Store string `mapstructure:"store"`
	Size  int    `mapstructure:"size"`
	Redis struct {
		Addr   string `mapstructure:"addr"`
		Prefix string `mapstructure:"prefix"`
	} `mapstructure:"redis"`
}

// IngestConfig configures the pipelines and the background pool.
type IngestConfig struct {
	ScratchDir        string        `mapstructure:"scratch_dir"`
	OperationTimeout  time.Duration `mapstructure:"operation_timeout"`
	MaxExtractedBytes int64         `mapstructure:"max_extracted_bytes"`
	Workers           int           `mapstructure:"workers"`
	QueueSize         int           `mapstructure:"queue_size"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
}

// NATSConfig configures the embedded NATS server started by the application.
type NATSConfig struct {
	Port     int    `mapstructure:"port"`
	StoreDir string `mapstructure:"store_dir"`
}

func setDefaults(v *viper.Viper) {
	dataDir := filepath.Join(os.TempDir(), "file-ingestion")
	ingestDefaults := ingest.DefaultConfig()
	poolDefaults := ingest.DefaultPoolConfig()
	cacheDefaults := cache.DefaultConfig()

	v.SetDefault("http.port", 3000)
	v.SetDefault("http.max_body_bytes", int64(2<<30))

	v.SetDefault("storage.backend", storage.BackendLocal)
	v.SetDefault("storage.local.root", filepath.Join(dataDir, "blobs"))
	v.SetDefault("storage.jetstream.url", "")
	v.SetDefault("storage.jetstream.bucket", "files")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.path_style", false)

	v.SetDefault("metadata.dsn", filepath.Join(dataDir, "metadata.db"))
	v.SetDefault("metadata.debug", false)

	v.SetDefault("cache.store", cacheDefaults.Store)
	v.SetDefault("cache.size", cacheDefaults.Size)
	v.SetDefault("cache.redis.addr", cacheDefaults.RedisAddr)
	v.SetDefault("cache.redis.prefix", cacheDefaults.RedisPrefix)

	v.SetDefault("ingest.scratch_dir", filepath.Join(dataDir, "scratch"))
	v.SetDefault("ingest.operation_timeout", ingestDefaults.OperationTimeout)
	v.SetDefault("ingest.max_extracted_bytes", ingestDefaults.MaxExtractedBytes)
	v.SetDefault("ingest.workers", poolDefaults.Workers)
	v.SetDefault("ingest.queue_size", poolDefaults.QueueSize)
	v.SetDefault("ingest.job_timeout", poolDefaults.JobTimeout)

	v.SetDefault("nats.port", 4222)
	v.SetDefault("nats.store_dir", filepath.Join(dataDir, "jetstream"))

	v.SetDefault("shutdown_timeout", 30*time.Second)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file-ingestion.yaml from the working directory or /etc/file-ingestion if present,
// then applies environment overrides.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("file-ingestion")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/file-ingestion")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return decode(v)
}

// LoadFile reads the given config file, then applies environment overrides.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no module can run with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case storage.BackendLocal, storage.BackendJetStream:
	case storage.BackendS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}

	switch c.Cache.Store {
	case cache.StoreMemory, cache.StoreRedis:
	default:
		return fmt.Errorf("unknown cache.store %q", c.Cache.Store)
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http.port %d", c.HTTP.Port)
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be positive")
	}
	if c.Metadata.DSN == "" {
		return fmt.Errorf("metadata.dsn is required")
	}
	return nil
}

// ForStorage returns the storage module settings.
// The JetStream URL defaults to the embedded NATS server.
func (c *Config) ForStorage() storage.Config {
	url := c.Storage.JetStream.URL
	if url == "" {
		url = fmt.Sprintf("nats://localhost:%d", c.NATS.Port)
	}
	return storage.Config{
		Backend:   c.Storage.Backend,
		LocalRoot: c.Storage.Local.Root,
		NATSURL:   url,
		Bucket:    c.Storage.JetStream.Bucket,
		S3: storage.S3Config{
			Bucket:    c.Storage.S3.Bucket,
			Region:    c.Storage.S3.Region,
			Endpoint:  c.Storage.S3.Endpoint,
			AccessKey: c.Storage.S3.AccessKey,
			SecretKey: c.Storage.S3.SecretKey,
			PathStyle: c.Storage.S3.PathStyle,
		},
	}
}

// ForCache returns the cache module settings.
func (c *Config) ForCache() cache.Config {
	return cache.Config{
		Store:       c.Cache.Store,
		Size:        c.Cache.Size,
		RedisAddr:   c.Cache.Redis.Addr,
		RedisPrefix: c.Cache.Redis.Prefix,
	}
}

// ForIngest returns the pipeline and background pool settings.
func (c *Config) ForIngest() (ingest.Config, ingest.PoolConfig) {
	pipeline := ingest.Config{
		ScratchDir:        c.Ingest.ScratchDir,
		OperationTimeout:  c.Ingest.OperationTimeout,
		MaxExtractedBytes: c.Ingest.MaxExtractedBytes,
	}
	pool := ingest.PoolConfig{
		Workers:    c.Ingest.Workers,
		QueueSize:  c.Ingest.QueueSize,
		JobTimeout: c.Ingest.JobTimeout,
	}
	return pipeline, pool
}
