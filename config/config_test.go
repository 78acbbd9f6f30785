package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/file-ingestion/modules/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.HTTP.Port)
	assert.Equal(t, int64(2<<30), cfg.HTTP.MaxBodyBytes)
	assert.Equal(t, storage.BackendLocal, cfg.Storage.Backend)
	assert.Equal(t, "memory", cfg.Cache.Store)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 30*time.Second, cfg.Ingest.OperationTimeout)
	assert.NotEmpty(t, cfg.Metadata.DSN)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FILE_INGESTION_HTTP_PORT", "8081")
	t.Setenv("FILE_INGESTION_STORAGE_BACKEND", "s3")
	t.Setenv("FILE_INGESTION_STORAGE_S3_BUCKET", "uploads")
	t.Setenv("FILE_INGESTION_STORAGE_S3_PATH_STYLE", "true")
	t.Setenv("FILE_INGESTION_INGEST_OPERATION_TIMEOUT", "45s")
	t.Setenv("FILE_INGESTION_CACHE_STORE", "redis")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.HTTP.Port)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "uploads", cfg.Storage.S3.Bucket)
	assert.True(t, cfg.Storage.S3.PathStyle)
	assert.Equal(t, 45*time.Second, cfg.Ingest.OperationTimeout)
	assert.Equal(t, "redis", cfg.Cache.Store)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file-ingestion.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 9090
storage:
  backend: jetstream
  jetstream:
    bucket: blobs
nats:
  port: 4333
ingest:
  workers: 7
  job_timeout: 2m
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 7, cfg.Ingest.Workers)

	sc := cfg.ForStorage()
	assert.Equal(t, storage.BackendJetStream, sc.Backend)
	assert.Equal(t, "blobs", sc.Bucket)
	assert.Equal(t, "nats://localhost:4333", sc.NATSURL)

	_, pool := cfg.ForIngest()
	assert.Equal(t, 7, pool.Workers)
	assert.Equal(t, 2*time.Minute, pool.JobTimeout)
}

func TestLoadFile_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: 9090\n"), 0o600))
	t.Setenv("FILE_INGESTION_HTTP_PORT", "7070")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.HTTP.Port)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		t.Helper()
		t.Chdir(t.TempDir())
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }, "unknown storage.backend"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3" }, "storage.s3.bucket"},
		{"unknown cache", func(c *Config) { c.Cache.Store = "memcached" }, "unknown cache.store"},
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"no body limit", func(c *Config) { c.HTTP.MaxBodyBytes = 0 }, "max_body_bytes"},
		{"no dsn", func(c *Config) { c.Metadata.DSN = "" }, "metadata.dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
