package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecseg/blobstore"
	miniostore "github.com/hupe1980/vecseg/blobstore/minio"
	"github.com/hupe1980/vecseg/model"
)

const sampleYAML = `
storage:
  backend: local
  path: %s
segments:
  vector_type: vector/flat
  vector:
    "hnsw:space": cosine
  max_cached: 16
  checkpoint_every: 4
  compression: lz4
  allow_reset: true
resources:
  memory_limit_bytes: 1048576
log:
  level: debug
  format: json
codec: json
`

func TestLoadBytes_Defaults(t *testing.T) {
	cfg, err := LoadBytes(nil)
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, CatalogBlob, cfg.Catalog.Backend)
	assert.Equal(t, string(model.SegmentTypeHNSW), cfg.Segments.VectorType)
	assert.Equal(t, "zstd", cfg.Segments.Compression)
	assert.Equal(t, "go-json", cfg.Codec)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadBytes_YAML(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadBytes([]byte(fmt.Sprintf(sampleYAML, dir)))
	require.NoError(t, err)

	assert.Equal(t, BackendLocal, cfg.Storage.Backend)
	assert.Equal(t, dir, cfg.Storage.Path)
	assert.Equal(t, "vector/flat", cfg.Segments.VectorType)
	assert.Equal(t, "cosine", cfg.Segments.Vector["hnsw:space"])
	assert.Equal(t, 16, cfg.Segments.MaxCached)
	assert.Equal(t, 4, cfg.Segments.CheckpointEvery)
	assert.True(t, cfg.Segments.AllowReset)
	assert.Equal(t, int64(1048576), cfg.Resources.MemoryLimitBytes)
	assert.Equal(t, "json", cfg.Codec)

	lvl, err := cfg.Log.level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoadBytes_EnvOverrides(t *testing.T) {
	t.Setenv("VECSEG_SEGMENTS_MAX_CACHED", "99")
	t.Setenv("VECSEG_LOG_LEVEL", "warn")
	t.Setenv("VECSEG_STORAGE_PATH", "/tmp/from-env")

	cfg, err := LoadBytes([]byte(fmt.Sprintf(sampleYAML, "/tmp/from-file")))
	require.NoError(t, err)

	assert.Equal(t, 99, cfg.Segments.MaxCached)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/tmp/from-env", cfg.Storage.Path)
	assert.Equal(t, "vector/flat", cfg.Segments.VectorType)
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"VECSEG_STORAGE_ACCESS_KEY":        "storage.access_key",
		"VECSEG_LOG_LEVEL":                 "log.level",
		"VECSEG_CODEC":                     "codec",
		"VECSEG_SEGMENTS_CHECKPOINT_EVERY": "segments.checkpoint_every",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown storage", func(c *Config) { c.Storage.Backend = "ftp" }},
		{"local without path", func(c *Config) { c.Storage.Backend = BackendLocal }},
		{"minio without endpoint", func(c *Config) { c.Storage.Backend = BackendMinio; c.Storage.Bucket = "b" }},
		{"minio without bucket", func(c *Config) { c.Storage.Backend = BackendMinio; c.Storage.Endpoint = "localhost:9000" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = BackendS3 }},
		{"unknown catalog", func(c *Config) { c.Catalog.Backend = "etcd" }},
		{"dynamo without table", func(c *Config) { c.Catalog.Backend = CatalogDynamo }},
		{"metadata vector type", func(c *Config) { c.Segments.VectorType = string(model.SegmentTypeMetadata) }},
		{"negative max cached", func(c *Config) { c.Segments.MaxCached = -1 }},
		{"negative checkpoint", func(c *Config) { c.Segments.CheckpointEvery = -1 }},
		{"unknown compression", func(c *Config) { c.Segments.Compression = "brotli" }},
		{"unknown codec", func(c *Config) { c.Codec = "gob" }},
		{"unknown level", func(c *Config) { c.Log.Level = "loud" }},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			applyDefaults(&cfg)
			require.NoError(t, cfg.Validate())

			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(sampleYAML, dir)), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, cfg.Storage.Backend)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
}

func TestBlobStore(t *testing.T) {
	ctx := context.Background()

	cfg, err := LoadBytes(nil)
	require.NoError(t, err)
	store, err := cfg.BlobStore(ctx)
	require.NoError(t, err)
	assert.IsType(t, &blobstore.MemoryStore{}, store)

	cfg.Storage = StorageConfig{
		Backend:   BackendMinio,
		Endpoint:  "localhost:9000",
		Bucket:    "vecseg",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	}
	store, err = cfg.BlobStore(ctx)
	require.NoError(t, err)
	assert.IsType(t, &miniostore.Store{}, store)
}

func TestNewManager(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg, err := LoadBytes([]byte(fmt.Sprintf(sampleYAML, filepath.Join(dir, "data"))))
	require.NoError(t, err)

	m, err := cfg.NewManager(ctx)
	require.NoError(t, err)
	defer m.Close(ctx)

	assert.Equal(t, int64(1048576), m.Resources().MemoryLimit())

	col := model.Collection{ID: uuid.New(), Name: "cfg", Dimension: 2}
	segments, err := m.CreateCollection(ctx, col)
	require.NoError(t, err)

	var vec model.Segment
	for _, s := range segments {
		if s.Scope == model.ScopeVector {
			vec = s
		}
	}
	assert.Equal(t, model.SegmentTypeFlat, vec.Type)
	assert.Equal(t, "cosine", vec.Config["hnsw:space"])

	// allow_reset is honored
	require.NoError(t, m.Reset(ctx))
	cols, err := m.Collections(ctx)
	require.NoError(t, err)
	assert.Empty(t, cols)
}
