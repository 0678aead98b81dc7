// Package config builds a vecseg Manager from YAML and environment
// variables.
//
// Example config.yaml:
//
//	storage:
//	  backend: minio
//	  endpoint: localhost:9000
//	  bucket: vecseg
//	  access_key: minioadmin
//	  secret_key: minioadmin
//	catalog:
//	  backend: dynamo
//	  table: vecseg-catalog
//	segments:
//	  vector_type: vector/hnsw
//	  vector:
//	    "hnsw:space": cosine
//	  max_cached: 1024
//	log:
//	  level: info
//	  format: json
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hupe1980/vecseg/internal/codec"
	"github.com/hupe1980/vecseg/internal/compress"
	"github.com/hupe1980/vecseg/model"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendMinio  = "minio"
	BackendS3     = "s3"
)

// Catalog backends.
const (
	CatalogBlob   = "blob"
	CatalogDynamo = "dynamo"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the file and environment configuration of a Manager.
type Config struct {
	Storage   StorageConfig   `koanf:"storage"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Segments  SegmentsConfig  `koanf:"segments"`
	Resources ResourcesConfig `koanf:"resources"`
	Log       LogConfig       `koanf:"log"`
	// Codec is "go-json" or "json".
	Codec string `koanf:"codec"`
}

// StorageConfig selects the blob store holding segment state.
type StorageConfig struct {
	Backend string `koanf:"backend"`
	// Path is the root directory of the local backend.
	Path      string `koanf:"path"`
	Bucket    string `koanf:"bucket"`
	Prefix    string `koanf:"prefix"`
	Endpoint  string `koanf:"endpoint"`
	Region    string `koanf:"region"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	UseSSL    bool   `koanf:"use_ssl"`
	PathStyle bool   `koanf:"path_style"`
}

// CatalogConfig selects where descriptors live. The blob backend uses the
// storage blob store.
type CatalogConfig struct {
	Backend  string `koanf:"backend"`
	Table    string `koanf:"table"`
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"`
}

// SegmentsConfig tunes segment provisioning and the instance cache.
type SegmentsConfig struct {
	VectorType string         `koanf:"vector_type"`
	Vector     map[string]any `koanf:"vector"`
	MaxCached  int            `koanf:"max_cached"`
	// CheckpointEvery of zero uses vecseg.DefaultCheckpointEvery.
	CheckpointEvery int    `koanf:"checkpoint_every"`
	Compression     string `koanf:"compression"`
	AllowReset      bool   `koanf:"allow_reset"`
}

// ResourcesConfig mirrors vecseg.ResourceConfig.
type ResourcesConfig struct {
	MaxConcurrentConstructions int64 `koanf:"max_concurrent_constructions"`
	MemoryLimitBytes           int64 `koanf:"memory_limit_bytes"`
	IOLimitBytesPerSec         int64 `koanf:"io_limit_bytes_per_sec"`
}

// LogConfig configures the Manager logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `koanf:"level"`
	// Format is text or json.
	Format string `koanf:"format"`
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendMemory
	}
	if cfg.Catalog.Backend == "" {
		cfg.Catalog.Backend = CatalogBlob
	}
	if cfg.Catalog.Region == "" {
		cfg.Catalog.Region = cfg.Storage.Region
	}
	if cfg.Segments.VectorType == "" {
		cfg.Segments.VectorType = string(model.SegmentTypeHNSW)
	}
	if cfg.Segments.Compression == "" {
		cfg.Segments.Compression = "zstd"
	}
	if cfg.Codec == "" {
		cfg.Codec = codec.Default.Name()
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for the local backend", ErrInvalidConfig)
		}
	case BackendMinio:
		if c.Storage.Endpoint == "" {
			return fmt.Errorf("%w: storage.endpoint is required for the minio backend", ErrInvalidConfig)
		}
		if c.Storage.Bucket == "" {
			return fmt.Errorf("%w: storage.bucket is required", ErrInvalidConfig)
		}
	case BackendS3:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("%w: storage.bucket is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}

	switch c.Catalog.Backend {
	case CatalogBlob:
	case CatalogDynamo:
		if c.Catalog.Table == "" {
			return fmt.Errorf("%w: catalog.table is required for the dynamo backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown catalog backend %q", ErrInvalidConfig, c.Catalog.Backend)
	}

	if model.SegmentType(c.Segments.VectorType).Scope() != model.ScopeVector {
		return fmt.Errorf("%w: %q is not a vector segment type", ErrInvalidConfig, c.Segments.VectorType)
	}
	if c.Segments.MaxCached < 0 {
		return fmt.Errorf("%w: segments.max_cached must not be negative", ErrInvalidConfig)
	}
	if c.Segments.CheckpointEvery < 0 {
		return fmt.Errorf("%w: segments.checkpoint_every must not be negative", ErrInvalidConfig)
	}
	if _, err := compress.ParseType(c.Segments.Compression); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, ok := codec.ByName(c.Codec); !ok {
		return fmt.Errorf("%w: unknown codec %q", ErrInvalidConfig, c.Codec)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalidConfig, l.Level)
	}
	return lvl, nil
}
