package config

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/vecseg"
	"github.com/hupe1980/vecseg/blobstore"
	miniostore "github.com/hupe1980/vecseg/blobstore/minio"
	s3store "github.com/hupe1980/vecseg/blobstore/s3"
	"github.com/hupe1980/vecseg/catalog"
	"github.com/hupe1980/vecseg/catalog/dynamo"
	"github.com/hupe1980/vecseg/internal/codec"
	"github.com/hupe1980/vecseg/internal/compress"
	"github.com/hupe1980/vecseg/model"
)

// BlobStore builds the configured blob store.
func (c *Config) BlobStore(ctx context.Context) (blobstore.BlobStore, error) {
	s := c.Storage
	switch s.Backend {
	case BackendMemory:
		return blobstore.NewMemoryStore(), nil
	case BackendLocal:
		if err := os.MkdirAll(s.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		return blobstore.NewLocalStore(s.Path), nil
	case BackendMinio:
		client, err := minio.New(s.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(s.AccessKey, s.SecretKey, ""),
			Secure: s.UseSSL,
			Region: s.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		return miniostore.NewStore(client, s.Bucket, s.Prefix), nil
	case BackendS3:
		opts := []s3store.Option{s3store.WithPrefix(s.Prefix)}
		if s.Region != "" {
			opts = append(opts, s3store.WithRegion(s.Region))
		}
		if s.Endpoint != "" {
			opts = append(opts, s3store.WithEndpoint(s.Endpoint, s.PathStyle))
		}
		store, err := s3store.New(ctx, s.Bucket, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, s.Backend)
	}
}

// DescriptorCatalog builds the configured catalog. It returns nil for the
// blob backend, which the Manager creates on its own store.
func (c *Config) DescriptorCatalog(ctx context.Context) (catalog.Catalog, error) {
	switch c.Catalog.Backend {
	case CatalogBlob:
		return nil, nil
	case CatalogDynamo:
		var loadOpts []func(*awsconfig.LoadOptions) error
		if c.Catalog.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(c.Catalog.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if c.Catalog.Endpoint != "" {
				o.BaseEndpoint = aws.String(c.Catalog.Endpoint)
			}
		})
		cd, _ := codec.ByName(c.Codec)
		return dynamo.New(client, c.Catalog.Table, cd), nil
	default:
		return nil, fmt.Errorf("%w: unknown catalog backend %q", ErrInvalidConfig, c.Catalog.Backend)
	}
}

// Options translates the configuration into Manager options. The catalog
// is not included; see DescriptorCatalog.
func (c *Config) Options() ([]vecseg.Option, error) {
	cd, ok := codec.ByName(c.Codec)
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", ErrInvalidConfig, c.Codec)
	}
	comp, err := compress.ParseType(c.Segments.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	level, err := c.Log.level()
	if err != nil {
		return nil, err
	}

	logger := vecseg.NewTextLogger(level)
	if c.Log.Format == "json" {
		logger = vecseg.NewJSONLogger(level)
	}

	res := vecseg.ResourceConfig{
		MaxConcurrentConstructions: c.Resources.MaxConcurrentConstructions,
		MemoryLimitBytes:           c.Resources.MemoryLimitBytes,
		IOLimitBytesPerSec:         c.Resources.IOLimitBytesPerSec,
	}

	return []vecseg.Option{
		vecseg.WithLogger(logger),
		vecseg.WithCodec(cd),
		vecseg.WithCompression(comp),
		vecseg.WithResourceConfig(res),
		vecseg.WithMaxCachedInstances(c.Segments.MaxCached),
		vecseg.WithCheckpointEvery(c.checkpointEvery()),
		vecseg.WithAllowReset(c.Segments.AllowReset),
		vecseg.WithDefaultVectorType(model.SegmentType(c.Segments.VectorType), c.Segments.Vector),
	}, nil
}

func (c *Config) checkpointEvery() int {
	if c.Segments.CheckpointEvery == 0 {
		return vecseg.DefaultCheckpointEvery
	}
	return c.Segments.CheckpointEvery
}

// NewManager builds the blob store, the catalog and a Manager from the
// configuration. Extra options are applied last.
func (c *Config) NewManager(ctx context.Context, extra ...vecseg.Option) (*vecseg.Manager, error) {
	store, err := c.BlobStore(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}
	cat, err := c.DescriptorCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if cat != nil {
		opts = append(opts, vecseg.WithCatalog(cat))
	}
	return vecseg.New(store, append(opts, extra...)...)
}
