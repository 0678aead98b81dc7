package vecseg

import (
	"log/slog"
	"maps"

	"github.com/hupe1980/vecseg/catalog"
	"github.com/hupe1980/vecseg/internal/codec"
	"github.com/hupe1980/vecseg/internal/compress"
	"github.com/hupe1980/vecseg/internal/resource"
	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
)

// Codec encodes descriptors, journal batches and snapshots.
type Codec = codec.Codec

// Built-in codecs.
var (
	CodecJSON   Codec = codec.JSON{}
	CodecGoJSON Codec = codec.GoJSON{}
)

// Compression selects the snapshot compression.
type Compression = compress.Type

// Snapshot compressions.
const (
	CompressionNone = compress.None
	CompressionLZ4  = compress.LZ4
	CompressionZSTD = compress.ZSTD
)

// ResourceConfig bounds construction concurrency, segment memory and
// snapshot IO.
type ResourceConfig = resource.Config

// DefaultCheckpointEvery is the number of journaled batches after which a
// segment writes a snapshot.
const DefaultCheckpointEvery = 64

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	catalog          catalog.Catalog
	codec            Codec
	compression      Compression
	resources        ResourceConfig
	allowReset       bool
	maxCached        int
	vectorType       model.SegmentType
	vectorConfig     map[string]any
	checkpointEvery  int
	factories        map[model.SegmentType]segment.Factory
}

// Option configures a Manager.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vecseg.NewJSONLogger(slog.LevelInfo)
//	m, _ := vecseg.New(store, vecseg.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecseg.BasicMetricsCollector{}
//	m, _ := vecseg.New(store, vecseg.WithMetricsCollector(metrics))
//	// ... use m ...
//	stats := metrics.GetStats()
//	fmt.Printf("Constructions: %d, cache hits: %d\n", stats.ConstructCount, stats.CacheHits)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithCatalog stores descriptors in c instead of a catalog.BlobCatalog on
// the manager's blob store, e.g. a DynamoDB table (catalog/dynamo).
func WithCatalog(c catalog.Catalog) Option {
	return func(o *options) {
		o.catalog = c
	}
}

// WithCodec configures the codec used for descriptors, journal batches and
// snapshots. If nil is passed, the go-json codec is used.
func WithCodec(c Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression configures snapshot compression. Defaults to zstd.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithResourceConfig bounds concurrent constructions, total segment memory
// and snapshot IO throughput.
func WithResourceConfig(cfg ResourceConfig) Option {
	return func(o *options) {
		o.resources = cfg
	}
}

// WithMaxConcurrentConstructions caps concurrent segment constructions
// across all segments.
func WithMaxConcurrentConstructions(n int) Option {
	return func(o *options) {
		o.resources.MaxConcurrentConstructions = int64(n)
	}
}

// WithAllowReset enables Reset. Reset destroys every collection and is
// meant for tests.
func WithAllowReset(allow bool) Option {
	return func(o *options) {
		o.allowReset = allow
	}
}

// WithMaxCachedInstances bounds the number of live instances. The least
// recently used instance is flushed and closed when the bound is exceeded;
// the next access reconstructs it from storage. Zero means unbounded.
func WithMaxCachedInstances(n int) Option {
	return func(o *options) {
		o.maxCached = max(n, 0)
	}
}

// WithDefaultVectorType selects the vector segment type provisioned by
// CreateCollection, with its descriptor config (e.g. "hnsw:space",
// "hnsw:M"). Defaults to model.SegmentTypeHNSW.
func WithDefaultVectorType(t model.SegmentType, config map[string]any) Option {
	return func(o *options) {
		o.vectorType = t
		o.vectorConfig = maps.Clone(config)
	}
}

// WithCheckpointEvery makes segments snapshot after n journaled batches.
// Zero disables automatic checkpoints; Close still flushes.
func WithCheckpointEvery(n int) Option {
	return func(o *options) {
		o.checkpointEvery = max(n, 0)
	}
}

// WithSegmentFactory registers an additional segment type, or replaces the
// factory of a built-in one.
func WithSegmentFactory(t model.SegmentType, f segment.Factory) Option {
	return func(o *options) {
		if o.factories == nil {
			o.factories = make(map[model.SegmentType]segment.Factory)
		}
		o.factories[t] = f
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		codec:            codec.Default,
		compression:      compress.ZSTD,
		resources:        resource.DefaultConfig(),
		vectorType:       model.SegmentTypeHNSW,
		checkpointEvery:  DefaultCheckpointEvery,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
