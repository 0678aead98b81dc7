package vector

import (
	"fmt"

	"github.com/hupe1980/vecseg/distance"
	"github.com/hupe1980/vecseg/model"
)

// Descriptor config keys.
const (
	ConfigSpace          = "hnsw:space"
	ConfigM              = "hnsw:M"
	ConfigEFConstruction = "hnsw:construction_ef"
	ConfigEFSearch       = "hnsw:search_ef"
)

// Config holds the tunables read from a segment descriptor.
type Config struct {
	// Metric is the default distance function.
	Metric distance.Metric

	// M is the number of links created per node and layer. Layer 0 keeps
	// up to 2*M links.
	M int

	// EFConstruction is the candidate list size used while inserting.
	EFConstruction int

	// EFSearch is the minimum candidate list size used while searching.
	EFSearch int
}

// DefaultConfig holds the tunables used for keys a descriptor leaves unset.
var DefaultConfig = Config{
	Metric:         distance.MetricL2,
	M:              16,
	EFConstruction: 100,
	EFSearch:       100,
}

// ParseConfig reads Config from the descriptor's free-form config map.
func ParseConfig(seg model.Segment) (Config, error) {
	cfg := DefaultConfig

	space, err := seg.ConfigString(ConfigSpace, "")
	if err != nil {
		return Config{}, err
	}
	if cfg.Metric, err = distance.ParseMetric(space); err != nil {
		return Config{}, fmt.Errorf("%w: %v", model.ErrInvalidArgument, err)
	}

	if cfg.M, err = seg.ConfigInt(ConfigM, cfg.M); err != nil {
		return Config{}, err
	}
	if cfg.EFConstruction, err = seg.ConfigInt(ConfigEFConstruction, cfg.EFConstruction); err != nil {
		return Config{}, err
	}
	if cfg.EFSearch, err = seg.ConfigInt(ConfigEFSearch, cfg.EFSearch); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the ranges of the graph parameters.
func (c Config) Validate() error {
	if c.M < 2 {
		return fmt.Errorf("%w: %s must be at least 2, got %d", model.ErrInvalidArgument, ConfigM, c.M)
	}
	if c.EFConstruction < 1 {
		return fmt.Errorf("%w: %s must be positive, got %d", model.ErrInvalidArgument, ConfigEFConstruction, c.EFConstruction)
	}
	if c.EFSearch < 1 {
		return fmt.Errorf("%w: %s must be positive, got %d", model.ErrInvalidArgument, ConfigEFSearch, c.EFSearch)
	}
	return nil
}
