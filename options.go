package vannoy

import (
	"fmt"

	"github.com/xDarkicex/vannoy/internal/metric"
)

// Option represents a database configuration option
type Option func(*Config) error

// WithPath sets the on-disk directory backing the database. An empty path
// (the default) opens a process-local, non-persistent environment, which
// is what most tests want.
func WithPath(path string) Option {
	return func(c *Config) error {
		c.Path = path
		return nil
	}
}

// WithMetrics enables or disables Prometheus metrics collection
func WithMetrics(enabled bool) Option {
	return func(c *Config) error {
		c.MetricsEnabled = enabled
		return nil
	}
}

// WithMaxIndexes sets the maximum number of index handles the database
// will hand out
func WithMaxIndexes(max int) Option {
	return func(c *Config) error {
		if max <= 0 {
			return fmt.Errorf("max indexes must be positive")
		}
		c.MaxIndexes = max
		return nil
	}
}

// IndexOption represents an index configuration option
type IndexOption func(*IndexConfig) error

// WithDimensions sets the vector dimensionality for the index. Required.
func WithDimensions(dim int) IndexOption {
	return func(c *IndexConfig) error {
		if dim <= 0 {
			return fmt.Errorf("dimensions must be positive")
		}
		c.Dimensions = dim
		return nil
	}
}

// WithDistance selects the distance metric by name: one of "angular",
// "euclidean", "manhattan", "dot-product", "hamming", or the
// binary-quantized variants "binary-quantized-angular",
// "binary-quantized-euclidean", "binary-quantized-manhattan". Defaults
// to "angular".
func WithDistance(name string) IndexOption {
	return func(c *IndexConfig) error {
		if _, err := metric.Lookup(name); err != nil {
			return err
		}
		c.Distance = name
		return nil
	}
}

// BuildOption configures one Build call
type BuildOption func(*buildConfig)

// WithNTrees fixes the tree count; unset, Build chooses one from the item
// count and dimensionality.
func WithNTrees(n int) BuildOption {
	return func(c *buildConfig) { c.nTrees = n }
}

// WithSplitAfter sets the maximum descendants per leaf cluster; unset, it
// defaults to the index's dimensionality.
func WithSplitAfter(n int) BuildOption {
	return func(c *buildConfig) { c.splitAfter = n }
}

// WithAvailableMemory soft-bounds how many item bytes one build pass
// holds resident at once.
func WithAvailableMemory(bytes int64) BuildOption {
	return func(c *buildConfig) { c.memBudget = bytes }
}

// WithParallelism sets the worker count building trees concurrently;
// n <= 0 means use every core.
func WithParallelism(n int) BuildOption {
	return func(c *buildConfig) { c.parallelism = n }
}

// WithSeed fixes the build's random seed. Identical seeds over identical
// persisted state produce identical forests.
func WithSeed(seed int64) BuildOption {
	return func(c *buildConfig) { c.seed = &seed }
}

// WithCancel installs a cooperative cancellation probe, polled between
// tree steps; returning true aborts the build. The surrounding context's
// cancellation is honored regardless.
func WithCancel(fn func() bool) BuildOption {
	return func(c *buildConfig) { c.cancel = fn }
}

type buildConfig struct {
	nTrees      int
	splitAfter  int
	memBudget   int64
	parallelism int
	seed        *int64
	cancel      func() bool
}
