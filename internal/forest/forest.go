// Package forest implements a random forest regressor: bootstrap-sampled
// CART trees split by variance reduction, predicting the mean of the trees.
//
// Tree i draws all of its randomness from a generator seeded with
// Config.Seed+i, so a fitted forest depends only on the data and the seed,
// never on how many trees were grown in parallel.
package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

var (
	ErrEmptyInput  = errors.New("forest: empty training set")
	ErrShape       = errors.New("forest: inconsistent input shape")
	ErrNonFinite   = errors.New("forest: non-finite input value")
	ErrInvalidConf = errors.New("forest: invalid configuration")
)

// Config holds the forest hyperparameters.
type Config struct {
	Estimators      int   // number of trees
	Seed            int64 // base seed; tree i uses Seed+i
	MaxDepth        int   // 0 grows until leaves are pure
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int  // features tried per split; 0 means all
	Bootstrap       bool // sample rows with replacement per tree
	Workers         int  // trees fitted concurrently
}

// DefaultConfig mirrors the settings the price model was tuned with.
func DefaultConfig() Config {
	return Config{
		Estimators:      100,
		Seed:            42,
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     0,
		Bootstrap:       true,
		Workers:         1,
	}
}

func (c Config) validate() error {
	switch {
	case c.Estimators < 1:
		return fmt.Errorf("%w: estimators must be >= 1, got %d", ErrInvalidConf, c.Estimators)
	case c.MaxDepth < 0:
		return fmt.Errorf("%w: max depth must be >= 0, got %d", ErrInvalidConf, c.MaxDepth)
	case c.MinSamplesSplit < 2:
		return fmt.Errorf("%w: min samples split must be >= 2, got %d", ErrInvalidConf, c.MinSamplesSplit)
	case c.MinSamplesLeaf < 1:
		return fmt.Errorf("%w: min samples leaf must be >= 1, got %d", ErrInvalidConf, c.MinSamplesLeaf)
	case c.MaxFeatures < 0:
		return fmt.Errorf("%w: max features must be >= 0, got %d", ErrInvalidConf, c.MaxFeatures)
	}
	return nil
}

// Regressor is a fitted forest. It is immutable and safe for concurrent
// Predict calls.
type Regressor struct {
	cfg         Config
	width       int
	trees       []*tree
	importances []float64
}

// Fit grows cfg.Estimators trees on X (rows x features) and targets y.
func Fit(X [][]float64, y []float64, cfg Config) (*Regressor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return nil, ErrEmptyInput
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows but %d targets", ErrShape, len(X), len(y))
	}
	width := len(X[0])
	if width == 0 {
		return nil, fmt.Errorf("%w: rows have no features", ErrShape)
	}
	for i, row := range X {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(row), width)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: row %d feature %d", ErrNonFinite, i, j)
			}
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return nil, fmt.Errorf("%w: target %d", ErrNonFinite, i)
		}
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	r := &Regressor{
		cfg:   cfg,
		width: width,
		trees: make([]*tree, cfg.Estimators),
	}
	perTree := make([][]float64, cfg.Estimators)

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range cfg.Estimators {
		g.Go(func() error {
			t, imp := fitTree(X, y, cfg, cfg.Seed+int64(i))
			r.trees[i] = t
			perTree[i] = imp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.importances = averageImportances(perTree, width)
	return r, nil
}

func fitTree(X [][]float64, y []float64, cfg Config, seed int64) (*tree, []float64) {
	rng := rand.New(rand.NewSource(seed))
	n := len(X)

	sample := make([]int, n)
	for i := range sample {
		if cfg.Bootstrap {
			sample[i] = rng.Intn(n)
		} else {
			sample[i] = i
		}
	}

	b := newBuilder(X, y, cfg, rng)
	b.grow(sample, 0)
	return b.t, normalize(b.importance)
}

// averageImportances averages the per-tree normalized importances and
// renormalizes so the result sums to 1 (or is all zero for stump forests).
func averageImportances(perTree [][]float64, width int) []float64 {
	out := make([]float64, width)
	for _, imp := range perTree {
		for j, v := range imp {
			out[j] += v
		}
	}
	return normalize(out)
}

func normalize(v []float64) []float64 {
	var total float64
	for _, x := range v {
		total += x
	}
	out := make([]float64, len(v))
	if total <= 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / total
	}
	return out
}

// Predict returns one prediction per row of X.
func (r *Regressor) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = r.PredictRow(x)
	}
	return out
}

// PredictRow returns the mean prediction of all trees for one row. Rows
// shorter than the training width panic with an index error.
func (r *Regressor) PredictRow(x []float64) float64 {
	var sum float64
	for _, t := range r.trees {
		sum += t.predict(x)
	}
	return sum / float64(len(r.trees))
}

// FeatureImportances returns the normalized impurity decrease per input
// column, in column order.
func (r *Regressor) FeatureImportances() []float64 {
	out := make([]float64, len(r.importances))
	copy(out, r.importances)
	return out
}

// NumTrees returns the number of fitted trees.
func (r *Regressor) NumTrees() int {
	return len(r.trees)
}

// Width returns the number of input columns the forest was fitted on.
func (r *Regressor) Width() int {
	return r.width
}

// Config returns the hyperparameters used for fitting.
func (r *Regressor) Config() Config {
	return r.cfg
}
