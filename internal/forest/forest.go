// Package forest implements a random forest of CART classification trees
// over string labels.
package forest

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Config holds the ensemble hyperparameters.
type Config struct {
	// NEstimators is the number of trees.
	NEstimators int
	// MaxFeatures is the number of features drawn at each split; 0 means floor(sqrt(features)).
	MaxFeatures int
	// MaxDepth limits tree depth; 0 grows trees until leaves are pure.
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Bootstrap       bool

	// Seed fixes the random streams when Seeded is true. Unseeded fits draw
	// a fresh seed and are not reproducible.
	Seed   uint64
	Seeded bool

	// Workers bounds how many trees are grown concurrently; 0 means NumCPU.
	// The fitted forest does not depend on it.
	Workers int
}

// DefaultConfig returns a 100-tree bootstrap forest.
func DefaultConfig() Config {
	return Config{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
	}
}

// normalize validates c against the feature count and fills defaults.
func (c Config) normalize(nFeatures int) (Config, error) {
	if c.NEstimators < 1 {
		return c, fmt.Errorf("%w: n_estimators must be positive, got %d", ErrInvalidConfig, c.NEstimators)
	}
	if c.MaxFeatures < 0 {
		return c, fmt.Errorf("%w: max_features must not be negative, got %d", ErrInvalidConfig, c.MaxFeatures)
	}
	if c.MaxDepth < 0 {
		return c, fmt.Errorf("%w: max_depth must not be negative, got %d", ErrInvalidConfig, c.MaxDepth)
	}
	if c.MinSamplesSplit == 0 {
		c.MinSamplesSplit = 2
	}
	if c.MinSamplesSplit < 2 {
		return c, fmt.Errorf("%w: min_samples_split must be at least 2, got %d", ErrInvalidConfig, c.MinSamplesSplit)
	}
	if c.MinSamplesLeaf == 0 {
		c.MinSamplesLeaf = 1
	}
	if c.MinSamplesLeaf < 1 {
		return c, fmt.Errorf("%w: min_samples_leaf must be at least 1, got %d", ErrInvalidConfig, c.MinSamplesLeaf)
	}
	if c.MaxFeatures == 0 {
		c.MaxFeatures = max(1, int(math.Sqrt(float64(nFeatures))))
	}
	c.MaxFeatures = min(c.MaxFeatures, nFeatures)
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	return c, nil
}

// Forest is a fitted random forest. All fields are exported so the model
// can be serialized.
type Forest struct {
	Classes   []string
	NFeatures int
	Trees     []*Tree
	Config    Config

	// OOBScore is the out-of-bag accuracy, NaN when no sample was ever left
	// out of a bootstrap draw or bootstrapping is disabled.
	OOBScore float64

	// Importances is the normalized mean decrease in Gini impurity per feature.
	Importances []float64
}

// Fit grows a forest on the rows of x labeled by y.
func Fit(x *mat.Dense, y []string, cfg Config) (*Forest, error) {
	if x == nil || x.IsEmpty() {
		return nil, ErrNoSamples
	}
	nRows, nFeatures := x.Dims()
	if nRows == 0 {
		return nil, ErrNoSamples
	}
	if nRows != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrShapeMismatch, nRows, len(y))
	}

	classes, yIdx := encodeLabels(y)
	if len(classes) < 2 {
		return nil, fmt.Errorf("%w: only %q present", ErrSingleClass, classes)
	}

	cfg, err := cfg.normalize(nFeatures)
	if err != nil {
		return nil, err
	}

	rows := make([][]float64, nRows)
	for i := range rows {
		rows[i] = x.RawRowView(i)
	}

	seed := cfg.Seed
	if !cfg.Seeded {
		seed = rand.Uint64()
	}
	master := rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15))
	seeds := make([]uint64, cfg.NEstimators)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	trees := make([]*Tree, cfg.NEstimators)
	importances := make([][]float64, cfg.NEstimators)
	outOfBag := make([][]bool, cfg.NEstimators)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(cfg.Workers, cfg.NEstimators); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				trees[i], importances[i], outOfBag[i] = growTree(rows, yIdx, len(classes), cfg, seeds[i], uint64(i))
			}
		}()
	}
	for i := range trees {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	f := &Forest{
		Classes:   classes,
		NFeatures: nFeatures,
		Trees:     trees,
		Config:    cfg,
	}
	f.Importances = meanImportances(importances, nFeatures)
	f.OOBScore = f.oobScore(rows, yIdx, outOfBag)
	return f, nil
}

func growTree(rows [][]float64, y []int, nClasses int, cfg Config, seed, stream uint64) (*Tree, []float64, []bool) {
	rng := rand.New(rand.NewPCG(seed, stream))
	n := len(rows)

	idx := make([]int, n)
	var oob []bool
	if cfg.Bootstrap {
		oob = make([]bool, n)
		for i := range oob {
			oob[i] = true
		}
		for i := range idx {
			idx[i] = rng.IntN(n)
			oob[idx[i]] = false
		}
	} else {
		for i := range idx {
			idx[i] = i
		}
	}

	b := newBuilder(rows, y, nClasses, cfg, rng)
	tree := b.grow(idx)
	return tree, b.importance, oob
}

// meanImportances normalizes each tree's impurity decreases, averages them
// and renormalizes so the result sums to one (or is all zero).
func meanImportances(perTree [][]float64, nFeatures int) []float64 {
	total := make([]float64, nFeatures)
	for _, imp := range perTree {
		sum := floats.Sum(imp)
		if sum <= 0 {
			continue
		}
		for j, v := range imp {
			total[j] += v / sum
		}
	}
	if sum := floats.Sum(total); sum > 0 {
		floats.Scale(1/sum, total)
	}
	return total
}

func (f *Forest) oobScore(rows [][]float64, y []int, outOfBag [][]bool) float64 {
	if !f.Config.Bootstrap {
		return math.NaN()
	}
	scored, correct := 0, 0
	proba := make([]float64, len(f.Classes))
	for i, row := range rows {
		clear(proba)
		votes := 0
		for t, tree := range f.Trees {
			if !outOfBag[t][i] {
				continue
			}
			floats.Add(proba, tree.leaf(row))
			votes++
		}
		if votes == 0 {
			continue
		}
		scored++
		if floats.MaxIdx(proba) == y[i] {
			correct++
		}
	}
	if scored == 0 {
		return math.NaN()
	}
	return float64(correct) / float64(scored)
}

// FeatureImportances returns a copy of the normalized impurity decreases.
func (f *Forest) FeatureImportances() []float64 {
	return append([]float64(nil), f.Importances...)
}

// PredictProba returns the mean class distribution of all trees for row,
// ordered like Classes.
func (f *Forest) PredictProba(row []float64) ([]float64, error) {
	if len(row) != f.NFeatures {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(row), f.NFeatures)
	}
	proba := make([]float64, len(f.Classes))
	for _, tree := range f.Trees {
		floats.Add(proba, tree.leaf(row))
	}
	floats.Scale(1/float64(len(f.Trees)), proba)
	return proba, nil
}

// Predict returns the most probable class for row. Ties go to the class
// that sorts first.
func (f *Forest) Predict(row []float64) (string, error) {
	proba, err := f.PredictProba(row)
	if err != nil {
		return "", err
	}
	return f.Classes[floats.MaxIdx(proba)], nil
}

// PredictBatch predicts every row of x.
func (f *Forest) PredictBatch(x mat.Matrix) ([]string, error) {
	r, c := x.Dims()
	if c != f.NFeatures {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, c, f.NFeatures)
	}
	out := make([]string, r)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, x)
		label, err := f.Predict(row)
		if err != nil {
			return nil, err
		}
		out[i] = label
	}
	return out, nil
}

// encodeLabels maps labels to indices into their sorted distinct values.
func encodeLabels(y []string) ([]string, []int) {
	seen := make(map[string]struct{})
	for _, label := range y {
		seen[label] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for label := range seen {
		classes = append(classes, label)
	}
	sort.Strings(classes)

	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	encoded := make([]int, len(y))
	for i, label := range y {
		encoded[i] = index[label]
	}
	return classes, encoded
}
