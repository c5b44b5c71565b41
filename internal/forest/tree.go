package forest

import (
	"math"
	"math/rand/v2"
	"sort"
)

// Node is one node of a fitted tree. Leaves have Feature == -1 and carry the
// class distribution of their training samples in Value.
type Node struct {
	Feature   int
	Threshold float64
	Left      int32
	Right     int32
	Value     []float64
}

// Tree is a fitted CART classification tree stored as a flat node slice;
// node 0 is the root.
type Tree struct {
	Nodes []Node
}

// leaf returns the class distribution reached by row.
func (t *Tree) leaf(row []float64) []float64 {
	n := &t.Nodes[0]
	for n.Feature >= 0 {
		if row[n.Feature] <= n.Threshold {
			n = &t.Nodes[n.Left]
		} else {
			n = &t.Nodes[n.Right]
		}
	}
	return n.Value
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int32) int
	walk = func(i int32) int {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

// builder grows one tree with Gini splits.
type builder struct {
	rows       [][]float64
	y          []int
	nClasses   int
	cfg        Config
	rng        *rand.Rand
	nodes      []Node
	importance []float64
	pairs      []valueIndex
}

type valueIndex struct {
	v float64
	i int
}

type split struct {
	feature   int
	threshold float64
	impurity  float64
}

func newBuilder(rows [][]float64, y []int, nClasses int, cfg Config, rng *rand.Rand) *builder {
	return &builder{
		rows:       rows,
		y:          y,
		nClasses:   nClasses,
		cfg:        cfg,
		rng:        rng,
		importance: make([]float64, len(rows[0])),
		pairs:      make([]valueIndex, 0, len(y)),
	}
}

func (b *builder) grow(idx []int) *Tree {
	b.build(idx, 0)
	return &Tree{Nodes: b.nodes}
}

func (b *builder) build(idx []int, depth int) int32 {
	id := int32(len(b.nodes))
	b.nodes = append(b.nodes, Node{Feature: -1})

	counts := b.classCounts(idx)
	n := len(idx)
	impurity := gini(counts, n)

	if impurity == 0 ||
		n < b.cfg.MinSamplesSplit ||
		n < 2*b.cfg.MinSamplesLeaf ||
		(b.cfg.MaxDepth > 0 && depth >= b.cfg.MaxDepth) {
		b.nodes[id].Value = distribution(counts, n)
		return id
	}

	s, ok := b.bestSplit(idx)
	if !ok {
		b.nodes[id].Value = distribution(counts, n)
		return id
	}

	// Partition idx in place: left holds rows with value <= threshold.
	l := 0
	for r := 0; r < n; r++ {
		if b.rows[idx[r]][s.feature] <= s.threshold {
			idx[l], idx[r] = idx[r], idx[l]
			l++
		}
	}
	b.importance[s.feature] += float64(n)*impurity - float64(n)*s.impurity

	left := b.build(idx[:l], depth+1)
	right := b.build(idx[l:], depth+1)
	b.nodes[id] = Node{Feature: s.feature, Threshold: s.threshold, Left: left, Right: right}
	return id
}

// bestSplit searches randomly ordered features until MaxFeatures
// non-constant ones have been examined. Constant features do not count, so
// the search only fails when every feature is constant over idx.
func (b *builder) bestSplit(idx []int) (split, bool) {
	n := len(idx)
	best := split{impurity: 2}
	found := false
	visited := 0

	left := make([]int, b.nClasses)
	right := make([]int, b.nClasses)

	for _, f := range b.rng.Perm(len(b.importance)) {
		if visited >= b.cfg.MaxFeatures {
			break
		}

		b.pairs = b.pairs[:0]
		for _, i := range idx {
			b.pairs = append(b.pairs, valueIndex{v: b.rows[i][f], i: i})
		}
		sort.Slice(b.pairs, func(p, q int) bool { return b.pairs[p].v < b.pairs[q].v })
		if b.pairs[0].v == b.pairs[n-1].v {
			continue
		}
		visited++

		clear(left)
		clear(right)
		for _, p := range b.pairs {
			right[b.y[p.i]]++
		}

		for k := 0; k < n-1; k++ {
			c := b.y[b.pairs[k].i]
			left[c]++
			right[c]--

			if b.pairs[k].v == b.pairs[k+1].v {
				continue
			}
			nl, nr := k+1, n-k-1
			if nl < b.cfg.MinSamplesLeaf || nr < b.cfg.MinSamplesLeaf {
				continue
			}

			impurity := (float64(nl)*gini(left, nl) + float64(nr)*gini(right, nr)) / float64(n)
			if impurity < best.impurity {
				best = split{feature: f, threshold: midpoint(b.pairs[k].v, b.pairs[k+1].v), impurity: impurity}
				found = true
			}
		}
	}
	return best, found
}

// midpoint returns a threshold t with lo <= t < hi for lo < hi. Halving
// first keeps the result finite when hi-lo overflows.
func midpoint(lo, hi float64) float64 {
	t := lo + (hi-lo)/2
	if math.IsInf(t, 0) {
		t = lo/2 + hi/2
	}
	if t >= hi {
		t = lo
	}
	return t
}

func (b *builder) classCounts(idx []int) []int {
	counts := make([]int, b.nClasses)
	for _, i := range idx {
		counts[b.y[i]]++
	}
	return counts
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		sum += p * p
	}
	return 1 - sum
}

func distribution(counts []int, n int) []float64 {
	d := make([]float64, len(counts))
	for i, c := range counts {
		d[i] = float64(c) / float64(n)
	}
	return d
}
