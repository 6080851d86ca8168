package forest

import (
	"cmp"
	"math"
	"math/rand"
	"slices"
)

const leaf = -1

// node is one entry of a tree's flat node table. Leaves have feature == leaf.
type node struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
}

// tree is a CART regression tree stored as a flat node table; nodes[0] is
// the root.
type tree struct {
	nodes []node
}

func (t *tree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.nodes[i]
		if n.feature == leaf {
			return n.value
		}
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

// builder grows one tree. importance accumulates the weighted impurity
// decrease of every split, indexed by feature.
type builder struct {
	X          [][]float64
	y          []float64
	cfg        Config
	rng        *rand.Rand
	features   []int
	importance []float64
	t          *tree
}

func newBuilder(X [][]float64, y []float64, cfg Config, rng *rand.Rand) *builder {
	width := len(X[0])
	features := make([]int, width)
	for i := range features {
		features[i] = i
	}
	return &builder{
		X:          X,
		y:          y,
		cfg:        cfg,
		rng:        rng,
		features:   features,
		importance: make([]float64, width),
		t:          &tree{},
	}
}

// grow builds the subtree over the sample rows idx and returns its node index.
func (b *builder) grow(idx []int, depth int) int {
	sum, sumSq := b.sums(idx)
	n := float64(len(idx))
	mean := sum / n
	sse := sumSq - sum*sum/n

	self := len(b.t.nodes)
	b.t.nodes = append(b.t.nodes, node{feature: leaf, value: mean})

	if len(idx) < b.cfg.MinSamplesSplit ||
		len(idx) < 2*b.cfg.MinSamplesLeaf ||
		(b.cfg.MaxDepth > 0 && depth >= b.cfg.MaxDepth) ||
		sse <= 1e-12*n {
		return self
	}

	s, ok := b.bestSplit(idx)
	if !ok {
		return self
	}

	b.importance[s.feature] += sse - s.sse

	leftIdx := make([]int, 0, s.nLeft)
	rightIdx := make([]int, 0, len(idx)-s.nLeft)
	for _, i := range idx {
		if b.X[i][s.feature] <= s.threshold {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}

	left := b.grow(leftIdx, depth+1)
	right := b.grow(rightIdx, depth+1)
	b.t.nodes[self] = node{feature: s.feature, threshold: s.threshold, left: left, right: right, value: mean}
	return self
}

func (b *builder) sums(idx []int) (sum, sumSq float64) {
	for _, i := range idx {
		v := b.y[i]
		sum += v
		sumSq += v * v
	}
	return sum, sumSq
}

type split struct {
	feature   int
	threshold float64
	sse       float64
	nLeft     int
}

// candidates returns the features examined at one node: all of them, or a
// random subset of MaxFeatures drawn from the tree's generator.
func (b *builder) candidates() []int {
	k := b.cfg.MaxFeatures
	if k <= 0 || k >= len(b.features) {
		return b.features
	}
	perm := b.rng.Perm(len(b.features))
	return perm[:k]
}

// bestSplit finds the threshold minimizing the summed squared error of the
// two children. Thresholds are midpoints between adjacent distinct values.
func (b *builder) bestSplit(idx []int) (split, bool) {
	best := split{sse: math.Inf(1)}
	found := false

	sorted := make([]int, len(idx))
	total := len(idx)
	minLeaf := b.cfg.MinSamplesLeaf
	totalSum, totalSq := b.sums(idx)

	for _, f := range b.candidates() {
		copy(sorted, idx)
		slices.SortFunc(sorted, func(i, j int) int {
			if c := cmp.Compare(b.X[i][f], b.X[j][f]); c != 0 {
				return c
			}
			return cmp.Compare(i, j)
		})

		var leftSum, leftSq float64
		for pos := 0; pos < total-1; pos++ {
			v := b.y[sorted[pos]]
			leftSum += v
			leftSq += v * v

			nLeft := pos + 1
			nRight := total - nLeft
			if nLeft < minLeaf || nRight < minLeaf {
				continue
			}
			cur, next := b.X[sorted[pos]][f], b.X[sorted[pos+1]][f]
			if cur == next {
				continue
			}

			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nLeft)) +
				(rightSq - rightSum*rightSum/float64(nRight))

			if sse < best.sse {
				threshold := cur + (next-cur)/2
				// Guard against the midpoint rounding onto next.
				if threshold >= next {
					threshold = cur
				}
				best = split{feature: f, threshold: threshold, sse: sse, nLeft: nLeft}
				found = true
			}
		}
	}
	return best, found
}
