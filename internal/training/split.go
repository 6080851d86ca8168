package training

import (
	"fmt"
	"math"
	"math/rand"
)

// Split partitions row indices 0..n-1 into train and test sets. The
// permutation comes from a generator seeded with seed, so the same n, ratio
// and seed always give the same partition. The first ceil(n*testRatio)
// permuted indices form the test set; each side keeps at least one row.
func Split(n int, testRatio float64, seed int64) (train, test []int, err error) {
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: need at least 2 rows to split, got %d", ErrInsufficientData, n)
	}
	if !(testRatio > 0 && testRatio < 1) {
		return nil, nil, fmt.Errorf("training: test ratio must be in (0, 1), got %v", testRatio)
	}

	nTest := int(math.Ceil(float64(n) * testRatio))
	nTest = max(1, min(nTest, n-1))

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}
