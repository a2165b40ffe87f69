package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Split holds the disjoint train and test partitions of a dataset
type Split struct {
	Train *Dataset
	Test  *Dataset
}

// StratifiedSplit partitions ds so that every class keeps its share of rows in both
// partitions. The test partition has ceil(testSize*n) rows. The same seed always
// yields the same partitions.
func StratifiedSplit(ds *Dataset, testSize float64, seed int64) (*Split, error) {
	if !(testSize > 0 && testSize < 1) {
		return nil, fmt.Errorf("test size must be in (0, 1), got %v", testSize)
	}

	n := ds.Len()
	classes := ds.Classes()
	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest < len(classes) || nTrain < len(classes) {
		return nil, fmt.Errorf("test size %v leaves %d test and %d train rows for %d classes", testSize, nTest, nTrain, len(classes))
	}

	byClass := make(map[int][]int, len(classes))
	for i, l := range ds.Labels {
		byClass[l] = append(byClass[l], i)
	}

	alloc := allocate(classes, byClass, nTest, n)

	rng := rand.New(rand.NewSource(seed))
	var trainIdx, testIdx []int
	for _, c := range classes {
		idx := append([]int{}, byClass[c]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		testIdx = append(testIdx, idx[:alloc[c]]...)
		trainIdx = append(trainIdx, idx[alloc[c]:]...)
	}
	rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	rng.Shuffle(len(testIdx), func(i, j int) { testIdx[i], testIdx[j] = testIdx[j], testIdx[i] })

	return &Split{
		Train: ds.Subset(trainIdx),
		Test:  ds.Subset(testIdx),
	}, nil
}

// allocate distributes nTest rows over classes in proportion to their support using
// largest-remainder rounding. Every class keeps at least one row on each side.
func allocate(classes []int, byClass map[int][]int, nTest, n int) map[int]int {
	type share struct {
		class     int
		remainder float64
	}

	alloc := make(map[int]int, len(classes))
	shares := make([]share, 0, len(classes))
	assigned := 0
	for _, c := range classes {
		exact := float64(nTest) * float64(len(byClass[c])) / float64(n)
		alloc[c] = int(math.Floor(exact))
		assigned += alloc[c]
		shares = append(shares, share{class: c, remainder: exact - math.Floor(exact)})
	}

	// Ties go to the lower class index
	sort.SliceStable(shares, func(i, j int) bool {
		return shares[i].remainder > shares[j].remainder
	})
	for i := 0; assigned < nTest; i = (i + 1) % len(shares) {
		c := shares[i].class
		if alloc[c] < len(byClass[c])-1 {
			alloc[c]++
			assigned++
		}
	}

	for _, c := range classes {
		if alloc[c] == 0 && len(byClass[c]) > 1 {
			// Borrow from the largest allocation so the class is represented in test
			donor := classes[0]
			for _, d := range classes {
				if alloc[d] > alloc[donor] {
					donor = d
				}
			}
			if alloc[donor] > 1 {
				alloc[donor]--
				alloc[c]++
			}
		}
	}
	return alloc
}
