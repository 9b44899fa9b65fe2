// Package binning assigns minimizers to ranks with a greedy longest-processing-time bin pack.
// K-mer frequencies are heavy tailed, so hashing minimizers to ranks would overload the few
// ranks that draw the hot minimizers; packing by descending load keeps the ranks level.
package binning

import (
	"container/heap"
	"fmt"
	"sort"
)

// rankLoad pairs a rank with the load assigned to it so far
type rankLoad struct {
	rank uint32
	load uint64
}

// loadHeap is a min-heap of rank loads, breaking ties on the lower rank so the result is deterministic
type loadHeap []rankLoad

func (h loadHeap) Len() int { return len(h) }
func (h loadHeap) Less(i, j int) bool {
	if h[i].load != h[j].load {
		return h[i].load < h[j].load
	}
	return h[i].rank < h[j].rank
}
func (h loadHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push is a method to add an element to the heap
func (h *loadHeap) Push(x interface{}) {
	*h = append(*h, x.(rankLoad))
}

// Pop is a method to remove an element from the heap
func (h *loadHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// RankMap is a function to build the minimizer to rank assignment from a globally reduced load
// histogram. Every rank runs this on the same histogram and the algorithm is deterministic, so
// the resulting map is identical everywhere without further communication.
func RankMap(hist []uint64, ranks int) ([]uint32, error) {
	if ranks < 1 {
		return nil, fmt.Errorf("cannot bin minimizers over %d ranks", ranks)
	}
	order := make([]int, len(hist))
	for i := range order {
		order[i] = i
	}
	// descending load; the stable sort keeps equal loads in minimizer order on every rank
	sort.SliceStable(order, func(a, b int) bool {
		return hist[order[a]] > hist[order[b]]
	})
	loads := make(loadHeap, ranks)
	for r := range loads {
		loads[r] = rankLoad{rank: uint32(r)}
	}
	heap.Init(&loads)
	out := make([]uint32, len(hist))
	for _, mzr := range order {
		least := heap.Pop(&loads).(rankLoad)
		out[mzr] = least.rank
		least.load += hist[mzr]
		heap.Push(&loads, least)
	}
	return out, nil
}

// Drift is a function to measure how far a histogram has moved from a previous one, as the L1
// distance relative to the previous total. The cached rank map is rebuilt once this passes the
// configured threshold.
func Drift(prev, next []uint64) float64 {
	if len(prev) != len(next) {
		return 1.0
	}
	var diff, total uint64
	for i := range prev {
		if prev[i] > next[i] {
			diff += prev[i] - next[i]
		} else {
			diff += next[i] - prev[i]
		}
		total += prev[i]
	}
	if total == 0 {
		if diff == 0 {
			return 0
		}
		return 1.0
	}
	return float64(diff) / float64(total)
}
