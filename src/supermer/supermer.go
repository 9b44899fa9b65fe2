// Package supermer contains the supermer production and re-expansion path.
// A supermer is a maximal run of consecutive k-windows that share the same minimizer; producing
// supermers instead of raw k-mers shrinks the distribution volume, and the shared minimizer
// doubles as the routing key.
package supermer

import (
	"fmt"

	"github.com/osm-bio/distkmer/src/kmer"
	"github.com/osm-bio/distkmer/src/minimizer"
)

// Supermer is a run of encoded bases of length >= k paired with the minimizer shared by all of its k-windows
type Supermer struct {
	Minimizer uint64
	Bases     []byte
}

// NumKmers is a method to return the number of k-windows the supermer expands to
func (s Supermer) NumKmers(k int) int {
	return len(s.Bases) - k + 1
}

// Kmers is a method to re-expand a supermer into its k-mers with a length-k sliding window
func (s Supermer) Kmers(k int, emit func(kmer.Kmer)) {
	mask := kmer.Mask(k)
	x := kmer.FromBases(s.Bases, k)
	emit(x)
	for _, b := range s.Bases[k:] {
		x = x.Extend(b, mask)
		emit(x)
	}
}

// Histogram counts the k-mers seen locally for every possible minimizer value
type Histogram []uint64

// NewHistogram is the constructor for a minimizer load histogram of 4^m cells
func NewHistogram(m int) Histogram {
	return make(Histogram, 1<<uint(2*m))
}

// Add is a method to credit a supermer's k-mers to its minimizer
func (h Histogram) Add(s Supermer, k int) {
	h[s.Minimizer] += uint64(s.NumKmers(k))
}

// Total is a method to sum the histogram
func (h Histogram) Total() uint64 {
	var t uint64
	for _, c := range h {
		t += c
	}
	return t
}

// mmerAt pairs an m-mer value with the position it starts at, for the sliding window minimum
type mmerAt struct {
	val uint64
	pos int
}

// Scanner emits the (minimizer, supermer) tuples of an encoded base sequence
type Scanner struct {
	k int
	m int
}

// NewScanner is the constructor for a supermer scanner
func NewScanner(k, m int) (*Scanner, error) {
	if err := kmer.CheckSize(k); err != nil {
		return nil, err
	}
	if m > k {
		return nil, fmt.Errorf("minimizer size (%d) must not exceed k-mer size (%d)", m, k)
	}
	if _, err := minimizer.New(m); err != nil {
		return nil, err
	}
	return &Scanner{k: k, m: m}, nil
}

// Scan is a method to walk an encoded sequence and emit one supermer per maximal run of
// k-windows sharing a minimizer, covering every k-window exactly once.
// The window minimum is maintained with a monotonic deque over the rolling m-mer values.
func (sc *Scanner) Scan(seq []byte, emit func(Supermer)) error {
	if len(seq) < sc.k {
		return fmt.Errorf("sequence length (%d) is shorter than k-mer length (%d)", len(seq), sc.k)
	}
	mm, err := minimizer.New(sc.m)
	if err != nil {
		return err
	}
	mm.Init(seq)

	var deque []mmerAt
	push := func(val uint64, pos int) {
		for len(deque) > 0 && deque[len(deque)-1].val >= val {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, mmerAt{val, pos})
	}
	push(mm.Value(), 0)

	// the first window spans m-mer positions [0, k-m]
	for j := 1; j <= sc.k-sc.m; j++ {
		mm.Next(seq[j+sc.m-1])
		push(mm.Value(), j)
	}

	start := 0
	prev := deque[0].val
	for i := 1; i <= len(seq)-sc.k; i++ {
		// slide: the m-mer starting at i+k-m enters, anything before i leaves
		mm.Next(seq[i+sc.k-1])
		push(mm.Value(), i+sc.k-sc.m)
		for deque[0].pos < i {
			deque = deque[1:]
		}
		if cur := deque[0].val; cur != prev {
			emit(Supermer{Minimizer: prev, Bases: seq[start : i-1+sc.k]})
			start = i
			prev = cur
		}
	}
	emit(Supermer{Minimizer: prev, Bases: seq[start:]})
	return nil
}
