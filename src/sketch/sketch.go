// Package sketch contains a bottom-k MinHash sketch over the k-mers of raw sequence data, using
// the ntHash rolling hash function. The counting pipeline uses the sketch's distinct k-mer
// estimate to reserve the local stores before a bulk insert, so the tables never rehash mid-load.
package sketch

import (
	"container/heap"
	"fmt"
	"io/ioutil"
	"math"
	"sort"

	"github.com/will-rowe/ntHash"
	"gopkg.in/vmihailenco/msgpack.v2"
)

// CANONICAL tells ntHash to hash each k-mer together with its reverse complement
const CANONICAL bool = false

// BottomK is the bottom-k MinHash sketch of a k-mer set
type BottomK struct {
	KmerSize   int
	SketchSize int
	Sketch     intHeap
}

// NewBottomK is the constructor for a BottomK sketch
func NewBottomK(k, s int) *BottomK {
	return &BottomK{
		KmerSize:   k,
		SketchSize: s,
	}
}

// Add is a method to decompose a read to kmers, hash them and add any minimums to the sketch
func (bk *BottomK) Add(sequence []byte) error {
	if len(sequence) < bk.KmerSize {
		return fmt.Errorf("sequence length (%d) is shorter than k-mer length (%d)", len(sequence), bk.KmerSize)
	}
	// initiate the rolling ntHash
	hasher, err := ntHash.New(&sequence, uint(bk.KmerSize))
	if err != nil {
		return err
	}
	// get hashed kmers from sequence and evaluate
	for hv := range hasher.Hash(CANONICAL) {
		// if the sketch isn't full yet, add the hashed k-mer
		if len(bk.Sketch) < bk.SketchSize {
			if bk.contains(hv) {
				continue
			}
			heap.Push(&bk.Sketch, hv)
			// otherwise, update the sketch if the new value is smaller than the largest value in the sketch
		} else if hv < bk.Sketch[0] {
			if bk.contains(hv) {
				continue
			}
			// replace the largest sketch value with the new value
			bk.Sketch[0] = hv
			// the heap Fix method re-establishes the heap ordering after the element at index i has changed its value
			heap.Fix(&bk.Sketch, 0)
		}
	}
	return nil
}

// contains is a method to check if a hash value is already sketched; bottom-k estimation needs distinct minima
func (bk *BottomK) contains(hv uint64) bool {
	for _, v := range bk.Sketch {
		if v == hv {
			return true
		}
	}
	return false
}

// Cardinality is a method to estimate the number of distinct k-mers added to the sketch.
// With the k smallest of n uniform hashes, the kth smallest sits near k/n of the hash space.
func (bk *BottomK) Cardinality() uint64 {
	if len(bk.Sketch) < bk.SketchSize {
		return uint64(len(bk.Sketch))
	}
	kth := bk.Sketch[0]
	if kth == 0 {
		return uint64(len(bk.Sketch))
	}
	est := (float64(bk.SketchSize) - 1) * (math.MaxUint64 / float64(kth))
	return uint64(est)
}

// GetSketch is a method to return the sketch as a slice sorted in ascending order
func (bk *BottomK) GetSketch() []uint64 {
	sketch := make([]uint64, len(bk.Sketch))
	copy(sketch, bk.Sketch)
	sort.Slice(sketch, func(i, j int) bool { return sketch[i] < sketch[j] })
	return sketch
}

// Dump is a method to write a sketch to disk
func (bk *BottomK) Dump(path string) error {
	b, err := msgpack.Marshal(bk)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, b, 0644)
}

// Load is a method to read a sketch from disk
func (bk *BottomK) Load(path string) error {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(b, bk)
}

// intHeap is a max-heap of uint64s, keeping the largest sketched value at index 0 so it is the
// one evicted when a smaller hash arrives
type intHeap []uint64

// the less method is returning the largest value, so that it is at index position 0 in the heap
func (intHeap intHeap) Less(i, j int) bool { return intHeap[i] > intHeap[j] }
func (intHeap intHeap) Swap(i, j int)      { intHeap[i], intHeap[j] = intHeap[j], intHeap[i] }
func (intHeap intHeap) Len() int           { return len(intHeap) }

// Push is a method to add an element to the heap
func (intHeap *intHeap) Push(x interface{}) {
	*intHeap = append(*intHeap, x.(uint64))
}

// Pop is a method to remove an element from the heap
func (intHeap *intHeap) Pop() interface{} {
	old := *intHeap
	n := len(old)
	x := old[n-1]
	*intHeap = old[0 : n-1]
	return x
}
