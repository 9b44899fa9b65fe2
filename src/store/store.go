// Package store contains the per-rank hash table underneath the distributed maps.
// Keys are stored-transformed before they are hashed or compared, and bucket placement uses the
// policy's storage hasher, which is kept separate from the hasher that picked the rank.
package store

import (
	"fmt"

	"github.com/osm-bio/distkmer/src/kmer"
)

// Kind selects the behaviour of the table on duplicate keys
type Kind int

const (
	// Single keeps the first record per key
	Single Kind = iota
	// Multi keeps every record, duplicates included
	Multi
	// Reduction folds duplicate keys with a combining function
	Reduction
)

// Record is one (key, value) element of a table
type Record[T any] struct {
	Key kmer.Kmer
	Val T
}

// slot is one stored record plus its cached storage digest
type slot[T any] struct {
	hash uint64
	key  kmer.Kmer
	val  T
}

const (
	minBuckets = 16
	maxLoad    = 0.75
)

// Table is the local hash store for one rank
type Table[T any] struct {
	policy      kmer.Policy
	kind        Kind
	combine     func(old, cur T) T
	buckets     [][]slot[T]
	mask        uint64
	size        int
	unique      int
	uniqueValid bool
}

// New is the constructor for a local table. Reduction tables need the combining function, which
// is always called as combine(old, incoming).
func New[T any](kind Kind, policy kmer.Policy, combine func(old, cur T) T) (*Table[T], error) {
	if kind == Reduction && combine == nil {
		return nil, fmt.Errorf("a reduction table needs a combining function")
	}
	if policy.StoreTransform == nil || policy.StoreHash == nil || policy.Equal == nil {
		return nil, fmt.Errorf("the key policy is missing its storage functions")
	}
	t := &Table[T]{
		policy:  policy,
		kind:    kind,
		combine: combine,
		buckets: make([][]slot[T], minBuckets),
		mask:    minBuckets - 1,
	}
	return t, nil
}

// Reserve is a method to grow the table so that n further records keep the load factor under the
// ceiling, avoiding a rehash in the middle of a bulk insert
func (t *Table[T]) Reserve(n int) {
	need := t.size + n
	want := len(t.buckets)
	for float64(need) > maxLoad*float64(want) {
		want <<= 1
	}
	if want > len(t.buckets) {
		t.rehash(want)
	}
}

func (t *Table[T]) rehash(n int) {
	old := t.buckets
	t.buckets = make([][]slot[T], n)
	t.mask = uint64(n - 1)
	for _, b := range old {
		for _, s := range b {
			i := s.hash & t.mask
			t.buckets[i] = append(t.buckets[i], s)
		}
	}
}

func (t *Table[T]) grow() {
	if float64(t.size) > maxLoad*float64(len(t.buckets)) {
		t.rehash(len(t.buckets) << 1)
	}
}

// insertOne stores one record, reporting whether the record count grew
func (t *Table[T]) insertOne(key kmer.Kmer, val T) bool {
	sk := t.policy.StoreTransform(key)
	h := t.policy.StoreHash(sk)
	i := h & t.mask
	if t.kind != Multi {
		for j := range t.buckets[i] {
			s := &t.buckets[i][j]
			if s.hash == h && t.policy.Equal(s.key, sk) {
				if t.kind == Reduction {
					s.val = t.combine(s.val, val)
				}
				return false
			}
		}
	}
	t.buckets[i] = append(t.buckets[i], slot[T]{hash: h, key: sk, val: val})
	t.size++
	t.uniqueValid = false
	t.grow()
	return true
}

// Insert is a method to emplace a batch of records, returning the net number of records added
func (t *Table[T]) Insert(recs []Record[T]) int {
	added := 0
	for _, r := range recs {
		if t.insertOne(r.Key, r.Val) {
			added++
		}
	}
	return added
}

// InsertIf is a method to emplace the records that satisfy the predicate
func (t *Table[T]) InsertIf(recs []Record[T], pred func(Record[T]) bool) int {
	if pred == nil {
		return t.Insert(recs)
	}
	added := 0
	for _, r := range recs {
		if !pred(r) {
			continue
		}
		if t.insertOne(r.Key, r.Val) {
			added++
		}
	}
	return added
}

// lookup returns the bucket index, digest and transformed key for a query key
func (t *Table[T]) lookup(key kmer.Kmer) (uint64, uint64, kmer.Kmer) {
	sk := t.policy.StoreTransform(key)
	h := t.policy.StoreHash(sk)
	return h & t.mask, h, sk
}

// Find is a method to append the records matching a key to out - at most one record for a single
// or reduction table, the whole equal range for a multi table
func (t *Table[T]) Find(key kmer.Kmer, out []Record[T]) []Record[T] {
	i, h, sk := t.lookup(key)
	for _, s := range t.buckets[i] {
		if s.hash == h && t.policy.Equal(s.key, sk) {
			out = append(out, Record[T]{Key: s.key, Val: s.val})
		}
	}
	return out
}

// FindIf is a method to append the matching records that also satisfy the predicate
func (t *Table[T]) FindIf(key kmer.Kmer, pred func(Record[T]) bool, out []Record[T]) []Record[T] {
	if pred == nil {
		return t.Find(key, out)
	}
	i, h, sk := t.lookup(key)
	for _, s := range t.buckets[i] {
		if s.hash == h && t.policy.Equal(s.key, sk) {
			if r := (Record[T]{Key: s.key, Val: s.val}); pred(r) {
				out = append(out, r)
			}
		}
	}
	return out
}

// CountKey is a method to count the records stored under a key
func (t *Table[T]) CountKey(key kmer.Kmer) int {
	i, h, sk := t.lookup(key)
	n := 0
	for _, s := range t.buckets[i] {
		if s.hash == h && t.policy.Equal(s.key, sk) {
			n++
		}
	}
	return n
}

// CountKeyIf is a method to count the records under a key that satisfy the predicate
func (t *Table[T]) CountKeyIf(key kmer.Kmer, pred func(Record[T]) bool) int {
	if pred == nil {
		return t.CountKey(key)
	}
	i, h, sk := t.lookup(key)
	n := 0
	for _, s := range t.buckets[i] {
		if s.hash == h && t.policy.Equal(s.key, sk) && pred(Record[T]{Key: s.key, Val: s.val}) {
			n++
		}
	}
	return n
}

// Erase is a method to remove every record stored under a key, returning the number removed.
// Records under other keys stay in the table in their existing order.
func (t *Table[T]) Erase(key kmer.Kmer) int {
	return t.eraseMatching(key, nil)
}

// EraseIf is a method to remove the records under a key that satisfy the predicate
func (t *Table[T]) EraseIf(key kmer.Kmer, pred func(Record[T]) bool) int {
	return t.eraseMatching(key, pred)
}

func (t *Table[T]) eraseMatching(key kmer.Kmer, pred func(Record[T]) bool) int {
	i, h, sk := t.lookup(key)
	b := t.buckets[i]
	kept := b[:0]
	removed := 0
	for _, s := range b {
		match := s.hash == h && t.policy.Equal(s.key, sk)
		if match && pred != nil {
			match = pred(Record[T]{Key: s.key, Val: s.val})
		}
		if match {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	if removed > 0 {
		t.buckets[i] = kept
		t.size -= removed
		t.uniqueValid = false
	}
	return removed
}

// EraseAll is a method to remove every record in the table satisfying the predicate
func (t *Table[T]) EraseAll(pred func(Record[T]) bool) int {
	removed := 0
	for i, b := range t.buckets {
		kept := b[:0]
		for _, s := range b {
			if pred(Record[T]{Key: s.key, Val: s.val}) {
				removed++
				continue
			}
			kept = append(kept, s)
		}
		t.buckets[i] = kept
	}
	if removed > 0 {
		t.size -= removed
		t.uniqueValid = false
	}
	return removed
}

// Size is a method to return the exact number of stored records
func (t *Table[T]) Size() int {
	return t.size
}

// UniqueSize is a method to return the number of distinct keys. For a multi table the value is
// cached and recomputed after a mutation; the other kinds hold one record per key.
func (t *Table[T]) UniqueSize() int {
	if t.kind != Multi {
		return t.size
	}
	if !t.uniqueValid {
		t.unique = t.countUnique()
		t.uniqueValid = true
	}
	return t.unique
}

func (t *Table[T]) countUnique() int {
	n := 0
	for _, b := range t.buckets {
		for j, s := range b {
			first := true
			for l := 0; l < j; l++ {
				if b[l].hash == s.hash && t.policy.Equal(b[l].key, s.key) {
					first = false
					break
				}
			}
			if first {
				n++
			}
		}
	}
	return n
}

// Reset is a method to drop every record while keeping the bucket capacity
func (t *Table[T]) Reset() {
	for i := range t.buckets {
		t.buckets[i] = t.buckets[i][:0]
	}
	t.size = 0
	t.unique = 0
	t.uniqueValid = false
}

// Walk is a method to visit every stored record
func (t *Table[T]) Walk(visit func(Record[T])) {
	for _, b := range t.buckets {
		for _, s := range b {
			visit(Record[T]{Key: s.key, Val: s.val})
		}
	}
}
