package distmap

import (
	"github.com/osm-bio/distkmer/src/collective"
	"github.com/osm-bio/distkmer/src/kmer"
	"github.com/osm-bio/distkmer/src/store"
)

// KeyCount is one (key, count) reply from Count
type KeyCount struct {
	Key   kmer.Kmer
	Count uint64
}

// base carries the shared collective operations; the exported variants only differ in how their
// local store treats duplicate keys
type base[T any] struct {
	eng   *engine
	loc   *store.Table[T]
	codec PairCodec[T]
}

// Map is the distributed single value map: the first record per key wins
type Map[T any] struct {
	base[T]
}

// Multimap is the distributed multimap: duplicates are never collapsed
type Multimap[T any] struct {
	base[T]
}

// ReductionMap is the distributed reduction map: duplicate keys fold under a combining function,
// called as combine(old, incoming)
type ReductionMap[T any] struct {
	base[T]
}

// NewMap is the constructor for a distributed single value map
func NewMap[T any](comm collective.Communicator, cfg Config, vc Codec[T]) (*Map[T], error) {
	b, err := newBase[T](comm, cfg, store.Single, vc, nil)
	if err != nil {
		return nil, err
	}
	return &Map[T]{*b}, nil
}

// NewMultimap is the constructor for a distributed multimap
func NewMultimap[T any](comm collective.Communicator, cfg Config, vc Codec[T]) (*Multimap[T], error) {
	b, err := newBase[T](comm, cfg, store.Multi, vc, nil)
	if err != nil {
		return nil, err
	}
	return &Multimap[T]{*b}, nil
}

// NewReductionMap is the constructor for a distributed reduction map
func NewReductionMap[T any](comm collective.Communicator, cfg Config, vc Codec[T], combine func(old, cur T) T) (*ReductionMap[T], error) {
	b, err := newBase[T](comm, cfg, store.Reduction, vc, combine)
	if err != nil {
		return nil, err
	}
	return &ReductionMap[T]{*b}, nil
}

func newBase[T any](comm collective.Communicator, cfg Config, kind store.Kind, vc Codec[T], combine func(old, cur T) T) (*base[T], error) {
	eng, err := newEngine(comm, cfg)
	if err != nil {
		return nil, err
	}
	loc, err := store.New[T](kind, eng.policy, combine)
	if err != nil {
		return nil, err
	}
	return &base[T]{eng: eng, loc: loc, codec: PairCodec[T]{Val: vc}}, nil
}

// Reserve is a method to size the local store ahead of a bulk insert
func (b *base[T]) Reserve(n int) {
	b.loc.Reserve(n)
}

// Insert is a collective method to add a batch of records, returning the net local records added
func (b *base[T]) Insert(recs []store.Record[T]) int {
	return b.InsertIf(recs, nil)
}

// InsertIf is a collective method to add the records passing the predicate; the predicate runs on
// the receiving rank after distribution
func (b *base[T]) InsertIf(recs []store.Record[T], pred func(store.Record[T]) bool) int {
	batch := make([]store.Record[T], len(recs))
	for i, r := range recs {
		batch[i] = store.Record[T]{Key: b.eng.policy.InputTransform(r.Key), Val: r.Val}
	}
	if b.eng.comm.Size() > 1 {
		batch, _, _, _ = exchange(b.eng.comm, batch, func(r store.Record[T]) int {
			return b.eng.rankOf(r.Key)
		}, b.codec)
	}
	b.loc.Reserve(len(batch))
	return b.loc.InsertIf(batch, pred)
}

// Find is a collective method to look a key batch up, returning the records that originate from
// the keys this rank contributed
func (b *base[T]) Find(keys []kmer.Kmer) []store.Record[T] {
	return b.FindIf(keys, nil)
}

// FindIf is Find with a record predicate applied at the owning rank
func (b *base[T]) FindIf(keys []kmer.Kmer, pred func(store.Record[T]) bool) []store.Record[T] {
	qs := b.eng.dedupe(b.eng.transformKeys(keys))
	if b.eng.comm.Size() == 1 {
		var out []store.Record[T]
		for _, q := range qs {
			out = b.loc.FindIf(q, pred, out)
		}
		return out
	}
	recvKeys, recvCounts, _, _ := exchange(b.eng.comm, qs, b.eng.rankOf, KmerCodec{})

	// answer each source rank's segment; reply sizes vary per key, so the counts go through
	// their own all-to-all before the payload exchange
	ranks := b.eng.comm.Size()
	var replies []store.Record[T]
	replyCounts := make([]int, ranks)
	off := 0
	for src := 0; src < ranks; src++ {
		before := len(replies)
		for _, q := range recvKeys[off : off+recvCounts[src]] {
			replies = b.loc.FindIf(q, pred, replies)
		}
		replyCounts[src] = len(replies) - before
		off += recvCounts[src]
	}
	backCounts := b.eng.comm.AllToAll(replyCounts)

	rs := b.codec.Size()
	sendBytes := make([]byte, len(replies)*rs)
	for i, r := range replies {
		b.codec.Put(sendBytes[i*rs:], r)
	}
	sendByteCounts := make([]int, ranks)
	recvByteCounts := make([]int, ranks)
	for d := 0; d < ranks; d++ {
		sendByteCounts[d] = replyCounts[d] * rs
		recvByteCounts[d] = backCounts[d] * rs
	}
	recvBytes := b.eng.comm.AllToAllV(sendBytes, sendByteCounts, recvByteCounts)
	out := make([]store.Record[T], len(recvBytes)/rs)
	for i := range out {
		out[i] = b.codec.Get(recvBytes[i*rs:])
	}
	return out
}

// Count is a collective method to count each distinct input key, replying (key, global count)
// in the order of the deduplicated local input
func (b *base[T]) Count(keys []kmer.Kmer) []KeyCount {
	return b.CountIf(keys, nil)
}

// CountIf is Count restricted to records passing the predicate
func (b *base[T]) CountIf(keys []kmer.Kmer, pred func(store.Record[T]) bool) []KeyCount {
	return b.countWith(keys, func(q kmer.Kmer) uint64 {
		return uint64(b.loc.CountKeyIf(q, pred))
	})
}

// countWith runs the count protocol with a caller supplied per-key evaluator; the counting map
// reuses it to report stored totals instead of record counts
func (b *base[T]) countWith(keys []kmer.Kmer, eval func(kmer.Kmer) uint64) []KeyCount {
	qs := b.eng.dedupe(b.eng.transformKeys(keys))
	if b.eng.comm.Size() == 1 {
		out := make([]KeyCount, len(qs))
		for i, q := range qs {
			out[i] = KeyCount{Key: q, Count: eval(q)}
		}
		return out
	}
	recvKeys, recvCounts, sentCounts, perm := exchange(b.eng.comm, qs, b.eng.rankOf, KmerCodec{})
	answers := make([]KeyCount, len(recvKeys))
	for i, q := range recvKeys {
		answers[i] = KeyCount{Key: q, Count: eval(q)}
	}
	back := reply(b.eng.comm, answers, recvCounts, sentCounts, keyCountCodec{})
	// un-permute so replies line up with the deduplicated input order
	out := make([]KeyCount, len(qs))
	for i := range qs {
		out[i] = back[perm[i]]
	}
	return out
}

// Erase is a collective method to remove a batch of keys, returning the local records removed;
// sum with GlobalSum for the global total
func (b *base[T]) Erase(keys []kmer.Kmer) int {
	return b.EraseIf(keys, nil)
}

// EraseIf is Erase restricted to records passing the predicate
func (b *base[T]) EraseIf(keys []kmer.Kmer, pred func(store.Record[T]) bool) int {
	qs := b.eng.dedupe(b.eng.transformKeys(keys))
	if b.eng.comm.Size() > 1 {
		qs, _, _, _ = exchange(b.eng.comm, qs, b.eng.rankOf, KmerCodec{})
	}
	removed := 0
	for _, q := range qs {
		removed += b.loc.EraseIf(q, pred)
	}
	return removed
}

// LocalSize is a method to return the records held by this rank
func (b *base[T]) LocalSize() int {
	return b.loc.Size()
}

// LocalUniqueSize is a method to return the distinct keys held by this rank
func (b *base[T]) LocalUniqueSize() int {
	return b.loc.UniqueSize()
}

// Size is a collective method to return the global record count
func (b *base[T]) Size() uint64 {
	return b.GlobalSum(uint64(b.loc.Size()))
}

// GlobalSum is a collective method to sum one value across all ranks
func (b *base[T]) GlobalSum(v uint64) uint64 {
	return b.eng.comm.AllReduceUint64([]uint64{v})[0]
}

// Local is a method to expose the local store for in-place inspection
func (b *base[T]) Local() *store.Table[T] {
	return b.loc
}

// keyCountCodec is the wire codec for (key, count) replies
type keyCountCodec struct{}

func (keyCountCodec) Size() int { return 16 }
func (keyCountCodec) Put(buf []byte, kc KeyCount) {
	KmerCodec{}.Put(buf, kc.Key)
	Uint64Codec{}.Put(buf[8:], kc.Count)
}
func (keyCountCodec) Get(buf []byte) KeyCount {
	return KeyCount{Key: KmerCodec{}.Get(buf), Count: Uint64Codec{}.Get(buf[8:])}
}
