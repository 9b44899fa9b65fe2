package distmap

import (
	"github.com/osm-bio/distkmer/src/collective"
	"github.com/osm-bio/distkmer/src/kmer"
	"github.com/osm-bio/distkmer/src/store"
)

// ring find message tag
const tagRingReply = 11

// FindOverlap is the memory bounded find variant. The plain Find sizes one reply buffer to the
// sum of every peer's replies before sending; for a large multimap that can exceed memory. This
// variant streams replies around a ring instead, holding at most two per-peer reply batches in
// scratch plus the final output:
//
//  1. exchange the deduplicated keys as usual
//  2. walk each inbound segment once to count the exact reply sizes, and all-to-all those counts
//  3. allocate the final output once; each receive lands at its displacement
//  4. loop over peers in a skewed ring order, filling alternating halves of a double buffered
//     scratch and keeping a single send outstanding
//
// Different ranks aim at different peers in the same step, so no rank takes the whole group's
// replies at once.
func (b *base[T]) FindOverlap(keys []kmer.Kmer) []store.Record[T] {
	return b.FindOverlapIf(keys, nil)
}

// FindOverlapIf is FindOverlap with a record predicate applied at the owning rank
func (b *base[T]) FindOverlapIf(keys []kmer.Kmer, pred func(store.Record[T]) bool) []store.Record[T] {
	qs := b.eng.dedupe(b.eng.transformKeys(keys))
	ranks := b.eng.comm.Size()
	if ranks == 1 {
		var out []store.Record[T]
		for _, q := range qs {
			out = b.loc.FindIf(q, pred, out)
		}
		return out
	}
	me := b.eng.comm.Rank()
	recvKeys, recvCounts, _, _ := exchange(b.eng.comm, qs, b.eng.rankOf, KmerCodec{})

	// segment offsets into the inbound key block, per source rank
	segOff := make([]int, ranks+1)
	for src := 0; src < ranks; src++ {
		segOff[src+1] = segOff[src] + recvCounts[src]
	}

	// exact counting pass: the true reply size per source, no estimation
	respCounts := make([]int, ranks)
	for src := 0; src < ranks; src++ {
		n := 0
		for _, q := range recvKeys[segOff[src]:segOff[src+1]] {
			n += b.loc.CountKeyIf(q, pred)
		}
		respCounts[src] = n
	}
	inCounts := b.eng.comm.AllToAll(respCounts)

	// single receive allocation: the final buffer, receives land at their displacements
	rs := b.codec.Size()
	inOff := make([]int, ranks+1)
	for src := 0; src < ranks; src++ {
		inOff[src+1] = inOff[src] + inCounts[src]
	}
	outBytes := make([]byte, inOff[ranks]*rs)

	// post every receive up front, in the same skewed order the senders will use
	rreqs := make([]collective.Request, ranks)
	for i := 0; i < ranks; i++ {
		src := (me + ranks - i) % ranks
		rreqs[src] = b.eng.comm.Irecv(outBytes[inOff[src]*rs:inOff[src+1]*rs], src, tagRingReply)
	}

	// double buffered send ring: one outstanding send, the idle scratch half takes the next lookup
	maxSend := 0
	for _, n := range respCounts {
		if n > maxSend {
			maxSend = n
		}
	}
	scratch := make([]byte, 2*maxSend*rs)
	var hold []store.Record[T]
	var prev collective.Request
	for i := 0; i < ranks; i++ {
		dst := (me + i) % ranks
		half := scratch[(i%2)*maxSend*rs:]
		hold = hold[:0]
		for _, q := range recvKeys[segOff[dst]:segOff[dst+1]] {
			hold = b.loc.FindIf(q, pred, hold)
		}
		for j, r := range hold {
			b.codec.Put(half[j*rs:], r)
		}
		req := b.eng.comm.Isend(half[:len(hold)*rs], dst, tagRingReply)
		if prev != nil {
			prev.Wait()
		}
		prev = req
	}
	prev.Wait()
	for src := 0; src < ranks; src++ {
		rreqs[src].Wait()
	}

	out := make([]store.Record[T], inOff[ranks])
	for i := range out {
		out[i] = b.codec.Get(outBytes[i*rs:])
	}
	return out
}
