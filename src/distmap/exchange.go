package distmap

import (
	"encoding/binary"

	"github.com/osm-bio/distkmer/src/collective"
	"github.com/osm-bio/distkmer/src/kmer"
	"github.com/osm-bio/distkmer/src/store"
)

// Codec turns a record into a fixed number of wire bytes and back
type Codec[V any] interface {
	// Size returns the wire size of one record
	Size() int
	// Put writes one record into b, which is at least Size bytes
	Put(b []byte, v V)
	// Get reads one record from b
	Get(b []byte) V
}

// KmerCodec is the wire codec for bare keys
type KmerCodec struct{}

func (KmerCodec) Size() int { return 8 }
func (KmerCodec) Put(b []byte, x kmer.Kmer) {
	binary.LittleEndian.PutUint64(b, uint64(x))
}
func (KmerCodec) Get(b []byte) kmer.Kmer {
	return kmer.Kmer(binary.LittleEndian.Uint64(b))
}

// Uint64Codec is the wire codec for unsigned counter values
type Uint64Codec struct{}

func (Uint64Codec) Size() int             { return 8 }
func (Uint64Codec) Put(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func (Uint64Codec) Get(b []byte) uint64   { return binary.LittleEndian.Uint64(b) }

// PairCodec is the wire codec for (key, value) records, composed from the key codec and a value codec
type PairCodec[T any] struct {
	Val Codec[T]
}

func (c PairCodec[T]) Size() int { return 8 + c.Val.Size() }
func (c PairCodec[T]) Put(b []byte, r store.Record[T]) {
	binary.LittleEndian.PutUint64(b, uint64(r.Key))
	c.Val.Put(b[8:], r.Val)
}
func (c PairCodec[T]) Get(b []byte) store.Record[T] {
	return store.Record[T]{
		Key: kmer.Kmer(binary.LittleEndian.Uint64(b)),
		Val: c.Val.Get(b[8:]),
	}
}

// bucketize permutes vals into ranks contiguous segments ordered by destination rank, keeping the
// original order inside each segment. perm maps each original index to its permuted position, for
// callers that need to un-permute replies.
func bucketize[V any](vals []V, ranks int, rankOf func(V) int) (out []V, counts []int, perm []int) {
	counts = make([]int, ranks)
	dests := make([]int, len(vals))
	for i, v := range vals {
		d := rankOf(v)
		dests[i] = d
		counts[d]++
	}
	offs := make([]int, ranks)
	for d := 1; d < ranks; d++ {
		offs[d] = offs[d-1] + counts[d-1]
	}
	out = make([]V, len(vals))
	perm = make([]int, len(vals))
	for i, v := range vals {
		p := offs[dests[i]]
		offs[dests[i]]++
		out[p] = v
		perm[i] = p
	}
	return out, counts, perm
}

// exchange routes a batch so that on return every rank holds exactly the records whose rankOf is
// its own. The returned recvCounts give, per source rank, how many records arrived; sendCounts
// give how many we addressed to each peer (the reply shape for request/response operations);
// perm is the bucketize permutation of the local input.
func exchange[V any](comm collective.Communicator, vals []V, rankOf func(V) int, codec Codec[V]) (recv []V, recvCounts, sendCounts, perm []int) {
	ranks := comm.Size()
	permuted, sendCounts, perm := bucketize(vals, ranks, rankOf)
	recvCounts = comm.AllToAll(sendCounts)

	rs := codec.Size()
	sendBytes := make([]byte, len(permuted)*rs)
	for i, v := range permuted {
		codec.Put(sendBytes[i*rs:], v)
	}
	sendByteCounts := make([]int, ranks)
	recvByteCounts := make([]int, ranks)
	for d := 0; d < ranks; d++ {
		sendByteCounts[d] = sendCounts[d] * rs
		recvByteCounts[d] = recvCounts[d] * rs
	}
	recvBytes := comm.AllToAllV(sendBytes, sendByteCounts, recvByteCounts)
	recv = make([]V, len(recvBytes)/rs)
	for i := range recv {
		recv[i] = codec.Get(recvBytes[i*rs:])
	}
	return recv, recvCounts, sendCounts, perm
}

// reply answers a prior exchange: one record per received element, sent back along the inbound
// counts so each requester gets its answers in the order it asked
func reply[V any](comm collective.Communicator, out []V, recvCounts, sentCounts []int, codec Codec[V]) []V {
	ranks := comm.Size()
	rs := codec.Size()
	sendBytes := make([]byte, len(out)*rs)
	for i, v := range out {
		codec.Put(sendBytes[i*rs:], v)
	}
	sendByteCounts := make([]int, ranks)
	recvByteCounts := make([]int, ranks)
	for d := 0; d < ranks; d++ {
		sendByteCounts[d] = recvCounts[d] * rs
		recvByteCounts[d] = sentCounts[d] * rs
	}
	recvBytes := comm.AllToAllV(sendBytes, sendByteCounts, recvByteCounts)
	back := make([]V, len(recvBytes)/rs)
	for i := range back {
		back[i] = codec.Get(recvBytes[i*rs:])
	}
	return back
}
