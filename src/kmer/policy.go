package kmer

import (
	"encoding/binary"
	"fmt"

	rng "github.com/leesper/go_rng"
	"github.com/spaolacci/murmur3"
)

// Policy carries the key handling functions shared by a distributed map and its local store.
// Two separate hashers are kept on purpose: the distribution hasher picks the rank and the
// storage hasher places the key in a bucket, so the two placements stay uniform independently.
type Policy struct {
	InputTransform func(Kmer) Kmer
	StoreTransform func(Kmer) Kmer
	DistHash       func(Kmer) uint64
	StoreHash      func(Kmer) uint64
	Equal          func(Kmer, Kmer) bool
}

// Identity is the no-op key transform
func Identity(x Kmer) Kmer {
	return x
}

// splitmix64 is a 64-bit finalizer, used here as the distribution hash for uint64 encoded k-mers
func splitmix64(key uint64) uint64 {
	key = (key ^ (key >> 31) ^ (key >> 62)) * uint64(0x319642b2d24d8ec3)
	key = (key ^ (key >> 27) ^ (key >> 54)) * uint64(0x96de1b173f119089)
	key = key ^ (key >> 30) ^ (key >> 60)
	return key
}

// NewPolicy is the constructor for the default key policy.
// If canonical is set, keys are normalised on input to the smaller of the two strands.
func NewPolicy(k int, canonical bool) Policy {
	input := Identity
	if canonical {
		input = func(x Kmer) Kmer { return Canonical(x, k) }
	}
	return Policy{
		InputTransform: input,
		StoreTransform: Identity,
		DistHash: func(x Kmer) uint64 {
			return splitmix64(uint64(x))
		},
		StoreHash: func(x Kmer) uint64 {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], uint64(x))
			return murmur3.Sum64(buf[:])
		},
		Equal: func(a, b Kmer) bool { return a == b },
	}
}

// Rank is a method to map a key to a rank, using the upper bits of the distribution digest
func (p Policy) Rank(x Kmer, ranks int) int {
	return int((p.DistHash(x) >> 32) % uint64(ranks))
}

// policySamples is the number of random keys drawn when checking a policy at construction
const policySamples = 128

// Check is a method to assert that the policy routes consistently: any two keys that the local
// store will treat as equal must land on the same rank, otherwise a find can miss records.
// The check samples key pairs with a fixed seed so every rank draws the same verdict.
func (p Policy) Check(k, ranks int) error {
	if ranks < 1 {
		return fmt.Errorf("communicator must hold at least one rank (got %d)", ranks)
	}
	gen := rng.NewUniformGenerator(1)
	mask := Mask(k)
	for i := 0; i < policySamples; i++ {
		x := Kmer(uint64(gen.Int64()) & mask)
		y := RevComp(x, k)
		sx := p.StoreTransform(p.InputTransform(x))
		sy := p.StoreTransform(p.InputTransform(y))
		if !p.Equal(sx, sy) {
			continue
		}
		if p.Rank(p.InputTransform(x), ranks) != p.Rank(p.InputTransform(y), ranks) {
			return fmt.Errorf("key policy is inconsistent: %s and %s collapse in the store but route to different ranks", x.Decode(k), y.Decode(k))
		}
	}
	return nil
}
