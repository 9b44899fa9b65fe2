// Package distmap contains the distributed map family: a single value map, a multimap, a
// reduction map and a counting map, all layered over the per-rank local store and a collective
// communicator. Every exported operation is collective - all ranks of the communicator must call
// it, and empty local inputs still run the full collective sequence so no peer deadlocks.
package distmap

import (
	"fmt"

	"github.com/osm-bio/distkmer/src/collective"
	"github.com/osm-bio/distkmer/src/kmer"
)

// Config carries the immutable parameters of a container instance
type Config struct {
	// K is the k-mer size in bases
	K int
	// M is the minimizer size in bases, used by the counting map's supermer path
	M int
	// Canonical normalises keys to the smaller strand on input
	Canonical bool
	// BinningDrift is the relative histogram drift above which the cached minimizer to rank
	// map is rebuilt; zero means rebuild whenever the global histogram changes at all
	BinningDrift float64
}

// engine owns what every map variant shares: the communicator, the key policy and the router
// that turns a key into a rank
type engine struct {
	comm   collective.Communicator
	policy kmer.Policy
	cfg    Config
	router func(kmer.Kmer) int
}

func newEngine(comm collective.Communicator, cfg Config) (*engine, error) {
	if comm == nil || comm.Size() < 1 {
		return nil, fmt.Errorf("a distributed map needs a communicator with at least one rank")
	}
	if err := kmer.CheckSize(cfg.K); err != nil {
		return nil, err
	}
	policy := kmer.NewPolicy(cfg.K, cfg.Canonical)
	if err := policy.Check(cfg.K, comm.Size()); err != nil {
		return nil, err
	}
	e := &engine{
		comm:   comm,
		policy: policy,
		cfg:    cfg,
	}
	e.router = func(x kmer.Kmer) int {
		return e.policy.Rank(x, e.comm.Size())
	}
	return e, nil
}

// rankOf maps a transformed key to the rank holding it
func (e *engine) rankOf(x kmer.Kmer) int {
	return e.router(x)
}

// transformKeys applies the input transform to a batch of keys
func (e *engine) transformKeys(keys []kmer.Kmer) []kmer.Kmer {
	out := make([]kmer.Kmer, len(keys))
	for i, x := range keys {
		out[i] = e.policy.InputTransform(x)
	}
	return out
}

// dedupe drops duplicate keys using the stored-transform hasher and equality, so two keys the
// local stores would collapse are queried once
func (e *engine) dedupe(keys []kmer.Kmer) []kmer.Kmer {
	seen := make(map[uint64][]kmer.Kmer, len(keys))
	out := keys[:0:0]
	for _, x := range keys {
		sx := e.policy.StoreTransform(x)
		h := e.policy.StoreHash(sx)
		dup := false
		for _, y := range seen[h] {
			if e.policy.Equal(y, sx) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen[h] = append(seen[h], sx)
		out = append(out, x)
	}
	return out
}
