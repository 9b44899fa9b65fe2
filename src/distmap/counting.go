package distmap

import (
	"fmt"

	"github.com/osm-bio/distkmer/src/binning"
	"github.com/osm-bio/distkmer/src/collective"
	"github.com/osm-bio/distkmer/src/kmer"
	"github.com/osm-bio/distkmer/src/minimizer"
	"github.com/osm-bio/distkmer/src/store"
	"github.com/osm-bio/distkmer/src/supermer"
)

// CountingMap is the distributed k-mer counter: a reduction map over additive uint64 values fed
// either directly with k-mers or through the supermer path, where variable length substrings are
// routed by their minimizer and the minimizer to rank assignment comes from a greedy load
// balancing bin pack instead of a hash.
type CountingMap struct {
	ReductionMap[uint64]
	scanner *supermer.Scanner

	// supermer routing state, identical on every rank once built
	rankMap    []uint32
	cachedHist supermer.Histogram
}

// NewCountingMap is the constructor for a distributed counting map
func NewCountingMap(comm collective.Communicator, cfg Config) (*CountingMap, error) {
	if cfg.Canonical {
		// the supermer scanner picks minimizers on the strand it reads, so canonical keys
		// would route away from their counts; counting is strand specific
		return nil, fmt.Errorf("the counting map counts the forward strand; canonical keys are not supported")
	}
	if cfg.M < 1 || cfg.M > cfg.K {
		return nil, fmt.Errorf("minimizer size must be in [1, k] (got m=%d, k=%d)", cfg.M, cfg.K)
	}
	if cfg.M > minimizer.MaxSize {
		return nil, fmt.Errorf("minimizer size %d exceeds the histogram limit %d", cfg.M, minimizer.MaxSize)
	}
	rm, err := NewReductionMap[uint64](comm, cfg, Uint64Codec{}, func(old, cur uint64) uint64 {
		return old + cur
	})
	if err != nil {
		return nil, err
	}
	sc, err := supermer.NewScanner(cfg.K, cfg.M)
	if err != nil {
		return nil, err
	}
	return &CountingMap{ReductionMap: *rm, scanner: sc}, nil
}

// Scanner is a method to expose the supermer scanner configured for this container
func (cm *CountingMap) Scanner() *supermer.Scanner {
	return cm.scanner
}

// InsertKmers is a collective method to count a batch of k-mers directly, one occurrence each
func (cm *CountingMap) InsertKmers(keys []kmer.Kmer) int {
	recs := make([]store.Record[uint64], len(keys))
	for i, x := range keys {
		recs[i] = store.Record[uint64]{Key: x, Val: 1}
	}
	return cm.Insert(recs)
}

// InsertSequence is a collective method to count every k-window of an encoded sequence through
// the direct path
func (cm *CountingMap) InsertSequence(seq []byte) (int, error) {
	if len(seq) > 0 && len(seq) < cm.eng.cfg.K {
		return 0, fmt.Errorf("sequence length (%d) is shorter than k-mer length (%d)", len(seq), cm.eng.cfg.K)
	}
	var keys []kmer.Kmer
	if len(seq) > 0 {
		mask := kmer.Mask(cm.eng.cfg.K)
		x := kmer.FromBases(seq, cm.eng.cfg.K)
		keys = append(keys, x)
		for _, b := range seq[cm.eng.cfg.K:] {
			x = x.Extend(b, mask)
			keys = append(keys, x)
		}
	}
	return cm.InsertKmers(keys), nil
}

// InsertSupermers is the collective supermer insertion path. The local histogram is reduced to
// the global per-minimizer load, the greedy bin pack turns that into the minimizer to rank map
// (cached until the histogram drifts), supermers travel to their minimizer's rank, and the
// receiver re-expands them into k-mers for the counting store.
func (cm *CountingMap) InsertSupermers(sms []supermer.Supermer, hist supermer.Histogram) (int, error) {
	if want := 1 << uint(2*cm.eng.cfg.M); len(hist) != want {
		return 0, fmt.Errorf("histogram has %d cells, want 4^%d = %d", len(hist), cm.eng.cfg.M, want)
	}
	global := supermer.Histogram(cm.eng.comm.AllReduceUint64(hist))
	// the rebuild decision only reads globally reduced state, so every rank takes the same branch
	if cm.rankMap == nil || binning.Drift(cm.cachedHist, global) > cm.eng.cfg.BinningDrift {
		rankMap, err := binning.RankMap(global, cm.eng.comm.Size())
		if err != nil {
			return 0, err
		}
		cm.rankMap = rankMap
		cm.cachedHist = global
		// queries must chase the counts: route every key through its minimizer from now on
		k, m := cm.eng.cfg.K, cm.eng.cfg.M
		cm.eng.router = func(x kmer.Kmer) int {
			return int(cm.rankMap[kmer.MinimizerOf(x, k, m)])
		}
		// records stored under the previous routing would be unreachable; move them
		cm.redistribute()
	}

	local := sms
	if ranks := cm.eng.comm.Size(); ranks > 1 {
		// bucket the encoded supermers by their minimizer's rank; counts are in bytes since
		// the tuples are variable length
		sendBytes := make([][]byte, ranks)
		for _, sm := range sms {
			dst := cm.rankMap[sm.Minimizer]
			sendBytes[dst] = sm.AppendEncode(sendBytes[dst])
		}
		sendCounts := make([]int, ranks)
		var flat []byte
		for dst, seg := range sendBytes {
			sendCounts[dst] = len(seg)
			flat = append(flat, seg...)
		}
		recvCounts := cm.eng.comm.AllToAll(sendCounts)
		recvBytes := cm.eng.comm.AllToAllV(flat, sendCounts, recvCounts)

		local = local[:0:0]
		for len(recvBytes) > 0 {
			sm, used, err := supermer.Decode(recvBytes)
			if err != nil {
				return 0, err
			}
			local = append(local, sm)
			recvBytes = recvBytes[used:]
		}
	}

	// re-expand and fold into the local store, reserving up front so the insert never rehashes
	k := cm.eng.cfg.K
	total := 0
	for _, sm := range local {
		total += sm.NumKmers(k)
	}
	cm.loc.Reserve(total)
	added := 0
	rec := make([]store.Record[uint64], 1)
	for _, sm := range local {
		sm.Kmers(k, func(x kmer.Kmer) {
			rec[0] = store.Record[uint64]{Key: cm.eng.policy.InputTransform(x), Val: 1}
			added += cm.loc.Insert(rec)
		})
	}
	return added, nil
}

// redistribute moves every stored record to the rank the current router picks for it. Runs as a
// collective whenever the routing changes; records already in place just travel to themselves.
func (cm *CountingMap) redistribute() {
	if cm.eng.comm.Size() == 1 {
		return
	}
	recs := make([]store.Record[uint64], 0, cm.loc.Size())
	cm.loc.Walk(func(r store.Record[uint64]) {
		recs = append(recs, r)
	})
	cm.loc.Reset()
	moved, _, _, _ := exchange(cm.eng.comm, recs, func(r store.Record[uint64]) int {
		return cm.eng.rankOf(r.Key)
	}, cm.codec)
	cm.loc.Reserve(len(moved))
	cm.loc.Insert(moved)
}

// Count is a collective method to report each distinct input key's global occurrence total
func (cm *CountingMap) Count(keys []kmer.Kmer) []KeyCount {
	return cm.countWith(keys, func(q kmer.Kmer) uint64 {
		var hold []store.Record[uint64]
		hold = cm.loc.Find(q, hold)
		var n uint64
		for _, r := range hold {
			n += r.Val
		}
		return n
	})
}

// Total is a collective method to sum every stored count across the ranks; after inserting a
// k-mer multiset S this equals |S|
func (cm *CountingMap) Total() uint64 {
	var local uint64
	cm.loc.Walk(func(r store.Record[uint64]) {
		local += r.Val
	})
	return cm.GlobalSum(local)
}

// Spectrum is a collective method to build the global count-of-counts: cell i holds the number
// of distinct k-mers seen exactly i times, with the last cell absorbing everything larger
func (cm *CountingMap) Spectrum(maxCount int) []uint64 {
	local := make([]uint64, maxCount+1)
	cm.loc.Walk(func(r store.Record[uint64]) {
		c := r.Val
		if c > uint64(maxCount) {
			c = uint64(maxCount)
		}
		local[c]++
	})
	return cm.eng.comm.AllReduceUint64(local)
}

// RankMap is a method to expose the current minimizer to rank assignment (nil before the first
// supermer insert)
func (cm *CountingMap) RankMap() []uint32 {
	return cm.rankMap
}
