package distmap

import (
	"sort"
	"testing"

	"github.com/osm-bio/distkmer/src/collective"
	"github.com/osm-bio/distkmer/src/kmer"
	"github.com/osm-bio/distkmer/src/store"
	"github.com/osm-bio/distkmer/src/supermer"
)

func encode(seq string) []byte {
	enc := make([]byte, len(seq))
	for i := 0; i < len(seq); i++ {
		enc[i] = kmer.EncodeBase(seq[i])
	}
	return enc
}

func mk(seq string) kmer.Kmer {
	return kmer.FromBases(encode(seq), len(seq))
}

// windows lists every k-window of a sequence
func windows(seq string, k int) []kmer.Kmer {
	enc := encode(seq)
	out := make([]kmer.Kmer, 0, len(enc)-k+1)
	for i := 0; i+k <= len(enc); i++ {
		out = append(out, kmer.FromBases(enc[i:], k))
	}
	return out
}

// scan produces the supermers and histogram of a sequence for the given container
func scan(t *testing.T, cm *CountingMap, m int, seq string) ([]supermer.Supermer, supermer.Histogram) {
	hist := supermer.NewHistogram(m)
	var sms []supermer.Supermer
	err := cm.Scanner().Scan(encode(seq), func(s supermer.Supermer) {
		sms = append(sms, s)
		hist.Add(s, cm.eng.cfg.K)
	})
	if err != nil {
		// keep the rank alive so the group's collectives still line up
		t.Error(err)
	}
	return sms, hist
}

// insert ACGTAC on rank 0 and GTACGT on rank 1: the four global k-mers each count 2,
// visible from every rank, via both the direct and the supermer path
func TestTwoRankCounting(t *testing.T) {
	inputs := []string{"ACGTAC", "GTACGT"}
	queries := []kmer.Kmer{mk("ACG"), mk("CGT"), mk("GTA"), mk("TAC")}
	for _, viaSupermers := range []bool{false, true} {
		results := make([][]KeyCount, 2)
		err := collective.Spawn(2, func(c collective.Communicator) {
			cm, err := NewCountingMap(c, Config{K: 3, M: 2})
			if err != nil {
				t.Error(err)
				return
			}
			if viaSupermers {
				sms, hist := scan(t, cm, 2, inputs[c.Rank()])
				if _, err := cm.InsertSupermers(sms, hist); err != nil {
					t.Error(err)
					return
				}
			} else {
				if _, err := cm.InsertSequence(encode(inputs[c.Rank()])); err != nil {
					t.Error(err)
					return
				}
			}
			// conservation: the stored values sum to the 8 inserted k-mers, held as 4 distinct keys
			if got := cm.Total(); got != 8 {
				t.Errorf("rank %d: global value sum %d, want 8", c.Rank(), got)
			}
			if got := cm.Size(); got != 4 {
				t.Errorf("rank %d: global distinct count %d, want 4", c.Rank(), got)
			}
			results[c.Rank()] = cm.Count(queries)
		})
		if err != nil {
			t.Fatal(err)
		}
		for rank, res := range results {
			if len(res) != 4 {
				t.Fatalf("rank %d: expected 4 replies, got %d", rank, len(res))
			}
			for i, kc := range res {
				if kc.Key != queries[i] || kc.Count != 2 {
					t.Fatalf("rank %d: %s counted %d, want 2 (supermers=%v)", rank, kc.Key.Decode(3), kc.Count, viaSupermers)
				}
			}
		}
	}
}

// empty input on every rank: all collective calls complete, nothing deadlocks, sizes stay 0
func TestEmptyCollectives(t *testing.T) {
	err := collective.Spawn(3, func(c collective.Communicator) {
		cm, err := NewCountingMap(c, Config{K: 5, M: 3})
		if err != nil {
			t.Error(err)
			return
		}
		if n := cm.InsertKmers(nil); n != 0 {
			t.Errorf("inserted %d records from nothing", n)
		}
		if _, err := cm.InsertSupermers(nil, supermer.NewHistogram(3)); err != nil {
			t.Error(err)
		}
		if out := cm.Count(nil); len(out) != 0 {
			t.Errorf("counted %d keys from nothing", len(out))
		}
		if out := cm.Find(nil); len(out) != 0 {
			t.Errorf("found %d records from nothing", len(out))
		}
		if out := cm.FindOverlap(nil); len(out) != 0 {
			t.Errorf("overlap found %d records from nothing", len(out))
		}
		if n := cm.Erase(nil); n != 0 {
			t.Errorf("erased %d records from nothing", n)
		}
		if cm.Size() != 0 || cm.LocalSize() != 0 {
			t.Errorf("sizes moved without input")
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

// the same sequence inserted on both ranks doubles every count of the single rank run
func TestDoubledSequence(t *testing.T) {
	seq := buildSequence(1000)
	const k, m = 21, 7

	single := map[kmer.Kmer]uint64{}
	err := collective.Spawn(1, func(c collective.Communicator) {
		cm, err := NewCountingMap(c, Config{K: k, M: m})
		if err != nil {
			t.Error(err)
			return
		}
		sms, hist := scan(t, cm, m, seq)
		if _, err := cm.InsertSupermers(sms, hist); err != nil {
			t.Error(err)
			return
		}
		for _, kc := range cm.Count(windows(seq, k)) {
			single[kc.Key] = kc.Count
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	err = collective.Spawn(2, func(c collective.Communicator) {
		cm, err := NewCountingMap(c, Config{K: k, M: m})
		if err != nil {
			t.Error(err)
			return
		}
		sms, hist := scan(t, cm, m, seq)
		if _, err := cm.InsertSupermers(sms, hist); err != nil {
			t.Error(err)
			return
		}
		if c.Rank() == 0 {
			for _, kc := range cm.Count(windows(seq, k)) {
				if kc.Count != 2*single[kc.Key] {
					t.Errorf("%s counted %d, want %d", kc.Key.Decode(k), kc.Count, 2*single[kc.Key])
				}
			}
		} else {
			cm.Count(nil)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

// after supermer distribution every stored k-mer sits on the rank its minimizer maps to
func TestMinimizerRoutingCorrectness(t *testing.T) {
	seq := buildSequence(600)
	const k, m = 11, 4
	err := collective.Spawn(3, func(c collective.Communicator) {
		cm, err := NewCountingMap(c, Config{K: k, M: m})
		if err != nil {
			t.Error(err)
			return
		}
		sms, hist := scan(t, cm, m, seq[c.Rank()*100:])
		if _, err := cm.InsertSupermers(sms, hist); err != nil {
			t.Error(err)
			return
		}
		rankMap := cm.RankMap()
		cm.Local().Walk(func(r store.Record[uint64]) {
			if got := rankMap[kmer.MinimizerOf(r.Key, k, m)]; got != uint32(c.Rank()) {
				t.Errorf("k-mer %s lives on rank %d but its minimizer maps to %d", r.Key.Decode(k), c.Rank(), got)
			}
		})
	})
	if err != nil {
		t.Fatal(err)
	}
}

// find(K) and find(unique(K)) agree as multisets of replies
func TestFindDeduplication(t *testing.T) {
	seq := buildSequence(300)
	const k, m = 9, 3
	err := collective.Spawn(2, func(c collective.Communicator) {
		cm, err := NewCountingMap(c, Config{K: k, M: m})
		if err != nil {
			t.Error(err)
			return
		}
		if _, err := cm.InsertSequence(encode(seq)); err != nil {
			t.Error(err)
			return
		}
		ws := windows(seq, k)
		dup := append(append([]kmer.Kmer{}, ws...), ws...)
		a := cm.Find(dup)
		b := cm.Find(ws)
		if !sameRecords(a, b) {
			t.Errorf("rank %d: duplicated queries changed the reply multiset (%d vs %d records)", c.Rank(), len(a), len(b))
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

// round trip: the counts of the distinct input keys sum to the input size
func TestCountRoundTrip(t *testing.T) {
	seq := buildSequence(500)
	const k, m = 15, 5
	err := collective.Spawn(4, func(c collective.Communicator) {
		cm, err := NewCountingMap(c, Config{K: k, M: m})
		if err != nil {
			t.Error(err)
			return
		}
		sms, hist := scan(t, cm, m, seq)
		if _, err := cm.InsertSupermers(sms, hist); err != nil {
			t.Error(err)
			return
		}
		if c.Rank() != 0 {
			cm.Count(nil)
			return
		}
		var sum uint64
		for _, kc := range cm.Count(windows(seq, k)) {
			sum += kc.Count
		}
		// all four ranks inserted the full sequence
		if want := uint64(4 * (len(seq) - k + 1)); sum != want {
			t.Errorf("count round trip: %d, want %d", sum, want)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

// the overlap find returns the same reply multiset as the all-to-all find under skewed replies
func TestOverlapMatchesPlainFind(t *testing.T) {
	const k = 7
	err := collective.Spawn(3, func(c collective.Communicator) {
		mm, err := NewMultimap[uint64](c, Config{K: k}, Uint64Codec{})
		if err != nil {
			t.Error(err)
			return
		}
		// one hot key with many values, many cold keys with one: reply sizes skew hard
		var recs []store.Record[uint64]
		hot := mk("ACGTACG")
		if c.Rank() == 0 {
			for i := 0; i < 200; i++ {
				recs = append(recs, store.Record[uint64]{Key: hot, Val: uint64(i)})
			}
		}
		cold := windows(buildSequence(120), k)
		for i, x := range cold {
			recs = append(recs, store.Record[uint64]{Key: x, Val: uint64(i)})
		}
		mm.Insert(recs)

		queries := append([]kmer.Kmer{hot}, cold...)
		plain := mm.Find(queries)
		overlap := mm.FindOverlap(queries)
		if !sameRecords(plain, overlap) {
			t.Errorf("rank %d: overlap find diverged from the plain find (%d vs %d records)", c.Rank(), len(plain), len(overlap))
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

// erase a key held five times: erase reports 5, the key disappears, other keys are untouched
func TestMultimapErase(t *testing.T) {
	const k = 5
	err := collective.Spawn(2, func(c collective.Communicator) {
		mm, err := NewMultimap[uint64](c, Config{K: k}, Uint64Codec{})
		if err != nil {
			t.Error(err)
			return
		}
		doomed := mk("ACGTA")
		keeper := mk("GGGAC")
		var recs []store.Record[uint64]
		if c.Rank() == 0 {
			for i := 0; i < 5; i++ {
				recs = append(recs, store.Record[uint64]{Key: doomed, Val: uint64(i)})
			}
			recs = append(recs, store.Record[uint64]{Key: keeper, Val: 42})
		}
		mm.Insert(recs)

		removed := mm.Erase([]kmer.Kmer{doomed})
		if global := mm.GlobalSum(uint64(removed)); global != 5 {
			t.Errorf("rank %d: erase removed %d records globally, want 5", c.Rank(), global)
		}
		if out := mm.Find([]kmer.Kmer{doomed}); len(out) != 0 {
			t.Errorf("rank %d: erased key still has %d records", c.Rank(), len(out))
		}
		out := mm.Find([]kmer.Kmer{keeper})
		if len(out) != 1 || out[0].Val != 42 {
			t.Errorf("rank %d: unrelated key was disturbed: %v", c.Rank(), out)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSingleMapInsertFind(t *testing.T) {
	const k = 6
	err := collective.Spawn(2, func(c collective.Communicator) {
		m, err := NewMap[uint64](c, Config{K: k}, Uint64Codec{})
		if err != nil {
			t.Error(err)
			return
		}
		recs := []store.Record[uint64]{
			{Key: mk("ACGTAC"), Val: uint64(100 + c.Rank())},
			{Key: mk("TTTGGG"), Val: uint64(200 + c.Rank())},
		}
		m.Insert(recs)
		// both ranks inserted both keys; the single map keeps one record per key
		if got := m.Size(); got != 2 {
			t.Errorf("rank %d: global size %d, want 2", c.Rank(), got)
		}
		out := m.Find([]kmer.Kmer{mk("ACGTAC")})
		if len(out) != 1 {
			t.Errorf("rank %d: expected one record, got %d", c.Rank(), len(out))
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPredicateFilteredInsert(t *testing.T) {
	const k = 6
	err := collective.Spawn(2, func(c collective.Communicator) {
		mm, err := NewMultimap[uint64](c, Config{K: k}, Uint64Codec{})
		if err != nil {
			t.Error(err)
			return
		}
		var recs []store.Record[uint64]
		for i, x := range windows(buildSequence(60), k) {
			recs = append(recs, store.Record[uint64]{Key: x, Val: uint64(i)})
		}
		mm.InsertIf(recs, func(r store.Record[uint64]) bool { return r.Val%2 == 0 })
		mm.Local().Walk(func(r store.Record[uint64]) {
			if r.Val%2 != 0 {
				t.Errorf("rank %d: record %d slipped past the insert predicate", c.Rank(), r.Val)
			}
		})
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCanonicalRejectedByCountingMap(t *testing.T) {
	err := collective.Spawn(1, func(c collective.Communicator) {
		if _, err := NewCountingMap(c, Config{K: 5, M: 3, Canonical: true}); err == nil {
			t.Error("canonical keys should be rejected by the counting map")
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBadConfigs(t *testing.T) {
	err := collective.Spawn(1, func(c collective.Communicator) {
		if _, err := NewCountingMap(c, Config{K: 5, M: 9}); err == nil {
			t.Error("m > k should be rejected")
		}
		if _, err := NewCountingMap(c, Config{K: 40, M: 3}); err == nil {
			t.Error("oversized k should be rejected")
		}
		if _, err := NewMap[uint64](nil, Config{K: 5}, Uint64Codec{}); err == nil {
			t.Error("a nil communicator should be rejected")
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

// sameRecords compares two reply sets as multisets
func sameRecords(a, b []store.Record[uint64]) bool {
	if len(a) != len(b) {
		return false
	}
	key := func(r store.Record[uint64]) uint64 { return uint64(r.Key)<<20 ^ r.Val }
	as := make([]uint64, len(a))
	bs := make([]uint64, len(b))
	for i := range a {
		as[i] = key(a[i])
		bs[i] = key(b[i])
	}
	sort.Slice(as, func(i, j int) bool { return as[i] < as[j] })
	sort.Slice(bs, func(i, j int) bool { return bs[i] < bs[j] })
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// buildSequence makes a deterministic ACGT sequence with enough repetition to fold counts
func buildSequence(n int) string {
	motifs := []string{"ACGTACGT", "GGCATGCA", "TTGACCTA", "ACGTTGCA", "CATCATCG"}
	out := make([]byte, 0, n)
	i := 0
	for len(out) < n {
		out = append(out, motifs[i%len(motifs)]...)
		i++
	}
	return string(out[:n])
}
