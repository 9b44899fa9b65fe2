package pipeline

import (
	"log"
	"sort"

	"github.com/osm-bio/distkmer/src/collective"
	"github.com/osm-bio/distkmer/src/distmap"
	"github.com/osm-bio/distkmer/src/kmer"
	"github.com/osm-bio/distkmer/src/misc"
	"github.com/osm-bio/distkmer/src/seqio"
	"github.com/osm-bio/distkmer/src/sketch"
	"github.com/osm-bio/distkmer/src/store"
	"github.com/osm-bio/distkmer/src/supermer"
)

// spectrumMax is the cell count of the reported k-mer spectrum; larger counts fold into the last cell
const spectrumMax = 64

// FastaStreamer is a pipeline process that streams sequences from the input FASTA files
type FastaStreamer struct {
	process
	Output     chan []byte
	InputFiles []string
}

// NewFastaStreamer is the constructor
func NewFastaStreamer() *FastaStreamer {
	return &FastaStreamer{Output: make(chan []byte, BUFFERSIZE)}
}

// Run is the method to run this process, which satisfies the pipeline interface
func (proc *FastaStreamer) Run() {
	defer close(proc.Output)
	for _, file := range proc.InputFiles {
		misc.ErrorCheck(seqio.ReadFasta(file, func(seq []byte) {
			proc.Output <- seq
		}))
	}
}

// SeqEncoder is a pipeline process that 2-bit encodes each sequence, splits it at ambiguous
// bases and sketches the raw sequence so the counter can size its stores up front
type SeqEncoder struct {
	process
	Input    chan []byte
	Output   chan []byte
	KmerSize int
	Sketch   *sketch.BottomK
}

// NewSeqEncoder is the constructor
func NewSeqEncoder() *SeqEncoder {
	return &SeqEncoder{Output: make(chan []byte, BUFFERSIZE)}
}

// Run is the method to run this process, which satisfies the pipeline interface
func (proc *SeqEncoder) Run() {
	defer close(proc.Output)
	seqCount := 0
	for seq := range proc.Input {
		seqCount++
		if len(seq) >= proc.KmerSize {
			// the sketch works on raw bases; encoding happens after
			misc.ErrorCheck(proc.Sketch.Add(seq))
		}
		for _, frag := range seqio.Fragments(seq, proc.KmerSize) {
			proc.Output <- frag
		}
	}
	if seqCount == 0 {
		log.Printf("\tno sequences received from input")
	} else {
		log.Printf("\tnumber of sequences received from input: %d", seqCount)
	}
}

// KmerCounter is the final pipeline process: it deals the encoded fragments over the rank group
// and runs the collective counting engine, one goroutine per rank
type KmerCounter struct {
	process
	Input  chan []byte
	Sketch *sketch.BottomK
	Info   *Info
}

// NewKmerCounter is the constructor
func NewKmerCounter(info *Info) *KmerCounter {
	return &KmerCounter{Info: info}
}

// Run is the method to run this process, which satisfies the pipeline interface
func (proc *KmerCounter) Run() {
	cmd := proc.Info.Count
	ranks := cmd.Processors

	// deal the fragments round robin so every rank holds a similar share of the input
	batches := make([][][]byte, ranks)
	next := 0
	fragCount := 0
	for frag := range proc.Input {
		batches[next] = append(batches[next], frag)
		next = (next + 1) % ranks
		fragCount++
	}
	log.Printf("\tnumber of encoded fragments: %d", fragCount)

	// by the time the input channel closes the upstream encoder has sketched everything
	estimate := proc.Sketch.Cardinality()
	log.Printf("\testimated distinct k-mers: %d", estimate)

	results := make([]rankResult, ranks)
	misc.ErrorCheck(collective.Spawn(ranks, func(c collective.Communicator) {
		results[c.Rank()] = countOnRank(c, cmd, batches[c.Rank()], estimate)
	}))
	for _, res := range results {
		misc.ErrorCheck(res.err)
	}

	// every rank saw the same reductions, so the global numbers come from rank 0
	merged := &CountResults{
		TotalKmers:        results[0].total,
		DistinctKmers:     results[0].distinct,
		EstimatedDistinct: estimate,
		Spectrum:          results[0].spectrum,
	}
	var tops []TopKmer
	for _, res := range results {
		tops = append(tops, res.top...)
	}
	sort.Slice(tops, func(i, j int) bool { return tops[i].Count > tops[j].Count })
	if len(tops) > topPerRank {
		tops = tops[:topPerRank]
	}
	merged.TopKmers = tops
	proc.Info.Results = merged
}

// topPerRank caps how many high frequency k-mers each rank reports
const topPerRank = 10

// rankResult is what one rank brings back from the collective run
type rankResult struct {
	total    uint64
	distinct uint64
	spectrum []uint64
	top      []TopKmer
	err      error
}

// countOnRank runs the counting engine for a single rank of the group
func countOnRank(c collective.Communicator, cmd *CountCmd, frags [][]byte, estimate uint64) rankResult {
	cm, err := distmap.NewCountingMap(c, distmap.Config{
		K:            cmd.KmerSize,
		M:            cmd.MinimizerSize,
		BinningDrift: 0.2,
	})
	if err != nil {
		return rankResult{err: err}
	}
	// size the local store off the sketch estimate so the bulk insert never rehashes
	cm.Reserve(int(estimate) / c.Size())

	if cmd.Supermers {
		hist := supermer.NewHistogram(cmd.MinimizerSize)
		var sms []supermer.Supermer
		for _, frag := range frags {
			err := cm.Scanner().Scan(frag, func(s supermer.Supermer) {
				sms = append(sms, s)
				hist.Add(s, cmd.KmerSize)
			})
			if err != nil {
				return rankResult{err: err}
			}
		}
		if _, err := cm.InsertSupermers(sms, hist); err != nil {
			return rankResult{err: err}
		}
	} else {
		// gather every k-window locally and insert once: ranks hold different fragment counts,
		// and each insert is a collective every rank must enter
		k := cmd.KmerSize
		mask := kmer.Mask(k)
		var keys []kmer.Kmer
		for _, frag := range frags {
			x := kmer.FromBases(frag, k)
			keys = append(keys, x)
			for _, b := range frag[k:] {
				x = x.Extend(b, mask)
				keys = append(keys, x)
			}
		}
		cm.InsertKmers(keys)
	}

	// a reduction store holds one record per key, so the global record count is the distinct tally
	res := rankResult{
		total:    cm.Total(),
		distinct: cm.Size(),
		spectrum: cm.Spectrum(spectrumMax),
	}
	// local records hold the full global count for their keys, so a local top list is exact
	var local []store.Record[uint64]
	cm.Local().Walk(func(r store.Record[uint64]) {
		local = append(local, r)
	})
	sort.Slice(local, func(i, j int) bool { return local[i].Val > local[j].Val })
	if len(local) > topPerRank {
		local = local[:topPerRank]
	}
	for _, r := range local {
		res.top = append(res.top, TopKmer{Seq: r.Key.Decode(cmd.KmerSize), Count: r.Val})
	}
	return res
}
