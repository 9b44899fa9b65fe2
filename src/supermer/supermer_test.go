package supermer

import (
	"testing"

	"github.com/osm-bio/distkmer/src/kmer"
)

var (
	kSize    = 3
	mSize    = 2
	sequence = []byte("ACGTACGTGGGACGTAC")
)

func encode(seq []byte) []byte {
	enc := make([]byte, len(seq))
	for i, b := range seq {
		enc[i] = kmer.EncodeBase(b)
	}
	return enc
}

// every k-window of the input must appear in exactly one emitted supermer, in order
func TestWindowCoverage(t *testing.T) {
	sc, err := NewScanner(kSize, mSize)
	if err != nil {
		t.Fatal(err)
	}
	enc := encode(sequence)
	var got []kmer.Kmer
	err = sc.Scan(enc, func(s Supermer) {
		s.Kmers(kSize, func(x kmer.Kmer) {
			got = append(got, x)
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	want := make([]kmer.Kmer, 0, len(enc)-kSize+1)
	for i := 0; i+kSize <= len(enc); i++ {
		want = append(want, kmer.FromBases(enc[i:], kSize))
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d k-mers, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("k-mer %d mismatch: %s vs %s", i, got[i].Decode(kSize), want[i].Decode(kSize))
		}
	}
}

// every k-window of a supermer must share the supermer's minimizer
func TestSharedMinimizer(t *testing.T) {
	sc, err := NewScanner(kSize, mSize)
	if err != nil {
		t.Fatal(err)
	}
	err = sc.Scan(encode(sequence), func(s Supermer) {
		s.Kmers(kSize, func(x kmer.Kmer) {
			if kmer.MinimizerOf(x, kSize, mSize) != s.Minimizer {
				t.Fatalf("k-mer %s does not share the supermer minimizer %#x", x.Decode(kSize), s.Minimizer)
			}
		})
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestHistogram(t *testing.T) {
	sc, err := NewScanner(kSize, mSize)
	if err != nil {
		t.Fatal(err)
	}
	hist := NewHistogram(mSize)
	enc := encode(sequence)
	if err := sc.Scan(enc, func(s Supermer) {
		hist.Add(s, kSize)
	}); err != nil {
		t.Fatal(err)
	}
	if want := uint64(len(enc) - kSize + 1); hist.Total() != want {
		t.Fatalf("histogram total %d does not match the %d k-windows of the input", hist.Total(), want)
	}
}

func TestCodec(t *testing.T) {
	sc, err := NewScanner(kSize, mSize)
	if err != nil {
		t.Fatal(err)
	}
	var buf []byte
	var sent []Supermer
	if err := sc.Scan(encode(sequence), func(s Supermer) {
		sent = append(sent, s)
		buf = s.AppendEncode(buf)
	}); err != nil {
		t.Fatal(err)
	}
	for _, want := range sent {
		got, used, err := Decode(buf)
		if err != nil {
			t.Fatal(err)
		}
		buf = buf[used:]
		if got.Minimizer != want.Minimizer || len(got.Bases) != len(want.Bases) {
			t.Fatalf("decoded supermer does not match: %v vs %v", got, want)
		}
		for i := range got.Bases {
			if got.Bases[i] != want.Bases[i] {
				t.Fatalf("decoded base %d does not match", i)
			}
		}
	}
	if len(buf) != 0 {
		t.Fatalf("%d trailing bytes after decoding all supermers", len(buf))
	}
}

func TestShortSequence(t *testing.T) {
	sc, err := NewScanner(5, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := sc.Scan([]byte{0, 1, 2}, func(Supermer) {}); err == nil {
		t.Fatal("sequences shorter than k should be rejected")
	}
}

func TestBadScannerParams(t *testing.T) {
	if _, err := NewScanner(3, 4); err == nil {
		t.Fatal("m > k should be rejected")
	}
	if _, err := NewScanner(64, 2); err == nil {
		t.Fatal("oversized k should be rejected")
	}
}

func BenchmarkScan(b *testing.B) {
	sc, _ := NewScanner(21, 7)
	seq := make([]byte, 10000)
	for i := range seq {
		seq[i] = byte((i * 7) & 3)
	}
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		if err := sc.Scan(seq, func(Supermer) {}); err != nil {
			b.Fatal(err)
		}
	}
}
