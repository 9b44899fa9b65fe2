package minimizer

import "testing"

var encoded = []byte{0, 1, 2, 3, 0, 1} // ACGTAC

func TestRolling(t *testing.T) {
	mm, err := New(2)
	if err != nil {
		t.Fatal(err)
	}
	mm.Init(encoded)
	// AC CG GT TA AC
	wanted := []uint64{0x1, 0x6, 0xB, 0xC, 0x1}
	if mm.Value() != wanted[0] {
		t.Fatalf("incorrect initial m-mer: %#x", mm.Value())
	}
	for i := 1; i < len(wanted); i++ {
		mm.Next(encoded[i+1])
		if mm.Value() != wanted[i] {
			t.Fatalf("incorrect m-mer at position %d: %#x", i, mm.Value())
		}
	}
}

func TestMasking(t *testing.T) {
	mm, err := New(3)
	if err != nil {
		t.Fatal(err)
	}
	mm.Init(encoded)
	// shift in the rest of the sequence; the value must stay within 2m bits
	for _, b := range encoded[3:] {
		mm.Next(b)
		if mm.Value() > (uint64(1)<<6)-1 {
			t.Fatalf("m-mer escaped its mask: %#x", mm.Value())
		}
	}
}

func TestBadSizes(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("m = 0 should be rejected")
	}
	if _, err := New(MaxSize + 1); err == nil {
		t.Fatal("oversized m should be rejected")
	}
}
