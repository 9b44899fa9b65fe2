package collective

import (
	"bytes"
	"fmt"
	"testing"
)

func TestAllToAll(t *testing.T) {
	const p = 4
	err := Spawn(p, func(c Communicator) {
		sendCounts := make([]int, p)
		for dst := range sendCounts {
			sendCounts[dst] = c.Rank()*10 + dst
		}
		got := c.AllToAll(sendCounts)
		for src := range got {
			if want := src*10 + c.Rank(); got[src] != want {
				panic(fmt.Sprintf("rank %d: count from %d is %d, want %d", c.Rank(), src, got[src], want))
			}
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAllToAllV(t *testing.T) {
	const p = 3
	err := Spawn(p, func(c Communicator) {
		// rank r sends dst copies of byte r to rank dst
		var send []byte
		sendCounts := make([]int, p)
		for dst := 0; dst < p; dst++ {
			seg := bytes.Repeat([]byte{byte(c.Rank())}, dst)
			send = append(send, seg...)
			sendCounts[dst] = len(seg)
		}
		recvCounts := c.AllToAll(sendCounts)
		got := c.AllToAllV(send, sendCounts, recvCounts)
		want := make([]byte, 0, len(got))
		for src := 0; src < p; src++ {
			want = append(want, bytes.Repeat([]byte{byte(src)}, c.Rank())...)
		}
		if !bytes.Equal(got, want) {
			panic(fmt.Sprintf("rank %d: got %v want %v", c.Rank(), got, want))
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAllToAllVEmpty(t *testing.T) {
	// zero length payloads must still complete on every rank
	err := Spawn(4, func(c Communicator) {
		counts := make([]int, 4)
		recvCounts := c.AllToAll(counts)
		out := c.AllToAllV(nil, counts, recvCounts)
		if len(out) != 0 {
			panic("expected no bytes")
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAllReduce(t *testing.T) {
	const p = 5
	err := Spawn(p, func(c Communicator) {
		in := []uint64{uint64(c.Rank()), 1, 0}
		out := c.AllReduceUint64(in)
		if out[0] != uint64(p*(p-1)/2) || out[1] != p || out[2] != 0 {
			panic(fmt.Sprintf("rank %d: bad reduction %v", c.Rank(), out))
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRingSendRecv(t *testing.T) {
	// each rank streams one tagged message to every peer using the skewed ring order
	const p = 4
	const tag = 7
	err := Spawn(p, func(c Communicator) {
		recvBufs := make([][]byte, p)
		rreqs := make([]Request, p)
		for i := 0; i < p; i++ {
			src := (c.Rank() + p - i) % p
			recvBufs[src] = make([]byte, 2)
			rreqs[src] = c.Irecv(recvBufs[src], src, tag)
		}
		var prev Request
		for i := 0; i < p; i++ {
			dst := (c.Rank() + i) % p
			req := c.Isend([]byte{byte(c.Rank()), byte(dst)}, dst, tag)
			if prev != nil {
				prev.Wait()
			}
			prev = req
		}
		prev.Wait()
		for src := 0; src < p; src++ {
			rreqs[src].Wait()
			if recvBufs[src][0] != byte(src) || recvBufs[src][1] != byte(c.Rank()) {
				panic(fmt.Sprintf("rank %d: bad message from %d: %v", c.Rank(), src, recvBufs[src]))
			}
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBarrierOrdering(t *testing.T) {
	// two all-to-alls back to back must not bleed into each other
	const p = 3
	err := Spawn(p, func(c Communicator) {
		first := c.AllToAll([]int{1, 1, 1})
		second := c.AllToAll([]int{2, 2, 2})
		for src := 0; src < p; src++ {
			if first[src] != 1 || second[src] != 2 {
				panic("collective rounds interleaved")
			}
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBadGroupSize(t *testing.T) {
	if _, err := NewGroup(0); err == nil {
		t.Fatal("empty groups should be rejected")
	}
}
