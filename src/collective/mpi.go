//go:build mpi

package collective

import (
	"encoding/binary"

	mpi "github.com/sbromberger/gompi"
)

// message tags for the operations layered over point-to-point sends
const (
	tagBarrier = 101
	tagRelease = 102
	tagCounts  = 103
	tagSegs    = 104
	tagReduce  = 105
)

// mpiComm is the Communicator implementation backed by gompi for multi-node runs.
// The collectives are layered over tagged point-to-point sends, pairwise skewed so no rank is
// the target of every peer in the same step.
type mpiComm struct {
	o    *mpi.Communicator
	rank int
	size int
}

// NewMPI is the constructor for an MPI backed communicator; it initialises the MPI runtime.
// Call Stop when the program is done.
func NewMPI() Communicator {
	mpi.Start(true)
	o := mpi.NewCommunicator(nil)
	return &mpiComm{o: o, rank: o.Rank(), size: o.Size()}
}

// Stop is a function to shut the MPI runtime down
func Stop() {
	mpi.Stop()
}

func (c *mpiComm) Rank() int { return c.rank }
func (c *mpiComm) Size() int { return c.size }

func (c *mpiComm) Barrier() {
	if c.rank == 0 {
		for src := 1; src < c.size; src++ {
			c.o.MrecvBytes(src, tagBarrier)
		}
		for dst := 1; dst < c.size; dst++ {
			c.o.SendBytes([]byte{0}, dst, tagRelease)
		}
		return
	}
	c.o.SendBytes([]byte{0}, 0, tagBarrier)
	c.o.MrecvBytes(0, tagRelease)
}

// exchange runs a pairwise skewed exchange: in step i every rank sends to (rank+i) and receives
// from (rank-i), so the traffic pattern never converges on a single peer
func (c *mpiComm) exchange(tag int, segment func(dst int) []byte, deliver func(src int, data []byte)) {
	deliver(c.rank, segment(c.rank))
	for i := 1; i < c.size; i++ {
		dst := (c.rank + i) % c.size
		src := (c.rank + c.size - i) % c.size
		c.o.SendBytes(segment(dst), dst, tag)
		data, _ := c.o.MrecvBytes(src, tag)
		deliver(src, data)
	}
}

func (c *mpiComm) AllToAll(sendCounts []int) []int {
	out := make([]int, c.size)
	var buf [8]byte
	c.exchange(tagCounts,
		func(dst int) []byte {
			binary.LittleEndian.PutUint64(buf[:], uint64(sendCounts[dst]))
			return buf[:]
		},
		func(src int, data []byte) {
			out[src] = int(binary.LittleEndian.Uint64(data))
		})
	return out
}

func (c *mpiComm) AllToAllV(send []byte, sendCounts, recvCounts []int) []byte {
	offs := make([]int, c.size+1)
	for i, n := range sendCounts {
		offs[i+1] = offs[i] + n
	}
	recvOffs := make([]int, c.size+1)
	for i, n := range recvCounts {
		recvOffs[i+1] = recvOffs[i] + n
	}
	out := make([]byte, recvOffs[c.size])
	c.exchange(tagSegs,
		func(dst int) []byte {
			return send[offs[dst]:offs[dst+1]]
		},
		func(src int, data []byte) {
			copy(out[recvOffs[src]:recvOffs[src+1]], data)
		})
	return out
}

func (c *mpiComm) AllReduceUint64(in []uint64) []uint64 {
	buf := make([]byte, 8*len(in))
	for i, v := range in {
		binary.LittleEndian.PutUint64(buf[8*i:], v)
	}
	out := make([]uint64, len(in))
	c.exchange(tagReduce,
		func(int) []byte { return buf },
		func(_ int, data []byte) {
			for i := range out {
				out[i] += binary.LittleEndian.Uint64(data[8*i:])
			}
		})
	return out
}

func (c *mpiComm) Isend(buf []byte, dest, tag int) Request {
	data := append([]byte(nil), buf...)
	done := make(chan struct{})
	go func() {
		c.o.SendBytes(data, dest, tag)
		close(done)
	}()
	return &request{done: done}
}

func (c *mpiComm) Irecv(buf []byte, src, tag int) Request {
	done := make(chan struct{})
	go func() {
		data, _ := c.o.MrecvBytes(src, tag)
		copy(buf, data)
		close(done)
	}()
	return &request{done: done}
}
