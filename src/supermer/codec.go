package supermer

import (
	"encoding/binary"
	"fmt"
)

// wire layout: 8 byte minimizer, 4 byte base count, then the bases packed 4 per byte
const headerLen = 12

// EncodedLen is a method to return the wire size of a supermer
func (s Supermer) EncodedLen() int {
	return headerLen + (len(s.Bases)+3)/4
}

// AppendEncode is a method to append the wire form of a supermer to a buffer
func (s Supermer) AppendEncode(buf []byte) []byte {
	var hdr [headerLen]byte
	binary.LittleEndian.PutUint64(hdr[:8], s.Minimizer)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(len(s.Bases)))
	buf = append(buf, hdr[:]...)
	var packed byte
	for i, b := range s.Bases {
		packed = (packed << 2) | (b & 3)
		if i%4 == 3 {
			buf = append(buf, packed)
			packed = 0
		}
	}
	if n := len(s.Bases) % 4; n != 0 {
		// left align the trailing bases
		buf = append(buf, packed<<uint(2*(4-n)))
	}
	return buf
}

// Decode is a function to read one supermer off the front of a buffer, returning the bytes consumed
func Decode(buf []byte) (Supermer, int, error) {
	if len(buf) < headerLen {
		return Supermer{}, 0, fmt.Errorf("truncated supermer header (%d bytes)", len(buf))
	}
	min := binary.LittleEndian.Uint64(buf[:8])
	n := int(binary.LittleEndian.Uint32(buf[8:headerLen]))
	used := headerLen + (n+3)/4
	if len(buf) < used {
		return Supermer{}, 0, fmt.Errorf("truncated supermer body (want %d bytes, have %d)", used, len(buf))
	}
	bases := make([]byte, n)
	for i := 0; i < n; i++ {
		packed := buf[headerLen+i/4]
		bases[i] = (packed >> uint(6-2*(i%4))) & 3
	}
	return Supermer{Minimizer: min, Bases: bases}, used, nil
}
