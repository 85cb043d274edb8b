package wia

import (
	"encoding/binary"
	"fmt"
)

// packJunkFlag is the top bit of a pack segment's size_with_flag word.
const packJunkFlag uint32 = 1 << 31

// minJunkRunLength is the encoder's threshold below which a matching
// lagged-Fibonacci run is not worth tagging as junk (the 4-byte segment
// header would cost more than it saves).
const minJunkRunLength = 32

// UnpackChunk inverts the pack transform: data is a chunk's
// fully-decompressed bytes, still containing {size_with_flag,
// payload?} segments; dataOffset is the chunk's logical starting offset in
// the image, used to seed the lagged-Fibonacci generator at the right
// position for junk segments. Segments never span chunk boundaries, so the
// loop simply runs until data is exhausted.
func UnpackChunk(data []byte, dataOffset uint64) ([]byte, error) {
	out := make([]byte, 0, len(data))
	pos := 0
	offset := dataOffset
	for pos < len(data) {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("%w: pack: truncated segment header", ErrCorruptChunk)
		}
		word := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
		size := word &^ packJunkFlag
		junk := word&packJunkFlag != 0

		if junk {
			gen := NewLaggedFibonacci(uint32(offset))
			out = append(out, gen.Bytes(int(size))...)
		} else {
			if pos+int(size) > len(data) {
				return nil, fmt.Errorf("%w: pack: segment of %d bytes overruns chunk", ErrCorruptChunk, size)
			}
			out = append(out, data[pos:pos+int(size)]...)
			pos += int(size)
		}
		offset += uint64(size)
	}
	return out, nil
}

// PackChunk applies the forward transform: plaintext is scanned for runs
// that match the lagged-Fibonacci stream seeded at the chunk's current
// logical offset; matching runs of at least minJunkRunLength bytes become
// junk segments, everything else becomes literal segments.
func PackChunk(plaintext []byte, dataOffset uint64) []byte {
	out := make([]byte, 0, len(plaintext)+4)
	pos := 0
	offset := dataOffset
	for pos < len(plaintext) {
		runLen := matchJunkRun(plaintext[pos:], offset)
		if runLen >= minJunkRunLength {
			var hdr [4]byte
			binary.BigEndian.PutUint32(hdr[:], packJunkFlag|uint32(runLen))
			out = append(out, hdr[:]...)
			pos += runLen
			offset += uint64(runLen)
			continue
		}

		// Accumulate a literal run until the next junk match (or EOF).
		litStart := pos
		for pos < len(plaintext) {
			if matchJunkRun(plaintext[pos:], offset) >= minJunkRunLength {
				break
			}
			pos++
			offset++
		}
		litLen := pos - litStart
		var hdr [4]byte
		binary.BigEndian.PutUint32(hdr[:], uint32(litLen))
		out = append(out, hdr[:]...)
		out = append(out, plaintext[litStart:pos]...)
	}
	return out
}

// matchJunkRun reports how many leading bytes of data match the
// lagged-Fibonacci stream seeded at offset.
func matchJunkRun(data []byte, offset uint64) int {
	gen := NewLaggedFibonacci(uint32(offset))
	n := 0
	for n < len(data) && gen.nextByte() == data[n] {
		n++
	}
	return n
}
