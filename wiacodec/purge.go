package wiacodec

import (
	"crypto/sha1" //nolint:gosec // format-mandated integrity hash, not used for security
	"encoding/binary"
	"fmt"
)

// Purge represents a chunk as a run of {offset, size, payload} records over
// an otherwise all-zero buffer, followed by a SHA-1 of the fully
// reconstructed plaintext. A record with size == 0 terminates the segment
// list; everything from the last segment's end to the chunk's decompressed
// size is implicit zero. The original format only specifies the segment
// and trailer shapes, not how a decoder recognizes the end of the segment
// list; this sentinel-terminated framing is this module's resolution of
// that ambiguity.
type purgeSegment struct {
	offset uint32
	size   uint32
}

const purgeHashSize = sha1.Size

type purgeDecompressor struct {
	decompressedSize uint64
	cursor           uint64 // highest output offset committed so far

	hdr     [8]byte
	hdrFill int

	pending     purgeSegment
	pendingLeft uint32 // payload bytes still to copy for the current segment

	trailer     [purgeHashSize]byte
	trailerFill int

	readingTrailer bool
	done           bool
}

func newPurgeDecompressor(decompressedSize uint64) *purgeDecompressor {
	return &purgeDecompressor{decompressedSize: decompressedSize}
}

func (d *purgeDecompressor) Done() bool { return d.done }

func (d *purgeDecompressor) Close() error { return nil }

//nolint:gocognit // state machine mirrors the record-by-record wire format directly
func (d *purgeDecompressor) Decompress(in, out *Buffer, inBytesRead *int) error {
	for {
		if d.done {
			return nil
		}

		if d.pendingLeft > 0 {
			avail := in.Written - *inBytesRead
			n := min(int(d.pendingLeft), avail)
			n = min(n, out.Remaining())
			if n > 0 {
				dst := int(d.cursor)
				copy(out.Data[dst:dst+n], in.Data[*inBytesRead:*inBytesRead+n])
				*inBytesRead += n
				d.cursor += uint64(n)
				d.pendingLeft -= uint32(n)
				if int(d.cursor) > out.Written {
					out.Written = int(d.cursor)
				}
			}
			if d.pendingLeft > 0 {
				return nil // need more input or output room
			}
			continue
		}

		if d.readingTrailer {
			avail := in.Written - *inBytesRead
			n := min(purgeHashSize-d.trailerFill, avail)
			copy(d.trailer[d.trailerFill:d.trailerFill+n], in.Data[*inBytesRead:*inBytesRead+n])
			*inBytesRead += n
			d.trailerFill += n
			if d.trailerFill < purgeHashSize {
				return nil
			}
			if err := d.verify(out); err != nil {
				return err
			}
			if int(d.decompressedSize) > out.Written {
				out.Written = int(d.decompressedSize)
			}
			d.done = true
			return nil
		}

		// Reading an 8-byte segment header.
		avail := in.Written - *inBytesRead
		n := min(8-d.hdrFill, avail)
		copy(d.hdr[d.hdrFill:d.hdrFill+n], in.Data[*inBytesRead:*inBytesRead+n])
		*inBytesRead += n
		d.hdrFill += n
		if d.hdrFill < 8 {
			return nil
		}
		d.hdrFill = 0

		seg := purgeSegment{
			offset: binary.BigEndian.Uint32(d.hdr[0:4]),
			size:   binary.BigEndian.Uint32(d.hdr[4:8]),
		}
		if seg.size == 0 {
			d.readingTrailer = true
			continue
		}
		if uint64(seg.offset) < d.cursor || uint64(seg.offset)+uint64(seg.size) > d.decompressedSize {
			return fmt.Errorf("%w: purge: segment [%d,%d) out of range (cursor=%d, size=%d)",
				ErrCorrupt, seg.offset, seg.offset+seg.size, d.cursor, d.decompressedSize)
		}
		d.cursor = uint64(seg.offset)
		d.pending = seg
		d.pendingLeft = seg.size
	}
}

func (d *purgeDecompressor) verify(out *Buffer) error {
	h := sha1.New() //nolint:gosec // format-mandated integrity hash, not used for security
	n := out.Written
	if n > int(d.decompressedSize) {
		n = int(d.decompressedSize)
	}
	h.Write(out.Data[:n])
	if int(d.decompressedSize) > n {
		h.Write(make([]byte, int(d.decompressedSize)-n))
	}
	sum := h.Sum(nil)
	for i := range sum {
		if sum[i] != d.trailer[i] {
			return fmt.Errorf("%w: purge: SHA-1 mismatch", ErrCorrupt)
		}
	}
	return nil
}

// purgeCompressor is the Purge encoder: it scans for runs of non-zero bytes,
// emitting a segment per run, and accumulates a SHA-1 over the full
// plaintext (including any bytes fed purely for hashing via
// AddPrecedingDataOnlyForPurgeHashing).
type purgeCompressor struct {
	out    []byte
	hasher interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}

	offset   uint64 // absolute offset of the next byte to be fed to Compress
	runStart int64  // -1 when not currently inside a non-zero run
	runBuf   []byte
	started  bool
}

func newPurgeCompressor() *purgeCompressor {
	return &purgeCompressor{runStart: -1}
}

func (c *purgeCompressor) Start() error {
	c.out = c.out[:0]
	c.hasher = sha1.New() //nolint:gosec // format-mandated integrity hash, not used for security
	c.offset = 0
	c.runStart = -1
	c.runBuf = c.runBuf[:0]
	c.started = true
	return nil
}

func (c *purgeCompressor) AddPrecedingDataOnlyForPurgeHashing(data []byte) error {
	c.hasher.Write(data)
	return nil
}

func (c *purgeCompressor) Compress(data []byte) error {
	c.hasher.Write(data)
	for _, b := range data {
		if b != 0 {
			if c.runStart < 0 {
				c.runStart = int64(c.offset)
			}
			c.runBuf = append(c.runBuf, b)
		} else if c.runStart >= 0 {
			c.flushRun()
		}
		c.offset++
	}
	return nil
}

func (c *purgeCompressor) flushRun() {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(c.runStart))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(c.runBuf)))
	c.out = append(c.out, hdr[:]...)
	c.out = append(c.out, c.runBuf...)
	c.runStart = -1
	c.runBuf = c.runBuf[:0]
}

func (c *purgeCompressor) End() error {
	if c.runStart >= 0 {
		c.flushRun()
	}
	var term [8]byte // size == 0 sentinel
	c.out = append(c.out, term[:]...)
	c.out = append(c.out, c.hasher.Sum(nil)...)
	return nil
}

func (c *purgeCompressor) Data() []byte { return c.out }
