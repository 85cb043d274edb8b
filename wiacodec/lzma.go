package wiacodec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// lzma2DictSize decodes the single dictionary-size byte p used by LZMA2:
// (2 | (p & 1)) << (p/2 + 11), with p == 40 meaning the saturated value
// 0xffffffff.
func lzma2DictSize(p byte) (uint32, error) {
	if p > 40 {
		return 0, fmt.Errorf("%w: lzma2 dictionary byte %d > 40", ErrUnsupported, p)
	}
	if p == 40 {
		return 0xffffffff, nil
	}
	return (2 | (uint32(p) & 1)) << (uint32(p)/2 + 11), nil
}

// lzmaProperties unpacks the classic LZMA properties byte into lc/lp/pb.
// The common default is lc=3, lp=0, pb=2 (byte 0x5D), but WIA/RVZ's
// properties come from the container rather than being fixed, so this
// generalizes to arbitrary compressor_data.
func lzmaProperties(b byte) (lc, lp, pb int) {
	v := int(b)
	lc = v % 9
	v /= 9
	lp = v % 5
	v /= 5
	pb = v % 5
	return
}

func lzmaPropertiesByte(lc, lp, pb int) byte {
	return byte((pb*5+lp)*9 + lc)
}

// lzmaDecompressor decodes either raw LZMA or framed LZMA2, selected at
// construction. Unlike the other codecs in this package it re-decodes the
// entire buffered stream on every call, keeping the output of the latest
// attempt, until one decode completes without error, because
// ulikunitz/xz/lzma's readers are not designed
// to resume across short reads the way the rest of this package's adapters
// are.
type lzmaDecompressor struct {
	lzma2            bool
	dictSize         uint32
	lc, lp, pb       int
	decompressedSize uint64

	buffered []byte
	out      []byte
	outPos   int
	decoded  bool
	poisoned error
}

func newLZMADecompressor(lzma2 bool, compressorData []byte) (*lzmaDecompressor, error) {
	d := &lzmaDecompressor{lzma2: lzma2}
	if lzma2 {
		if len(compressorData) < 1 {
			return nil, fmt.Errorf("%w: lzma2: missing dictionary byte", ErrUnsupported)
		}
		dict, err := lzma2DictSize(compressorData[0])
		if err != nil {
			return nil, err
		}
		d.dictSize = dict
		return d, nil
	}
	if len(compressorData) < 5 {
		return nil, fmt.Errorf("%w: lzma: compressor data too short", ErrUnsupported)
	}
	d.lc, d.lp, d.pb = lzmaProperties(compressorData[0])
	d.dictSize = leUint32(compressorData[1:5])
	return d, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (d *lzmaDecompressor) Done() bool { return d.decoded && d.outPos >= len(d.out) }

func (d *lzmaDecompressor) Close() error { return nil }

func (d *lzmaDecompressor) Decompress(in, out *Buffer, inBytesRead *int) error {
	if d.poisoned != nil {
		return d.poisoned
	}

	d.buffered = append(d.buffered, in.Data[*inBytesRead:in.Written]...)
	*inBytesRead = in.Written

	if !d.decoded {
		decoded, err := d.decodeAll(out.Remaining() + out.Written)
		if err != nil {
			// Tolerate a truncated stream: wait for more input.
			if len(decoded) == 0 {
				return nil
			}
		}
		d.out = decoded
		d.decoded = err == nil
	}

	n := min(len(d.out)-d.outPos, out.Remaining())
	copy(out.Data[out.Written:out.Written+n], d.out[d.outPos:d.outPos+n])
	out.Written += n
	d.outPos += n
	return nil
}

func (d *lzmaDecompressor) decodeAll(decompressedSize int) ([]byte, error) {
	if d.lzma2 {
		cfg := lzma.Reader2Config{DictCap: int(d.dictSize)}
		if err := cfg.Verify(); err != nil {
			cfg = lzma.Reader2Config{}
		}
		r, err := cfg.NewReader2(bytes.NewReader(d.buffered))
		if err != nil {
			d.poisoned = fmt.Errorf("%w: lzma2 init: %w", ErrCorrupt, err)
			return nil, d.poisoned
		}
		return io.ReadAll(r)
	}

	// Synthesize the classic 13-byte .lzma header the library expects:
	// properties byte, little-endian dict size, little-endian uncompressed
	// size, built from container-supplied parameters rather than read off
	// the wire, since WIA/RVZ stores raw LZMA streams with no embedded
	// header.
	var hdr [13]byte
	hdr[0] = lzmaPropertiesByte(d.lc, d.lp, d.pb)
	putLE32(hdr[1:5], d.dictSize)
	putLE64(hdr[5:13], uint64(decompressedSize))

	full := make([]byte, 0, len(hdr)+len(d.buffered))
	full = append(full, hdr[:]...)
	full = append(full, d.buffered...)

	r, err := lzma.NewReader(bytes.NewReader(full))
	if err != nil {
		d.poisoned = fmt.Errorf("%w: lzma init: %w", ErrCorrupt, err)
		return nil, d.poisoned
	}
	return io.ReadAll(r)
}

func putLE32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

func putLE64(b []byte, v uint64) {
	for i := range 8 {
		b[i] = byte(v >> (8 * i))
	}
}

// lzmaCompressor mirrors the decompressor's dual-mode shape for the write
// path, using the common default property set (lc=3, lp=0, pb=2), with a
// dictionary size derived from the caller-chosen level rather than
// hardcoded, since the writer must pick real parameters to advertise in
// compressor_data.
type lzmaCompressor struct {
	lzma2 bool
	level int
	buf   *bytes.Buffer
	w     io.WriteCloser

	compressorData []byte
}

func newLZMACompressor(lzma2 bool, level int) (*lzmaCompressor, []byte, error) {
	dictSize := uint32(1 << (20 + uint(min(level, 9))/2)) // 1MiB..16MiB scaling with level
	c := &lzmaCompressor{lzma2: lzma2, level: level}

	if lzma2 {
		p, err := dictSizeToLZMA2Byte(dictSize)
		if err != nil {
			return nil, nil, err
		}
		c.compressorData = []byte{p}
	} else {
		var data [5]byte
		data[0] = lzmaPropertiesByte(3, 0, 2)
		putLE32(data[1:5], dictSize)
		c.compressorData = data[:]
	}
	return c, c.compressorData, nil
}

// dictSizeToLZMA2Byte inverts lzma2DictSize for the smallest p whose decoded
// dictionary size is >= want.
func dictSizeToLZMA2Byte(want uint32) (byte, error) {
	for p := byte(0); p <= 40; p++ {
		sz, err := lzma2DictSize(p)
		if err != nil {
			return 0, err
		}
		if sz >= want {
			return p, nil
		}
	}
	return 40, nil
}

func (c *lzmaCompressor) Start() error {
	c.buf = new(bytes.Buffer)
	if c.lzma2 {
		dictSize, err := lzma2DictSize(c.compressorData[0])
		if err != nil {
			return err
		}
		cfg := lzma.Writer2Config{DictCap: int(dictSize)}
		w, err := cfg.NewWriter2(c.buf)
		if err != nil {
			return fmt.Errorf("%w: lzma2 init: %w", ErrCorrupt, err)
		}
		c.w = w
		return nil
	}

	lc, lp, pb := lzmaProperties(c.compressorData[0])
	dictSize := leUint32(c.compressorData[1:5])
	cfg := lzma.WriterConfig{
		Properties: &lzma.Properties{LC: lc, LP: lp, PB: pb},
		DictCap:    int(dictSize),
		SizeInHeader: true,
	}
	w, err := cfg.NewWriter(c.buf)
	if err != nil {
		return fmt.Errorf("%w: lzma init: %w", ErrCorrupt, err)
	}
	c.w = w
	return nil
}

func (c *lzmaCompressor) Compress(data []byte) error {
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("%w: lzma write: %w", ErrCorrupt, err)
	}
	return nil
}

func (c *lzmaCompressor) End() error {
	return c.w.Close()
}

func (c *lzmaCompressor) Data() []byte {
	if c.lzma2 {
		return c.buf.Bytes()
	}
	// Strip the 13-byte legacy header the writer prepends; WIA/RVZ stores
	// raw LZMA streams and reconstructs the header from compressor_data
	// at decode time.
	b := c.buf.Bytes()
	if len(b) >= 13 {
		return b[13:]
	}
	return b
}
