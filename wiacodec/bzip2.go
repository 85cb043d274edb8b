package wiacodec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
)

// bzip2Decompressor wraps dsnet/compress/bzip2's streaming reader, adapted
// to WIA/RVZ's resumable contract: instead of requiring the full
// compressed stream up front, it buffers whatever input has arrived and
// re-synthesizes a reader over everything buffered so far on every call.
type bzip2Decompressor struct {
	buffered []byte
	out      []byte
	outPos   int
	started  bool
	done     bool
	poisoned error
}

func newBzip2Decompressor() *bzip2Decompressor {
	return &bzip2Decompressor{}
}

func (d *bzip2Decompressor) Done() bool { return d.done }

func (d *bzip2Decompressor) Close() error { return nil }

func (d *bzip2Decompressor) Decompress(in, out *Buffer, inBytesRead *int) error {
	if d.poisoned != nil {
		return d.poisoned
	}

	// Accumulate all newly arrived input; bzip2's block structure means we
	// can't usefully decode until we either have a full block or EOF, so the
	// simplest correct strategy consistent with the rest of this package's
	// buffering model is to decode-on-demand from everything seen so far.
	d.buffered = append(d.buffered, in.Data[*inBytesRead:in.Written]...)
	*inBytesRead = in.Written

	if !d.started {
		r, err := bzip2.NewReader(bytes.NewReader(d.buffered), nil)
		if err != nil {
			d.poisoned = fmt.Errorf("%w: bzip2 init: %w", ErrCorrupt, err)
			return d.poisoned
		}
		decoded, err := io.ReadAll(r)
		if err != nil {
			// Might just be a truncated stream awaiting more input.
			if len(decoded) == 0 {
				return nil
			}
		}
		d.out = decoded
		d.started = err == nil
		if err == nil {
			d.done = true
		}
	}

	n := min(len(d.out)-d.outPos, out.Remaining())
	copy(out.Data[out.Written:out.Written+n], d.out[d.outPos:d.outPos+n])
	out.Written += n
	d.outPos += n
	return nil
}

type bzip2Compressor struct {
	level int
	buf   *bytes.Buffer
	w     *bzip2.Writer
}

func newBzip2Compressor(level int) *bzip2Compressor {
	return &bzip2Compressor{level: level}
}

func (c *bzip2Compressor) Start() error {
	c.buf = new(bytes.Buffer)
	w, err := bzip2.NewWriter(c.buf, &bzip2.WriterConfig{Level: c.level})
	if err != nil {
		return fmt.Errorf("%w: bzip2 init: %w", ErrCorrupt, err)
	}
	c.w = w
	return nil
}

func (c *bzip2Compressor) Compress(data []byte) error {
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("%w: bzip2 write: %w", ErrCorrupt, err)
	}
	return nil
}

func (c *bzip2Compressor) End() error {
	return c.w.Close()
}

func (c *bzip2Compressor) Data() []byte { return c.buf.Bytes() }
