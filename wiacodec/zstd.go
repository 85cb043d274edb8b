package wiacodec

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// zstdDecompressor wraps klauspost/compress/zstd's streaming decoder behind
// an io.Pipe so that Decompress's incremental in/out contract can drive a
// real streaming decoder instead of decode-on-demand buffering, keeping a
// long-lived *zstd.Decoder across calls rather than recreating one.
type zstdDecompressor struct {
	dec *zstd.Decoder
	pw  *io.PipeWriter

	readErrCh chan error
	readBuf   []byte
	readErr   error
	eof       bool

	poisoned error
}

func newZstdDecompressor() (*zstdDecompressor, error) {
	pr, pw := io.Pipe()
	dec, err := zstd.NewReader(pr)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd init: %w", ErrCorrupt, err)
	}
	d := &zstdDecompressor{dec: dec, pw: pw}
	return d, nil
}

func (d *zstdDecompressor) Done() bool { return d.eof }

// Close tears down the pipe and the background decode goroutine *zstd.Decoder
// keeps running internally. Without this, a decompressor that is evicted
// before reaching Done (e.g. the reader's single-slot chunk cache discarding
// a partially-read chunk) leaks that goroutine for the life of the process,
// permanently blocked writing to or reading from the pipe.
func (d *zstdDecompressor) Close() error {
	err := d.pw.Close()
	d.dec.Close()
	return err
}

func (d *zstdDecompressor) Decompress(in, out *Buffer, inBytesRead *int) error {
	if d.poisoned != nil {
		return d.poisoned
	}

	avail := in.Data[*inBytesRead:in.Written]
	if len(avail) > 0 {
		n, err := d.pw.Write(avail)
		*inBytesRead += n
		if err != nil {
			d.poisoned = fmt.Errorf("%w: zstd feed: %w", ErrCorrupt, err)
			return d.poisoned
		}
	}

	for out.Remaining() > 0 && !d.eof {
		n, err := d.dec.Read(out.Data[out.Written : out.Written+out.Remaining()])
		out.Written += n
		if err == io.EOF {
			d.eof = true
			break
		}
		if err != nil {
			d.poisoned = fmt.Errorf("%w: zstd decode: %w", ErrCorrupt, err)
			return d.poisoned
		}
		if n == 0 {
			break // decoder is waiting for more input than we have buffered
		}
	}
	return nil
}

// zstdCompressor buffers all input and encodes once on End with the
// one-shot encoder, since the write path here always has the full chunk
// in memory before compression begins.
type zstdCompressor struct {
	level int
	buf   []byte
	out   []byte
}

func newZstdCompressor(level int) *zstdCompressor {
	return &zstdCompressor{level: level}
}

func (c *zstdCompressor) Start() error {
	c.buf = c.buf[:0]
	c.out = nil
	return nil
}

func (c *zstdCompressor) Compress(data []byte) error {
	c.buf = append(c.buf, data...)
	return nil
}

func (c *zstdCompressor) End() error {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(c.level)))
	if err != nil {
		return fmt.Errorf("%w: zstd init: %w", ErrCorrupt, err)
	}
	c.out = enc.EncodeAll(c.buf, nil)
	return enc.Close()
}

func (c *zstdCompressor) Data() []byte { return c.out }

// zstdLevel maps the container's 1..22 level range onto klauspost's coarser
// EncoderLevel enum, spreading proportionally rather than clamping everything
// above SpeedBestCompression to the same bucket.
func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 3:
		return zstd.SpeedFastest
	case level <= 9:
		return zstd.SpeedDefault
	case level <= 15:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}
