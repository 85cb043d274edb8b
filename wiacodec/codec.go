// Package wiacodec implements the streaming (de)compression adapters used by
// the WIA/RVZ container: a uniform, resumable contract over None, Purge,
// Bzip2, LZMA, LZMA2 and Zstd, matching the closed set of compression tags
// the format declares in Header-2.
package wiacodec

import (
	"errors"
	"fmt"
)

// Type identifies one of the container's compression codecs.
type Type uint32

const (
	None  Type = 0
	Purge Type = 1
	Bzip2 Type = 2
	LZMA  Type = 3
	LZMA2 Type = 4
	Zstd  Type = 5
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Purge:
		return "purge"
	case Bzip2:
		return "bzip2"
	case LZMA:
		return "lzma"
	case LZMA2:
		return "lzma2"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

var (
	// ErrUnsupported indicates an unknown compression tag, or a codec parameter
	// outside its supported range (e.g. an LZMA2 dictionary byte above 40).
	ErrUnsupported = errors.New("wiacodec: unsupported compression type or parameter")

	// ErrCorrupt indicates the compressed stream could not be decoded, or that
	// a codec-specific integrity check (Purge's trailing SHA-1) failed.
	ErrCorrupt = errors.New("wiacodec: corrupt compressed stream")
)

// LevelRange returns the inclusive compression level range accepted by the
// codec, matching the original format's GetAllowedCompressionLevels.
func LevelRange(t Type) (min, max int) {
	switch t {
	case None, Purge:
		return 0, 0
	case Bzip2:
		return 1, 9
	case LZMA, LZMA2:
		return 0, 9
	case Zstd:
		return 1, 22
	default:
		return 0, 0
	}
}

// Buffer is the shared in/out buffer passed across Decompress calls. Data is
// sized to the buffer's full capacity up front; Written tracks how much of
// it currently holds valid bytes. Decompressors never write past len(Data).
type Buffer struct {
	Data    []byte
	Written int
}

// NewBuffer allocates a Buffer with the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{Data: make([]byte, capacity)}
}

// Remaining reports how much room is left to write into.
func (b *Buffer) Remaining() int {
	return len(b.Data) - b.Written
}

// Decompressor is the uniform incremental decoding contract described in
// spec §4.1: it consumes as much of in as it can starting at *inBytesRead,
// writes as much as it can into out starting at out.Written, and reports
// whether decoding is complete. Partial input must be tolerated — the
// caller may append more bytes to in.Data and call again.
type Decompressor interface {
	// Decompress advances in and out. in.Data[*inBytesRead:in.Written] is the
	// unconsumed input; out.Data[:out.Written] is what has already been
	// produced. A terminal error poisons the decompressor: every subsequent
	// call must fail the same way.
	Decompress(in, out *Buffer, inBytesRead *int) error

	// Done reports whether the logical end of the stream has been reached.
	Done() bool

	// Close releases any resources the decompressor holds open across
	// calls (background goroutines, pipes). Safe to call more than once;
	// callers must call it once they are done with the decompressor,
	// whether or not decoding reached Done.
	Close() error
}

// Compressor is the mirror streaming contract for the write path: Start,
// then any number of Compress (optionally preceded by
// AddPrecedingDataOnlyForPurgeHashing), then End, then Data.
type Compressor interface {
	Start() error
	Compress(data []byte) error
	End() error
	Data() []byte
}

// PurgeHasher is implemented only by compressors that need to fold in bytes
// that precede the compressed run without emitting them — currently only
// Purge, whose trailing SHA-1 covers zero padding supplied out-of-band.
type PurgeHasher interface {
	AddPrecedingDataOnlyForPurgeHashing(data []byte) error
}

// NewDecompressor constructs the decompressor for t. compressorData carries
// codec parameters straight from Header-2 (LZMA filter properties, the
// LZMA2 dictionary byte); decompressedSize is the chunk's known output size,
// used by codecs (None, Purge) that must recognize end-of-stream by length
// rather than by an internal framing marker.
func NewDecompressor(t Type, compressorData []byte, decompressedSize uint64) (Decompressor, error) {
	switch t {
	case None:
		return newNoneDecompressor(decompressedSize), nil
	case Purge:
		return newPurgeDecompressor(decompressedSize), nil
	case Bzip2:
		return newBzip2Decompressor(), nil
	case LZMA:
		return newLZMADecompressor(false, compressorData)
	case LZMA2:
		return newLZMADecompressor(true, compressorData)
	case Zstd:
		return newZstdDecompressor()
	default:
		return nil, fmt.Errorf("%w: compression type %d", ErrUnsupported, uint32(t))
	}
}

// NewCompressor constructs the compressor for t at the given level.
// compressorDataOut receives up to 7 bytes of codec-specific parameters to
// be written into Header-2, matching the original ABI.
func NewCompressor(t Type, level int) (c Compressor, compressorDataOut []byte, err error) {
	switch t {
	case None:
		return newNoneCompressor(), nil, nil
	case Purge:
		return newPurgeCompressor(), nil, nil
	case Bzip2:
		return newBzip2Compressor(level), nil, nil
	case LZMA:
		return newLZMACompressor(false, level)
	case LZMA2:
		return newLZMACompressor(true, level)
	case Zstd:
		return newZstdCompressor(level), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: compression type %d", ErrUnsupported, uint32(t))
	}
}
