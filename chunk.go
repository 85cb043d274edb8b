package wia

import (
	"errors"
	"fmt"
	"io"

	"github.com/wiatool/wia/wiacodec"
)

// inputSlabSize bounds how much compressed input is pulled from the file
// per fill, reading in capped slabs rather than the whole chunk at once.
const inputSlabSize = 64 * 1024

// Chunk owns one group's state: buffered compressed input, the attached
// codec, and the decoded output once available. It never rewinds its
// codec — callers must issue reads with monotonically nondecreasing offsets,
// or offsets that remain within already-decoded output.
type Chunk struct {
	file           io.ReaderAt
	fileOffset     uint64
	compressedSize uint64

	// totalDecompressedSize includes any exception-list bytes that flow
	// through the codec (the compressed-exception-lists / packed case); it
	// is the size the codec itself must be told to stop at.
	totalDecompressedSize uint64

	numExceptionLists        int
	compressedExceptionLists bool
	dataOffset               uint64 // chunk's logical offset in the image, for unpack
	packed                   bool

	in     *wiacodec.Buffer
	out    *wiacodec.Buffer
	decomp wiacodec.Decompressor
	inRead int // cursor into in.Data consumed by the codec so far

	listsByteLen int // bytes of out.Data (or raw input) occupied by exception lists
	lists        [][]HashExceptionEntry
	listsReady   bool

	unpacked   []byte // post-unpack plaintext, populated lazily when packed
	unpackedOK bool

	poisoned error
}

// wrapCodecErr maps a wiacodec sentinel error onto this package's own
// error taxonomy so that errors.Is(err, ErrCorruptChunk) and
// errors.Is(err, ErrUnsupportedCompression) succeed for codec-layer
// failures, not just for errors raised directly in this package.
func wrapCodecErr(err error) error {
	switch {
	case errors.Is(err, wiacodec.ErrUnsupported):
		return fmt.Errorf("%w: %w", ErrUnsupportedCompression, err)
	case errors.Is(err, wiacodec.ErrCorrupt):
		return fmt.Errorf("%w: %w", ErrCorruptChunk, err)
	default:
		return err
	}
}

// newChunk constructs a Chunk for one group. decompressedSize is the total
// number of bytes the codec must produce, including any exception-list
// bytes that are interleaved with the main payload (packed variant).
func newChunk(
	file io.ReaderAt, fileOffset, compressedSize, decompressedSize uint64,
	codecType wiacodec.Type, compressorData []byte,
	numExceptionLists int, compressedExceptionLists bool,
	dataOffset uint64, packed bool,
) (*Chunk, error) {
	decomp, err := wiacodec.NewDecompressor(codecType, compressorData, decompressedSize)
	if err != nil {
		return nil, wrapCodecErr(err)
	}
	c := &Chunk{
		file:                     file,
		fileOffset:               fileOffset,
		compressedSize:           compressedSize,
		totalDecompressedSize:    decompressedSize,
		numExceptionLists:        numExceptionLists,
		compressedExceptionLists: compressedExceptionLists,
		dataOffset:               dataOffset,
		packed:                   packed,
		in:                       wiacodec.NewBuffer(int(compressedSize)),
		out:                      wiacodec.NewBuffer(int(decompressedSize)),
		decomp:                   decomp,
	}
	if numExceptionLists == 0 {
		c.listsReady = true
	}
	return c, nil
}

// fillInput pulls more compressed bytes from the file so that at least
// `through` bytes (relative to the chunk's start) are buffered, capped at
// one slab per call.
func (c *Chunk) fillInput(through uint64) error {
	if through > c.compressedSize {
		through = c.compressedSize
	}
	if uint64(c.in.Written) >= through {
		return nil
	}
	want := through - uint64(c.in.Written)
	if want > inputSlabSize {
		want = inputSlabSize
	}
	n, err := c.file.ReadAt(c.in.Data[c.in.Written:c.in.Written+int(want)], int64(c.fileOffset)+int64(c.in.Written))
	if n > 0 {
		c.in.Written += n
	}
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: read chunk input: %w", ErrIO, err)
	}
	if n == 0 && err == io.EOF && uint64(c.in.Written) < through {
		return fmt.Errorf("%w: chunk input truncated at %d of %d bytes", ErrIO, c.in.Written, c.compressedSize)
	}
	return nil
}

// ensureExceptionLists parses the numExceptionLists hash-exception lists
// that precede the main payload. For the uncompressed-list case they are
// read directly from the input stream, bypassing the codec entirely, and
// the cursor is then aligned to 4 bytes. For the compressed case they are
// the first bytes the codec itself produces.
func (c *Chunk) ensureExceptionLists() error {
	if c.listsReady {
		return nil
	}
	if c.poisoned != nil {
		return c.poisoned
	}

	if !c.compressedExceptionLists {
		if err := c.fillInput(c.compressedSize); err != nil {
			return err
		}
		pos := 0
		lists := make([][]HashExceptionEntry, c.numExceptionLists)
		for i := range c.numExceptionLists {
			entries, n, err := parseHashExceptionList(c.in.Data[pos:c.in.Written])
			if err != nil {
				c.poisoned = err
				return err
			}
			lists[i] = entries
			pos += n
		}
		pos += int(PadTo4(uint64(pos)))
		c.inRead = pos
		c.listsByteLen = 0 // lists never occupy out.Data in this path
		c.lists = lists
		c.listsReady = true
		return nil
	}

	// Compressed-exception-lists path: decode through the codec until all
	// list bytes are available in out.Data, then parse them from there.
	lists := make([][]HashExceptionEntry, c.numExceptionLists)
	pos := 0
	for i := range c.numExceptionLists {
		for {
			if pos+2 <= c.out.Written {
				count := int(c.out.Data[pos])<<8 | int(c.out.Data[pos+1])
				need := 2 + count*HashExceptionEntrySize
				if pos+need <= c.out.Written {
					entries, n, err := parseHashExceptionList(c.out.Data[pos:c.out.Written])
					if err != nil {
						c.poisoned = err
						return err
					}
					lists[i] = entries
					pos += n
					break
				}
			}
			if c.decomp.Done() {
				c.poisoned = fmt.Errorf("%w: exception lists truncated", ErrCorruptChunk)
				return c.poisoned
			}
			if err := c.decodeMore(); err != nil {
				return err
			}
		}
	}
	c.listsByteLen = pos
	c.lists = lists
	c.listsReady = true
	return nil
}

// decodeMore feeds the codec one slab's worth of additional input (filling
// more from the file as needed) and lets it produce more output.
func (c *Chunk) decodeMore() error {
	if c.poisoned != nil {
		return c.poisoned
	}
	through := uint64(c.inRead) + inputSlabSize
	if err := c.fillInput(through); err != nil {
		return err
	}
	before := c.out.Written
	if err := c.decomp.Decompress(c.in, c.out, &c.inRead); err != nil {
		c.poisoned = wrapCodecErr(err)
		return c.poisoned
	}
	if c.out.Written == before && !c.decomp.Done() && c.inRead >= c.in.Written && uint64(c.in.Written) >= c.compressedSize {
		c.poisoned = fmt.Errorf("%w: codec made no progress with all input consumed", ErrCorruptChunk)
		return c.poisoned
	}
	return nil
}

// ensureMainData decodes main payload bytes up through the first
// throughMain bytes of main data (i.e. excluding the exception-list
// prefix, if any).
func (c *Chunk) ensureMainData(throughMain uint64) error {
	if err := c.ensureExceptionLists(); err != nil {
		return err
	}
	target := c.listsByteLen + int(throughMain)
	if target > len(c.out.Data) {
		target = len(c.out.Data)
	}
	for c.out.Written < target && !c.decomp.Done() {
		if err := c.decodeMore(); err != nil {
			return err
		}
	}
	if c.out.Written < target {
		return fmt.Errorf("%w: chunk produced %d bytes, need %d", ErrCorruptChunk, c.out.Written, target)
	}
	return nil
}

// mainBytes returns the fully available main-payload slice decoded so far
// (excluding any exception-list prefix), unpacking it first if this is a
// packed-variant chunk. Used by Read for the reader's slicing.
func (c *Chunk) mainBytes() ([]byte, error) {
	raw := c.out.Data[c.listsByteLen:c.out.Written]
	if !c.packed {
		return raw, nil
	}
	if c.unpackedOK {
		return c.unpacked, nil
	}
	unpacked, err := UnpackChunk(raw, c.dataOffset)
	if err != nil {
		return nil, err
	}
	c.unpacked = unpacked
	c.unpackedOK = true
	return unpacked, nil
}

// Read fills dst with size bytes of the chunk's decoded logical data
// starting at offset (relative to the chunk's own start, not the image).
func (c *Chunk) Read(offset, size uint64, dst []byte) error {
	if c.packed {
		// Packed chunks must be decoded to completion before slicing, since
		// segment boundaries don't correspond 1:1 with logical byte offsets.
		if err := c.ensureExceptionLists(); err != nil {
			return err
		}
		mainSize := c.totalDecompressedSize - uint64(c.listsByteLen)
		if err := c.ensureMainData(mainSize); err != nil {
			return err
		}
	} else if err := c.ensureMainData(offset + size); err != nil {
		return err
	}

	main, err := c.mainBytes()
	if err != nil {
		return err
	}
	if offset+size > uint64(len(main)) {
		return fmt.Errorf("%w: read [%d,%d) exceeds decoded main data of %d bytes",
			ErrCorruptChunk, offset, offset+size, len(main))
	}
	copy(dst, main[offset:offset+size])
	return nil
}

// Close releases the chunk's decompressor. Callers must close a Chunk once
// it is no longer reachable — directly once a temporary chunk (e.g. a table
// read) goes out of scope, or via the reader's cache eviction path — so a
// codec holding a background goroutine or pipe (zstd) doesn't leak past the
// chunk's last use.
func (c *Chunk) Close() error {
	if c.decomp == nil {
		return nil
	}
	return c.decomp.Close()
}

// GetHashExceptions returns the parsed entries of the given list with every
// entry's Offset increased by additionalOffset.
func (c *Chunk) GetHashExceptions(listIndex int, additionalOffset uint16) ([]HashExceptionEntry, error) {
	if err := c.ensureExceptionLists(); err != nil {
		return nil, err
	}
	if listIndex < 0 || listIndex >= len(c.lists) {
		return nil, fmt.Errorf("%w: exception list index %d out of range [0,%d)",
			ErrCorruptChunk, listIndex, len(c.lists))
	}
	src := c.lists[listIndex]
	out := make([]HashExceptionEntry, len(src))
	for i, e := range src {
		e.Offset += additionalOffset
		out[i] = e
	}
	return out, nil
}
