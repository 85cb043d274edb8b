package wiacodec

// noneDecompressor is the identity codec: the output is the input verbatim.
// Grounded on chd's HunkCompTypeNone path (hunk.go readUncompressedHunk),
// adapted here into the streaming Decompressor contract since WIA/RVZ's
// None codec still flows through the same chunked buffering as every other
// codec, unlike CHD's direct-read shortcut.
type noneDecompressor struct {
	decompressedSize uint64
	done             bool
}

func newNoneDecompressor(decompressedSize uint64) *noneDecompressor {
	return &noneDecompressor{decompressedSize: decompressedSize}
}

func (d *noneDecompressor) Decompress(in, out *Buffer, inBytesRead *int) error {
	avail := in.Written - *inBytesRead
	room := out.Remaining()
	n := min(avail, room)
	copy(out.Data[out.Written:out.Written+n], in.Data[*inBytesRead:*inBytesRead+n])
	*inBytesRead += n
	out.Written += n
	if uint64(out.Written) >= d.decompressedSize {
		d.done = true
	}
	return nil
}

func (d *noneDecompressor) Done() bool { return d.done }

func (d *noneDecompressor) Close() error { return nil }

type noneCompressor struct {
	data []byte
}

func newNoneCompressor() *noneCompressor { return &noneCompressor{} }

func (c *noneCompressor) Start() error { c.data = c.data[:0]; return nil }

func (c *noneCompressor) Compress(data []byte) error {
	c.data = append(c.data, data...)
	return nil
}

func (c *noneCompressor) End() error { return nil }

func (c *noneCompressor) Data() []byte { return c.data }
