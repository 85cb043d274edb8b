// Package wiaconv implements the writer / conversion pipeline that turns a
// plain disc image into a WIA or RVZ container: plan the table layout,
// compress groups in a bounded worker pool, deduplicate repeated-byte
// groups, and serialize output in strict group order before back-patching
// the headers.
package wiaconv

import (
	"context"
	"fmt"
	"io"

	"github.com/wiatool/wia"
	"github.com/wiatool/wia/wiacodec"
)

// BlobReader is the source-side collaborator: the image being converted.
// A *wia.Reader satisfies it already, so WIA-to-RVZ (or vice versa)
// conversion needs no adapter.
type BlobReader interface {
	Read(offset, size uint64, out []byte) error
	DataSize() uint64
	IsDataSizeAccurate() bool
	BlockSize() uint32
	HasFastRandomAccessInBlock() bool
	SupportsReadWiiDecrypted() bool
	ReadWiiDecrypted(offset, size uint64, out []byte, partitionDataOffset uint64) error
	BlobType() wia.BlobType
}

// VolumeView is the writer-only collaborator that knows how the source
// image's Wii partitions are laid out.
type VolumeView interface {
	// Partitions returns every Wii partition's title key and the byte range
	// of its data area (sector-aligned, as wia.PartitionDataEntry stores it).
	Partitions() []VolumePartition
}

// VolumePartition is one partition as reported by a VolumeView.
type VolumePartition struct {
	Key        wia.WiiKey
	DataOffset uint64 // byte offset of the partition's data area in the logical image
	DataSize   uint64
}

// ProgressFunc is polled between groups; a false return aborts the
// conversion with wia.ErrCallbackAborted.
type ProgressFunc func(groupsDone, bytesRead, bytesWritten, totalGroups uint64) bool

// Options configures one conversion run.
type Options struct {
	Variant          wia.BlobType
	Compression      wiacodec.Type
	CompressionLevel int
	ChunkSize        uint32

	// MaxConcurrency bounds the compression worker pool. Zero or a
	// negative value means 4 workers.
	MaxConcurrency int

	// AllowJunkReuse is carried in Options but not consulted by the
	// writer: groups whose plaintext is a single repeated byte are
	// deduplicated via ReuseID whether or not it is set, and groups that
	// pack to junk segments are not deduplicated.
	AllowJunkReuse bool

	Progress ProgressFunc
}

// defaultChunkSize matches the original format's common case (2 MiB);
// callers normally override it from the source image's own BlockSize.
const defaultChunkSize = 2 * 1024 * 1024

func (o Options) chunkSize() uint32 {
	if o.ChunkSize != 0 {
		return o.ChunkSize
	}
	return defaultChunkSize
}

// Convert reads src end-to-end and writes a WIA or RVZ container to out in
// five stages: plan, provisional headers, parallel compress, ordered
// output with dedup, and final back-patch.
func Convert(ctx context.Context, src BlobReader, volume VolumeView, wii wia.WiiCrypto, out io.WriterAt, opts Options) error {
	plan, err := planLayout(src, volume, opts)
	if err != nil {
		return fmt.Errorf("%w: plan: %w", wia.ErrWriteFailed, err)
	}

	w := &writer{
		src:    src,
		volume: volume,
		wii:    wii,
		out:    out,
		opts:   opts,
		plan:   plan,
	}

	if err := w.writeProvisionalHeaders(); err != nil {
		return fmt.Errorf("%w: provisional headers: %w", wia.ErrWriteFailed, err)
	}

	results, err := w.compressGroups(ctx)
	if err != nil {
		return err
	}

	if err := w.writeGroupsOrdered(results); err != nil {
		return err
	}

	if err := w.writeFinalTablesAndHeaders(); err != nil {
		return fmt.Errorf("%w: final headers: %w", wia.ErrWriteFailed, err)
	}

	return nil
}
