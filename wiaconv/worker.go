package wiaconv

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/wiatool/wia"
	"github.com/wiatool/wia/wiacodec"
)

// reuseKey is the writer's ReuseID: a totally-ordered-by-equality tuple
// identifying a group whose plaintext is a single repeated byte. Comparable,
// so it doubles as a Go map key.
type reuseKey struct {
	partitionKey wia.WiiKey
	dataSize     uint32
	encrypted    bool
	sentinel     byte
}

// groupResult is one compressed group, ready for the ordered output stage.
type groupResult struct {
	groupIndex uint32

	isZero bool // plaintext is entirely zero bytes at full chunk size: emit compressed_size=0, no bytes

	reuse   *reuseKey // set when this group is eligible to be deduplicated or to satisfy a later dedup
	payload []byte    // exception-lists-bytes || compressed main data, 4-byte-padded by the output stage
	compressedExceptionLists bool
}

// compressGroups runs a bounded worker pool that compresses every group
// independently and returns results ordered by group index, grounded on
// containerd's errgroup+semaphore worker-pool pattern (cmd/dist/push.go,
// pkg/transfer/local/transfer.go).
func (w *writer) compressGroups(ctx context.Context) ([]groupResult, error) {
	results := make([]groupResult, len(w.plan.work))

	maxConcurrency := w.opts.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	sem := semaphore.NewWeighted(int64(maxConcurrency))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, work := range w.plan.work {
		i, work := i, work
		if err := sem.Acquire(egCtx, 1); err != nil {
			break
		}
		eg.Go(func() error {
			defer sem.Release(1)
			r, err := w.compressOne(work)
			if err != nil {
				return fmt.Errorf("group %d: %w", work.groupIndex, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", wia.ErrWriteFailed, err)
	}
	return results, nil
}

// compressOne compresses a single group: read plaintext, detect the
// all-zero and uniform-byte fast paths, diff hash exceptions, and run the
// configured codec.
func (w *writer) compressOne(work groupWork) (groupResult, error) {
	plaintext, exceptions, err := w.readGroupPlaintext(work)
	if err != nil {
		return groupResult{}, err
	}

	if isAllZero(plaintext) && uint64(len(plaintext)) == uint64(w.opts.chunkSize()) {
		return groupResult{groupIndex: work.groupIndex, isZero: true}, nil
	}

	var partitionKey wia.WiiKey
	if work.isWii {
		partitionKey = w.plan.partitions[work.partitionIndex].source.Key
	}
	reuse := uniformByteKey(plaintext, work, w.opts.chunkSize(), partitionKey)

	mainPlain := plaintext
	if w.opts.Variant == wia.BlobRVZ {
		mainPlain = wia.PackChunk(plaintext, work.sourceOffset)
	}

	var listBytes []byte
	for _, list := range exceptions {
		listBytes = append(listBytes, wia.MarshalHashExceptionList(list)...)
	}

	comp, _, err := wiacodec.NewCompressor(w.opts.Compression, w.opts.CompressionLevel)
	if err != nil {
		return groupResult{}, fmt.Errorf("new compressor: %w", err)
	}
	if err := comp.Start(); err != nil {
		return groupResult{}, fmt.Errorf("compressor start: %w", err)
	}

	// WIA stores exception lists uncompressed ahead of the codec stream;
	// RVZ (the packed variant) compresses them together with the main
	// payload.
	compressedExceptionLists := work.isWii && w.opts.Variant == wia.BlobRVZ
	var toCompress []byte
	var uncompressedPrefix []byte
	if compressedExceptionLists {
		toCompress = append(append([]byte(nil), listBytes...), mainPlain...)
	} else {
		uncompressedPrefix = listBytes
		toCompress = mainPlain
	}

	if err := comp.Compress(toCompress); err != nil {
		return groupResult{}, fmt.Errorf("compress: %w", err)
	}
	if err := comp.End(); err != nil {
		return groupResult{}, fmt.Errorf("compressor end: %w", err)
	}

	payload := comp.Data()
	if !compressedExceptionLists && len(uncompressedPrefix) > 0 {
		padded := append(append([]byte(nil), uncompressedPrefix...), make([]byte, wia.PadTo4(uint64(len(uncompressedPrefix))))...)
		payload = append(padded, payload...)
	}

	return groupResult{
		groupIndex:               work.groupIndex,
		reuse:                    reuse,
		payload:                  payload,
		compressedExceptionLists: compressedExceptionLists,
	}, nil
}

// readGroupPlaintext fetches one group's plaintext payload. For a Wii group
// it decrypts the source ciphertext (which, read from a raw disc image,
// still carries the hash area) and diffs the recomputed hash blocks against
// the stored ones to build this chunk's single hash-exception list.
func (w *writer) readGroupPlaintext(work groupWork) ([]byte, [][]wia.HashExceptionEntry, error) {
	if !work.isWii {
		buf := make([]byte, work.sourceSize)
		if err := w.src.Read(work.sourceOffset, uint64(work.sourceSize), buf); err != nil {
			return nil, nil, fmt.Errorf("read raw group: %w", err)
		}
		return buf, nil, nil
	}

	pp := w.plan.partitions[work.partitionIndex]
	groupOffsetOnDisc := work.partitionDataOffset + work.wiiGroupOffset
	onDiscSize := uint64(wia.BlocksPerGroup) * 0x8000
	raw := make([]byte, onDiscSize)
	if err := w.src.Read(groupOffsetOnDisc, onDiscSize, raw); err != nil {
		return nil, nil, fmt.Errorf("read wii group ciphertext: %w", err)
	}

	plaintext, hashes, err := w.wii.DecryptGroup(pp.source.Key, work.wiiGroupOffset, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt wii group: %w", err)
	}

	storedHashArea := extractStoredHashArea(raw)
	recomputedHashArea := wia.FlattenHashBlocksForDiff(hashes)

	chunksPerGroup := uint64(wia.ChunksPerWiiGroup(w.opts.chunkSize()))
	bytesPerChunk := uint64(len(storedHashArea)) / chunksPerGroup
	lo := work.subChunkIndex * uint32(bytesPerChunk)
	hi := lo + uint32(bytesPerChunk)
	list := diffHashExceptions(storedHashArea[lo:hi], recomputedHashArea[lo:hi])

	chunkStart := work.subChunkIndex * w.opts.chunkSize()
	end := chunkStart + work.sourceSize
	if end > uint32(len(plaintext)) {
		end = uint32(len(plaintext))
	}
	return plaintext[chunkStart:end], [][]wia.HashExceptionEntry{list}, nil
}

// extractStoredHashArea pulls out the wiiBlockHashSize-byte hash prefix of
// each BlocksPerGroup on-disc block, concatenated in block order.
func extractStoredHashArea(raw []byte) []byte {
	const blockTotal, hashSize = 0x8000, 0x400
	out := make([]byte, 0, wia.BlocksPerGroup*hashSize)
	for i := 0; i < wia.BlocksPerGroup; i++ {
		start := i * blockTotal
		out = append(out, raw[start:start+hashSize]...)
	}
	return out
}

// diffHashExceptions compares stored and recomputed hash bytes in
// SHA-1-sized (20-byte) windows, emitting one exception per
// window that differs, offsets relative to the start of this chunk's slice
// of the group's hash area.
func diffHashExceptions(stored, recomputed []byte) []wia.HashExceptionEntry {
	var out []wia.HashExceptionEntry
	n := len(stored) / 20
	for i := 0; i < n; i++ {
		off := i * 20
		var want [20]byte
		copy(want[:], stored[off:off+20])
		if !bytes.Equal(stored[off:off+20], recomputed[off:off+20]) {
			out = append(out, wia.HashExceptionEntry{Offset: uint16(off), Hash: want})
		}
	}
	return out
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// uniformByteKey reports a ReuseID for plaintext that is a single repeated
// byte over a full chunk. Short final groups are never eligible (their
// size wouldn't match another full-size group's).
func uniformByteKey(plaintext []byte, work groupWork, chunkSize uint32, partitionKey wia.WiiKey) *reuseKey {
	if uint32(len(plaintext)) != chunkSize || len(plaintext) == 0 {
		return nil
	}
	first := plaintext[0]
	for _, b := range plaintext[1:] {
		if b != first {
			return nil
		}
	}
	rk := reuseKey{dataSize: chunkSize, sentinel: first}
	if work.isWii {
		rk.encrypted = true
		rk.partitionKey = partitionKey
	}
	return &rk
}
