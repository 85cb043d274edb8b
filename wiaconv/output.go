package wiaconv

import (
	"fmt"
	"io"
	"sync"

	"github.com/wiatool/wia"
)

// writer carries the whole conversion run's mutable state: the plan, the
// output file, and the result of the final table/header write-back.
type writer struct {
	src    BlobReader
	volume VolumeView
	wii    wia.WiiCrypto
	out    io.WriterAt
	opts   Options
	plan   *layout

	header2CompressorData []byte
	dataOffset            uint64 // first byte past Header-1/Header-2, where group payloads begin

	// reusableGroups maps a ReuseID to the GroupEntry of the first group
	// that produced it, guarded by mu — the output stage itself is strictly
	// serialized today, but the guard documents the invariant rather than
	// relying on that happening to be true.
	reusableGroups map[reuseKey]wia.GroupEntry
	mu             sync.Mutex

	groupEntries []wia.GroupEntry

	cursor uint64 // next write offset in the output file
}

// writeGroupsOrdered reassembles compressed results in group order,
// resolving dedup hits and writing new bytes 4-byte aligned.
func (w *writer) writeGroupsOrdered(results []groupResult) error {
	w.reusableGroups = make(map[reuseKey]wia.GroupEntry)
	w.groupEntries = make([]wia.GroupEntry, len(results))
	w.cursor = w.dataOffset

	for i, r := range results {
		entry, err := w.writeOneGroup(r)
		if err != nil {
			return fmt.Errorf("%w: write group %d: %w", wia.ErrWriteFailed, r.groupIndex, err)
		}
		w.groupEntries[i] = entry

		if w.opts.Progress != nil {
			if !w.opts.Progress(uint64(i+1), 0, w.cursor, uint64(len(results))) {
				return wia.ErrCallbackAborted
			}
		}
	}
	return nil
}

func (w *writer) writeOneGroup(r groupResult) (wia.GroupEntry, error) {
	if r.isZero {
		return wia.NewGroupEntry(0, 0, false), nil
	}

	if r.reuse != nil {
		w.mu.Lock()
		existing, ok := w.reusableGroups[*r.reuse]
		w.mu.Unlock()
		if ok {
			return existing, nil
		}
	}

	offset := w.cursor
	if _, err := w.out.WriteAt(r.payload, int64(offset)); err != nil {
		return wia.GroupEntry{}, fmt.Errorf("%w: %w", wia.ErrIO, err)
	}
	padded := uint64(len(r.payload)) + wia.PadTo4(uint64(len(r.payload)))
	w.cursor += padded

	entry := wia.NewGroupEntry(offset, uint32(len(r.payload)), r.compressedExceptionLists)

	if r.reuse != nil {
		w.mu.Lock()
		if _, ok := w.reusableGroups[*r.reuse]; !ok {
			w.reusableGroups[*r.reuse] = entry
		}
		w.mu.Unlock()
	}

	return entry, nil
}
