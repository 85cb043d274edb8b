package wia

import (
	"fmt"
	"sort"
)

// DataEntry is one entry in the offset-ordered index: either a raw-data
// region or one of a partition's two sub-entries.
type DataEntry struct {
	Index              uint32
	IsPartition        bool
	PartitionDataIndex uint8 // 0 or 1, meaningful only when IsPartition

	start uint64 // inclusive
	end   uint64 // exclusive
}

// Index is the offset -> DataEntry sorted map, implemented as a slice
// sorted by start offset with binary search rather than a tree, since it
// is built once at open and never mutated afterward.
type Index struct {
	entries []DataEntry
	packed  bool
}

// buildIndex constructs the index from the parsed partition and raw-data
// tables, merging both into one offset-ordered list and checking for
// overlap.
func buildIndex(partitions []PartitionEntry, rawData []RawDataEntry, packed bool) (*Index, error) {
	idx := &Index{packed: packed}

	for i, rd := range rawData {
		idx.entries = append(idx.entries, DataEntry{
			Index: uint32(i),
			start: rd.DataOffset,
			end:   rd.DataOffset + rd.DataSize,
		})
	}
	for i, p := range partitions {
		for d := range 2 {
			de := p.DataEntries[d]
			start := uint64(de.FirstSector) * sectorSize
			end := start + uint64(de.NumberOfSectors)*sectorSize
			idx.entries = append(idx.entries, DataEntry{
				Index:              uint32(i),
				IsPartition:        true,
				PartitionDataIndex: uint8(d),
				start:              start,
				end:                end,
			})
		}
	}

	// Tie-break by end so that a zero-length anchor sharing a start offset
	// with a longer entry (a partition's management sub-entry anchored at
	// its data sub-entry's own start, see wiaconv/headers.go) always sorts
	// first. That makes the adjacency check below (cur.start >= prev.end)
	// succeed deterministically instead of depending on sort.Slice's
	// unspecified tie-break order for equal start offsets.
	sort.Slice(idx.entries, func(i, j int) bool {
		if idx.entries[i].start != idx.entries[j].start {
			return idx.entries[i].start < idx.entries[j].start
		}
		return idx.entries[i].end < idx.entries[j].end
	})

	if err := idx.checkOverlap(); err != nil {
		return nil, err
	}
	return idx, nil
}

// checkOverlap treats packed-variant overlap as a hard error; the
// unpacked variant tolerates zero-size raw anchors sharing a start offset
// with a partition range, preserved exactly as observed rather than
// tightened.
func (idx *Index) checkOverlap() error {
	for i := 1; i < len(idx.entries); i++ {
		prev, cur := idx.entries[i-1], idx.entries[i]
		if cur.start >= prev.end {
			continue
		}
		if !idx.packed && prev.end == prev.start {
			continue // zero-size anchor, tolerated in the unpacked variant
		}
		if !idx.packed && cur.end == cur.start {
			continue
		}
		return fmt.Errorf("%w: entries [%d,%d) and [%d,%d) overlap",
			ErrDataOverlap, prev.start, prev.end, cur.start, cur.end)
	}
	return nil
}

// Lookup finds the DataEntry containing offset, along with the byte range
// it is clamped to (start, end). Returns ok=false if offset lies past the
// last entry.
func (idx *Index) Lookup(offset uint64) (entry DataEntry, start, end uint64, ok bool) {
	n := len(idx.entries)
	i := sort.Search(n, func(i int) bool { return idx.entries[i].end > offset })
	if i == n || idx.entries[i].start > offset {
		return DataEntry{}, 0, 0, false
	}
	e := idx.entries[i]
	return e, e.start, e.end, true
}
