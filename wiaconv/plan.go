package wiaconv

import (
	"fmt"
	"sort"

	"github.com/wiatool/wia"
)

// groupWork describes one output group's source material, built by
// planLayout and consumed by the compression worker pool. A Wii-managed
// group is one of ChunksPerWiiGroup consecutive chunks spanning a hash
// group; subChunkIndex locates it within that span for hash-exception
// numbering.
type groupWork struct {
	groupIndex uint32 // index into the final, flat group table

	isWii               bool
	partitionIndex      int    // index into plan.partitions, meaningful when isWii
	partitionDataOffset uint64 // byte offset of the partition's data area in the logical image
	wiiGroupOffset      uint64 // this chunk's hash group's start, relative to partitionDataOffset
	subChunkIndex       uint32 // which of ChunksPerWiiGroup chunks in that group this is

	sourceOffset uint64 // logical image offset this group's plaintext starts at
	sourceSize   uint32 // plaintext byte length for this group (may be short, for the final group)
}

// partitionPlan is one Wii partition's computed table entry.
type partitionPlan struct {
	source         VolumePartition
	groupIndex     uint32
	numberOfGroups uint32
}

// rawDataPlan is one raw-data table entry.
type rawDataPlan struct {
	dataOffset     uint64
	dataSize       uint64
	groupIndex     uint32
	numberOfGroups uint32
}

// layout is the complete result of the plan stage: the two tables in their
// final shapes (group indices assigned, ready to marshal) plus the flat,
// ordered work list the compression pool consumes.
type layout struct {
	partitions  []partitionPlan
	rawData     []rawDataPlan
	work        []groupWork
	totalGroups uint64
}

// planLayout scans the volume to produce partition and raw-data entries
// with group counts, and a gap-filling raw-data entry for every byte range
// a partition doesn't cover. Each Wii partition chunk is exactly one
// declared ChunkSize, with one exception list emitted per chunk in the
// group — a hash group spans wia.ChunksPerWiiGroup consecutive chunks.
func planLayout(src BlobReader, volume VolumeView, opts Options) (*layout, error) {
	dataSize := src.DataSize()
	chunkSize := opts.chunkSize()

	var vparts []VolumePartition
	if volume != nil {
		vparts = volume.Partitions()
	}
	sort.Slice(vparts, func(i, j int) bool { return vparts[i].DataOffset < vparts[j].DataOffset })

	l := &layout{}
	var groupIndex uint32

	cursor := uint64(0)
	for pi, vp := range vparts {
		if vp.DataOffset < cursor {
			return nil, fmt.Errorf("partition %d overlaps previous data at offset %d", pi, vp.DataOffset)
		}
		if vp.DataOffset > cursor {
			l.appendRawData(cursor, vp.DataOffset-cursor, chunkSize, &groupIndex)
		}

		numGroups := ceilDiv64(vp.DataSize, uint64(chunkSize))
		l.partitions = append(l.partitions, partitionPlan{
			source:         vp,
			groupIndex:     groupIndex,
			numberOfGroups: uint32(numGroups),
		})

		for g := uint64(0); g < numGroups; g++ {
			off := vp.DataOffset + g*uint64(chunkSize)
			size := uint64(chunkSize)
			if off+size > vp.DataOffset+vp.DataSize {
				size = vp.DataOffset + vp.DataSize - off
			}
			relOffset := g * uint64(chunkSize)
			wiiGroupOffset := (relOffset / wia.WiiGroupDataSize) * wia.WiiGroupDataSize
			subChunkIndex := (relOffset - wiiGroupOffset) / uint64(chunkSize)
			l.work = append(l.work, groupWork{
				groupIndex:          groupIndex,
				isWii:                true,
				partitionIndex:      pi,
				partitionDataOffset: vp.DataOffset,
				wiiGroupOffset:      wiiGroupOffset,
				subChunkIndex:       uint32(subChunkIndex),
				sourceOffset:        off,
				sourceSize:          uint32(size),
			})
			groupIndex++
		}

		cursor = vp.DataOffset + vp.DataSize
	}

	if dataSize > cursor {
		l.appendRawData(cursor, dataSize-cursor, chunkSize, &groupIndex)
	}

	l.totalGroups = uint64(groupIndex)
	return l, nil
}

// appendRawData adds one raw-data table entry spanning [offset, offset+size)
// and its groups to the layout, advancing *groupIndex.
func (l *layout) appendRawData(offset, size uint64, chunkSize uint32, groupIndex *uint32) {
	if size == 0 {
		return
	}
	numGroups := ceilDiv64(size, uint64(chunkSize))
	l.rawData = append(l.rawData, rawDataPlan{
		dataOffset:     offset,
		dataSize:       size,
		groupIndex:     *groupIndex,
		numberOfGroups: uint32(numGroups),
	})

	for g := uint64(0); g < numGroups; g++ {
		off := offset + g*uint64(chunkSize)
		sz := uint64(chunkSize)
		if off+sz > offset+size {
			sz = offset + size - off
		}
		l.work = append(l.work, groupWork{
			groupIndex:   *groupIndex,
			sourceOffset: off,
			sourceSize:   uint32(sz),
		})
		*groupIndex++
	}
}

func ceilDiv64(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
