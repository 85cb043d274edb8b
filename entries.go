package wia

import (
	"encoding/binary"
	"fmt"
)

const sectorSize = 0x8000

// SectorSize is the disc sector size partition data-entry ranges are
// measured in, exported for wiaconv's planner.
const SectorSize = sectorSize

// SHA1 is a raw 20-byte digest, used throughout the container's own
// integrity hashes (not a cryptographic-security boundary).
type SHA1 = [20]byte

// WiiKey is a 16-byte Wii partition title key, used only as an opaque map
// key and table field here — decryption itself is the job of the external
// Wii cryptography collaborator (wii.go).
type WiiKey = [16]byte

// PartitionDataEntry is one of a PartitionEntry's two sub-ranges (management
// region, bulk data region).
type PartitionDataEntry struct {
	FirstSector     uint32
	NumberOfSectors uint32
	GroupIndex      uint32
	NumberOfGroups  uint32
}

const partitionDataEntrySize = 0x10

func (e *PartitionDataEntry) unmarshal(b []byte) {
	e.FirstSector = binary.BigEndian.Uint32(b[0:4])
	e.NumberOfSectors = binary.BigEndian.Uint32(b[4:8])
	e.GroupIndex = binary.BigEndian.Uint32(b[8:12])
	e.NumberOfGroups = binary.BigEndian.Uint32(b[12:16])
}

func (e *PartitionDataEntry) marshal(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], e.FirstSector)
	binary.BigEndian.PutUint32(b[4:8], e.NumberOfSectors)
	binary.BigEndian.PutUint32(b[8:12], e.GroupIndex)
	binary.BigEndian.PutUint32(b[12:16], e.NumberOfGroups)
}

// PartitionEntry describes one Wii partition: its title key plus the two
// data entries that split it into management and bulk regions.
type PartitionEntry struct {
	PartitionKey WiiKey
	DataEntries  [2]PartitionDataEntry
}

const PartitionEntrySize = 0x30

func unmarshalPartitionEntry(b []byte) (PartitionEntry, error) {
	if len(b) < PartitionEntrySize {
		return PartitionEntry{}, fmt.Errorf("%w: partition entry: short buffer", ErrCorruptHeader)
	}
	var e PartitionEntry
	copy(e.PartitionKey[:], b[0:16])
	e.DataEntries[0].unmarshal(b[16:32])
	e.DataEntries[1].unmarshal(b[32:48])
	return e, nil
}

func marshalPartitionEntry(e PartitionEntry) []byte {
	b := make([]byte, PartitionEntrySize)
	copy(b[0:16], e.PartitionKey[:])
	e.DataEntries[0].marshal(b[16:32])
	e.DataEntries[1].marshal(b[32:48])
	return b
}

// RawDataEntry describes a contiguous non-partition region of the logical image.
type RawDataEntry struct {
	DataOffset     uint64
	DataSize       uint64
	GroupIndex     uint32
	NumberOfGroups uint32
}

const RawDataEntrySize = 0x18

func unmarshalRawDataEntry(b []byte) (RawDataEntry, error) {
	if len(b) < RawDataEntrySize {
		return RawDataEntry{}, fmt.Errorf("%w: raw data entry: short buffer", ErrCorruptHeader)
	}
	return RawDataEntry{
		DataOffset:     binary.BigEndian.Uint64(b[0:8]),
		DataSize:       binary.BigEndian.Uint64(b[8:16]),
		GroupIndex:     binary.BigEndian.Uint32(b[16:20]),
		NumberOfGroups: binary.BigEndian.Uint32(b[20:24]),
	}, nil
}

func marshalRawDataEntry(e RawDataEntry) []byte {
	b := make([]byte, RawDataEntrySize)
	binary.BigEndian.PutUint64(b[0:8], e.DataOffset)
	binary.BigEndian.PutUint64(b[8:16], e.DataSize)
	binary.BigEndian.PutUint32(b[16:20], e.GroupIndex)
	binary.BigEndian.PutUint32(b[20:24], e.NumberOfGroups)
	return b
}

// groupCompressedFlag is the high bit of GroupEntry.DataSize marking the
// packed variant's exception lists as compressed alongside the main payload.
const groupCompressedFlag uint32 = 1 << 31

// GroupEntry is a chunk's location and size within the output file. DataOffset
// on disk is stored right-shifted by 2 (all chunks are 4-byte aligned).
type GroupEntry struct {
	DataOffset uint32 // already shifted back to a byte offset (<<2)
	DataSize   uint32 // low 31 bits: size; high bit: compressed-exception-lists flag
}

const GroupEntrySize = 0x08

// CompressedExceptionLists reports the packed-variant flag bit.
func (g GroupEntry) CompressedExceptionLists() bool {
	return g.DataSize&groupCompressedFlag != 0
}

// Size returns the payload size with the flag bit masked off.
func (g GroupEntry) Size() uint32 {
	return g.DataSize &^ groupCompressedFlag
}

// IsZero reports an all-zero group (compressed_size == 0).
func (g GroupEntry) IsZero() bool { return g.Size() == 0 }

func unmarshalGroupEntry(b []byte) GroupEntry {
	return GroupEntry{
		DataOffset: binary.BigEndian.Uint32(b[0:4]) << 2,
		DataSize:   binary.BigEndian.Uint32(b[4:8]),
	}
}

func marshalGroupEntry(g GroupEntry) []byte {
	b := make([]byte, GroupEntrySize)
	binary.BigEndian.PutUint32(b[0:4], g.DataOffset>>2)
	binary.BigEndian.PutUint32(b[4:8], g.DataSize)
	return b
}

// NewGroupEntry builds a GroupEntry from an unshifted byte offset, a size,
// and the packed variant's compressed-exception-lists flag, used by
// wiaconv's output stage instead of poking at the flag bit directly.
func NewGroupEntry(offset uint64, size uint32, compressedExceptionLists bool) GroupEntry {
	d := size
	if compressedExceptionLists {
		d |= groupCompressedFlag
	}
	return GroupEntry{DataOffset: uint32(offset), DataSize: d}
}

// MarshalGroupEntry renders g to its on-disk 8-byte form.
func MarshalGroupEntry(g GroupEntry) []byte { return marshalGroupEntry(g) }

// MarshalPartitionEntry renders e to its on-disk 0x30-byte form.
func MarshalPartitionEntry(e PartitionEntry) []byte { return marshalPartitionEntry(e) }

// MarshalRawDataEntry renders e to its on-disk 0x18-byte form.
func MarshalRawDataEntry(e RawDataEntry) []byte { return marshalRawDataEntry(e) }

// MarshalHashExceptionList renders entries to the on-disk {u16_be count,
// count x HashExceptionEntry} form.
func MarshalHashExceptionList(entries []HashExceptionEntry) []byte { return marshalHashExceptionList(entries) }

// HashExceptionEntry overrides a single recomputed SHA-1 within a Wii hash
// group's hash area, at a byte offset measured from the start of that area.
type HashExceptionEntry struct {
	Offset uint16
	Hash   SHA1
}

const HashExceptionEntrySize = 0x16

func unmarshalHashExceptionEntry(b []byte) HashExceptionEntry {
	var e HashExceptionEntry
	e.Offset = binary.BigEndian.Uint16(b[0:2])
	copy(e.Hash[:], b[2:22])
	return e
}

func marshalHashExceptionEntry(e HashExceptionEntry) []byte {
	b := make([]byte, HashExceptionEntrySize)
	binary.BigEndian.PutUint16(b[0:2], e.Offset)
	copy(b[2:22], e.Hash[:])
	return b
}

// parseHashExceptionList parses a single {u16_be count, count x
// HashExceptionEntry} list and returns the entries plus the number of bytes
// consumed.
func parseHashExceptionList(b []byte) ([]HashExceptionEntry, int, error) {
	if len(b) < 2 {
		return nil, 0, fmt.Errorf("%w: hash exception list: short buffer", ErrCorruptChunk)
	}
	count := int(binary.BigEndian.Uint16(b[0:2]))
	need := 2 + count*HashExceptionEntrySize
	if len(b) < need {
		return nil, 0, fmt.Errorf("%w: hash exception list: need %d bytes, have %d",
			ErrCorruptChunk, need, len(b))
	}
	entries := make([]HashExceptionEntry, count)
	for i := range count {
		off := 2 + i*HashExceptionEntrySize
		entries[i] = unmarshalHashExceptionEntry(b[off : off+HashExceptionEntrySize])
	}
	return entries, need, nil
}

func marshalHashExceptionList(entries []HashExceptionEntry) []byte {
	b := make([]byte, 2+len(entries)*HashExceptionEntrySize)
	binary.BigEndian.PutUint16(b[0:2], uint16(len(entries)))
	for i, e := range entries {
		off := 2 + i*HashExceptionEntrySize
		copy(b[off:off+HashExceptionEntrySize], marshalHashExceptionEntry(e))
	}
	return b
}

// PurgeSegment marks a run of non-zero bytes inside an otherwise all-zero
// chunk, as the Purge codec encodes it (see wiacodec.purgeSegment for the
// decoder state machine, which uses its own type; this plain data shape
// is not used elsewhere in the module).
type PurgeSegment struct {
	Offset uint32
	Size   uint32
}
