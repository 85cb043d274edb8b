package wia

import (
	"crypto/sha1" //nolint:gosec // format-mandated integrity hash, not used for security
	"encoding/binary"
	"fmt"
	"io"

	"github.com/wiatool/wia/wiacodec"
)

// Header1Size is the fixed, version-independent size of Header-1.
const Header1Size = 0x48

// Header1 is the first bytes of the file: magic, version triple, header-2's
// size and hash, file sizes, and a self-hash.
type Header1 struct {
	Magic             uint32
	Version           uint32
	VersionCompatible uint32
	Header2Size       uint32
	Header2Hash       SHA1
	ISOFileSize       uint64
	WIAFileSize       uint64
	Header1Hash       SHA1
}

func parseHeader1(r io.Reader) (Header1, error) {
	var buf [Header1Size]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header1{}, fmt.Errorf("%w: read header-1: %w", ErrIO, err)
	}
	var h Header1
	h.Magic = binary.BigEndian.Uint32(buf[0:4])
	h.Version = binary.BigEndian.Uint32(buf[4:8])
	h.VersionCompatible = binary.BigEndian.Uint32(buf[8:12])
	h.Header2Size = binary.BigEndian.Uint32(buf[12:16])
	copy(h.Header2Hash[:], buf[16:36])
	h.ISOFileSize = binary.BigEndian.Uint64(buf[36:44])
	h.WIAFileSize = binary.BigEndian.Uint64(buf[44:52])
	copy(h.Header1Hash[:], buf[52:72])

	if h.Magic != MagicWIA && h.Magic != MagicRVZ {
		return Header1{}, fmt.Errorf("%w: unrecognized magic %#08x", ErrCorruptHeader, h.Magic)
	}

	ourVersion, ourReadCompatible := VersionWIA, VersionWIAReadCompatible
	if h.Magic == MagicRVZ {
		ourVersion, ourReadCompatible = VersionRVZ, VersionRVZReadCompatible
	}
	if err := checkVersionCompatible(h.Version, h.VersionCompatible, ourVersion, ourReadCompatible); err != nil {
		return Header1{}, err
	}

	sum := sha1.Sum(buf[0:52]) //nolint:gosec // format-mandated integrity hash, not used for security
	if sum != h.Header1Hash {
		return Header1{}, fmt.Errorf("%w: header-1 self-hash mismatch", ErrCorruptHeader)
	}
	return h, nil
}

// Marshal renders the header to its on-disk 0x48-byte form, computing the
// trailing self-hash. Used directly by wiaconv's final header back-patch.
func (h Header1) Marshal() []byte {
	buf := make([]byte, Header1Size)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint32(buf[4:8], h.Version)
	binary.BigEndian.PutUint32(buf[8:12], h.VersionCompatible)
	binary.BigEndian.PutUint32(buf[12:16], h.Header2Size)
	copy(buf[16:36], h.Header2Hash[:])
	binary.BigEndian.PutUint64(buf[36:44], h.ISOFileSize)
	binary.BigEndian.PutUint64(buf[44:52], h.WIAFileSize)
	sum := sha1.Sum(buf[0:52]) //nolint:gosec // format-mandated integrity hash, not used for security
	copy(buf[52:72], sum[:])
	return buf
}

// DiscType distinguishes GameCube from Wii disc images, read from Header-2's
// disc_type field. The reader needs it to answer SupportsReadWiiDecrypted
// without scanning the partition table.
type DiscType uint32

const (
	DiscTypeGameCube DiscType = 1
	DiscTypeWii      DiscType = 2
)

func (d DiscType) String() string {
	switch d {
	case DiscTypeGameCube:
		return "GameCube"
	case DiscTypeWii:
		return "Wii"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(d))
	}
}

const discHeaderSize = 0x80

// TableDescriptor locates one of Header-2's three tables. The third field's
// meaning depends on the table: for the (plain, hashed) partition table it
// is the fixed per-entry size; for the raw-data and group tables, which are
// each stored as a single container-codec-compressed chunk, it is that
// chunk's compressed size on disk, and Hash is unused (only the partition
// table carries an integrity hash of its own in Header-2).
type TableDescriptor struct {
	Count     uint32
	Offset    uint64
	EntrySize uint32
	Hash      SHA1
}

// Header2 carries everything else: disc metadata, compression parameters,
// the three table descriptors, and codec-specific parameter bytes.
type Header2 struct {
	DiscType          DiscType
	CompressionType   wiacodec.Type
	CompressionLevel  int32 // informative only, never consulted at read time
	ChunkSize         uint32
	DiscHeader        [discHeaderSize]byte
	PartitionEntries  TableDescriptor
	RawDataEntries    TableDescriptor
	GroupEntries      TableDescriptor
	CompressorData    []byte // up to 7 bytes
}

const header2Size = 0xdc

// Header2WireSize returns the on-disk size of a Header2 carrying
// compressorDataLen bytes of codec parameters, used by wiaconv to compute
// where group payloads begin before any table sizes are known. The size
// does not depend on compressorDataLen: the parameter bytes occupy the
// fixed 7-byte field inside the 0xdc-byte header that Marshal emits.
func Header2WireSize(compressorDataLen int) uint32 {
	return header2Size
}

func parseHeader2(r io.Reader, size uint32, expectedHash SHA1) (Header2, error) {
	if size < header2Size {
		return Header2{}, fmt.Errorf("%w: header-2 size %d too small", ErrCorruptHeader, size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header2{}, fmt.Errorf("%w: read header-2: %w", ErrIO, err)
	}

	sum := sha1.Sum(buf) //nolint:gosec // format-mandated integrity hash, not used for security
	if sum != expectedHash {
		return Header2{}, fmt.Errorf("%w: header-2 hash mismatch", ErrCorruptHeader)
	}

	var h Header2
	h.DiscType = DiscType(binary.BigEndian.Uint32(buf[0:4]))
	h.CompressionType = wiacodec.Type(binary.BigEndian.Uint32(buf[4:8]))
	h.CompressionLevel = int32(binary.BigEndian.Uint32(buf[8:12]))
	h.ChunkSize = binary.BigEndian.Uint32(buf[12:16])
	copy(h.DiscHeader[:], buf[16:16+discHeaderSize])

	o := 16 + discHeaderSize // 0x90
	h.PartitionEntries.Count = binary.BigEndian.Uint32(buf[o : o+4])
	h.PartitionEntries.EntrySize = binary.BigEndian.Uint32(buf[o+4 : o+8])
	h.PartitionEntries.Offset = binary.BigEndian.Uint64(buf[o+8 : o+16])
	copy(h.PartitionEntries.Hash[:], buf[o+16:o+36])
	o += 36 // 0xb4

	h.RawDataEntries.Count = binary.BigEndian.Uint32(buf[o : o+4])
	h.RawDataEntries.Offset = binary.BigEndian.Uint64(buf[o+4 : o+12])
	h.RawDataEntries.EntrySize = binary.BigEndian.Uint32(buf[o+12 : o+16])
	o += 16 // 0xc4

	h.GroupEntries.Count = binary.BigEndian.Uint32(buf[o : o+4])
	h.GroupEntries.Offset = binary.BigEndian.Uint64(buf[o+4 : o+12])
	h.GroupEntries.EntrySize = binary.BigEndian.Uint32(buf[o+12 : o+16])
	o += 16 // 0xd4

	compressorDataSize := int(buf[o])
	o++
	if compressorDataSize > 7 {
		return Header2{}, fmt.Errorf("%w: compressor_data_size %d > 7", ErrCorruptHeader, compressorDataSize)
	}
	h.CompressorData = append([]byte(nil), buf[o:o+compressorDataSize]...)

	return h, nil
}

// Marshal renders the header to its on-disk form, not including the disc
// type/compression fields' own hash (that is Header1's job via Hash).
func (h Header2) Marshal() []byte {
	buf := make([]byte, header2Size)
	binary.BigEndian.PutUint32(buf[0:4], uint32(h.DiscType))
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.CompressionType))
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.CompressionLevel))
	binary.BigEndian.PutUint32(buf[12:16], h.ChunkSize)
	copy(buf[16:16+discHeaderSize], h.DiscHeader[:])

	o := 16 + discHeaderSize
	binary.BigEndian.PutUint32(buf[o:o+4], h.PartitionEntries.Count)
	binary.BigEndian.PutUint32(buf[o+4:o+8], h.PartitionEntries.EntrySize)
	binary.BigEndian.PutUint64(buf[o+8:o+16], h.PartitionEntries.Offset)
	copy(buf[o+16:o+36], h.PartitionEntries.Hash[:])
	o += 36

	binary.BigEndian.PutUint32(buf[o:o+4], h.RawDataEntries.Count)
	binary.BigEndian.PutUint64(buf[o+4:o+12], h.RawDataEntries.Offset)
	binary.BigEndian.PutUint32(buf[o+12:o+16], h.RawDataEntries.EntrySize)
	o += 16

	binary.BigEndian.PutUint32(buf[o:o+4], h.GroupEntries.Count)
	binary.BigEndian.PutUint64(buf[o+4:o+12], h.GroupEntries.Offset)
	binary.BigEndian.PutUint32(buf[o+12:o+16], h.GroupEntries.EntrySize)
	o += 16

	buf[o] = byte(len(h.CompressorData))
	o++
	copy(buf[o:o+len(h.CompressorData)], h.CompressorData)

	return buf
}

// Hash returns the SHA-1 Header1.Header2Hash must hold for this header.
func (h Header2) Hash() SHA1 {
	return sha1.Sum(h.Marshal()) //nolint:gosec // format-mandated integrity hash, not used for security
}

// PadTo4 returns the number of zero bytes needed to round n up to a
// multiple of 4, kept as a named helper rather than inlined at every
// call site since every table entry and header aligns to 4 bytes.
func PadTo4(n uint64) uint64 {
	if rem := n % 4; rem != 0 {
		return 4 - rem
	}
	return 0
}
