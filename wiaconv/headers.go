package wiaconv

import (
	"crypto/sha1" //nolint:gosec // format-mandated integrity hash, not used for security
	"fmt"

	"github.com/wiatool/wia"
	"github.com/wiatool/wia/wiacodec"
)

// writeProvisionalHeaders determines the on-disk size of Header-1/Header-2
// (fixed given the codec's parameter bytes) and notes the offset group
// payloads begin at, writing a zeroed placeholder so the file has a sane
// length even if conversion aborts partway through.
func (w *writer) writeProvisionalHeaders() error {
	min, max := wiacodec.LevelRange(w.opts.Compression)
	if w.opts.CompressionLevel < min || w.opts.CompressionLevel > max {
		return fmt.Errorf("%w: compression level %d outside [%d,%d] for %s",
			wia.ErrUnsupportedCompression, w.opts.CompressionLevel, min, max, w.opts.Compression)
	}

	_, compressorData, err := wiacodec.NewCompressor(w.opts.Compression, w.opts.CompressionLevel)
	if err != nil {
		return fmt.Errorf("probe compressor: %w", err)
	}
	w.header2CompressorData = compressorData

	header2Size := wia.Header2WireSize(len(compressorData))
	w.dataOffset = uint64(wia.Header1Size) + uint64(header2Size)

	placeholder := make([]byte, w.dataOffset)
	if _, err := w.out.WriteAt(placeholder, 0); err != nil {
		return fmt.Errorf("%w: %w", wia.ErrIO, err)
	}
	return nil
}

// writeFinalTablesAndHeaders writes the raw-data, partition, and group
// tables (raw-data and group each compressed as a single container-codec
// chunk, partition plain and self-hashed), then back-patches Header-2 and finally
// Header-1 with every offset, size, and hash now known.
func (w *writer) writeFinalTablesAndHeaders() error {
	rawDataBuf := make([]byte, 0, len(w.plan.rawData)*wia.RawDataEntrySize)
	for _, rp := range w.plan.rawData {
		rawDataBuf = append(rawDataBuf, wia.MarshalRawDataEntry(wia.RawDataEntry{
			DataOffset:     rp.dataOffset,
			DataSize:       rp.dataSize,
			GroupIndex:     rp.groupIndex,
			NumberOfGroups: rp.numberOfGroups,
		})...)
	}
	rawDataOffset, rawDataCompressedSize, err := w.writeCompressedTable(rawDataBuf)
	if err != nil {
		return fmt.Errorf("write raw-data table: %w", err)
	}

	groupBuf := make([]byte, 0, len(w.groupEntries)*wia.GroupEntrySize)
	for _, g := range w.groupEntries {
		groupBuf = append(groupBuf, wia.MarshalGroupEntry(g)...)
	}
	groupOffset, groupCompressedSize, err := w.writeCompressedTable(groupBuf)
	if err != nil {
		return fmt.Errorf("write group table: %w", err)
	}

	partitionBuf := make([]byte, 0, len(w.plan.partitions)*wia.PartitionEntrySize)
	for _, pp := range w.plan.partitions {
		e := wia.PartitionEntry{PartitionKey: pp.source.Key}
		firstSector := uint32(pp.source.DataOffset / wia.SectorSize)
		// This writer does not track a partition's management region (the
		// ticket/TMD/cert/H3 bytes preceding the data area) as a distinct
		// byte range: those bytes, when present, fall into the ordinary
		// raw-data gap planLayout emits before the partition's data offset.
		// DataEntries[0] is therefore a zero-length anchor at the data
		// sub-entry's own start sector rather than at sector 0, so it never
		// collides with real data at absolute offset 0.
		e.DataEntries[0] = wia.PartitionDataEntry{FirstSector: firstSector}
		e.DataEntries[1] = wia.PartitionDataEntry{
			FirstSector:     firstSector,
			NumberOfSectors: uint32(pp.source.DataSize / wia.SectorSize),
			GroupIndex:      pp.groupIndex,
			NumberOfGroups:  pp.numberOfGroups,
		}
		partitionBuf = append(partitionBuf, wia.MarshalPartitionEntry(e)...)
	}
	partitionOffset := w.cursor
	if len(partitionBuf) > 0 {
		if _, err := w.out.WriteAt(partitionBuf, int64(partitionOffset)); err != nil {
			return fmt.Errorf("%w: write partition table: %w", wia.ErrIO, err)
		}
		w.cursor += uint64(len(partitionBuf))
	}
	partitionHash := sha1.Sum(partitionBuf) //nolint:gosec // format-mandated integrity hash, not used for security

	discHeader := [0x80]byte{}
	if err := w.src.Read(0, uint64(len(discHeader)), discHeader[:]); err != nil {
		return fmt.Errorf("read disc header: %w", err)
	}
	discType := wia.DiscTypeGameCube
	if w.src.SupportsReadWiiDecrypted() || len(w.plan.partitions) > 0 {
		discType = wia.DiscTypeWii
	}

	h2 := wia.Header2{
		DiscType:         discType,
		CompressionType:  w.opts.Compression,
		CompressionLevel: int32(w.opts.CompressionLevel),
		ChunkSize:        w.opts.chunkSize(),
		DiscHeader:       discHeader,
		PartitionEntries: wia.TableDescriptor{
			Count:     uint32(len(w.plan.partitions)),
			Offset:    partitionOffset,
			EntrySize: wia.PartitionEntrySize,
			Hash:      partitionHash,
		},
		RawDataEntries: wia.TableDescriptor{
			Count:     uint32(len(w.plan.rawData)),
			Offset:    rawDataOffset,
			EntrySize: uint32(rawDataCompressedSize),
		},
		GroupEntries: wia.TableDescriptor{
			Count:     uint32(len(w.groupEntries)),
			Offset:    groupOffset,
			EntrySize: uint32(groupCompressedSize),
		},
		CompressorData: w.header2CompressorData,
	}

	h2Bytes := h2.Marshal()
	if _, err := w.out.WriteAt(h2Bytes, int64(wia.Header1Size)); err != nil {
		return fmt.Errorf("%w: write header-2: %w", wia.ErrIO, err)
	}

	magic := wia.MagicWIA
	version, versionCompatible := wia.VersionWIA, wia.VersionWIAWriteCompatible
	if w.opts.Variant == wia.BlobRVZ {
		magic = wia.MagicRVZ
		version, versionCompatible = wia.VersionRVZ, wia.VersionRVZWriteCompatible
	}

	h1 := wia.Header1{
		Magic:             magic,
		Version:           version,
		VersionCompatible: versionCompatible,
		Header2Size:       uint32(len(h2Bytes)),
		Header2Hash:       h2.Hash(),
		ISOFileSize:       w.src.DataSize(),
		WIAFileSize:       w.cursor,
	}
	if _, err := w.out.WriteAt(h1.Marshal(), 0); err != nil {
		return fmt.Errorf("%w: write header-1: %w", wia.ErrIO, err)
	}
	return nil
}

// writeCompressedTable compresses data as a single container-codec chunk and
// appends it to the output at the current cursor, returning its offset and
// on-disk compressed size.
func (w *writer) writeCompressedTable(data []byte) (offset uint64, compressedSize int, err error) {
	if len(data) == 0 {
		return 0, 0, nil
	}
	comp, _, err := wiacodec.NewCompressor(w.opts.Compression, w.opts.CompressionLevel)
	if err != nil {
		return 0, 0, err
	}
	if err := comp.Start(); err != nil {
		return 0, 0, err
	}
	if err := comp.Compress(data); err != nil {
		return 0, 0, err
	}
	if err := comp.End(); err != nil {
		return 0, 0, err
	}
	payload := comp.Data()

	offset = w.cursor
	if _, err := w.out.WriteAt(payload, int64(offset)); err != nil {
		return 0, 0, fmt.Errorf("%w: %w", wia.ErrIO, err)
	}
	w.cursor += uint64(len(payload)) + wia.PadTo4(uint64(len(payload)))
	return offset, len(payload), nil
}
