package wiaconv

import (
	"testing"

	"github.com/wiatool/wia"
)

type fakeSource struct {
	size uint64
}

func (s *fakeSource) Read(uint64, uint64, []byte) error { return nil }
func (s *fakeSource) DataSize() uint64                  { return s.size }
func (s *fakeSource) IsDataSizeAccurate() bool          { return true }
func (s *fakeSource) BlockSize() uint32                 { return wia.SectorSize }
func (s *fakeSource) HasFastRandomAccessInBlock() bool  { return true }
func (s *fakeSource) SupportsReadWiiDecrypted() bool    { return true }
func (s *fakeSource) ReadWiiDecrypted(uint64, uint64, []byte, uint64) error { return nil }
func (s *fakeSource) BlobType() wia.BlobType            { return wia.BlobWIA }

type fakeVolume struct {
	parts []VolumePartition
}

func (v *fakeVolume) Partitions() []VolumePartition { return v.parts }

func TestPlanLayoutRawOnly(t *testing.T) {
	t.Parallel()

	const chunkSize = 1024
	src := &fakeSource{size: 3000}
	l, err := planLayout(src, &fakeVolume{}, Options{ChunkSize: chunkSize})
	if err != nil {
		t.Fatalf("planLayout: %v", err)
	}
	if len(l.partitions) != 0 {
		t.Fatalf("expected no partitions, got %d", len(l.partitions))
	}
	if len(l.rawData) != 1 {
		t.Fatalf("expected one raw-data entry, got %d", len(l.rawData))
	}
	wantGroups := uint32(3) // ceil(3000/1024)
	if l.rawData[0].numberOfGroups != wantGroups {
		t.Errorf("numberOfGroups = %d, want %d", l.rawData[0].numberOfGroups, wantGroups)
	}
	if uint32(len(l.work)) != wantGroups {
		t.Errorf("len(work) = %d, want %d", len(l.work), wantGroups)
	}
	if l.work[2].sourceSize != 952 { // 3000 - 2*1024
		t.Errorf("final group size = %d, want 952", l.work[2].sourceSize)
	}
}

func TestPlanLayoutPartitionWithRawGap(t *testing.T) {
	t.Parallel()

	const chunkSize = 64 * 1024
	src := &fakeSource{size: 2 * wia.WiiGroupDataSize}
	vol := &fakeVolume{parts: []VolumePartition{
		{Key: wia.WiiKey{1}, DataOffset: wia.SectorSize, DataSize: wia.WiiGroupDataSize},
	}}

	l, err := planLayout(src, vol, Options{ChunkSize: chunkSize})
	if err != nil {
		t.Fatalf("planLayout: %v", err)
	}
	if len(l.partitions) != 1 {
		t.Fatalf("expected one partition, got %d", len(l.partitions))
	}
	if len(l.rawData) != 2 {
		t.Fatalf("expected a raw-data gap before and after the partition, got %d", len(l.rawData))
	}

	wantPartitionGroups := wia.ChunksPerWiiGroup(chunkSize)
	if l.partitions[0].numberOfGroups != wantPartitionGroups {
		t.Errorf("partition numberOfGroups = %d, want %d", l.partitions[0].numberOfGroups, wantPartitionGroups)
	}

	var sawWii bool
	for _, w := range l.work {
		if w.isWii {
			sawWii = true
			if w.partitionDataOffset != wia.SectorSize {
				t.Errorf("partitionDataOffset = %d, want %d", w.partitionDataOffset, wia.SectorSize)
			}
		}
	}
	if !sawWii {
		t.Errorf("expected at least one Wii group-work entry")
	}
}

func TestPlanLayoutOverlappingPartitionsRejected(t *testing.T) {
	t.Parallel()

	const chunkSize = 64 * 1024
	src := &fakeSource{size: wia.WiiGroupDataSize}
	vol := &fakeVolume{parts: []VolumePartition{
		{Key: wia.WiiKey{1}, DataOffset: 0, DataSize: 0x10000},
		{Key: wia.WiiKey{2}, DataOffset: 0x8000, DataSize: 0x10000},
	}}

	if _, err := planLayout(src, vol, Options{ChunkSize: chunkSize}); err == nil {
		t.Fatalf("expected an overlap error")
	}
}
