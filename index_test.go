package wia

import "testing"

func TestBuildIndexAndLookup(t *testing.T) {
	t.Parallel()

	rawData := []RawDataEntry{
		{DataOffset: 0, DataSize: 0x8000},
		{DataOffset: 0x10000, DataSize: 0x8000},
	}
	idx, err := buildIndex(nil, rawData, false)
	if err != nil {
		t.Fatalf("buildIndex: %v", err)
	}

	entry, start, end, ok := idx.Lookup(0x4000)
	if !ok {
		t.Fatalf("Lookup(0x4000) missed")
	}
	if entry.Index != 0 || start != 0 || end != 0x8000 {
		t.Errorf("Lookup(0x4000) = entry %d [%d,%d), want 0 [0,0x8000)", entry.Index, start, end)
	}

	if _, _, _, ok := idx.Lookup(0x8000); ok {
		t.Errorf("Lookup(0x8000) should miss the gap between the two entries")
	}

	if _, _, _, ok := idx.Lookup(0x20000); ok {
		t.Errorf("Lookup(0x20000) should miss past the last entry")
	}
}

func TestBuildIndexOverlapPacked(t *testing.T) {
	t.Parallel()

	rawData := []RawDataEntry{
		{DataOffset: 0, DataSize: 0x8000},
		{DataOffset: 0x4000, DataSize: 0x8000},
	}
	if _, err := buildIndex(nil, rawData, true); err == nil {
		t.Fatalf("expected an overlap error for the packed variant")
	}
}

func TestBuildIndexZeroSizeAnchorTolerated(t *testing.T) {
	t.Parallel()

	partitions := []PartitionEntry{{
		DataEntries: [2]PartitionDataEntry{
			{FirstSector: 0, NumberOfSectors: 4},
		},
	}}
	rawData := []RawDataEntry{
		{DataOffset: 0, DataSize: 0}, // zero-size anchor at the same start offset
	}
	if _, err := buildIndex(partitions, rawData, false); err != nil {
		t.Fatalf("expected the unpacked variant to tolerate a zero-size anchor, got %v", err)
	}
}

// TestBuildIndexPartitionManagementAnchorDeterministic exercises the real
// shape wiaconv/headers.go writes for every Wii partition: DataEntries[0]
// is a zero-length management anchor sharing FirstSector with the
// full-length DataEntries[1]. This must succeed for both the unpacked
// (WIA) and packed (RVZ) variants, regardless of which sub-entry happens
// to be appended to the index first.
func TestBuildIndexPartitionManagementAnchorDeterministic(t *testing.T) {
	t.Parallel()

	const firstSector = 8 // partition data starts at sector 8, not sector 0
	partitions := []PartitionEntry{{
		DataEntries: [2]PartitionDataEntry{
			{FirstSector: firstSector}, // zero-length management anchor
			{FirstSector: firstSector, NumberOfSectors: 4, GroupIndex: 1, NumberOfGroups: 4},
		},
	}}
	rawData := []RawDataEntry{
		{DataOffset: 0, DataSize: firstSector * sectorSize}, // the gap before the partition
	}

	for _, packed := range []bool{false, true} {
		idx, err := buildIndex(partitions, rawData, packed)
		if err != nil {
			t.Fatalf("buildIndex(packed=%v): unexpected error %v", packed, err)
		}
		entry, start, end, ok := idx.Lookup(firstSector * sectorSize)
		if !ok {
			t.Fatalf("buildIndex(packed=%v): Lookup at the partition's data start missed", packed)
		}
		if !entry.IsPartition || entry.PartitionDataIndex != 1 || start != firstSector*sectorSize || end != (firstSector+4)*sectorSize {
			t.Errorf("buildIndex(packed=%v): Lookup resolved to %+v [%d,%d), want the full-length data sub-entry",
				packed, entry, start, end)
		}
	}
}
