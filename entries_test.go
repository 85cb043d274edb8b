package wia

import "testing"

func TestGroupEntryFlag(t *testing.T) {
	t.Parallel()

	g := NewGroupEntry(0x1000, 4096, true)
	if !g.CompressedExceptionLists() {
		t.Errorf("expected compressed-exception-lists flag set")
	}
	if g.Size() != 4096 {
		t.Errorf("Size() = %d, want 4096", g.Size())
	}

	plain := NewGroupEntry(0x2000, 8192, false)
	if plain.CompressedExceptionLists() {
		t.Errorf("expected compressed-exception-lists flag unset")
	}
	if plain.Size() != 8192 {
		t.Errorf("Size() = %d, want 8192", plain.Size())
	}

	zero := NewGroupEntry(0, 0, false)
	if !zero.IsZero() {
		t.Errorf("expected IsZero() for a zero-size group")
	}
}

func TestGroupEntryMarshalRoundtrip(t *testing.T) {
	t.Parallel()

	g := NewGroupEntry(0x4000, 123456, true)
	buf := marshalGroupEntry(g)
	got := unmarshalGroupEntry(buf)

	if got.DataOffset != g.DataOffset || got.DataSize != g.DataSize {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, g)
	}
	if !got.CompressedExceptionLists() {
		t.Errorf("flag lost across marshal roundtrip")
	}
}

func TestHashExceptionListRoundtrip(t *testing.T) {
	t.Parallel()

	entries := []HashExceptionEntry{
		{Offset: 0, Hash: SHA1{1, 2, 3, 4}},
		{Offset: 20, Hash: SHA1{5, 6, 7, 8}},
	}
	buf := marshalHashExceptionList(entries)

	got, n, err := parseHashExceptionList(buf)
	if err != nil {
		t.Fatalf("parseHashExceptionList: %v", err)
	}
	if n != len(buf) {
		t.Errorf("consumed %d bytes, want %d", n, len(buf))
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i := range entries {
		if got[i] != entries[i] {
			t.Errorf("entry %d: got %+v, want %+v", i, got[i], entries[i])
		}
	}
}

func TestPartitionEntryMarshalRoundtrip(t *testing.T) {
	t.Parallel()

	e := PartitionEntry{PartitionKey: WiiKey{1, 2, 3}}
	e.DataEntries[0] = PartitionDataEntry{FirstSector: 1, NumberOfSectors: 2, GroupIndex: 3, NumberOfGroups: 4}
	e.DataEntries[1] = PartitionDataEntry{FirstSector: 5, NumberOfSectors: 6, GroupIndex: 7, NumberOfGroups: 8}

	buf := marshalPartitionEntry(e)
	got, err := unmarshalPartitionEntry(buf)
	if err != nil {
		t.Fatalf("unmarshalPartitionEntry: %v", err)
	}
	if got != e {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, e)
	}
}

func TestRawDataEntryMarshalRoundtrip(t *testing.T) {
	t.Parallel()

	e := RawDataEntry{DataOffset: 0x8000, DataSize: 0x10000, GroupIndex: 5, NumberOfGroups: 2}
	buf := marshalRawDataEntry(e)
	got, err := unmarshalRawDataEntry(buf)
	if err != nil {
		t.Fatalf("unmarshalRawDataEntry: %v", err)
	}
	if got != e {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, e)
	}
}
