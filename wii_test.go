package wia

import "testing"

func TestChunksPerWiiGroup(t *testing.T) {
	t.Parallel()

	cases := []struct {
		chunkSize uint32
		want      uint32
	}{
		{WiiGroupDataSize, 1},
		{WiiGroupDataSize / 2, 2},
		{2 * 1024 * 1024, 1}, // 2 MiB > WiiGroupDataSize (0x1f0000): one oversized chunk covers the group
		{1024, uint32((WiiGroupDataSize + 1023) / 1024)},
	}
	for _, tc := range cases {
		if got := ChunksPerWiiGroup(tc.chunkSize); got != tc.want {
			t.Errorf("ChunksPerWiiGroup(%d) = %d, want %d", tc.chunkSize, got, tc.want)
		}
	}
}

func TestApplyHashExceptions(t *testing.T) {
	t.Parallel()

	hashArea := make([]byte, 64*0x400)
	exceptions := []HashExceptionEntry{
		{Offset: 0, Hash: SHA1{1, 2, 3}},
		{Offset: 100, Hash: SHA1{9, 9, 9}},
	}
	if err := ApplyHashExceptions(exceptions, hashArea); err != nil {
		t.Fatalf("ApplyHashExceptions: %v", err)
	}
	if hashArea[0] != 1 || hashArea[1] != 2 || hashArea[2] != 3 {
		t.Errorf("first exception not applied: %v", hashArea[:3])
	}
	if hashArea[100] != 9 {
		t.Errorf("second exception not applied: %v", hashArea[100])
	}
}

func TestApplyHashExceptionsOutOfOrder(t *testing.T) {
	t.Parallel()

	hashArea := make([]byte, 64*0x400)
	exceptions := []HashExceptionEntry{
		{Offset: 100, Hash: SHA1{1}},
		{Offset: 50, Hash: SHA1{2}},
	}
	if err := ApplyHashExceptions(exceptions, hashArea); err == nil {
		t.Fatalf("expected an error for out-of-order exception offsets")
	}
}

func TestApplyHashExceptionsOverrun(t *testing.T) {
	t.Parallel()

	hashArea := make([]byte, 32)
	exceptions := []HashExceptionEntry{{Offset: 20, Hash: SHA1{1}}}
	if err := ApplyHashExceptions(exceptions, hashArea); err == nil {
		t.Fatalf("expected an error for an exception overrunning the hash area")
	}
}

func TestFlattenHashBlocksForDiff(t *testing.T) {
	t.Parallel()

	var hashes [BlocksPerGroup]HashBlock
	hashes[0][0] = 0xAB
	hashes[1][0] = 0xCD

	flat := FlattenHashBlocksForDiff(hashes)
	if len(flat) != BlocksPerGroup*0x400 {
		t.Fatalf("flattened length = %d, want %d", len(flat), BlocksPerGroup*0x400)
	}
	if flat[0] != 0xAB {
		t.Errorf("flat[0] = %#x, want 0xab", flat[0])
	}
	if flat[0x400] != 0xCD {
		t.Errorf("flat[0x400] = %#x, want 0xcd", flat[0x400])
	}
}
