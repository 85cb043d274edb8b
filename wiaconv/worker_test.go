package wiaconv

import (
	"bytes"
	"testing"

	"github.com/wiatool/wia"
)

func TestUniformByteKey(t *testing.T) {
	t.Parallel()

	const chunkSize = 1024
	uniform := bytes.Repeat([]byte{0x42}, chunkSize)
	if k := uniformByteKey(uniform, groupWork{}, chunkSize, wia.WiiKey{}); k == nil {
		t.Errorf("expected a reuse key for a uniform-byte chunk")
	} else if k.sentinel != 0x42 || k.dataSize != chunkSize {
		t.Errorf("unexpected key: %+v", k)
	}

	mixed := append(bytes.Repeat([]byte{0x42}, chunkSize-1), 0x43)
	if k := uniformByteKey(mixed, groupWork{}, chunkSize, wia.WiiKey{}); k != nil {
		t.Errorf("expected no reuse key for a non-uniform chunk")
	}

	short := bytes.Repeat([]byte{0x42}, chunkSize-1)
	if k := uniformByteKey(short, groupWork{}, chunkSize, wia.WiiKey{}); k != nil {
		t.Errorf("expected no reuse key for a short final group")
	}
}

func TestUniformByteKeyWiiScopedByPartition(t *testing.T) {
	t.Parallel()

	const chunkSize = 1024
	uniform := bytes.Repeat([]byte{0x7F}, chunkSize)
	work := groupWork{isWii: true}

	keyA := uniformByteKey(uniform, work, chunkSize, wia.WiiKey{1})
	keyB := uniformByteKey(uniform, work, chunkSize, wia.WiiKey{2})
	if keyA == nil || keyB == nil {
		t.Fatalf("expected reuse keys for both partitions")
	}
	if *keyA == *keyB {
		t.Errorf("expected different partitions to produce different reuse keys, got equal: %+v", keyA)
	}
}

func TestIsAllZero(t *testing.T) {
	t.Parallel()

	if !isAllZero(make([]byte, 100)) {
		t.Errorf("expected an all-zero buffer to report true")
	}
	buf := make([]byte, 100)
	buf[99] = 1
	if isAllZero(buf) {
		t.Errorf("expected a non-zero buffer to report false")
	}
	if !isAllZero(nil) {
		t.Errorf("expected an empty buffer to report true")
	}
}

func TestDiffHashExceptions(t *testing.T) {
	t.Parallel()

	stored := make([]byte, 60) // 3 windows of 20 bytes
	recomputed := make([]byte, 60)
	copy(recomputed, stored)
	recomputed[25] = 0xFF // second window differs

	got := diffHashExceptions(stored, recomputed)
	if len(got) != 1 {
		t.Fatalf("expected exactly one exception, got %d", len(got))
	}
	if got[0].Offset != 20 {
		t.Errorf("exception offset = %d, want 20", got[0].Offset)
	}
	if got[0].Hash != (wia.SHA1{}) {
		t.Errorf("exception hash should be the stored (original) bytes, got %v", got[0].Hash)
	}
}

func TestDiffHashExceptionsNoneWhenEqual(t *testing.T) {
	t.Parallel()

	stored := bytes.Repeat([]byte{0xAB}, 40)
	recomputed := append([]byte(nil), stored...)
	if got := diffHashExceptions(stored, recomputed); len(got) != 0 {
		t.Errorf("expected no exceptions for identical hash areas, got %d", len(got))
	}
}
