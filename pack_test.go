package wia

import (
	"bytes"
	"testing"
)

func TestPackUnpackRoundtripLiteral(t *testing.T) {
	t.Parallel()

	plaintext := bytes.Repeat([]byte("abcdefghijklmnopqrstuvwxyz"), 100)
	packed := PackChunk(plaintext, 0x1000)

	unpacked, err := UnpackChunk(packed, 0x1000)
	if err != nil {
		t.Fatalf("UnpackChunk: %v", err)
	}
	if !bytes.Equal(unpacked, plaintext) {
		t.Fatalf("roundtrip mismatch: got %d bytes, want %d", len(unpacked), len(plaintext))
	}
}

func TestPackUnpackRoundtripJunk(t *testing.T) {
	t.Parallel()

	const dataOffset = 0x2000
	// A plaintext that is exactly the junk stream the decoder would
	// regenerate at this offset packs down to a single junk segment.
	plaintext := NewLaggedFibonacci(uint32(dataOffset)).Bytes(4096)
	packed := PackChunk(plaintext, dataOffset)

	if len(packed) >= len(plaintext) {
		t.Fatalf("expected junk run to compress the pack stream, got %d >= %d", len(packed), len(plaintext))
	}

	unpacked, err := UnpackChunk(packed, dataOffset)
	if err != nil {
		t.Fatalf("UnpackChunk: %v", err)
	}
	if !bytes.Equal(unpacked, plaintext) {
		t.Fatalf("junk roundtrip mismatch")
	}
}

func TestPackUnpackRoundtripMixed(t *testing.T) {
	t.Parallel()

	const dataOffset = 0x4000
	junk := NewLaggedFibonacci(uint32(dataOffset)).Bytes(200)
	literal := bytes.Repeat([]byte{0xAB, 0xCD}, 50)

	var plaintext []byte
	plaintext = append(plaintext, junk...)
	plaintext = append(plaintext, literal...)

	packed := PackChunk(plaintext, dataOffset)
	unpacked, err := UnpackChunk(packed, dataOffset)
	if err != nil {
		t.Fatalf("UnpackChunk: %v", err)
	}
	if !bytes.Equal(unpacked, plaintext) {
		t.Fatalf("mixed roundtrip mismatch")
	}
}

func TestUnpackChunkTruncatedHeader(t *testing.T) {
	t.Parallel()

	if _, err := UnpackChunk([]byte{0x00, 0x00, 0x01}, 0); err == nil {
		t.Fatalf("expected an error for a truncated segment header")
	}
}
