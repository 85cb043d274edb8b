package wiacodec

import (
	"bytes"
	"testing"
)

func roundtrip(t *testing.T, typ Type, level int, plaintext []byte) {
	t.Helper()

	comp, compressorData, err := NewCompressor(typ, level)
	if err != nil {
		t.Fatalf("NewCompressor(%v): %v", typ, err)
	}
	if err := comp.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := comp.Compress(plaintext); err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if err := comp.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	compressed := comp.Data()

	dec, err := NewDecompressor(typ, compressorData, uint64(len(plaintext)))
	if err != nil {
		t.Fatalf("NewDecompressor(%v): %v", typ, err)
	}
	t.Cleanup(func() { _ = dec.Close() })

	in := &Buffer{Data: compressed, Written: len(compressed)}
	out := NewBuffer(len(plaintext))
	inRead := 0
	for !dec.Done() {
		prevRead, prevWritten := inRead, out.Written
		if err := dec.Decompress(in, out, &inRead); err != nil {
			t.Fatalf("Decompress: %v", err)
		}
		if inRead == prevRead && out.Written == prevWritten {
			t.Fatalf("decompressor made no progress (inRead=%d, written=%d, done=%v)", inRead, out.Written, dec.Done())
		}
	}

	if !bytes.Equal(out.Data[:out.Written], plaintext) {
		t.Fatalf("%v roundtrip mismatch: got %d bytes, want %d", typ, out.Written, len(plaintext))
	}
}

func TestCodecRoundtrip(t *testing.T) {
	t.Parallel()

	plaintext := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 200)
	zeros := make([]byte, 4096)

	cases := []struct {
		name  string
		typ   Type
		level int
		data  []byte
	}{
		{"none", None, 0, plaintext},
		{"purge all-zero", Purge, 0, zeros},
		{"purge with run", Purge, 0, append(append(make([]byte, 100), plaintext...), make([]byte, 50)...)},
		{"bzip2", Bzip2, 6, plaintext},
		{"lzma", LZMA, 6, plaintext},
		{"lzma2", LZMA2, 6, plaintext},
		{"zstd", Zstd, 9, plaintext},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			roundtrip(t, tc.typ, tc.level, tc.data)
		})
	}
}

func TestLevelRange(t *testing.T) {
	t.Parallel()

	cases := []struct {
		typ      Type
		min, max int
	}{
		{None, 0, 0},
		{Purge, 0, 0},
		{Bzip2, 1, 9},
		{LZMA, 0, 9},
		{LZMA2, 0, 9},
		{Zstd, 1, 22},
	}
	for _, tc := range cases {
		min, max := LevelRange(tc.typ)
		if min != tc.min || max != tc.max {
			t.Errorf("LevelRange(%v) = (%d, %d), want (%d, %d)", tc.typ, min, max, tc.min, tc.max)
		}
	}
}

func TestPurgeCorruption(t *testing.T) {
	t.Parallel()

	comp, _, err := NewCompressor(Purge, 0)
	if err != nil {
		t.Fatalf("NewCompressor: %v", err)
	}
	if err := comp.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	plaintext := []byte("nonzero payload here")
	if err := comp.Compress(plaintext); err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if err := comp.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	corrupted := append([]byte(nil), comp.Data()...)
	corrupted[len(corrupted)-1] ^= 0xff // flip a trailer hash byte

	dec, err := NewDecompressor(Purge, nil, uint64(len(plaintext)))
	if err != nil {
		t.Fatalf("NewDecompressor: %v", err)
	}
	t.Cleanup(func() { _ = dec.Close() })
	in := &Buffer{Data: corrupted, Written: len(corrupted)}
	out := NewBuffer(len(plaintext))
	inRead := 0
	var gotErr error
	for !dec.Done() {
		prevRead, prevWritten := inRead, out.Written
		if err := dec.Decompress(in, out, &inRead); err != nil {
			gotErr = err
			break
		}
		if inRead == prevRead && out.Written == prevWritten {
			break
		}
	}
	if gotErr == nil {
		t.Fatalf("expected a hash-mismatch error, got none")
	}
}
