package main

import (
	"fmt"
	"os"

	"github.com/wiatool/wia"
	"github.com/wiatool/wia/wiaconv"
)

// fileSource adapts a plain raw disc image file (GameCube ISO, or a Wii ISO
// with no partition-table awareness) to wiaconv's BlobReader and VolumeView
// collaborators. It never reports any partitions: wiatool's -c mode treats
// the whole file as one contiguous raw-data region, which is correct for
// GameCube images and for Wii images the caller is content to store without
// per-partition hash-exception reconstruction.
type fileSource struct {
	f    *os.File
	size uint64
}

func newFileSource(path string) (*fileSource, error) {
	f, err := os.Open(path) //nolint:gosec // path is caller-supplied
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileSource{f: f, size: uint64(st.Size())}, nil
}

func (s *fileSource) Close() error { return s.f.Close() }

func (s *fileSource) Read(offset, size uint64, out []byte) error {
	if _, err := s.f.ReadAt(out[:size], int64(offset)); err != nil {
		return fmt.Errorf("%w: %w", wia.ErrIO, err)
	}
	return nil
}

func (s *fileSource) DataSize() uint64                 { return s.size }
func (s *fileSource) IsDataSizeAccurate() bool          { return true }
func (s *fileSource) BlockSize() uint32                 { return wia.SectorSize }
func (s *fileSource) HasFastRandomAccessInBlock() bool  { return true }
func (s *fileSource) SupportsReadWiiDecrypted() bool    { return false }
func (s *fileSource) BlobType() wia.BlobType            { return wia.BlobWIA }

func (s *fileSource) ReadWiiDecrypted(uint64, uint64, []byte, uint64) error {
	return fmt.Errorf("%w: fileSource carries no partition table", wia.ErrUnsupportedCompression)
}

func (s *fileSource) Partitions() []wiaconv.VolumePartition { return nil }
