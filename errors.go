package wia

import "errors"

// Error kinds, one per taxonomy row: IoError, CorruptHeader, CorruptChunk,
// UnsupportedCompression, DataOverlap, WriteFailed, CallbackAborted. None of
// these are locally recoverable — they fail the open, the read, or the
// conversion outright.
var (
	// ErrIO wraps short reads/writes and other I/O failures.
	ErrIO = errors.New("wia: i/o error")

	// ErrCorruptHeader indicates a magic, version, size, or hash mismatch at open.
	ErrCorruptHeader = errors.New("wia: corrupt header")

	// ErrCorruptChunk indicates a codec error, an exception-list overrun, or a
	// Purge hash mismatch. The chunk that raised it is poisoned.
	ErrCorruptChunk = errors.New("wia: corrupt chunk")

	// ErrUnsupportedCompression indicates an unknown compression tag or an
	// LZMA2 dictionary byte above 40.
	ErrUnsupportedCompression = errors.New("wia: unsupported compression")

	// ErrDataOverlap indicates the packed variant's index has overlapping entries.
	ErrDataOverlap = errors.New("wia: data entries overlap")

	// ErrWriteFailed indicates codec init, a mid-conversion read failure, or
	// any other failure during conversion not covered by ErrCallbackAborted.
	ErrWriteFailed = errors.New("wia: write failed")

	// ErrCallbackAborted indicates the caller's progress callback requested a stop.
	ErrCallbackAborted = errors.New("wia: aborted by callback")
)
