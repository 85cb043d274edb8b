package wia

import "fmt"

// Wii disc block geometry. Each on-disc block is wiiBlockTotalSize bytes:
// a hash area followed by encrypted payload. BlocksPerGroup blocks make up
// one hash group, over which a HashExceptionEntry list is defined.
const (
	wiiBlockTotalSize = 0x8000
	wiiBlockHashSize  = 0x400
	wiiBlockDataSize  = wiiBlockTotalSize - wiiBlockHashSize // 0x7c00

	BlocksPerGroup    = 64
	WiiGroupDataSize  = BlocksPerGroup * wiiBlockDataSize // 0x1f0000
)

// HashBlock is the recomputed hash area for one Wii disc block: the SHA-1
// hash tree Dolphin's volume format stores ahead of each block's payload.
type HashBlock [wiiBlockHashSize]byte

// WiiCrypto is the external collaborator that owns partition title keys and
// the AES/SHA-1 machinery for Wii partitions. Only a narrow decrypt/encrypt
// interface is consumed here; the actual cryptography is out of scope for
// this module and left to the caller-supplied implementation.
type WiiCrypto interface {
	// DecryptGroup decrypts BlocksPerGroup blocks of on-disc partition data
	// starting at partitionOffset (relative to the start of the partition's
	// data area) into plaintext payload and freshly computed hash blocks.
	DecryptGroup(key WiiKey, partitionOffset uint64, ciphertext []byte) (plaintext []byte, hashes [BlocksPerGroup]HashBlock, err error)

	// EncryptGroup is the writer-side inverse: given plaintext payload and
	// (already hash-exception-corrected) hash blocks, produce the encrypted
	// on-disc bytes for BlocksPerGroup blocks.
	EncryptGroup(key WiiKey, partitionOffset uint64, plaintext []byte, hashes [BlocksPerGroup]HashBlock) (ciphertext []byte, err error)
}

// ChunksPerWiiGroup reports how many container chunks make up one Wii hash
// group at the given declared chunk size: each chunk holds chunkSize bytes
// of a partition's decrypted, hash-stripped payload plus its own
// hash-exception list, and ceil(WiiGroupDataSize/chunkSize) of them together
// span one 64-block hash group (the final one possibly short), with one
// hash-exception list emitted per chunk in the group. Shared by the reader
// (to walk a group's sub-chunks) and the writer (to plan them).
func ChunksPerWiiGroup(chunkSize uint32) uint32 {
	return uint32((WiiGroupDataSize + uint64(chunkSize) - 1) / uint64(chunkSize))
}

// ApplyHashExceptions overwrites individual bytes of the concatenated hash
// area for a group with the overrides named by exceptions: each entry
// replaces the hash bytes at its offset with the original stored hash.
// hashArea is the BlocksPerGroup hash blocks viewed as one flat byte slice.
func ApplyHashExceptions(exceptions []HashExceptionEntry, hashArea []byte) error {
	var lastOffset int = -1
	for _, e := range exceptions {
		off := int(e.Offset)
		if off <= lastOffset {
			return fmt.Errorf("%w: hash exceptions out of order: %d after %d", ErrCorruptChunk, off, lastOffset)
		}
		lastOffset = off
		if off+len(e.Hash) > len(hashArea) {
			return fmt.Errorf("%w: hash exception offset %d overruns hash area of %d bytes",
				ErrCorruptChunk, off, len(hashArea))
		}
		copy(hashArea[off:off+len(e.Hash)], e.Hash[:])
	}
	return nil
}

// FlattenHashBlocksForDiff exposes flattenHashBlocks to wiaconv, which needs
// the same flat layout to diff a writer's recomputed hashes against a
// source image's stored ones when building a hash-exception list.
func FlattenHashBlocksForDiff(hashes [BlocksPerGroup]HashBlock) []byte {
	return flattenHashBlocks(hashes)
}

// flattenHashBlocks views BlocksPerGroup hash blocks as one contiguous
// byte slice, matching the layout ApplyHashExceptions expects.
func flattenHashBlocks(hashes [BlocksPerGroup]HashBlock) []byte {
	out := make([]byte, BlocksPerGroup*wiiBlockHashSize)
	for i, h := range hashes {
		copy(out[i*wiiBlockHashSize:(i+1)*wiiBlockHashSize], h[:])
	}
	return out
}
