package vault

import (
	"fmt"
	"os"

	"github.com/vaultbox/corevault/internal/index"
	"github.com/vaultbox/corevault/internal/vaultcrypto"
)

// compactThreshold is the free-space fraction (of total_size) that must be
// reached before Compact does any work.
const compactThreshold = 4 // free_space >= total_size / compactThreshold (25%)

// Compact reclaims space left behind by soft-deleted entries. It is a
// no-op unless free space is at least 25% of the container's total size.
// Every live blob is read and AEAD-verified in passing, then copied
// verbatim (not re-encrypted) into a contiguous data region.
func (v *Vault) Compact() error {
	const op = "compact"

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOpen(op); err != nil {
		return err
	}

	if v.freeSpace() < v.totalSize/compactThreshold {
		return nil
	}

	oldFile, err := os.Open(v.path)
	if err != nil {
		return newErr(op, CodeIO, err)
	}
	defer oldFile.Close()

	newEntries := make([]index.Entry, len(v.entries))
	copy(newEntries, v.entries)

	for i := range newEntries {
		e := &newEntries[i]
		dek, err := unwrapDEK(v.mk.Bytes(), v.vaultID16(), e.FileID, e.WrappedDEK)
		if err != nil {
			return newErr(op, CodeAuthFail, fmt.Errorf("entry %x: %w", e.FileID, err))
		}
		if e.IsChunked() {
			for ci, c := range e.Chunks {
				ct := make([]byte, c.Length)
				if _, err := oldFile.ReadAt(ct, int64(c.Offset)); err != nil {
					vaultcrypto.SecureZero(dek)
					return newErr(op, CodeIO, err)
				}
				aad := vaultcrypto.BuildAAD(v.vaultID16(), e.FileID, uint32(ci))
				if _, err := vaultcrypto.Open(dek, c.Nonce[:], aad, ct); err != nil {
					vaultcrypto.SecureZero(dek)
					return newErr(op, CodeAuthFail, fmt.Errorf("entry %x chunk %d: %w", e.FileID, ci, err))
				}
			}
		} else {
			raw := make([]byte, e.DataLength)
			if _, err := oldFile.ReadAt(raw, int64(e.DataOffset)); err != nil {
				vaultcrypto.SecureZero(dek)
				return newErr(op, CodeIO, err)
			}
			if len(raw) < vaultcrypto.NonceSize+vaultcrypto.Overhead {
				vaultcrypto.SecureZero(dek)
				return newErr(op, CodeCorrupted, fmt.Errorf("entry %x: blob too short", e.FileID))
			}
			aad := vaultcrypto.BuildAAD(v.vaultID16(), e.FileID, 0)
			if _, err := vaultcrypto.Open(dek, raw[:vaultcrypto.NonceSize], aad, raw[vaultcrypto.NonceSize:]); err != nil {
				vaultcrypto.SecureZero(dek)
				return newErr(op, CodeAuthFail, fmt.Errorf("entry %x: %w", e.FileID, err))
			}
		}
		vaultcrypto.SecureZero(dek)
	}

	newCapacity := index.ChooseCapacity(0, index.RequiredSize(newEntries))

	headerBytes, err := v.currentHeaderBytes()
	if err != nil {
		return newErr(op, CodeIO, err)
	}

	dataWriter := func(oldFile, tmp *os.File) (int64, error) {
		var written int64
		for i := range newEntries {
			e := &newEntries[i]
			if e.IsChunked() {
				for ci := range e.Chunks {
					c := &e.Chunks[ci]
					n, err := copySpan(tmp, oldFile, int64(c.Offset), int64(c.Length))
					if err != nil {
						return 0, err
					}
					c.Offset = uint64(int64(len(headerBytes)) + indexSectionLen(newCapacity) + written)
					written += n
				}
			} else {
				n, err := copySpan(tmp, oldFile, int64(e.DataOffset), int64(e.DataLength))
				if err != nil {
					return 0, err
				}
				e.DataOffset = uint64(int64(len(headerBytes)) + indexSectionLen(newCapacity) + written)
				written += n
			}
		}
		return written, nil
	}

	// fullRewrite encodes the index before dataWriter runs, so the compacted
	// offsets it persists are assigned here.
	compacted := make([]index.Entry, len(newEntries))
	next := uint64(int64(len(headerBytes)) + indexSectionLen(newCapacity))
	for i, e := range newEntries {
		if e.IsChunked() {
			e.Chunks = append([]index.ChunkRef(nil), e.Chunks...)
			for ci := range e.Chunks {
				e.Chunks[ci].Offset, next = next, next+uint64(e.Chunks[ci].Length)
			}
		} else {
			e.DataOffset, next = next, next+e.DataLength
		}
		compacted[i] = e
	}

	return v.fullRewrite(headerBytes, newCapacity, compacted, dataWriter)
}
