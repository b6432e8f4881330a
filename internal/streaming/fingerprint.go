package streaming

import (
	"bytes"
	"crypto"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vaultbox/corevault/crypto/hashutil"
)

const fingerprintWindow = 1 << 20 // 1 MiB

// SourceHash computes the resume fingerprint of a source file: a SHA-256
// over its first MiB, its last MiB (omitted for files of 2 MiB or less),
// and its little-endian size.
func SourceHash(r io.ReaderAt, size int64) ([32]byte, error) {
	var out [32]byte
	if size < 0 {
		return out, fmt.Errorf("streaming: negative file size %d", size)
	}

	head := make([]byte, minInt64(fingerprintWindow, size))
	if len(head) > 0 {
		if _, err := r.ReadAt(head, 0); err != nil && err != io.EOF {
			return out, fmt.Errorf("streaming: reading head window: %w", err)
		}
	}

	var tail []byte
	if size > 2*fingerprintWindow {
		tail = make([]byte, fingerprintWindow)
		if _, err := r.ReadAt(tail, size-fingerprintWindow); err != nil && err != io.EOF {
			return out, fmt.Errorf("streaming: reading tail window: %w", err)
		}
	}

	sum, err := hashutil.Hash(windowReader(head, tail, uint64(size)), crypto.SHA256)
	if err != nil {
		return out, fmt.Errorf("streaming: hashing fingerprint windows: %w", err)
	}
	copy(out[:], sum)
	return out, nil
}

// SourceHashFromWindows computes the resume fingerprint from caller-supplied
// head/tail windows, for hosts that read the source file themselves (the
// container engine never touches files outside the vault). last should be
// empty when size <= 2 MiB.
func SourceHashFromWindows(first, last []byte, size uint64) [32]byte {
	var out [32]byte
	sum, err := hashutil.Hash(windowReader(first, last, size), crypto.SHA256)
	if err != nil {
		// Hash only fails on an unavailable algorithm or nil reader, neither
		// of which can happen here.
		panic(fmt.Sprintf("streaming: hashing fingerprint windows: %v", err))
	}
	copy(out[:], sum)
	return out
}

func windowReader(first, last []byte, size uint64) io.Reader {
	var sizeLE [8]byte
	binary.LittleEndian.PutUint64(sizeLE[:], size)
	return io.MultiReader(bytes.NewReader(first), bytes.NewReader(last), bytes.NewReader(sizeLE[:]))
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
