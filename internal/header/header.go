// Package header implements the container's two on-disk header forms: the
// legacy single-record header (read-only for new writers) and the journaled
// superblock + two-slot header that every writer emits.
package header

import (
	"bytes"
	"fmt"

	"github.com/vaultbox/corevault/internal/vaultcrypto"
)

const (
	// LegacyMagic identifies the legacy single-header container form.
	LegacyMagic = "VAULTv1\x00"
	// JournalMagic identifies the journaled superblock form.
	JournalMagic = "VAULTJ1\x00"
	// FormatVersion is the only version number either header form accepts.
	FormatVersion = uint32(1)
	// WrappedMKLen is the fixed length of nonce(24) || AEAD(MK) == 24 + 32 + 16.
	WrappedMKLen = vaultcrypto.NonceSize + vaultcrypto.KeySize + vaultcrypto.Overhead

	// LegacySize is the full byte size of a legacy header record.
	LegacySize = 136
	// legacyCRCSpan is the byte range the legacy CRC is computed over: the
	// fixed struct fields, excluding the wrapped_mk bytes and the CRC field
	// itself.
	legacyCRCSpan = 60

	// SuperblockSize is the journaled form's fixed superblock size.
	SuperblockSize = 28
	// SlotSize is the size of one journaled slot record, fixed by its field
	// layout: seq(4) + vault_id(16) + salt(16) + kdf(4*3) + wrapped_mk_len(4)
	// + wrapped_mk(72) + crc32(4) = 128.
	SlotSize = 4 + 16 + 16 + 4 + 4 + 4 + 4 + WrappedMKLen + 4
	// SlotCount is always 2: the active slot and its fallback.
	SlotCount = 2
)

// Header is the parsed, form-agnostic view of a container's key-wrapping
// envelope, used by the engine regardless of which on-disk form produced it.
type Header struct {
	Journal bool
	VaultID [16]byte
	Salt    [16]byte
	KDF     vaultcrypto.Params

	// WrappedMK is nonce(24) || ciphertext(48), WrappedMKLen bytes total.
	WrappedMK []byte

	// Seq is the slot sequence number this view was selected from. Always 0
	// for a legacy header.
	Seq uint32

	// HeaderSize is the byte offset at which the index section begins.
	HeaderSize int
}

// Parse reads whichever header form is present at the start of buf and
// returns the selected, validated view.
func Parse(buf []byte) (*Header, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("header: buffer too short to contain a magic")
	}
	switch {
	case bytes.Equal(buf[:8], []byte(LegacyMagic)):
		return parseLegacy(buf)
	case bytes.Equal(buf[:8], []byte(JournalMagic)):
		return parseJournal(buf)
	default:
		return nil, fmt.Errorf("header: unrecognized magic")
	}
}
