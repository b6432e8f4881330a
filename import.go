package vault

import (
	"fmt"

	"github.com/vaultbox/corevault/internal/index"
	"github.com/vaultbox/corevault/internal/vaultcrypto"
)

// EntryType mirrors the single-byte type discriminator stored in the index.
// The engine treats it as opaque; the host application assigns meaning
// (text, image, audio, video, ...).
type EntryType = uint8

// ImportBytes directly encrypts and appends plaintext as a new single-blob
// entry. Large sources should use the streaming import path instead so the
// full plaintext is never held in memory at once.
func (v *Vault) ImportBytes(plaintext []byte, fileType EntryType, name, mime string) ([16]byte, error) {
	const op = "import_bytes"
	var zero [16]byte

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOpen(op); err != nil {
		return zero, err
	}
	if len(name) > index.MaxNameLen {
		return zero, newErr(op, CodeInvalidParam, fmt.Errorf("name too long"))
	}
	if err := validateCreateName(name); err != nil {
		return zero, newErr(op, CodeInvalidParam, err)
	}
	if len(mime) > index.MaxMIMELen {
		return zero, newErr(op, CodeInvalidParam, fmt.Errorf("mime too long"))
	}

	fileID, err := vaultcrypto.NewID16()
	if err != nil {
		return zero, newErr(op, CodeCrypto, err)
	}

	entry, payload, err := v.buildSingleBlobEntry([16]byte(fileID), fileType, name, mime, plaintext, nowMillis())
	if err != nil {
		return zero, newErr(op, CodeCrypto, err)
	}

	if err := v.appendEntry(entry, payload); err != nil {
		return zero, newErr(op, CodeIO, err)
	}
	return [16]byte(fileID), nil
}

// buildSingleBlobEntry draws a fresh DEK, wraps it under MK, and seals
// plaintext under it, returning an index.Entry with every field set except
// DataOffset/DataLength (assigned by appendEntry) and the on-disk payload
// (nonce || ciphertext) to place at that offset.
func (v *Vault) buildSingleBlobEntry(fileID [16]byte, fileType EntryType, name, mime string, plaintext []byte, createdAt uint64) (index.Entry, []byte, error) {
	dek, err := vaultcrypto.NewMasterKey() // 32 random bytes; same size as a DEK
	if err != nil {
		return index.Entry{}, nil, fmt.Errorf("generating dek: %w", err)
	}
	defer vaultcrypto.SecureZero(dek)

	wrappedDEK, err := wrapDEK(v.mk.Bytes(), v.vaultID16(), fileID, dek)
	if err != nil {
		return index.Entry{}, nil, err
	}

	aad := vaultcrypto.BuildAAD(v.vaultID16(), fileID, 0)
	payload, err := vaultcrypto.SealBlob(dek, aad, plaintext)
	if err != nil {
		return index.Entry{}, nil, fmt.Errorf("sealing file: %w", err)
	}

	entry := index.Entry{
		FileID:     fileID,
		Type:       fileType,
		CreatedAt:  createdAt,
		Name:       name,
		MIME:       mime,
		Size:       uint64(len(plaintext)),
		WrappedDEK: wrappedDEK,
	}
	return entry, payload, nil
}
