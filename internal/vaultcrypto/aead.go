package vaultcrypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the length in bytes of every symmetric key in the vault
	// (MK, KEK, DEK).
	KeySize = 32
	// NonceSize is the XChaCha20-Poly1305 nonce length.
	NonceSize = 24
	// Overhead is the Poly1305 tag length appended to every ciphertext.
	Overhead = chacha20poly1305.Overhead
	// AADSize is the length of the fixed additional-authenticated-data tuple
	// bound to every non-index AEAD message.
	AADSize = 16 + 16 + 4 + 4
	// FormatVersion is embedded in every AAD tuple so a future on-disk
	// format revision can't be replayed against an older decryptor.
	FormatVersion uint32 = 1
)

var ErrAuthFailed = errors.New("aead: authentication failed")

// BuildAAD packs the fixed 40-byte additional authenticated data tuple:
// vault_id(16) || file_id(16) || chunk_index(u32 LE) || format_version(u32 LE).
// chunkIndex is 0 for single-blob entries and for DEK wrapping.
func BuildAAD(vaultID, fileID [16]byte, chunkIndex uint32) []byte {
	aad := make([]byte, AADSize)
	copy(aad[0:16], vaultID[:])
	copy(aad[16:32], fileID[:])
	binary.LittleEndian.PutUint32(aad[32:36], chunkIndex)
	binary.LittleEndian.PutUint32(aad[36:40], FormatVersion)
	return aad
}

// Seal encrypts plaintext under key using the explicit nonce and returns the
// raw ciphertext (tag appended, no nonce prefix).
func Seal(key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("aead: nonce must be %d bytes", NonceSize)
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open decrypts ciphertext (as produced by Seal) under key with the given
// explicit nonce. It returns ErrAuthFailed on any tag mismatch so callers
// can map it directly to the auth_fail taxonomy code.
func Open(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("aead: nonce must be %d bytes", NonceSize)
	}
	pt, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return pt, nil
}

// SealBlob generates a fresh random nonce, encrypts plaintext, and returns
// nonce || ciphertext — the on-disk shape used for the index section, the
// single-blob data region, and every wrapped key.
func SealBlob(key, aad, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("aead: unable to generate nonce: %w", err)
	}
	ct, err := Seal(key, nonce, aad, plaintext)
	if err != nil {
		return nil, err
	}
	blob := make([]byte, 0, NonceSize+len(ct))
	blob = append(blob, nonce...)
	blob = append(blob, ct...)
	return blob, nil
}

// OpenBlob splits a nonce || ciphertext blob and decrypts it.
func OpenBlob(key, aad, blob []byte) ([]byte, error) {
	if len(blob) < NonceSize+Overhead {
		return nil, fmt.Errorf("aead: blob too short (%d bytes)", len(blob))
	}
	nonce, ct := blob[:NonceSize], blob[NonceSize:]
	return Open(key, nonce, aad, ct)
}

// RandomNonce returns a fresh 24-byte CSPRNG nonce, for callers (e.g. the
// chunk writer) that must store the nonce separately from the ciphertext.
func RandomNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("aead: unable to generate nonce: %w", err)
	}
	return nonce, nil
}

func newAEAD(key []byte) (interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("aead: key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("aead: unable to initialize XChaCha20-Poly1305: %w", err)
	}
	return aead, nil
}

// ConstantTimeEqual reports whether a and b are equal using a constant-time
// comparison, for use whenever secret equality must be checked (e.g.
// verifying the unwrapped MK during a passphrase change).
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
