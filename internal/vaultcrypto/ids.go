package vaultcrypto

import (
	"fmt"

	"github.com/vaultbox/corevault/generator/randomness"
)

// ID16 is a 16-byte random identifier: a vault_id, a file_id, or an
// import_id.
type ID16 [16]byte

// NewID16 draws a fresh random 16-byte identifier from the CSPRNG.
func NewID16() (ID16, error) {
	var id ID16
	raw, err := randomness.Bytes(16)
	if err != nil {
		return id, fmt.Errorf("vaultcrypto: unable to generate id: %w", err)
	}
	copy(id[:], raw)
	return id, nil
}

// NewSalt draws a fresh 16-byte Argon2id salt.
func NewSalt() ([]byte, error) {
	salt, err := randomness.Bytes(16)
	if err != nil {
		return nil, fmt.Errorf("vaultcrypto: unable to generate salt: %w", err)
	}
	return salt, nil
}

// NewMasterKey draws a fresh 32-byte master key.
func NewMasterKey() ([]byte, error) {
	mk, err := randomness.Bytes(KeySize)
	if err != nil {
		return nil, fmt.Errorf("vaultcrypto: unable to generate master key: %w", err)
	}
	return mk, nil
}
