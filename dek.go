package vault

import (
	"fmt"

	"github.com/vaultbox/corevault/internal/vaultcrypto"
)

// wrapDEK seals a fresh data-encryption key under the master key. DEK
// wrapping always uses chunk_index = 0 in the AAD tuple, whether the entry
// it belongs to ends up single-blob or chunked.
func wrapDEK(mk []byte, vaultID, fileID [16]byte, dek []byte) ([]byte, error) {
	aad := vaultcrypto.BuildAAD(vaultID, fileID, 0)
	blob, err := vaultcrypto.SealBlob(mk, aad, dek)
	if err != nil {
		return nil, fmt.Errorf("wrapping dek: %w", err)
	}
	return blob, nil
}

// unwrapDEK reverses wrapDEK. A tag mismatch here is always auth_fail, not
// corrupted: the index around it already authenticated under MK.
func unwrapDEK(mk []byte, vaultID, fileID [16]byte, wrappedDEK []byte) ([]byte, error) {
	aad := vaultcrypto.BuildAAD(vaultID, fileID, 0)
	dek, err := vaultcrypto.OpenBlob(mk, aad, wrappedDEK)
	if err != nil {
		return nil, fmt.Errorf("unwrapping dek: %w", err)
	}
	return dek, nil
}
