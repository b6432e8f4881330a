package vault

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vaultbox/corevault/internal/vaultcrypto"
)

// maxIndexCiphertextLen bounds ct_len on read: readers reject an index
// section claiming a ciphertext larger than this.
const maxIndexCiphertextLen = 100 << 20

// sealIndexSection encrypts plaintext under mk with empty AAD and frames it
// as nonce(24) || ct_len(u64) || ciphertext, the on-disk index section
// shape.
func sealIndexSection(mk []byte, plaintext []byte) ([]byte, error) {
	nonce, err := vaultcrypto.RandomNonce()
	if err != nil {
		return nil, fmt.Errorf("generating index nonce: %w", err)
	}
	ct, err := vaultcrypto.Seal(mk, nonce, nil, plaintext)
	if err != nil {
		return nil, fmt.Errorf("sealing index: %w", err)
	}

	out := make([]byte, 0, 24+8+len(ct))
	out = append(out, nonce...)
	var ctLen [8]byte
	binary.LittleEndian.PutUint64(ctLen[:], uint64(len(ct)))
	out = append(out, ctLen[:]...)
	out = append(out, ct...)
	return out, nil
}

// parseIndexSection reads a framed index section starting at buf[0] and
// returns the decrypted plaintext along with the number of bytes consumed.
func parseIndexSection(mk []byte, buf []byte) (plaintext []byte, consumed int, err error) {
	if len(buf) < 24+8 {
		return nil, 0, fmt.Errorf("index section truncated")
	}
	nonce := buf[:24]
	ctLen := binary.LittleEndian.Uint64(buf[24:32])
	if ctLen > maxIndexCiphertextLen {
		return nil, 0, fmt.Errorf("index ciphertext length %d exceeds max %d", ctLen, maxIndexCiphertextLen)
	}
	end := 32 + int(ctLen)
	if len(buf) < end {
		return nil, 0, fmt.Errorf("index section truncated: need %d bytes, have %d", end, len(buf))
	}
	ct := buf[32:end]

	pt, err := vaultcrypto.Open(mk, nonce, nil, ct)
	if err != nil {
		return nil, 0, err
	}
	return pt, end, nil
}

// writeIndexSection writes an already-framed index blob (as produced by
// sealIndexSection) to w.
func writeIndexSection(w io.Writer, framed []byte) error {
	if _, err := w.Write(framed); err != nil {
		return fmt.Errorf("writing index section: %w", err)
	}
	return nil
}
