package vault

import (
	"fmt"
	"os"

	"github.com/vaultbox/corevault/internal/header"
	"github.com/vaultbox/corevault/internal/index"
	"github.com/vaultbox/corevault/internal/vaultcrypto"
	"github.com/vaultbox/corevault/log"
	"github.com/vaultbox/corevault/value"
)

// Open unwraps path's master key under passphrase and populates the
// in-memory state. A wrong passphrase surfaces as CodeAuthFail; a
// structurally broken container surfaces as CodeCorrupted.
func (v *Vault) Open(path string, passphrase []byte) error {
	const op = "open"

	v.mu.Lock()
	defer v.mu.Unlock()

	log.Level(log.DebugLevel).Field("path", path).Field("passphrase", value.AsRedacted(string(passphrase))).Message("vault: open requested")

	if err := validatePassphrase(passphrase); err != nil {
		return err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return newErr(op, CodeNotFound, err)
		}
		return newErr(op, CodeIO, err)
	}

	h, err := header.Parse(raw)
	if err != nil {
		return newErr(op, CodeCorrupted, err)
	}

	kek := vaultcrypto.DeriveKEK(passphrase, h.Salt[:], h.KDF)
	defer vaultcrypto.SecureZero(kek)

	mkRaw, err := vaultcrypto.OpenBlob(kek, h.VaultID[:], h.WrappedMK)
	if err != nil {
		return newErr(op, CodeAuthFail, err)
	}
	mk := vaultcrypto.NewKey(mkRaw)

	if len(raw) < h.HeaderSize {
		mk.Destroy()
		return newErr(op, CodeCorrupted, fmt.Errorf("file shorter than header"))
	}

	plaintext, consumed, err := parseIndexSection(mk.Bytes(), raw[h.HeaderSize:])
	if err != nil {
		mk.Destroy()
		return newErr(op, CodeCorrupted, fmt.Errorf("decrypting index section: %w", err))
	}

	entries, isPadded, err := index.Decode(plaintext)
	if err != nil {
		mk.Destroy()
		return newErr(op, CodeCorrupted, fmt.Errorf("parsing index: %w", err))
	}

	indexSectionEnd := h.HeaderSize + consumed
	maxDataEnd := int64(indexSectionEnd)
	for _, e := range entries {
		if e.IsChunked() {
			for _, c := range e.Chunks {
				end := int64(c.Offset) + int64(c.Length)
				if end > maxDataEnd {
					maxDataEnd = end
				}
			}
		} else {
			end := int64(e.DataOffset) + int64(e.DataLength)
			if end > maxDataEnd {
				maxDataEnd = end
			}
		}
	}

	v.closeLocked()
	v.path = path
	v.vaultID = *h
	v.journal = h.Journal
	v.headerSeq = h.Seq
	v.headerSize = h.HeaderSize
	v.salt = append([]byte(nil), h.Salt[:]...)
	v.kdf = h.KDF
	v.wrappedMK = append([]byte(nil), h.WrappedMK...)
	v.mk = mk
	v.entries = entries
	v.indexCap = len(plaintext)
	v.indexIsPad = isPadded
	v.totalSize = int64(len(raw))
	v.maxDataEnd = maxDataEnd
	v.open = true

	return nil
}
