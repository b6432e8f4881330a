package vault

import (
	"fmt"
	"os"

	"github.com/vaultbox/corevault/internal/header"
	"github.com/vaultbox/corevault/internal/index"
	"github.com/vaultbox/corevault/internal/vaultcrypto"
)

// ChangePassword re-wraps the master key under a new passphrase. A legacy
// container is migrated to the journaled form as part of its first
// passphrase change.
func (v *Vault) ChangePassword(oldPassphrase, newPassphrase []byte) error {
	const op = "change_password"

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOpen(op); err != nil {
		return err
	}
	if err := validatePassphrase(newPassphrase); err != nil {
		return err
	}

	kekOld := vaultcrypto.DeriveKEK(oldPassphrase, v.salt, v.kdf)
	defer vaultcrypto.SecureZero(kekOld)

	mkCheck, err := vaultcrypto.OpenBlob(kekOld, v.vaultID16()[:], v.wrappedMK)
	if err != nil {
		return newErr(op, CodeAuthFail, err)
	}
	defer vaultcrypto.SecureZero(mkCheck)
	if !vaultcrypto.ConstantTimeEqual(mkCheck, v.mk.Bytes()) {
		return newErr(op, CodeAuthFail, fmt.Errorf("unwrapped mk mismatch"))
	}

	newSaltRaw, err := vaultcrypto.NewSalt()
	if err != nil {
		return newErr(op, CodeCrypto, err)
	}
	kekNew := vaultcrypto.DeriveKEK(newPassphrase, newSaltRaw, v.kdf)
	defer vaultcrypto.SecureZero(kekNew)

	newWrappedMK, err := vaultcrypto.SealBlob(kekNew, v.vaultID16()[:], v.mk.Bytes())
	if err != nil {
		return newErr(op, CodeCrypto, err)
	}

	var newSalt [16]byte
	copy(newSalt[:], newSaltRaw)
	h := header.Header{
		Journal:   true,
		VaultID:   v.vaultID.VaultID,
		Salt:      newSalt,
		KDF:       v.kdf,
		WrappedMK: newWrappedMK,
	}

	if v.journal {
		if err := v.rewriteJournalSlots(&h); err != nil {
			return newErr(op, CodeIO, err)
		}
	} else {
		if err := v.migrateLegacyToJournal(&h); err != nil {
			return newErr(op, CodeIO, err)
		}
	}

	v.salt = newSaltRaw
	v.wrappedMK = newWrappedMK
	v.vaultID = h
	v.journal = true
	return nil
}

// rewriteJournalSlots performs the in-place passphrase-change write
// protocol: bump the sequence number and write only the target slot (or
// both slots, if the sequence space wrapped), leaving the other slot as a
// crash-recovery fallback.
func (v *Vault) rewriteJournalSlots(h *header.Header) error {
	newSeq, wrapBoth := header.NextSeq(v.headerSeq)

	f, err := os.OpenFile(v.path, os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("opening container for write: %w", err)
	}
	defer f.Close()

	if wrapBoth {
		slots, err := header.EncodeJournalBothSlots(h, 1, 2)
		if err != nil {
			return fmt.Errorf("encoding slots: %w", err)
		}
		if _, err := f.WriteAt(slots[0], int64(header.SuperblockSize)); err != nil {
			return fmt.Errorf("writing slot 0: %w", err)
		}
		if _, err := f.WriteAt(slots[1], int64(header.SuperblockSize+header.SlotSize)); err != nil {
			return fmt.Errorf("writing slot 1: %w", err)
		}
	} else {
		slotBytes, offset, err := header.EncodeJournalUpdate(h, newSeq)
		if err != nil {
			return fmt.Errorf("encoding slot: %w", err)
		}
		if _, err := f.WriteAt(slotBytes, int64(offset)); err != nil {
			return fmt.Errorf("writing slot: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing header: %w", err)
	}

	v.headerSeq = newSeq
	return nil
}

// migrateLegacyToJournal rewrites the whole container in the journaled
// form: a journaled header (a different size than the legacy one, so every
// data offset shifts), the index re-sealed with those shifted offsets, the
// data region copied unchanged, a zeroed trailer, through a temp file and
// atomic rename.
func (v *Vault) migrateLegacyToJournal(h *header.Header) error {
	headerBytes, err := header.EncodeJournalCreate(h)
	if err != nil {
		return fmt.Errorf("encoding journal header: %w", err)
	}

	delta := int64(len(headerBytes) - v.headerSize)
	newEntries := make([]index.Entry, len(v.entries))
	copy(newEntries, v.entries)
	shiftEntryOffsets(newEntries, delta)

	dataWriter := func(oldFile, tmp *os.File) (int64, error) {
		oldDataStart := int64(v.headerSize) + indexSectionLen(v.indexCap)
		oldDataLen := v.maxDataEnd - oldDataStart
		return copySpan(tmp, oldFile, oldDataStart, oldDataLen)
	}

	if err := v.fullRewrite(headerBytes, v.indexCap, newEntries, dataWriter); err != nil {
		return err
	}
	v.headerSeq = 1
	return nil
}
