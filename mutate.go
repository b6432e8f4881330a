package vault

import (
	"fmt"
	"os"
	"strings"

	"github.com/vaultbox/corevault/internal/index"
	"github.com/vaultbox/corevault/internal/vaultcrypto"
)

// systemNameAllowList is the closed set of "__"-prefixed names an entry may
// ever be renamed to. Moving a non-system entry onto one of them also needs
// allowSystem.
var systemNameAllowList = map[string]bool{
	"__folder_map__":      true,
	"__folder_map__.tmp":  true,
	"__vault_title__":     true,
	"__vault_title__.tmp": true,
}

func validateRenameTarget(currentName, newName string, allowSystem bool) error {
	if !strings.HasPrefix(newName, "__") {
		return nil
	}
	if !systemNameAllowList[newName] {
		return fmt.Errorf("name %q is not on the system allow-list", newName)
	}
	if strings.HasPrefix(currentName, "__") {
		return nil // rename within the system namespace
	}
	if !allowSystem {
		return fmt.Errorf("name %q is reserved", newName)
	}
	return nil
}

// validateCreateName enforces I5 on brand-new entries: import_bytes and
// streaming_start have no allow_system parameter, so a "__"-prefixed name
// can never be created directly. A caller that needs a reserved name
// imports under an ordinary name first, then calls Rename with
// allowSystem=true.
func validateCreateName(name string) error {
	return validateRenameTarget("", name, false)
}

// Rename mutates fileID's name field. allowSystem must be set by the caller
// to move a non-system entry onto one of the reserved system names.
func (v *Vault) Rename(fileID [16]byte, newName string, allowSystem bool) error {
	const op = "rename"

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOpen(op); err != nil {
		return err
	}
	if len(newName) > index.MaxNameLen {
		return newErr(op, CodeInvalidParam, fmt.Errorf("name too long"))
	}

	e, i := v.findEntry(fileID)
	if e == nil {
		return newErr(op, CodeNotFound, nil)
	}
	if err := validateRenameTarget(e.Name, newName, allowSystem); err != nil {
		return newErr(op, CodeInvalidParam, err)
	}
	if e.Name == newName {
		return nil // idempotent: already the target name
	}

	newEntries := make([]index.Entry, len(v.entries))
	copy(newEntries, v.entries)
	newEntries[i].Name = newName

	if err := v.commitIndexOnly(newEntries); err != nil {
		return newErr(op, CodeIO, err)
	}
	return nil
}

// Delete soft-deletes fileID: its index record is removed, but its data
// blob is left in place in the data region until the next Compact.
func (v *Vault) Delete(fileID [16]byte) error {
	const op = "delete"

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOpen(op); err != nil {
		return err
	}

	_, i := v.findEntry(fileID)
	if i < 0 {
		return newErr(op, CodeNotFound, nil)
	}

	newEntries := make([]index.Entry, 0, len(v.entries)-1)
	newEntries = append(newEntries, v.entries[:i]...)
	newEntries = append(newEntries, v.entries[i+1:]...)

	if err := v.commitIndexOnly(newEntries); err != nil {
		return newErr(op, CodeIO, err)
	}
	return nil
}

// Copy re-encrypts fileID's plaintext under a freshly drawn DEK and appends
// it as a new entry with a new file_id, leaving the original untouched.
func (v *Vault) Copy(fileID [16]byte) ([16]byte, error) {
	const op = "copy"
	var zero [16]byte

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOpen(op); err != nil {
		return zero, err
	}

	e, _ := v.findEntry(fileID)
	if e == nil {
		return zero, newErr(op, CodeNotFound, nil)
	}
	src := *e

	plaintext, err := v.readFileLocked(src)
	if err != nil {
		return zero, err
	}
	defer vaultcrypto.SecureZero(plaintext)

	newFileID, err := vaultcrypto.NewID16()
	if err != nil {
		return zero, newErr(op, CodeCrypto, err)
	}
	newEntry, payload, err := v.buildSingleBlobEntry([16]byte(newFileID), src.Type, src.Name, src.MIME, plaintext, src.CreatedAt)
	if err != nil {
		return zero, newErr(op, CodeCrypto, err)
	}

	if err := v.appendEntry(newEntry, payload); err != nil {
		return zero, newErr(op, CodeIO, err)
	}
	return [16]byte(newFileID), nil
}

// readFileLocked decrypts e's whole plaintext, single-blob or chunked, for
// Copy while v.mu is already held.
func (v *Vault) readFileLocked(e index.Entry) ([]byte, error) {
	dek, err := unwrapDEK(v.mk.Bytes(), v.vaultID16(), e.FileID, e.WrappedDEK)
	if err != nil {
		return nil, newErr("copy", CodeAuthFail, err)
	}
	defer vaultcrypto.SecureZero(dek)

	if !e.IsChunked() {
		raw, err := v.readBlobAt(int64(e.DataOffset), int64(e.DataLength))
		if err != nil {
			return nil, newErr("copy", CodeIO, err)
		}
		aad := vaultcrypto.BuildAAD(v.vaultID16(), e.FileID, 0)
		pt, err := vaultcrypto.OpenBlob(dek, aad, raw)
		if err != nil {
			return nil, newErr("copy", CodeAuthFail, err)
		}
		return pt, nil
	}

	out := make([]byte, 0, e.Size)
	for i, c := range e.Chunks {
		ct, err := v.readBlobAt(int64(c.Offset), int64(c.Length))
		if err != nil {
			return nil, newErr("copy", CodeIO, err)
		}
		aad := vaultcrypto.BuildAAD(v.vaultID16(), e.FileID, uint32(i))
		pt, err := vaultcrypto.Open(dek, c.Nonce[:], aad, ct)
		if err != nil {
			return nil, newErr("copy", CodeAuthFail, err)
		}
		out = append(out, pt...)
	}
	return out, nil
}

// commitIndexOnly writes newEntries without changing the data region: the
// fast path overwrites the index section in place, the slow path grows the
// index capacity and rewrites the whole file, copying the data region
// verbatim.
func (v *Vault) commitIndexOnly(newEntries []index.Entry) error {
	required := index.RequiredSize(newEntries)
	if index.FitsInPlace(v.indexCap, required) {
		return v.indexOnlyFastPath(newEntries)
	}
	return v.indexOnlySlowPath(newEntries)
}

func (v *Vault) indexOnlyFastPath(newEntries []index.Entry) error {
	indexPT, err := index.Encode(newEntries, v.indexCap)
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	indexBlob, err := sealIndexSection(v.mk.Bytes(), indexPT)
	if err != nil {
		return fmt.Errorf("sealing index: %w", err)
	}

	f, err := os.OpenFile(v.path, os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("opening container for write: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteAt(indexBlob, int64(v.headerSize)); err != nil {
		return fmt.Errorf("writing index section: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing index: %w", err)
	}

	v.entries = newEntries
	return nil
}

func (v *Vault) indexOnlySlowPath(newEntries []index.Entry) error {
	newCapacity := index.ChooseCapacity(v.indexCap, index.RequiredSize(newEntries))
	delta := indexSectionLen(newCapacity) - indexSectionLen(v.indexCap)
	shiftEntryOffsets(newEntries, delta)

	headerBytes, err := v.currentHeaderBytes()
	if err != nil {
		return err
	}

	dataWriter := func(oldFile *os.File, tmp *os.File) (int64, error) {
		oldDataStart := int64(v.headerSize) + indexSectionLen(v.indexCap)
		oldDataLen := v.maxDataEnd - oldDataStart
		return copySpan(tmp, oldFile, oldDataStart, oldDataLen)
	}

	return v.fullRewrite(headerBytes, newCapacity, newEntries, dataWriter)
}
