package vault

import (
	"fmt"
	"os"

	"github.com/vaultbox/corevault/internal/index"
	"github.com/vaultbox/corevault/internal/vaultcrypto"
)

// EntryView is the read-only, exported projection of one index entry:
// everything list_entries exposes to callers.
type EntryView struct {
	FileID     [16]byte
	Type       uint8
	CreatedAt  uint64
	Name       string
	MIME       string
	Size       uint64
	ChunkCount int
	IsChunked  bool
}

// ListEntries returns a view of every live entry, in index order.
func (v *Vault) ListEntries() ([]EntryView, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOpen("list_entries"); err != nil {
		return nil, err
	}

	out := make([]EntryView, 0, len(v.entries))
	for _, e := range v.entries {
		ev := EntryView{
			FileID:     e.FileID,
			Type:       e.Type,
			CreatedAt:  e.CreatedAt,
			Name:       e.Name,
			MIME:       e.MIME,
			Size:       e.Size,
			ChunkCount: len(e.Chunks),
			IsChunked:  e.IsChunked(),
		}
		out = append(out, ev)
	}
	return out, nil
}

func (v *Vault) findEntry(fileID [16]byte) (*index.Entry, int) {
	for i := range v.entries {
		if v.entries[i].FileID == fileID {
			return &v.entries[i], i
		}
	}
	return nil, -1
}

func (v *Vault) readBlobAt(offset, length int64) ([]byte, error) {
	f, err := os.Open(v.path)
	if err != nil {
		return nil, fmt.Errorf("opening container: %w", err)
	}
	defer f.Close()

	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("reading data region: %w", err)
	}
	return buf, nil
}

// ReadFile decrypts and returns the full plaintext of fileID. It rejects
// entries stored chunked: assembling a multi-gigabyte streamed file into one
// in-memory buffer defeats the point of storing it chunked in the first
// place. Callers must read those back with ReadChunk, one chunk at a time.
func (v *Vault) ReadFile(fileID [16]byte) ([]byte, error) {
	const op = "read_file"

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOpen(op); err != nil {
		return nil, err
	}

	e, _ := v.findEntry(fileID)
	if e == nil {
		return nil, newErr(op, CodeNotFound, nil)
	}
	if e.IsChunked() {
		return nil, newErr(op, CodeInvalidParam, fmt.Errorf("fileID %x is stored chunked; use read_chunk", fileID))
	}

	dek, err := unwrapDEK(v.mk.Bytes(), v.vaultID16(), fileID, e.WrappedDEK)
	if err != nil {
		return nil, newErr(op, CodeAuthFail, err)
	}
	defer vaultcrypto.SecureZero(dek)

	raw, err := v.readBlobAt(int64(e.DataOffset), int64(e.DataLength))
	if err != nil {
		return nil, newErr(op, CodeIO, err)
	}
	if len(raw) < vaultcrypto.NonceSize+vaultcrypto.Overhead {
		return nil, newErr(op, CodeCorrupted, fmt.Errorf("blob shorter than minimum AEAD size"))
	}
	aad := vaultcrypto.BuildAAD(v.vaultID16(), fileID, 0)
	pt, err := vaultcrypto.OpenBlob(dek, aad, raw)
	if err != nil {
		return nil, newErr(op, CodeAuthFail, err)
	}
	return pt, nil
}

// ReadChunk decrypts and returns exactly one chunk of a chunked entry.
func (v *Vault) ReadChunk(fileID [16]byte, chunkIndex uint32) ([]byte, error) {
	const op = "read_chunk"

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOpen(op); err != nil {
		return nil, err
	}

	e, _ := v.findEntry(fileID)
	if e == nil {
		return nil, newErr(op, CodeNotFound, nil)
	}
	if int(chunkIndex) >= len(e.Chunks) {
		return nil, newErr(op, CodeNotFound, fmt.Errorf("chunk index %d out of range", chunkIndex))
	}
	c := e.Chunks[chunkIndex]
	if c.Length < vaultcrypto.Overhead {
		return nil, newErr(op, CodeCorrupted, fmt.Errorf("chunk shorter than AEAD overhead"))
	}

	dek, err := unwrapDEK(v.mk.Bytes(), v.vaultID16(), fileID, e.WrappedDEK)
	if err != nil {
		return nil, newErr(op, CodeAuthFail, err)
	}
	defer vaultcrypto.SecureZero(dek)

	ct, err := v.readBlobAt(int64(c.Offset), int64(c.Length))
	if err != nil {
		return nil, newErr(op, CodeIO, err)
	}
	aad := vaultcrypto.BuildAAD(v.vaultID16(), fileID, chunkIndex)
	pt, err := vaultcrypto.Open(dek, c.Nonce[:], aad, ct)
	if err != nil {
		return nil, newErr(op, CodeAuthFail, err)
	}
	return pt, nil
}
