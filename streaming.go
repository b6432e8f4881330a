package vault

import (
	"fmt"
	"os"

	"github.com/vaultbox/corevault/internal/index"
	"github.com/vaultbox/corevault/internal/streaming"
	"github.com/vaultbox/corevault/internal/vaultcrypto"
	"github.com/vaultbox/corevault/log"
)

// ImportView is the read-only projection of one pending streaming import.
type ImportView struct {
	ImportID        [16]byte
	FileName        string
	MIMEType        string
	FileSize        uint64
	ChunkSize       uint32
	TotalChunks     uint32
	CompletedChunks uint32
	UpdatedAt       uint64
}

// StreamingInit ensures the staging area for the currently open container
// exists. Calling it is optional; every streaming operation creates the
// directory lazily if needed.
func (v *Vault) StreamingInit() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOpen("streaming_init"); err != nil {
		return err
	}
	v.stagingManager()
	if err := os.MkdirAll(dirOf(v.path)+"/.pending_imports", 0o700); err != nil {
		return newErr("streaming_init", CodeIO, err)
	}
	return nil
}

// StreamingComputeSourceHash computes the resume fingerprint of a source
// file from caller-supplied head/tail windows (the host reads the source
// file; the engine never touches files outside the container).
func (v *Vault) StreamingComputeSourceHash(first, last []byte, size uint64) [32]byte {
	return streaming.SourceHashFromWindows(first, last, size)
}

// StreamingStart begins or resumes a chunked import. sourceURI is accepted
// for API symmetry but is never persisted (source_uri is always stored with
// length 0).
func (v *Vault) StreamingStart(sourceURI string, sourceHash [32]byte, name, mime string, fileType EntryType, size uint64) ([16]byte, uint32, error) {
	const op = "streaming_start"
	var zero [16]byte
	_ = sourceURI

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOpen(op); err != nil {
		return zero, 0, err
	}
	if size > streaming.MaxTotalSize {
		return zero, 0, newErr(op, CodeFileTooLarge, nil)
	}
	if err := validateCreateName(name); err != nil {
		return zero, 0, newErr(op, CodeInvalidParam, err)
	}

	mgr := v.stagingManager()
	if existing, err := mgr.FindBySourceHash(sourceHash); err == nil && existing != nil {
		if _, err := mgr.Resume(existing.ImportID); err != nil {
			return zero, 0, newErr(op, CodeIO, err)
		}
		return existing.ImportID, existing.CompletedChunks, nil
	}

	importID, err := vaultcrypto.NewID16()
	if err != nil {
		return zero, 0, newErr(op, CodeCrypto, err)
	}
	fileID, err := vaultcrypto.NewID16()
	if err != nil {
		return zero, 0, newErr(op, CodeCrypto, err)
	}
	dek, err := vaultcrypto.NewMasterKey()
	if err != nil {
		return zero, 0, newErr(op, CodeCrypto, err)
	}
	defer vaultcrypto.SecureZero(dek)

	wrappedDEK, err := wrapDEK(v.mk.Bytes(), v.vaultID16(), [16]byte(fileID), dek)
	if err != nil {
		return zero, 0, newErr(op, CodeCrypto, err)
	}

	now := nowMillis()
	_, err = mgr.Start([16]byte(importID), [16]byte(fileID), sourceHash, fileType, name, mime, wrappedDEK, size, streaming.DefaultChunkSize, now)
	if err != nil {
		return zero, 0, newErr(op, CodeIO, err)
	}
	return [16]byte(importID), 0, nil
}

// StreamingWriteChunk seals one chunk of plaintext and persists it to the
// import's staging directory. It holds the container mutex only long enough
// to unwrap the import's DEK, releasing it before the (potentially slow)
// chunk file write.
func (v *Vault) StreamingWriteChunk(importID [16]byte, plaintext []byte, chunkIndex uint32) error {
	const op = "streaming_write_chunk"

	v.mu.Lock()
	if err := v.requireOpen(op); err != nil {
		v.mu.Unlock()
		return err
	}
	mgr := v.stagingManager()
	st, err := mgr.State(importID)
	if err != nil {
		v.mu.Unlock()
		return newErr(op, CodeNotFound, err)
	}
	if chunkIndex >= st.TotalChunks {
		v.mu.Unlock()
		return newErr(op, CodeInvalidParam, fmt.Errorf("chunk index %d >= total %d", chunkIndex, st.TotalChunks))
	}
	dek, err := unwrapDEK(v.mk.Bytes(), v.vaultID16(), st.FileID, st.WrappedDEK)
	vaultID := v.vaultID16()
	v.mu.Unlock()
	if err != nil {
		return newErr(op, CodeAuthFail, err)
	}
	defer vaultcrypto.SecureZero(dek)

	plaintextLen := len(plaintext)
	nonce, err := vaultcrypto.RandomNonce()
	if err != nil {
		return newErr(op, CodeCrypto, err)
	}
	aad := vaultcrypto.BuildAAD(vaultID, st.FileID, chunkIndex)
	ct, err := vaultcrypto.Seal(dek, nonce, aad, plaintext)
	vaultcrypto.SecureZero(plaintext)
	if err != nil {
		return newErr(op, CodeCrypto, err)
	}

	sealed := make([]byte, 0, len(nonce)+len(ct))
	sealed = append(sealed, nonce...)
	sealed = append(sealed, ct...)

	if err := mgr.WriteChunk(importID, chunkIndex, sealed, plaintextLen, nowMillis()); err != nil {
		return newErr(op, CodeIO, err)
	}
	return nil
}

// StreamingFinish assembles a completed import into a chunked entry and
// appends it to the container, then clears the staging directory.
func (v *Vault) StreamingFinish(importID [16]byte) ([16]byte, error) {
	const op = "streaming_finish"
	var zero [16]byte

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOpen(op); err != nil {
		return zero, err
	}

	mgr := v.stagingManager()
	st, chunks, err := mgr.Finish(importID)
	if err != nil {
		return zero, newErr(op, CodeIO, err)
	}

	entry := index.Entry{
		FileID:     st.FileID,
		Type:       st.Type,
		CreatedAt:  st.CreatedAt,
		Name:       st.FileName,
		MIME:       st.MIMEType,
		Size:       st.FileSize,
		WrappedDEK: st.WrappedDEK,
		Chunks:     make([]index.ChunkRef, len(chunks)),
	}
	payload := make([]byte, 0, st.BytesWritten+uint64(len(chunks))*16)
	for i, c := range chunks {
		entry.Chunks[i] = index.ChunkRef{Length: uint32(len(c.Ciphertext)), Nonce: c.Nonce}
		payload = append(payload, c.Ciphertext...)
	}

	if err := v.appendEntry(entry, payload); err != nil {
		return zero, newErr(op, CodeIO, err)
	}

	if err := mgr.Complete(importID); err != nil {
		log.Error(err).Messagef("streaming_finish: failed to clear staging directory for import %x", importID)
	}
	return st.FileID, nil
}

// StreamingAbort discards an in-progress import, securely wiping every
// staged chunk file before removing the staging directory.
func (v *Vault) StreamingAbort(importID [16]byte) error {
	const op = "streaming_abort"

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOpen(op); err != nil {
		return err
	}
	if err := v.stagingManager().Abort(importID); err != nil {
		return newErr(op, CodeIO, err)
	}
	return nil
}

// StreamingListPending lists every import currently staged for this
// container, whether started by this process or a previous one.
func (v *Vault) StreamingListPending() ([]ImportView, error) {
	const op = "streaming_list_pending"

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOpen(op); err != nil {
		return nil, err
	}

	states, err := v.stagingManager().ListPending()
	if err != nil {
		return nil, newErr(op, CodeIO, err)
	}
	out := make([]ImportView, 0, len(states))
	for _, s := range states {
		out = append(out, ImportView{
			ImportID:        s.ImportID,
			FileName:        s.FileName,
			MIMEType:        s.MIMEType,
			FileSize:        s.FileSize,
			ChunkSize:       s.ChunkSize,
			TotalChunks:     s.TotalChunks,
			CompletedChunks: s.CompletedChunks,
			UpdatedAt:       s.UpdatedAt,
		})
	}
	return out, nil
}

// StreamingCleanupOld aborts every staged import whose last update is older
// than maxAgeMs and returns how many were removed.
func (v *Vault) StreamingCleanupOld(maxAgeMs uint64) (int, error) {
	const op = "streaming_cleanup_old"

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOpen(op); err != nil {
		return 0, err
	}

	mgr := v.stagingManager()
	states, err := mgr.ListPending()
	if err != nil {
		return 0, newErr(op, CodeIO, err)
	}
	now := nowMillis()
	count := 0
	for _, s := range states {
		if now < s.UpdatedAt || now-s.UpdatedAt <= maxAgeMs {
			continue
		}
		if err := mgr.Abort(s.ImportID); err != nil {
			return count, newErr(op, CodeIO, err)
		}
		count++
	}
	return count, nil
}
