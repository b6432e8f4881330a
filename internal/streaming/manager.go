package streaming

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/vaultbox/corevault/generator/randomness"
	"github.com/vaultbox/corevault/internal/corefs"
	"github.com/vaultbox/corevault/log"
)

// MaxActiveImports is the hard cap on simultaneously open imports per
// process.
const MaxActiveImports = 4

// DefaultChunkSize is used by callers that do not pick their own.
const DefaultChunkSize = 4 << 20 // 4 MiB

// MaxTotalSize is the largest source file a streaming import accepts.
const MaxTotalSize = 50 << 30 // 50 GiB

const stagingDirName = ".pending_imports"
const stateFileName = ".state"

// Manager owns the on-disk staging area for chunked imports that live
// beside one container file.
type Manager struct {
	root string

	mu     sync.Mutex
	active map[[16]byte]struct{}
}

// NewManager returns a Manager rooted at <vaultDir>/.pending_imports.
// vaultDir is resolved to a clean, symlink-free form so staging paths never
// drift across a symlinked ancestor directory.
func NewManager(vaultDir string) *Manager {
	confirmed, err := corefs.ConfirmDir(vaultDir)
	if err != nil {
		confirmed = corefs.ConfirmedDir(filepath.Clean(vaultDir))
	}
	root, err := confirmed.Join(stagingDirName)
	if err != nil {
		// stagingDirName is a fixed literal and can never escape confirmed.
		root = filepath.Join(confirmed.String(), stagingDirName)
	}
	return &Manager{
		root:   root,
		active: make(map[[16]byte]struct{}),
	}
}

func (m *Manager) importDir(importID [16]byte) string {
	return filepath.Join(m.root, hex.EncodeToString(importID[:]))
}

func chunkFileName(index uint32) string {
	return fmt.Sprintf("chunk_%08x.enc", index)
}

// FindBySourceHash scans the staging area for an in-progress import whose
// source_hash matches hash, returning its state if found.
func (m *Manager) FindBySourceHash(hash [32]byte) (*State, error) {
	pending, err := m.ListPending()
	if err != nil {
		return nil, err
	}
	for _, s := range pending {
		if s.SourceHash == hash {
			return s, nil
		}
	}
	return nil, nil
}

// Start begins a new import, persisting its .state sidecar. The caller has
// already generated fileID and wrapped a fresh DEK under the container's MK
// (AAD = vault_id, file_id, chunk_index=0, format_version); Start only owns
// the on-disk staging bookkeeping.
func (m *Manager) Start(importID, fileID [16]byte, sourceHash [32]byte, fileType uint8, fileName, mimeType string, wrappedDEK []byte, fileSize uint64, chunkSize uint32, now uint64) (*State, error) {
	if fileSize > MaxTotalSize {
		return nil, fmt.Errorf("streaming: file size %d exceeds max %d", fileSize, MaxTotalSize)
	}
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}

	m.mu.Lock()
	if len(m.active) >= MaxActiveImports {
		m.mu.Unlock()
		return nil, fmt.Errorf("streaming: %d active imports already in progress", MaxActiveImports)
	}
	m.active[importID] = struct{}{}
	m.mu.Unlock()

	totalChunks := uint32((fileSize + uint64(chunkSize) - 1) / uint64(chunkSize))
	if fileSize == 0 {
		totalChunks = 0
	}

	s := &State{
		ImportID:    importID,
		FileID:      fileID,
		SourceHash:  sourceHash,
		Type:        fileType,
		FileSize:    fileSize,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		CreatedAt:   now,
		UpdatedAt:   now,
		FileName:    fileName,
		MIMEType:    mimeType,
		WrappedDEK:  wrappedDEK,
	}

	dir := m.importDir(importID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		m.forget(importID)
		return nil, fmt.Errorf("streaming: creating staging directory: %w", err)
	}
	if err := m.writeState(s, true); err != nil {
		m.forget(importID)
		return nil, err
	}
	return s, nil
}

// Resume marks an existing on-disk import as active in this process,
// enforcing the concurrency cap, and returns its current state.
func (m *Manager) Resume(importID [16]byte) (*State, error) {
	m.mu.Lock()
	if len(m.active) >= MaxActiveImports {
		m.mu.Unlock()
		return nil, fmt.Errorf("streaming: %d active imports already in progress", MaxActiveImports)
	}
	m.active[importID] = struct{}{}
	m.mu.Unlock()

	s, err := m.readState(importID)
	if err != nil {
		m.forget(importID)
		return nil, err
	}
	return s, nil
}

func (m *Manager) forget(importID [16]byte) {
	m.mu.Lock()
	delete(m.active, importID)
	m.mu.Unlock()
}

func (m *Manager) statePath(importID [16]byte) string {
	return filepath.Join(m.importDir(importID), stateFileName)
}

func (m *Manager) chunkPath(importID [16]byte, index uint32) string {
	return filepath.Join(m.importDir(importID), chunkFileName(index))
}

// State returns the on-disk .state of importID.
func (m *Manager) State(importID [16]byte) (*State, error) {
	return m.readState(importID)
}

func (m *Manager) readState(importID [16]byte) (*State, error) {
	buf, err := os.ReadFile(m.statePath(importID))
	if err != nil {
		return nil, fmt.Errorf("streaming: reading .state: %w", err)
	}
	s, err := DecodeState(buf)
	if err != nil {
		return nil, fmt.Errorf("streaming: decoding .state: %w", err)
	}
	return s, nil
}

// writeState persists s to its .state sidecar. sync forces the write to
// disk before returning; callers on the per-chunk hot path only set it
// every chunkSyncInterval chunks (or on the last chunk) to keep the syscall
// budget at one fsync per chunk file plus one final .state write, not one
// fsync per chunk.
func (m *Manager) writeState(s *State, sync bool) error {
	buf, err := EncodeState(s)
	if err != nil {
		return fmt.Errorf("streaming: encoding .state: %w", err)
	}
	path := m.statePath(s.ImportID)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("streaming: opening .state: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("streaming: writing .state: %w", err)
	}
	if !sync {
		return nil
	}
	return f.Sync()
}

// chunkSyncInterval is how often WriteChunk forces the .state sidecar to
// disk: every 10 chunks, plus unconditionally on the last one.
const chunkSyncInterval = 10

// WriteChunk persists the already-sealed ciphertext (nonce || AEAD
// ciphertext) for chunk index, produced by the caller via the container's
// unwrapped DEK, and advances the completed_chunks high-water mark.
func (m *Manager) WriteChunk(importID [16]byte, index uint32, sealed []byte, plaintextLen int, now uint64) error {
	s, err := m.readState(importID)
	if err != nil {
		return err
	}
	if index >= s.TotalChunks {
		return fmt.Errorf("streaming: chunk index %d out of range (total %d)", index, s.TotalChunks)
	}

	path := m.chunkPath(importID, index)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("streaming: creating chunk file: %w", err)
	}
	if _, err := f.Write(sealed); err != nil {
		f.Close()
		return fmt.Errorf("streaming: writing chunk file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("streaming: syncing chunk file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("streaming: closing chunk file: %w", err)
	}

	s.BytesWritten += uint64(plaintextLen)
	if index+1 > s.CompletedChunks {
		if m.chunksPresentThrough(importID, index+1, s.TotalChunks) {
			s.CompletedChunks = index + 1
		}
	}
	s.UpdatedAt = now
	last := s.CompletedChunks == s.TotalChunks
	sync := last || s.CompletedChunks%chunkSyncInterval == 0
	return m.writeState(s, sync)
}

// chunksPresentThrough reports whether every chunk file 0..through-1 exists
// (through is capped at total).
func (m *Manager) chunksPresentThrough(importID [16]byte, through, total uint32) bool {
	if through > total {
		through = total
	}
	for i := uint32(0); i < through; i++ {
		if _, err := os.Stat(m.chunkPath(importID, i)); err != nil {
			return false
		}
	}
	return true
}

// FinishedChunk is one fully-read chunk payload ready for the container
// append primitive.
type FinishedChunk struct {
	Nonce      [24]byte
	Ciphertext []byte
}

// Finish requires completed_chunks == total_chunks. It reads back every
// chunk file and returns the assembled payload for the caller to hand to
// the container's append primitive; it does not touch the container file
// and does not remove the staging directory — call Complete after the
// append succeeds.
func (m *Manager) Finish(importID [16]byte) (*State, []FinishedChunk, error) {
	s, err := m.readState(importID)
	if err != nil {
		return nil, nil, err
	}
	if s.CompletedChunks != s.TotalChunks {
		return nil, nil, fmt.Errorf("streaming: import %x not complete (%d/%d chunks)", importID, s.CompletedChunks, s.TotalChunks)
	}

	chunks := make([]FinishedChunk, s.TotalChunks)
	for i := uint32(0); i < s.TotalChunks; i++ {
		buf, err := os.ReadFile(m.chunkPath(importID, i))
		if err != nil {
			return nil, nil, fmt.Errorf("streaming: reading chunk %d: %w", i, err)
		}
		if len(buf) < 24 {
			return nil, nil, fmt.Errorf("streaming: chunk %d truncated", i)
		}
		var fc FinishedChunk
		copy(fc.Nonce[:], buf[:24])
		fc.Ciphertext = buf[24:]
		chunks[i] = fc
	}
	return s, chunks, nil
}

// Complete removes a successfully finished import's staging directory. It
// performs the same secure wipe as Abort before unlinking.
func (m *Manager) Complete(importID [16]byte) error {
	return m.wipeAndRemove(importID)
}

// Abort discards an in-progress import: every staging file is overwritten
// with random bytes before being unlinked, then the directory is removed.
func (m *Manager) Abort(importID [16]byte) error {
	return m.wipeAndRemove(importID)
}

func (m *Manager) wipeAndRemove(importID [16]byte) error {
	defer m.forget(importID)

	dir := m.importDir(importID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("streaming: listing staging directory: %w", err)
	}

	for _, ent := range entries {
		path := filepath.Join(dir, ent.Name())
		if err := secureWipeFile(path); err != nil {
			log.Error(err).Messagef("streaming: failed to securely wipe %q", path)
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("streaming: removing staging directory: %w", err)
	}
	return nil
}

func secureWipeFile(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if fi.IsDir() {
		return nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	const passSize = 1 << 16
	remaining := fi.Size()
	for remaining > 0 {
		n := int64(passSize)
		if remaining < n {
			n = remaining
		}
		garbage, err := randomness.Bytes(int(n))
		if err != nil {
			return fmt.Errorf("generating wipe bytes: %w", err)
		}
		if _, err := f.Write(garbage); err != nil {
			return fmt.Errorf("overwriting: %w", err)
		}
		remaining -= n
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing wipe: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("unlinking: %w", err)
	}
	return nil
}

// ListPending returns the state of every staging directory currently on
// disk, whether or not it is marked active in this process.
func (m *Manager) ListPending() ([]*State, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("streaming: listing staging root: %w", err)
	}

	var out []*State
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		buf, err := os.ReadFile(filepath.Join(m.root, ent.Name(), stateFileName))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("streaming: reading .state in %q: %w", ent.Name(), err)
		}
		s, err := DecodeState(buf)
		if err != nil {
			continue // unreadable sidecar: treat as not a valid pending import
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// CleanupOld aborts every staging directory whose .state.updated_at is
// older than now-maxAgeMs.
func (m *Manager) CleanupOld(now uint64, maxAgeMs uint64) error {
	pending, err := m.ListPending()
	if err != nil {
		return err
	}
	var firstErr error
	for _, s := range pending {
		if now < s.UpdatedAt || now-s.UpdatedAt <= maxAgeMs {
			continue
		}
		if err := m.Abort(s.ImportID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
