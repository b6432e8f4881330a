package vault

import (
	"sync"

	"github.com/vaultbox/corevault/internal/header"
	"github.com/vaultbox/corevault/internal/index"
	"github.com/vaultbox/corevault/internal/streaming"
	"github.com/vaultbox/corevault/internal/vaultcrypto"
)

// Vault is the in-memory mirror of one open container: everything the
// engine needs to serve reads and mutations without reparsing the file.
// The process holds at most one open Vault at a time; nothing here is
// exported for concurrent external use without going through the package's
// operations, which take mu for the whole duration of any mutation.
type Vault struct {
	mu sync.Mutex

	path string
	open bool

	vaultID header.Header
	mk      *vaultcrypto.Key

	// journal and headerSeq mirror vaultID.Journal/Seq but survive across a
	// migration where a fresh header value is swapped in.
	journal    bool
	headerSeq  uint32
	headerSize int

	salt []byte
	kdf  vaultcrypto.Params

	wrappedMK []byte

	entries      []index.Entry
	indexCap     int
	indexIsPad   bool
	totalSize    int64
	maxDataEnd   int64

	streams *streaming.Manager
}

// IsOpen reports whether the vault currently holds an open container.
func (v *Vault) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open
}

// Path returns the container path of the currently (or most recently) open
// vault.
func (v *Vault) Path() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.path
}

// New returns an unopened Vault handle. Call Create or Open before any
// other operation.
func New() *Vault {
	return &Vault{}
}

// Close zeroizes the master key and every derived secret, and marks the
// vault closed. It is always safe to call, including on an already-closed
// or never-opened vault.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closeLocked()
}

func (v *Vault) closeLocked() error {
	if v.mk != nil {
		v.mk.Destroy()
		v.mk = nil
	}
	vaultcrypto.SecureZero(v.wrappedMK)
	vaultcrypto.SecureZero(v.salt)
	v.entries = nil
	v.open = false
	v.streams = nil
	return nil
}

func (v *Vault) requireOpen(op string) error {
	if !v.open {
		return newErr(op, CodeNotOpen, nil)
	}
	return nil
}

// vaultID16 returns the 16-byte vault identifier used in every AAD tuple.
func (v *Vault) vaultID16() [16]byte {
	return v.vaultID.VaultID
}

// freeSpace is the part of the file that holds neither the header, the
// index section, a live blob nor the 32-byte trailer.
func (v *Vault) freeSpace() int64 {
	used := int64(v.headerSize) + indexSectionLen(v.indexCap) + 32
	for _, e := range v.entries {
		if e.IsChunked() {
			for _, c := range e.Chunks {
				used += int64(c.Length)
			}
		} else {
			used += int64(e.DataLength)
		}
	}
	free := v.totalSize - used
	if free < 0 {
		return 0
	}
	return free
}

func (v *Vault) stagingManager() *streaming.Manager {
	if v.streams == nil {
		v.streams = streaming.NewManager(dirOf(v.path))
	}
	return v.streams
}
