package vaultcrypto

import (
	"github.com/awnumar/memguard"
)

// SecureZero overwrites buf with zeros in a way the compiler cannot elide.
// It must be called on every buffer that held a key, a DEK, or plaintext
// about to be discarded, on both the normal and the error return path.
func SecureZero(buf []byte) {
	if len(buf) == 0 {
		return
	}
	memguard.WipeBytes(buf)
}

// Key is a symmetric key held in page-locked memory for the lifetime of an
// open container (the master key) or a single operation (an unwrapped DEK).
// Its backing memory is best-effort mlock'd by memguard; mlock failure is
// never treated as fatal, only as reduced protection.
type Key struct {
	buf *memguard.LockedBuffer
}

// NewKey takes ownership of raw, copying it into locked memory and wiping
// the original slice. raw must not be used by the caller afterwards.
func NewKey(raw []byte) *Key {
	return &Key{buf: memguard.NewBufferFromBytes(raw)}
}

// Bytes returns the key material. The returned slice aliases locked memory
// and must not be retained past the Key's lifetime.
func (k *Key) Bytes() []byte {
	if k == nil || k.buf == nil {
		return nil
	}
	return k.buf.Bytes()
}

// Destroy wipes and releases the locked buffer. Safe to call more than once
// and on a nil Key.
func (k *Key) Destroy() {
	if k == nil || k.buf == nil {
		return
	}
	k.buf.Destroy()
}
