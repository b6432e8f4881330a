// Package index implements the container's padded encrypted entry table:
// serialization, deserialization, and the capacity-growth policy that
// decides how much plaintext space a rewritten index reserves.
package index

// ChunkRef locates one encrypted chunk of a chunked entry within the data
// region, together with the nonce used to seal it.
type ChunkRef struct {
	Offset uint64
	Length uint32
	Nonce  [24]byte
}

// Entry is one record of the plaintext index: everything needed to locate
// and decrypt a file's ciphertext, but none of the ciphertext itself.
type Entry struct {
	FileID     [16]byte
	Type       uint8
	CreatedAt  uint64
	Name       string
	MIME       string
	Size       uint64
	WrappedDEK []byte

	// Chunks is empty for a single-blob entry; DataOffset/DataLength apply
	// instead. A non-empty Chunks means chunk_count = len(Chunks) and
	// DataOffset/DataLength are unused.
	Chunks     []ChunkRef
	DataOffset uint64
	DataLength uint64
}

// IsChunked reports whether e is stored as multiple chunks rather than one
// contiguous blob.
func (e *Entry) IsChunked() bool {
	return len(e.Chunks) > 0
}

// Deleted entries never a survive serialization: soft-delete removes the
// record from the in-memory table entirely. There is no tombstone bit.

const (
	// MaxEntryCount is the hard ceiling a deserializer enforces on the
	// count_field's low 31 bits.
	MaxEntryCount = 1_000_000
	// MaxNameLen bounds name_len.
	MaxNameLen = 4096
	// MaxMIMELen bounds mime_len.
	MaxMIMELen = 512
	// MaxWrappedDEKLen bounds wrapped_dek_len.
	MaxWrappedDEKLen = 512

	// paddedFlag is the count_field high bit.
	paddedFlag = 0x80000000
	countMask  = 0x7fffffff
)
