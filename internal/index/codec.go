package index

import (
	"fmt"

	"github.com/vaultbox/corevault/internal/wire"
)

// RequiredSize returns the exact plaintext byte length needed to serialize
// entries, with no padding.
func RequiredSize(entries []Entry) int {
	n := 4 // count_field
	for _, e := range entries {
		n += entrySize(&e)
	}
	return n
}

func entrySize(e *Entry) int {
	n := 16 + 1 + 8 // file_id, type, created_at
	n += 2 + len(e.Name)
	n += 2 + len(e.MIME)
	n += 8 // size
	n += 2 + len(e.WrappedDEK)
	n += 4 // chunk_count
	if e.IsChunked() {
		n += len(e.Chunks) * (8 + 4 + 24)
	} else {
		n += 8 + 8 // data_offset, data_length
	}
	return n
}

// Encode serializes entries into a plaintext buffer padded to capacity
// bytes. capacity must be >= RequiredSize(entries); the caller is
// responsible for running the capacity policy first.
func Encode(entries []Entry, capacity int) ([]byte, error) {
	required := RequiredSize(entries)
	if capacity < required {
		return nil, fmt.Errorf("index: capacity %d smaller than required %d", capacity, required)
	}
	if len(entries) > MaxEntryCount {
		return nil, fmt.Errorf("index: entry count %d exceeds max %d", len(entries), MaxEntryCount)
	}

	w := wire.NewWriter(capacity)
	count := uint32(len(entries))
	if capacity > required {
		count |= paddedFlag
	}
	w.U32(count)

	for i := range entries {
		if err := encodeEntry(w, &entries[i]); err != nil {
			return nil, fmt.Errorf("index: entry %d: %w", i, err)
		}
	}
	if pad := capacity - w.Len(); pad > 0 {
		w.Pad(pad)
	}
	return w.Bytes(), nil
}

func encodeEntry(w *wire.Writer, e *Entry) error {
	if len(e.Name) > MaxNameLen {
		return fmt.Errorf("name_len %d exceeds max %d", len(e.Name), MaxNameLen)
	}
	if len(e.MIME) > MaxMIMELen {
		return fmt.Errorf("mime_len %d exceeds max %d", len(e.MIME), MaxMIMELen)
	}
	if len(e.WrappedDEK) > MaxWrappedDEKLen {
		return fmt.Errorf("wrapped_dek_len %d exceeds max %d", len(e.WrappedDEK), MaxWrappedDEKLen)
	}

	w.Raw(e.FileID[:])
	w.U8(e.Type)
	w.U64(e.CreatedAt)
	w.LenPrefixedU16([]byte(e.Name))
	w.LenPrefixedU16([]byte(e.MIME))
	w.U64(e.Size)
	w.LenPrefixedU16(e.WrappedDEK)

	if e.IsChunked() {
		w.U32(uint32(len(e.Chunks)))
		for _, c := range e.Chunks {
			w.U64(c.Offset)
			w.U32(c.Length)
			w.Raw(c.Nonce[:])
		}
	} else {
		w.U32(0)
		w.U64(e.DataOffset)
		w.U64(e.DataLength)
	}
	return nil
}

// Decode parses a plaintext index buffer (already AEAD-decrypted) into its
// entry table and reports whether the buffer carries trailing padding.
func Decode(buf []byte) (entries []Entry, isPadded bool, err error) {
	r := wire.NewReader(buf)
	countField, err := r.U32()
	if err != nil {
		return nil, false, fmt.Errorf("index: %w", err)
	}
	isPadded = countField&paddedFlag != 0
	count := countField & countMask
	if count > MaxEntryCount {
		return nil, false, fmt.Errorf("index: entry count %d exceeds max %d", count, MaxEntryCount)
	}

	entries = make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		e, err := decodeEntry(r)
		if err != nil {
			return nil, false, fmt.Errorf("index: entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, isPadded, nil
}

func decodeEntry(r *wire.Reader) (Entry, error) {
	var e Entry
	fileID, err := r.Bytes(16)
	if err != nil {
		return e, err
	}
	copy(e.FileID[:], fileID)

	typ, err := r.U8()
	if err != nil {
		return e, err
	}
	e.Type = typ

	createdAt, err := r.U64()
	if err != nil {
		return e, err
	}
	e.CreatedAt = createdAt

	name, err := r.LenPrefixedU16(MaxNameLen)
	if err != nil {
		return e, err
	}
	e.Name = string(name)

	mime, err := r.LenPrefixedU16(MaxMIMELen)
	if err != nil {
		return e, err
	}
	e.MIME = string(mime)

	size, err := r.U64()
	if err != nil {
		return e, err
	}
	e.Size = size

	wrappedDEK, err := r.LenPrefixedU16(MaxWrappedDEKLen)
	if err != nil {
		return e, err
	}
	e.WrappedDEK = append([]byte(nil), wrappedDEK...)

	chunkCount, err := r.U32()
	if err != nil {
		return e, err
	}

	if chunkCount == 0 {
		offset, err := r.U64()
		if err != nil {
			return e, err
		}
		length, err := r.U64()
		if err != nil {
			return e, err
		}
		e.DataOffset = offset
		e.DataLength = length
		return e, nil
	}

	e.Chunks = make([]ChunkRef, chunkCount)
	for i := range e.Chunks {
		offset, err := r.U64()
		if err != nil {
			return e, err
		}
		length, err := r.U32()
		if err != nil {
			return e, err
		}
		nonce, err := r.Bytes(24)
		if err != nil {
			return e, err
		}
		e.Chunks[i].Offset = offset
		e.Chunks[i].Length = length
		copy(e.Chunks[i].Nonce[:], nonce)
	}
	return e, nil
}
