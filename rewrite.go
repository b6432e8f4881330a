package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vaultbox/corevault/internal/index"
)

// appendEntry is the primitive that every data-adding operation (direct
// import, streaming finish) composes with. entry's offsets are assigned by
// this function; payload is the exact bytes to place at the new data
// extent, already encrypted and in on-disk order (for a chunked entry: the
// concatenation of its per-chunk ciphertexts, in chunk order; for a
// single-blob entry: nonce || ciphertext).
func (v *Vault) appendEntry(entry index.Entry, payload []byte) error {
	oldDataEnd := v.maxDataEnd

	if entry.IsChunked() {
		offset := uint64(oldDataEnd)
		for i := range entry.Chunks {
			entry.Chunks[i].Offset = offset
			offset += uint64(entry.Chunks[i].Length)
		}
	} else {
		entry.DataOffset = uint64(oldDataEnd)
		entry.DataLength = uint64(len(payload))
	}

	newEntries := make([]index.Entry, len(v.entries)+1)
	copy(newEntries, v.entries)
	newEntries[len(v.entries)] = entry

	required := index.RequiredSize(newEntries)

	if index.FitsInPlace(v.indexCap, required) {
		return v.appendFastPath(newEntries, payload, oldDataEnd)
	}
	return v.appendSlowPath(newEntries, payload)
}

// appendFastPath writes the new payload at the current end of the data
// region and overwrites the index section in place, keeping its capacity
// (and therefore its on-disk length) unchanged.
func (v *Vault) appendFastPath(newEntries []index.Entry, payload []byte, oldDataEnd int64) error {
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

	if _, err := f.WriteAt(payload, oldDataEnd); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	var trailer [32]byte
	if _, err := f.WriteAt(trailer[:], oldDataEnd+int64(len(payload))); err != nil {
		return fmt.Errorf("writing trailer: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing data: %w", err)
	}

	if _, err := f.WriteAt(indexBlob, int64(v.headerSize)); err != nil {
		return fmt.Errorf("writing index section: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing index: %w", err)
	}

	v.entries = newEntries
	v.maxDataEnd = oldDataEnd + int64(len(payload))
	newTotal := oldDataEnd + int64(len(payload)) + 32
	if newTotal > v.totalSize {
		v.totalSize = newTotal
	}
	return nil
}

// appendSlowPath grows the index capacity, which shifts where the data
// region starts, so the whole file is rewritten: header unchanged, new
// (larger) index, the old data region copied verbatim, the new payload
// appended, a zero trailer.
func (v *Vault) appendSlowPath(newEntries []index.Entry, payload []byte) error {
	newCapacity := index.ChooseCapacity(v.indexCap, index.RequiredSize(newEntries))
	delta := indexSectionLen(newCapacity) - indexSectionLen(v.indexCap)
	// Every existing entry's offset shifts by delta; so does the entry just
	// appended, since its placeholder offset was computed under the old
	// geometry (old_data_end) in appendEntry before the capacity grew.
	shiftEntryOffsets(newEntries, delta)

	headerBytes, err := v.currentHeaderBytes()
	if err != nil {
		return err
	}

	dataWriter := func(oldFile *os.File, tmp *os.File) (int64, error) {
		oldDataStart := int64(v.headerSize) + indexSectionLen(v.indexCap)
		oldDataLen := v.maxDataEnd - oldDataStart
		n, err := copySpan(tmp, oldFile, oldDataStart, oldDataLen)
		if err != nil {
			return 0, err
		}
		if _, err := tmp.Write(payload); err != nil {
			return 0, fmt.Errorf("writing payload: %w", err)
		}
		return n + int64(len(payload)), nil
	}

	return v.fullRewrite(headerBytes, newCapacity, newEntries, dataWriter)
}

// indexSectionLen returns the on-disk byte length of a framed index section
// (nonce || ct_len || ciphertext) for a given plaintext capacity.
func indexSectionLen(capacity int) int64 { return int64(24 + 8 + capacity + 16) }

func shiftEntryOffsets(entries []index.Entry, delta int64) {
	for i := range entries {
		if entries[i].IsChunked() {
			for c := range entries[i].Chunks {
				entries[i].Chunks[c].Offset = uint64(int64(entries[i].Chunks[c].Offset) + delta)
			}
		} else {
			entries[i].DataOffset = uint64(int64(entries[i].DataOffset) + delta)
		}
	}
}

func (v *Vault) currentHeaderBytes() ([]byte, error) {
	f, err := os.Open(v.path)
	if err != nil {
		return nil, fmt.Errorf("opening container: %w", err)
	}
	defer f.Close()
	buf := make([]byte, v.headerSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	return buf, nil
}

func copySpan(dst io.Writer, src *os.File, offset, length int64) (int64, error) {
	if length <= 0 {
		return 0, nil
	}
	return io.Copy(dst, io.NewSectionReader(src, offset, length))
}

// fullRewrite is the slow-path primitive shared by append growth,
// index-only rewrites that outgrow their capacity, legacy->journal
// migration, and compaction: everything is written to a sibling temp file
// and atomically renamed over the container.
func (v *Vault) fullRewrite(headerBytes []byte, capacity int, entries []index.Entry, dataWriter func(oldFile, tmp *os.File) (int64, error)) error {
	indexPT, err := index.Encode(entries, capacity)
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	indexBlob, err := sealIndexSection(v.mk.Bytes(), indexPT)
	if err != nil {
		return fmt.Errorf("sealing index: %w", err)
	}

	oldFile, err := os.Open(v.path)
	if err != nil {
		return fmt.Errorf("opening container: %w", err)
	}
	defer oldFile.Close()

	dir := filepath.Dir(v.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(v.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(headerBytes); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := writeIndexSection(tmp, indexBlob); err != nil {
		return err
	}

	dataLen, err := dataWriter(oldFile, tmp)
	if err != nil {
		return fmt.Errorf("writing data region: %w", err)
	}

	var trailer [32]byte
	if _, err := tmp.Write(trailer[:]); err != nil {
		return fmt.Errorf("writing trailer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, v.path); err != nil {
		return fmt.Errorf("renaming temp file into place: %w", err)
	}
	if err := syncParentDir(dir); err != nil {
		return fmt.Errorf("syncing parent directory: %w", err)
	}

	v.entries = entries
	v.indexCap = capacity
	v.indexIsPad = capacity > index.RequiredSize(entries)
	newIndexEnd := int64(len(headerBytes)) + int64(len(indexBlob))
	v.maxDataEnd = newIndexEnd + dataLen
	v.totalSize = v.maxDataEnd + 32
	v.headerSize = len(headerBytes)
	return nil
}
