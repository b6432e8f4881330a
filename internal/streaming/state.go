// Package streaming implements the crash-safe, resumable chunked-import
// staging area: the per-import ".state" sidecar and the encrypted chunk
// files that sit beside it until the import is finished or aborted.
package streaming

import (
	"fmt"

	"github.com/vaultbox/corevault/internal/wire"
)

// StateMagic identifies a .state sidecar file.
const StateMagic = "STRMV1"

// StateVersion is the only version this codec accepts.
const StateVersion = uint32(1)

// State is the full persisted record of one in-progress streaming import.
type State struct {
	ImportID   [16]byte
	FileID     [16]byte
	SourceHash [32]byte
	Type       uint8
	FileSize   uint64
	ChunkSize  uint32

	TotalChunks     uint32
	CompletedChunks uint32
	BytesWritten    uint64

	CreatedAt uint64
	UpdatedAt uint64

	// SourceURI is always persisted empty; it exists in the wire format for
	// forward compatibility but is never written with real content.
	SourceURI string
	FileName  string
	MIMEType  string

	WrappedDEK []byte
}

const (
	maxSourceURILen = 4096
	maxFileNameLen  = 4096
	maxMIMELen      = 512
	maxWrappedDEK   = 512
)

// EncodeState serializes s into its on-disk .state representation.
func EncodeState(s *State) ([]byte, error) {
	w := wire.NewWriter(256 + len(s.FileName) + len(s.MIMEType) + len(s.WrappedDEK))
	w.Raw([]byte(StateMagic))
	w.U32(StateVersion)
	w.Raw(s.ImportID[:])
	w.Raw(s.FileID[:])
	w.Raw(s.SourceHash[:])
	w.U8(s.Type)
	w.U64(s.FileSize)
	w.U32(s.ChunkSize)
	w.U32(s.TotalChunks)
	w.U32(s.CompletedChunks)
	w.U64(s.BytesWritten)
	w.U64(s.CreatedAt)
	w.U64(s.UpdatedAt)
	w.LenPrefixedU16([]byte(s.SourceURI))
	w.LenPrefixedU16([]byte(s.FileName))
	w.LenPrefixedU16([]byte(s.MIMEType))
	if len(s.WrappedDEK) > maxWrappedDEK {
		return nil, fmt.Errorf("streaming: wrapped_dek_len %d exceeds max %d", len(s.WrappedDEK), maxWrappedDEK)
	}
	w.LenPrefixedU16(s.WrappedDEK)
	return w.Bytes(), nil
}

// DecodeState parses a .state sidecar buffer.
func DecodeState(buf []byte) (*State, error) {
	if len(buf) < len(StateMagic) {
		return nil, fmt.Errorf("streaming: buffer too short for magic")
	}
	if string(buf[:len(StateMagic)]) != StateMagic {
		return nil, fmt.Errorf("streaming: bad .state magic")
	}
	r := wire.NewReader(buf[len(StateMagic):])

	version, err := r.U32()
	if err != nil {
		return nil, err
	}
	if version != StateVersion {
		return nil, fmt.Errorf("streaming: unsupported .state version %d", version)
	}

	s := &State{}
	importID, err := r.Bytes(16)
	if err != nil {
		return nil, err
	}
	copy(s.ImportID[:], importID)

	fileID, err := r.Bytes(16)
	if err != nil {
		return nil, err
	}
	copy(s.FileID[:], fileID)

	sourceHash, err := r.Bytes(32)
	if err != nil {
		return nil, err
	}
	copy(s.SourceHash[:], sourceHash)

	if s.Type, err = r.U8(); err != nil {
		return nil, err
	}
	if s.FileSize, err = r.U64(); err != nil {
		return nil, err
	}
	if s.ChunkSize, err = r.U32(); err != nil {
		return nil, err
	}
	if s.TotalChunks, err = r.U32(); err != nil {
		return nil, err
	}
	if s.CompletedChunks, err = r.U32(); err != nil {
		return nil, err
	}
	if s.BytesWritten, err = r.U64(); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = r.U64(); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = r.U64(); err != nil {
		return nil, err
	}

	sourceURI, err := r.LenPrefixedU16(maxSourceURILen)
	if err != nil {
		return nil, err
	}
	s.SourceURI = string(sourceURI)

	fileName, err := r.LenPrefixedU16(maxFileNameLen)
	if err != nil {
		return nil, err
	}
	s.FileName = string(fileName)

	mimeType, err := r.LenPrefixedU16(maxMIMELen)
	if err != nil {
		return nil, err
	}
	s.MIMEType = string(mimeType)

	wrappedDEK, err := r.LenPrefixedU16(maxWrappedDEK)
	if err != nil {
		return nil, err
	}
	s.WrappedDEK = append([]byte(nil), wrappedDEK...)

	return s, nil
}
