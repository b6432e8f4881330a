package streaming

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleState() *State {
	s := &State{
		Type:            3,
		FileSize:        1 << 24,
		ChunkSize:       DefaultChunkSize,
		TotalChunks:     4,
		CompletedChunks: 2,
		BytesWritten:    1 << 23,
		CreatedAt:       1700000000000,
		UpdatedAt:       1700000001000,
		FileName:        "movie.mp4",
		MIMEType:        "video/mp4",
		WrappedDEK:      []byte{9, 8, 7, 6, 5, 4, 3, 2, 1},
	}
	for i := range s.ImportID {
		s.ImportID[i] = byte(i)
	}
	for i := range s.FileID {
		s.FileID[i] = byte(i + 1)
	}
	for i := range s.SourceHash {
		s.SourceHash[i] = byte(i * 2)
	}
	return s
}

func TestEncodeDecodeStateRoundTrip(t *testing.T) {
	t.Parallel()

	s := sampleState()
	buf, err := EncodeState(s)
	require.NoError(t, err)

	got, err := DecodeState(buf)
	require.NoError(t, err)
	require.Equal(t, s.ImportID, got.ImportID)
	require.Equal(t, s.FileID, got.FileID)
	require.Equal(t, s.SourceHash, got.SourceHash)
	require.Equal(t, s.FileName, got.FileName)
	require.Equal(t, s.MIMEType, got.MIMEType)
	require.Equal(t, s.WrappedDEK, got.WrappedDEK)
	require.Equal(t, s.TotalChunks, got.TotalChunks)
	require.Equal(t, s.CompletedChunks, got.CompletedChunks)
	// source_uri is never persisted with real content.
	require.Empty(t, got.SourceURI)
}

func TestDecodeStateRejectsBadMagic(t *testing.T) {
	t.Parallel()

	_, err := DecodeState([]byte("NOTVALID"))
	require.Error(t, err)
}

func TestEncodeStateRejectsOversizedWrappedDEK(t *testing.T) {
	t.Parallel()

	s := sampleState()
	s.WrappedDEK = make([]byte, maxWrappedDEK+1)
	_, err := EncodeState(s)
	require.Error(t, err)
}
