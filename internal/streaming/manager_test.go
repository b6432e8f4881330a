package streaming

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManagerStartWriteFinishRoundTrip(t *testing.T) {
	t.Parallel()

	mgr := NewManager(t.TempDir())

	var importID, fileID [16]byte
	importID[0] = 1
	fileID[0] = 2
	sourceHash := [32]byte{1, 2, 3}
	wrappedDEK := []byte{1, 2, 3, 4}

	st, err := mgr.Start(importID, fileID, sourceHash, 1, "a.bin", "application/octet-stream", wrappedDEK, 20, 10, 1000)
	require.NoError(t, err)
	require.Equal(t, uint32(2), st.TotalChunks)

	require.NoError(t, mgr.WriteChunk(importID, 0, []byte("sealed-chunk-0-bytes...."), 10, 1001))
	require.NoError(t, mgr.WriteChunk(importID, 1, []byte("sealed-chunk-1-bytes...."), 10, 1002))

	got, err := mgr.State(importID)
	require.NoError(t, err)
	require.Equal(t, uint32(2), got.CompletedChunks)

	finished, chunks, err := mgr.Finish(importID)
	require.NoError(t, err)
	require.Equal(t, fileID, finished.FileID)
	require.Len(t, chunks, 2)

	require.NoError(t, mgr.Complete(importID))

	pending, err := mgr.ListPending()
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestManagerFinishRejectsIncompleteImport(t *testing.T) {
	t.Parallel()

	mgr := NewManager(t.TempDir())
	var importID, fileID [16]byte
	importID[0], fileID[0] = 9, 9

	_, err := mgr.Start(importID, fileID, [32]byte{}, 1, "b.bin", "", nil, 20, 10, 1000)
	require.NoError(t, err)

	_, _, err = mgr.Finish(importID)
	require.Error(t, err)
}

func TestManagerEnforcesConcurrencyCap(t *testing.T) {
	t.Parallel()

	mgr := NewManager(t.TempDir())
	for i := 0; i < MaxActiveImports; i++ {
		var importID, fileID [16]byte
		importID[0] = byte(i + 1)
		fileID[0] = byte(i + 1)
		_, err := mgr.Start(importID, fileID, [32]byte{byte(i)}, 1, "f", "", nil, 1, 1, 1000)
		require.NoError(t, err)
	}

	var overflowID, fileID [16]byte
	overflowID[0] = 99
	_, err := mgr.Start(overflowID, fileID, [32]byte{99}, 1, "f", "", nil, 1, 1, 1000)
	require.Error(t, err)
}

func TestManagerAbortWipesStagingFiles(t *testing.T) {
	t.Parallel()

	mgr := NewManager(t.TempDir())
	var importID, fileID [16]byte
	importID[0], fileID[0] = 5, 5

	_, err := mgr.Start(importID, fileID, [32]byte{}, 1, "c.bin", "", nil, 10, 10, 1000)
	require.NoError(t, err)
	require.NoError(t, mgr.WriteChunk(importID, 0, []byte("sealed-bytes"), 10, 1001))

	require.NoError(t, mgr.Abort(importID))

	_, err = mgr.State(importID)
	require.Error(t, err)
}

func TestManagerFindBySourceHashResumes(t *testing.T) {
	t.Parallel()

	mgr := NewManager(t.TempDir())
	var importID, fileID [16]byte
	importID[0], fileID[0] = 7, 7
	hash := [32]byte{42}

	_, err := mgr.Start(importID, fileID, hash, 1, "d.bin", "", nil, 10, 10, 1000)
	require.NoError(t, err)

	found, err := mgr.FindBySourceHash(hash)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, importID, found.ImportID)
}
