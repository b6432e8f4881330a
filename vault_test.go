package vault

import (
	"bytes"
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func init() {
	SetTestMode()
}

func newTestVault(t *testing.T) (*Vault, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "container.vault")
	v := New()
	require.NoError(t, v.Create(path, []byte("correct horse battery staple")))
	return v, path
}

func TestCreateOpenRoundTrip(t *testing.T) {
	t.Parallel()

	v, path := newTestVault(t)
	require.True(t, v.IsOpen())
	require.NoError(t, v.Close())
	require.False(t, v.IsOpen())

	v2 := New()
	require.NoError(t, v2.Open(path, []byte("correct horse battery staple")))
	require.True(t, v2.IsOpen())
	entries, err := v2.ListEntries()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestOpenWithWrongPassphraseFails(t *testing.T) {
	t.Parallel()

	_, path := newTestVault(t)
	v2 := New()
	err := v2.Open(path, []byte("totally the wrong passphrase"))
	require.Error(t, err)
	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.Equal(t, CodeAuthFail, verr.Code)
}

func TestCreateRejectsExistingPath(t *testing.T) {
	t.Parallel()

	_, path := newTestVault(t)
	v2 := New()
	err := v2.Create(path, []byte("another long passphrase"))
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreateRejectsShortPassphrase(t *testing.T) {
	t.Parallel()

	v := New()
	err := v.Create(filepath.Join(t.TempDir(), "x.vault"), []byte("short"))
	require.ErrorIs(t, err, ErrPassphraseTooShort)
}

func TestImportAndReadFile(t *testing.T) {
	t.Parallel()

	v, _ := newTestVault(t)
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	fileID, err := v.ImportBytes(plaintext, 1, "fox.txt", "text/plain")
	require.NoError(t, err)

	got, err := v.ReadFile(fileID)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)

	entries, err := v.ListEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "fox.txt", entries[0].Name)
}

func TestReadFileSurvivesCloseAndReopen(t *testing.T) {
	t.Parallel()

	v, path := newTestVault(t)
	plaintext := []byte("persisted across reopen")
	fileID, err := v.ImportBytes(plaintext, 2, "note.txt", "text/plain")
	require.NoError(t, err)
	require.NoError(t, v.Close())

	v2 := New()
	require.NoError(t, v2.Open(path, []byte("correct horse battery staple")))
	got, err := v2.ReadFile(fileID)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestRenameDeleteCopy(t *testing.T) {
	t.Parallel()

	v, _ := newTestVault(t)
	fileID, err := v.ImportBytes([]byte("payload"), 1, "a.txt", "text/plain")
	require.NoError(t, err)

	require.NoError(t, v.Rename(fileID, "b.txt", false))
	entries, err := v.ListEntries()
	require.NoError(t, err)
	require.Equal(t, "b.txt", entries[0].Name)

	newID, err := v.Copy(fileID)
	require.NoError(t, err)
	require.NotEqual(t, fileID, newID)

	got, err := v.ReadFile(newID)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)

	require.NoError(t, v.Delete(fileID))
	_, err = v.ReadFile(fileID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = v.ReadFile(newID)
	require.NoError(t, err)
}

func TestRenameRejectsReservedNameWithoutAllowSystem(t *testing.T) {
	t.Parallel()

	v, _ := newTestVault(t)
	fileID, err := v.ImportBytes([]byte("x"), 1, "a.txt", "text/plain")
	require.NoError(t, err)

	err = v.Rename(fileID, "__vault_title__", false)
	require.Error(t, err)

	require.NoError(t, v.Rename(fileID, "__vault_title__", true))
}

func TestManyAppendsForceSlowPathGrowth(t *testing.T) {
	t.Parallel()

	v, path := newTestVault(t)
	var ids [][16]byte
	// ~208 index bytes per entry: 400 entries outgrow index.MinCapacity.
	for i := 0; i < 400; i++ {
		name := "file-with-a-fairly-long-name-to-grow-the-index-" + strconv.Itoa(i) + ".bin"
		payload := bytes.Repeat([]byte{byte(i)}, 1024)
		id, err := v.ImportBytes(payload, 1, name, "application/octet-stream")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, v.Close())

	v2 := New()
	require.NoError(t, v2.Open(path, []byte("correct horse battery staple")))
	entries, err := v2.ListEntries()
	require.NoError(t, err)
	require.Len(t, entries, 400)

	for _, id := range ids {
		got, err := v2.ReadFile(id)
		require.NoError(t, err)
		require.Len(t, got, 1024)
	}
}

func TestCompactReclaimsSpaceAfterDeletes(t *testing.T) {
	t.Parallel()

	v, _ := newTestVault(t)
	var ids [][16]byte
	for i := 0; i < 8; i++ {
		id, err := v.ImportBytes(bytes.Repeat([]byte{byte(i)}, 64*1024), 1, "f", "application/octet-stream")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids[:6] {
		require.NoError(t, v.Delete(id))
	}

	before := v.totalSize
	require.NoError(t, v.Compact())
	require.Less(t, v.totalSize, before)

	for _, id := range ids[6:] {
		_, err := v.ReadFile(id)
		require.NoError(t, err)
	}
}

func TestChangePassword(t *testing.T) {
	t.Parallel()

	v, path := newTestVault(t)
	fileID, err := v.ImportBytes([]byte("secret payload"), 1, "s.txt", "text/plain")
	require.NoError(t, err)

	require.NoError(t, v.ChangePassword([]byte("correct horse battery staple"), []byte("a brand new passphrase")))
	require.NoError(t, v.Close())

	v2 := New()
	err = v2.Open(path, []byte("correct horse battery staple"))
	require.Error(t, err)

	v3 := New()
	require.NoError(t, v3.Open(path, []byte("a brand new passphrase")))
	got, err := v3.ReadFile(fileID)
	require.NoError(t, err)
	require.Equal(t, []byte("secret payload"), got)
}

func TestChangePasswordWithWrongOldPassphraseFails(t *testing.T) {
	t.Parallel()

	v, _ := newTestVault(t)
	err := v.ChangePassword([]byte("not the right passphrase"), []byte("a brand new passphrase"))
	require.ErrorIs(t, err, ErrAuthFail)
}

func TestOperationsRequireOpenVault(t *testing.T) {
	t.Parallel()

	v := New()
	_, err := v.ListEntries()
	require.ErrorIs(t, err, ErrNotOpen)

	_, err = v.ImportBytes([]byte("x"), 1, "a", "b")
	require.ErrorIs(t, err, ErrNotOpen)
}

func TestStreamingImportRoundTrip(t *testing.T) {
	t.Parallel()

	v, _ := newTestVault(t)

	plaintext := bytes.Repeat([]byte{0x42}, 3*1024*1024+17)
	hash := v.StreamingComputeSourceHash(plaintext[:len(plaintext)/2], plaintext[len(plaintext)/2:], uint64(len(plaintext)))

	importID, resumeFrom, err := v.StreamingStart("", hash, "big.bin", "application/octet-stream", 1, uint64(len(plaintext)))
	require.NoError(t, err)
	require.Equal(t, uint32(0), resumeFrom)

	const chunkSize = 4 << 20
	var chunkIndex uint32
	for off := 0; off < len(plaintext); off += chunkSize {
		end := off + chunkSize
		if end > len(plaintext) {
			end = len(plaintext)
		}
		require.NoError(t, v.StreamingWriteChunk(importID, append([]byte(nil), plaintext[off:end]...), chunkIndex))
		chunkIndex++
	}

	fileID, err := v.StreamingFinish(importID)
	require.NoError(t, err)

	_, err = v.ReadFile(fileID)
	require.Error(t, err)
	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.Equal(t, CodeInvalidParam, verr.Code)

	var got []byte
	for i := uint32(0); ; i++ {
		chunk, err := v.ReadChunk(fileID, i)
		if err != nil {
			var cerr *Error
			require.True(t, errors.As(err, &cerr))
			require.Equal(t, CodeNotFound, cerr.Code)
			break
		}
		got = append(got, chunk...)
	}
	require.Equal(t, plaintext, got)
}

func TestStreamingAbortDiscardsImport(t *testing.T) {
	t.Parallel()

	v, _ := newTestVault(t)
	hash := v.StreamingComputeSourceHash([]byte("head"), nil, 4)
	importID, _, err := v.StreamingStart("", hash, "f.bin", "application/octet-stream", 1, 4)
	require.NoError(t, err)

	require.NoError(t, v.StreamingAbort(importID))

	pending, err := v.StreamingListPending()
	require.NoError(t, err)
	require.Empty(t, pending)
}
