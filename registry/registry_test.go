package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddListRemove(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "registry.json")
	r := New(path)

	e1, err := r.Add("alpha.vault", 1024, 1700000000000)
	require.NoError(t, err)
	require.NotEmpty(t, e1.ID)

	e2, err := r.Add("beta.vault", 2048, 1700000001000)
	require.NoError(t, err)

	list, err := r.List()
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, r.Remove(e1.ID))
	list, err = r.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, e2.ID, list[0].ID)
}

func TestRemoveUnknownIDFails(t *testing.T) {
	t.Parallel()

	r := New(filepath.Join(t.TempDir(), "registry.json"))
	err := r.Remove("does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAddEnforcesMaxVaults(t *testing.T) {
	t.Parallel()

	r := New(filepath.Join(t.TempDir(), "registry.json"))
	for i := 0; i < MaxVaults; i++ {
		_, err := r.Add("v", int64(i), int64(i))
		require.NoError(t, err)
	}
	_, err := r.Add("overflow", 0, 0)
	require.ErrorIs(t, err, ErrFull)
}

func TestUpdateSize(t *testing.T) {
	t.Parallel()

	r := New(filepath.Join(t.TempDir(), "registry.json"))
	e, err := r.Add("gamma.vault", 10, 1)
	require.NoError(t, err)

	require.NoError(t, r.UpdateSize(e.ID, 999))
	list, err := r.List()
	require.NoError(t, err)
	require.Equal(t, int64(999), list[0].SizeBytes)
}

func TestListOnMissingFileReturnsEmpty(t *testing.T) {
	t.Parallel()

	r := New(filepath.Join(t.TempDir(), "nope.json"))
	list, err := r.List()
	require.NoError(t, err)
	require.Empty(t, list)
}
