package streaming

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourceHashMatchesWindowVariant(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{0xab}, 3*fingerprintWindow)
	r := bytes.NewReader(data)

	viaReader, err := SourceHash(r, int64(len(data)))
	require.NoError(t, err)

	head := data[:fingerprintWindow]
	tail := data[len(data)-fingerprintWindow:]
	viaWindows := SourceHashFromWindows(head, tail, uint64(len(data)))

	require.Equal(t, viaReader, viaWindows)
}

func TestSourceHashOmitsTailForSmallFiles(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{0x01}, fingerprintWindow/2)
	r := bytes.NewReader(data)

	got, err := SourceHash(r, int64(len(data)))
	require.NoError(t, err)

	want := SourceHashFromWindows(data, nil, uint64(len(data)))
	require.Equal(t, want, got)
}

func TestSourceHashDiffersOnSizeMismatch(t *testing.T) {
	t.Parallel()

	a := SourceHashFromWindows([]byte("abc"), nil, 3)
	b := SourceHashFromWindows([]byte("abc"), nil, 4)
	require.NotEqual(t, a, b)
}
