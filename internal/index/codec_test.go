package index

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleEntry(seed byte) Entry {
	var e Entry
	for i := range e.FileID {
		e.FileID[i] = seed + byte(i)
	}
	e.Type = 1
	e.CreatedAt = 1700000000000
	e.Name = "notes.txt"
	e.MIME = "text/plain"
	e.Size = 42
	e.WrappedDEK = []byte{1, 2, 3, 4, 5, 6, 7, 8}
	e.DataOffset = 1024
	e.DataLength = 64
	return e
}

func chunkedEntry(seed byte) Entry {
	e := sampleEntry(seed)
	e.DataOffset, e.DataLength = 0, 0
	e.Chunks = []ChunkRef{
		{Offset: 100, Length: 10},
		{Offset: 200, Length: 20},
	}
	for i := range e.Chunks {
		for j := range e.Chunks[i].Nonce {
			e.Chunks[i].Nonce[j] = byte(i*24 + j)
		}
	}
	return e
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	entries := []Entry{sampleEntry(0), chunkedEntry(50)}
	required := RequiredSize(entries)

	buf, err := Encode(entries, required)
	require.NoError(t, err)
	require.Equal(t, required, len(buf))

	got, isPadded, err := Decode(buf)
	require.NoError(t, err)
	require.False(t, isPadded)
	require.Equal(t, entries, got)
}

func TestEncodeDecodeWithPadding(t *testing.T) {
	t.Parallel()

	entries := []Entry{sampleEntry(0)}
	capacity := RequiredSize(entries) + 4096

	buf, err := Encode(entries, capacity)
	require.NoError(t, err)
	require.Equal(t, capacity, len(buf))

	got, isPadded, err := Decode(buf)
	require.NoError(t, err)
	require.True(t, isPadded)
	require.Equal(t, entries, got)
}

func TestEncodeRejectsCapacityBelowRequired(t *testing.T) {
	t.Parallel()

	entries := []Entry{sampleEntry(0)}
	_, err := Encode(entries, RequiredSize(entries)-1)
	require.Error(t, err)
}

func TestDecodeEmptyIndex(t *testing.T) {
	t.Parallel()

	buf, err := Encode(nil, MinCapacity)
	require.NoError(t, err)

	got, isPadded, err := Decode(buf)
	require.NoError(t, err)
	require.True(t, isPadded)
	require.Empty(t, got)
}

func TestDecodeRejectsOversizedName(t *testing.T) {
	t.Parallel()

	e := sampleEntry(0)
	e.Name = string(make([]byte, MaxNameLen+1))
	_, err := Encode([]Entry{e}, RequiredSize([]Entry{e})+100)
	require.Error(t, err)
}

func TestChooseCapacityGrowsWithHeadroom(t *testing.T) {
	t.Parallel()

	require.Equal(t, MinCapacity, ChooseCapacity(0, 0))
	require.Equal(t, MinCapacity, ChooseCapacity(MinCapacity, 100))

	required := MinCapacity * 4
	got := ChooseCapacity(MinCapacity, required)
	require.GreaterOrEqual(t, got, required+32768)
}

func TestFitsInPlace(t *testing.T) {
	t.Parallel()

	require.True(t, FitsInPlace(MinCapacity, MinCapacity))
	require.False(t, FitsInPlace(MinCapacity, MinCapacity+1))
}
