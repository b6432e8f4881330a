package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	t.Parallel()

	w := NewWriter(32)
	w.U8(0x7f)
	w.U16(0x1234)
	w.U32(0xdeadbeef)
	w.U64(0x0123456789abcdef)
	w.LenPrefixedU16([]byte("hello"))
	w.Pad(3)

	r := NewReader(w.Bytes())

	u8, err := r.U8()
	require.NoError(t, err)
	require.Equal(t, uint8(0x7f), u8)

	u16, err := r.U16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), u16)

	u32, err := r.U32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), u32)

	u64, err := r.U64()
	require.NoError(t, err)
	require.Equal(t, uint64(0x0123456789abcdef), u64)

	lp, err := r.LenPrefixedU16(16)
	require.NoError(t, err)
	require.Equal(t, "hello", string(lp))

	require.NoError(t, r.Skip(3))
	require.Equal(t, 0, r.Len())
}

func TestReaderShortBufferErrors(t *testing.T) {
	t.Parallel()

	r := NewReader([]byte{0x01, 0x02})
	_, err := r.U32()
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestLenPrefixedU16RejectsOverLongField(t *testing.T) {
	t.Parallel()

	w := NewWriter(8)
	w.LenPrefixedU16([]byte("0123456789"))

	r := NewReader(w.Bytes())
	_, err := r.LenPrefixedU16(4)
	require.Error(t, err)
}

func TestReaderRest(t *testing.T) {
	t.Parallel()

	r := NewReader([]byte{1, 2, 3, 4})
	_, err := r.Bytes(1)
	require.NoError(t, err)
	require.Equal(t, []byte{2, 3, 4}, r.Rest())
}
