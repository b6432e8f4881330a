package header

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vaultbox/corevault/internal/vaultcrypto"
)

func sampleHeader() *Header {
	h := &Header{
		Journal: true,
		KDF:     vaultcrypto.ParamsForProfile(vaultcrypto.LOW),
	}
	for i := range h.VaultID {
		h.VaultID[i] = byte(i)
	}
	for i := range h.Salt {
		h.Salt[i] = byte(i + 1)
	}
	h.WrappedMK = make([]byte, WrappedMKLen)
	for i := range h.WrappedMK {
		h.WrappedMK[i] = byte(i * 3)
	}
	return h
}

func TestJournalCreateRoundTrip(t *testing.T) {
	t.Parallel()

	h := sampleHeader()
	buf, err := EncodeJournalCreate(h)
	require.NoError(t, err)
	require.Equal(t, JournalHeaderSize, len(buf))

	got, err := Parse(buf)
	require.NoError(t, err)
	require.True(t, got.Journal)
	require.Equal(t, h.VaultID, got.VaultID)
	require.Equal(t, h.Salt, got.Salt)
	require.Equal(t, h.WrappedMK, got.WrappedMK)
	require.Equal(t, uint32(1), got.Seq)
	require.Equal(t, JournalHeaderSize, got.HeaderSize)
}

func TestJournalUpdatePicksHighestSeq(t *testing.T) {
	t.Parallel()

	h := sampleHeader()
	buf, err := EncodeJournalCreate(h)
	require.NoError(t, err)

	h2 := sampleHeader()
	h2.WrappedMK[0] ^= 0xff
	slot, offset, err := EncodeJournalUpdate(h2, 2)
	require.NoError(t, err)
	copy(buf[offset:offset+len(slot)], slot)

	got, err := Parse(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(2), got.Seq)
	require.Equal(t, h2.WrappedMK, got.WrappedMK)
}

func TestJournalFallsBackToOtherSlotOnCorruption(t *testing.T) {
	t.Parallel()

	h := sampleHeader()
	buf, err := EncodeJournalCreate(h)
	require.NoError(t, err)

	h2 := sampleHeader()
	h2.WrappedMK[0] ^= 0xff
	slot, offset, err := EncodeJournalUpdate(h2, 2)
	require.NoError(t, err)
	copy(buf[offset:offset+len(slot)], slot)

	// Corrupt slot 1 (seq 2): its CRC no longer matches, so the reader must
	// fall back to slot 0 (seq 1) rather than erroring out entirely.
	buf[offset] ^= 0xff

	got, err := Parse(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(1), got.Seq)
	require.Equal(t, h.WrappedMK, got.WrappedMK)
}

func TestNextSeqWrapsBothSlots(t *testing.T) {
	t.Parallel()

	next, resetBoth := NextSeq(5)
	require.Equal(t, uint32(6), next)
	require.False(t, resetBoth)

	next, resetBoth = NextSeq(0xffffffff)
	require.Equal(t, uint32(2), next)
	require.True(t, resetBoth)
}

func TestLegacyRoundTripAndMigrationSize(t *testing.T) {
	t.Parallel()

	h := sampleHeader()
	h.Journal = false
	buf, err := EncodeLegacy(h)
	require.NoError(t, err)
	require.Equal(t, LegacySize, len(buf))

	got, err := Parse(buf)
	require.NoError(t, err)
	require.False(t, got.Journal)
	require.Equal(t, h.VaultID, got.VaultID)
	require.Equal(t, LegacySize, got.HeaderSize)

	// A legacy->journal migration must shift every data offset by the
	// difference between the two header sizes.
	require.Equal(t, JournalHeaderSize-LegacySize, JournalHeaderSize-got.HeaderSize)
}

func TestLegacyCRCMismatchIsCorrupted(t *testing.T) {
	t.Parallel()

	h := sampleHeader()
	h.Journal = false
	buf, err := EncodeLegacy(h)
	require.NoError(t, err)

	buf[20] ^= 0xff // flip a byte inside the CRC-protected span

	_, err = Parse(buf)
	require.Error(t, err)
}

func TestParseRejectsUnrecognizedMagic(t *testing.T) {
	t.Parallel()

	buf := make([]byte, LegacySize)
	copy(buf, []byte("GARBAGE\x00"))
	_, err := Parse(buf)
	require.Error(t, err)
}
