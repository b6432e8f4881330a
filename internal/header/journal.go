package header

import (
	"fmt"

	"github.com/vaultbox/corevault/internal/vaultcrypto"
	"github.com/vaultbox/corevault/internal/wire"
)

// JournalHeaderSize is the total on-disk size of the superblock plus both
// slots — the byte offset at which the index section begins for every
// journaled container.
const JournalHeaderSize = SuperblockSize + SlotCount*SlotSize

// SlotOffset returns the byte offset of the slot that sequence number seq
// belongs to (seq mod 2), relative to the start of the header region.
func SlotOffset(seq uint32) int {
	return SuperblockSize + int(seq%SlotCount)*SlotSize
}

// NextSeq computes the sequence number to write for a passphrase change
// given the current sequence (0 if the container was still legacy). If the
// increment would wrap to 0, both slots are reset to {1, 2} and the caller
// must rewrite both; resetBoth reports that case.
func NextSeq(cur uint32) (next uint32, resetBoth bool) {
	n := cur + 1
	if n == 0 {
		return 2, true
	}
	return n, false
}

// EncodeSuperblock serializes the fixed superblock.
func EncodeSuperblock() []byte {
	w := wire.NewWriter(SuperblockSize)
	w.Raw([]byte(JournalMagic))
	w.U32(FormatVersion)
	w.U32(uint32(SlotSize))
	w.U32(uint32(SlotCount))
	w.U32(0) // flags
	crc := CRC32(w.Bytes())
	w.U32(crc)
	return w.Bytes()
}

func parseSuperblock(buf []byte) (slotSize, slotCount uint32, err error) {
	if len(buf) < SuperblockSize {
		return 0, 0, fmt.Errorf("header: superblock buffer too short")
	}
	r := wire.NewReader(buf[:SuperblockSize])
	if _, err := r.Bytes(8); err != nil { // magic, already matched by caller
		return 0, 0, err
	}
	version, err := r.U32()
	if err != nil {
		return 0, 0, err
	}
	if version != FormatVersion {
		return 0, 0, fmt.Errorf("header: unsupported journal version %d", version)
	}
	slotSize, err = r.U32()
	if err != nil {
		return 0, 0, err
	}
	slotCount, err = r.U32()
	if err != nil {
		return 0, 0, err
	}
	if _, err := r.U32(); err != nil { // flags, currently unused
		return 0, 0, err
	}
	gotCRC, err := r.U32()
	if err != nil {
		return 0, 0, err
	}
	if gotCRC != CRC32(buf[:SuperblockSize-4]) {
		return 0, 0, fmt.Errorf("header: superblock crc mismatch")
	}
	return slotSize, slotCount, nil
}

// EncodeSlot serializes one journal slot for sequence seq.
func EncodeSlot(h *Header, seq uint32) ([]byte, error) {
	if len(h.WrappedMK) != WrappedMKLen {
		return nil, fmt.Errorf("header: wrapped mk must be %d bytes", WrappedMKLen)
	}
	w := wire.NewWriter(SlotSize)
	w.U32(seq)
	w.Raw(h.VaultID[:])
	w.Raw(h.Salt[:])
	w.U32(h.KDF.MemoryKiB)
	w.U32(h.KDF.Iterations)
	w.U32(uint32(h.KDF.Parallelism))
	w.U32(uint32(len(h.WrappedMK)))
	w.Raw(h.WrappedMK)
	crc := CRC32(w.Bytes())
	w.U32(crc)
	if w.Len() != SlotSize {
		return nil, fmt.Errorf("header: encoded slot size mismatch: got %d want %d", w.Len(), SlotSize)
	}
	return w.Bytes(), nil
}

// EmptySlot returns a slot record with seq=0, never a valid candidate on
// read — the initial fallback slot of a freshly created container.
func EmptySlot() []byte {
	return make([]byte, SlotSize)
}

type slotView struct {
	seq       uint32
	vaultID   [16]byte
	salt      [16]byte
	kdf       vaultcrypto.Params
	wrappedMK []byte
	valid     bool
}

func decodeSlot(buf []byte) (slotView, error) {
	var sv slotView
	if len(buf) < SlotSize {
		return sv, fmt.Errorf("header: slot buffer too short")
	}
	r := wire.NewReader(buf[:SlotSize])
	seq, err := r.U32()
	if err != nil {
		return sv, err
	}
	sv.seq = seq
	if seq == 0 {
		return sv, nil // empty slot, not an error, just invalid
	}
	vaultID, err := r.Bytes(16)
	if err != nil {
		return sv, err
	}
	salt, err := r.Bytes(16)
	if err != nil {
		return sv, err
	}
	mem, err := r.U32()
	if err != nil {
		return sv, err
	}
	iter, err := r.U32()
	if err != nil {
		return sv, err
	}
	parallel, err := r.U32()
	if err != nil {
		return sv, err
	}
	wrappedLen, err := r.U32()
	if err != nil {
		return sv, err
	}
	if wrappedLen != WrappedMKLen {
		return sv, nil // invalid, but not a hard parse error: caller skips it
	}
	wrappedMK, err := r.Bytes(int(wrappedLen))
	if err != nil {
		return sv, nil
	}
	gotCRC, err := r.U32()
	if err != nil {
		return sv, err
	}
	if gotCRC != CRC32(buf[:SlotSize-4]) {
		return sv, nil // crc failure: invalid slot, not a parse error
	}

	kdf := vaultcrypto.Params{MemoryKiB: mem, Iterations: iter, Parallelism: uint8(parallel)}
	if err := vaultcrypto.ValidateParams(kdf); err != nil {
		return sv, nil // out-of-range params: treat as invalid, not corrupted
	}

	copy(sv.vaultID[:], vaultID)
	copy(sv.salt[:], salt)
	sv.kdf = kdf
	sv.wrappedMK = append([]byte(nil), wrappedMK...)
	sv.valid = true
	return sv, nil
}

// EncodeJournalCreate builds the full header region for a brand-new
// container: superblock, slot 0 at seq 1, and an empty slot 1 fallback.
func EncodeJournalCreate(h *Header) ([]byte, error) {
	slot0, err := EncodeSlot(h, 1)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, JournalHeaderSize)
	out = append(out, EncodeSuperblock()...)
	out = append(out, slot0...)
	out = append(out, EmptySlot()...)
	return out, nil
}

// EncodeJournalUpdate returns the single slot record to pwrite at
// SlotOffset(newSeq) for a passphrase change that does not wrap the
// sequence space. The other slot's on-disk bytes are left untouched and
// remain the crash-recovery fallback.
func EncodeJournalUpdate(h *Header, newSeq uint32) ([]byte, int, error) {
	slot, err := EncodeSlot(h, newSeq)
	if err != nil {
		return nil, 0, err
	}
	return slot, SlotOffset(newSeq), nil
}

// EncodeJournalBothSlots returns both slot records, in on-disk order, for
// the rare case where NextSeq reports a sequence-space wrap and both slots
// must be rewritten (seq 1 and seq 2) in a single pass.
func EncodeJournalBothSlots(h *Header, seqA, seqB uint32) ([2][]byte, error) {
	var out [2][]byte
	slotA, err := EncodeSlot(h, seqA)
	if err != nil {
		return out, err
	}
	slotB, err := EncodeSlot(h, seqB)
	if err != nil {
		return out, err
	}
	out[seqA%SlotCount] = slotA
	out[seqB%SlotCount] = slotB
	return out, nil
}

func parseJournal(buf []byte) (*Header, error) {
	slotSize, slotCount, err := parseSuperblock(buf)
	if err != nil {
		return nil, err
	}
	if slotSize != SlotSize || slotCount != SlotCount {
		return nil, fmt.Errorf("header: unsupported slot geometry (size=%d count=%d)", slotSize, slotCount)
	}
	if len(buf) < SuperblockSize+int(slotCount)*int(slotSize) {
		return nil, fmt.Errorf("header: buffer too short for %d slots", slotCount)
	}

	var (
		best      slotView
		haveValid bool
	)
	for i := 0; i < int(slotCount); i++ {
		off := SuperblockSize + i*int(slotSize)
		sv, err := decodeSlot(buf[off : off+int(slotSize)])
		if err != nil {
			return nil, fmt.Errorf("header: slot %d: %w", i, err)
		}
		if !sv.valid {
			continue
		}
		if !haveValid || sv.seq > best.seq {
			best = sv
			haveValid = true
		}
	}
	if !haveValid {
		return nil, fmt.Errorf("header: no valid journal slot found")
	}

	h := &Header{
		Journal:    true,
		VaultID:    best.vaultID,
		Salt:       best.salt,
		KDF:        best.kdf,
		WrappedMK:  best.wrappedMK,
		Seq:        best.seq,
		HeaderSize: SuperblockSize + int(slotCount)*int(slotSize),
	}
	return h, nil
}
