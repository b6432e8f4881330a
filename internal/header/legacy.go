package header

import (
	"fmt"

	"github.com/vaultbox/corevault/internal/vaultcrypto"
	"github.com/vaultbox/corevault/internal/wire"
)

func parseLegacy(buf []byte) (*Header, error) {
	if len(buf) < LegacySize {
		return nil, fmt.Errorf("header: legacy buffer too short: %d bytes", len(buf))
	}

	r := wire.NewReader(buf[:LegacySize])
	if _, err := r.Bytes(8); err != nil { // magic, already matched by caller
		return nil, err
	}
	version, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("header: unsupported legacy version %d", version)
	}
	vaultID, err := r.Bytes(16)
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	salt, err := r.Bytes(16)
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	mem, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	iter, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	parallel, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	wrappedLen, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	if wrappedLen != WrappedMKLen {
		return nil, fmt.Errorf("header: unexpected wrapped_mk_len %d", wrappedLen)
	}
	wrappedMK, err := r.Bytes(int(wrappedLen))
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	gotCRC, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	wantCRC := CRC32(buf[:legacyCRCSpan])
	if gotCRC != wantCRC {
		return nil, fmt.Errorf("header: legacy crc mismatch")
	}

	kdf := vaultcrypto.Params{MemoryKiB: mem, Iterations: iter, Parallelism: uint8(parallel)}
	if err := vaultcrypto.ValidateParams(kdf); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	h := &Header{
		Journal:    false,
		Salt:       [16]byte{},
		KDF:        kdf,
		WrappedMK:  append([]byte(nil), wrappedMK...),
		HeaderSize: LegacySize,
	}
	copy(h.VaultID[:], vaultID)
	copy(h.Salt[:], salt)
	return h, nil
}

// EncodeLegacy serializes h in the legacy on-disk form. New writers never
// call this except when synthesizing fixtures; production writers only emit
// the journaled form.
func EncodeLegacy(h *Header) ([]byte, error) {
	if len(h.WrappedMK) != WrappedMKLen {
		return nil, fmt.Errorf("header: wrapped mk must be %d bytes", WrappedMKLen)
	}

	w := wire.NewWriter(LegacySize)
	w.Raw([]byte(LegacyMagic))
	w.U32(FormatVersion)
	w.Raw(h.VaultID[:])
	w.Raw(h.Salt[:])
	w.U32(h.KDF.MemoryKiB)
	w.U32(h.KDF.Iterations)
	w.U32(uint32(h.KDF.Parallelism))
	w.U32(uint32(len(h.WrappedMK)))
	w.Raw(h.WrappedMK)
	crc := CRC32(w.Bytes()[:legacyCRCSpan])
	w.U32(crc)

	return w.Bytes(), nil
}
