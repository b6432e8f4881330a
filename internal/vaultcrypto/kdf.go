// SPDX-License-Identifier: Apache-2.0

// Package vaultcrypto wraps the cryptographic primitives used by the vault
// container: Argon2id key derivation, XChaCha20-Poly1305 AEAD, the
// fixed-shape additional-authenticated-data tuple, and secure key custody
// via memguard.
package vaultcrypto

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Profile names the three adaptive Argon2id parameter sets the engine
// recognizes for vault creation. Opening a vault always uses whatever
// parameters are stored in its header, not one of these profiles.
type Profile uint8

const (
	// LOW targets constrained devices: 32 MiB, 3 iterations, 1 thread.
	LOW Profile = iota + 1
	// MEDIUM targets typical mobile hardware: 128 MiB, 10 iterations, 2 threads.
	MEDIUM
	// HIGH targets high-RAM devices: 256 MiB, 12 iterations, 2 threads.
	HIGH
)

// Params are the concrete Argon2id parameters backing a Profile or read back
// from a container header.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

var profileParams = map[Profile]Params{
	LOW:    {MemoryKiB: 32 * 1024, Iterations: 3, Parallelism: 1},
	MEDIUM: {MemoryKiB: 128 * 1024, Iterations: 10, Parallelism: 2},
	HIGH:   {MemoryKiB: 256 * 1024, Iterations: 12, Parallelism: 2},
}

// ParamsForProfile returns the fixed parameter set for a creation profile.
func ParamsForProfile(p Profile) Params {
	return profileParams[p]
}

// ProfileForRAM maps a device's total RAM (in MiB) to a creation profile.
// The thresholds leave headroom for the OS and the host application: a
// device needs roughly 4x the Argon2id working set free to avoid the OOM
// killer during concurrent app usage.
func ProfileForRAM(ramMiB uint64) Profile {
	switch {
	case ramMiB < 2*1024:
		return LOW
	case ramMiB < 6*1024:
		return MEDIUM
	default:
		return HIGH
	}
}

// ValidateParams rejects KDF parameters outside the bounds spanned by the
// LOW..HIGH profiles, as required when parsing a header: a container
// claiming parameters outside this envelope is corrupted, not merely slow.
func ValidateParams(p Params) error {
	low, high := profileParams[LOW], profileParams[HIGH]
	switch {
	case p.MemoryKiB < low.MemoryKiB || p.MemoryKiB > high.MemoryKiB:
		return fmt.Errorf("kdf memory %d KiB out of bounds [%d, %d]", p.MemoryKiB, low.MemoryKiB, high.MemoryKiB)
	case p.Iterations < low.Iterations || p.Iterations > high.Iterations:
		return fmt.Errorf("kdf iterations %d out of bounds [%d, %d]", p.Iterations, low.Iterations, high.Iterations)
	case p.Parallelism < 1 || p.Parallelism > 2:
		return fmt.Errorf("kdf parallelism %d out of bounds [1, 2]", p.Parallelism)
	}
	return nil
}

// DeriveKEK derives a 32-byte key-encryption-key from a passphrase and salt
// using Argon2id under the given parameters.
func DeriveKEK(passphrase, salt []byte, p Params) []byte {
	return argon2.IDKey(passphrase, salt, p.Iterations, p.MemoryKiB, p.Parallelism, 32)
}
