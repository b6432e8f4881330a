package vault

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vaultbox/corevault/internal/header"
	"github.com/vaultbox/corevault/internal/index"
	"github.com/vaultbox/corevault/internal/vaultcrypto"
)

const minPassphraseLen = 12

// defaultProfile is used by Create; SetKDFProfileByRAM lets the caller pick
// a different one before the next Create.
var defaultProfile = vaultcrypto.MEDIUM

// SetKDFProfileByRAM selects the Argon2id profile that subsequent Create
// calls use, based on the caller-reported device RAM in MiB. The package
// has no portable way to query RAM itself, so the host application
// supplies it.
func SetKDFProfileByRAM(ramMiB uint64) {
	defaultProfile = vaultcrypto.ProfileForRAM(ramMiB)
}

// GetKDFParams returns the Argon2id parameters the next Create call will
// use outside test mode; in test mode Create uses the LOW profile instead.
func GetKDFParams() vaultcrypto.Params {
	return vaultcrypto.ParamsForProfile(defaultProfile)
}

func validatePassphrase(passphrase []byte) error {
	if len(passphrase) < minPassphraseLen {
		return newErr("validate_passphrase", CodePassphraseTooShort, nil)
	}
	return nil
}

// Create initializes a brand-new container at path under passphrase. The
// vault is left open on success.
func (v *Vault) Create(path string, passphrase []byte) error {
	const op = "create"

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := validatePassphrase(passphrase); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return newErr(op, CodeAlreadyExists, nil)
	} else if !os.IsNotExist(err) {
		return newErr(op, CodeIO, err)
	}

	profile := defaultProfile
	if InTestMode() {
		profile = vaultcrypto.LOW
	}
	kdf := vaultcrypto.ParamsForProfile(profile)

	vaultID, err := vaultcrypto.NewID16()
	if err != nil {
		return newErr(op, CodeCrypto, err)
	}
	salt, err := vaultcrypto.NewSalt()
	if err != nil {
		return newErr(op, CodeCrypto, err)
	}
	mkRaw, err := vaultcrypto.NewMasterKey()
	if err != nil {
		return newErr(op, CodeCrypto, err)
	}
	defer vaultcrypto.SecureZero(mkRaw)

	kek := vaultcrypto.DeriveKEK(passphrase, salt, kdf)
	defer vaultcrypto.SecureZero(kek)

	wrappedMK, err := vaultcrypto.SealBlob(kek, vaultID[:], mkRaw)
	if err != nil {
		return newErr(op, CodeCrypto, err)
	}

	h := &header.Header{
		Journal:   true,
		VaultID:   [16]byte(vaultID),
		Salt:      [16]byte{},
		KDF:       kdf,
		WrappedMK: wrappedMK,
	}
	copy(h.Salt[:], salt)

	headerBytes, err := header.EncodeJournalCreate(h)
	if err != nil {
		return newErr(op, CodeCrypto, err)
	}

	mk := vaultcrypto.NewKey(mkRaw)

	emptyIndexPT, err := index.Encode(nil, index.MinCapacity)
	if err != nil {
		mk.Destroy()
		return newErr(op, CodeCrypto, err)
	}
	indexBlob, err := sealIndexSection(mk.Bytes(), emptyIndexPT)
	if err != nil {
		mk.Destroy()
		return newErr(op, CodeCrypto, err)
	}

	if err := writeContainerFile(path, headerBytes, indexBlob); err != nil {
		mk.Destroy()
		return newErr(op, CodeIO, err)
	}

	v.closeLocked()
	v.path = path
	v.vaultID = *h
	v.journal = true
	v.headerSeq = 1
	v.headerSize = len(headerBytes)
	v.salt = append([]byte(nil), salt...)
	v.kdf = kdf
	v.wrappedMK = wrappedMK
	v.mk = mk
	v.entries = nil
	v.indexCap = index.MinCapacity
	v.indexIsPad = true
	v.totalSize = int64(len(headerBytes) + len(indexBlob) + 32)
	v.maxDataEnd = int64(len(headerBytes) + len(indexBlob))
	v.open = true

	return nil
}

// writeContainerFile assembles a brand-new container file: header, index
// section (nonce||ct_len||ciphertext already sealed), and a zero trailer.
func writeContainerFile(path string, headerBytes, indexBlob []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating vault directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(headerBytes); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := writeIndexSection(tmp, indexBlob); err != nil {
		return err
	}
	var trailer [32]byte
	if _, err := tmp.Write(trailer[:]); err != nil {
		return fmt.Errorf("writing trailer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file into place: %w", err)
	}
	if err := syncParentDir(dir); err != nil {
		return fmt.Errorf("syncing parent directory: %w", err)
	}
	return nil
}

func syncParentDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
