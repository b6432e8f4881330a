// Package registry implements the plaintext multi-vault directory: a
// sidecar listing every known container file by id, filename, and size,
// carrying no key material of its own.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/vaultbox/corevault/ioutil/atomic"
)

// MaxVaults is the hard ceiling on registered containers.
const MaxVaults = 25

// ErrFull is returned by Add once MaxVaults entries are already registered.
var ErrFull = errors.New("registry: at most 25 vaults may be registered")

// ErrNotFound is returned by Remove when id isn't registered.
var ErrNotFound = errors.New("registry: vault id not found")

// Entry describes one registered container. It never carries secrets.
type Entry struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	CreatedAt int64  `json:"createdAt"`
	SizeBytes int64  `json:"sizeBytes"`
}

// Registry is a JSON sidecar file listing every registered vault.
type Registry struct {
	path string
}

// New returns a Registry backed by the sidecar file at path. The file is
// created lazily on the first Add.
func New(path string) *Registry {
	return &Registry{path: path}
}

// List returns every registered entry, in registration order.
func (r *Registry) List() ([]Entry, error) {
	return r.load()
}

func (r *Registry) load() ([]Entry, error) {
	buf, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: reading sidecar: %w", err)
	}
	if len(buf) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(buf, &entries); err != nil {
		return nil, fmt.Errorf("registry: decoding sidecar: %w", err)
	}
	return entries, nil
}

func (r *Registry) save(entries []Entry) error {
	buf, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: encoding sidecar: %w", err)
	}
	if err := atomic.WriteFile(r.path, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("registry: writing sidecar: %w", err)
	}
	return nil
}

// Add registers a newly created vault, generating a fresh UUID for it.
// createdAt is a millisecond Unix timestamp, supplied by the caller so the
// package stays free of wall-clock reads.
func (r *Registry) Add(filename string, sizeBytes, createdAt int64) (Entry, error) {
	entries, err := r.load()
	if err != nil {
		return Entry{}, err
	}
	if len(entries) >= MaxVaults {
		return Entry{}, ErrFull
	}

	e := Entry{
		ID:        uuid.NewString(),
		Filename:  filename,
		CreatedAt: createdAt,
		SizeBytes: sizeBytes,
	}
	entries = append(entries, e)
	if err := r.save(entries); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Remove deregisters the vault with the given id.
func (r *Registry) Remove(id string) error {
	entries, err := r.load()
	if err != nil {
		return err
	}
	kept := make([]Entry, 0, len(entries))
	found := false
	for _, e := range entries {
		if e.ID == id {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return ErrNotFound
	}
	return r.save(kept)
}

// UpdateSize updates the recorded size of an already-registered vault,
// e.g. after an append or a compaction changes the container's file size.
func (r *Registry) UpdateSize(id string, sizeBytes int64) error {
	entries, err := r.load()
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].ID == id {
			entries[i].SizeBytes = sizeBytes
			return r.save(entries)
		}
	}
	return ErrNotFound
}
