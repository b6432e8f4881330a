// Package corefs resolves and validates the directory a container file
// lives in, so the streaming staging area is never created under an
// unresolved symlink.
package corefs

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ConfirmedDir is a clean, absolute, symlink-free directory path.
type ConfirmedDir string

// ConfirmDir resolves dir to a clean, absolute, symlink-free path. It does
// not require dir to exist: a container's directory may not have been
// created yet when Create first resolves it.
func ConfirmDir(dir string) (ConfirmedDir, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("corefs: resolving absolute path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// The directory may not exist yet (e.g. Create on a fresh path);
		// fall back to the cleaned absolute form rather than failing.
		return ConfirmedDir(abs), nil //nolint:nilerr
	}
	return ConfirmedDir(resolved), nil
}

// HasPrefix reports whether d lies within path (or equals it).
func (d ConfirmedDir) HasPrefix(path ConfirmedDir) bool {
	if path.String() == string(filepath.Separator) || path == d {
		return true
	}
	return strings.HasPrefix(string(d), string(path)+string(filepath.Separator))
}

// Join joins name onto d and rejects any result that escapes d, guarding
// staging paths (import ids, chunk file names) against traversal even
// though both are always engine-generated hex strings.
func (d ConfirmedDir) Join(name string) (string, error) {
	joined := filepath.Join(string(d), name)
	joinedDir, err := filepath.Abs(filepath.Dir(joined))
	if err != nil {
		return "", fmt.Errorf("corefs: resolving joined path: %w", err)
	}
	if !ConfirmedDir(joinedDir).HasPrefix(d) && ConfirmedDir(joined) != d {
		return "", fmt.Errorf("corefs: path %q escapes %q", name, d)
	}
	return joined, nil
}

func (d ConfirmedDir) String() string {
	return string(d)
}
