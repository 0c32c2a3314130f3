// Package artifact resolves hardware images and precompiled instruction
// blobs from an on-disk store. Blobs are opaque to this package; they are
// addressed by instruction key and returned as raw bytes.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvRoot overrides the default store root when set.
const EnvRoot = "AIEDISPATCH_ROOT"

const (
	imageDir = "images"
	txnDir   = "txn"
	txnExt   = ".bin"
	imageExt = ".xclbin"
)

// ErrNotFound reports that no artifact exists for the requested key.
var ErrNotFound = errors.New("artifact not found")

// Store is a directory-rooted artifact store.
// Images live under images/, instruction blobs under txn/, one file per key.
type Store struct {
	root string
}

// DefaultRoot returns the store root from the environment, or the
// current directory when unset.
func DefaultRoot() string {
	if root := os.Getenv(EnvRoot); root != "" {
		return root
	}
	return "."
}

// Open opens the artifact store rooted at dir.
func Open(dir string) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("artifact store root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("artifact store root %s is not a directory", dir)
	}
	return &Store{root: dir}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// ImagePath returns the filesystem path of a hardware image by name.
// The path identifies the image; it is not read by this package.
func (s *Store) ImagePath(name string) string {
	return filepath.Join(s.root, imageDir, name+imageExt)
}

// Instruction reads the instruction blob stored under key.
// A missing blob reports ErrNotFound.
func (s *Store) Instruction(key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, txnDir, key+txnExt))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("instruction %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("instruction %q: %w", key, err)
	}
	return data, nil
}

// WriteInstruction stores an instruction blob under key, creating the
// store layout as needed. Used by fixture generators and the CLI packer.
func (s *Store) WriteInstruction(key string, data []byte) error {
	dir := filepath.Join(s.root, txnDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, key+txnExt), data, 0o644)
}

// WriteImage stores a hardware image under name.
func (s *Store) WriteImage(name string, data []byte) error {
	dir := filepath.Join(s.root, imageDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.ImagePath(name), data, 0o644)
}

// Keys lists all instruction keys present in the store, sorted by the
// directory order of the underlying filesystem.
func (s *Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, txnDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), txnExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), txnExt))
	}
	return keys, nil
}

// Images lists all hardware image names present in the store.
func (s *Store) Images() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, imageDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), imageExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), imageExt))
	}
	return names, nil
}
