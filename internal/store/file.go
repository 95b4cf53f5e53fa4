package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/DoyleJ11/auction-backend/internal/engine"
)

// FileStore keeps the ledger in a single JSON file.
type FileStore struct {
	path string
}

func NewFile(path string) *FileStore {
	return &FileStore{path: filepath.Clean(path)}
}

func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Load(_ context.Context) (engine.State, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return engine.State{}, ErrNotFound
	}
	if err != nil {
		return engine.State{}, fmt.Errorf("reading %s: %w", f.path, err)
	}
	return Decode(b)
}

// Save replaces the file atomically so a crash mid-write leaves the previous
// snapshot intact.
func (f *FileStore) Save(_ context.Context, s engine.State) error {
	b, err := Encode(s)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), tempPattern(f.path))
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replacing %s: %w", f.path, err)
	}
	return nil
}

func (f *FileStore) Close() error { return nil }

// The data file may sit in the static root; a leading dot keeps the
// in-flight copy out of the file server.
func tempPattern(path string) string {
	return "." + filepath.Base(path) + ".*.tmp"
}
