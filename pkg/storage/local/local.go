// Package local stores upload objects on the server's disk.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is wrapped when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Store keeps objects below a root directory.
type Store struct {
	root string
}

// New creates the root directory when missing.
func New(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("upload directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string {
	return s.root
}

// Put writes to a temp file first so readers never see partial content.
func (s *Store) Put(ctx context.Context, object, _ string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(object)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing object %s: %w", object, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("closing object %s: %w", object, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("moving object %s: %w", object, err)
	}
	return nil
}

// Delete removes the object. Missing objects are not an error.
func (s *Store) Delete(_ context.Context, object string) error {
	path, err := s.resolve(object)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting object %s: %w", object, err)
	}
	return nil
}

func (s *Store) Open(_ context.Context, object string) (io.ReadCloser, error) {
	path, err := s.resolve(object)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("object %s: %w", object, ErrNotFound)
		}
		return nil, fmt.Errorf("opening object %s: %w", object, err)
	}
	return f, nil
}

// resolve maps an object key to a path that stays inside root.
func (s *Store) resolve(object string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(object))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid object key %q", object)
	}
	return filepath.Join(s.root, clean), nil
}
