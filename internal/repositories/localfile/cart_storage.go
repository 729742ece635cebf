// Package localfile stores carts as JSON files for single-instance local development.
package localfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/matica-life/storefront/internal/cart"
	"github.com/matica-life/storefront/internal/repositories"
)

// CartStorage writes one {dir}/{key}.json file per cart. Writes replace the file atomically so a
// crash never leaves a half-written payload behind.
type CartStorage struct {
	dir string
	mu  sync.Mutex
}

// NewCartStorage creates dir when missing.
func NewCartStorage(dir string) (*CartStorage, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("localfile cart storage: directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("localfile cart storage: create %s: %w", dir, err)
	}
	return &CartStorage{dir: dir}, nil
}

// Load implements cart.Storage.
func (s *CartStorage) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, cart.ErrNotFound
	case err != nil:
		return nil, repositories.NewStorageError("carts.load", repositories.StorageErrorUnavailable, err)
	}
	return data, nil
}

// Save implements cart.Storage.
func (s *CartStorage) Save(ctx context.Context, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := atomic.WriteFile(path, bytes.NewReader(payload)); err != nil {
		return repositories.NewStorageError("carts.save", repositories.StorageErrorUnavailable, err)
	}
	return nil
}

// Delete implements cart.Deleter.
func (s *CartStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return repositories.NewStorageError("carts.delete", repositories.StorageErrorUnavailable, err)
	}
	return nil
}

// path maps key to a file name with a reversible escape, so distinct keys never share a file
// and separators cannot leave dir.
func (s *CartStorage) path(key string) (string, error) {
	name := url.QueryEscape(strings.TrimSpace(key))
	if name == "" || name == "." || name == ".." {
		return "", repositories.NewStorageError("carts.path", repositories.StorageErrorNotFound, fmt.Errorf("invalid cart key %q", key))
	}
	return filepath.Join(s.dir, name+".json"), nil
}

var (
	_ cart.Storage = (*CartStorage)(nil)
	_ cart.Deleter = (*CartStorage)(nil)
)
