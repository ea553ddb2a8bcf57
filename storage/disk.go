package storage

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

// UploadsRoute is the public prefix disk stored photos are served under.
const UploadsRoute = "/uploads"

// DiskStore keeps photos in a local directory.
type DiskStore struct {
	root    string
	baseURL string
}

var _ PhotoStore = (*DiskStore)(nil)

// NewDiskStore creates root if needed.
func NewDiskStore(root, baseURL string) (*DiskStore, error) {
	if root == "" {
		return nil, errors.New("storage: upload path must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create upload dir: %w", err)
	}
	return &DiskStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Root is the directory photos live in.
func (d *DiskStore) Root() string {
	return d.root
}

func (d *DiskStore) Save(ctx context.Context, key string, body io.Reader, _ int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dst, err := d.resolve(key)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("storage: create %s: %w", key, err)
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(dst)
		return fmt.Errorf("storage: write %s: %w", key, err)
	}

	return f.Close()
}

// Delete ignores photos that are already gone.
func (d *DiskStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dst, err := d.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

func (d *DiskStore) Path(key string) string {
	return UploadsRoute + "/" + key
}

func (d *DiskStore) URL(key string) string {
	return d.baseURL + d.Path(key)
}

func (d *DiskStore) resolve(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return filepath.Join(d.root, key), nil
}
