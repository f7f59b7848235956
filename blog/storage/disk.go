package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dfryer1193/css3blog/blog/domain"
	"github.com/rs/zerolog/log"
)

var _ domain.FileStorage = (*DiskStorage)(nil)

var ErrInvalidKey = errors.New("invalid storage key")

// DiskStorage keeps uploaded files below a root directory (the media root)
type DiskStorage struct {
	root string
}

func NewDiskStorage(root string) (*DiskStorage, error) {
	if root == "" {
		return nil, errors.New("root path cannot be empty")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	return &DiskStorage{root: abs}, nil
}

// Root returns the absolute root directory
func (d *DiskStorage) Root() string {
	return d.root
}

func (d *DiskStorage) localPath(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}

	p := filepath.Join(d.root, filepath.FromSlash(key))
	if !domain.WithinRoot(d.root, p) {
		return "", fmt.Errorf("%w: %w: %q", ErrInvalidKey, domain.ErrPathEscapesRoot, key)
	}

	return p, nil
}

// Save writes r to key, truncating any existing file
func (d *DiskStorage) Save(ctx context.Context, key string, r io.Reader) error {
	localPath, err := d.localPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create upload file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write upload file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close upload file: %w", err)
	}

	log.Debug().Str("key", key).Msg("disk storage: file saved")
	return nil
}

func (d *DiskStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	localPath, err := d.localPath(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(localPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrFileNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open upload file: %w", err)
	}

	return f, nil
}

// Delete removes the file at key. A missing file is not an error.
func (d *DiskStorage) Delete(ctx context.Context, key string) error {
	localPath, err := d.localPath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(localPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove upload file: %w", err)
	}

	log.Debug().Str("key", key).Msg("disk storage: file removed")
	return nil
}
