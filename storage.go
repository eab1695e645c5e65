package imagebatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Storage persists generated images. Paths are never overwritten: WriteNew
// fails with ErrFileExists when the path is already taken.
type Storage interface {
	// Exists reports whether something is already stored at path.
	Exists(path string) (bool, error)

	// WriteNew stores data at path, failing if path exists.
	WriteNew(ctx context.Context, path string, data []byte) error
}

// FileStore is a Storage backed by the local filesystem.
type FileStore struct {
	perm fs.FileMode
}

// Ensure FileStore implements Storage.
var _ Storage = (*FileStore)(nil)

// NewFileStore creates a FileStore writing files with mode 0644.
func NewFileStore() *FileStore {
	return &FileStore{perm: 0o644}
}

// Exists reports whether path exists on disk.
func (s *FileStore) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("storage: stat %s: %w", path, err)
}

// WriteNew creates path exclusively and writes data to it.
func (s *FileStore) WriteNew(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, s.perm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrFileExists, path)
		}
		return fmt.Errorf("storage: create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", path, err)
	}
	return nil
}

// SaveImage writes the first image of result to path. It is the single-image
// counterpart of the batch runner and refuses to overwrite.
func SaveImage(ctx context.Context, storage Storage, result *GenerateResult, path string) (int, error) {
	if storage == nil {
		return 0, ErrStorageNotConfigured
	}
	img, ok := result.First()
	if !ok {
		return 0, ErrNoImage
	}
	if err := storage.WriteNew(ctx, path, img.Data); err != nil {
		return 0, err
	}
	return len(img.Data), nil
}

func GetMIMEType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// ExtensionFromMIME returns a file extension for common image MIME types.
func ExtensionFromMIME(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
