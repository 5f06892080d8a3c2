package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalArchive mirrors the corpus onto the local filesystem.
type LocalArchive struct {
	basePath string
}

// NewLocalArchive creates a local archive rooted at basePath.
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &LocalArchive{basePath: basePath}, nil
}

// Put stores a document under the base path.
func (a *LocalArchive) Put(ctx context.Context, filename string, data io.Reader) (string, error) {
	archivePath := archivePathFor(filename)
	fullPath := filepath.Join(a.basePath, archivePath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return archivePath, nil
}

// Get retrieves a document from the local archive.
func (a *LocalArchive) Get(ctx context.Context, archivePath string) (io.ReadCloser, error) {
	fullPath := filepath.Join(a.basePath, archivePath)

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("document not found: %s", archivePath)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete removes a document from the local archive.
func (a *LocalArchive) Delete(ctx context.Context, archivePath string) error {
	fullPath := filepath.Join(a.basePath, archivePath)

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
