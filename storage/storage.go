// Package storage provides the archive that mirrors the downloaded policy
// corpus, so a rebuild of the vector index does not depend on the publisher's
// site being up.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Archive stores raw policy documents keyed by the path returned from Put.
type Archive interface {
	// Put stores a document and returns its archive path.
	Put(ctx context.Context, filename string, data io.Reader) (string, error)

	// Get retrieves a document by archive path.
	Get(ctx context.Context, archivePath string) (io.ReadCloser, error)

	// Delete removes a document by archive path.
	Delete(ctx context.Context, archivePath string) error
}

// ArchiveType selects the archive backend.
type ArchiveType string

const (
	ArchiveTypeLocal ArchiveType = "local"
	ArchiveTypeS3    ArchiveType = "s3"
)

// ArchiveConfig holds configuration for the archive backends.
type ArchiveConfig struct {
	Type         ArchiveType
	LocalPath    string // for local archive
	S3Bucket     string // for S3 archive
	S3Region     string // for S3 archive
	AWSAccessKey string
	AWSSecretKey string
}

// NewArchive creates an archive instance based on configuration.
func NewArchive(cfg ArchiveConfig) (Archive, error) {
	switch cfg.Type {
	case ArchiveTypeLocal:
		return NewLocalArchive(cfg.LocalPath)
	case ArchiveTypeS3:
		return NewS3Archive(cfg)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}

// NewArchiveFromEnv creates an archive instance from environment variables.
func NewArchiveFromEnv() (Archive, error) {
	archiveType := os.Getenv("ARCHIVE_BACKEND")
	if archiveType == "" {
		archiveType = "local"
	}

	cfg := ArchiveConfig{
		Type: ArchiveType(archiveType),
	}

	switch cfg.Type {
	case ArchiveTypeLocal:
		cfg.LocalPath = os.Getenv("ARCHIVE_LOCAL_PATH")
		if cfg.LocalPath == "" {
			cfg.LocalPath = "./archive/policies"
		}
		return NewLocalArchive(cfg.LocalPath)

	case ArchiveTypeS3:
		cfg.S3Bucket = os.Getenv("AWS_S3_BUCKET")
		cfg.S3Region = os.Getenv("AWS_REGION")
		if cfg.S3Region == "" {
			cfg.S3Region = "us-east-1"
		}
		cfg.AWSAccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		cfg.AWSSecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")

		if cfg.S3Bucket == "" {
			return nil, errors.New("AWS_S3_BUCKET environment variable is required for the S3 archive")
		}

		return NewS3Archive(cfg)

	default:
		return nil, fmt.Errorf("unknown archive type: %s", archiveType)
	}
}

// archivePathFor builds a collision-free archive path for a document. The
// random prefix keeps re-pulls of a renamed policy from clobbering the
// previous copy.
func archivePathFor(filename string) string {
	ext := filepath.Ext(filename)
	baseName := strings.TrimSuffix(filepath.Base(filename), ext)
	baseName = strings.ReplaceAll(baseName, " ", "_")
	baseName = strings.ReplaceAll(baseName, "/", "_")
	baseName = strings.ReplaceAll(baseName, "\\", "_")

	id := uuid.NewString()
	return fmt.Sprintf("%s/%s_%s%s", id[:2], id, baseName, ext)
}
