// Package storage keeps attachment blobs for proposals, change requests and
// contracts. Blobs are grouped under an owner key so a pipeline entity's
// documents live together.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/config"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a blob does not exist
	ErrNotFound = errors.New("blob not found")

	// ErrTooLarge is returned when an upload exceeds the configured limit
	ErrTooLarge = errors.New("file exceeds maximum upload size")
)

// Storage defines the interface for attachment blob operations
type Storage interface {
	// Upload writes data under owner and returns the storage path and size
	Upload(ctx context.Context, owner, filename, contentType string, data io.Reader) (string, int64, error)
	Download(ctx context.Context, storagePath string) (io.ReadCloser, error)
	Delete(ctx context.Context, storagePath string) error
}

// OwnerKey builds the folder a pipeline entity's blobs are stored under
func OwnerKey(ownerType string, ownerID uuid.UUID) string {
	return ownerType + "/" + ownerID.String()
}

// NewStorage creates a new storage instance based on configuration.
// For local mode, files are stored on the local filesystem.
// For cloud/azure mode, files are stored in Azure Blob Storage.
func NewStorage(cfg *config.StorageConfig, logger *zap.Logger) (Storage, error) {
	maxBytes := cfg.MaxUploadSizeMB * 1024 * 1024
	switch cfg.Mode {
	case "local":
		s, err := NewLocalStorage(cfg.LocalBasePath)
		if err != nil {
			return nil, err
		}
		s.maxBytes = maxBytes
		return s, nil
	case "cloud", "azure":
		if cfg.CloudConnectionString == "" {
			return nil, fmt.Errorf("cloud connection string required for azure storage")
		}
		s, err := NewAzureBlobStorage(cfg.CloudConnectionString, cfg.CloudContainer, logger)
		if err != nil {
			return nil, err
		}
		s.maxBytes = maxBytes
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage mode: %s", cfg.Mode)
	}
}

// blobName generates a unique name under owner, keeping the original extension
func blobName(owner, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	name := uuid.New().String() + ext
	if owner == "" {
		return name
	}
	return path.Join(owner, name)
}

// limitedReader fails once more than max bytes have been read. max <= 0 disables the limit.
type limitedReader struct {
	r     io.Reader
	max   int64
	count int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.count += int64(n)
	if l.max > 0 && l.count > l.max {
		return n, ErrTooLarge
	}
	return n, err
}

// LocalStorage implements Storage interface for local filesystem
type LocalStorage struct {
	basePath string
	maxBytes int64
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	// Create base path if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Upload uploads a file to local storage
func (s *LocalStorage) Upload(ctx context.Context, owner, filename, contentType string, data io.Reader) (string, int64, error) {
	storagePath := blobName(owner, filename)
	fullPath := s.fullPath(storagePath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	size, err := io.Copy(file, &limitedReader{r: data, max: s.maxBytes})
	if err != nil {
		os.Remove(fullPath) // Cleanup on error
		if errors.Is(err, ErrTooLarge) {
			return "", 0, err
		}
		return "", 0, fmt.Errorf("failed to write file: %w", err)
	}

	return storagePath, size, nil
}

// Download downloads a file from local storage
func (s *LocalStorage) Download(ctx context.Context, storagePath string) (io.ReadCloser, error) {
	file, err := os.Open(s.fullPath(storagePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, storagePath)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete deletes a file from local storage
func (s *LocalStorage) Delete(ctx context.Context, storagePath string) error {
	if err := os.Remove(s.fullPath(storagePath)); err != nil {
		if os.IsNotExist(err) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

func (s *LocalStorage) fullPath(storagePath string) string {
	// Clean against a rooted path so ".." segments cannot escape basePath
	return filepath.Join(s.basePath, filepath.FromSlash(path.Clean("/"+storagePath)))
}
