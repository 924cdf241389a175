package fsxlocal

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gardenledger/fieldsync/pkg/fsx"
)

// LocalStore implements fsx.PresignedStore on local disk. Presigned URLs are
// plain file:// URLs since local files need no signing.
type LocalStore struct {
	basePath string // Root directory for all blobs
}

// NewLocalStore creates a local store rooted at basePath, creating it if needed.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	return &LocalStore{basePath: absPath}, nil
}

func (s *LocalStore) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(s.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func (s *LocalStore) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	file, err := os.Open(s.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

func (s *LocalStore) Stat(ctx context.Context, path string) (fsx.FileInfo, error) {
	fullPath := s.fullPath(path)
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fsx.FileInfo{}, fmt.Errorf("file not found: %s", path)
		}
		return fsx.FileInfo{}, fmt.Errorf("failed to stat file: %w", err)
	}

	return fsx.FileInfo{
		Name:        info.Name(),
		Path:        path,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		IsDir:       info.IsDir(),
		ContentType: detectContentType(fullPath),
		Metadata:    make(map[string]string),
	}, nil
}

func (s *LocalStore) List(ctx context.Context, prefix string) ([]fsx.FileInfo, error) {
	fullPath := s.fullPath(prefix)
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	infos := make([]fsx.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue // Skip entries with errors
		}

		infos = append(infos, fsx.FileInfo{
			Name:        info.Name(),
			Path:        filepath.Join(prefix, info.Name()),
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			IsDir:       info.IsDir(),
			ContentType: detectContentType(filepath.Join(fullPath, info.Name())),
			Metadata:    make(map[string]string),
		})
	}

	return infos, nil
}

func (s *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(s.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *LocalStore) Write(ctx context.Context, path string, data []byte) error {
	fullPath := s.fullPath(path)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (s *LocalStore) WriteStream(ctx context.Context, path string, r io.Reader) error {
	fullPath := s.fullPath(path)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, r); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (s *LocalStore) Delete(ctx context.Context, path string) error {
	if err := os.Remove(s.fullPath(path)); err != nil {
		if os.IsNotExist(err) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// PresignDownload returns a file:// URL. Expiration is meaningless for local
// disk and ignored.
func (s *LocalStore) PresignDownload(ctx context.Context, path string, _ time.Duration) (string, error) {
	fullPath := s.fullPath(path)
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	return "file://" + filepath.ToSlash(fullPath), nil
}

// GetBasePath returns the base path
func (s *LocalStore) GetBasePath() string {
	return s.basePath
}

// fullPath converts a store-relative path to an absolute path under basePath
func (s *LocalStore) fullPath(path string) string {
	return filepath.Join(s.basePath, filepath.Clean("/"+path))
}

// detectContentType detects MIME type from file extension
func detectContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".mp4":
		return "video/mp4"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
