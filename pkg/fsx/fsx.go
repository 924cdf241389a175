package fsx

import (
	"context"
	"io"
	"time"
)

// FileInfo represents information about a stored blob
type FileInfo struct {
	Name        string            // Base name of the file
	Path        string            // Full path within the store
	Size        int64             // File size in bytes
	ModTime     time.Time         // Modification time
	IsDir       bool              // Is a directory
	ContentType string            // MIME type (when available)
	Metadata    map[string]string // Additional metadata
}

// Reader provides read-only blob operations
type Reader interface {
	Read(ctx context.Context, path string) ([]byte, error)
	ReadStream(ctx context.Context, path string) (io.ReadCloser, error)
	Stat(ctx context.Context, path string) (FileInfo, error)
	List(ctx context.Context, prefix string) ([]FileInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Writer provides blob write operations
type Writer interface {
	Write(ctx context.Context, path string, data []byte) error
	WriteStream(ctx context.Context, path string, r io.Reader) error
}

// Deleter provides blob deletion
type Deleter interface {
	Delete(ctx context.Context, path string) error
}

// Store combines the blob operations the engine needs
type Store interface {
	Reader
	Writer
	Deleter
}

// Presigner generates time-limited download URLs for stored blobs
type Presigner interface {
	PresignDownload(ctx context.Context, path string, expiration time.Duration) (string, error)
}

// PresignedStore is a blob store that can also hand out download URLs
type PresignedStore interface {
	Store
	Presigner
}
