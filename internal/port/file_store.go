package port

import (
	"context"
	"io"
	"time"
)

// FileInfo represents metadata about a stored file.
type FileInfo struct {
	SizeBytes   int64
	ContentType string
	ModTime     time.Time
}

// FileStore defines raw byte storage for asset files, addressed by object key.
type FileStore interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (FileInfo, error)
	Rename(ctx context.Context, srcKey, destKey string) error
	// Remove deletes the file. A missing file is not an error.
	Remove(ctx context.Context, key string) error
	RemovePrefix(ctx context.Context, prefix string) error
	// URL is the path or address the file is served from.
	URL(key string) string
	// LocalPath returns a filesystem path for the key when the store is disk backed.
	LocalPath(key string) (string, bool)
}
