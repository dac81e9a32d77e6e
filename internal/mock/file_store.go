package mock

import (
	"context"
	"io"

	"github.com/fhuszti/assets-ms-go/internal/port"
)

// FileStore wraps a real port.FileStore and injects failures.
type FileStore struct {
	port.FileStore

	SaveErr         error
	RemoveErr       error
	RemovePrefixErr error
	Removed         []string
}

func (s *FileStore) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	return s.FileStore.Save(ctx, key, r, size, contentType)
}

func (s *FileStore) Remove(ctx context.Context, key string) error {
	if s.RemoveErr != nil {
		return s.RemoveErr
	}
	s.Removed = append(s.Removed, key)
	return s.FileStore.Remove(ctx, key)
}

func (s *FileStore) RemovePrefix(ctx context.Context, prefix string) error {
	if s.RemovePrefixErr != nil {
		return s.RemovePrefixErr
	}
	return s.FileStore.RemovePrefix(ctx, prefix)
}
