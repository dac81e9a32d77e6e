package storage

import (
	"context"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/spf13/afero"
)

// LocalStore keeps asset files on a filesystem, one directory per channel.
type LocalStore struct {
	fs        afero.Fs
	root      string
	urlPrefix string
}

// compile-time check: *LocalStore must satisfy port.FileStore
var _ port.FileStore = (*LocalStore)(nil)

// NewLocalStore stores files under root on disk and serves them under urlPrefix.
func NewLocalStore(root, urlPrefix string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, mapFsErr(err)
	}
	return NewLocalStoreFs(afero.NewBasePathFs(afero.NewOsFs(), abs), abs, urlPrefix), nil
}

// NewLocalStoreFs wraps an existing afero filesystem. root is only used to
// report local paths and may be empty for in-memory filesystems.
func NewLocalStoreFs(fs afero.Fs, root, urlPrefix string) *LocalStore {
	return &LocalStore{fs: fs, root: root, urlPrefix: "/" + strings.Trim(urlPrefix, "/")}
}

func (s *LocalStore) name(key string) string {
	return "/" + strings.TrimLeft(path.Clean("/"+key), "/")
}

func (s *LocalStore) Save(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	logger.Debugf(ctx, "saving file %q...", key)

	name := s.name(key)
	if err := s.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return mapFsErr(err)
	}

	partial := name + ".part"
	f, err := s.fs.Create(partial)
	if err != nil {
		return mapFsErr(err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(partial)
		return mapFsErr(err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(partial)
		return mapFsErr(err)
	}
	if err := s.fs.Rename(partial, name); err != nil {
		_ = s.fs.Remove(partial)
		return mapFsErr(err)
	}
	return nil
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := s.fs.Open(s.name(key))
	if err != nil {
		return nil, mapFsErr(err)
	}
	return f, nil
}

func (s *LocalStore) Stat(_ context.Context, key string) (port.FileInfo, error) {
	fi, err := s.fs.Stat(s.name(key))
	if err != nil {
		return port.FileInfo{}, mapFsErr(err)
	}
	return port.FileInfo{SizeBytes: fi.Size(), ModTime: fi.ModTime()}, nil
}

func (s *LocalStore) Rename(ctx context.Context, srcKey, destKey string) error {
	logger.Debugf(ctx, "moving file %q to %q...", srcKey, destKey)
	return mapFsErr(s.fs.Rename(s.name(srcKey), s.name(destKey)))
}

func (s *LocalStore) Remove(ctx context.Context, key string) error {
	logger.Debugf(ctx, "removing file %q...", key)

	err := s.fs.Remove(s.name(key))
	if err != nil && !os.IsNotExist(err) {
		return mapFsErr(err)
	}
	return nil
}

func (s *LocalStore) RemovePrefix(ctx context.Context, prefix string) error {
	matches, err := afero.Glob(s.fs, s.name(prefix)+"*")
	if err != nil {
		return mapFsErr(err)
	}
	for _, m := range matches {
		if err := s.Remove(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *LocalStore) URL(key string) string {
	return s.urlPrefix + s.name(key)
}

func (s *LocalStore) LocalPath(key string) (string, bool) {
	if s.root == "" {
		return "", false
	}
	return filepath.Join(s.root, filepath.FromSlash(s.name(key))), true
}

// Handler serves the stored files under the store's URL prefix.
func (s *LocalStore) Handler() http.Handler {
	return http.StripPrefix(s.urlPrefix, http.FileServer(afero.NewHttpFs(s.fs).Dir("/")))
}
