package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/fhuszti/assets-ms-go/internal/port"
)

// ErrNotFound is returned by mocks for unknown keys.
var ErrNotFound = errors.New("mock: not found")

// CacheManager answers from maps keyed by URL, payload or filename.
type CacheManager struct {
	mu sync.Mutex

	ByURL     map[string]*model.Asset
	ByPayload map[string]*model.Asset
	ByName    map[string]*model.Asset
	Err       error

	URLCalls     []string
	PayloadCalls []string
	CachedFiles  map[string][]byte
}

var _ port.CacheManager = (*CacheManager)(nil)

func NewCacheManager() *CacheManager {
	return &CacheManager{
		ByURL:       map[string]*model.Asset{},
		ByPayload:   map[string]*model.Asset{},
		ByName:      map[string]*model.Asset{},
		CachedFiles: map[string][]byte{},
	}
}

// Factory returns a port.CacheManagerFactory handing out m for every channel.
func (m *CacheManager) Factory() port.CacheManagerFactory {
	return func(int64) port.CacheManager { return m }
}

func (m *CacheManager) GetCachedFile(ctx context.Context, filename string) (*model.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.ByName[filename], nil
}

func (m *CacheManager) CacheFile(ctx context.Context, content []byte, filename string) (*model.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.CachedFiles[filename] = content
	a, ok := m.ByName[filename]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (m *CacheManager) CacheFileAtURL(ctx context.Context, url string) (*model.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.URLCalls = append(m.URLCalls, url)
	if m.Err != nil {
		return nil, m.Err
	}
	a, ok := m.ByURL[url]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (m *CacheManager) CacheQRCode(ctx context.Context, payload string) (*model.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PayloadCalls = append(m.PayloadCalls, payload)
	if m.Err != nil {
		return nil, m.Err
	}
	a, ok := m.ByPayload[payload]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}
