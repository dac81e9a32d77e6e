package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/fhuszti/assets-ms-go/internal/port"
)

// AssetStore serves assets from a map, resolving paths like the real store.
type AssetStore struct {
	mu sync.Mutex

	Assets    map[int64]*model.Asset
	GetErr    error
	RemoveErr error

	Forced  []int64
	Removed []int64
}

var _ port.AssetStore = (*AssetStore)(nil)

func NewAssetStore(assets ...*model.Asset) *AssetStore {
	s := &AssetStore{Assets: make(map[int64]*model.Asset)}
	for _, a := range assets {
		s.Assets[a.ID] = a
	}
	return s
}

func (s *AssetStore) GetAsset(ctx context.Context, id int64) (*model.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	a, ok := s.Assets[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *a
	return &c, nil
}

func (s *AssetStore) GetAssetPath(ctx context.Context, id int64) (string, bool) {
	a, err := s.GetAsset(ctx, id)
	if err != nil {
		return "", false
	}
	return s.AssetPath(ctx, a, false)
}

func (s *AssetStore) AssetPath(ctx context.Context, a *model.Asset, force bool) (string, bool) {
	if a.Failed || (a.InFlight && !force) {
		return "", false
	}
	if force {
		s.mu.Lock()
		s.Forced = append(s.Forced, a.ID)
		s.mu.Unlock()
	}
	return "/static/storage/" + a.ObjectKey(), true
}

func (s *AssetStore) Reference(ctx context.Context, a *model.Asset) string {
	if a.Failed {
		return ""
	}
	if p, ok := s.AssetPath(ctx, a, false); ok {
		return p
	}
	return fmt.Sprintf("/cache/%d", a.ID)
}

func (s *AssetStore) RemoveAsset(ctx context.Context, a *model.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RemoveErr != nil {
		return s.RemoveErr
	}
	s.Removed = append(s.Removed, a.ID)
	delete(s.Assets, a.ID)
	return nil
}
