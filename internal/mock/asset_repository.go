package mock

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/fhuszti/assets-ms-go/internal/port"
)

// AssetRepo is an in-memory port.AssetRepository for tests.
// Records are copied in and out so callers never share state with the store.
type AssetRepo struct {
	mu     sync.Mutex
	nextID int64
	Assets map[int64]*model.Asset

	CreateErr      error
	GetErr         error
	MarkErr        error
	DeleteErr      error
	ListErr        error
	DeleteErrForID map[int64]error

	CreateCalls  int
	DeletedIDs   []int64
	FetchedIDs   []int64
	FailedIDs    []int64
	TouchedAt    map[int64][]time.Time
	InFlightSets int
}

var _ port.AssetRepository = (*AssetRepo)(nil)

func NewAssetRepo() *AssetRepo {
	return &AssetRepo{Assets: make(map[int64]*model.Asset), TouchedAt: make(map[int64][]time.Time)}
}

func clone(a *model.Asset) *model.Asset {
	c := *a
	return &c
}

// Put stores a copy of a, assigning an id when it has none.
func (r *AssetRepo) Put(a *model.Asset) *model.Asset {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == 0 {
		r.nextID++
		a.ID = r.nextID
	} else if a.ID > r.nextID {
		r.nextID = a.ID
	}
	r.Assets[a.ID] = clone(a)
	return a
}

// Snapshot returns a copy of the stored asset, nil if unknown.
func (r *AssetRepo) Snapshot(id int64) *model.Asset {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.Assets[id]
	if !ok {
		return nil
	}
	return clone(a)
}

func (r *AssetRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Assets)
}

func (r *AssetRepo) Create(ctx context.Context, a *model.Asset) error {
	r.mu.Lock()
	r.CreateCalls++
	err := r.CreateErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.Put(a)
	return nil
}

func (r *AssetRepo) GetByID(ctx context.Context, id int64) (*model.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.GetErr != nil {
		return nil, r.GetErr
	}
	a, ok := r.Assets[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return clone(a), nil
}

func (r *AssetRepo) GetCachedByKey(ctx context.Context, channelID int64, key string) (*model.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.GetErr != nil {
		return nil, r.GetErr
	}
	for _, a := range r.Assets {
		if a.ChannelID == channelID && a.IsCached && a.CacheKey != nil && *a.CacheKey == key {
			return clone(a), nil
		}
	}
	return nil, nil
}

func (r *AssetRepo) update(id int64, fn func(a *model.Asset)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.MarkErr != nil {
		return r.MarkErr
	}
	if a, ok := r.Assets[id]; ok {
		fn(a)
	}
	return nil
}

func (r *AssetRepo) MarkInFlight(ctx context.Context, id int64) error {
	return r.update(id, func(a *model.Asset) {
		r.InFlightSets++
		a.InFlight, a.Failed, a.FailureMessage = true, false, nil
	})
}

func (r *AssetRepo) ClearInFlight(ctx context.Context, id int64) error {
	return r.update(id, func(a *model.Asset) { a.InFlight = false })
}

func (r *AssetRepo) MarkFetched(ctx context.Context, id int64, mimeType string, size int64, at time.Time) error {
	return r.update(id, func(a *model.Asset) {
		r.FetchedIDs = append(r.FetchedIDs, id)
		a.MimeType, a.FileSize = &mimeType, &size
		a.InFlight, a.Failed, a.FailureMessage = false, false, nil
		a.FetchedAt = &at
	})
}

func (r *AssetRepo) MarkNotModified(ctx context.Context, id int64, at time.Time) error {
	return r.update(id, func(a *model.Asset) {
		a.InFlight, a.Failed, a.FailureMessage = false, false, nil
		a.FetchedAt = &at
	})
}

func (r *AssetRepo) MarkFailed(ctx context.Context, id int64, reason string, at time.Time) error {
	return r.update(id, func(a *model.Asset) {
		r.FailedIDs = append(r.FailedIDs, id)
		a.InFlight, a.Failed, a.FailureMessage = false, true, &reason
		a.FetchedAt = &at
	})
}

func (r *AssetRepo) Touch(ctx context.Context, id int64, at time.Time) error {
	return r.update(id, func(a *model.Asset) {
		r.TouchedAt[id] = append(r.TouchedAt[id], at)
		if at.After(a.LastReference) {
			a.LastReference = at
		}
	})
}

func (r *AssetRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.DeleteErr != nil {
		return r.DeleteErr
	}
	if err := r.DeleteErrForID[id]; err != nil {
		return err
	}
	r.DeletedIDs = append(r.DeletedIDs, id)
	delete(r.Assets, id)
	return nil
}

func (r *AssetRepo) filter(keep func(a *model.Asset) bool) ([]*model.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	var out []*model.Asset
	for _, a := range r.Assets {
		if keep(a) {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *AssetRepo) ListByChannel(ctx context.Context, channelID int64) ([]*model.Asset, error) {
	return r.filter(func(a *model.Asset) bool { return a.ChannelID == channelID })
}

func (r *AssetRepo) ListStaleCached(ctx context.Context, before time.Time) ([]*model.Asset, error) {
	return r.filter(func(a *model.Asset) bool { return a.IsCached && a.LastReference.Before(before) })
}

func (r *AssetRepo) ChannelUsage(ctx context.Context) ([]model.ChannelUsage, error) {
	all, err := r.filter(func(*model.Asset) bool { return true })
	if err != nil {
		return nil, err
	}
	byChannel := map[int64]*model.ChannelUsage{}
	var order []int64
	for _, a := range all {
		u, ok := byChannel[a.ChannelID]
		if !ok {
			u = &model.ChannelUsage{ChannelID: a.ChannelID}
			byChannel[a.ChannelID] = u
			order = append(order, a.ChannelID)
		}
		u.AssetCount++
		if a.FileSize != nil {
			u.TotalBytes += *a.FileSize
			if a.IsCached {
				u.CachedBytes += *a.FileSize
			}
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]model.ChannelUsage, 0, len(order))
	for _, id := range order {
		out = append(out, *byChannel[id])
	}
	return out, nil
}

func (r *AssetRepo) MimeUsage(ctx context.Context, channelID int64) ([]model.MimeUsage, error) {
	all, err := r.ListByChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	byMime := map[string]*model.MimeUsage{}
	var order []string
	for _, a := range all {
		mt := ""
		if a.MimeType != nil {
			mt = *a.MimeType
		}
		u, ok := byMime[mt]
		if !ok {
			u = &model.MimeUsage{MimeType: mt}
			byMime[mt] = u
			order = append(order, mt)
		}
		u.AssetCount++
		if a.FileSize != nil {
			u.TotalBytes += *a.FileSize
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return byMime[order[i]].AssetCount > byMime[order[j]].AssetCount })
	out := make([]model.MimeUsage, 0, len(order))
	for _, mt := range order {
		out = append(out, *byMime[mt])
	}
	return out, nil
}
