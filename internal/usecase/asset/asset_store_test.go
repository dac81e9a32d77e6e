package asset

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/fhuszti/assets-ms-go/internal/port"
)

func TestGetAsset_NotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.assets.GetAsset(context.Background(), 42); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}
}

func TestGetAsset_RepoError(t *testing.T) {
	f := newFixture(t)
	f.repo.GetErr = errors.New("db fail")
	if _, err := f.assets.GetAsset(context.Background(), 1); err == nil || err.Error() != "db fail" {
		t.Fatalf("expected db fail, got %v", err)
	}
}

func TestGetAssetPath(t *testing.T) {
	tests := []struct {
		name     string
		asset    *model.Asset
		wantPath string
		wantOK   bool
	}{
		{"ready", &model.Asset{ID: 7, ChannelID: 3, Extension: strPtr(".png")}, "/static/storage/3/7.png", true},
		{"no extension", &model.Asset{ID: 8, ChannelID: 3}, "/static/storage/3/8", true},
		{"in flight", &model.Asset{ID: 9, ChannelID: 3, InFlight: true}, "", false},
		{"failed", &model.Asset{ID: 10, ChannelID: 3, Failed: true}, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.repo.Put(tc.asset)

			p, ok := f.assets.GetAssetPath(context.Background(), tc.asset.ID)
			if ok != tc.wantOK || p != tc.wantPath {
				t.Errorf("GetAssetPath = %q, %v; want %q, %v", p, ok, tc.wantPath, tc.wantOK)
			}
			if len(f.repo.TouchedAt[tc.asset.ID]) != 1 {
				t.Error("last reference should be refreshed on every resolution")
			}
		})
	}
}

func TestGetAssetPath_UnknownNeverErrors(t *testing.T) {
	f := newFixture(t)
	if p, ok := f.assets.GetAssetPath(context.Background(), 404); ok || p != "" {
		t.Errorf("GetAssetPath(unknown) = %q, %v; want empty, false", p, ok)
	}
}

func TestAssetPath_ReferenceTimeIsMonotonic(t *testing.T) {
	f := newFixture(t)
	a := f.repo.Put(&model.Asset{ChannelID: 1, LastReference: f.clock.t})

	var prev time.Time
	for _, step := range []time.Duration{time.Minute, -time.Hour, 2 * time.Minute} {
		f.clock.t = f.clock.t.Add(step)
		f.assets.AssetPath(context.Background(), a, false)
		got := f.repo.Snapshot(a.ID).LastReference
		if got.Before(prev) {
			t.Fatalf("last reference went back from %v to %v", prev, got)
		}
		prev = got
	}
}

func TestAssetPath_ForceClearsInFlight(t *testing.T) {
	f := newFixture(t)
	a := f.repo.Put(&model.Asset{ChannelID: 1, Extension: strPtr(".jpg"), InFlight: true})

	p, ok := f.assets.AssetPath(context.Background(), a, true)
	if !ok || p != "/static/storage/1/1.jpg" {
		t.Fatalf("AssetPath(force) = %q, %v", p, ok)
	}
	if f.repo.Snapshot(a.ID).InFlight {
		t.Error("forced resolution should clear the in-flight flag")
	}
}

func TestReference(t *testing.T) {
	f := newFixture(t)
	ready := f.repo.Put(&model.Asset{ChannelID: 1, Extension: strPtr(".png")})
	pending := f.repo.Put(&model.Asset{ChannelID: 1, InFlight: true})
	failed := f.repo.Put(&model.Asset{ChannelID: 1, Failed: true})
	ctx := context.Background()

	if got := f.assets.Reference(ctx, ready); got != "/static/storage/1/1.png" {
		t.Errorf("ready reference = %q", got)
	}
	if got := f.assets.Reference(ctx, pending); got != "/cache/2" {
		t.Errorf("in-flight reference = %q; want /cache/2", got)
	}
	if got := f.assets.Reference(ctx, failed); got != "" {
		t.Errorf("failed reference = %q; want empty", got)
	}
}

func TestRemoveAsset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.repo.Put(&model.Asset{ChannelID: 1, Extension: strPtr(".png")})
	other := f.repo.Put(&model.Asset{ChannelID: 1, Extension: strPtr(".png")})
	for _, key := range []string{a.ObjectKey(), a.VersionKey(f.clock.t), other.ObjectKey()} {
		if err := f.store.Save(ctx, key, bytes.NewReader([]byte("x")), 1, ""); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	if err := f.assets.RemoveAsset(ctx, a); err != nil {
		t.Fatalf("RemoveAsset: %v", err)
	}
	for _, key := range []string{a.ObjectKey(), a.VersionKey(f.clock.t)} {
		if _, err := f.store.Stat(ctx, key); !errors.Is(err, port.ErrObjectNotFound) {
			t.Errorf("%s should be removed, got %v", key, err)
		}
	}
	if _, err := f.store.Stat(ctx, other.ObjectKey()); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}
	if f.repo.Snapshot(a.ID) != nil {
		t.Error("record should be deleted")
	}
}

func TestRemoveAsset_FileErrorKeepsRecord(t *testing.T) {
	f := newFixture(t)
	a := f.repo.Put(&model.Asset{ChannelID: 1})
	f.store.RemoveErr = port.ErrInternal

	if err := f.assets.RemoveAsset(context.Background(), a); !errors.Is(err, port.ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
	if f.repo.Snapshot(a.ID) == nil {
		t.Error("record must survive a failed file removal")
	}
}
