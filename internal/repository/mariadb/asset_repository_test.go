package mariadb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fhuszti/assets-ms-go/internal/model"
)

var columns = []string{
	"id", "channel_id", "user_id", "filename", "extension", "mime_type", "file_size", "source_url", "cache_key",
	"created", "last_reference", "in_flight", "is_cached", "failed", "failure_message", "fetched_at",
}

func newRepo(t *testing.T) (*AssetRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("unexpected error when opening stub database: %s", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewAssetRepository(sqlDB), mock
}

func strPtr(s string) *string { return &s }

func TestAssetRepository_Create_Success(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a := &model.Asset{
		ChannelID:     3,
		Filename:      strPtr("img"),
		Extension:     strPtr(".png"),
		SourceURL:     strPtr("http://x/img.png"),
		CacheKey:      strPtr("abc"),
		Created:       now,
		LastReference: now,
		InFlight:      true,
		IsCached:      true,
	}

	mock.ExpectExec("INSERT INTO assets").
		WithArgs(a.ChannelID, a.UserID, a.Filename, a.Extension, a.MimeType, a.FileSize,
			a.SourceURL, a.CacheKey, a.Created, a.LastReference, a.InFlight, a.IsCached).
		WillReturnResult(sqlmock.NewResult(42, 1))

	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatalf("Create() returned unexpected error: %v", err)
	}
	if a.ID != 42 {
		t.Errorf("ID = %d; want 42", a.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestAssetRepository_Create_ExecError(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec("INSERT INTO assets").WillReturnError(errors.New("db.Exec failed"))

	err := repo.Create(context.Background(), &model.Asset{ChannelID: 1})
	if err == nil || err.Error() != "db.Exec failed" {
		t.Fatalf("expected 'db.Exec failed', got %v", err)
	}
}

func TestAssetRepository_GetByID(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(columns).AddRow(
		7, 3, nil, "img", ".png", "image/png", 1234, "http://x/img.png", "abc",
		now, now, false, true, false, nil, now,
	)
	mock.ExpectQuery(`SELECT .* FROM assets WHERE id = \?`).WithArgs(int64(7)).WillReturnRows(rows)

	a, err := repo.GetByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if a.ID != 7 || a.ChannelID != 3 || a.UserID != nil {
		t.Errorf("unexpected identity: %+v", a)
	}
	if a.Filename == nil || *a.Filename != "img" || a.Ext() != ".png" {
		t.Errorf("unexpected filename: %v %v", a.Filename, a.Extension)
	}
	if a.FileSize == nil || *a.FileSize != 1234 {
		t.Errorf("FileSize = %v", a.FileSize)
	}
	if !a.IsCached || a.InFlight || a.FetchedAt == nil {
		t.Errorf("unexpected flags: %+v", a)
	}
}

func TestAssetRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery(`SELECT .* FROM assets WHERE id = \?`).WillReturnRows(sqlmock.NewRows(columns))

	if _, err := repo.GetByID(context.Background(), 1); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v; want sql.ErrNoRows", err)
	}
}

func TestAssetRepository_GetCachedByKey_Miss(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery(`SELECT .* FROM assets WHERE channel_id = \? AND cache_key = \? AND is_cached = 1`).
		WithArgs(int64(3), "abc").
		WillReturnRows(sqlmock.NewRows(columns))

	a, err := repo.GetCachedByKey(context.Background(), 3, "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != nil {
		t.Errorf("asset = %+v; want nil", a)
	}
}

func TestAssetRepository_Updates(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		query string
		args  []driver.Value
		call  func(r *AssetRepository) error
	}{
		{
			name:  "mark in flight",
			query: `UPDATE assets SET in_flight = 1, failed = 0`,
			args:  []driver.Value{int64(1)},
			call:  func(r *AssetRepository) error { return r.MarkInFlight(context.Background(), 1) },
		},
		{
			name:  "clear in flight",
			query: `UPDATE assets SET in_flight = 0 WHERE id`,
			args:  []driver.Value{int64(1)},
			call:  func(r *AssetRepository) error { return r.ClearInFlight(context.Background(), 1) },
		},
		{
			name:  "mark fetched",
			query: `UPDATE assets\s+SET\s+mime_type`,
			args:  []driver.Value{"image/png", int64(10), at, int64(1)},
			call:  func(r *AssetRepository) error { return r.MarkFetched(context.Background(), 1, "image/png", 10, at) },
		},
		{
			name:  "mark not modified",
			query: `UPDATE assets SET in_flight = 0, failed = 0, failure_message = NULL, fetched_at`,
			args:  []driver.Value{at, int64(1)},
			call:  func(r *AssetRepository) error { return r.MarkNotModified(context.Background(), 1, at) },
		},
		{
			name:  "mark failed",
			query: `UPDATE assets SET in_flight = 0, failed = 1`,
			args:  []driver.Value{"status 500", at, int64(1)},
			call:  func(r *AssetRepository) error { return r.MarkFailed(context.Background(), 1, "status 500", at) },
		},
		{
			name:  "touch keeps the latest reference",
			query: `UPDATE assets SET last_reference = GREATEST\(last_reference, \?\)`,
			args:  []driver.Value{at, int64(1)},
			call:  func(r *AssetRepository) error { return r.Touch(context.Background(), 1, at) },
		},
		{
			name:  "delete",
			query: `DELETE FROM assets WHERE id = \?`,
			args:  []driver.Value{int64(1)},
			call:  func(r *AssetRepository) error { return r.Delete(context.Background(), 1) },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock := newRepo(t)
			mock.ExpectExec(tc.query).WithArgs(tc.args...).WillReturnResult(sqlmock.NewResult(0, 1))

			if err := tc.call(repo); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("there were unfulfilled expectations: %s", err)
			}
		})
	}
}

func TestAssetRepository_ListStaleCached(t *testing.T) {
	repo, mock := newRepo(t)
	cutoff := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-time.Hour)

	rows := sqlmock.NewRows(columns).
		AddRow(1, 3, nil, "a", ".png", "image/png", 10, nil, "k1", old, old, false, true, false, nil, nil).
		AddRow(2, 4, nil, "b", ".jpg", "image/jpeg", 20, nil, "k2", old, old, false, true, false, nil, nil)
	mock.ExpectQuery(`WHERE is_cached = 1 AND last_reference < \?`).WithArgs(cutoff).WillReturnRows(rows)

	got, err := repo.ListStaleCached(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ListStaleCached: %v", err)
	}
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestAssetRepository_ChannelUsage(t *testing.T) {
	repo, mock := newRepo(t)
	rows := sqlmock.NewRows([]string{"channel_id", "count", "total", "cached"}).
		AddRow(1, 3, 300, 100).
		AddRow(2, 1, 0, 0)
	mock.ExpectQuery(`FROM assets\s+GROUP BY channel_id`).WillReturnRows(rows)

	got, err := repo.ChannelUsage(context.Background())
	if err != nil {
		t.Fatalf("ChannelUsage: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d; want 2", len(got))
	}
	if got[0].CachedShare() < 0.33 || got[0].CachedShare() > 0.34 {
		t.Errorf("CachedShare = %v", got[0].CachedShare())
	}
	if got[1].CachedShare() != 0 {
		t.Errorf("CachedShare of empty channel = %v", got[1].CachedShare())
	}
}

func TestAssetRepository_MimeUsage_QueryError(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery(`GROUP BY mime_type`).WithArgs(int64(1)).WillReturnError(errors.New("boom"))

	if _, err := repo.MimeUsage(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
}
