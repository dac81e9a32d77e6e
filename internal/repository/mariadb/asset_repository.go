package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/fhuszti/assets-ms-go/internal/port"
)

type AssetRepository struct {
	db *sql.DB
}

// compile-time check: *AssetRepository must satisfy port.AssetRepository
var _ port.AssetRepository = (*AssetRepository)(nil)

func NewAssetRepository(db *sql.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

const assetColumns = `id, channel_id, user_id, filename, extension, mime_type, file_size, source_url, cache_key,
        created, last_reference, in_flight, is_cached, failed, failure_message, fetched_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*model.Asset, error) {
	var a model.Asset
	var fetchedAt sql.NullTime
	if err := row.Scan(
		&a.ID, &a.ChannelID, &a.UserID, &a.Filename, &a.Extension,
		&a.MimeType, &a.FileSize, &a.SourceURL, &a.CacheKey,
		&a.Created, &a.LastReference, &a.InFlight, &a.IsCached,
		&a.Failed, &a.FailureMessage, &fetchedAt,
	); err != nil {
		return nil, err
	}
	if fetchedAt.Valid {
		a.FetchedAt = &fetchedAt.Time
	}
	return &a, nil
}

func (r *AssetRepository) Create(ctx context.Context, asset *model.Asset) error {
	logger.Debugf(ctx, "creating database record for asset of channel #%d...", asset.ChannelID)

	const query = `
      INSERT INTO assets
        (channel_id, user_id, filename, extension, mime_type, file_size, source_url, cache_key,
         created, last_reference, in_flight, is_cached)
      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	res, err := r.db.ExecContext(ctx, query,
		asset.ChannelID, asset.UserID, asset.Filename, asset.Extension,
		asset.MimeType, asset.FileSize, asset.SourceURL, asset.CacheKey,
		asset.Created, asset.LastReference, asset.InFlight, asset.IsCached,
	)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	asset.ID = id
	return nil
}

func (r *AssetRepository) GetByID(ctx context.Context, id int64) (*model.Asset, error) {
	logger.Debugf(ctx, "fetching asset #%d from the database...", id)

	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = ?`
	return scanAsset(r.db.QueryRowContext(ctx, query, id))
}

func (r *AssetRepository) GetCachedByKey(ctx context.Context, channelID int64, key string) (*model.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE channel_id = ? AND cache_key = ? AND is_cached = 1`
	a, err := scanAsset(r.db.QueryRowContext(ctx, query, channelID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *AssetRepository) exec(ctx context.Context, query string, args ...any) error {
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *AssetRepository) MarkInFlight(ctx context.Context, id int64) error {
	return r.exec(ctx, `UPDATE assets SET in_flight = 1, failed = 0, failure_message = NULL WHERE id = ?`, id)
}

func (r *AssetRepository) ClearInFlight(ctx context.Context, id int64) error {
	return r.exec(ctx, `UPDATE assets SET in_flight = 0 WHERE id = ?`, id)
}

func (r *AssetRepository) MarkFetched(ctx context.Context, id int64, mimeType string, size int64, at time.Time) error {
	logger.Debugf(ctx, "marking asset #%d as fetched (%s, %d bytes)...", id, mimeType, size)

	const query = `
      UPDATE assets
      SET
        mime_type       = ?,
        file_size       = ?,
        in_flight       = 0,
        failed          = 0,
        failure_message = NULL,
        fetched_at      = ?
      WHERE id = ?
    `
	return r.exec(ctx, query, mimeType, size, at, id)
}

func (r *AssetRepository) MarkNotModified(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, `UPDATE assets SET in_flight = 0, failed = 0, failure_message = NULL, fetched_at = ? WHERE id = ?`, at, id)
}

func (r *AssetRepository) MarkFailed(ctx context.Context, id int64, reason string, at time.Time) error {
	logger.Debugf(ctx, "marking asset #%d as failed: %s", id, reason)
	return r.exec(ctx, `UPDATE assets SET in_flight = 0, failed = 1, failure_message = ?, fetched_at = ? WHERE id = ?`, reason, at, id)
}

// Touch never moves last_reference backwards.
func (r *AssetRepository) Touch(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, `UPDATE assets SET last_reference = GREATEST(last_reference, ?) WHERE id = ?`, at, id)
}

func (r *AssetRepository) Delete(ctx context.Context, id int64) error {
	logger.Debugf(ctx, "deleting asset #%d from the database...", id)
	return r.exec(ctx, `DELETE FROM assets WHERE id = ?`, id)
}

func (r *AssetRepository) list(ctx context.Context, query string, args ...any) ([]*model.Asset, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AssetRepository) ListByChannel(ctx context.Context, channelID int64) ([]*model.Asset, error) {
	return r.list(ctx, `SELECT `+assetColumns+` FROM assets WHERE channel_id = ? ORDER BY id`, channelID)
}

func (r *AssetRepository) ListStaleCached(ctx context.Context, before time.Time) ([]*model.Asset, error) {
	logger.Debugf(ctx, "listing cached assets last referenced before %s...", before.Format(time.RFC3339))
	return r.list(ctx, `SELECT `+assetColumns+` FROM assets WHERE is_cached = 1 AND last_reference < ? ORDER BY id`, before)
}

func (r *AssetRepository) ChannelUsage(ctx context.Context) ([]model.ChannelUsage, error) {
	const query = `
      SELECT channel_id,
             COUNT(*),
             COALESCE(SUM(file_size), 0),
             COALESCE(SUM(CASE WHEN is_cached = 1 THEN file_size ELSE 0 END), 0)
      FROM assets
      GROUP BY channel_id
      ORDER BY channel_id
    `
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.ChannelUsage
	for rows.Next() {
		var u model.ChannelUsage
		if err := rows.Scan(&u.ChannelID, &u.AssetCount, &u.TotalBytes, &u.CachedBytes); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *AssetRepository) MimeUsage(ctx context.Context, channelID int64) ([]model.MimeUsage, error) {
	const query = `
      SELECT COALESCE(mime_type, ''), COUNT(*), COALESCE(SUM(file_size), 0)
      FROM assets
      WHERE channel_id = ?
      GROUP BY mime_type
      ORDER BY COUNT(*) DESC
    `
	rows, err := r.db.QueryContext(ctx, query, channelID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.MimeUsage
	for rows.Next() {
		var u model.MimeUsage
		if err := rows.Scan(&u.MimeType, &u.AssetCount, &u.TotalBytes); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
