package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"microchat/internal/models"
)

// MediaRepo keeps media rows in postgres and content in Blobs.
type MediaRepo struct {
	db    *sqlx.DB
	blobs *Blobs
}

// NewMediaRepo constructs a MediaRepo.
func NewMediaRepo(db *sqlx.DB, blobs *Blobs) *MediaRepo {
	return &MediaRepo{db: db, blobs: blobs}
}

const mediaColumns = `m.id, m.hash, m.name, m.kind, m.mime_type, m.mime_subtype, m.size, m.path, m.loaded_at, m.loaded_by, m.preview_id`

type mediaRecord struct {
	models.Media
	PreviewID *int64 `db:"preview_id"`
}

// withPreviews converts records and loads their previews in one query.
func withPreviews(ctx context.Context, q sqlx.QueryerContext, records []mediaRecord) ([]models.Media, error) {
	ids := lo.Uniq(lo.FilterMap(records, func(r mediaRecord, _ int) (int64, bool) {
		if r.PreviewID == nil {
			return 0, false
		}
		return *r.PreviewID, true
	}))

	previews := map[int64]models.Media{}
	if len(ids) > 0 {
		var rows []mediaRecord
		if err := sqlx.SelectContext(ctx, q, &rows, `SELECT `+mediaColumns+` FROM media m WHERE m.id = ANY($1)`, pq.Array(ids)); err != nil {
			return nil, err
		}
		for _, row := range rows {
			previews[row.ID] = row.Media
		}
	}

	out := make([]models.Media, 0, len(records))
	for _, r := range records {
		media := r.Media
		if r.PreviewID != nil {
			if preview, ok := previews[*r.PreviewID]; ok {
				media.Preview = &preview
			}
		}
		out = append(out, media)
	}
	return out, nil
}

func (r *MediaRepo) GetByHash(ctx context.Context, hash string) (models.Media, error) {
	var record mediaRecord
	err := r.db.GetContext(ctx, &record, `SELECT `+mediaColumns+` FROM media m WHERE m.hash=$1`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Media{}, ErrNotFound
	}
	if err != nil {
		return models.Media{}, err
	}
	media, err := withPreviews(ctx, r.db, []mediaRecord{record})
	if err != nil {
		return models.Media{}, err
	}
	return media[0], nil
}

func (r *MediaRepo) GetByHashes(ctx context.Context, hashes []string) ([]models.Media, error) {
	if len(hashes) == 0 {
		return []models.Media{}, nil
	}
	var records []mediaRecord
	if err := r.db.SelectContext(ctx, &records, `SELECT `+mediaColumns+` FROM media m WHERE m.hash = ANY($1)`, pq.Array(hashes)); err != nil {
		return nil, err
	}
	found, err := withPreviews(ctx, r.db, records)
	if err != nil {
		return nil, err
	}
	byHash := lo.KeyBy(found, func(m models.Media) string { return m.Hash })

	out := make([]models.Media, 0, len(hashes))
	for _, hash := range hashes {
		media, ok := byHash[hash]
		if !ok {
			return nil, fmt.Errorf("media %s: %w", hash, ErrNotFound)
		}
		out = append(out, media)
	}
	return out, nil
}

func (r *MediaRepo) SaveMedia(ctx context.Context, media models.Media, tmpPath string) (models.Media, error) {
	if existing, err := r.GetByHash(ctx, media.Hash); err == nil {
		_ = os.Remove(tmpPath)
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return models.Media{}, err
	}

	path, err := r.blobs.Place(tmpPath, media.Hash)
	if err != nil {
		return models.Media{}, fmt.Errorf("place blob: %w", err)
	}
	media.Path = path

	var previewID *int64
	if media.Preview != nil {
		previewID = &media.Preview.ID
	}
	err = r.db.QueryRowxContext(ctx, `INSERT INTO media (hash, name, kind, mime_type, mime_subtype, size, path, loaded_by, preview_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (hash) DO NOTHING RETURNING id, loaded_at`,
		media.Hash, media.Name, media.Kind, media.Type, media.Subtype, media.Size, media.Path, media.LoadedBy, previewID).
		Scan(&media.ID, &media.LoadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race against an identical upload.
		return r.GetByHash(ctx, media.Hash)
	}
	return media, err
}

func (r *MediaRepo) CreateTempFile(ctx context.Context) (*os.File, error) {
	return r.blobs.CreateTemp()
}

func (r *MediaRepo) Open(ctx context.Context, media models.Media) (io.ReadCloser, error) {
	return r.blobs.Open(media.Path)
}
