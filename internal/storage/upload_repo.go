package storage

import (
	"context"
	"errors"
	"fmt"

	"resultzone/internal/models"
	"resultzone/internal/util"

	"github.com/jackc/pgx/v5"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

type UploadRepo struct {
	db *DB
}

func NewUploadRepo(db *DB) *UploadRepo {
	return &UploadRepo{db: db}
}

func (r *UploadRepo) UpsertUpload(ctx context.Context, u models.Upload) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO uploads (upload_id, filename, sha256, status, fail_reason, semester, regulation, page_count)
VALUES ($1::uuid, $2, $3, $4, NULLIF($5,''), NULLIF($6,''), NULLIF($7,''), $8)
ON CONFLICT (upload_id)
DO UPDATE SET
  filename = EXCLUDED.filename,
  sha256 = CASE WHEN EXCLUDED.sha256 = '' THEN uploads.sha256 ELSE EXCLUDED.sha256 END,
  status = EXCLUDED.status,
  fail_reason = EXCLUDED.fail_reason,
  semester = COALESCE(EXCLUDED.semester, uploads.semester),
  regulation = COALESCE(EXCLUDED.regulation, uploads.regulation),
  page_count = GREATEST(EXCLUDED.page_count, uploads.page_count),
  updated_at = NOW()`,
		u.UploadID, u.Filename, u.SHA256, u.Status, u.FailReason, u.Semester, u.Regulation, u.PageCount,
	)
	if err != nil {
		return fmt.Errorf("upsert upload: %w", err)
	}
	return nil
}

func (r *UploadRepo) GetUpload(ctx context.Context, uploadID string) (models.Upload, error) {
	var u models.Upload
	err := r.db.Pool.QueryRow(ctx, `
SELECT upload_id::text, filename, sha256, status, COALESCE(fail_reason,''), COALESCE(semester,''),
       COALESCE(regulation,''), page_count, created_at, updated_at
FROM uploads
WHERE upload_id=$1::uuid`, uploadID).
		Scan(&u.UploadID, &u.Filename, &u.SHA256, &u.Status, &u.FailReason, &u.Semester, &u.Regulation, &u.PageCount, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Upload{}, fmt.Errorf("get upload %s: %w", uploadID, util.ErrUploadNotFound)
	}
	if err != nil {
		return models.Upload{}, fmt.Errorf("get upload: %w", err)
	}
	return u, nil
}

func (r *UploadRepo) ListUploads(ctx context.Context, limit int) ([]models.Upload, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT upload_id::text, filename, sha256, status, COALESCE(fail_reason,''), COALESCE(semester,''),
       COALESCE(regulation,''), page_count, created_at, updated_at
FROM uploads
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	out := make([]models.Upload, 0)
	for rows.Next() {
		var u models.Upload
		if err := rows.Scan(&u.UploadID, &u.Filename, &u.SHA256, &u.Status, &u.FailReason, &u.Semester, &u.Regulation, &u.PageCount, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return out, nil
}

// FindBySHA returns the newest processed upload with the given content hash.
func (r *UploadRepo) FindBySHA(ctx context.Context, sha string) (models.Upload, bool, error) {
	var u models.Upload
	err := r.db.Pool.QueryRow(ctx, `
SELECT upload_id::text, filename, sha256, status, COALESCE(fail_reason,''), COALESCE(semester,''),
       COALESCE(regulation,''), page_count, created_at, updated_at
FROM uploads
WHERE sha256=$1 AND status='processed'
ORDER BY created_at DESC
LIMIT 1`, sha).
		Scan(&u.UploadID, &u.Filename, &u.SHA256, &u.Status, &u.FailReason, &u.Semester, &u.Regulation, &u.PageCount, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Upload{}, false, nil
	}
	if err != nil {
		return models.Upload{}, false, fmt.Errorf("find upload by sha: %w", err)
	}
	return u, true, nil
}
