package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool

	schemaMu       sync.Mutex
	schemaPrepared bool
}

func NewDB(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS uploads (
  upload_id UUID PRIMARY KEY,
  filename TEXT NOT NULL,
  sha256 TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('pending','processing','processed','failed')),
  fail_reason TEXT,
  semester TEXT,
  regulation TEXT,
  page_count INT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_uploads_sha ON uploads(sha256);

CREATE TABLE IF NOT EXISTS institute_records (
  upload_id UUID NOT NULL REFERENCES uploads(upload_id) ON DELETE CASCADE,
  record_seq INT NOT NULL,
  page INT NOT NULL,
  institution_code TEXT NOT NULL,
  institution_name TEXT NOT NULL,
  district TEXT NOT NULL,
  PRIMARY KEY (upload_id, record_seq)
);

CREATE TABLE IF NOT EXISTS student_records (
  upload_id UUID NOT NULL,
  record_seq INT NOT NULL,
  position INT NOT NULL,
  roll TEXT NOT NULL,
  referred_subjects JSONB,
  gpa DOUBLE PRECISION,
  PRIMARY KEY (upload_id, record_seq, position),
  FOREIGN KEY (upload_id, record_seq) REFERENCES institute_records(upload_id, record_seq) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_student_records_roll ON student_records(upload_id, roll);
`

// EnsureSchema creates the tables on first use so a fresh database works
// without a separate migration step.
func (d *DB) EnsureSchema(ctx context.Context) error {
	d.schemaMu.Lock()
	defer d.schemaMu.Unlock()
	if d.schemaPrepared {
		return nil
	}
	if _, err := d.Pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	d.schemaPrepared = true
	return nil
}
