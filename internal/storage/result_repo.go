package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"resultzone/internal/models"
)

type ResultRepo struct {
	db *DB
}

func NewResultRepo(db *DB) *ResultRepo {
	return &ResultRepo{db: db}
}

// ReplaceResults stores a fresh parse for an upload. Earlier rows for the
// upload are dropped first, since every parse rebuilds records from scratch.
func (r *ResultRepo) ReplaceResults(ctx context.Context, uploadID string, meta models.DocumentMeta, pageCount int, records []models.InstituteRecord) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx replace results: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM institute_records WHERE upload_id=$1::uuid`, uploadID); err != nil {
		return fmt.Errorf("clear results %s: %w", uploadID, err)
	}
	for seq, rec := range records {
		_, err := tx.Exec(ctx, `
INSERT INTO institute_records (upload_id, record_seq, page, institution_code, institution_name, district)
VALUES ($1::uuid, $2, $3, $4, $5, $6)`,
			uploadID, seq, rec.Page, rec.InstitutionCode, rec.InstitutionName, rec.District)
		if err != nil {
			return fmt.Errorf("insert institute record %d: %w", seq, err)
		}
		for pos, s := range rec.Students {
			subjects, err := encodeSubjects(s)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, `
INSERT INTO student_records (upload_id, record_seq, position, roll, referred_subjects, gpa)
VALUES ($1::uuid, $2, $3, $4, $5::jsonb, $6)`,
				uploadID, seq, pos, s.Roll, subjects, s.GPA)
			if err != nil {
				return fmt.Errorf("insert student %s: %w", s.Roll, err)
			}
		}
	}
	_, err = tx.Exec(ctx, `
UPDATE uploads SET semester=NULLIF($2,''), regulation=NULLIF($3,''), page_count=$4, updated_at=NOW()
WHERE upload_id=$1::uuid`, uploadID, meta.Semester, meta.Regulation, pageCount)
	if err != nil {
		return fmt.Errorf("update upload meta: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit results tx: %w", err)
	}
	return nil
}

func (r *ResultRepo) ListRecords(ctx context.Context, uploadID string) ([]models.InstituteRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT i.record_seq, i.page, i.institution_code, i.institution_name, i.district,
       s.roll, s.referred_subjects::text, s.gpa
FROM institute_records i
LEFT JOIN student_records s ON s.upload_id = i.upload_id AND s.record_seq = i.record_seq
WHERE i.upload_id=$1::uuid
ORDER BY i.record_seq ASC, s.position ASC`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := make([]models.InstituteRecord, 0)
	lastSeq := -1
	for rows.Next() {
		var (
			seq      int
			rec      models.InstituteRecord
			roll     *string
			subjects *string
			gpa      *float64
		)
		if err := rows.Scan(&seq, &rec.Page, &rec.InstitutionCode, &rec.InstitutionName, &rec.District, &roll, &subjects, &gpa); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if seq != lastSeq {
			rec.Students = make([]models.StudentRecord, 0)
			out = append(out, rec)
			lastSeq = seq
		}
		if roll == nil {
			continue
		}
		s, err := decodeStudent(*roll, subjects, gpa)
		if err != nil {
			return nil, err
		}
		cur := &out[len(out)-1]
		cur.Students = append(cur.Students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (r *ResultRepo) FindRoll(ctx context.Context, uploadID, roll string) ([]models.StudentHit, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT i.page, i.institution_code, i.institution_name, i.district,
       s.roll, s.referred_subjects::text, s.gpa
FROM student_records s
JOIN institute_records i ON i.upload_id = s.upload_id AND i.record_seq = s.record_seq
WHERE s.upload_id=$1::uuid AND s.roll=$2
ORDER BY s.record_seq ASC, s.position ASC`, uploadID, roll)
	if err != nil {
		return nil, fmt.Errorf("find roll: %w", err)
	}
	defer rows.Close()

	out := make([]models.StudentHit, 0)
	for rows.Next() {
		var (
			h        models.StudentHit
			hitRoll  string
			subjects *string
			gpa      *float64
		)
		if err := rows.Scan(&h.Page, &h.InstitutionCode, &h.InstitutionName, &h.District, &hitRoll, &subjects, &gpa); err != nil {
			return nil, fmt.Errorf("scan roll hit: %w", err)
		}
		s, err := decodeStudent(hitRoll, subjects, gpa)
		if err != nil {
			return nil, err
		}
		h.Student = s
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roll hits: %w", err)
	}
	return out, nil
}

// encodeSubjects maps a GPA row (nil subjects) to SQL NULL and a subject
// row, even an empty one, to a JSON array.
func encodeSubjects(s models.StudentRecord) (*string, error) {
	if s.ReferredSubjects == nil {
		return nil, nil
	}
	b, err := json.Marshal(s.ReferredSubjects)
	if err != nil {
		return nil, fmt.Errorf("marshal subjects for %s: %w", s.Roll, err)
	}
	raw := string(b)
	return &raw, nil
}

func decodeStudent(roll string, subjects *string, gpa *float64) (models.StudentRecord, error) {
	s := models.StudentRecord{Roll: roll, GPA: gpa}
	if subjects != nil {
		if err := json.Unmarshal([]byte(*subjects), &s.ReferredSubjects); err != nil {
			return models.StudentRecord{}, fmt.Errorf("decode subjects for %s: %w", roll, err)
		}
	}
	return s, nil
}
