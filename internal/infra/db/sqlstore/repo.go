// Package sqlstore is the database/sql assessment repository shared by the
// mysql, postgres and sqlite drivers. Only placeholders and DDL differ
// between them.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

// Dialect describes how a driver spells bind parameters.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of ?.
	Numbered bool
}

// Rebind rewrites ? placeholders for the dialect.
func (d Dialect) Rebind(q string) string {
	if !d.Numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// AssessmentRepository implements document.Repository. The frozen record
// is stored whole as JSON; components and findings are also written as
// rows so they can be queried.
type AssessmentRepository struct {
	db      *sql.DB
	dialect Dialect
}

var _ document.Repository = (*AssessmentRepository)(nil)

func NewAssessmentRepository(db *sql.DB, d Dialect) *AssessmentRepository {
	return &AssessmentRepository{db: db, dialect: d}
}

// Save writes the assessment, its components and its findings in one
// transaction. Frozen records are never overwritten.
func (r *AssessmentRepository) Save(ctx context.Context, a document.Assessment, archiveURL, digest string) error {
	record, err := a.Marshal()
	if err != nil {
		return err
	}
	counts := a.Counts()
	var score sql.NullFloat64
	if a.Verdict.Score != nil {
		score = sql.NullFloat64{Float64: *a.Verdict.Score, Valid: true}
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	const insAssessment = `
INSERT INTO assessments
(id, tenant_id, format, content_hash, byte_length,
 score, band, inconclusive, manual_review,
 critical, high, medium, low, findings_total,
 archive_url, digest, record_json, created_at_ms)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
	if _, err := tx.ExecContext(ctx, r.dialect.Rebind(insAssessment),
		string(a.ID), a.TenantID, string(a.Format), a.ContentHash, a.ByteLength,
		score, string(a.Verdict.Band), a.Verdict.Inconclusive, a.Verdict.ManualReview,
		counts.Critical, counts.High, counts.Medium, counts.Low, counts.Total,
		archiveURL, digest, string(record), created.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert assessment %s: %w", a.ID, err)
	}

	const insComponent = `
INSERT INTO assessment_components (assessment_id, ordinal, name, score, valid, reason)
VALUES (?,?,?,?,?,?)`
	for i, c := range a.Components {
		if _, err := tx.ExecContext(ctx, r.dialect.Rebind(insComponent),
			string(a.ID), i, c.Name, c.Value, c.Valid, c.Reason); err != nil {
			return fmt.Errorf("insert component %s: %w", c.Name, err)
		}
	}

	const insFinding = `
INSERT INTO assessment_findings (assessment_id, ordinal, kind, severity, component, description)
VALUES (?,?,?,?,?,?)`
	for i, f := range a.Findings {
		if _, err := tx.ExecContext(ctx, r.dialect.Rebind(insFinding),
			string(a.ID), i, string(f.Kind), string(f.Severity), f.Component, f.Description); err != nil {
			return fmt.Errorf("insert finding %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assessment %s: %w", a.ID, err)
	}
	return nil
}

// Get by ID + Tenant
func (r *AssessmentRepository) Get(ctx context.Context, tenant string, id document.ID) (*document.Assessment, error) {
	const q = `SELECT record_json FROM assessments WHERE tenant_id=? AND id=?`
	var record string
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(q), tenant, string(id)).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get assessment %s: %w", id, err)
	}
	return document.UnmarshalAssessment([]byte(record))
}

// Latest assessments per tenant, newest first.
func (r *AssessmentRepository) Latest(ctx context.Context, tenant string, limit int) ([]document.Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, tenant_id, format, content_hash, score, band, inconclusive, manual_review,
       critical, high, medium, low, findings_total, archive_url, digest, created_at_ms
FROM assessments
WHERE tenant_id=? ORDER BY created_at_ms DESC, id LIMIT ?`
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), tenant, limit)
	if err != nil {
		return nil, fmt.Errorf("querying assessments: %w", err)
	}
	defer rows.Close()

	out := []document.Summary{}
	for rows.Next() {
		var (
			s       document.Summary
			id      string
			format  string
			band    string
			score   sql.NullFloat64
			created int64
		)
		if err := rows.Scan(&id, &s.TenantID, &format, &s.ContentHash, &score, &band,
			&s.Inconclusive, &s.ManualReview,
			&s.Counts.Critical, &s.Counts.High, &s.Counts.Medium, &s.Counts.Low, &s.Counts.Total,
			&s.ArchiveURL, &s.Digest, &created,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		s.ID, s.Format, s.Band = document.ID(id), document.Format(format), document.Band(band)
		if score.Valid {
			v := score.Float64
			s.Score = &v
		}
		s.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Summary counts assessments per band since the given time.
func (r *AssessmentRepository) Summary(ctx context.Context, tenant string, since time.Time) (document.BandCounts, error) {
	const q = `
SELECT COUNT(*),
       COALESCE(SUM(CASE WHEN band='LOW' THEN 1 ELSE 0 END),0),
       COALESCE(SUM(CASE WHEN band='MEDIUM' THEN 1 ELSE 0 END),0),
       COALESCE(SUM(CASE WHEN band='HIGH' THEN 1 ELSE 0 END),0),
       COALESCE(SUM(CASE WHEN band='CRITICAL' THEN 1 ELSE 0 END),0),
       COALESCE(SUM(CASE WHEN inconclusive THEN 1 ELSE 0 END),0),
       COALESCE(SUM(CASE WHEN manual_review THEN 1 ELSE 0 END),0)
FROM assessments
WHERE tenant_id=? AND created_at_ms >= ?`
	var c document.BandCounts
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(q), tenant, since.UnixMilli()).Scan(
		&c.Total, &c.Low, &c.Medium, &c.High, &c.Critical, &c.Inconclusive, &c.ManualReview)
	if err != nil {
		return document.BandCounts{}, fmt.Errorf("summary for %s: %w", tenant, err)
	}
	return c, nil
}

// Migrate applies DDL statements one at a time; every statement must be
// idempotent (IF NOT EXISTS).
func Migrate(ctx context.Context, db *sql.DB, stmts []string) error {
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
