package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bryanwahyu/docrisk/internal/infra/db/sqlstore"
)

var Dialect = sqlstore.Dialect{Name: "sqlite"}

var schema = []string{`
CREATE TABLE IF NOT EXISTS assessments (
    id             TEXT PRIMARY KEY,
    tenant_id      TEXT NOT NULL,
    format         TEXT NOT NULL,
    content_hash   TEXT NOT NULL,
    byte_length    INTEGER NOT NULL,
    score          REAL,
    band           TEXT NOT NULL,
    inconclusive   BOOLEAN NOT NULL,
    manual_review  BOOLEAN NOT NULL,
    critical       INTEGER NOT NULL,
    high           INTEGER NOT NULL,
    medium         INTEGER NOT NULL,
    low            INTEGER NOT NULL,
    findings_total INTEGER NOT NULL,
    archive_url    TEXT NOT NULL,
    digest         TEXT NOT NULL,
    record_json    TEXT NOT NULL,
    created_at_ms  INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_assessments_tenant_created ON assessments(tenant_id, created_at_ms)`, `
CREATE TABLE IF NOT EXISTS assessment_components (
    assessment_id TEXT NOT NULL REFERENCES assessments(id) ON DELETE CASCADE,
    ordinal       INTEGER NOT NULL,
    name          TEXT NOT NULL,
    score         REAL NOT NULL,
    valid         BOOLEAN NOT NULL,
    reason        TEXT NOT NULL,
    PRIMARY KEY (assessment_id, ordinal)
)`, `
CREATE TABLE IF NOT EXISTS assessment_findings (
    assessment_id TEXT NOT NULL REFERENCES assessments(id) ON DELETE CASCADE,
    ordinal       INTEGER NOT NULL,
    kind          TEXT NOT NULL,
    severity      TEXT NOT NULL,
    component     TEXT NOT NULL,
    description   TEXT NOT NULL,
    PRIMARY KEY (assessment_id, ordinal)
)`,
	`CREATE INDEX IF NOT EXISTS idx_findings_kind ON assessment_findings(kind)`,
}

// Open opens or creates the database file and applies the schema. Use
// ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer; an in-memory database also exists only per connection
	db.SetMaxOpenConns(1)

	if err := sqlstore.Migrate(ctx, db, schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// NewAssessmentRepository returns the repository for a SQLite database.
func NewAssessmentRepository(db *sql.DB) *sqlstore.AssessmentRepository {
	return sqlstore.NewAssessmentRepository(db, Dialect)
}
