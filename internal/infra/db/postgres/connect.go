package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/bryanwahyu/docrisk/internal/infra/db/sqlstore"
)

var Dialect = sqlstore.Dialect{Name: "postgres", Numbered: true}

var schema = []string{`
CREATE TABLE IF NOT EXISTS assessments (
  id             VARCHAR(64)      PRIMARY KEY,
  tenant_id      VARCHAR(128)     NOT NULL,
  format         VARCHAR(16)      NOT NULL,
  content_hash   CHAR(64)         NOT NULL,
  byte_length    BIGINT           NOT NULL,
  score          DOUBLE PRECISION NULL,
  band           VARCHAR(16)      NOT NULL,
  inconclusive   BOOLEAN          NOT NULL,
  manual_review  BOOLEAN          NOT NULL,
  critical       INTEGER          NOT NULL,
  high           INTEGER          NOT NULL,
  medium         INTEGER          NOT NULL,
  low            INTEGER          NOT NULL,
  findings_total INTEGER          NOT NULL,
  archive_url    TEXT             NOT NULL,
  digest         CHAR(64)         NOT NULL,
  record_json    TEXT             NOT NULL,
  created_at_ms  BIGINT           NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_assessments_tenant_created ON assessments (tenant_id, created_at_ms)`, `
CREATE TABLE IF NOT EXISTS assessment_components (
  assessment_id VARCHAR(64)      NOT NULL REFERENCES assessments(id) ON DELETE CASCADE,
  ordinal       INTEGER          NOT NULL,
  name          VARCHAR(64)      NOT NULL,
  score         DOUBLE PRECISION NOT NULL,
  valid         BOOLEAN          NOT NULL,
  reason        TEXT             NOT NULL,
  PRIMARY KEY (assessment_id, ordinal)
)`, `
CREATE TABLE IF NOT EXISTS assessment_findings (
  assessment_id VARCHAR(64) NOT NULL REFERENCES assessments(id) ON DELETE CASCADE,
  ordinal       INTEGER     NOT NULL,
  kind          VARCHAR(64) NOT NULL,
  severity      VARCHAR(16) NOT NULL,
  component     VARCHAR(64) NOT NULL,
  description   TEXT        NOT NULL,
  PRIMARY KEY (assessment_id, ordinal)
)`,
	`CREATE INDEX IF NOT EXISTS idx_findings_kind ON assessment_findings (kind)`,
}

// Connect opens a lib/pq pool and pings it.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the assessment tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	return sqlstore.Migrate(ctx, db, schema)
}

// NewAssessmentRepository returns the repository for a Postgres connection.
func NewAssessmentRepository(db *sql.DB) *sqlstore.AssessmentRepository {
	return sqlstore.NewAssessmentRepository(db, Dialect)
}
