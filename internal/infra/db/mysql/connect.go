package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/bryanwahyu/docrisk/internal/infra/db/sqlstore"
)

var Dialect = sqlstore.Dialect{Name: "mysql"}

var schema = []string{`
CREATE TABLE IF NOT EXISTS assessments (
  id             VARCHAR(64)  NOT NULL PRIMARY KEY,
  tenant_id      VARCHAR(128) NOT NULL,
  format         VARCHAR(16)  NOT NULL,
  content_hash   CHAR(64)     NOT NULL,
  byte_length    BIGINT       NOT NULL,
  score          DOUBLE       NULL,
  band           VARCHAR(16)  NOT NULL,
  inconclusive   BOOLEAN      NOT NULL,
  manual_review  BOOLEAN      NOT NULL,
  critical       INT          NOT NULL,
  high           INT          NOT NULL,
  medium         INT          NOT NULL,
  low            INT          NOT NULL,
  findings_total INT          NOT NULL,
  archive_url    VARCHAR(512) NOT NULL,
  digest         CHAR(64)     NOT NULL,
  record_json    LONGTEXT     NOT NULL,
  created_at_ms  BIGINT       NOT NULL,
  INDEX idx_assessments_tenant_created (tenant_id, created_at_ms)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, `
CREATE TABLE IF NOT EXISTS assessment_components (
  assessment_id VARCHAR(64) NOT NULL,
  ordinal       INT         NOT NULL,
  name          VARCHAR(64) NOT NULL,
  score         DOUBLE      NOT NULL,
  valid         BOOLEAN     NOT NULL,
  reason        TEXT        NOT NULL,
  PRIMARY KEY (assessment_id, ordinal),
  FOREIGN KEY (assessment_id) REFERENCES assessments(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, `
CREATE TABLE IF NOT EXISTS assessment_findings (
  assessment_id VARCHAR(64) NOT NULL,
  ordinal       INT         NOT NULL,
  kind          VARCHAR(64) NOT NULL,
  severity      VARCHAR(16) NOT NULL,
  component     VARCHAR(64) NOT NULL,
  description   TEXT        NOT NULL,
  PRIMARY KEY (assessment_id, ordinal),
  INDEX idx_findings_kind (kind),
  FOREIGN KEY (assessment_id) REFERENCES assessments(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`}

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
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

// NewAssessmentRepository returns the repository for a MySQL connection.
func NewAssessmentRepository(db *sql.DB) *sqlstore.AssessmentRepository {
	return sqlstore.NewAssessmentRepository(db, Dialect)
}
