package document

import (
	"context"
	"time"
)

// ScreeningHit is one watchlist match for a candidate entity name.
type ScreeningHit struct {
	Name      string `json:"name"`
	Matched   string `json:"matched"`
	Category  string `json:"category"` // pep | sanction | criminal
	RiskLevel string `json:"risk_level"`
}

// ScreeningResult is the screening collaborator's answer. Score is a health
// score: 100 means no risk found.
type ScreeningResult struct {
	Score float64        `json:"score"`
	Hits  []ScreeningHit `json:"hits"`
}

// Screener checks extracted entity names against watchlists.
type Screener interface {
	Screen(ctx context.Context, names []string) (ScreeningResult, error)
}

// SemanticResult is the language-model consistency check.
type SemanticResult struct {
	Score          float64  `json:"score"`
	Contradictions []string `json:"contradictions"`
}

// FormatResult scores the layout/format quality of the extracted text.
type FormatResult struct {
	Score  float64  `json:"score"`
	Issues []string `json:"issues"`
}

// FormatAssessor scores text format quality.
type FormatAssessor interface {
	AssessFormat(ctx context.Context, ext Extraction) (FormatResult, error)
}

// Repository port for persisting frozen assessments. Save must be atomic:
// either the whole assessment is visible or none of it.
type Repository interface {
	Save(ctx context.Context, a Assessment, archiveURL, digest string) error
	Get(ctx context.Context, tenant string, id ID) (*Assessment, error)
	Latest(ctx context.Context, tenant string, limit int) ([]Summary, error)
	Summary(ctx context.Context, tenant string, since time.Time) (BandCounts, error)
}

// BandCounts is the per-band tally returned by Repository.Summary.
type BandCounts struct {
	Total        int `json:"total"`
	Low          int `json:"low"`
	Medium       int `json:"medium"`
	High         int `json:"high"`
	Critical     int `json:"critical"`
	Inconclusive int `json:"inconclusive"`
	ManualReview int `json:"manual_review"`
}

// ArchiveStore keeps the raw document and the canonical frozen record.
type ArchiveStore interface {
	PutDocument(ctx context.Context, tenant string, id ID, data []byte, contentType string) (string, error)
	PutAssessment(ctx context.Context, tenant string, id ID, canonical []byte) (string, error)
	DeleteDocument(ctx context.Context, tenant string, id ID) error
}
