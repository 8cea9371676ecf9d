package httpserver

import (
	"time"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

// riskAssessment is the JSON body returned for a single document.
type riskAssessment struct {
	SchemaVersion   string                  `json:"schema_version"`
	ID              document.ID             `json:"id"`
	TenantID        string                  `json:"tenant_id"`
	Format          document.Format         `json:"format"`
	ContentHash     string                  `json:"content_hash"`
	Digest          string                  `json:"digest,omitempty"`
	ArchiveURL      string                  `json:"archive_url,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	RiskScore       *float64                `json:"risk_score"`
	RiskLevel       document.Band           `json:"risk_level,omitempty"`
	Inconclusive    bool                    `json:"inconclusive"`
	ManualReview    bool                    `json:"requires_manual_review"`
	RiskFactors     []string                `json:"risk_factors"`
	Recommendations []string                `json:"recommendations"`
	Components      map[string]*float64     `json:"component_scores"`
	Counts          document.SeverityCounts `json:"finding_counts"`
	Findings        []document.Finding      `json:"findings"`
	Diagnostics     []document.Diagnostic   `json:"diagnostics"`
	Images          []document.ImageAsset   `json:"images"`
	DurationMS      int64                   `json:"duration_ms,omitempty"`
}

// newRiskAssessment maps a frozen record to the response. Invalid
// components are reported as null.
func newRiskAssessment(a document.Assessment) riskAssessment {
	comps := make(map[string]*float64, len(a.Components))
	for _, c := range a.Components {
		if c.Valid {
			v := c.Value
			comps[c.Name] = &v
		} else {
			comps[c.Name] = nil
		}
	}
	return riskAssessment{
		SchemaVersion:   a.SchemaVersion,
		ID:              a.ID,
		TenantID:        a.TenantID,
		Format:          a.Format,
		ContentHash:     a.ContentHash,
		CreatedAt:       a.CreatedAt,
		RiskScore:       a.Verdict.Score,
		RiskLevel:       a.Verdict.Band,
		Inconclusive:    a.Verdict.Inconclusive,
		ManualReview:    a.Verdict.ManualReview,
		RiskFactors:     nonNil(a.Verdict.RiskFactors),
		Recommendations: nonNil(a.Verdict.Recommendations),
		Components:      comps,
		Counts:          a.Counts(),
		Findings:        nonNil(a.Findings),
		Diagnostics:     nonNil(a.Diagnostics),
		Images:          nonNil(a.Images),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
