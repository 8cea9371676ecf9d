package document

import (
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion of the frozen assessment serialization. Field names and
// band thresholds are a compatibility contract; bump on breaking change.
const SchemaVersion = "docrisk.assessment/v1"

// Delta is what a single pipeline stage contributes to a Record.
type Delta struct {
	Stage       string
	Scores      []ComponentScore
	Findings    []Finding
	Diagnostics []Diagnostic
	Images      []ImageAsset
	ContentHash string
	Format      Format
}

// Record is the per-document analysis state owned by the orchestrator.
// Findings are append-only and each component score is written once.
type Record struct {
	ID       ID
	TenantID string

	raw         []byte
	format      Format
	contentHash string
	images      []ImageAsset
	findings    []Finding
	scores      map[string]ComponentScore
	order       []string
	diagnostics []Diagnostic
	verdict     *Verdict
}

// NewRecord creates the analysis state for one document.
func NewRecord(id ID, tenant string, raw []byte, format Format) *Record {
	return &Record{
		ID:       id,
		TenantID: tenant,
		raw:      raw,
		format:   format,
		scores:   make(map[string]ComponentScore),
	}
}

// Raw returns the document bytes. Callers must not modify them.
func (r *Record) Raw() []byte { return r.raw }

// Format returns the container format tag.
func (r *Record) Format() Format { return r.format }

// Images returns a copy of the image assets.
func (r *Record) Images() []ImageAsset {
	return append([]ImageAsset(nil), r.images...)
}

// Findings returns a copy of the findings recorded so far.
func (r *Record) Findings() []Finding {
	return append([]Finding(nil), r.findings...)
}

// Scores returns a copy of the component scores.
func (r *Record) Scores() map[string]ComponentScore {
	out := make(map[string]ComponentScore, len(r.scores))
	for k, v := range r.scores {
		out[k] = v
	}
	return out
}

// Verdict returns the verdict, nil until aggregated.
func (r *Record) Verdict() *Verdict { return r.verdict }

// Apply merges a stage delta into the record, enforcing the record invariants.
func (r *Record) Apply(d Delta) error {
	for _, s := range d.Scores {
		if _, ok := r.scores[s.Name]; ok {
			return fmt.Errorf("stage %s: component %s already scored", d.Stage, s.Name)
		}
	}
	owners := make(map[string]ComponentScore, len(d.Scores))
	for _, s := range d.Scores {
		owners[s.Name] = s
	}
	for _, f := range d.Findings {
		owner, ok := owners[f.Component]
		if !ok {
			owner, ok = r.scores[f.Component]
		}
		if !ok {
			return fmt.Errorf("stage %s: finding %s has no component score owner %q", d.Stage, f.Kind, f.Component)
		}
		if !owner.Valid {
			return fmt.Errorf("stage %s: finding %s owned by invalid component %s", d.Stage, f.Kind, f.Component)
		}
	}

	for _, s := range d.Scores {
		r.scores[s.Name] = s
		r.order = append(r.order, s.Name)
	}
	r.findings = append(r.findings, d.Findings...)
	r.diagnostics = append(r.diagnostics, d.Diagnostics...)
	r.images = append(r.images, d.Images...)
	if d.ContentHash != "" {
		r.contentHash = d.ContentHash
	}
	if d.Format != "" {
		r.format = d.Format
	}
	return nil
}

// SetVerdict stores the verdict; it can only be set once.
func (r *Record) SetVerdict(v Verdict) error {
	if r.verdict != nil {
		return fmt.Errorf("record %s: verdict already set", r.ID)
	}
	r.verdict = &v
	return nil
}

// Freeze returns an immutable snapshot for hand-off to reporting and persistence.
func (r *Record) Freeze(now time.Time) Assessment {
	a := Assessment{
		SchemaVersion: SchemaVersion,
		ID:            r.ID,
		TenantID:      r.TenantID,
		Format:        r.format,
		ByteLength:    len(r.raw),
		ContentHash:   r.contentHash,
		CreatedAt:     now.UTC(),
		Images:        append([]ImageAsset{}, r.images...),
		Findings:      append([]Finding{}, r.findings...),
		Diagnostics:   append([]Diagnostic{}, r.diagnostics...),
		Components:    make([]ComponentScore, 0, len(r.order)),
	}
	for _, name := range r.order {
		a.Components = append(a.Components, r.scores[name])
	}
	if r.verdict != nil {
		v := *r.verdict
		v.RiskFactors = append([]string{}, v.RiskFactors...)
		v.Recommendations = append([]string{}, v.Recommendations...)
		a.Verdict = v
	}
	return a
}

// Assessment is the frozen AnalysisRecord handed to downstream collaborators.
type Assessment struct {
	SchemaVersion string           `json:"schema_version"`
	ID            ID               `json:"id"`
	TenantID      string           `json:"tenant_id"`
	Format        Format           `json:"format"`
	ByteLength    int              `json:"byte_length"`
	ContentHash   string           `json:"content_hash"`
	CreatedAt     time.Time        `json:"created_at"`
	Components    []ComponentScore `json:"components"`
	Findings      []Finding        `json:"findings"`
	Diagnostics   []Diagnostic     `json:"diagnostics"`
	Images        []ImageAsset     `json:"images"`
	Verdict       Verdict          `json:"verdict"`
}

// Inconclusive reports whether no component could be scored.
func (a Assessment) Inconclusive() bool { return a.Verdict.Inconclusive }

// Component looks up a component score by name.
func (a Assessment) Component(name string) (ComponentScore, bool) {
	for _, c := range a.Components {
		if c.Name == name {
			return c, true
		}
	}
	return ComponentScore{}, false
}

// ScoreMap returns component scores keyed by name.
func (a Assessment) ScoreMap() map[string]ComponentScore {
	out := make(map[string]ComponentScore, len(a.Components))
	for _, c := range a.Components {
		out[c.Name] = c
	}
	return out
}

// SeverityCounts summarises findings per severity.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Counts tallies the findings by severity.
func (a Assessment) Counts() SeverityCounts {
	var c SeverityCounts
	for _, f := range a.Findings {
		switch f.Severity {
		case SeverityCritical:
			c.Critical++
		case SeverityHigh:
			c.High++
		case SeverityMedium:
			c.Medium++
		case SeverityLow:
			c.Low++
		}
		c.Total++
	}
	return c
}

// Summary is the lightweight listing form of an assessment.
type Summary struct {
	ID           ID             `json:"id"`
	TenantID     string         `json:"tenant_id"`
	Format       Format         `json:"format"`
	ContentHash  string         `json:"content_hash"`
	Score        *float64       `json:"score"`
	Band         Band           `json:"band,omitempty"`
	Inconclusive bool           `json:"inconclusive"`
	ManualReview bool           `json:"manual_review"`
	Counts       SeverityCounts `json:"counts"`
	ArchiveURL   string         `json:"archive_url,omitempty"`
	Digest       string         `json:"digest,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Summarize builds the listing form.
func (a Assessment) Summarize() Summary {
	return Summary{
		ID:           a.ID,
		TenantID:     a.TenantID,
		Format:       a.Format,
		ContentHash:  a.ContentHash,
		Score:        a.Verdict.Score,
		Band:         a.Verdict.Band,
		Inconclusive: a.Verdict.Inconclusive,
		ManualReview: a.Verdict.ManualReview,
		Counts:       a.Counts(),
		CreatedAt:    a.CreatedAt,
	}
}

// Marshal encodes the assessment as JSON.
func (a Assessment) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalAssessment reads a record produced by Marshal. Image bytes are
// not serialized, so decoded assets cannot be re-analysed.
func UnmarshalAssessment(data []byte) (*Assessment, error) {
	var a Assessment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode assessment: %w", err)
	}
	if a.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("decode assessment %s: unsupported schema %q", a.ID, a.SchemaVersion)
	}
	return &a, nil
}
