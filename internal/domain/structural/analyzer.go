// Package structural inspects the container of a submitted document for
// signs of post-creation editing and extracts its embedded images.
package structural

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

// Metadata is what the parser learned about the container.
type Metadata struct {
	Version         string    `json:"version,omitempty"`
	Info            Info      `json:"info"`
	ProducerTrust   ToolTrust `json:"producer_trust"`
	Encrypted       bool      `json:"encrypted"`
	Linearized      bool      `json:"linearized"`
	Revisions       int       `json:"revisions"`
	AppendedUpdates int       `json:"appended_updates"`
	DeclaredPages   int       `json:"declared_pages"`
	PageObjects     int       `json:"page_objects"`
	Objects         int       `json:"objects"`
	Images          int       `json:"images"`
	Problems        []string  `json:"problems,omitempty"`
	// ProblemCount includes problems dropped from Problems past its cap.
	ProblemCount int `json:"problem_count,omitempty"`
}

// Result of one structural analysis.
type Result struct {
	Format      document.Format
	ContentHash string
	Score       document.ComponentScore
	Findings    []document.Finding
	Metadata    Metadata
}

// Analyzer applies the structural rules. Stateless; safe for concurrent use.
type Analyzer struct {
	tools ToolPolicy
}

func NewAnalyzer(tools ToolPolicy) *Analyzer {
	return &Analyzer{tools: tools}
}

// ContentHash is the SHA-256 hex digest of the raw bytes.
func ContentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// AnalyzeBytes parses raw and analyzes it. Unsupported input yields an
// invalid score and no findings.
func (a *Analyzer) AnalyzeBytes(raw []byte) Result {
	c, err := Parse(raw)
	if err != nil {
		return Result{
			Format:      document.FormatUnknown,
			ContentHash: ContentHash(raw),
			Score:       document.Invalid(document.ComponentStructural, "unsupported container"),
		}
	}
	return a.Analyze(c)
}

// Analyze runs the rules over a parsed container. Identical bytes always
// produce identical findings in the same order.
func (a *Analyzer) Analyze(c *Container) Result {
	res := Result{Format: c.Format, ContentHash: ContentHash(c.raw)}
	var fs []document.Finding
	if c.pdf != nil {
		res.Metadata, fs = a.pdfRules(c.pdf)
	} else {
		res.Metadata, fs = rasterRules(c)
	}
	res.Metadata.Images = len(c.images)
	res.Findings = fs

	score := 100.0
	for _, f := range fs {
		score -= f.Severity.Penalty()
	}
	res.Score = document.Score(document.ComponentStructural, score)
	return res
}

func finding(kind document.FindingKind, sev document.Severity, format string, args ...any) document.Finding {
	return document.Finding{
		Kind:        kind,
		Severity:    sev,
		Description: fmt.Sprintf(format, args...),
		Component:   document.ComponentStructural,
	}
}

func (a *Analyzer) pdfRules(f *pdfFile) (Metadata, []document.Finding) {
	m := Metadata{
		Version:       f.version,
		Info:          f.info,
		Encrypted:     f.encrypted,
		Linearized:    f.linearized,
		DeclaredPages: f.declaredPages,
		PageObjects:   f.pageObjects,
		Objects:       len(f.objects),
		Problems:      append([]string(nil), f.problems...),
		ProblemCount:  f.problemTotal,
	}

	m.Revisions = f.startXRefs
	if m.Revisions == 0 {
		m.Revisions = f.eofMarkers
	}
	if m.Revisions == 0 {
		m.Revisions = 1
	}
	m.AppendedUpdates = m.Revisions - 1
	if f.linearized {
		m.AppendedUpdates--
	}
	if m.AppendedUpdates < 0 {
		m.AppendedUpdates = 0
	}

	var out []document.Finding
	if m.AppendedUpdates > 1 {
		out = append(out, finding(document.KindMultipleUpdateTables, document.SeverityCritical,
			"%d update tables appended after initial creation", m.AppendedUpdates))
	}
	if m.AppendedUpdates >= 1 && !f.linearized {
		out = append(out, finding(document.KindUnlinearizedUpdate, document.SeverityMedium,
			"incremental update on a non-linearized file"))
	}

	producer, creator := a.tools.Classify(f.info.Producer), a.tools.Classify(f.info.Creator)
	m.ProducerTrust = producer
	if producer == ToolAbsent {
		m.ProducerTrust = creator
	}
	switch {
	case producer == ToolSuspicious:
		out = append(out, finding(document.KindSuspiciousAuthoringTool, document.SeverityHigh,
			"producer %q matches an online-converter or automation signature", f.info.Producer))
		m.ProducerTrust = ToolSuspicious
	case creator == ToolSuspicious:
		out = append(out, finding(document.KindSuspiciousAuthoringTool, document.SeverityHigh,
			"creator %q matches an online-converter or automation signature", f.info.Creator))
		m.ProducerTrust = ToolSuspicious
	}

	if f.declaredPages >= 0 && !f.objStmFailed && f.declaredPages != f.pageObjects {
		out = append(out, finding(document.KindPageCountMismatch, document.SeverityHigh,
			"page tree declares %d pages but %d page objects exist", f.declaredPages, f.pageObjects))
	}

	pages := len(f.pages)
	if pages == 0 {
		pages = f.pageObjects
	}
	if pages == 1 && len(f.imageObjects) == 0 && !f.hasFonts && !f.hasTextOps {
		out = append(out, finding(document.KindMinimalContent, document.SeverityLow,
			"single page without raster content or text layer"))
	}

	if c, mod := f.info.CreationDate, f.info.ModDate; c != nil && mod != nil && mod.Before(*c) {
		out = append(out, finding(document.KindMetadataTimestamp, document.SeverityMedium,
			"modification date %s precedes creation date %s", mod.UTC().Format("2006-01-02T15:04:05Z"), c.UTC().Format("2006-01-02T15:04:05Z")))
	}

	if len(f.problems) > 0 {
		out = append(out, finding(document.KindPartialParse, document.SeverityLow,
			"%d parse problem(s): %s", f.problemTotal, strings.Join(firstN(f.problems, 3), "; ")))
	}
	return m, out
}

func rasterRules(c *Container) (Metadata, []document.Finding) {
	m := Metadata{Revisions: 1, DeclaredPages: 1, PageObjects: 1, ProducerTrust: ToolAbsent}
	var out []document.Finding
	if c.rasterErr != nil {
		m.Problems = []string{c.rasterErr.Error()}
		out = append(out, finding(document.KindPartialParse, document.SeverityLow,
			"%s structure: %v", c.codec, c.rasterErr))
	} else if c.rasterEnd > 0 {
		if n := trailingBytes(c.raw, c.rasterEnd); n > 0 {
			out = append(out, finding(document.KindTrailingData, document.SeverityMedium,
				"%d bytes after the %s end-of-image marker", n, c.codec))
		}
	}
	if len(c.images) == 1 {
		if sw := c.images[0].Metadata.Software; sw != "" {
			m.Info.Producer = sw
		}
	}
	return m, out
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
