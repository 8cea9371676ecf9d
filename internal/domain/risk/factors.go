package risk

import (
	"sort"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

// Category groups findings into a risk factor.
type Category string

const (
	CategoryTampering    Category = "document-tampering"
	CategorySynthetic    Category = "synthetic-image"
	CategoryScreening    Category = "screening-match"
	CategorySemantic     Category = "semantic-inconsistency"
	CategoryMetadata     Category = "metadata-anomaly"
	CategoryExtraction   Category = "low-extraction-quality"
	CategoryFormat       Category = "format-quality"
	CategoryIncomplete   Category = "incomplete-evidence"
	CategoryInconclusive Category = "inconclusive-analysis"
)

const extractionQualityFloor = 50.0

// ActionManualReview always leads the recommendations when review is forced.
const ActionManualReview = "route to manual compliance review"

var categoryOf = map[document.FindingKind]Category{
	document.KindMultipleUpdateTables:    CategoryTampering,
	document.KindUnlinearizedUpdate:      CategoryTampering,
	document.KindPageCountMismatch:       CategoryTampering,
	document.KindTrailingData:            CategoryTampering,
	document.KindOverSmoothing:           CategoryTampering,
	document.KindNoiseInconsistency:      CategoryTampering,
	document.KindRecompression:           CategoryTampering,
	document.KindCopyMove:                CategoryTampering,
	document.KindLightingInconsistency:   CategoryTampering,
	document.KindLocalizedBlockArtifacts: CategoryTampering,
	document.KindImageTampering:          CategoryTampering,
	document.KindHistogramUniformity:     CategorySynthetic,
	document.KindSyntheticGeneration:     CategorySynthetic,
	document.KindGenerativeSoftware:      CategorySynthetic,
	document.KindScreeningMatch:          CategoryScreening,
	document.KindSemanticContradiction:   CategorySemantic,
	document.KindSuspiciousAuthoringTool: CategoryMetadata,
	document.KindMetadataTimestamp:       CategoryMetadata,
	document.KindMissingCameraMetadata:   CategoryMetadata,
	document.KindGPSTimeInconsistency:    CategoryMetadata,
	document.KindFormatIssue:             CategoryFormat,
	document.KindPartialParse:            CategoryIncomplete,
	document.KindImageUndecodable:        CategoryIncomplete,
	document.KindMinimalContent:          CategoryIncomplete,
}

var actions = map[Category][]string{
	CategoryTampering:    {"request original or certified copy of the document"},
	CategorySynthetic:    {"request live capture or in-person verification of the imaged subject"},
	CategoryScreening:    {"perform enhanced due diligence on matched parties"},
	CategorySemantic:     {"verify contradicting fields with the issuing party"},
	CategoryMetadata:     {"confirm document provenance with the submitter"},
	CategoryExtraction:   {"request a higher-quality scan of the document"},
	CategoryFormat:       {"check layout against a known template of the document type"},
	CategoryIncomplete:   {"re-run unavailable checks before relying on the verdict"},
	CategoryInconclusive: {"re-submit the document once analysis services are available"},
}

type factor struct {
	category Category
	severity document.Severity
	order    int
}

// collectFactors derives one factor per category with the worst severity
// and the position of its first finding.
func collectFactors(scores map[string]document.ComponentScore, findings []document.Finding) []factor {
	idx := make(map[Category]int)
	var out []factor
	add := func(c Category, sev document.Severity, order int) {
		if i, ok := idx[c]; ok {
			if sev.Rank() > out[i].severity.Rank() {
				out[i].severity = sev
			}
			return
		}
		idx[c] = len(out)
		out = append(out, factor{category: c, severity: sev, order: order})
	}

	for i, f := range findings {
		if c, ok := categoryOf[f.Kind]; ok {
			add(c, f.Severity, i)
		}
	}
	n := len(findings)
	if s, ok := scores[document.ComponentExtraction]; ok && s.Valid && s.Value < extractionQualityFloor {
		add(CategoryExtraction, document.SeverityMedium, n)
	}
	for _, name := range weightOrder {
		if s, ok := scores[name]; !ok || !s.Valid {
			add(CategoryIncomplete, document.SeverityLow, n+1)
			break
		}
	}
	return out
}

// render orders factors by severity then discovery and maps them to
// deduplicated recommendations.
func render(factors []factor, forced bool) ([]string, []string) {
	sort.SliceStable(factors, func(i, j int) bool {
		ri, rj := factors[i].severity.Rank(), factors[j].severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return factors[i].order < factors[j].order
	})

	riskFactors := make([]string, 0, len(factors))
	recs := make([]string, 0, len(factors)+1)
	seen := make(map[string]bool)
	push := func(a string) {
		if !seen[a] {
			seen[a] = true
			recs = append(recs, a)
		}
	}
	if forced {
		push(ActionManualReview)
	}
	for _, f := range factors {
		riskFactors = append(riskFactors, string(f.category))
		for _, a := range actions[f.category] {
			push(a)
		}
	}
	return riskFactors, recs
}
