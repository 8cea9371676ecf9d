// Package risk blends component health scores into a single risk verdict.
//
// Component scores are health scores (100 is clean). Each valid weighted
// component contributes (100 - health) with its weight renormalised over the
// valid subset, so a stage that did not run never biases the result. A few
// signals are dispositive on their own and force manual review whatever the
// blended score says.
package risk

import (
	"math"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

// Band lower bounds, inclusive. These are part of the serialization contract.
const (
	MediumMin   = 31.0
	HighMin     = 61.0
	CriticalMin = 81.0
)

// SyntheticReviewThreshold is the synthetic-generation likelihood above
// which manual review is forced.
const SyntheticReviewThreshold = 80.0

// Weights over the health components. They sum to 1.
var Weights = map[string]float64{
	document.ComponentStructural: 0.20,
	document.ComponentImage:      0.20,
	document.ComponentFormat:     0.10,
	document.ComponentSemantic:   0.20,
	document.ComponentScreening:  0.20,
	document.ComponentExtraction: 0.10,
}

// weightOrder fixes summation order so results are bit-for-bit reproducible.
var weightOrder = []string{
	document.ComponentStructural,
	document.ComponentImage,
	document.ComponentFormat,
	document.ComponentSemantic,
	document.ComponentScreening,
	document.ComponentExtraction,
}

// EffectiveWeights renormalises Weights over the valid components. It is
// empty when no weighted component is valid.
func EffectiveWeights(scores map[string]document.ComponentScore) map[string]float64 {
	var total float64
	for _, name := range weightOrder {
		if s, ok := scores[name]; ok && s.Valid {
			total += Weights[name]
		}
	}
	out := make(map[string]float64)
	if total == 0 {
		return out
	}
	for _, name := range weightOrder {
		if s, ok := scores[name]; ok && s.Valid {
			out[name] = Weights[name] / total
		}
	}
	return out
}

// BandFor classifies an aggregate score.
func BandFor(score float64) document.Band {
	switch {
	case score >= CriticalMin:
		return document.BandCritical
	case score >= HighMin:
		return document.BandHigh
	case score >= MediumMin:
		return document.BandMedium
	default:
		return document.BandLow
	}
}

// Aggregate computes the verdict for one document. It is a pure function of
// its inputs; findings must be in discovery order.
func Aggregate(scores map[string]document.ComponentScore, findings []document.Finding) document.Verdict {
	weights := EffectiveWeights(scores)
	factors := collectFactors(scores, findings)
	forced := forcedReview(scores, findings)

	var v document.Verdict
	if len(weights) == 0 {
		v.Inconclusive = true
		v.ManualReview = true
		factors = append(factors, factor{category: CategoryInconclusive, severity: document.SeverityCritical, order: math.MaxInt})
		v.RiskFactors, v.Recommendations = render(factors, true)
		return v
	}

	var score float64
	for _, name := range weightOrder {
		if w, ok := weights[name]; ok {
			score += w * (100 - scores[name].Value)
		}
	}
	score = document.Clamp(score)
	v.Score = &score
	v.Band = BandFor(score)
	v.ManualReview = forced || v.Band == document.BandHigh || v.Band == document.BandCritical
	v.RiskFactors, v.Recommendations = render(factors, forced)
	return v
}

func forcedReview(scores map[string]document.ComponentScore, findings []document.Finding) bool {
	for _, f := range findings {
		if f.Kind == document.KindScreeningMatch || f.Severity == document.SeverityCritical {
			return true
		}
	}
	s, ok := scores[document.ComponentSynthetic]
	return ok && s.Valid && s.Value > SyntheticReviewThreshold
}
