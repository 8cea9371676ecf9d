package risk

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

func scoreMap(scores ...document.ComponentScore) map[string]document.ComponentScore {
	out := make(map[string]document.ComponentScore, len(scores))
	for _, s := range scores {
		out[s.Name] = s
	}
	return out
}

func allValid(v float64) map[string]document.ComponentScore {
	m := make(map[string]document.ComponentScore)
	for _, name := range weightOrder {
		m[name] = document.Score(name, v)
	}
	return m
}

func TestWeightsSumToOne(t *testing.T) {
	var sum float64
	for _, w := range Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Len(t, weightOrder, len(Weights))
}

func TestEffectiveWeights_SumToOneForEverySubset(t *testing.T) {
	for mask := 1; mask < 1<<len(weightOrder); mask++ {
		scores := make(map[string]document.ComponentScore)
		for i, name := range weightOrder {
			if mask&(1<<i) != 0 {
				scores[name] = document.Score(name, 50)
			} else {
				scores[name] = document.Invalid(name, "timeout")
			}
		}
		var sum float64
		for _, w := range EffectiveWeights(scores) {
			sum += w
		}
		require.InDelta(t, 1.0, sum, 1e-9, "mask %b", mask)
	}
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		score float64
		want  document.Band
	}{
		{0, document.BandLow},
		{30.999, document.BandLow},
		{31, document.BandMedium},
		{60.5, document.BandMedium},
		{61, document.BandHigh},
		{80.99, document.BandHigh},
		{81, document.BandCritical},
		{100, document.BandCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BandFor(tt.score), "score %v", tt.score)
	}
}

func TestAggregate_ScoreRangeAndDeterminism(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 500; i++ {
		scores := make(map[string]document.ComponentScore)
		for _, name := range weightOrder {
			if rng.IntN(4) == 0 {
				scores[name] = document.Invalid(name, "skipped")
				continue
			}
			scores[name] = document.Score(name, rng.Float64()*100)
		}
		v := Aggregate(scores, nil)
		if v.Inconclusive {
			assert.Nil(t, v.Score)
			continue
		}
		require.NotNil(t, v.Score)
		assert.GreaterOrEqual(t, *v.Score, 0.0)
		assert.LessOrEqual(t, *v.Score, 100.0)
		assert.Equal(t, BandFor(*v.Score), v.Band)
		assert.Equal(t, v, Aggregate(scores, nil))
	}
}

func TestAggregate_CleanDocument(t *testing.T) {
	v := Aggregate(allValid(100), nil)
	require.NotNil(t, v.Score)
	assert.Equal(t, 0.0, *v.Score)
	assert.Equal(t, document.BandLow, v.Band)
	assert.False(t, v.ManualReview)
	assert.Empty(t, v.RiskFactors)
	assert.Empty(t, v.Recommendations)
}

func TestAggregate_InvertsHealth(t *testing.T) {
	scores := allValid(100)
	scores[document.ComponentStructural] = document.Score(document.ComponentStructural, 40)
	v := Aggregate(scores, nil)
	require.NotNil(t, v.Score)
	assert.InDelta(t, 0.2*60, *v.Score, 1e-9)
}

func TestAggregate_HighBandRequiresReview(t *testing.T) {
	v := Aggregate(allValid(30), nil)
	require.NotNil(t, v.Score)
	assert.InDelta(t, 70.0, *v.Score, 1e-9)
	assert.Equal(t, document.BandHigh, v.Band)
	assert.True(t, v.ManualReview)
}

func TestAggregate_ScenarioC_CollaboratorsTimedOut(t *testing.T) {
	scores := scoreMap(
		document.Score(document.ComponentStructural, 100),
		document.Score(document.ComponentImage, 76),
		document.Score(document.ComponentSynthetic, 60),
		document.Invalid(document.ComponentFormat, "timeout"),
		document.Invalid(document.ComponentSemantic, "timeout"),
		document.Invalid(document.ComponentScreening, "timeout"),
		document.Invalid(document.ComponentExtraction, "timeout"),
	)
	w := EffectiveWeights(scores)
	assert.Len(t, w, 2)
	assert.InDelta(t, 0.5, w[document.ComponentStructural], 1e-12)
	assert.InDelta(t, 0.5, w[document.ComponentImage], 1e-12)

	v := Aggregate(scores, nil)
	require.NotNil(t, v.Score)
	assert.InDelta(t, 12.0, *v.Score, 1e-9)
	assert.Equal(t, document.BandLow, v.Band)
	assert.False(t, v.Inconclusive)
	assert.Equal(t, []string{string(CategoryIncomplete)}, v.RiskFactors)
}

func TestAggregate_ScenarioD_AllInvalid(t *testing.T) {
	scores := make(map[string]document.ComponentScore)
	for _, name := range append(weightOrder, document.ComponentSynthetic) {
		scores[name] = document.Invalid(name, "unavailable")
	}
	v := Aggregate(scores, nil)
	assert.True(t, v.Inconclusive)
	assert.True(t, v.ManualReview)
	assert.Nil(t, v.Score)
	assert.Empty(t, v.Band)
	require.NotEmpty(t, v.Recommendations)
	assert.Equal(t, ActionManualReview, v.Recommendations[0])
}

func TestAggregate_Overrides(t *testing.T) {
	clean := allValid(100)
	tests := []struct {
		name     string
		scores   map[string]document.ComponentScore
		findings []document.Finding
	}{
		{"screening match", clean, []document.Finding{
			{Kind: document.KindScreeningMatch, Severity: document.SeverityHigh, Component: document.ComponentScreening},
		}},
		{"critical finding", clean, []document.Finding{
			{Kind: document.KindMultipleUpdateTables, Severity: document.SeverityCritical, Component: document.ComponentStructural},
		}},
		{"synthetic likelihood", func() map[string]document.ComponentScore {
			s := allValid(100)
			s[document.ComponentSynthetic] = document.Score(document.ComponentSynthetic, 81)
			return s
		}(), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Aggregate(tt.scores, tt.findings)
			assert.Equal(t, document.BandLow, v.Band)
			assert.True(t, v.ManualReview)
			assert.Equal(t, ActionManualReview, v.Recommendations[0])
		})
	}

	s := allValid(100)
	s[document.ComponentSynthetic] = document.Score(document.ComponentSynthetic, 80)
	assert.False(t, Aggregate(s, nil).ManualReview)
}

func TestAggregate_MonotonicUnderCriticalFinding(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	kinds := []document.FindingKind{document.KindCopyMove, document.KindMetadataTimestamp, document.KindFormatIssue}
	sevs := []document.Severity{document.SeverityLow, document.SeverityMedium, document.SeverityHigh}
	for i := 0; i < 200; i++ {
		scores := allValid(0)
		for _, name := range weightOrder {
			scores[name] = document.Score(name, rng.Float64()*100)
		}
		var findings []document.Finding
		for j := rng.IntN(4); j > 0; j-- {
			findings = append(findings, document.Finding{Kind: kinds[rng.IntN(len(kinds))], Severity: sevs[rng.IntN(len(sevs))]})
		}
		before := Aggregate(scores, findings)
		after := Aggregate(scores, append(findings, document.Finding{
			Kind: document.KindMultipleUpdateTables, Severity: document.SeverityCritical,
		}))
		require.NotNil(t, before.Score)
		require.NotNil(t, after.Score)
		assert.GreaterOrEqual(t, *after.Score, *before.Score)
		assert.True(t, after.ManualReview)
	}
}

func TestAggregate_FactorOrdering(t *testing.T) {
	findings := []document.Finding{
		{Kind: document.KindFormatIssue, Severity: document.SeverityLow},
		{Kind: document.KindMissingCameraMetadata, Severity: document.SeverityLow},
		{Kind: document.KindCopyMove, Severity: document.SeverityMedium},
		{Kind: document.KindSemanticContradiction, Severity: document.SeverityHigh},
		{Kind: document.KindImageTampering, Severity: document.SeverityHigh},
	}
	v := Aggregate(allValid(90), findings)
	assert.Equal(t, []string{
		string(CategorySemantic),
		string(CategoryTampering),
		string(CategoryFormat),
		string(CategoryMetadata),
	}, v.RiskFactors)
	assert.Equal(t, []string{
		"verify contradicting fields with the issuing party",
		"request original or certified copy of the document",
		"check layout against a known template of the document type",
		"confirm document provenance with the submitter",
	}, v.Recommendations)
}

func TestAggregate_LowExtractionQuality(t *testing.T) {
	scores := allValid(100)
	scores[document.ComponentExtraction] = document.Score(document.ComponentExtraction, 35)
	v := Aggregate(scores, nil)
	assert.Equal(t, []string{string(CategoryExtraction)}, v.RiskFactors)
	assert.Equal(t, []string{"request a higher-quality scan of the document"}, v.Recommendations)
}
