package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

// withRetry runs call under a per-attempt timeout. A failed attempt is
// retried once after backoff unless the parent context has ended.
func withRetry[T any](ctx context.Context, timeout, backoff time.Duration, call func(context.Context) (T, error)) (T, error) {
	var zero T
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return zero, ctx.Err()
			case <-t.C:
			}
		}
		actx, cancel := context.WithTimeout(ctx, timeout)
		var v T
		v, err = call(actx)
		cancel()
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}
	return zero, err
}

// collaborate runs one external collaborator stage. Disabled or missing
// collaborators and failures after the retry all end as an invalid score.
func collaborate[T any](ctx context.Context, o *Orchestrator, log *slog.Logger, stage string, missing bool,
	call func(context.Context) (T, error), build func(T) document.Delta) document.Delta {
	if o.disabled(stage) || missing {
		return invalidDelta(stage, document.ErrStageDisabled.Error())
	}
	opt := o.opts()
	v, err := withRetry(ctx, opt.StageTimeout, opt.RetryBackoff, call)
	if err != nil {
		log.Warn("collaborator failed", "stage", stage, "err", err)
		return invalidDelta(stage, fmt.Sprintf("%s unavailable: %v", stage, err))
	}
	return build(v)
}

func (o *Orchestrator) format(ctx context.Context, log *slog.Logger, ext document.Extraction) document.Delta {
	return collaborate(ctx, o, log, StageFormat, o.Format == nil,
		func(ctx context.Context) (document.FormatResult, error) { return o.Format.AssessFormat(ctx, ext) },
		func(r document.FormatResult) document.Delta {
			d := document.Delta{Stage: StageFormat, Scores: []document.ComponentScore{document.Score(document.ComponentFormat, r.Score)}}
			for _, issue := range r.Issues {
				d.Findings = append(d.Findings, document.Finding{
					Kind:        document.KindFormatIssue,
					Severity:    document.SeverityLow,
					Description: issue,
					Component:   document.ComponentFormat,
				})
			}
			return d
		})
}

func (o *Orchestrator) semantic(ctx context.Context, log *slog.Logger, ext document.Extraction) document.Delta {
	return collaborate(ctx, o, log, StageSemantic, o.Semantic == nil,
		func(ctx context.Context) (document.SemanticResult, error) { return o.Semantic.Validate(ctx, ext) },
		func(r document.SemanticResult) document.Delta {
			d := document.Delta{Stage: StageSemantic, Scores: []document.ComponentScore{document.Score(document.ComponentSemantic, r.Score)}}
			for _, c := range r.Contradictions {
				d.Findings = append(d.Findings, document.Finding{
					Kind:        document.KindSemanticContradiction,
					Severity:    document.SeverityMedium,
					Description: c,
					Component:   document.ComponentSemantic,
				})
			}
			return d
		})
}

func (o *Orchestrator) screening(ctx context.Context, log *slog.Logger, ext document.Extraction) document.Delta {
	return collaborate(ctx, o, log, StageScreening, o.Screener == nil,
		func(ctx context.Context) (document.ScreeningResult, error) { return o.Screener.Screen(ctx, ext.Entities.Names) },
		func(r document.ScreeningResult) document.Delta {
			d := document.Delta{Stage: StageScreening, Scores: []document.ComponentScore{document.Score(document.ComponentScreening, r.Score)}}
			for _, h := range r.Hits {
				sev, err := document.ParseSeverity(h.RiskLevel)
				if err != nil {
					sev = document.SeverityHigh
				}
				d.Findings = append(d.Findings, document.Finding{
					Kind:        document.KindScreeningMatch,
					Severity:    sev,
					Description: fmt.Sprintf("%q matches %s entry %q", h.Name, h.Category, h.Matched),
					Component:   document.ComponentScreening,
				})
			}
			return d
		})
}

// extraction turns the quality reported by the text extraction collaborator
// into a component score.
func (o *Orchestrator) extraction(ext document.Extraction) document.Delta {
	if o.disabled(StageExtraction) {
		return invalidDelta(StageExtraction, document.ErrStageDisabled.Error())
	}
	if ext.Quality == nil {
		return invalidDelta(StageExtraction, "extraction quality not reported")
	}
	return document.Delta{
		Stage:  StageExtraction,
		Scores: []document.ComponentScore{document.Score(document.ComponentExtraction, *ext.Quality)},
	}
}
