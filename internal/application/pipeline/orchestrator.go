// Package pipeline runs one document through every analysis stage and
// produces the frozen assessment.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/docrisk/internal/application"
	"github.com/bryanwahyu/docrisk/internal/domain/ai"
	"github.com/bryanwahyu/docrisk/internal/domain/document"
	"github.com/bryanwahyu/docrisk/internal/domain/pixel"
	"github.com/bryanwahyu/docrisk/internal/domain/risk"
	"github.com/bryanwahyu/docrisk/internal/domain/structural"
)

// Stage names, used in diagnostics, logs and the disabled-stage list.
const (
	StageIntake     = "intake"
	StageStructural = "structural"
	StagePixel      = "pixel"
	StageClassifier = "classifier"
	StageFormat     = "format"
	StageSemantic   = "semantic"
	StageScreening  = "screening"
	StageExtraction = "extraction"
)

const classifierParallelism = 4

// stageComponents lists the component scores each stage owns.
var stageComponents = map[string][]string{
	StageStructural: {document.ComponentStructural},
	StagePixel:      {document.ComponentImage, document.ComponentSynthetic},
	StageFormat:     {document.ComponentFormat},
	StageSemantic:   {document.ComponentSemantic},
	StageScreening:  {document.ComponentScreening},
	StageExtraction: {document.ComponentExtraction},
}

// applyOrder is the fixed order in which stage deltas reach the record.
var applyOrder = []string{
	StageIntake, StageStructural, StagePixel, StageFormat, StageSemantic, StageScreening, StageExtraction,
}

// Submission is one document handed over by intake.
type Submission struct {
	TenantID       string
	ID             document.ID
	Raw            []byte
	DeclaredFormat document.Format
	Length         int
	Extraction     document.Extraction
}

// Options tune stage timeouts and capabilities.
type Options struct {
	StageTimeout      time.Duration
	ClassifierTimeout time.Duration
	RetryBackoff      time.Duration
	// Disabled stages are reported invalid and never called.
	Disabled map[string]bool
}

// DefaultOptions are used for zero fields.
func DefaultOptions() Options {
	return Options{
		StageTimeout:      30 * time.Second,
		ClassifierTimeout: 20 * time.Second,
		RetryBackoff:      500 * time.Millisecond,
	}
}

// Orchestrator is safe for concurrent use; runs share only the read-only
// collaborator clients.
type Orchestrator struct {
	Structural *structural.Analyzer
	Pixel      *pixel.Analyzer
	Format     document.FormatAssessor
	Semantic   ai.SemanticValidator
	Screener   document.Screener
	Classifier ai.VisualClassifier
	Clock      application.Clock
	Logger     *slog.Logger
	Options    Options
}

func (o *Orchestrator) log() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *Orchestrator) opts() Options {
	d := DefaultOptions()
	opt := o.Options
	if opt.StageTimeout <= 0 {
		opt.StageTimeout = d.StageTimeout
	}
	if opt.ClassifierTimeout <= 0 {
		opt.ClassifierTimeout = d.ClassifierTimeout
	}
	if opt.RetryBackoff <= 0 {
		opt.RetryBackoff = d.RetryBackoff
	}
	return opt
}

func (o *Orchestrator) disabled(stage string) bool {
	return o.Options.Disabled[stage]
}

// Run analyses one document. It returns document.ErrCanceled when ctx ends
// before the verdict is computed; every other failure is absorbed into an
// invalid component score plus a diagnostic. An assessment whose verdict is
// inconclusive is a normal result.
func (o *Orchestrator) Run(ctx context.Context, sub Submission) (document.Assessment, error) {
	start := o.now()
	log := o.log().With("document_id", sub.ID, "tenant", sub.TenantID)
	if err := ctx.Err(); err != nil {
		return document.Assessment{}, canceled(err)
	}

	rec := document.NewRecord(sub.ID, sub.TenantID, sub.Raw, sub.DeclaredFormat)
	deltas := make(map[string]document.Delta, len(applyOrder))

	container, perr := o.parse(ctx, log, sub.Raw)
	if err := ctx.Err(); err != nil {
		return document.Assessment{}, canceled(err)
	}
	deltas[StageIntake] = o.intake(sub, container, perr)

	// structural and pixel analyses have no dependency on each other
	var forensic [2]document.Delta
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		forensic[0] = o.guard(log, StageStructural, func() document.Delta { return o.structural(container, perr) })
		return nil
	})
	g.Go(func() error {
		var err error
		forensic[1] = o.guard(log, StagePixel, func() document.Delta {
			var d document.Delta
			d, err = o.pixel(gctx, log, container, perr)
			return d
		})
		return err
	})
	if err := g.Wait(); err != nil || ctx.Err() != nil {
		return document.Assessment{}, canceled(errors.Join(err, ctx.Err()))
	}
	deltas[StageStructural], deltas[StagePixel] = forensic[0], forensic[1]

	var collab [3]document.Delta
	cg := new(errgroup.Group)
	cg.Go(func() error {
		collab[0] = o.guard(log, StageFormat, func() document.Delta { return o.format(ctx, log, sub.Extraction) })
		return nil
	})
	cg.Go(func() error {
		collab[1] = o.guard(log, StageSemantic, func() document.Delta { return o.semantic(ctx, log, sub.Extraction) })
		return nil
	})
	cg.Go(func() error {
		collab[2] = o.guard(log, StageScreening, func() document.Delta { return o.screening(ctx, log, sub.Extraction) })
		return nil
	})
	_ = cg.Wait()
	if err := ctx.Err(); err != nil {
		return document.Assessment{}, canceled(err)
	}
	deltas[StageFormat], deltas[StageSemantic], deltas[StageScreening] = collab[0], collab[1], collab[2]
	deltas[StageExtraction] = o.extraction(sub.Extraction)

	for _, stage := range applyOrder {
		if err := rec.Apply(deltas[stage]); err != nil {
			return document.Assessment{}, fmt.Errorf("apply %s: %w", stage, err)
		}
	}

	verdict := risk.Aggregate(rec.Scores(), rec.Findings())
	if err := rec.SetVerdict(verdict); err != nil {
		return document.Assessment{}, err
	}
	a := rec.Freeze(o.now())
	log.Info("assessment complete",
		"format", a.Format,
		"band", verdict.Band,
		"inconclusive", verdict.Inconclusive,
		"manual_review", verdict.ManualReview,
		"findings", len(a.Findings),
		"duration", o.now().Sub(start))
	return a, nil
}

func (o *Orchestrator) now() time.Time {
	if o.Clock == nil {
		return application.SystemClock{}.Now()
	}
	return o.Clock.Now()
}

func canceled(err error) error {
	return fmt.Errorf("%w: %w", document.ErrCanceled, err)
}

// guard recovers a panicking stage and turns it into invalid scores for the
// components the stage owns.
func (o *Orchestrator) guard(log *slog.Logger, stage string, fn func() document.Delta) (d document.Delta) {
	start := o.now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("stage panicked", "stage", stage, "panic", r)
			d = invalidDelta(stage, fmt.Sprintf("stage panicked: %v", r))
		}
		log.Debug("stage finished", "stage", stage, "duration", o.now().Sub(start))
	}()
	return fn()
}

// parse builds the container under the stage timeout. A panic or an
// expired timeout comes back as an error, which scores the structural and
// pixel components invalid.
func (o *Orchestrator) parse(ctx context.Context, log *slog.Logger, raw []byte) (c *structural.Container, err error) {
	timeout := o.opts().StageTimeout
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			log.Error("container parse panicked", "panic", r)
			c, err = nil, fmt.Errorf("container parse panicked: %v", r)
		}
	}()
	c, err = structural.ParseContext(pctx, raw)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		log.Warn("container parse timed out", "timeout", timeout)
		err = fmt.Errorf("container parse timed out after %s", timeout)
	}
	return c, err
}

// invalidDelta marks every component of stage invalid with one diagnostic.
func invalidDelta(stage, reason string) document.Delta {
	d := document.Delta{Stage: stage, Diagnostics: []document.Diagnostic{{Stage: stage, Message: reason}}}
	for _, name := range stageComponents[stage] {
		d.Scores = append(d.Scores, document.Invalid(name, reason))
	}
	return d
}

func (o *Orchestrator) intake(sub Submission, c *structural.Container, perr error) document.Delta {
	d := document.Delta{Stage: StageIntake, ContentHash: structural.ContentHash(sub.Raw)}
	if sub.Length > 0 && sub.Length != len(sub.Raw) {
		d.Diagnostics = append(d.Diagnostics, document.Diagnostic{
			Stage:   StageIntake,
			Message: fmt.Sprintf("declared length %d, received %d bytes", sub.Length, len(sub.Raw)),
		})
	}
	if perr != nil {
		d.Format = structural.Detect(sub.Raw)
		return d
	}
	d.Format = c.Format
	if sub.DeclaredFormat != "" && sub.DeclaredFormat != c.Format {
		d.Diagnostics = append(d.Diagnostics, document.Diagnostic{
			Stage:   StageIntake,
			Message: fmt.Sprintf("declared format %s, detected %s", sub.DeclaredFormat, c.Format),
		})
	}
	d.Images = c.Images()
	return d
}

func (o *Orchestrator) structural(c *structural.Container, perr error) document.Delta {
	if o.disabled(StageStructural) || o.Structural == nil {
		return invalidDelta(StageStructural, document.ErrStageDisabled.Error())
	}
	if perr != nil {
		return invalidDelta(StageStructural, perr.Error())
	}
	res := o.Structural.Analyze(c)
	return document.Delta{Stage: StageStructural, Scores: []document.ComponentScore{res.Score}, Findings: res.Findings}
}

func (o *Orchestrator) pixel(ctx context.Context, log *slog.Logger, c *structural.Container, perr error) (document.Delta, error) {
	if o.disabled(StagePixel) || o.Pixel == nil {
		return invalidDelta(StagePixel, document.ErrStageDisabled.Error()), nil
	}
	if perr != nil {
		return invalidDelta(StagePixel, perr.Error()), nil
	}
	assets := c.Images()
	signals, diags := o.classify(ctx, log, assets)
	timeout := o.opts().StageTimeout
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := o.Pixel.Analyze(actx, assets, signals)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			log.Warn("pixel analysis timed out", "timeout", timeout)
			return invalidDelta(StagePixel, fmt.Sprintf("pixel analysis timed out after %s", timeout)), nil
		}
		return document.Delta{}, err
	}
	d := document.Delta{
		Stage:       StagePixel,
		Scores:      []document.ComponentScore{res.ImageIntegrity, res.Synthetic},
		Findings:    res.Findings,
		Diagnostics: append(diags, res.Diagnostics...),
	}
	if len(assets) == 0 {
		d.Diagnostics = append(d.Diagnostics, document.Diagnostic{Stage: StagePixel, Message: document.ErrNoImages.Error()})
	}
	return d, nil
}

// classify asks the visual classifier about every image. Failures only drop
// the signal for that image.
func (o *Orchestrator) classify(ctx context.Context, log *slog.Logger, assets []document.ImageAsset) (pixel.Signals, []document.Diagnostic) {
	if o.Classifier == nil || len(assets) == 0 {
		return nil, nil
	}
	if o.disabled(StageClassifier) {
		return nil, []document.Diagnostic{{Stage: StageClassifier, Message: document.ErrStageDisabled.Error()}}
	}
	opt := o.opts()
	probs := make([]*float64, len(assets))
	errs := make([]error, len(assets))
	g := new(errgroup.Group)
	g.SetLimit(classifierParallelism)
	for i, asset := range assets {
		g.Go(func() error {
			p, err := withRetry(ctx, opt.ClassifierTimeout, opt.RetryBackoff, func(ctx context.Context) (float64, error) {
				return o.Classifier.ClassifySynthetic(ctx, asset)
			})
			if err != nil {
				errs[i] = err
				return nil
			}
			probs[i] = &p
			return nil
		})
	}
	_ = g.Wait()

	signals := make(pixel.Signals)
	var diags []document.Diagnostic
	for i, asset := range assets {
		if errs[i] != nil {
			log.Warn("visual classifier failed", "stage", StageClassifier, "image", asset.Index, "err", errs[i])
			diags = append(diags, document.Diagnostic{
				Stage:   StageClassifier,
				Message: fmt.Sprintf("image %d: %v", asset.Index, errs[i]),
			})
			continue
		}
		signals[asset.Index] = *probs[i]
	}
	return signals, diags
}
