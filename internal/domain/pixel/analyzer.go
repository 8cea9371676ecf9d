// Package pixel runs tamper detectors and synthetic-generation scoring over
// the raster images of a document.
package pixel

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

const (
	workMaxSide     = 1024
	nativeMaxSide   = 2048
	tamperThreshold = 30.0
	tamperPenalty   = 30.0
	syntheticScale  = 0.4
)

// Signals holds optional visual-classifier probabilities keyed by image index.
type Signals map[int]float64

// ImageReport is the per-image outcome.
type ImageReport struct {
	Index           int         `json:"index"`
	Decoded         bool        `json:"decoded"`
	Width           int         `json:"width"`
	Height          int         `json:"height"`
	Detections      []Detection `json:"detections,omitempty"`
	Tampering       float64     `json:"tampering"`
	Tampered        bool        `json:"tampered"`
	Synthetic       float64     `json:"synthetic"`
	MetadataPenalty float64     `json:"metadata_penalty"`
	Score           float64     `json:"score"`
	Error           string      `json:"error,omitempty"`
}

// Result of one pixel analysis over all images of a document.
type Result struct {
	ImageIntegrity document.ComponentScore
	Synthetic      document.ComponentScore
	Findings       []document.Finding
	Diagnostics    []document.Diagnostic
	Images         []ImageReport
}

// Analyzer is safe for concurrent use.
type Analyzer struct {
	workers int
}

// NewAnalyzer bounds per-document image parallelism; workers <= 0 uses
// the CPU count.
func NewAnalyzer(workers int) *Analyzer {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Analyzer{workers: workers}
}

type imageOutcome struct {
	report   ImageReport
	findings []document.Finding
}

// Analyze scores every asset. It only fails when ctx ends.
func (a *Analyzer) Analyze(ctx context.Context, assets []document.ImageAsset, signals Signals) (Result, error) {
	if len(assets) == 0 {
		return Result{
			ImageIntegrity: document.Invalid(document.ComponentImage, "no raster content"),
			Synthetic:      document.Invalid(document.ComponentSynthetic, "no raster content"),
		}, nil
	}

	outcomes := make([]imageOutcome, len(assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, asset := range assets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var sig *float64
			if p, ok := signals[asset.Index]; ok {
				sig = &p
			}
			out, err := analyzeImage(gctx, asset, sig)
			outcomes[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var res Result
	integrity, synthetic := math.Inf(1), 0.0
	decoded := 0
	for _, o := range outcomes {
		res.Images = append(res.Images, o.report)
		res.Findings = append(res.Findings, o.findings...)
		if !o.report.Decoded {
			continue
		}
		decoded++
		integrity = math.Min(integrity, o.report.Score)
		synthetic = math.Max(synthetic, o.report.Synthetic)
	}

	if decoded == 0 {
		for _, f := range res.Findings {
			res.Diagnostics = append(res.Diagnostics, document.Diagnostic{Stage: "pixel", Message: f.Description})
		}
		res.Findings = nil
		res.ImageIntegrity = document.Invalid(document.ComponentImage, "no decodable images")
		res.Synthetic = document.Invalid(document.ComponentSynthetic, "no decodable images")
		return res, nil
	}
	res.ImageIntegrity = document.Score(document.ComponentImage, integrity)
	res.Synthetic = document.Score(document.ComponentSynthetic, synthetic)
	return res, nil
}

// analyzeImage fails only when ctx ends, checked between detectors.
func analyzeImage(ctx context.Context, asset document.ImageAsset, classifier *float64) (imageOutcome, error) {
	idx := asset.Index
	rep := ImageReport{Index: idx, Width: asset.Width, Height: asset.Height}
	img, err := asset.Decode()
	if err != nil {
		rep.Error = err.Error()
		return imageOutcome{report: rep, findings: []document.Finding{
			imageFinding(idx, document.KindImageUndecodable, document.SeverityLow, document.ComponentImage,
				"image %d could not be analyzed: %v", idx, err),
		}}, nil
	}
	rep.Decoded = true
	b := img.Bounds()
	rep.Width, rep.Height = b.Dx(), b.Dy()

	work := workPlane(img, workMaxSide)
	native := nativePlane(img, nativeMaxSide)
	var quant *[64]int
	if asset.Encoding == "jpeg" {
		quant, _ = jpegLumaTable(asset.Bytes())
	}

	// execution order is the finding order
	detectors := []func() Detection{
		func() Detection { return detectOverSmoothing(work) },
		func() Detection { return detectNoiseInconsistency(work) },
		func() Detection { return detectRecompression(native, quant) },
		func() Detection { return detectCopyMove(work) },
		func() Detection { return detectHistogramUniformity(work) },
		func() Detection { return detectLighting(work) },
		func() Detection { return detectLocalizedBlocking(native) },
	}
	for _, run := range detectors {
		if err := ctx.Err(); err != nil {
			return imageOutcome{}, err
		}
		rep.Detections = append(rep.Detections, run())
	}

	var out []document.Finding
	strongest := Detection{}
	for _, d := range rep.Detections {
		if !d.Triggered() {
			continue
		}
		sev := document.SeverityLow
		if d.Confidence*100 >= tamperThreshold {
			sev = document.SeverityMedium
		}
		out = append(out, imageFinding(idx, d.Kind, sev, document.ComponentImage,
			"image %d: %s (confidence %.2f)", idx, d.Detail, d.Confidence))
		if d.Confidence > strongest.Confidence {
			strongest = d
		}
	}
	rep.Tampering = strongest.Confidence * 100
	rep.Tampered = rep.Tampering >= tamperThreshold
	if rep.Tampered {
		out = append(out, imageFinding(idx, document.KindImageTampering, document.SeverityHigh, document.ComponentImage,
			"image %d: tampering confidence %.0f, strongest evidence %s", idx, rep.Tampering, strongest.Detector))
	}

	meta, penalty := metadataFindings(idx, asset.Metadata)
	out = append(out, meta...)
	rep.MetadataPenalty = penalty

	rep.Synthetic = SyntheticLikelihood(rep.Width, rep.Height, asset.Metadata, classifier)
	if rep.Synthetic >= syntheticFindingMin {
		sev := document.SeverityMedium
		if rep.Synthetic > 80 {
			sev = document.SeverityHigh
		}
		out = append(out, imageFinding(idx, document.KindSyntheticGeneration, sev, document.ComponentSynthetic,
			"image %d: synthetic-generation likelihood %.0f", idx, rep.Synthetic))
	}

	score := 100 - syntheticScale*rep.Synthetic - rep.MetadataPenalty
	if rep.Tampered {
		score -= tamperPenalty
	}
	rep.Score = document.Clamp(score)
	return imageOutcome{report: rep, findings: out}, nil
}

func imageFinding(idx int, kind document.FindingKind, sev document.Severity, component, format string, args ...any) document.Finding {
	i := idx
	return document.Finding{
		Kind:        kind,
		Severity:    sev,
		Description: fmt.Sprintf(format, args...),
		Component:   component,
		Image:       &i,
	}
}
