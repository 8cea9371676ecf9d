package pixel

import (
	"fmt"
	"math"
	"sort"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

// Detection is one detector's verdict on one image. Confidence is zero
// unless the detector's threshold was crossed.
type Detection struct {
	Detector   string               `json:"detector"`
	Kind       document.FindingKind `json:"kind"`
	Confidence float64              `json:"confidence"`
	Detail     string               `json:"detail,omitempty"`
}

func (d Detection) Triggered() bool { return d.Confidence > 0 }

// Detector thresholds. Fixed; see DESIGN.md.
const (
	laplacianVarMin = 60.0

	noiseBlock      = 32
	noiseBand       = 2.5
	noiseOutlierMin = 0.01
	noiseFlatSigma  = 0.5
	noiseMinBlocks  = 16

	histEntropyMin    = 0.95
	histRoughnessMax  = 0.15
	histConfidenceCap = 0.25

	lightResidualMin   = 0.12
	lightConfidenceCap = 0.6
)

// detectOverSmoothing: variance of the discrete Laplacian.
func detectOverSmoothing(p *plane) Detection {
	d := Detection{Detector: "edge-consistency", Kind: document.KindOverSmoothing}
	if p.w < 3 || p.h < 3 {
		return d
	}
	var sum, sq float64
	n := 0
	for y := 1; y < p.h-1; y++ {
		for x := 1; x < p.w-1; x++ {
			l := p.at(x-1, y) + p.at(x+1, y) + p.at(x, y-1) + p.at(x, y+1) - 4*p.at(x, y)
			sum += l
			sq += l * l
			n++
		}
	}
	mean := sum / float64(n)
	v := sq/float64(n) - mean*mean
	if v < laplacianVarMin {
		d.Confidence = clamp01(0.8 * (1 - v/laplacianVarMin))
		d.Detail = fmt.Sprintf("laplacian variance %.1f below %.0f", v, laplacianVarMin)
	}
	return d
}

// blockSigma estimates noise in one block from the median absolute
// deviation of the Laplacian residual.
func blockSigma(p *plane, x0, y0, size int, buf []float64) float64 {
	buf = buf[:0]
	for y := max(y0, 1); y < min(y0+size, p.h-1); y++ {
		for x := max(x0, 1); x < min(x0+size, p.w-1); x++ {
			r := (4*p.at(x, y) - p.at(x-1, y) - p.at(x+1, y) - p.at(x, y-1) - p.at(x, y+1)) / math.Sqrt(20)
			buf = append(buf, r)
		}
	}
	if len(buf) == 0 {
		return 0
	}
	m := median(buf)
	for i, v := range buf {
		buf[i] = math.Abs(v - m)
	}
	return 1.4826 * median(buf)
}

// detectNoiseInconsistency compares per-block noise levels against the
// image median.
func detectNoiseInconsistency(p *plane) Detection {
	d := Detection{Detector: "block-noise", Kind: document.KindNoiseInconsistency}
	var sigmas []float64
	buf := make([]float64, 0, noiseBlock*noiseBlock)
	for y := 0; y+noiseBlock <= p.h; y += noiseBlock {
		for x := 0; x+noiseBlock <= p.w; x += noiseBlock {
			if s := blockSigma(p, x, y, noiseBlock, buf); s >= noiseFlatSigma {
				sigmas = append(sigmas, s)
			}
		}
	}
	if len(sigmas) < noiseMinBlocks {
		return d
	}
	med := median(append([]float64(nil), sigmas...))
	lo, hi := med/noiseBand, med*noiseBand
	outliers := 0
	for _, s := range sigmas {
		if s < lo || s > hi {
			outliers++
		}
	}
	f := float64(outliers) / float64(len(sigmas))
	if f >= noiseOutlierMin {
		d.Confidence = clamp01(0.3 + (f-noiseOutlierMin)*10)
		d.Detail = fmt.Sprintf("%d of %d blocks outside noise band (median sigma %.2f)", outliers, len(sigmas), med)
	}
	return d
}

// detectHistogramUniformity: a near-flat, smooth luminance histogram. Weak
// signal, capped below the tampering threshold.
func detectHistogramUniformity(p *plane) Detection {
	d := Detection{Detector: "histogram-uniformity", Kind: document.KindHistogramUniformity}
	if len(p.pix) == 0 {
		return d
	}
	var h [256]float64
	for _, v := range p.pix {
		h[clampInt(int(math.Round(v)), 0, 255)]++
	}
	n := float64(len(p.pix))
	var ent, rough float64
	for i, c := range h {
		if c > 0 {
			q := c / n
			ent -= q * math.Log2(q)
		}
		if i > 0 {
			rough += math.Abs(c - h[i-1])
		}
	}
	ent /= 8
	// mean step between neighbouring bins relative to the mean bin height
	rough = (rough / 255) / (n / 256)
	if ent >= histEntropyMin && rough <= histRoughnessMax {
		d.Confidence = math.Min(histConfidenceCap, 0.1+0.15*(ent-histEntropyMin)/(1-histEntropyMin))
		d.Detail = fmt.Sprintf("normalised entropy %.3f, roughness %.3f", ent, rough)
	}
	return d
}

// detectLighting compares quadrant means against a planar brightness model.
func detectLighting(p *plane) Detection {
	d := Detection{Detector: "lighting-consistency", Kind: document.KindLightingInconsistency}
	if p.w < 16 || p.h < 16 {
		return d
	}
	hw, hh := p.w/2, p.h/2
	q00 := p.sub(0, 0, hw, hh).mean()
	q01 := p.sub(hw, 0, hw, hh).mean()
	q10 := p.sub(0, hh, hw, hh).mean()
	q11 := p.sub(hw, hh, hw, hh).mean()
	r := math.Abs((q00+q11)-(q01+q10)) / 2 / 255
	if r >= lightResidualMin {
		d.Confidence = math.Min(lightConfidenceCap, 0.3+(r-lightResidualMin)*2)
		d.Detail = fmt.Sprintf("quadrant residual %.3f of full scale", r)
	}
	return d
}

// median sorts v in place.
func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sort.Float64s(v)
	m := len(v) / 2
	if len(v)%2 == 1 {
		return v[m]
	}
	return (v[m-1] + v[m]) / 2
}
