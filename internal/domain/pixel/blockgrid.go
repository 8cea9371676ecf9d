package pixel

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

const (
	gridGlobalMin  = 0.25
	gridRegionMin  = 0.3
	gridRegions    = 4
	gridMinRegion  = 64
	dqNonMonoMin   = 0.10
	dqMaxBin       = 10
	dqMinSamples   = 50
	dqMinPositions = 2
)

// axisGrid is the 8-periodic blocking signal along one axis.
type axisGrid struct {
	strength float64
	offset   int
}

// foldAxis folds mean absolute neighbour differences modulo 8. Positions are
// relative to the plane origin, which sits on the 8-pixel grid.
func foldAxis(p *plane, x0, y0, w, h int, horizontal bool) axisGrid {
	var fold [8]float64
	var cnt [8]int
	if horizontal {
		for x := max(x0, 1); x < x0+w; x++ {
			var s float64
			for y := y0; y < y0+h; y++ {
				s += math.Abs(p.at(x, y) - p.at(x-1, y))
			}
			fold[x%8] += s / float64(h)
			cnt[x%8]++
		}
	} else {
		for y := max(y0, 1); y < y0+h; y++ {
			var s float64
			for x := x0; x < x0+w; x++ {
				s += math.Abs(p.at(x, y) - p.at(x, y-1))
			}
			fold[y%8] += s / float64(w)
			cnt[y%8]++
		}
	}
	vals := make([]float64, 0, 8)
	best, off := -1.0, 0
	for i := range fold {
		if cnt[i] == 0 {
			return axisGrid{}
		}
		v := fold[i] / float64(cnt[i])
		vals = append(vals, v)
		if v > best {
			best, off = v, i
		}
	}
	med := median(vals)
	return axisGrid{strength: (best - med) / math.Max(med, 1), offset: off}
}

// differs reports whether a region grid is present and out of phase with
// the global grid (or there is no global grid at all).
func (g axisGrid) differs(global axisGrid) bool {
	return g.strength >= gridRegionMin && (global.strength < gridGlobalMin || g.offset != global.offset)
}

// detectLocalizedBlocking splits the native plane into regions and flags a
// minority of regions whose blocking grid disagrees with the whole image.
func detectLocalizedBlocking(p *plane) Detection {
	d := Detection{Detector: "block-artifact", Kind: document.KindLocalizedBlockArtifacts}
	rw, rh := (p.w/gridRegions)&^7, (p.h/gridRegions)&^7
	if rw < gridMinRegion || rh < gridMinRegion {
		return d
	}
	gx := foldAxis(p, 0, 0, p.w, p.h, true)
	gy := foldAxis(p, 0, 0, p.w, p.h, false)

	n := 0
	for ry := 0; ry < gridRegions; ry++ {
		for rx := 0; rx < gridRegions; rx++ {
			x0, y0 := rx*rw, ry*rh
			rgx := foldAxis(p, x0, y0, rw, rh, true)
			rgy := foldAxis(p, x0, y0, rw, rh, false)
			if rgx.differs(gx) || rgy.differs(gy) {
				n++
			}
		}
	}
	if n > 0 && n < gridRegions*gridRegions/2 {
		d.Confidence = clamp01(0.4 + 0.1*float64(n-1))
		d.Detail = fmt.Sprintf("%d of %d regions carry a blocking grid inconsistent with the image", n, gridRegions*gridRegions)
	}
	return d
}

// detectRecompression combines a shifted global blocking grid with
// double-quantisation traces in the JPEG transform domain. quant is the
// luma quantisation table of the last save, nil when the image is not a JPEG.
func detectRecompression(p *plane, quant *[64]int) Detection {
	d := Detection{Detector: "recompression", Kind: document.KindRecompression}
	if p.w < 16 || p.h < 16 {
		return d
	}

	var shifted float64
	for _, g := range []axisGrid{foldAxis(p, 0, 0, p.w, p.h, true), foldAxis(p, 0, 0, p.w, p.h, false)} {
		if g.strength >= gridGlobalMin && g.offset != 0 {
			shifted = math.Max(shifted, g.strength)
		}
	}
	if shifted > 0 {
		d.Confidence = clamp01(0.3 + (shifted-gridGlobalMin)*0.5)
		d.Detail = fmt.Sprintf("blocking grid at non-zero offset (strength %.2f)", shifted)
	}

	if quant != nil {
		if s, ok := doubleQuantization(p, quant); ok && s >= dqNonMonoMin {
			if c := clamp01(0.3 + (s - dqNonMonoMin)); c > d.Confidence {
				d.Confidence = c
				d.Detail = fmt.Sprintf("double quantisation histogram non-monotonicity %.2f", s)
			}
		}
	}
	return d
}

// low-frequency AC positions as (u, v): horizontal and vertical frequency
var dqPositions = [][2]int{{1, 0}, {0, 1}, {1, 1}, {2, 0}, {0, 2}, {2, 1}, {1, 2}}

var dctBasis = func() (b [8][8]float64) {
	for u := 0; u < 8; u++ {
		c := 1.0
		if u == 0 {
			c = 1 / math.Sqrt2
		}
		for x := 0; x < 8; x++ {
			b[u][x] = c / 2 * math.Cos(float64(2*x+1)*float64(u)*math.Pi/16)
		}
	}
	return b
}()

// doubleQuantization measures how far the histograms of quantised
// low-frequency coefficients depart from a monotone decay. The result is
// the mean non-monotonicity over positions with enough samples.
func doubleQuantization(p *plane, quant *[64]int) (float64, bool) {
	hists := make([][dqMaxBin + 2]int, len(dqPositions))
	for by := 0; by+8 <= p.h; by += 8 {
		for bx := 0; bx+8 <= p.w; bx += 8 {
			for i, pos := range dqPositions {
				u, v := pos[0], pos[1]
				q := quant[v*8+u]
				if q <= 1 {
					continue
				}
				var c float64
				for y := 0; y < 8; y++ {
					row := (by+y)*p.w + bx
					var s float64
					for x := 0; x < 8; x++ {
						s += p.pix[row+x] * dctBasis[u][x]
					}
					c += s * dctBasis[v][y]
				}
				k := int(math.Round(math.Abs(c) / float64(q)))
				if k >= 1 && k <= dqMaxBin {
					hists[i][k]++
				}
			}
		}
	}

	var sum float64
	n := 0
	for _, h := range hists {
		total, rise := 0, 0
		for k := 1; k <= dqMaxBin; k++ {
			total += h[k]
			if k < dqMaxBin && h[k+1] > h[k] {
				rise += h[k+1] - h[k]
			}
		}
		if total < dqMinSamples {
			continue
		}
		sum += float64(rise) / float64(total)
		n++
	}
	if n < dqMinPositions {
		return 0, false
	}
	return sum / float64(n), true
}

var zigzag = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

// jpegLumaTable reads quantisation table 0 from the DQT segments of a JPEG,
// in natural (row-major) order.
func jpegLumaTable(b []byte) (*[64]int, bool) {
	if len(b) < 4 || b[0] != 0xFF || b[1] != 0xD8 {
		return nil, false
	}
	for i := 2; i+4 <= len(b); {
		if b[i] != 0xFF {
			return nil, false
		}
		marker := b[i+1]
		if marker == 0xDA || marker == 0xD9 {
			return nil, false
		}
		n := int(binary.BigEndian.Uint16(b[i+2:]))
		if n < 2 || i+2+n > len(b) {
			return nil, false
		}
		if marker == 0xDB {
			seg := b[i+4 : i+2+n]
			for len(seg) > 0 {
				prec, id := seg[0]>>4, seg[0]&0x0F
				size := 64
				if prec == 1 {
					size = 128
				}
				if len(seg) < 1+size {
					return nil, false
				}
				if id == 0 {
					var t [64]int
					for z := 0; z < 64; z++ {
						v := int(seg[1+z])
						if prec == 1 {
							v = int(binary.BigEndian.Uint16(seg[1+2*z:]))
						}
						t[zigzag[z]] = v
					}
					return &t, true
				}
				seg = seg[1+size:]
			}
		}
		i += 2 + n
	}
	return nil, false
}
