package pixel

import (
	"image"
	"math"
)

// plane is a single-channel float image, row-major.
type plane struct {
	w, h int
	pix  []float64
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, pix: make([]float64, w*h)}
}

func (p *plane) at(x, y int) float64 { return p.pix[y*p.w+x] }

func (p *plane) set(x, y int, v float64) { p.pix[y*p.w+x] = v }

// luminance converts the whole image to Rec. 601 luma. The analyzer uses
// workPlane and nativePlane instead, which never hold the full resolution.
func luminance(img image.Image) *plane {
	b := img.Bounds()
	p := newPlane(b.Dx(), b.Dy())
	for y := 0; y < p.h; y++ {
		lumaRow(img, y, 0, p.pix[y*p.w:(y+1)*p.w])
	}
	return p
}

// lumaRow fills dst with the luma of row y from column x0, both relative
// to the image bounds. JPEG-decoded images use their Y plane as stored so
// quantisation traces survive.
func lumaRow(img image.Image, y, x0 int, dst []float64) {
	b := img.Bounds()
	ax, ay := b.Min.X+x0, b.Min.Y+y
	switch m := img.(type) {
	case *image.YCbCr:
		for i := range dst {
			dst[i] = float64(m.Y[m.YOffset(ax+i, ay)])
		}
	case *image.Gray:
		row := m.Pix[m.PixOffset(ax, ay):]
		for i := range dst {
			dst[i] = float64(row[i])
		}
	case *image.NRGBA:
		for i := range dst {
			j := m.PixOffset(ax+i, ay)
			dst[i] = luma(float64(m.Pix[j]), float64(m.Pix[j+1]), float64(m.Pix[j+2]))
		}
	default:
		for i := range dst {
			r, g, bl, _ := img.At(ax+i, ay).RGBA()
			dst[i] = luma(float64(r>>8), float64(g>>8), float64(bl>>8))
		}
	}
}

// workPlane is luminance(img).downscale(maxSide) computed f source rows at
// a time.
func workPlane(img image.Image, maxSide int) *plane {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	long := max(w, h)
	if long <= maxSide {
		return luminance(img)
	}
	f := (long + maxSide - 1) / maxSide
	out := newPlane(w/f, h/f)
	band := make([]float64, f*w)
	inv := 1 / float64(f*f)
	for y := 0; y < out.h; y++ {
		for dy := 0; dy < f; dy++ {
			lumaRow(img, y*f+dy, 0, band[dy*w:(dy+1)*w])
		}
		for x := 0; x < out.w; x++ {
			var s float64
			for dy := 0; dy < f; dy++ {
				row := dy * w
				for dx := 0; dx < f; dx++ {
					s += band[row+x*f+dx]
				}
			}
			out.set(x, y, s*inv)
		}
	}
	return out
}

// nativePlane is luminance(img).cropCenter(maxSide) without converting the
// rows outside the window.
func nativePlane(img image.Image, maxSide int) *plane {
	b := img.Bounds()
	iw, ih := b.Dx(), b.Dy()
	w, h := min(iw, maxSide), min(ih, maxSide)
	ox := ((iw - w) / 2) &^ 7
	oy := ((ih - h) / 2) &^ 7
	out := newPlane(w, h)
	for y := 0; y < h; y++ {
		lumaRow(img, oy+y, ox, out.pix[y*w:(y+1)*w])
	}
	return out
}

func luma(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

// downscale box-averages by the smallest integer factor that brings the
// long side to at most maxSide.
func (p *plane) downscale(maxSide int) *plane {
	long := max(p.w, p.h)
	if long <= maxSide {
		return p
	}
	f := (long + maxSide - 1) / maxSide
	out := newPlane(p.w/f, p.h/f)
	inv := 1 / float64(f*f)
	for y := 0; y < out.h; y++ {
		for x := 0; x < out.w; x++ {
			var s float64
			for dy := 0; dy < f; dy++ {
				row := (y*f + dy) * p.w
				for dx := 0; dx < f; dx++ {
					s += p.pix[row+x*f+dx]
				}
			}
			out.set(x, y, s*inv)
		}
	}
	return out
}

// cropCenter cuts a centred window of at most maxSide per axis. Offsets are
// rounded down to the 8-pixel grid so block positions keep their phase.
func (p *plane) cropCenter(maxSide int) *plane {
	if p.w <= maxSide && p.h <= maxSide {
		return p
	}
	w, h := min(p.w, maxSide), min(p.h, maxSide)
	ox := ((p.w - w) / 2) &^ 7
	oy := ((p.h - h) / 2) &^ 7
	out := newPlane(w, h)
	for y := 0; y < h; y++ {
		copy(out.pix[y*w:(y+1)*w], p.pix[(y+oy)*p.w+ox:])
	}
	return out
}

// sub returns a copy of the rectangle [x0,x0+w) x [y0,y0+h).
func (p *plane) sub(x0, y0, w, h int) *plane {
	out := newPlane(w, h)
	for y := 0; y < h; y++ {
		copy(out.pix[y*w:(y+1)*w], p.pix[(y+y0)*p.w+x0:])
	}
	return out
}

// boxBlur applies a separable (2r+1) box filter with clamped edges.
func (p *plane) boxBlur(r int) *plane {
	tmp := newPlane(p.w, p.h)
	out := newPlane(p.w, p.h)
	n := float64(2*r + 1)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var s float64
			for k := -r; k <= r; k++ {
				s += p.at(clampInt(x+k, 0, p.w-1), y)
			}
			tmp.set(x, y, s/n)
		}
	}
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var s float64
			for k := -r; k <= r; k++ {
				s += tmp.at(x, clampInt(y+k, 0, p.h-1))
			}
			out.set(x, y, s/n)
		}
	}
	return out
}

func (p *plane) mean() float64 {
	if len(p.pix) == 0 {
		return 0
	}
	var s float64
	for _, v := range p.pix {
		s += v
	}
	return s / float64(len(p.pix))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
