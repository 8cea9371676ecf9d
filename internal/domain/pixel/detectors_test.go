package pixel

import (
	"image"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planeOf(img image.Image) *plane { return luminance(img) }

func TestDetectOverSmoothing(t *testing.T) {
	smooth := image.NewGray(image.Rect(0, 0, 256, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			smooth.Pix[y*smooth.Stride+x] = uint8((x + y) / 2)
		}
	}
	d := detectOverSmoothing(planeOf(smooth))
	assert.True(t, d.Triggered())
	assert.GreaterOrEqual(t, d.Confidence, 0.3)

	assert.False(t, detectOverSmoothing(planeOf(valueNoise(256, 256, 16, 40, 6, 10))).Triggered())
}

func TestDetectNoiseInconsistency(t *testing.T) {
	img := valueNoise(512, 512, 16, 40, 4, 11)
	assert.False(t, detectNoiseInconsistency(planeOf(img)).Triggered())

	rng := rand.New(rand.NewPCG(7, 7))
	for y := 128; y < 192; y++ {
		for x := 128; x < 192; x++ {
			i := y*img.Stride + x
			img.Pix[i] = toByte(float64(img.Pix[i]) + rng.NormFloat64()*30)
		}
	}
	d := detectNoiseInconsistency(planeOf(img))
	assert.True(t, d.Triggered(), d.Detail)
	assert.GreaterOrEqual(t, d.Confidence, 0.3)
}

func TestDetectCopyMove(t *testing.T) {
	img := valueNoise(512, 512, 16, 60, 2, 12)
	assert.False(t, detectCopyMove(planeOf(img)).Triggered())

	const size, sx, sy, dx, dy = 128, 64, 64, 300, 280
	for y := 0; y < size; y++ {
		copy(img.Pix[(dy+y)*img.Stride+dx:(dy+y)*img.Stride+dx+size], img.Pix[(sy+y)*img.Stride+sx:])
	}
	d := detectCopyMove(planeOf(img))
	assert.True(t, d.Triggered(), "no cloned-region cluster found")
	assert.GreaterOrEqual(t, d.Confidence, 0.4)
}

func TestDetectHistogramUniformity(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 256, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			flat.Pix[y*flat.Stride+x] = uint8(x)
		}
	}
	d := detectHistogramUniformity(planeOf(flat))
	assert.True(t, d.Triggered())
	assert.LessOrEqual(t, d.Confidence, histConfidenceCap)

	assert.False(t, detectHistogramUniformity(planeOf(valueNoise(256, 256, 16, 40, 6, 13))).Triggered())
}

func TestDetectLighting(t *testing.T) {
	img := valueNoise(256, 256, 16, 10, 3, 14)
	assert.False(t, detectLighting(planeOf(img)).Triggered())

	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			shift := -60.0
			if (x < 128) == (y < 128) {
				shift = 60
			}
			i := y*img.Stride + x
			img.Pix[i] = toByte(float64(img.Pix[i]) + shift)
		}
	}
	d := detectLighting(planeOf(img))
	assert.True(t, d.Triggered())
	assert.LessOrEqual(t, d.Confidence, lightConfidenceCap)
}

// blockify replaces 8x8 blocks starting at (x0,y0) with their mean, which
// leaves a strong blocking grid in that phase.
func blockify(img *image.Gray, x0, y0, x1, y1 int) {
	for by := y0; by+8 <= y1; by += 8 {
		for bx := x0; bx+8 <= x1; bx += 8 {
			sum := 0
			for y := by; y < by+8; y++ {
				for x := bx; x < bx+8; x++ {
					sum += int(img.Pix[y*img.Stride+x])
				}
			}
			m := uint8((sum + 32) / 64)
			for y := by; y < by+8; y++ {
				for x := bx; x < bx+8; x++ {
					img.Pix[y*img.Stride+x] = m
				}
			}
		}
	}
}

func TestDetectLocalizedBlocking(t *testing.T) {
	img := valueNoise(512, 512, 16, 40, 6, 15)
	assert.False(t, detectLocalizedBlocking(planeOf(img)).Triggered())

	blockify(img, 131, 131, 251, 251)
	d := detectLocalizedBlocking(planeOf(img))
	assert.True(t, d.Triggered(), d.Detail)
	assert.InDelta(t, 0.4, d.Confidence, 1e-9)
}

func TestDetectLocalizedBlocking_WholeImageIsNotLocalized(t *testing.T) {
	img := valueNoise(512, 512, 16, 40, 6, 16)
	blockify(img, 3, 3, 512, 512)
	assert.False(t, detectLocalizedBlocking(planeOf(img)).Triggered())
}

func TestDetectRecompression_ShiftedGrid(t *testing.T) {
	src := valueNoise(512, 512, 16, 40, 6, 17)
	assert.False(t, detectRecompression(planeOf(src), nil).Triggered())

	once := decode(t, encodeJPEG(t, src, 30))
	cropped := toGray(once.(interface {
		SubImage(image.Rectangle) image.Image
	}).SubImage(image.Rect(3, 5, 512, 512)))
	resaved := decode(t, encodePNG(t, cropped))

	d := detectRecompression(planeOf(resaved), nil)
	assert.True(t, d.Triggered(), d.Detail)
	assert.Contains(t, d.Detail, "non-zero offset")
}

func TestDetectRecompression_DoubleQuantisation(t *testing.T) {
	src := valueNoise(512, 512, 16, 40, 6, 18)

	single := encodeJPEG(t, src, 75)
	q, ok := jpegLumaTable(single)
	require.True(t, ok)
	assert.False(t, detectRecompression(planeOf(decode(t, single)), q).Triggered())

	first := decode(t, encodeJPEG(t, src, 50))
	double := encodeJPEG(t, first, 75)
	q, ok = jpegLumaTable(double)
	require.True(t, ok)
	d := detectRecompression(planeOf(decode(t, double)), q)
	assert.True(t, d.Triggered(), d.Detail)
	assert.True(t, strings.Contains(d.Detail, "double quantisation"), d.Detail)
}

func TestJPEGLumaTable(t *testing.T) {
	data := encodeJPEG(t, valueNoise(64, 64, 16, 40, 6, 19), 50)
	q, ok := jpegLumaTable(data)
	require.True(t, ok)
	// standard luminance table at quality 50, natural order
	assert.Equal(t, 16, q[0])
	assert.Equal(t, 11, q[1])
	assert.Equal(t, 12, q[8])
	assert.Equal(t, 14, q[16])

	_, ok = jpegLumaTable(encodePNG(t, valueNoise(16, 16, 8, 10, 1, 20)))
	assert.False(t, ok)
}

func TestPlane_CropKeepsGridPhase(t *testing.T) {
	p := newPlane(3000, 2100)
	c := p.cropCenter(2048)
	assert.Equal(t, 2048, c.w)
	assert.Equal(t, 2048, c.h)

	d := p.downscale(1024)
	assert.LessOrEqual(t, max(d.w, d.h), 1024)
}
