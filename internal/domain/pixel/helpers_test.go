package pixel

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

// valueNoise renders a bilinear value-noise texture on a cell-sized lattice
// around mid grey plus Gaussian sensor-like noise.
func valueNoise(w, h, cell int, amp, sigma float64, seed uint64) *image.Gray {
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	gw, gh := w/cell+2, h/cell+2
	lattice := make([]float64, gw*gh)
	for i := range lattice {
		lattice[i] = (rng.Float64()*2 - 1) * amp
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cx, cy := x/cell, y/cell
			fx, fy := float64(x%cell)/float64(cell), float64(y%cell)/float64(cell)
			a, b := lattice[cy*gw+cx], lattice[cy*gw+cx+1]
			c, d := lattice[(cy+1)*gw+cx], lattice[(cy+1)*gw+cx+1]
			v := a*(1-fx)*(1-fy) + b*fx*(1-fy) + c*(1-fx)*fy + d*fx*fy
			img.Pix[y*img.Stride+x] = toByte(128 + v + rng.NormFloat64()*sigma)
		}
	}
	return img
}

func toByte(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func uploadAsset(idx int, encoding string, data []byte, meta document.ImageMetadata) document.ImageAsset {
	return document.NewImageAsset(idx, 1, document.SourceUpload, encoding, data, meta)
}

// toGray copies any image into a zero-origin grey raster.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// pngHeader is a PNG that declares w x h 8-bit grey but carries no pixel
// data; enough for image.DecodeConfig.
func pngHeader(w, h int) []byte {
	chunk := func(typ string, data []byte) []byte {
		var b bytes.Buffer
		binary.Write(&b, binary.BigEndian, uint32(len(data)))
		b.WriteString(typ)
		b.Write(data)
		binary.Write(&b, binary.BigEndian, crc32.ChecksumIEEE(append([]byte(typ), data...)))
		return b.Bytes()
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], uint32(w))
	binary.BigEndian.PutUint32(ihdr[4:], uint32(h))
	ihdr[8] = 8 // bit depth, colour type 0 (grey)
	out := []byte("\x89PNG\r\n\x1a\n")
	out = append(out, chunk("IHDR", ihdr)...)
	return append(out, chunk("IEND", nil)...)
}
