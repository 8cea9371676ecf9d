package structural

import (
	"fmt"
	"image"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
	"github.com/bryanwahyu/docrisk/internal/domain/imagemeta"
)

// passthrough filters hand back an encoded image file rather than samples.
var passthrough = map[string]string{
	"DCTDecode":      "jpeg",
	"DCT":            "jpeg",
	"JPXDecode":      "jpx",
	"JBIG2Decode":    "jbig2",
	"CCITTFaxDecode": "ccitt",
	"CCF":            "ccitt",
}

func passthroughFilters() []string {
	keep := make([]string, 0, len(passthrough))
	for k := range passthrough {
		keep = append(keep, k)
	}
	return keep
}

// extractImages turns the image XObjects of the file into assets, in
// object number order. Images whose samples cannot be reconstructed are
// still returned so the pixel stage can report them as undecodable.
func (f *pdfFile) extractImages() ([]document.ImageAsset, error) {
	assets := make([]document.ImageAsset, 0, len(f.imageObjects))
	for _, num := range f.imageObjects {
		if f.stopped() {
			return nil, f.err
		}
		o := f.objects[num]
		idx := len(assets)
		page := f.imagePage[num]
		d := o.dict()

		encoding := "raw"
		for _, fl := range d.names("Filter") {
			if e, ok := passthrough[fl]; ok {
				encoding = e
				break
			}
		}

		if encoding != "raw" {
			data, err := decodeStream(o, passthroughFilters()...)
			if err != nil {
				data = nil
			}
			var meta document.ImageMetadata
			if encoding == "jpeg" {
				meta = imagemeta.Read(data)
			}
			a := document.NewImageAsset(idx, page, document.SourceEmbedded, encoding, data, meta)
			a.Width, a.Height = dimsOr(a, d)
			assets = append(assets, a)
			continue
		}

		img, err := f.rawImage(o)
		if err != nil {
			a := document.NewImageAsset(idx, page, document.SourceEmbedded, "raw-unsupported", nil, document.ImageMetadata{})
			a.Width, a.Height = dimsOr(a, d)
			assets = append(assets, a)
			continue
		}
		assets = append(assets, document.NewRasterAsset(idx, page, document.SourceEmbedded, img))
	}
	return assets, nil
}

func dimsOr(a document.ImageAsset, d pdfDict) (int, int) {
	if a.Width > 0 && a.Height > 0 {
		return a.Width, a.Height
	}
	w, _ := d.int("Width")
	h, _ := d.int("Height")
	return w, h
}

// components returns the sample count per pixel of a color space, 0 when
// the space is not supported.
func (f *pdfFile) components(cs any) int {
	switch v := f.resolve(cs).(type) {
	case pdfName:
		switch v {
		case "DeviceGray", "CalGray", "G":
			return 1
		case "DeviceRGB", "CalRGB", "RGB":
			return 3
		case "DeviceCMYK", "CMYK":
			return 4
		}
	case pdfArray:
		if len(v) == 2 {
			if n, _ := v[0].(pdfName); n == "ICCBased" {
				if r, ok := v[1].(pdfRef); ok {
					if o := f.objects[r.Num]; o != nil {
						if c, ok := o.dict().int("N"); ok {
							return c
						}
					}
				}
			}
		}
	}
	return 0
}

// rawImage rebuilds an 8-bit raster from decoded samples.
func (f *pdfFile) rawImage(o *pdfObject) (image.Image, error) {
	d := o.dict()
	w, _ := d.int("Width")
	h, _ := d.int("Height")
	if w <= 0 || h <= 0 || w > 1<<15 || h > 1<<15 {
		return nil, fmt.Errorf("image %d: bad dimensions %dx%d", o.Num, w, h)
	}
	if w*h > document.MaxImagePixels {
		return nil, fmt.Errorf("image %d: %dx%d: %w", o.Num, w, h, document.ErrImageTooLarge)
	}
	if bpc, _ := d.int("BitsPerComponent"); bpc != 8 {
		return nil, fmt.Errorf("image %d: %d bits per component: %w", o.Num, bpc, errUnsupportedFilter)
	}
	comps := f.components(d["ColorSpace"])
	if comps != 1 && comps != 3 && comps != 4 {
		return nil, fmt.Errorf("image %d: unsupported color space: %w", o.Num, errUnsupportedFilter)
	}
	data, err := decodeStream(o)
	if err != nil {
		return nil, err
	}
	if len(data) < w*h*comps {
		return nil, fmt.Errorf("image %d: %d bytes of samples, want %d", o.Num, len(data), w*h*comps)
	}

	rect := image.Rect(0, 0, w, h)
	switch comps {
	case 1:
		img := image.NewGray(rect)
		copy(img.Pix, data[:w*h])
		return img, nil
	case 4:
		img := image.NewCMYK(rect)
		copy(img.Pix, data[:w*h*4])
		return img, nil
	}
	img := image.NewNRGBA(rect)
	for i := 0; i < w*h; i++ {
		img.Pix[i*4] = data[i*3]
		img.Pix[i*4+1] = data[i*3+1]
		img.Pix[i*4+2] = data[i*3+2]
		img.Pix[i*4+3] = 0xFF
	}
	return img, nil
}
