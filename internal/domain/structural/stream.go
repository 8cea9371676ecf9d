package structural

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// maxInflated bounds a single decoded stream.
const maxInflated = 64 << 20

var errUnsupportedFilter = errors.New("unsupported stream filter")

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("flate: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxInflated+1))
	if len(out) > maxInflated {
		return nil, fmt.Errorf("flate: stream exceeds %d bytes", maxInflated)
	}
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("flate: %w", err)
	}
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("flate: %w", err)
	}
	return out, nil
}

// decodeParms returns the decode parameters matching filter position i.
func decodeParms(d pdfDict, i int) pdfDict {
	switch v := d["DecodeParms"].(type) {
	case pdfDict:
		if i == 0 {
			return v
		}
	case pdfArray:
		if i < len(v) {
			if p, ok := v[i].(pdfDict); ok {
				return p
			}
		}
	}
	return nil
}

// decodeStream applies the stream's filters in order, stopping before the
// first filter named in keep (e.g. DCTDecode for image passthrough).
func decodeStream(o *pdfObject, keep ...string) ([]byte, error) {
	d := o.dict()
	data := o.Stream
	for i, f := range d.names("Filter") {
		for _, k := range keep {
			if f == k {
				return data, nil
			}
		}
		switch f {
		case "FlateDecode", "Fl":
			out, err := inflate(data)
			if err != nil {
				return nil, fmt.Errorf("object %d: %w", o.Num, err)
			}
			if p := decodeParms(d, i); p != nil {
				if pred, _ := p.int("Predictor"); pred >= 10 {
					out, err = unpredictPNG(out, p)
					if err != nil {
						return nil, fmt.Errorf("object %d: %w", o.Num, err)
					}
				} else if pred > 1 {
					return nil, fmt.Errorf("object %d: predictor %d: %w", o.Num, pred, errUnsupportedFilter)
				}
			}
			data = out
		default:
			return nil, fmt.Errorf("object %d: %s: %w", o.Num, f, errUnsupportedFilter)
		}
	}
	return data, nil
}

// unpredictPNG reverses the PNG row filters used by FlateDecode predictors 10-15.
// Limits on /DecodeParms for the PNG predictor.
const (
	maxColors = 32
	maxBPC    = 16
)

func unpredictPNG(data []byte, p pdfDict) ([]byte, error) {
	columns, ok := p.int("Columns")
	if !ok || columns <= 0 {
		columns = 1
	}
	colors, ok := p.int("Colors")
	if !ok || colors <= 0 {
		colors = 1
	}
	bpc, ok := p.int("BitsPerComponent")
	if !ok || bpc <= 0 {
		bpc = 8
	}
	if colors > maxColors || bpc > maxBPC {
		return nil, fmt.Errorf("predictor: %d colors at %d bits unsupported", colors, bpc)
	}
	// columns is at most MaxInt32 here, so the product fits in an int
	bpp := (colors*bpc + 7) / 8
	rowLen := (columns*colors*bpc + 7) / 8
	if rowLen >= len(data) {
		return nil, fmt.Errorf("predictor: row of %d bytes exceeds %d bytes of data", rowLen, len(data))
	}

	out := make([]byte, 0, len(data))
	prev := make([]byte, rowLen)
	for off := 0; off+1+rowLen <= len(data); off += 1 + rowLen {
		ft := data[off]
		row := append([]byte(nil), data[off+1:off+1+rowLen]...)
		for i := range row {
			var left, upLeft byte
			if i >= bpp {
				left = row[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			switch ft {
			case 0:
			case 1:
				row[i] += left
			case 2:
				row[i] += up
			case 3:
				row[i] += byte((int(left) + int(up)) / 2)
			case 4:
				row[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("predictor: unknown row filter %d", ft)
			}
		}
		out = append(out, row...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
