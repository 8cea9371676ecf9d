package structural

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
	"github.com/bryanwahyu/docrisk/internal/domain/imagemeta"
)

// headerWindow is how far into the file the %PDF- header may start.
const headerWindow = 1024

var rasterFormats = map[string]document.Format{
	"jpeg": document.FormatJPEG,
	"png":  document.FormatPNG,
	"gif":  document.FormatGIF,
	"tiff": document.FormatTIFF,
	"webp": document.FormatWebP,
	"bmp":  document.FormatBMP,
}

// Container is a parsed submission. It is built once per document and
// shared read-only by the structural and pixel stages.
type Container struct {
	Format document.Format

	raw       []byte
	codec     string
	pdf       *pdfFile
	images    []document.ImageAsset
	rasterEnd int
	rasterErr error
}

// Detect sniffs the container format without parsing it.
func Detect(raw []byte) document.Format {
	head := raw
	if len(head) > headerWindow {
		head = head[:headerWindow]
	}
	if bytes.Contains(head, []byte("%PDF-")) {
		return document.FormatPDF
	}
	if _, name, err := image.DecodeConfig(bytes.NewReader(raw)); err == nil {
		if f, ok := rasterFormats[name]; ok {
			return f
		}
	}
	return document.FormatUnknown
}

// Parse builds the container model. Unrecognised input returns
// document.ErrUnsupportedContainer; damaged but recognisable input parses
// with problems recorded instead of failing.
func Parse(raw []byte) (*Container, error) {
	return ParseContext(context.Background(), raw)
}

// ParseContext is Parse, abandoned with ctx's error once ctx ends.
func ParseContext(ctx context.Context, raw []byte) (*Container, error) {
	c := &Container{Format: Detect(raw), raw: raw}
	switch {
	case c.Format == document.FormatPDF:
		f, err := parsePDF(ctx, raw)
		if err != nil {
			return nil, err
		}
		c.pdf = f
		if c.images, err = f.extractImages(); err != nil {
			return nil, err
		}
	case c.Format.IsRaster():
		c.codec = string(c.Format)
		end, ok, err := rasterEnd(c.codec, raw)
		if ok {
			c.rasterEnd, c.rasterErr = end, err
		}
		c.images = []document.ImageAsset{
			document.NewImageAsset(0, 1, document.SourceUpload, c.codec, raw, imagemeta.Read(raw)),
		}
	default:
		return nil, fmt.Errorf("%d bytes: %w", len(raw), document.ErrUnsupportedContainer)
	}
	return c, nil
}

// Raw returns the container bytes.
func (c *Container) Raw() []byte { return c.raw }

// Images returns the image assets of the container in discovery order.
func (c *Container) Images() []document.ImageAsset {
	return append([]document.ImageAsset(nil), c.images...)
}

// Info returns the document information dictionary; zero for rasters.
func (c *Container) Info() Info {
	if c.pdf == nil {
		return Info{}
	}
	return c.pdf.info
}
