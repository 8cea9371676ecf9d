package structural

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

func analyze(t *testing.T, raw []byte) Result {
	t.Helper()
	return NewAnalyzer(DefaultToolPolicy()).AnalyzeBytes(raw)
}

func kinds(fs []document.Finding) []document.FindingKind {
	out := make([]document.FindingKind, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Kind)
	}
	return out
}

func TestAnalyze_CleanDocument(t *testing.T) {
	raw := basePDF(t).section(stdTrailer).bytes()
	res := analyze(t, raw)

	require.True(t, res.Score.Valid)
	assert.Equal(t, 100.0, res.Score.Value)
	assert.Empty(t, res.Findings)
	assert.Equal(t, document.FormatPDF, res.Format)
	assert.Equal(t, "1.7", res.Metadata.Version)
	assert.Equal(t, 1, res.Metadata.Revisions)
	assert.Equal(t, 0, res.Metadata.AppendedUpdates)
	assert.Equal(t, ToolTrusted, res.Metadata.ProducerTrust)
	assert.Equal(t, "LibreOffice 7.5", res.Metadata.Info.Producer)
	assert.Empty(t, res.Metadata.Problems)
	assert.Len(t, res.ContentHash, 64)
}

func TestAnalyze_MultipleAppendedUpdates(t *testing.T) {
	b := basePDF(t).section(stdTrailer)
	b.obj(6, "<< /Producer (LibreOffice 7.5) /CreationDate (D:20240101120000Z) /ModDate (D:20240301090000Z) >>").section(stdTrailer)
	b.obj(6, "<< /Producer (LibreOffice 7.5) /CreationDate (D:20240101120000Z) /ModDate (D:20240302090000Z) >>").section(stdTrailer)
	res := analyze(t, b.bytes())

	require.True(t, res.Score.Valid)
	assert.Equal(t, 3, res.Metadata.Revisions)
	assert.Equal(t, 2, res.Metadata.AppendedUpdates)
	assert.LessOrEqual(t, res.Score.Value, 70.0)
	assert.Equal(t, 60.0, res.Score.Value)
	assert.Equal(t, []document.FindingKind{document.KindMultipleUpdateTables, document.KindUnlinearizedUpdate}, kinds(res.Findings))
	assert.Equal(t, document.SeverityCritical, res.Findings[0].Severity)
	for _, f := range res.Findings {
		assert.Equal(t, document.ComponentStructural, f.Component)
	}
}

func TestAnalyze_SingleUpdateIsMedium(t *testing.T) {
	b := basePDF(t).section(stdTrailer)
	b.obj(6, "<< /Producer (LibreOffice 7.5) >>").section(stdTrailer)
	res := analyze(t, b.bytes())

	assert.Equal(t, []document.FindingKind{document.KindUnlinearizedUpdate}, kinds(res.Findings))
	assert.Equal(t, 90.0, res.Score.Value)
}

func TestAnalyze_LinearizedFileIsNotAnUpdate(t *testing.T) {
	b := newPDF().obj(10, "<< /Linearized 1 /L 2000 /N 1 >>")
	b.obj(1, "<< /Type /Catalog /Pages 2 0 R >>").
		obj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>").
		obj(3, "<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>").
		section(" /Size 11 /Root 1 0 R")
	b.stream(4, "", []byte(textOp)).
		obj(5, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>").
		section(" /Size 11 /Root 1 0 R")
	res := analyze(t, b.bytes())

	assert.True(t, res.Metadata.Linearized)
	assert.Equal(t, 2, res.Metadata.Revisions)
	assert.Equal(t, 0, res.Metadata.AppendedUpdates)
	assert.Empty(t, res.Findings)
}

func TestAnalyze_Idempotent(t *testing.T) {
	b := basePDF(t).section(stdTrailer)
	b.obj(6, "<< /Producer (iLovePDF) >>").section(stdTrailer)
	raw := b.bytes()

	a := NewAnalyzer(DefaultToolPolicy())
	first := a.AnalyzeBytes(raw)
	second := a.AnalyzeBytes(raw)
	assert.Equal(t, first, second)
}

func TestAnalyze_Unparseable(t *testing.T) {
	for name, raw := range map[string][]byte{
		"empty": nil,
		"text":  []byte("just some plain text, not a document"),
		"zip":   {0x50, 0x4B, 0x03, 0x04, 0x14, 0x00},
	} {
		t.Run(name, func(t *testing.T) {
			res := analyze(t, raw)
			assert.False(t, res.Score.Valid)
			assert.Empty(t, res.Findings)
			assert.Equal(t, document.FormatUnknown, res.Format)
			assert.Equal(t, ContentHash(raw), res.ContentHash)
		})
	}
}

func TestAnalyze_SuspiciousToolRecordedOnce(t *testing.T) {
	raw := newPDF().
		obj(1, "<< /Type /Catalog /Pages 2 0 R >>").
		obj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>").
		obj(3, "<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>").
		stream(4, "", []byte(textOp)).
		obj(5, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>").
		obj(6, "<< /Producer <FEFF0069004C006F00760065005000440046> /Creator (Smallpdf.com) >>").
		section(stdTrailer).bytes()
	res := analyze(t, raw)

	assert.Equal(t, "iLovePDF", res.Metadata.Info.Producer)
	assert.Equal(t, ToolSuspicious, res.Metadata.ProducerTrust)
	assert.Equal(t, []document.FindingKind{document.KindSuspiciousAuthoringTool}, kinds(res.Findings))
	assert.Equal(t, document.SeverityHigh, res.Findings[0].Severity)
	assert.Equal(t, 80.0, res.Score.Value)
}

func TestAnalyze_UnknownToolHasNoPenalty(t *testing.T) {
	b := basePDF(t)
	b.obj(6, "<< /Producer (Acme Statement Engine 3.2) >>")
	res := analyze(t, b.section(stdTrailer).bytes())

	assert.Equal(t, ToolUnknown, res.Metadata.ProducerTrust)
	assert.Empty(t, res.Findings)
	assert.Equal(t, 100.0, res.Score.Value)
}

func TestAnalyze_PageCountMismatch(t *testing.T) {
	b := basePDF(t)
	b.obj(2, "<< /Type /Pages /Kids [3 0 R] /Count 2 >>")
	res := analyze(t, b.section(stdTrailer).bytes())

	assert.Equal(t, []document.FindingKind{document.KindPageCountMismatch}, kinds(res.Findings))
	assert.Equal(t, 2, res.Metadata.DeclaredPages)
	assert.Equal(t, 1, res.Metadata.PageObjects)
}

func TestAnalyze_MinimalContent(t *testing.T) {
	raw := newPDF().
		obj(1, "<< /Type /Catalog /Pages 2 0 R >>").
		obj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>").
		obj(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R >>").
		stream(4, "", []byte("0 0 m 100 100 l S")).
		obj(6, "<< /Producer (LibreOffice 7.5) >>").
		section(stdTrailer).bytes()
	res := analyze(t, raw)

	assert.Equal(t, []document.FindingKind{document.KindMinimalContent}, kinds(res.Findings))
	assert.Equal(t, document.SeverityLow, res.Findings[0].Severity)
	assert.Equal(t, 95.0, res.Score.Value)
}

func TestAnalyze_CompressedTextLayer(t *testing.T) {
	raw := newPDF().
		obj(1, "<< /Type /Catalog /Pages 2 0 R >>").
		obj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>").
		obj(3, "<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>").
		stream(4, " /Filter /FlateDecode", deflate(t, []byte(textOp))).
		obj(6, "<< /Producer (LibreOffice 7.5) >>").
		section(stdTrailer).bytes()
	res := analyze(t, raw)

	assert.Empty(t, res.Findings)
}

func TestAnalyze_ModDateBeforeCreation(t *testing.T) {
	b := basePDF(t)
	b.obj(6, "<< /Producer (LibreOffice 7.5) /CreationDate (D:20240510080000+02'00') /ModDate (D:20240509080000+02'00') >>")
	res := analyze(t, b.section(stdTrailer).bytes())

	assert.Equal(t, []document.FindingKind{document.KindMetadataTimestamp}, kinds(res.Findings))
	assert.Equal(t, document.SeverityMedium, res.Findings[0].Severity)
}

func TestAnalyze_PartialParse(t *testing.T) {
	raw := basePDF(t).bytes() // no xref, trailer or startxref
	res := analyze(t, raw)

	require.True(t, res.Score.Valid)
	assert.Contains(t, kinds(res.Findings), document.KindPartialParse)
	assert.NotEmpty(t, res.Metadata.Problems)
}

func TestAnalyze_PagesInObjectStream(t *testing.T) {
	header := "3 0 "
	body := "<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>"
	objstm := deflate(t, []byte(header+body))
	raw := newPDF().
		obj(1, "<< /Type /Catalog /Pages 2 0 R >>").
		obj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>").
		stream(7, " /Type /ObjStm /N 1 /First 4 /Filter /FlateDecode", objstm).
		stream(4, "", []byte(textOp)).
		obj(5, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>").
		obj(6, "<< /Producer (LibreOffice 7.5) >>").
		section(stdTrailer).bytes()
	res := analyze(t, raw)

	assert.Equal(t, 1, res.Metadata.PageObjects)
	assert.Empty(t, res.Findings)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x*7 + y*13) % 256)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 3), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func TestAnalyze_RasterClean(t *testing.T) {
	for name, raw := range map[string][]byte{
		"png":  pngBytes(t, 40, 30),
		"jpeg": jpegBytes(t, 40, 30),
	} {
		t.Run(name, func(t *testing.T) {
			res := analyze(t, raw)
			require.True(t, res.Score.Valid)
			assert.Equal(t, 100.0, res.Score.Value)
			assert.Empty(t, res.Findings)
			assert.Equal(t, 1, res.Metadata.Images)
		})
	}
}

func TestAnalyze_RasterTrailingData(t *testing.T) {
	payload := bytes.Repeat([]byte("PK\x03\x04hidden-archive"), 8)
	for name, raw := range map[string][]byte{
		"png":  append(pngBytes(t, 40, 30), payload...),
		"jpeg": append(jpegBytes(t, 40, 30), payload...),
	} {
		t.Run(name, func(t *testing.T) {
			res := analyze(t, raw)
			require.True(t, res.Score.Valid)
			assert.Equal(t, []document.FindingKind{document.KindTrailingData}, kinds(res.Findings))
			assert.Equal(t, 90.0, res.Score.Value)
		})
	}
}

func TestParse_RasterAsset(t *testing.T) {
	c, err := Parse(pngBytes(t, 40, 30))
	require.NoError(t, err)
	assert.Equal(t, document.FormatPNG, c.Format)

	imgs := c.Images()
	require.Len(t, imgs, 1)
	assert.Equal(t, document.SourceUpload, imgs[0].Source)
	assert.Equal(t, 40, imgs[0].Width)
	assert.Equal(t, 30, imgs[0].Height)
	assert.False(t, imgs[0].Metadata.HasEXIF)
}

func TestParse_UnsupportedContainer(t *testing.T) {
	_, err := Parse([]byte("GIF? no, just text"))
	assert.ErrorIs(t, err, document.ErrUnsupportedContainer)
}
