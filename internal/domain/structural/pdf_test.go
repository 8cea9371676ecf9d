package structural

import (
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

func TestParsePDFDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"D:20240102030405Z", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), true},
		{"D:20240102030405+02'00'", time.Date(2024, 1, 2, 1, 4, 5, 0, time.UTC), true},
		{"D:20240102030405-05'30", time.Date(2024, 1, 2, 8, 34, 5, 0, time.UTC), true},
		{"D:2024", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"20240615", time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"D:abc", time.Time{}, false},
		{"D:20241399", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parsePDFDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
			}
		})
	}
}

func TestLexer_Values(t *testing.T) {
	l := &lexer{buf: []byte(`<< /A 12 0 R /B [1 2.5 (a\(b\)c) <414243>] /C /Name /D true /E << /F null >> >>`)}
	v, err := l.value(0)
	require.NoError(t, err)
	d, ok := v.(pdfDict)
	require.True(t, ok)

	assert.Equal(t, pdfRef{Num: 12, Gen: 0}, d["A"])
	assert.Equal(t, pdfArray{1.0, 2.5, "a(b)c", "ABC"}, d["B"])
	assert.Equal(t, "Name", d.name("C"))
	assert.Equal(t, true, d["D"])
	inner, ok := d["E"].(pdfDict)
	require.True(t, ok)
	assert.Contains(t, inner, "F")
}

func TestLexer_Unterminated(t *testing.T) {
	l := &lexer{buf: []byte(`<< /A (open`)}
	_, err := l.value(0)
	assert.Error(t, err)
}

func TestUnpredictPNG(t *testing.T) {
	// two rows of three bytes: "Sub" then "Up"
	data := []byte{1, 10, 5, 5, 2, 1, 1, 1}
	out, err := unpredictPNG(data, pdfDict{"Columns": 3.0})
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 15, 20, 11, 16, 21}, out)
}

func TestExtractImages(t *testing.T) {
	jpg := jpegBytes(t, 24, 16)
	gray := make([]byte, 4*2)
	for i := range gray {
		gray[i] = byte(i * 30)
	}
	raw := newPDF().
		obj(1, "<< /Type /Catalog /Pages 2 0 R >>").
		obj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>").
		obj(3, "<< /Type /Page /Parent 2 0 R /Resources << /XObject << /Im1 7 0 R /Im2 8 0 R >> >> /Contents 4 0 R >>").
		stream(4, "", []byte("q 24 0 0 16 0 0 cm /Im1 Do Q")).
		obj(6, "<< /Producer (LibreOffice 7.5) >>").
		stream(7, fmt.Sprintf(" /Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode", 24, 16), jpg).
		stream(8, " /Type /XObject /Subtype /Image /Width 4 /Height 2 /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /FlateDecode", deflate(t, gray)).
		stream(9, " /Type /XObject /Subtype /Image /Width 4 /Height 2 /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /JPXDecode", []byte("not-really-jpx")).
		section(stdTrailer).bytes()

	c, err := Parse(raw)
	require.NoError(t, err)
	imgs := c.Images()
	require.Len(t, imgs, 3)

	assert.Equal(t, "jpeg", imgs[0].Encoding)
	assert.Equal(t, 1, imgs[0].Page)
	assert.Equal(t, document.SourceEmbedded, imgs[0].Source)
	assert.Equal(t, 24, imgs[0].Width)
	_, err = imgs[0].Decode()
	assert.NoError(t, err)

	assert.Equal(t, "raw", imgs[1].Encoding)
	dec, err := imgs[1].Decode()
	require.NoError(t, err)
	g, ok := dec.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, uint8(30), g.GrayAt(1, 0).Y)
	assert.Equal(t, 1, imgs[1].Page)

	assert.Equal(t, "jpx", imgs[2].Encoding)
	assert.Equal(t, 0, imgs[2].Page)
	assert.Equal(t, 4, imgs[2].Width)
	_, err = imgs[2].Decode()
	assert.Error(t, err)

	res := NewAnalyzer(DefaultToolPolicy()).Analyze(c)
	assert.Equal(t, 3, res.Metadata.Images)
	assert.Empty(t, res.Findings)
}

func TestToolPolicy_Classify(t *testing.T) {
	p := DefaultToolPolicy()
	assert.Equal(t, ToolTrusted, p.Classify("Microsoft® Word for Microsoft 365"))
	assert.Equal(t, ToolSuspicious, p.Classify("wkhtmltopdf 0.12.6"))
	assert.Equal(t, ToolSuspicious, p.Classify("Adobe PDF Library via iLovePDF"))
	assert.Equal(t, ToolUnknown, p.Classify("InHouse Renderer"))
	assert.Equal(t, ToolAbsent, p.Classify("  "))
}
