package structural

import (
	"bytes"
	"fmt"
	"sort"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
)

// pdfBuilder writes small but well-formed PDFs with optional incremental
// update sections.
type pdfBuilder struct {
	buf      bytes.Buffer
	pending  map[int]int
	lastXref int
}

func newPDF() *pdfBuilder {
	b := &pdfBuilder{pending: map[int]int{}}
	b.buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	return b
}

func (b *pdfBuilder) obj(num int, body string) *pdfBuilder {
	b.pending[num] = b.buf.Len()
	fmt.Fprintf(&b.buf, "%d 0 obj\n%s\nendobj\n", num, body)
	return b
}

func (b *pdfBuilder) stream(num int, dict string, data []byte) *pdfBuilder {
	b.pending[num] = b.buf.Len()
	fmt.Fprintf(&b.buf, "%d 0 obj\n<<%s /Length %d>>\nstream\n", num, dict, len(data))
	b.buf.Write(data)
	b.buf.WriteString("\nendstream\nendobj\n")
	return b
}

// section closes a revision with an xref table, trailer and startxref.
func (b *pdfBuilder) section(trailer string) *pdfBuilder {
	at := b.buf.Len()
	nums := make([]int, 0, len(b.pending))
	for n := range b.pending {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	b.buf.WriteString("xref\n0 1\n0000000000 65535 f \n")
	for _, n := range nums {
		fmt.Fprintf(&b.buf, "%d 1\n%010d 00000 n \n", n, b.pending[n])
	}
	prev := ""
	if b.lastXref > 0 {
		prev = fmt.Sprintf(" /Prev %d", b.lastXref)
	}
	fmt.Fprintf(&b.buf, "trailer\n<<%s%s>>\nstartxref\n%d\n%%%%EOF\n", trailer, prev, at)
	b.pending = map[int]int{}
	b.lastXref = at
	return b
}

func (b *pdfBuilder) bytes() []byte { return append([]byte(nil), b.buf.Bytes()...) }

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	zw := zlib.NewWriter(&out)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return out.Bytes()
}

const (
	stdTrailer = " /Size 7 /Root 1 0 R /Info 6 0 R"
	textOp     = "BT /F1 12 Tf 72 712 Td (Invoice 42) Tj ET"
)

// basePDF is a one-page document with a font and a text layer, produced
// by a trusted tool.
func basePDF(t *testing.T) *pdfBuilder {
	t.Helper()
	return newPDF().
		obj(1, "<< /Type /Catalog /Pages 2 0 R >>").
		obj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>").
		obj(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>").
		stream(4, "", []byte(textOp)).
		obj(5, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>").
		obj(6, "<< /Producer (LibreOffice 7.5) /Creator (Writer) /CreationDate (D:20240101120000+00'00') /ModDate (D:20240101120000+00'00') >>")
}
