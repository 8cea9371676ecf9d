package structural

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"golang.org/x/text/encoding/unicode"
)

// PDF object model, only as much as the forensic rules need.
type (
	pdfName  string
	pdfDict  map[string]any
	pdfArray []any
	pdfRef   struct{ Num, Gen int }
)

type lexer struct {
	buf []byte
	pos int
}

func isWhite(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.buf) {
		c := l.buf[l.pos]
		if isWhite(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for l.pos < len(l.buf) && l.buf[l.pos] != '\n' && l.buf[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

// keyword reads a run of regular characters.
func (l *lexer) keyword() string {
	start := l.pos
	for l.pos < len(l.buf) && !isWhite(l.buf[l.pos]) && !isDelim(l.buf[l.pos]) {
		l.pos++
	}
	return string(l.buf[start:l.pos])
}

// peekKeyword reads the next keyword without consuming it.
func (l *lexer) peekKeyword() string {
	save := l.pos
	l.skipSpace()
	kw := l.keyword()
	l.pos = save
	return kw
}

const maxDepth = 64

func (l *lexer) value(depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("nesting too deep at offset %d", l.pos)
	}
	l.skipSpace()
	if l.pos >= len(l.buf) {
		return nil, fmt.Errorf("unexpected end of data")
	}
	switch c := l.buf[l.pos]; {
	case c == '/':
		l.pos++
		return pdfName(l.keyword()), nil
	case c == '(':
		return l.literalString()
	case c == '<' && l.pos+1 < len(l.buf) && l.buf[l.pos+1] == '<':
		l.pos += 2
		return l.dict(depth)
	case c == '<':
		return l.hexString()
	case c == '[':
		l.pos++
		return l.array(depth)
	case c == ']' || c == '>' || c == ')' || c == '{' || c == '}':
		return nil, fmt.Errorf("unexpected %q at offset %d", c, l.pos)
	}

	kw := l.keyword()
	if kw == "" {
		l.pos++
		return nil, fmt.Errorf("unexpected byte at offset %d", l.pos-1)
	}
	switch kw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	}
	n, err := strconv.ParseFloat(kw, 64)
	if err != nil {
		return pdfName("#" + kw), nil // bare keyword, kept as a marker
	}
	// "num gen R" is an indirect reference
	if n == float64(int(n)) && n >= 0 {
		save := l.pos
		l.skipSpace()
		genKw := l.keyword()
		if gen, err := strconv.Atoi(genKw); err == nil && gen >= 0 {
			l.skipSpace()
			if l.keyword() == "R" {
				return pdfRef{Num: int(n), Gen: gen}, nil
			}
		}
		l.pos = save
	}
	return n, nil
}

func (l *lexer) dict(depth int) (pdfDict, error) {
	d := pdfDict{}
	for {
		l.skipSpace()
		if l.pos+1 < len(l.buf) && l.buf[l.pos] == '>' && l.buf[l.pos+1] == '>' {
			l.pos += 2
			return d, nil
		}
		if l.pos >= len(l.buf) {
			return d, fmt.Errorf("unterminated dictionary")
		}
		k, err := l.value(depth + 1)
		if err != nil {
			return d, err
		}
		key, ok := k.(pdfName)
		if !ok {
			return d, fmt.Errorf("dictionary key is not a name at offset %d", l.pos)
		}
		v, err := l.value(depth + 1)
		if err != nil {
			return d, err
		}
		d[string(key)] = v
	}
}

func (l *lexer) array(depth int) (pdfArray, error) {
	var a pdfArray
	for {
		l.skipSpace()
		if l.pos >= len(l.buf) {
			return a, fmt.Errorf("unterminated array")
		}
		if l.buf[l.pos] == ']' {
			l.pos++
			return a, nil
		}
		v, err := l.value(depth + 1)
		if err != nil {
			return a, err
		}
		a = append(a, v)
	}
}

func (l *lexer) literalString() (string, error) {
	l.pos++ // (
	var out []byte
	nest := 1
	for l.pos < len(l.buf) {
		c := l.buf[l.pos]
		l.pos++
		switch c {
		case '(':
			nest++
		case ')':
			nest--
			if nest == 0 {
				return decodeText(out), nil
			}
		case '\\':
			if l.pos >= len(l.buf) {
				continue
			}
			e := l.buf[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.pos < len(l.buf) && l.buf[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.buf) && l.buf[l.pos] >= '0' && l.buf[l.pos] <= '7'; i++ {
						v = v*8 + int(l.buf[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
			continue
		}
		out = append(out, c)
	}
	return decodeText(out), fmt.Errorf("unterminated string")
}

func (l *lexer) hexString() (string, error) {
	l.pos++ // <
	var out []byte
	var hi byte
	half := false
	for l.pos < len(l.buf) {
		c := l.buf[l.pos]
		l.pos++
		if c == '>' {
			if half {
				out = append(out, hi<<4)
			}
			return decodeText(out), nil
		}
		v, ok := hexVal(c)
		if !ok {
			continue
		}
		if half {
			out = append(out, hi<<4|v)
			half = false
		} else {
			hi, half = v, true
		}
	}
	return decodeText(out), fmt.Errorf("unterminated hex string")
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

var utf16BOM = []byte{0xFE, 0xFF}

// decodeText turns a PDF text string into UTF-8. Strings with a UTF-16BE
// byte order mark are transcoded, anything else is taken byte-for-byte.
func decodeText(b []byte) string {
	if bytes.HasPrefix(b, utf16BOM) {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		if out, err := dec.Bytes(b); err == nil {
			return string(out)
		}
	}
	return string(b)
}

func (d pdfDict) name(key string) string {
	if n, ok := d[key].(pdfName); ok {
		return string(n)
	}
	return ""
}

// int reads an integer in the 32-bit range PDF integers are limited to.
// Larger values, NaN and infinities are treated as absent.
func (d pdfDict) int(key string) (int, bool) {
	f, ok := d[key].(float64)
	if !ok || !(f >= math.MinInt32 && f <= math.MaxInt32) {
		return 0, false
	}
	return int(f), true
}

func (d pdfDict) str(key string) string {
	if s, ok := d[key].(string); ok {
		return s
	}
	return ""
}

// names returns a name or every name of an array, e.g. for /Filter.
func (d pdfDict) names(key string) []string {
	switch v := d[key].(type) {
	case pdfName:
		return []string{string(v)}
	case pdfArray:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if n, ok := e.(pdfName); ok {
				out = append(out, string(n))
			}
		}
		return out
	}
	return nil
}
