package structural

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// trailingSlack tolerates padding some encoders append after the end marker.
const trailingSlack = 16

// rasterEnd returns the offset just past the end-of-image marker for the
// formats whose end is well defined. ok is false for other formats.
func rasterEnd(format string, data []byte) (end int, ok bool, err error) {
	switch format {
	case "jpeg":
		end, err = jpegEnd(data)
		return end, true, err
	case "png":
		end, err = pngEnd(data)
		return end, true, err
	}
	return 0, false, nil
}

// trailingBytes counts bytes after the end marker, ignoring zero padding
// and a small slack.
func trailingBytes(data []byte, end int) int {
	tail := bytes.TrimRight(data[end:], "\x00\r\n ")
	if len(tail) <= trailingSlack {
		return 0
	}
	return len(tail)
}

// jpegEnd walks the marker segments and entropy-coded data up to EOI.
func jpegEnd(b []byte) (int, error) {
	if len(b) < 4 || b[0] != 0xFF || b[1] != 0xD8 {
		return 0, fmt.Errorf("jpeg: missing SOI")
	}
	i := 2
	for i+1 < len(b) {
		if b[i] != 0xFF {
			return 0, fmt.Errorf("jpeg: expected marker at %d", i)
		}
		marker := b[i+1]
		switch {
		case marker == 0xFF:
			i++
			continue
		case marker == 0xD9:
			return i + 2, nil
		case marker >= 0xD0 && marker <= 0xD7, marker == 0x01:
			i += 2
			continue
		}
		if i+4 > len(b) {
			return 0, fmt.Errorf("jpeg: truncated segment at %d", i)
		}
		segLen := int(binary.BigEndian.Uint16(b[i+2:]))
		if segLen < 2 || i+2+segLen > len(b) {
			return 0, fmt.Errorf("jpeg: bad segment length at %d", i)
		}
		i += 2 + segLen
		if marker != 0xDA {
			continue
		}
		// entropy-coded data runs to the next marker that is not a stuffed
		// zero or a restart marker
		for i+1 < len(b) {
			if b[i] == 0xFF {
				n := b[i+1]
				if n == 0x00 || (n >= 0xD0 && n <= 0xD7) || n == 0xFF {
					i += 2
					if n == 0xFF {
						i--
					}
					continue
				}
				break
			}
			i++
		}
	}
	return 0, fmt.Errorf("jpeg: missing EOI")
}

func pngEnd(b []byte) (int, error) {
	if !bytes.HasPrefix(b, pngSignature) {
		return 0, fmt.Errorf("png: bad signature")
	}
	i := len(pngSignature)
	for i+8 <= len(b) {
		n := int(binary.BigEndian.Uint32(b[i:]))
		typ := string(b[i+4 : i+8])
		next := i + 12 + n
		if n < 0 || next > len(b) {
			return 0, fmt.Errorf("png: truncated %s chunk", typ)
		}
		if typ == "IEND" {
			return next, nil
		}
		i = next
	}
	return 0, fmt.Errorf("png: missing IEND")
}
