// Package imagemeta reads the declared metadata block (EXIF) of an encoded image.
package imagemeta

import (
	"bytes"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

const exifTime = "2006:01:02 15:04:05"

// Read extracts camera, software, timestamp and GPS fields. Images without
// an EXIF block return the zero ImageMetadata; nothing here fails.
func Read(data []byte) document.ImageMetadata {
	var m document.ImageMetadata
	if len(data) == 0 {
		return m
	}
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil || x == nil {
		return m
	}
	m.HasEXIF = true
	m.CameraMake = stringField(x, exif.Make)
	m.CameraModel = stringField(x, exif.Model)
	m.Software = stringField(x, exif.Software)
	m.CapturedAt = timeField(x, exif.DateTimeOriginal)
	m.ModifiedAt = timeField(x, exif.DateTime)
	if m.CapturedAt == nil {
		m.CapturedAt = timeField(x, exif.DateTimeDigitized)
	}

	if lat, lon, err := x.LatLong(); err == nil {
		m.GPS = &document.GeoPoint{Lat: lat, Lon: lon}
	}
	m.GPSTime = gpsTime(x)
	return m
}

func stringField(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}

// timeField parses an EXIF timestamp as UTC. EXIF carries no zone, so
// comparisons against GPS time allow a generous window.
func timeField(x *exif.Exif, name exif.FieldName) *time.Time {
	s := stringField(x, name)
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(exifTime, s, time.UTC)
	if err != nil || t.Year() < 1900 {
		return nil
	}
	return &t
}

func gpsTime(x *exif.Exif) *time.Time {
	date := stringField(x, exif.GPSDateStamp)
	if date == "" {
		return nil
	}
	day, err := time.ParseInLocation("2006:01:02", date, time.UTC)
	if err != nil {
		return nil
	}
	tag, err := x.Get(exif.GPSTimeStamp)
	if err != nil || tag.Count < 3 {
		return &day
	}
	var parts [3]float64
	for i := range parts {
		num, den, err := tag.Rat2(i)
		if err != nil || den == 0 {
			return &day
		}
		parts[i] = float64(num) / float64(den)
	}
	t := day.Add(time.Duration(parts[0]*float64(time.Hour)) +
		time.Duration(parts[1]*float64(time.Minute)) +
		time.Duration(parts[2]*float64(time.Second)))
	return &t
}
