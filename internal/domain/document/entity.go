package document

import (
	"bytes"
	"fmt"
	"image"
	"time"

	// decoders registered for ImageAsset.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ID type for an analysed document
type ID string

// Format tag of the submitted container
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatTIFF    Format = "tiff"
	FormatWebP    Format = "webp"
	FormatBMP     Format = "bmp"
	FormatUnknown Format = "unknown"
)

// IsRaster reports whether the container is a standalone image.
func (f Format) IsRaster() bool {
	switch f {
	case FormatJPEG, FormatPNG, FormatGIF, FormatTIFF, FormatWebP, FormatBMP:
		return true
	}
	return false
}

// Component names are part of the serialization contract.
const (
	ComponentStructural = "structural_integrity"
	ComponentImage      = "image_integrity"
	ComponentSynthetic  = "synthetic_generation_likelihood"
	ComponentFormat     = "format_quality"
	ComponentSemantic   = "semantic_consistency"
	ComponentScreening  = "screening_risk"
	ComponentExtraction = "extraction_quality"
)

// ImageSource tells where an ImageAsset came from
type ImageSource string

const (
	SourceEmbedded ImageSource = "embedded-in-container"
	SourceUpload   ImageSource = "direct-upload"
)

// GeoPoint is a decimal-degree position.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ImageMetadata is the declared metadata block of an image. Every field is optional.
type ImageMetadata struct {
	HasEXIF     bool       `json:"has_exif"`
	CameraMake  string     `json:"camera_make,omitempty"`
	CameraModel string     `json:"camera_model,omitempty"`
	Software    string     `json:"software,omitempty"`
	CapturedAt  *time.Time `json:"captured_at,omitempty"`
	ModifiedAt  *time.Time `json:"modified_at,omitempty"`
	GPS         *GeoPoint  `json:"gps,omitempty"`
	GPSTime     *time.Time `json:"gps_time,omitempty"`
}

// HasCamera reports whether a camera make or model was declared.
func (m ImageMetadata) HasCamera() bool {
	return m.CameraMake != "" || m.CameraModel != ""
}

// ImageAsset is a raster image belonging to a document. Immutable after creation.
type ImageAsset struct {
	Index    int           `json:"index"`
	Page     int           `json:"page"`
	Source   ImageSource   `json:"source"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Encoding string        `json:"encoding"`
	Metadata ImageMetadata `json:"metadata"`

	data    []byte
	decoded image.Image
}

// NewImageAsset wraps encoded image bytes. Width and height come from the
// container when known, otherwise from the image header.
func NewImageAsset(index, page int, src ImageSource, encoding string, data []byte, meta ImageMetadata) ImageAsset {
	a := ImageAsset{
		Index:    index,
		Page:     page,
		Source:   src,
		Encoding: encoding,
		Metadata: meta,
		data:     data,
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		a.Width, a.Height = cfg.Width, cfg.Height
	}
	return a
}

// NewRasterAsset wraps an already decoded raster, used for container
// images stored as raw samples rather than an image file format.
func NewRasterAsset(index, page int, src ImageSource, img image.Image) ImageAsset {
	b := img.Bounds()
	return ImageAsset{
		Index:    index,
		Page:     page,
		Source:   src,
		Encoding: "raw",
		Width:    b.Dx(),
		Height:   b.Dy(),
		decoded:  img,
	}
}

// Bytes returns the encoded bytes, nil for raw rasters.
func (a ImageAsset) Bytes() []byte { return a.data }

// MaxImagePixels is the largest raster Decode accepts, about a 600 dpi A4
// scan. The header is checked before any pixel memory is allocated.
const MaxImagePixels = 40_000_000

// Decode returns the raster for the asset.
func (a ImageAsset) Decode() (image.Image, error) {
	if a.decoded != nil {
		return a.decoded, nil
	}
	if len(a.data) == 0 {
		return nil, fmt.Errorf("image %d: no data", a.Index)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(a.data))
	if err != nil {
		return nil, fmt.Errorf("image %d (%s): %w", a.Index, a.Encoding, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, fmt.Errorf("image %d: %dx%d: %w", a.Index, cfg.Width, cfg.Height, ErrImageTooLarge)
	}
	img, _, err := image.Decode(bytes.NewReader(a.data))
	if err != nil {
		return nil, fmt.Errorf("image %d (%s): %w", a.Index, a.Encoding, err)
	}
	return img, nil
}

// FindingKind is an enumerated observation tag
type FindingKind string

const (
	KindMultipleUpdateTables    FindingKind = "multiple-update-tables"
	KindUnlinearizedUpdate      FindingKind = "incremental-update-unlinearized"
	KindSuspiciousAuthoringTool FindingKind = "suspicious-authoring-tool"
	KindPageCountMismatch       FindingKind = "page-count-mismatch"
	KindMinimalContent          FindingKind = "minimal-evidentiary-content"
	KindMetadataTimestamp       FindingKind = "metadata-timestamp-inconsistency"
	KindPartialParse            FindingKind = "partial-parse-failure"
	KindTrailingData            FindingKind = "trailing-data"
	KindOverSmoothing           FindingKind = "edge-over-smoothing"
	KindNoiseInconsistency      FindingKind = "noise-inconsistency"
	KindRecompression           FindingKind = "recompression-artifacts"
	KindCopyMove                FindingKind = "copy-move-region"
	KindHistogramUniformity     FindingKind = "histogram-uniformity"
	KindLightingInconsistency   FindingKind = "lighting-inconsistency"
	KindLocalizedBlockArtifacts FindingKind = "localized-block-artifacts"
	KindImageTampering          FindingKind = "image-tampering"
	KindMissingCameraMetadata   FindingKind = "missing-camera-metadata"
	KindGenerativeSoftware      FindingKind = "generative-software-tag"
	KindGPSTimeInconsistency    FindingKind = "gps-time-inconsistency"
	KindSyntheticGeneration     FindingKind = "synthetic-generation"
	KindImageUndecodable        FindingKind = "image-undecodable"
	KindScreeningMatch          FindingKind = "screening-match"
	KindSemanticContradiction   FindingKind = "semantic-contradiction"
	KindFormatIssue             FindingKind = "format-issue"
)

// Finding is a structured observation. Never mutated once recorded.
type Finding struct {
	Kind        FindingKind `json:"kind"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	Component   string      `json:"component"`
	Image       *int        `json:"image,omitempty"`
}

// ComponentScore is a named 0-100 health score. Invalid scores are excluded
// from aggregation rather than treated as 0 or 100.
type ComponentScore struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Valid  bool    `json:"valid"`
	Reason string  `json:"reason,omitempty"`
}

// Score builds a valid component score clamped to [0,100].
func Score(name string, v float64) ComponentScore {
	return ComponentScore{Name: name, Value: Clamp(v), Valid: true}
}

// Invalid builds a component score for a stage that could not run.
func Invalid(name, reason string) ComponentScore {
	return ComponentScore{Name: name, Reason: reason}
}

// Clamp limits v to [0,100].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Band of the aggregate risk score
type Band string

const (
	BandLow      Band = "LOW"
	BandMedium   Band = "MEDIUM"
	BandHigh     Band = "HIGH"
	BandCritical Band = "CRITICAL"
)

// Verdict is created once by the risk aggregator.
type Verdict struct {
	Score           *float64 `json:"score"`
	Band            Band     `json:"band,omitempty"`
	Inconclusive    bool     `json:"inconclusive"`
	ManualReview    bool     `json:"manual_review"`
	RiskFactors     []string `json:"risk_factors"`
	Recommendations []string `json:"recommendations"`
}

// Diagnostic records why a stage did not run or was degraded.
type Diagnostic struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Entities extracted from the document text
type Entities struct {
	Names   []string `json:"names,omitempty"`
	Dates   []string `json:"dates,omitempty"`
	Amounts []string `json:"amounts,omitempty"`
}

// Extraction is the output of the external text extraction collaborator.
type Extraction struct {
	Text     string   `json:"text"`
	Pages    []string `json:"pages,omitempty"`
	Entities Entities `json:"entities"`
	// Quality is the extraction confidence in 0-100, nil when unknown.
	Quality *float64 `json:"quality,omitempty"`
}
