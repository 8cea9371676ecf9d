package pixel

import (
	"fmt"
	"strings"
	"time"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

const (
	syntheticResolutionWeight = 35.0
	syntheticNoProvenance     = 25.0
	syntheticClassifierWeight = 60.0
	syntheticFindingMin       = 50.0

	exifPenaltyEach = 5.0
	exifPenaltyCap  = 20.0
	gpsSkew         = 26 * time.Hour
)

// syntheticSizes are output resolutions common to image generators.
var syntheticSizes = map[[2]int]bool{
	{256, 256}: true, {512, 512}: true, {768, 768}: true, {1024, 1024}: true,
	{1536, 1536}: true, {2048, 2048}: true,
	{1024, 1792}: true, {1792, 1024}: true,
	{1216, 832}: true, {832, 1216}: true,
	{1344, 768}: true, {768, 1344}: true,
	{1152, 896}: true, {896, 1152}: true,
	{1536, 640}: true, {640, 1536}: true,
	{1024, 1536}: true, {1536, 1024}: true,
	{512, 768}: true, {768, 512}: true,
}

// generativeSignatures match software tags written by generative tools.
var generativeSignatures = []string{
	"midjourney", "dall-e", "dall·e", "dalle", "stable diffusion", "stablediffusion",
	"adobe firefly", "imagen", "novelai", "leonardo.ai", "comfyui", "automatic1111",
	"invokeai", "dreamstudio", "openai", "gemini", "ideogram", "runway",
}

// SyntheticLikelihood scores generator provenance of one image from its
// size, metadata and an optional classifier probability in [0,1].
func SyntheticLikelihood(width, height int, meta document.ImageMetadata, classifier *float64) float64 {
	var s float64
	if syntheticSizes[[2]int{width, height}] {
		s += syntheticResolutionWeight
	}
	if !meta.HasCamera() && meta.Software == "" {
		s += syntheticNoProvenance
	}
	if classifier != nil {
		s += syntheticClassifierWeight * clamp01(*classifier)
	}
	return document.Clamp(s)
}

func isGenerative(software string) bool {
	s := strings.ToLower(software)
	for _, sig := range generativeSignatures {
		if strings.Contains(s, sig) {
			return true
		}
	}
	return false
}

// metadataFindings applies the EXIF rules. The returned penalty is already
// capped.
func metadataFindings(idx int, meta document.ImageMetadata) ([]document.Finding, float64) {
	var out []document.Finding
	add := func(kind document.FindingKind, sev document.Severity, format string, args ...any) {
		i := idx
		out = append(out, document.Finding{
			Kind:        kind,
			Severity:    sev,
			Description: fmt.Sprintf(format, args...),
			Component:   document.ComponentImage,
			Image:       &i,
		})
	}

	if meta.HasEXIF && !meta.HasCamera() {
		add(document.KindMissingCameraMetadata, document.SeverityLow,
			"image %d: EXIF present without camera make or model", idx)
	}
	if meta.Software != "" && isGenerative(meta.Software) {
		add(document.KindGenerativeSoftware, document.SeverityHigh,
			"image %d: software tag %q matches a generative tool", idx, meta.Software)
	}
	switch {
	case meta.GPSTime != nil && meta.CapturedAt != nil && absDuration(meta.GPSTime.Sub(*meta.CapturedAt)) > gpsSkew:
		add(document.KindGPSTimeInconsistency, document.SeverityMedium,
			"image %d: GPS time %s and capture time %s are %s apart", idx,
			meta.GPSTime.Format(time.RFC3339), meta.CapturedAt.Format(time.RFC3339),
			absDuration(meta.GPSTime.Sub(*meta.CapturedAt)).Round(time.Minute))
	case meta.ModifiedAt != nil && meta.CapturedAt != nil && meta.ModifiedAt.Before(*meta.CapturedAt):
		add(document.KindGPSTimeInconsistency, document.SeverityMedium,
			"image %d: modification time %s precedes capture time %s", idx,
			meta.ModifiedAt.Format(time.RFC3339), meta.CapturedAt.Format(time.RFC3339))
	}

	penalty := exifPenaltyEach * float64(len(out))
	if penalty > exifPenaltyCap {
		penalty = exifPenaltyCap
	}
	return out, penalty
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
