package pixel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

func TestAnalyze_GeneratorSizedCleanImage(t *testing.T) {
	raw := encodePNG(t, valueNoise(1024, 1024, 16, 40, 6, 1))
	res, err := NewAnalyzer(2).Analyze(context.Background(),
		[]document.ImageAsset{uploadAsset(0, "png", raw, document.ImageMetadata{})}, nil)
	require.NoError(t, err)

	require.Len(t, res.Images, 1)
	rep := res.Images[0]
	for _, d := range rep.Detections {
		assert.False(t, d.Triggered(), "%s triggered: %s", d.Detector, d.Detail)
	}
	assert.False(t, rep.Tampered)
	assert.Equal(t, 0.0, rep.MetadataPenalty)

	require.True(t, res.Synthetic.Valid)
	assert.Greater(t, res.Synthetic.Value, 0.0)
	assert.Equal(t, 60.0, res.Synthetic.Value)

	require.True(t, res.ImageIntegrity.Valid)
	assert.InDelta(t, 100-0.4*res.Synthetic.Value, res.ImageIntegrity.Value, 1e-9)

	require.Len(t, res.Findings, 1)
	assert.Equal(t, document.KindSyntheticGeneration, res.Findings[0].Kind)
	assert.Equal(t, document.ComponentSynthetic, res.Findings[0].Component)
}

func TestAnalyze_NoImages(t *testing.T) {
	res, err := NewAnalyzer(1).Analyze(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.False(t, res.ImageIntegrity.Valid)
	assert.False(t, res.Synthetic.Valid)
	assert.Empty(t, res.Findings)
}

func TestAnalyze_PartialDecodeFailure(t *testing.T) {
	good := encodePNG(t, valueNoise(200, 150, 16, 40, 6, 2))
	assets := []document.ImageAsset{
		uploadAsset(0, "jpx", []byte("not an image"), document.ImageMetadata{}),
		uploadAsset(1, "png", good, document.ImageMetadata{}),
	}
	res, err := NewAnalyzer(2).Analyze(context.Background(), assets, nil)
	require.NoError(t, err)

	assert.True(t, res.ImageIntegrity.Valid)
	require.NotEmpty(t, res.Findings)
	assert.Equal(t, document.KindImageUndecodable, res.Findings[0].Kind)
	assert.Equal(t, document.SeverityLow, res.Findings[0].Severity)
	require.NotNil(t, res.Findings[0].Image)
	assert.Equal(t, 0, *res.Findings[0].Image)
	assert.False(t, res.Images[0].Decoded)
	assert.True(t, res.Images[1].Decoded)
}

func TestAnalyze_AllImagesUndecodable(t *testing.T) {
	assets := []document.ImageAsset{
		uploadAsset(0, "jpx", []byte("junk"), document.ImageMetadata{}),
		uploadAsset(1, "ccitt", nil, document.ImageMetadata{}),
	}
	res, err := NewAnalyzer(2).Analyze(context.Background(), assets, nil)
	require.NoError(t, err)

	assert.False(t, res.ImageIntegrity.Valid)
	assert.False(t, res.Synthetic.Valid)
	assert.Empty(t, res.Findings)
	assert.Len(t, res.Diagnostics, 2)
}

func TestAnalyze_ClassifierSignal(t *testing.T) {
	raw := encodePNG(t, valueNoise(300, 200, 16, 40, 6, 3))
	meta := document.ImageMetadata{HasEXIF: true, CameraMake: "Canon", CameraModel: "EOS R5"}
	res, err := NewAnalyzer(1).Analyze(context.Background(),
		[]document.ImageAsset{uploadAsset(4, "png", raw, meta)}, Signals{4: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 30.0, res.Synthetic.Value)
	assert.InDelta(t, 88.0, res.ImageIntegrity.Value, 1e-9)
}

func TestAnalyze_WorstImageWins(t *testing.T) {
	clean := encodePNG(t, valueNoise(300, 200, 16, 40, 6, 4))
	tagged := document.ImageMetadata{HasEXIF: true, Software: "Midjourney v6"}
	res, err := NewAnalyzer(2).Analyze(context.Background(), []document.ImageAsset{
		uploadAsset(0, "png", clean, document.ImageMetadata{HasEXIF: true, CameraMake: "Apple", CameraModel: "iPhone 15", Software: "17.1"}),
		uploadAsset(1, "png", clean, tagged),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 100.0, res.Images[0].Score)
	// missing camera and generative tag, -5 each
	assert.Equal(t, 10.0, res.Images[1].MetadataPenalty)
	assert.Equal(t, res.Images[1].Score, res.ImageIntegrity.Value)
	assert.Less(t, res.ImageIntegrity.Value, 100.0)
}

func TestAnalyze_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	raw := encodePNG(t, valueNoise(64, 64, 16, 40, 6, 5))
	_, err := NewAnalyzer(1).Analyze(ctx, []document.ImageAsset{uploadAsset(0, "png", raw, document.ImageMetadata{})}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSyntheticLikelihood(t *testing.T) {
	half, full := 0.5, 1.0
	camera := document.ImageMetadata{HasEXIF: true, CameraMake: "Nikon"}
	tests := []struct {
		name string
		w, h int
		meta document.ImageMetadata
		p    *float64
		want float64
	}{
		{"generator size without provenance", 1024, 1024, document.ImageMetadata{}, nil, 60},
		{"generator size with classifier", 1024, 1024, document.ImageMetadata{}, &half, 90},
		{"capped", 1792, 1024, document.ImageMetadata{}, &full, 100},
		{"camera photo", 4032, 3024, camera, nil, 0},
		{"software tag counts as provenance", 1000, 700, document.ImageMetadata{Software: "GIMP"}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SyntheticLikelihood(tt.w, tt.h, tt.meta, tt.p))
		})
	}
}

func TestMetadataFindings(t *testing.T) {
	at := func(s string) *time.Time {
		v, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return &v
	}

	t.Run("no exif", func(t *testing.T) {
		fs, pen := metadataFindings(0, document.ImageMetadata{})
		assert.Empty(t, fs)
		assert.Equal(t, 0.0, pen)
	})
	t.Run("exif without camera", func(t *testing.T) {
		fs, pen := metadataFindings(2, document.ImageMetadata{HasEXIF: true})
		require.Len(t, fs, 1)
		assert.Equal(t, document.KindMissingCameraMetadata, fs[0].Kind)
		assert.Equal(t, 2, *fs[0].Image)
		assert.Equal(t, 5.0, pen)
	})
	t.Run("all rules", func(t *testing.T) {
		fs, pen := metadataFindings(0, document.ImageMetadata{
			HasEXIF:    true,
			Software:   "Stable Diffusion XL",
			CapturedAt: at("2024-03-01T10:00:00Z"),
			GPSTime:    at("2024-03-03T10:00:00Z"),
		})
		require.Len(t, fs, 3)
		assert.Equal(t, document.KindMissingCameraMetadata, fs[0].Kind)
		assert.Equal(t, document.KindGenerativeSoftware, fs[1].Kind)
		assert.Equal(t, document.SeverityHigh, fs[1].Severity)
		assert.Equal(t, document.KindGPSTimeInconsistency, fs[2].Kind)
		assert.Equal(t, 15.0, pen)
	})
	t.Run("gps within window", func(t *testing.T) {
		fs, _ := metadataFindings(0, document.ImageMetadata{
			HasEXIF: true, CameraMake: "Sony",
			CapturedAt: at("2024-03-01T10:00:00Z"),
			GPSTime:    at("2024-03-02T09:00:00Z"),
		})
		assert.Empty(t, fs)
	})
	t.Run("modified before captured", func(t *testing.T) {
		fs, _ := metadataFindings(0, document.ImageMetadata{
			HasEXIF: true, CameraMake: "Sony",
			CapturedAt: at("2024-03-01T10:00:00Z"),
			ModifiedAt: at("2024-02-28T10:00:00Z"),
		})
		require.Len(t, fs, 1)
		assert.Equal(t, document.KindGPSTimeInconsistency, fs[0].Kind)
	})
}

func TestAnalyzeImage_RawRasterAsset(t *testing.T) {
	asset := document.NewRasterAsset(0, 1, document.SourceEmbedded, valueNoise(120, 90, 16, 40, 6, 6))
	out, err := analyzeImage(context.Background(), asset, nil)
	require.NoError(t, err)
	assert.True(t, out.report.Decoded)
	assert.Equal(t, 120, out.report.Width)
	assert.Equal(t, 90, out.report.Height)
}

func TestAnalyzeImage_StopsBetweenDetectors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	asset := document.NewRasterAsset(0, 1, document.SourceEmbedded, valueNoise(64, 64, 16, 40, 6, 7))
	_, err := analyzeImage(ctx, asset, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyze_OverPixelBudgetIsSkipped(t *testing.T) {
	huge := document.NewImageAsset(0, 1, document.SourceUpload, "png", pngHeader(8000, 8000), document.ImageMetadata{})
	_, err := huge.Decode()
	require.ErrorIs(t, err, document.ErrImageTooLarge)

	small := uploadAsset(1, "png", encodePNG(t, valueNoise(96, 96, 16, 40, 6, 8)), document.ImageMetadata{})
	res, err := NewAnalyzer(2).Analyze(context.Background(), []document.ImageAsset{huge, small}, nil)
	require.NoError(t, err)
	assert.True(t, res.ImageIntegrity.Valid)
	require.NotEmpty(t, res.Findings)
	assert.Equal(t, document.KindImageUndecodable, res.Findings[0].Kind)
	assert.Contains(t, res.Findings[0].Description, "pixel budget")

	res, err = NewAnalyzer(1).Analyze(context.Background(), []document.ImageAsset{huge}, nil)
	require.NoError(t, err)
	assert.False(t, res.ImageIntegrity.Valid)
	require.Len(t, res.Diagnostics, 1)
	assert.Contains(t, res.Diagnostics[0].Message, "8000x8000")
}

func TestWorkingPlanesMatchFullResolution(t *testing.T) {
	img := valueNoise(2100, 1500, 16, 40, 6, 21)
	full := luminance(img)

	work := workPlane(img, 1024)
	want := full.downscale(1024)
	assert.Equal(t, want.w, work.w)
	assert.Equal(t, want.h, work.h)
	assert.Equal(t, want.pix, work.pix)

	native := nativePlane(img, 1024)
	crop := full.cropCenter(1024)
	assert.Equal(t, crop.w, native.w)
	assert.Equal(t, crop.pix, native.pix)
}
