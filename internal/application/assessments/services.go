package assessments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/bryanwahyu/docrisk/internal/application"
	"github.com/bryanwahyu/docrisk/internal/application/pipeline"
	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

// ErrInvalidInput is returned for submissions rejected before analysis.
var ErrInvalidInput = errors.New("invalid input")

const (
	defaultLatest  = 20
	maxLatest      = 100
	defaultDays    = 7
	maxSummaryDays = 366
)

// Runner runs the analysis pipeline for one document.
type Runner interface {
	Run(ctx context.Context, sub pipeline.Submission) (document.Assessment, error)
}

// Service implements the assessment use cases. It is safe for concurrent
// use; Workers bounds how many documents are analysed at the same time.
type Service struct {
	Pipeline Runner
	Repo     document.Repository
	// Archive is optional; without it nothing but the repository row is kept.
	Archive document.ArchiveStore
	Clock   application.Clock
	Logger  *slog.Logger

	slots *semaphore.Weighted
}

// NewService wires the service with a worker limit.
func NewService(p Runner, repo document.Repository, archive document.ArchiveStore, clock application.Clock, log *slog.Logger, workers int) *Service {
	if workers < 1 {
		workers = 1
	}
	if clock == nil {
		clock = application.SystemClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		Pipeline: p,
		Repo:     repo,
		Archive:  archive,
		Clock:    clock,
		Logger:   log,
		slots:    semaphore.NewWeighted(int64(workers)),
	}
}

//
// ==== USE CASES ====
//

// SubmitCommand is one uploaded document.
type SubmitCommand struct {
	TenantID    string
	Filename    string
	ContentType string
	Data        []byte
	Extraction  document.Extraction
}

// SubmitResult is the stored assessment plus where it was archived.
type SubmitResult struct {
	Assessment document.Assessment `json:"assessment"`
	ArchiveURL string              `json:"archive_url,omitempty"`
	Digest     string              `json:"digest"`
	DurationMS int64               `json:"duration_ms"`
}

// Submit jalankan pipeline → archive → simpan ke repo. The repository row
// is written last; if it fails the archived objects are removed again.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (SubmitResult, error) {
	if strings.TrimSpace(cmd.TenantID) == "" {
		return SubmitResult{}, fmt.Errorf("%w: tenant is required", ErrInvalidInput)
	}
	if len(cmd.Data) == 0 {
		return SubmitResult{}, fmt.Errorf("%w: empty document", ErrInvalidInput)
	}
	if s.slots != nil {
		if err := s.slots.Acquire(ctx, 1); err != nil {
			return SubmitResult{}, fmt.Errorf("%w: %w", document.ErrCanceled, err)
		}
		defer s.slots.Release(1)
	}

	start := s.Clock.Now()
	id := document.ID(uuid.NewString())
	log := s.Logger.With("document_id", id, "tenant", cmd.TenantID)

	a, err := s.Pipeline.Run(ctx, pipeline.Submission{
		TenantID:       cmd.TenantID,
		ID:             id,
		Raw:            cmd.Data,
		DeclaredFormat: DeclaredFormat(cmd.Filename, cmd.ContentType),
		Length:         len(cmd.Data),
		Extraction:     cmd.Extraction,
	})
	if err != nil {
		return SubmitResult{}, err
	}

	canonical, digest, err := Canonicalize(a)
	if err != nil {
		return SubmitResult{}, err
	}

	var url string
	if s.Archive != nil {
		url, err = s.archive(ctx, cmd, id, canonical)
		if err != nil {
			return SubmitResult{}, err
		}
	}

	if err := s.Repo.Save(ctx, a, url, digest); err != nil {
		s.discard(ctx, log, cmd.TenantID, id)
		return SubmitResult{}, fmt.Errorf("save assessment %s: %w", id, err)
	}

	res := SubmitResult{
		Assessment: a,
		ArchiveURL: url,
		Digest:     digest,
		DurationMS: s.Clock.Now().Sub(start).Milliseconds(),
	}
	log.Info("assessment stored", "digest", digest, "duration_ms", res.DurationMS)
	return res, nil
}

func (s *Service) archive(ctx context.Context, cmd SubmitCommand, id document.ID, canonical []byte) (string, error) {
	url, err := s.Archive.PutDocument(ctx, cmd.TenantID, id, cmd.Data, cmd.ContentType)
	if err != nil {
		return "", fmt.Errorf("archive document %s: %w", id, err)
	}
	if _, err := s.Archive.PutAssessment(ctx, cmd.TenantID, id, canonical); err != nil {
		s.discard(ctx, s.Logger, cmd.TenantID, id)
		return "", fmt.Errorf("archive assessment %s: %w", id, err)
	}
	return url, nil
}

// discard removes archived objects even when ctx is already done.
func (s *Service) discard(ctx context.Context, log *slog.Logger, tenant string, id document.ID) {
	if s.Archive == nil {
		return
	}
	if err := s.Archive.DeleteDocument(context.WithoutCancel(ctx), tenant, id); err != nil {
		log.Warn("failed to remove archived document", "document_id", id, "error", err)
	}
}

// Get ambil 1 assessment by id
func (s *Service) Get(ctx context.Context, tenant string, id document.ID) (*document.Assessment, error) {
	return s.Repo.Get(ctx, tenant, id)
}

// Latest ambil N assessment terakhir; limit is clamped to [1,100].
func (s *Service) Latest(ctx context.Context, tenant string, limit int) ([]document.Summary, error) {
	switch {
	case limit <= 0:
		limit = defaultLatest
	case limit > maxLatest:
		limit = maxLatest
	}
	return s.Repo.Latest(ctx, tenant, limit)
}

// Summary rekap band N hari terakhir
func (s *Service) Summary(ctx context.Context, tenant string, days int) (document.BandCounts, error) {
	if days == 0 {
		days = defaultDays
	}
	if days < 0 || days > maxSummaryDays {
		return document.BandCounts{}, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidInput, maxSummaryDays)
	}
	since := s.Clock.Now().Add(-time.Duration(days) * 24 * time.Hour)
	return s.Repo.Summary(ctx, tenant, since)
}

var formatsByType = map[string]document.Format{
	"application/pdf": document.FormatPDF,
	"image/jpeg":      document.FormatJPEG,
	"image/png":       document.FormatPNG,
	"image/gif":       document.FormatGIF,
	"image/tiff":      document.FormatTIFF,
	"image/webp":      document.FormatWebP,
	"image/bmp":       document.FormatBMP,
}

var formatsByExt = map[string]document.Format{
	".pdf":  document.FormatPDF,
	".jpg":  document.FormatJPEG,
	".jpeg": document.FormatJPEG,
	".png":  document.FormatPNG,
	".gif":  document.FormatGIF,
	".tif":  document.FormatTIFF,
	".tiff": document.FormatTIFF,
	".webp": document.FormatWebP,
	".bmp":  document.FormatBMP,
}

// DeclaredFormat is the format the uploader claims, from the content type
// first and the file extension second, or "" when neither is recognised.
// Intake compares it with the sniffed format.
func DeclaredFormat(filename, contentType string) document.Format {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if f, ok := formatsByType[mt]; ok {
			return f
		}
	}
	if f, ok := formatsByExt[strings.ToLower(filepath.Ext(filename))]; ok {
		return f
	}
	return ""
}
