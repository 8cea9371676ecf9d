package assessments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/docrisk/internal/application"
	"github.com/bryanwahyu/docrisk/internal/application/pipeline"
	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeRunner struct {
	fn   func(ctx context.Context, sub pipeline.Submission) (document.Assessment, error)
	subs []pipeline.Submission
	mu   sync.Mutex
}

func (f *fakeRunner) Run(ctx context.Context, sub pipeline.Submission) (document.Assessment, error) {
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, sub)
	}
	return assessment(sub.ID, sub.TenantID), nil
}

func assessment(id document.ID, tenant string) document.Assessment {
	score := 12.5
	return document.Assessment{
		SchemaVersion: document.SchemaVersion,
		ID:            id,
		TenantID:      tenant,
		Format:        document.FormatPDF,
		ByteLength:    4,
		ContentHash:   "abc",
		CreatedAt:     now,
		Components:    []document.ComponentScore{document.Score(document.ComponentStructural, 87.5)},
		Findings:      []document.Finding{},
		Diagnostics:   []document.Diagnostic{},
		Images:        []document.ImageAsset{},
		Verdict: document.Verdict{
			Score:           &score,
			Band:            document.BandLow,
			RiskFactors:     []string{},
			Recommendations: []string{},
		},
	}
}

type saved struct {
	a      document.Assessment
	url    string
	digest string
}

type memRepo struct {
	mu     sync.Mutex
	rows   []saved
	err    error
	since  time.Time
	limit  int
	counts document.BandCounts
}

func (r *memRepo) Save(_ context.Context, a document.Assessment, url, digest string) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, saved{a, url, digest})
	return nil
}

func (r *memRepo) Get(_ context.Context, tenant string, id document.ID) (*document.Assessment, error) {
	for _, s := range r.rows {
		if s.a.TenantID == tenant && s.a.ID == id {
			a := s.a
			return &a, nil
		}
	}
	return nil, document.ErrNotFound
}

func (r *memRepo) Latest(_ context.Context, _ string, limit int) ([]document.Summary, error) {
	r.limit = limit
	return nil, nil
}

func (r *memRepo) Summary(_ context.Context, _ string, since time.Time) (document.BandCounts, error) {
	r.since = since
	return r.counts, nil
}

type memArchive struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failAsmt bool
	deleted  []document.ID
}

func (m *memArchive) PutDocument(_ context.Context, tenant string, id document.ID, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[tenant+"/"+string(id)+"/document"] = data
	return "mem://" + tenant + "/" + string(id), nil
}

func (m *memArchive) PutAssessment(_ context.Context, tenant string, id document.ID, canonical []byte) (string, error) {
	if m.failAsmt {
		return "", errors.New("bucket full")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[tenant+"/"+string(id)+"/assessment.json"] = canonical
	return "", nil
}

func (m *memArchive) DeleteDocument(_ context.Context, tenant string, id document.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, tenant+"/"+string(id)+"/document")
	delete(m.objects, tenant+"/"+string(id)+"/assessment.json")
	m.deleted = append(m.deleted, id)
	return nil
}

func newService(r Runner, repo *memRepo, archive document.ArchiveStore, workers int) *Service {
	return NewService(r, repo, archive, application.FixedClock(now), nil, workers)
}

func TestSubmit(t *testing.T) {
	runner, repo, archive := &fakeRunner{}, &memRepo{}, &memArchive{}
	svc := newService(runner, repo, archive, 2)

	res, err := svc.Submit(context.Background(), SubmitCommand{
		TenantID:    "acme",
		Filename:    "statement.PDF",
		ContentType: "application/octet-stream",
		Data:        []byte("%PDF"),
	})
	require.NoError(t, err)

	require.Len(t, runner.subs, 1)
	sub := runner.subs[0]
	assert.Equal(t, document.FormatPDF, sub.DeclaredFormat)
	assert.Equal(t, 4, sub.Length)
	assert.NotEmpty(t, sub.ID)

	require.Len(t, repo.rows, 1)
	row := repo.rows[0]
	assert.Equal(t, res.Digest, row.digest)
	assert.Equal(t, "mem://acme/"+string(sub.ID), row.url)

	_, digest, err := Canonicalize(res.Assessment)
	require.NoError(t, err)
	assert.Equal(t, digest, res.Digest)

	stored := archive.objects["acme/"+string(sub.ID)+"/assessment.json"]
	decoded, err := document.UnmarshalAssessment(stored)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, decoded.ID)
	assert.Equal(t, document.BandLow, decoded.Verdict.Band)
}

func TestSubmit_RejectsInvalidInput(t *testing.T) {
	svc := newService(&fakeRunner{}, &memRepo{}, nil, 1)
	_, err := svc.Submit(context.Background(), SubmitCommand{TenantID: "", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Submit(context.Background(), SubmitCommand{TenantID: "acme"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSubmit_SaveFailureRemovesArchive(t *testing.T) {
	archive := &memArchive{}
	svc := newService(&fakeRunner{}, &memRepo{err: errors.New("deadlock")}, archive, 1)

	_, err := svc.Submit(context.Background(), SubmitCommand{TenantID: "acme", Data: []byte("x")})
	assert.ErrorContains(t, err, "deadlock")
	assert.Len(t, archive.deleted, 1)
	assert.Empty(t, archive.objects)
}

func TestSubmit_ArchiveFailureSkipsSave(t *testing.T) {
	repo, archive := &memRepo{}, &memArchive{failAsmt: true}
	svc := newService(&fakeRunner{}, repo, archive, 1)

	_, err := svc.Submit(context.Background(), SubmitCommand{TenantID: "acme", Data: []byte("x")})
	assert.ErrorContains(t, err, "bucket full")
	assert.Empty(t, repo.rows)
	assert.Len(t, archive.deleted, 1)
}

func TestSubmit_PipelineCanceled(t *testing.T) {
	repo, archive := &memRepo{}, &memArchive{}
	runner := &fakeRunner{fn: func(context.Context, pipeline.Submission) (document.Assessment, error) {
		return document.Assessment{}, document.ErrCanceled
	}}
	svc := newService(runner, repo, archive, 1)

	_, err := svc.Submit(context.Background(), SubmitCommand{TenantID: "acme", Data: []byte("x")})
	assert.ErrorIs(t, err, document.ErrCanceled)
	assert.Empty(t, repo.rows)
	assert.Empty(t, archive.objects)
}

func TestSubmit_WorkerLimit(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	runner := &fakeRunner{fn: func(_ context.Context, sub pipeline.Submission) (document.Assessment, error) {
		close(started)
		<-release
		return assessment(sub.ID, sub.TenantID), nil
	}}
	svc := newService(runner, &memRepo{}, nil, 1)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), SubmitCommand{TenantID: "acme", Data: []byte("x")})
		done <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Submit(ctx, SubmitCommand{TenantID: "acme", Data: []byte("y")})
	assert.ErrorIs(t, err, document.ErrCanceled)

	close(release)
	require.NoError(t, <-done)
}

func TestLatestClampsLimit(t *testing.T) {
	tests := []struct{ in, want int }{{0, 20}, {-3, 20}, {5, 5}, {1000, 100}}
	for _, tt := range tests {
		repo := &memRepo{}
		_, err := newService(&fakeRunner{}, repo, nil, 1).Latest(context.Background(), "acme", tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, repo.limit, "limit %d", tt.in)
	}
}

func TestSummaryWindow(t *testing.T) {
	repo := &memRepo{counts: document.BandCounts{Total: 3}}
	svc := newService(&fakeRunner{}, repo, nil, 1)

	got, err := svc.Summary(context.Background(), "acme", 30)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, now.Add(-30*24*time.Hour), repo.since)

	_, err = svc.Summary(context.Background(), "acme", 0)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-7*24*time.Hour), repo.since)

	_, err = svc.Summary(context.Background(), "acme", -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCanonicalize(t *testing.T) {
	a := assessment("doc-1", "acme")
	c1, d1, err := Canonicalize(a)
	require.NoError(t, err)
	c2, d2, err := Canonicalize(a)
	require.NoError(t, err)

	assert.Equal(t, c1, c2)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)
	assert.True(t, len(c1) > 0 && string(c1[:15]) == `{"byte_length":`, string(c1))

	a.Verdict.Band = document.BandMedium
	_, d3, err := Canonicalize(a)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}

func TestDeclaredFormat(t *testing.T) {
	tests := []struct {
		name, ctype string
		want        document.Format
	}{
		{"a.pdf", "", document.FormatPDF},
		{"scan.bin", "image/jpeg; charset=binary", document.FormatJPEG},
		{"photo.JPG", "application/octet-stream", document.FormatJPEG},
		{"x.tif", "", document.FormatTIFF},
		{"notes.txt", "text/plain", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeclaredFormat(tt.name, tt.ctype), tt.name)
	}
}
