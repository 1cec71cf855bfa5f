package scrape

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/facility-scraper/internal/archive"
	"github.com/GriffinCanCode/facility-scraper/internal/extraction"
	"github.com/GriffinCanCode/facility-scraper/internal/fetch"
	"github.com/GriffinCanCode/facility-scraper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/facility-scraper/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/facility-scraper/internal/logging"
	"github.com/GriffinCanCode/facility-scraper/internal/output"
	"github.com/GriffinCanCode/facility-scraper/internal/site"
)

const sitesTOML = `
[scraper]
timeout_seconds = 15
max_retries = 1

[[sites]]
id = "acme"
url_pattern = "acme-fablab.org"
site_type = "fablab"
timeout_seconds = 5

[sites.fields.priority]
name = "h1.name"
capacity = "span.capacity"

[sites.fields.extra]
email = '/[a-z]+@acme\.org/'
phone = "span.phone"
`

const acmePage = `<html><body>
<h1 class="name">Acme Fab Lab</h1>
<span class="capacity">25</span>
<p>Contact: info@acme.org</p>
</body></html>`

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, url string, opts fetch.Options) (string, error) {
	args := m.Called(ctx, url, opts)
	return args.String(0), args.Error(1)
}

func loadSites(t *testing.T) *site.Config {
	t.Helper()
	cfg, err := site.Parse([]byte(sitesTOML), "sites.toml")
	require.NoError(t, err)
	return cfg
}

func TestScrapeFacilitySuccess(t *testing.T) {
	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, "https://acme-fablab.org/about", fetch.Options{Timeout: 5 * time.Second, MaxRetries: 1}).
		Return(acmePage, nil).Once()

	m := monitoring.NewMetrics()
	s := New(loadSites(t), f, nil, WithMetrics(m))
	out := filepath.Join(t.TempDir(), "acme.toml")

	resp := s.ScrapeFacility(context.Background(), "acme-fablab.org/about/", Options{OutputPath: out})

	require.Empty(t, resp.Error)
	assert.True(t, resp.Success)
	assert.Equal(t, "https://acme-fablab.org/about", resp.URL)
	assert.Equal(t, "acme", resp.SiteID)
	assert.Equal(t, extraction.StringValue("Acme Fab Lab"), resp.PriorityFields["name"])
	assert.Equal(t, extraction.IntValue(25), resp.PriorityFields["capacity"])
	assert.Equal(t, extraction.StringValue("info@acme.org"), resp.ExtraMetadata["email"])
	assert.Equal(t, []string{"phone"}, resp.FieldStatus.NotFound)
	assert.Equal(t, "fablab", resp.Metadata.SiteType)
	assert.GreaterOrEqual(t, resp.Metadata.Duration, time.Duration(0))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[priority_fields]")
	assert.Equal(t, resp.Output, string(data))
	assert.True(t, filepath.IsAbs(resp.OutputPath))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionsTotal.WithLabelValues("fablab", "true")))
	f.AssertExpectations(t)
}

func TestScrapeFacilityCriticalFailures(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		fetch   error
		wantErr string
	}{
		{name: "invalid url", url: "ftp://acme-fablab.org", wantErr: "scheme"},
		{name: "unknown site", url: "https://unknown.example", wantErr: "unknown.example"},
		{name: "network error", url: "https://acme-fablab.org", fetch: &fetch.NetworkError{URL: "https://acme-fablab.org", Status: 503}, wantErr: "HTTP error 503"},
		{name: "timeout", url: "https://acme-fablab.org", fetch: &fetch.NetworkError{URL: "https://acme-fablab.org", Timeout: true}, wantErr: "timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &mockFetcher{}
			if tt.fetch != nil {
				f.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return("", tt.fetch)
			}
			s := New(loadSites(t), f, nil)

			resp := s.ScrapeFacility(context.Background(), tt.url, Options{})

			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tt.wantErr)
			assert.Error(t, resp.Err)
			assert.Nil(t, resp.PriorityFields)
			if tt.fetch != nil {
				var ne *fetch.NetworkError
				assert.ErrorAs(t, resp.Err, &ne)
			}
		})
	}
}

func TestScrapeFacilityWithoutConfig(t *testing.T) {
	s := New(nil, &mockFetcher{}, nil)
	resp := s.ScrapeFacility(context.Background(), "https://acme-fablab.org", Options{})
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestScrapeFacilityPartialFailureIsNotCritical(t *testing.T) {
	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return("<html><body><p>nothing</p></body></html>", nil)
	s := New(loadSites(t), f, nil)

	resp := s.ScrapeFacility(context.Background(), "https://acme-fablab.org", Options{Format: output.FormatJSON})

	assert.Empty(t, resp.Error)
	assert.False(t, resp.Success)
	assert.Equal(t, extraction.FailureNoFieldsExtracted, resp.Metadata.FailureReason)
	assert.Len(t, resp.FieldStatus.NotFound, 4)
	assert.True(t, strings.HasPrefix(resp.Output, "{"))
}

func TestScrapeFacilityOrganizedOutput(t *testing.T) {
	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(acmePage, nil)
	dir := t.TempDir()
	s := New(loadSites(t), f, nil, WithOutputDir(dir))

	resp := s.ScrapeFacility(context.Background(), "https://www.acme-fablab.org", Options{Organize: true, Format: output.FormatYAML})

	require.Empty(t, resp.Error)
	rel, err := filepath.Rel(dir, resp.OutputPath)
	require.NoError(t, err)
	parts := strings.Split(filepath.ToSlash(rel), "/")
	require.Len(t, parts, 2)
	assert.Equal(t, resp.Metadata.Timestamp.Format("2006-01-02"), parts[0])
	assert.True(t, strings.HasPrefix(parts[1], "acmefablab_"), parts[1])
	assert.True(t, strings.HasSuffix(parts[1], ".yaml"))
}

func TestScrapeFacilityWriteFailure(t *testing.T) {
	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(acmePage, nil)
	s := New(loadSites(t), f, nil)

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	resp := s.ScrapeFacility(context.Background(), "https://acme-fablab.org", Options{OutputPath: filepath.Join(blocker, "out.toml")})
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestScrapeFacilityArchivesAndDetectsChanges(t *testing.T) {
	store, err := archive.Open(context.Background(), filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer store.Close()

	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(acmePage, nil).Once()
	f.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(strings.Replace(acmePage, "Acme Fab Lab", "Acme Makers", 1), nil).Once()

	m := monitoring.NewMetrics()
	s := New(loadSites(t), f, nil, WithArchive(store), WithMetrics(m))

	first := s.ScrapeFacility(context.Background(), "https://acme-fablab.org", Options{})
	require.Empty(t, first.Error)
	require.NotEmpty(t, first.ArchiveID)
	assert.Empty(t, first.Changes)

	second := s.ScrapeFacility(context.Background(), "https://acme-fablab.org", Options{})
	require.Empty(t, second.Error)
	require.Len(t, second.Changes, 1)
	assert.Equal(t, "content_changed", second.Changes[0].Type)

	latest, err := store.Latest(context.Background(), "https://acme-fablab.org")
	require.NoError(t, err)
	assert.Equal(t, second.ArchiveID, latest.ID)
	assert.Equal(t, second.Output, latest.Payload)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ArchiveWrites.WithLabelValues("success")))
}

type failingArchive struct{}

func (failingArchive) Latest(context.Context, string) (*archive.Record, error) {
	return nil, errors.New("db down")
}

func (failingArchive) Save(context.Context, archive.Record) (string, error) {
	return "", errors.New("db down")
}

func TestScrapeFacilityArchiveFailureIsNotCritical(t *testing.T) {
	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(acmePage, nil)
	s := New(loadSites(t), f, nil, WithArchive(failingArchive{}))

	resp := s.ScrapeFacility(context.Background(), "https://acme-fablab.org", Options{})
	assert.Empty(t, resp.Error)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.ArchiveID)
}

func TestExtractHTML(t *testing.T) {
	s := New(loadSites(t), &mockFetcher{}, nil)
	acme, err := s.Sites().Site("acme")
	require.NoError(t, err)

	result, err := s.ExtractHTML(acmePage, acme.Rules())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, extraction.StringValue("Acme Fab Lab"), result.PriorityFields["name"])

	_, err = s.ExtractHTML(strings.Repeat("a", extraction.MaxHTMLSize+1), acme.Rules())
	assert.True(t, extraction.IsParsingError(err))
}

func TestResponseResult(t *testing.T) {
	resp := Response{Success: true, PriorityFields: map[string]extraction.Value{"a": extraction.StringValue("b")}}
	assert.Equal(t, resp.PriorityFields, resp.Result().PriorityFields)
	assert.True(t, resp.Result().Success)
}

func TestScrapeFacilityTracesRun(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := tracing.New("test", logging.Wrap(zap.New(core)))

	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return("", &fetch.NetworkError{URL: "https://acme-fablab.org", Status: 503})
	s := New(loadSites(t), f, nil, WithTracer(tracer))

	resp := s.ScrapeFacility(context.Background(), "https://acme-fablab.org", Options{})
	tracer.Close()
	require.Error(t, resp.Err)

	entries := logs.FilterMessage("Span completed with error").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "scrape", fields["operation"])
	assert.Equal(t, "acme", fields["site"])
	assert.Equal(t, "https://acme-fablab.org", fields["url"])
}
