package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/newsdesk/internal/article"
	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/repository"
	"github.com/hitoshi/newsdesk/internal/security"
)

// mockSSRFGuard はテストサーバー（127.0.0.1）への接続を許可するガード。
type mockSSRFGuard struct {
	validateErr error
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockSSRFGuard) ValidateURL(_ string) error {
	return m.validateErr
}

// mockDraftCreator は渡された下書きを記録する。
// existing に含まれるインポート元URLは取り込み済みとして扱う。
type mockDraftCreator struct {
	existing map[string]bool
	err      error
	drafts   []article.DraftInput
}

func (m *mockDraftCreator) CreateImportedDraft(_ context.Context, _ string, in article.DraftInput) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.drafts = append(m.drafts, in)
	return !m.existing[in.SourceURL], nil
}

type stubCategoryRepo struct {
	repository.CategoryRepository
	known map[string]bool
}

func (s *stubCategoryRepo) FindByID(_ context.Context, id string) (*model.Category, error) {
	if s.known[id] {
		return &model.Category{ID: id}, nil
	}
	return nil, nil
}

type mockRecorder struct {
	imported, skipped int
	failures          []string
	latencies         int
}

func (m *mockRecorder) RecordImportResult(imported, skipped int) {
	m.imported += imported
	m.skipped += skipped
}
func (m *mockRecorder) RecordImportFailure(reason string) { m.failures = append(m.failures, reason) }
func (m *mockRecorder) RecordImportLatency(time.Duration) { m.latencies++ }

const rssFeed = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Wire</title>
    <item>
      <title>First</title>
      <link>https://example.com/1</link>
      <description>&lt;p&gt;one&lt;/p&gt;</description>
      <enclosure url="https://example.com/1.jpg" type="image/jpeg" length="10"/>
    </item>
    <item>
      <title>Second</title>
      <guid>https://example.com/2</guid>
      <description>two</description>
    </item>
  </channel>
</rss>`

func newFeedServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

// testCategoryID は既存カテゴリとして扱うID。
const testCategoryID = "0d4e2b7c-3a1f-4c8e-9b5d-6f7a8c9e0b12"

func newTestImporter(guard SSRFValidator, drafts *mockDraftCreator, rec *mockRecorder, maxBody int64) *Importer {
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	categories := &stubCategoryRepo{known: map[string]bool{testCategoryID: true}}
	return NewImporter(guard, drafts, categories, rec, logger, 5*time.Second, maxBody)
}

func TestImport_Success(t *testing.T) {
	server := newFeedServer(t, http.StatusOK, rssFeed)
	drafts := &mockDraftCreator{existing: map[string]bool{"https://example.com/2": true}}
	rec := &mockRecorder{}
	imp := newTestImporter(&mockSSRFGuard{}, drafts, rec, 1<<20)

	categoryID := testCategoryID
	result, err := imp.Import(context.Background(), "writer-1", " "+server.URL+" ", &categoryID)
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if result.Imported != 1 || result.Skipped != 1 {
		t.Errorf("result = %+v, want imported=1 skipped=1", result)
	}
	if len(drafts.drafts) != 2 {
		t.Fatalf("drafts = %d, want 2", len(drafts.drafts))
	}

	first := drafts.drafts[0]
	if first.Title != "First" || first.SourceURL != "https://example.com/1" {
		t.Errorf("first draft = %+v", first)
	}
	if first.Content != "<p>one</p>" {
		t.Errorf("first content = %q", first.Content)
	}
	if first.ImageURL != "https://example.com/1.jpg" {
		t.Errorf("first image = %q", first.ImageURL)
	}
	if first.CategoryID == nil || *first.CategoryID != testCategoryID {
		t.Errorf("first category = %v", first.CategoryID)
	}
	// LinkがなくGUIDがURLの項目はGUIDをインポート元とする
	if drafts.drafts[1].SourceURL != "https://example.com/2" {
		t.Errorf("second source = %q", drafts.drafts[1].SourceURL)
	}

	if rec.imported != 1 || rec.skipped != 1 || rec.latencies != 1 || len(rec.failures) != 0 {
		t.Errorf("recorder = %+v", rec)
	}
}

func TestImport_ValidationFailures(t *testing.T) {
	tests := []struct {
		name        string
		validateErr error
		wantCode    string
		wantReason  string
	}{
		{"blocked destination", fmt.Errorf("%w: IP address 10.0.0.1", security.ErrBlockedDestination), model.ErrCodeSSRFBlocked, reasonSSRFBlocked},
		{"invalid url", fmt.Errorf("%w: disallowed scheme: ftp", security.ErrInvalidURL), model.ErrCodeInvalidURL, reasonInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drafts := &mockDraftCreator{}
			rec := &mockRecorder{}
			imp := newTestImporter(&mockSSRFGuard{validateErr: tt.validateErr}, drafts, rec, 1<<20)

			_, err := imp.Import(context.Background(), "writer-1", "http://whatever", nil)
			if !model.IsCode(err, tt.wantCode) {
				t.Errorf("err = %v, want %s", err, tt.wantCode)
			}
			if len(rec.failures) != 1 || rec.failures[0] != tt.wantReason {
				t.Errorf("failures = %v", rec.failures)
			}
			if len(drafts.drafts) != 0 {
				t.Error("no drafts should be created")
			}
		})
	}
}

func TestImport_RealGuardBlocksLoopback(t *testing.T) {
	server := newFeedServer(t, http.StatusOK, rssFeed)
	rec := &mockRecorder{}
	imp := newTestImporter(security.NewSSRFGuard(), &mockDraftCreator{}, rec, 1<<20)

	_, err := imp.Import(context.Background(), "writer-1", server.URL, nil)
	if !model.IsCode(err, model.ErrCodeSSRFBlocked) {
		t.Errorf("err = %v, want SSRF_BLOCKED", err)
	}
}

func TestImport_UnknownCategory(t *testing.T) {
	server := newFeedServer(t, http.StatusOK, rssFeed)

	for _, categoryID := range []string{"5a8c0d2e-7f41-4b3a-9e6d-1c2b3a4d5e6f", "ghost"} {
		t.Run(categoryID, func(t *testing.T) {
			imp := newTestImporter(&mockSSRFGuard{}, &mockDraftCreator{}, &mockRecorder{}, 1<<20)

			_, err := imp.Import(context.Background(), "writer-1", server.URL, &categoryID)
			if !model.IsCode(err, model.ErrCodeCategoryNotFound) {
				t.Errorf("err = %v, want CATEGORY_NOT_FOUND", err)
			}
		})
	}
}

func TestImport_FetchFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		maxBody int64
	}{
		{"not found", http.StatusNotFound, "", 1 << 20},
		{"server error", http.StatusInternalServerError, "", 1 << 20},
		{"body too large", http.StatusOK, rssFeed, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newFeedServer(t, tt.status, tt.body)
			rec := &mockRecorder{}
			imp := newTestImporter(&mockSSRFGuard{}, &mockDraftCreator{}, rec, tt.maxBody)

			_, err := imp.Import(context.Background(), "writer-1", server.URL, nil)
			if !model.IsCode(err, model.ErrCodeFetchFailed) {
				t.Errorf("err = %v, want FETCH_FAILED", err)
			}
			if len(rec.failures) != 1 || rec.failures[0] != reasonFetchFailed {
				t.Errorf("failures = %v", rec.failures)
			}
		})
	}
}

func TestImport_ParseFailure(t *testing.T) {
	server := newFeedServer(t, http.StatusOK, "<html><body>not a feed</body></html>")
	rec := &mockRecorder{}
	imp := newTestImporter(&mockSSRFGuard{}, &mockDraftCreator{}, rec, 1<<20)

	_, err := imp.Import(context.Background(), "writer-1", server.URL, nil)
	if !model.IsCode(err, model.ErrCodeParseFailed) {
		t.Errorf("err = %v, want PARSE_FAILED", err)
	}
	if len(rec.failures) != 1 || rec.failures[0] != reasonParseFailed {
		t.Errorf("failures = %v", rec.failures)
	}
}

func TestImport_StoreFailure(t *testing.T) {
	server := newFeedServer(t, http.StatusOK, rssFeed)
	rec := &mockRecorder{}
	imp := newTestImporter(&mockSSRFGuard{}, &mockDraftCreator{err: errors.New("db down")}, rec, 1<<20)

	_, err := imp.Import(context.Background(), "writer-1", server.URL, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("store failure should be an internal error, got %v", apiErr.Code)
	}
}

func TestConvertItems_LimitsCount(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>Many</title>`)
	for i := 0; i < MaxItemsPerImport+10; i++ {
		fmt.Fprintf(&b, `<item><title>T%d</title><link>https://example.com/%d</link></item>`, i, i)
	}
	b.WriteString(`</channel></rss>`)

	server := newFeedServer(t, http.StatusOK, b.String())
	drafts := &mockDraftCreator{}
	imp := newTestImporter(&mockSSRFGuard{}, drafts, &mockRecorder{}, 1<<20)

	result, err := imp.Import(context.Background(), "writer-1", server.URL, nil)
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if result.Imported != MaxItemsPerImport {
		t.Errorf("imported = %d, want %d", result.Imported, MaxItemsPerImport)
	}
}

func TestImport_DiscoversFeedFromHTMLPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><link rel="alternate" type="application/rss+xml" href="/feed.xml"></head><body></body></html>`)
	})
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFeed)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	drafts := &mockDraftCreator{}
	imp := newTestImporter(&mockSSRFGuard{}, drafts, &mockRecorder{}, 1<<20)

	result, err := imp.Import(context.Background(), "writer-1", server.URL+"/", nil)
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if result.Imported != 2 {
		t.Errorf("imported = %d, want 2", result.Imported)
	}
}

// discoverGuard は検出後のURLだけを拒否する。
type discoverGuard struct {
	mockSSRFGuard
	blocked string
}

func (g *discoverGuard) ValidateURL(rawURL string) error {
	if rawURL == g.blocked {
		return fmt.Errorf("%w: %s", security.ErrBlockedDestination, rawURL)
	}
	return nil
}

func TestImport_DiscoveredFeedIsValidated(t *testing.T) {
	page := `<html><head><link rel="alternate" type="application/atom+xml" href="http://169.254.169.254/feed"></head></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page)
	}))
	t.Cleanup(server.Close)

	rec := &mockRecorder{}
	guard := &discoverGuard{blocked: "http://169.254.169.254/feed"}
	imp := newTestImporter(guard, &mockDraftCreator{}, rec, 1<<20)

	_, err := imp.Import(context.Background(), "writer-1", server.URL, nil)
	if !model.IsCode(err, model.ErrCodeSSRFBlocked) {
		t.Errorf("err = %v, want SSRF_BLOCKED", err)
	}
	if len(rec.failures) != 1 || rec.failures[0] != reasonSSRFBlocked {
		t.Errorf("failures = %v", rec.failures)
	}
}
