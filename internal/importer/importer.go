// Package importer は外部RSS/Atomフィードの記事を下書きとして取り込む。
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/newsdesk/internal/article"
	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/repository"
	"github.com/hitoshi/newsdesk/internal/security"
)

// MaxItemsPerImport は1回のインポートで処理する最大記事数。
const MaxItemsPerImport = 50

// 失敗理由のメトリクスラベル
const (
	reasonInvalidURL  = "invalid_url"
	reasonSSRFBlocked = "ssrf_blocked"
	reasonFetchFailed = "fetch_failed"
	reasonParseFailed = "parse_failed"
	reasonStoreFailed = "store_failed"
)

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// DraftCreator はフィード項目を下書き記事として保存する。
type DraftCreator interface {
	CreateImportedDraft(ctx context.Context, authorID string, in article.DraftInput) (bool, error)
}

// Recorder はインポート結果のメトリクス記録インターフェース。
type Recorder interface {
	RecordImportResult(imported, skipped int)
	RecordImportFailure(reason string)
	RecordImportLatency(duration time.Duration)
}

// Result はインポート結果を表す。
type Result struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Importer はフィードのフェッチ、パース、下書き保存を行う。
type Importer struct {
	guard       SSRFValidator
	drafts      DraftCreator
	categories  repository.CategoryRepository
	recorder    Recorder
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

// NewImporter はImporterの新しいインスタンスを生成する。
func NewImporter(
	guard SSRFValidator,
	drafts DraftCreator,
	categories repository.CategoryRepository,
	recorder Recorder,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		guard:       guard,
		drafts:      drafts,
		categories:  categories,
		recorder:    recorder,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Import はfeedURLのフィードを取得し、各項目を下書き記事として保存する。
// 取り込み済みのインポート元URLを持つ項目は読み飛ばす。
func (i *Importer) Import(ctx context.Context, authorID, feedURL string, categoryID *string) (*Result, error) {
	start := time.Now()
	feedURL = strings.TrimSpace(feedURL)

	if err := i.guard.ValidateURL(feedURL); err != nil {
		i.logger.Warn("インポート元URLを拒否しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, security.ErrBlockedDestination) {
			i.recorder.RecordImportFailure(reasonSSRFBlocked)
			return nil, model.NewSSRFBlockedError()
		}
		i.recorder.RecordImportFailure(reasonInvalidURL)
		return nil, model.NewInvalidURLError("http(s)のフィードURLを指定してください")
	}

	if categoryID != nil && *categoryID != "" {
		if _, err := uuid.Parse(*categoryID); err != nil {
			return nil, model.NewCategoryNotFoundError(*categoryID)
		}
		c, err := i.categories.FindByID(ctx, *categoryID)
		if err != nil {
			return nil, fmt.Errorf("カテゴリの取得に失敗しました: %w", err)
		}
		if c == nil {
			return nil, model.NewCategoryNotFoundError(*categoryID)
		}
	} else {
		categoryID = nil
	}

	body, contentType, err := i.fetch(ctx, feedURL)
	if err != nil {
		i.logger.Error("フィードの取得に失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		i.recorder.RecordImportFailure(reasonFetchFailed)
		return nil, model.NewFetchFailedError(err.Error())
	}

	// サイトURLが指定された場合はheadで告知されたフィードを取り直す
	if isHTMLResponse(contentType) || looksLikeHTML(body) {
		if discovered := discoverFeedURL(body, feedURL); discovered != "" && discovered != feedURL {
			body, err = i.fetchDiscovered(ctx, feedURL, discovered)
			if err != nil {
				return nil, err
			}
			feedURL = discovered
		}
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		i.logger.Warn("フィードのパースに失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		i.recorder.RecordImportFailure(reasonParseFailed)
		return nil, model.NewParseFailedError()
	}

	result := &Result{}
	for _, in := range convertItems(parsed.Items, categoryID) {
		created, err := i.drafts.CreateImportedDraft(ctx, authorID, in)
		if err != nil {
			i.recorder.RecordImportFailure(reasonStoreFailed)
			return nil, fmt.Errorf("インポート記事の保存に失敗しました: %w", err)
		}
		if created {
			result.Imported++
		} else {
			result.Skipped++
		}
	}

	duration := time.Since(start)
	i.recorder.RecordImportResult(result.Imported, result.Skipped)
	i.recorder.RecordImportLatency(duration)

	i.logger.Info("フィードのインポートが完了しました",
		slog.String("feed_url", feedURL),
		slog.String("author_id", authorID),
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return result, nil
}

// fetchDiscovered はHTMLから見つけたフィードURLを検証して取得する。
func (i *Importer) fetchDiscovered(ctx context.Context, pageURL, discovered string) ([]byte, error) {
	if err := i.guard.ValidateURL(discovered); err != nil {
		i.logger.Warn("検出したフィードURLを拒否しました",
			slog.String("page_url", pageURL),
			slog.String("feed_url", discovered),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, security.ErrBlockedDestination) {
			i.recorder.RecordImportFailure(reasonSSRFBlocked)
			return nil, model.NewSSRFBlockedError()
		}
		i.recorder.RecordImportFailure(reasonInvalidURL)
		return nil, model.NewInvalidURLError("検出したフィードURLが不正です")
	}

	i.logger.Info("HTMLページからフィードURLを検出しました",
		slog.String("page_url", pageURL),
		slog.String("feed_url", discovered),
	)

	body, _, err := i.fetch(ctx, discovered)
	if err != nil {
		i.logger.Error("検出したフィードの取得に失敗しました",
			slog.String("feed_url", discovered),
			slog.String("error", err.Error()),
		)
		i.recorder.RecordImportFailure(reasonFetchFailed)
		return nil, model.NewFetchFailedError(err.Error())
	}
	return body, nil
}

// fetch はSSRF防止クライアントで本文とContent-Typeを取得する。
// maxBodySizeを超える応答はエラーとする。
func (i *Importer) fetch(ctx context.Context, feedURL string) ([]byte, string, error) {
	client := i.guard.NewSafeClient(i.timeout, i.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "Newsdesk/1.0 Feed Importer")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.8, */*;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTPステータス %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, i.maxBodySize+1))
	if err != nil {
		return nil, "", fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}
	if int64(len(body)) > i.maxBodySize {
		return nil, "", fmt.Errorf("レスポンスが上限 %d バイトを超えました", i.maxBodySize)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// convertItems はgofeedの項目を下書き入力に変換する。
func convertItems(items []*gofeed.Item, categoryID *string) []article.DraftInput {
	drafts := make([]article.DraftInput, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		if len(drafts) == MaxItemsPerImport {
			break
		}

		in := article.DraftInput{
			Title:      item.Title,
			Content:    item.Content,
			SourceURL:  item.Link,
			CategoryID: categoryID,
		}
		// Contentが空の場合はDescriptionを使用
		if in.Content == "" {
			in.Content = item.Description
		}
		// LinkがなくGUIDがURL形式の場合はGUIDをインポート元とする
		if in.SourceURL == "" && isHTTPURL(item.GUID) {
			in.SourceURL = item.GUID
		}
		in.ImageURL = imageURL(item)

		drafts = append(drafts, in)
	}
	return drafts
}

func imageURL(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
