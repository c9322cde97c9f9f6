// Package article は記事とカテゴリのドメインロジックを提供する。
package article

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/repository"
	"github.com/hitoshi/newsdesk/internal/security"
)

const (
	maxTitleLength        = 200
	maxCategoryNameLength = 50
)

// Input は記事の作成・更新の入力値。
type Input struct {
	Title      string
	Content    string
	CategoryID *string
	ImageURL   string
}

// DraftInput はフィードインポートで作成する下書きの入力値。
type DraftInput struct {
	Title      string
	Content    string
	ImageURL   string
	SourceURL  string
	CategoryID *string
}

// ListInput は公開記事一覧の絞り込み条件。
type ListInput struct {
	CategorySlug string
	Query        string
	Page         model.Pagination
}

// Service は記事とカテゴリのサービス層。
type Service struct {
	articles   repository.ArticleRepository
	categories repository.CategoryRepository
	sanitizer  security.ContentSanitizerService
	now        func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	articles repository.ArticleRepository,
	categories repository.CategoryRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		articles:   articles,
		categories: categories,
		sanitizer:  sanitizer,
		now:        time.Now,
	}
}

// List は公開済み記事を新しい順に返す。
func (s *Service) List(ctx context.Context, in ListInput) ([]*model.Article, error) {
	page := in.Page.Normalize()
	articles, err := s.articles.ListPublished(ctx, model.ArticleFilter{
		CategorySlug: strings.TrimSpace(in.CategorySlug),
		Query:        strings.TrimSpace(in.Query),
		Limit:        page.Limit,
		Offset:       page.Offset(),
	})
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	return articles, nil
}

// GetBySlug は公開済み記事を取得し、閲覧数を1増やす。
// 下書きは公開記事として扱わずARTICLE_NOT_FOUNDを返す。
func (s *Service) GetBySlug(ctx context.Context, slug string) (*model.Article, error) {
	a, err := s.articles.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if a == nil || !a.IsPublished() {
		return nil, model.NewArticleNotFoundError(slug)
	}

	// 閲覧数の更新失敗は記事の表示を妨げない
	if err := s.articles.IncrementViewCount(ctx, a.ID); err != nil {
		slog.Warn("failed to increment view count",
			slog.String("article_id", a.ID),
			slog.String("error", err.Error()),
		)
	} else {
		a.ViewCount++
	}
	return a, nil
}

// ListMine はactorが執筆した記事を下書きを含めて返す。
func (s *Service) ListMine(ctx context.Context, actor model.Actor, page model.Pagination) ([]*model.Article, error) {
	page = page.Normalize()
	articles, err := s.articles.ListByAuthor(ctx, actor.UserID, page.Limit, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	return articles, nil
}

// Create は下書きとして記事を作成する。
func (s *Service) Create(ctx context.Context, actor model.Actor, in Input) (*model.Article, error) {
	if !actor.Role.CanWrite() {
		return nil, model.NewForbiddenError()
	}
	clean, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	a := &model.Article{
		ID:         uuid.NewString(),
		AuthorID:   actor.UserID,
		CategoryID: clean.CategoryID,
		Title:      clean.Title,
		Slug:       NewArticleSlug(clean.Title),
		Content:    clean.Content,
		Excerpt:    Excerpt(clean.Content, DefaultExcerptLength),
		ImageURL:   clean.ImageURL,
		Status:     model.ArticleStatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.articles.Create(ctx, a); err != nil {
		if field, ok := repository.DuplicateField(err); ok {
			return nil, model.NewConflictError(field)
		}
		return nil, fmt.Errorf("記事の作成に失敗しました: %w", err)
	}

	slog.Info("article created",
		slog.String("article_id", a.ID),
		slog.String("author_id", a.AuthorID),
	)
	return a, nil
}

// Update は記事のタイトル・本文・カテゴリ・画像を更新する。スラッグは変更しない。
func (s *Service) Update(ctx context.Context, actor model.Actor, id string, in Input) (*model.Article, error) {
	a, err := s.findEditable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	clean, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	a.Title = clean.Title
	a.Content = clean.Content
	a.Excerpt = Excerpt(clean.Content, DefaultExcerptLength)
	a.CategoryID = clean.CategoryID
	a.ImageURL = clean.ImageURL
	a.UpdatedAt = s.now()

	if err := s.articles.Update(ctx, a); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewArticleNotFoundError(id)
		}
		return nil, fmt.Errorf("記事の更新に失敗しました: %w", err)
	}
	return a, nil
}

// Delete は記事を削除する。
func (s *Service) Delete(ctx context.Context, actor model.Actor, id string) error {
	if _, err := s.findEditable(ctx, actor, id); err != nil {
		return err
	}
	if err := s.articles.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewArticleNotFoundError(id)
		}
		return fmt.Errorf("記事の削除に失敗しました: %w", err)
	}
	slog.Info("article deleted",
		slog.String("article_id", id),
		slog.String("actor_id", actor.UserID),
	)
	return nil
}

// Publish は記事を公開する。初回公開時にpublished_atを設定し、再公開では維持する。
func (s *Service) Publish(ctx context.Context, actor model.Actor, id string) (*model.Article, error) {
	a, err := s.findEditable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	publishedAt := a.PublishedAt
	if publishedAt == nil {
		now := s.now()
		publishedAt = &now
	}
	if err := s.setStatus(ctx, id, model.ArticleStatusPublished, publishedAt); err != nil {
		return nil, err
	}
	a.Status = model.ArticleStatusPublished
	a.PublishedAt = publishedAt
	return a, nil
}

// Unpublish は記事を下書きに戻す。published_atは再公開時のために維持する。
func (s *Service) Unpublish(ctx context.Context, actor model.Actor, id string) (*model.Article, error) {
	a, err := s.findEditable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.setStatus(ctx, id, model.ArticleStatusDraft, a.PublishedAt); err != nil {
		return nil, err
	}
	a.Status = model.ArticleStatusDraft
	return a, nil
}

// CreateImportedDraft はインポートしたフィード項目を下書き記事として保存する。
// 同じインポート元URLの記事が既に存在する場合は保存せずfalseを返す。
func (s *Service) CreateImportedDraft(ctx context.Context, authorID string, in DraftInput) (bool, error) {
	sourceURL := strings.TrimSpace(in.SourceURL)
	if sourceURL != "" {
		exists, err := s.articles.ExistsBySourceURL(ctx, sourceURL)
		if err != nil {
			return false, fmt.Errorf("インポート元URLの確認に失敗しました: %w", err)
		}
		if exists {
			return false, nil
		}
	}

	title := truncateTitle(s.sanitizer.SanitizeText(in.Title))
	if title == "" {
		title = "無題"
	}
	content := s.sanitizer.Sanitize(in.Content)

	now := s.now()
	a := &model.Article{
		ID:         uuid.NewString(),
		AuthorID:   authorID,
		CategoryID: in.CategoryID,
		Title:      title,
		Slug:       NewArticleSlug(title),
		Content:    content,
		Excerpt:    Excerpt(content, DefaultExcerptLength),
		ImageURL:   httpsOnly(in.ImageURL),
		Status:     model.ArticleStatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if sourceURL != "" {
		a.SourceURL = &sourceURL
	}

	if err := s.articles.Create(ctx, a); err != nil {
		// 並行インポートで先に保存された場合は重複として扱う
		if field, ok := repository.DuplicateField(err); ok && field == "source_url" {
			return false, nil
		}
		return false, fmt.Errorf("下書きの保存に失敗しました: %w", err)
	}
	return true, nil
}

// findEditable は記事を取得し、actorが編集可能か検証する。
// ライターは自分の記事のみ、管理者はすべての記事を編集できる。
func (s *Service) findEditable(ctx context.Context, actor model.Actor, id string) (*model.Article, error) {
	if !actor.Role.CanWrite() {
		return nil, model.NewForbiddenError()
	}
	a, err := s.articles.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if a == nil {
		return nil, model.NewArticleNotFoundError(id)
	}
	if !actor.IsAdmin() && a.AuthorID != actor.UserID {
		return nil, model.NewForbiddenError()
	}
	return a, nil
}

func (s *Service) setStatus(ctx context.Context, id string, status model.ArticleStatus, publishedAt *time.Time) error {
	if err := s.articles.SetStatus(ctx, id, status, publishedAt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewArticleNotFoundError(id)
		}
		return fmt.Errorf("公開状態の更新に失敗しました: %w", err)
	}
	return nil
}

// prepare は入力値をサニタイズして検証する。
func (s *Service) prepare(ctx context.Context, in Input) (Input, error) {
	out := Input{
		Title:   s.sanitizer.SanitizeText(in.Title),
		Content: strings.TrimSpace(s.sanitizer.Sanitize(in.Content)),
	}
	if out.Title == "" || len([]rune(out.Title)) > maxTitleLength {
		return Input{}, model.NewValidationError(fmt.Sprintf("タイトルは1〜%d文字で入力してください", maxTitleLength))
	}
	if out.Content == "" {
		return Input{}, model.NewValidationError("本文を入力してください")
	}

	if img := strings.TrimSpace(in.ImageURL); img != "" {
		out.ImageURL = httpsOnly(img)
		if out.ImageURL == "" {
			return Input{}, model.NewValidationError("画像URLはhttpsで指定してください")
		}
	}

	if in.CategoryID != nil && *in.CategoryID != "" {
		if _, err := uuid.Parse(*in.CategoryID); err != nil {
			return Input{}, model.NewCategoryNotFoundError(*in.CategoryID)
		}
		c, err := s.categories.FindByID(ctx, *in.CategoryID)
		if err != nil {
			return Input{}, fmt.Errorf("カテゴリの取得に失敗しました: %w", err)
		}
		if c == nil {
			return Input{}, model.NewCategoryNotFoundError(*in.CategoryID)
		}
		id := c.ID
		out.CategoryID = &id
	}
	return out, nil
}

// httpsOnly はhttpsの絶対URLであればそのまま、そうでなければ空文字列を返す。
func httpsOnly(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return ""
	}
	return u.String()
}

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) > maxTitleLength {
		return string(runes[:maxTitleLength])
	}
	return title
}

// ListCategories はカテゴリ一覧を名前順で返す。
func (s *Service) ListCategories(ctx context.Context) ([]*model.Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の取得に失敗しました: %w", err)
	}
	return categories, nil
}

// CreateCategory はカテゴリを作成する（管理者向け）。
// slugが空の場合は名前から生成し、生成できない場合はランダムなスラッグを使う。
func (s *Service) CreateCategory(ctx context.Context, name, slug string) (*model.Category, error) {
	name = s.sanitizer.SanitizeText(name)
	if name == "" || len([]rune(name)) > maxCategoryNameLength {
		return nil, model.NewValidationError(fmt.Sprintf("カテゴリ名は1〜%d文字で入力してください", maxCategoryNameLength))
	}

	slug = Slugify(slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		slug = "category-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}

	c := &model.Category{
		ID:        uuid.NewString(),
		Name:      name,
		Slug:      slug,
		CreatedAt: s.now(),
	}
	if err := s.categories.Create(ctx, c); err != nil {
		if field, ok := repository.DuplicateField(err); ok {
			return nil, model.NewConflictError(field)
		}
		return nil, fmt.Errorf("カテゴリの作成に失敗しました: %w", err)
	}
	return c, nil
}

// DeleteCategory はカテゴリを削除する（管理者向け）。所属記事のカテゴリは未設定になる。
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := s.categories.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewCategoryNotFoundError(id)
		}
		return fmt.Errorf("カテゴリの削除に失敗しました: %w", err)
	}
	return nil
}
