package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdesk/internal/article"
	"github.com/hitoshi/newsdesk/internal/importer"
	"github.com/hitoshi/newsdesk/internal/model"
)

// ArticleServiceInterface は記事・カテゴリハンドラーが必要とするサービスインターフェース。
type ArticleServiceInterface interface {
	List(ctx context.Context, in article.ListInput) ([]*model.Article, error)
	GetBySlug(ctx context.Context, slug string) (*model.Article, error)
	ListMine(ctx context.Context, actor model.Actor, page model.Pagination) ([]*model.Article, error)
	Create(ctx context.Context, actor model.Actor, in article.Input) (*model.Article, error)
	Update(ctx context.Context, actor model.Actor, id string, in article.Input) (*model.Article, error)
	Delete(ctx context.Context, actor model.Actor, id string) error
	Publish(ctx context.Context, actor model.Actor, id string) (*model.Article, error)
	Unpublish(ctx context.Context, actor model.Actor, id string) (*model.Article, error)

	ListCategories(ctx context.Context) ([]*model.Category, error)
	CreateCategory(ctx context.Context, name, slug string) (*model.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

// FeedImporter はフィードの記事を下書きとして取り込む。
type FeedImporter interface {
	Import(ctx context.Context, authorID, feedURL string, categoryID *string) (*importer.Result, error)
}

// ArticleHandler は記事とカテゴリのHTTPハンドラー。
type ArticleHandler struct {
	service  ArticleServiceInterface
	importer FeedImporter
}

// NewArticleHandler はArticleHandlerを生成する。
func NewArticleHandler(service ArticleServiceInterface, importer FeedImporter) *ArticleHandler {
	return &ArticleHandler{service: service, importer: importer}
}

type articleRequest struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	CategoryID *string `json:"category_id"`
	ImageURL   string  `json:"image_url"`
}

func (req articleRequest) toInput() article.Input {
	return article.Input{
		Title:      req.Title,
		Content:    req.Content,
		CategoryID: req.CategoryID,
		ImageURL:   req.ImageURL,
	}
}

type importRequest struct {
	URL        string  `json:"url"`
	CategoryID *string `json:"category_id"`
}

type categoryRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ListArticles は公開記事の一覧を返す。
// GET /api/articles?category=tech&q=keyword&page=1&limit=20
func (h *ArticleHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := paginationFromQuery(r)
	articles, err := h.service.List(r.Context(), article.ListInput{
		CategorySlug: q.Get("category"),
		Query:        q.Get("q"),
		Page:         page,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"articles": toArticleList(articles),
		"page":     page.Page,
		"limit":    page.Limit,
	})
}

// GetArticle は公開記事をスラッグで取得する。
// GET /api/articles/{id}（公開記事はスラッグで参照する）
func (h *ArticleHandler) GetArticle(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetBySlug(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toArticleResponse(a, true))
}

// ListMine はログインユーザーが執筆した記事を下書きを含めて返す。
// GET /api/articles/mine
func (h *ArticleHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	page := paginationFromQuery(r)
	articles, err := h.service.ListMine(r.Context(), actor, page)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"articles": toArticleList(articles),
		"page":     page.Page,
		"limit":    page.Limit,
	})
}

// CreateArticle は記事を下書きとして作成する。
// POST /api/articles
func (h *ArticleHandler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req articleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.service.Create(r.Context(), actor, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toArticleResponse(a, true))
}

// UpdateArticle は記事を更新する。
// PUT /api/articles/{id}
func (h *ArticleHandler) UpdateArticle(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := resourceID(w, r, "id", model.NewArticleNotFoundError)
	if !ok {
		return
	}
	var req articleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.service.Update(r.Context(), actor, id, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toArticleResponse(a, true))
}

// DeleteArticle は記事を削除する。
// DELETE /api/articles/{id}
func (h *ArticleHandler) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := resourceID(w, r, "id", model.NewArticleNotFoundError)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PublishArticle は記事を公開する。
// POST /api/articles/{id}/publish
func (h *ArticleHandler) PublishArticle(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := resourceID(w, r, "id", model.NewArticleNotFoundError)
	if !ok {
		return
	}
	a, err := h.service.Publish(r.Context(), actor, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toArticleResponse(a, false))
}

// UnpublishArticle は記事を下書きに戻す。
// DELETE /api/articles/{id}/publish
func (h *ArticleHandler) UnpublishArticle(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := resourceID(w, r, "id", model.NewArticleNotFoundError)
	if !ok {
		return
	}
	a, err := h.service.Unpublish(r.Context(), actor, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toArticleResponse(a, false))
}

// ImportFeed は外部フィードの記事を下書きとして取り込む。
// POST /api/articles/import
func (h *ArticleHandler) ImportFeed(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req importRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	result, err := h.importer.Import(r.Context(), actor.UserID, req.URL, req.CategoryID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListCategories はカテゴリ一覧を返す。
// GET /api/categories
func (h *ArticleHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	list := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		list = append(list, toCategoryResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": list})
}

// CreateCategory はカテゴリを作成する（管理者向け）。
// POST /api/categories
func (h *ArticleHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.service.CreateCategory(r.Context(), req.Name, req.Slug)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryResponse(c))
}

// DeleteCategory はカテゴリを削除する（管理者向け）。
// DELETE /api/categories/{id}
func (h *ArticleHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r, "id", model.NewCategoryNotFoundError)
	if !ok {
		return
	}
	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
