package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/newsdesk/internal/middleware"
	"github.com/hitoshi/newsdesk/internal/model"
)

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	List(ctx context.Context, articleID string) ([]*model.Comment, error)
	Create(ctx context.Context, actor model.Actor, articleID, content string) (*model.Comment, error)
	Delete(ctx context.Context, actor model.Actor, commentID string) error
}

// BookmarkServiceInterface はブックマークハンドラーが必要とするサービスインターフェース。
type BookmarkServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Article, error)
	Add(ctx context.Context, userID, articleID string) error
	Remove(ctx context.Context, userID, articleID string) error
}

// CommentHandler はコメントとブックマークのHTTPハンドラー。
type CommentHandler struct {
	comments  CommentServiceInterface
	bookmarks BookmarkServiceInterface
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(comments CommentServiceInterface, bookmarks BookmarkServiceInterface) *CommentHandler {
	return &CommentHandler{comments: comments, bookmarks: bookmarks}
}

type commentRequest struct {
	Content string `json:"content"`
}

// ListComments は記事のコメント一覧を返す。
// GET /api/articles/{id}/comments
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	articleID, ok := resourceID(w, r, "id", model.NewArticleNotFoundError)
	if !ok {
		return
	}
	comments, err := h.comments.List(r.Context(), articleID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	list := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		list = append(list, toCommentResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": list})
}

// CreateComment は記事にコメントを投稿する。
// POST /api/articles/{id}/comments
func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	articleID, ok := resourceID(w, r, "id", model.NewArticleNotFoundError)
	if !ok {
		return
	}
	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.comments.Create(r.Context(), actor, articleID, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if id, ok := middleware.IdentityFromContext(r.Context()); ok {
		c.UserName = id.Name
	}
	writeJSON(w, http.StatusCreated, toCommentResponse(c))
}

// DeleteComment はコメントを削除する。
// DELETE /api/comments/{id}
func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	commentID, ok := resourceID(w, r, "id", model.NewCommentNotFoundError)
	if !ok {
		return
	}
	if err := h.comments.Delete(r.Context(), actor, commentID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListBookmarks はブックマークした記事の一覧を返す。
// GET /api/bookmarks
func (h *CommentHandler) ListBookmarks(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	articles, err := h.bookmarks.List(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": toArticleList(articles)})
}

// AddBookmark は記事をブックマークする。
// PUT /api/bookmarks/{articleID}
func (h *CommentHandler) AddBookmark(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	articleID, ok := resourceID(w, r, "articleID", model.NewArticleNotFoundError)
	if !ok {
		return
	}
	if err := h.bookmarks.Add(r.Context(), actor.UserID, articleID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveBookmark はブックマークを解除する。
// DELETE /api/bookmarks/{articleID}
func (h *CommentHandler) RemoveBookmark(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	articleID, ok := resourceID(w, r, "articleID", model.NewArticleNotFoundError)
	if !ok {
		return
	}
	if err := h.bookmarks.Remove(r.Context(), actor.UserID, articleID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
