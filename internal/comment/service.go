// Package comment は記事コメントのサービス層を提供する。
package comment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/repository"
	"github.com/hitoshi/newsdesk/internal/security"
)

// MaxContentLength はコメント本文の最大文字数。
const MaxContentLength = 2000

// Service はコメントのサービス層。
type Service struct {
	comments  repository.CommentRepository
	articles  repository.ArticleRepository
	sanitizer security.ContentSanitizerService
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	comments repository.CommentRepository,
	articles repository.ArticleRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		comments:  comments,
		articles:  articles,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// List は公開記事のコメントを投稿順に返す。
func (s *Service) List(ctx context.Context, articleID string) ([]*model.Comment, error) {
	if err := s.requirePublished(ctx, articleID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByArticle(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return comments, nil
}

// Create は公開記事にコメントを投稿する。本文はタグをすべて除去して保存する。
func (s *Service) Create(ctx context.Context, actor model.Actor, articleID, content string) (*model.Comment, error) {
	text := s.sanitizer.SanitizeText(content)
	if text == "" || len([]rune(text)) > MaxContentLength {
		return nil, model.NewValidationError(fmt.Sprintf("コメントは1〜%d文字で入力してください", MaxContentLength))
	}
	if err := s.requirePublished(ctx, articleID); err != nil {
		return nil, err
	}

	c := &model.Comment{
		ID:        uuid.NewString(),
		ArticleID: articleID,
		UserID:    actor.UserID,
		Content:   text,
		CreatedAt: s.now(),
	}
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("コメントの投稿に失敗しました: %w", err)
	}
	return c, nil
}

// Delete はコメントを削除する。投稿者本人と管理者のみ削除できる。
func (s *Service) Delete(ctx context.Context, actor model.Actor, commentID string) error {
	c, err := s.comments.FindByID(ctx, commentID)
	if err != nil {
		return fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	if c == nil {
		return model.NewCommentNotFoundError(commentID)
	}
	if c.UserID != actor.UserID && !actor.IsAdmin() {
		return model.NewForbiddenError()
	}

	if err := s.comments.DeleteByID(ctx, commentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewCommentNotFoundError(commentID)
		}
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}

	slog.Info("comment deleted",
		slog.String("comment_id", commentID),
		slog.String("actor_id", actor.UserID),
	)
	return nil
}

func (s *Service) requirePublished(ctx context.Context, articleID string) error {
	a, err := s.articles.FindByID(ctx, articleID)
	if err != nil {
		return fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if a == nil || !a.IsPublished() {
		return model.NewArticleNotFoundError(articleID)
	}
	return nil
}
