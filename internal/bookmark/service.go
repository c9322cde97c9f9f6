// Package bookmark はブックマークのサービス層を提供する。
package bookmark

import (
	"context"
	"fmt"

	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/repository"
)

// Service はブックマークのサービス層。
type Service struct {
	bookmarks repository.BookmarkRepository
	articles  repository.ArticleRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(bookmarks repository.BookmarkRepository, articles repository.ArticleRepository) *Service {
	return &Service{bookmarks: bookmarks, articles: articles}
}

// List はユーザーのブックマーク記事を返す。非公開になった記事は含めない。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Article, error) {
	articles, err := s.bookmarks.ListArticlesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ブックマーク一覧の取得に失敗しました: %w", err)
	}
	visible := make([]*model.Article, 0, len(articles))
	for _, a := range articles {
		if a.IsPublished() {
			visible = append(visible, a)
		}
	}
	return visible, nil
}

// Add は公開記事をブックマークする。既に登録済みでも成功とする。
func (s *Service) Add(ctx context.Context, userID, articleID string) error {
	a, err := s.articles.FindByID(ctx, articleID)
	if err != nil {
		return fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if a == nil || !a.IsPublished() {
		return model.NewArticleNotFoundError(articleID)
	}
	if err := s.bookmarks.Add(ctx, userID, articleID); err != nil {
		return fmt.Errorf("ブックマークの追加に失敗しました: %w", err)
	}
	return nil
}

// Remove はブックマークを解除する。
func (s *Service) Remove(ctx context.Context, userID, articleID string) error {
	if err := s.bookmarks.Remove(ctx, userID, articleID); err != nil {
		return fmt.Errorf("ブックマークの削除に失敗しました: %w", err)
	}
	return nil
}
