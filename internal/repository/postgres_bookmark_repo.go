package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/newsdesk/internal/model"
)

// PostgresBookmarkRepo はPostgreSQLを使用したブックマークリポジトリ。
type PostgresBookmarkRepo struct {
	db *sql.DB
}

// NewPostgresBookmarkRepo はPostgresBookmarkRepoを生成する。
func NewPostgresBookmarkRepo(db *sql.DB) *PostgresBookmarkRepo {
	return &PostgresBookmarkRepo{db: db}
}

// ListArticlesByUser はユーザーがブックマークした記事をブックマーク日時の降順で返す。
func (r *PostgresBookmarkRepo) ListArticlesByUser(ctx context.Context, userID string) ([]*model.Article, error) {
	rows, err := r.db.QueryContext(ctx,
		articleSelect+`
		 JOIN bookmarks b ON b.article_id = a.id
		 WHERE b.user_id = $1
		 ORDER BY b.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ブックマーク一覧の取得に失敗しました: %w", err)
	}
	return collectArticles(rows)
}

// Add はブックマークを冪等に追加する。
// 主キー(user_id, article_id)の衝突はON CONFLICT DO NOTHINGで無視する。
func (r *PostgresBookmarkRepo) Add(ctx context.Context, userID, articleID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bookmarks (user_id, article_id, created_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id, article_id) DO NOTHING`,
		userID, articleID,
	)
	if err != nil {
		return fmt.Errorf("ブックマークの追加に失敗しました: %w", err)
	}
	return nil
}

// Remove はブックマークを削除する。存在しない場合も成功とする。
func (r *PostgresBookmarkRepo) Remove(ctx context.Context, userID, articleID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE user_id = $1 AND article_id = $2`,
		userID, articleID,
	)
	if err != nil {
		return fmt.Errorf("ブックマークの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ BookmarkRepository = (*PostgresBookmarkRepo)(nil)
