package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/newsdesk/internal/model"
)

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

// articleSelect は著者名をJOINした記事取得用のSELECT句。
const articleSelect = `SELECT a.id, a.author_id, u.name, a.category_id, a.title, a.slug,
	a.content, a.excerpt, a.image_url, a.source_url, a.status, a.view_count,
	a.published_at, a.created_at, a.updated_at
	FROM articles a
	JOIN users u ON u.id = a.author_id`

func scanArticle(row rowScanner) (*model.Article, error) {
	a := &model.Article{}
	var categoryID, sourceURL sql.NullString
	var publishedAt sql.NullTime
	var status string

	err := row.Scan(
		&a.ID, &a.AuthorID, &a.AuthorName, &categoryID, &a.Title, &a.Slug,
		&a.Content, &a.Excerpt, &a.ImageURL, &sourceURL, &status, &a.ViewCount,
		&publishedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = model.ArticleStatus(status)
	if categoryID.Valid {
		a.CategoryID = &categoryID.String
	}
	if sourceURL.Valid {
		a.SourceURL = &sourceURL.String
	}
	if publishedAt.Valid {
		a.PublishedAt = &publishedAt.Time
	}
	return a, nil
}

func collectArticles(rows *sql.Rows) ([]*model.Article, error) {
	defer rows.Close()

	var articles []*model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("記事行の読み取りに失敗しました: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}
	return articles, nil
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindByID(ctx context.Context, id string) (*model.Article, error) {
	a, err := scanArticle(r.db.QueryRowContext(ctx, articleSelect+` WHERE a.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	return a, nil
}

// FindBySlug はスラッグで記事を取得する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindBySlug(ctx context.Context, slug string) (*model.Article, error) {
	a, err := scanArticle(r.db.QueryRowContext(ctx, articleSelect+` WHERE a.slug = $1`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スラッグによる記事の取得に失敗しました: %w", err)
	}
	return a, nil
}

// ListPublished は公開済み記事をpublished_at降順で返す。
// CategorySlugとQueryが指定された場合のみ条件に加える。
func (r *PostgresArticleRepo) ListPublished(ctx context.Context, filter model.ArticleFilter) ([]*model.Article, error) {
	conds := []string{`a.status = 'published'`}
	var args []any

	if filter.CategorySlug != "" {
		args = append(args, filter.CategorySlug)
		conds = append(conds, fmt.Sprintf(`a.category_id = (SELECT id FROM categories WHERE slug = $%d)`, len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		conds = append(conds, fmt.Sprintf(`(a.title ILIKE $%d OR a.excerpt ILIKE $%d)`, len(args), len(args)))
	}

	args = append(args, filter.Limit, filter.Offset)
	query := articleSelect +
		` WHERE ` + strings.Join(conds, " AND ") +
		fmt.Sprintf(` ORDER BY a.published_at DESC, a.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("公開記事一覧の取得に失敗しました: %w", err)
	}
	return collectArticles(rows)
}

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListByAuthor は著者の全記事をupdated_at降順で返す。
func (r *PostgresArticleRepo) ListByAuthor(ctx context.Context, authorID string, limit, offset int) ([]*model.Article, error) {
	rows, err := r.db.QueryContext(ctx,
		articleSelect+` WHERE a.author_id = $1 ORDER BY a.updated_at DESC LIMIT $2 OFFSET $3`,
		authorID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("著者の記事一覧の取得に失敗しました: %w", err)
	}
	return collectArticles(rows)
}

// Create は記事を作成する。
func (r *PostgresArticleRepo) Create(ctx context.Context, a *model.Article) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO articles (id, author_id, category_id, title, slug, content, excerpt, image_url,
		                       source_url, status, view_count, published_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.AuthorID, a.CategoryID, a.Title, a.Slug, a.Content, a.Excerpt, a.ImageURL,
		a.SourceURL, string(a.Status), a.ViewCount, a.PublishedAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return translateError("記事の作成に失敗しました", err)
	}
	return nil
}

// Update はタイトル・本文・抜粋・カテゴリ・画像URLを更新する。
func (r *PostgresArticleRepo) Update(ctx context.Context, a *model.Article) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE articles
		 SET title = $2, content = $3, excerpt = $4, category_id = $5, image_url = $6, updated_at = $7
		 WHERE id = $1`,
		a.ID, a.Title, a.Content, a.Excerpt, a.CategoryID, a.ImageURL, a.UpdatedAt,
	)
	if err != nil {
		return translateError("記事の更新に失敗しました", err)
	}
	rows, err := result.RowsAffected()
	return expectAffected("記事の更新", rows, err)
}

// SetStatus は公開状態とpublished_atを更新する。
func (r *PostgresArticleRepo) SetStatus(ctx context.Context, id string, status model.ArticleStatus, publishedAt *time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE articles SET status = $2, published_at = $3, updated_at = NOW() WHERE id = $1`,
		id, string(status), publishedAt,
	)
	if err != nil {
		return fmt.Errorf("記事の公開状態の更新に失敗しました: %w", err)
	}
	rows, err := result.RowsAffected()
	return expectAffected("記事の公開状態の更新", rows, err)
}

// IncrementViewCount は閲覧数を1増やす。
func (r *PostgresArticleRepo) IncrementViewCount(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE articles SET view_count = view_count + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("閲覧数の更新に失敗しました: %w", err)
	}
	return nil
}

// ExistsBySourceURL はインポート元URLの記事が既に存在するかを返す。
func (r *PostgresArticleRepo) ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM articles WHERE source_url = $1)`,
		sourceURL,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("インポート元URLの確認に失敗しました: %w", err)
	}
	return exists, nil
}

// DeleteByID は記事を削除する。コメントとブックマークはCASCADE削除される。
func (r *PostgresArticleRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM articles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("記事の削除に失敗しました: %w", err)
	}
	rows, err := result.RowsAffected()
	return expectAffected("記事の削除", rows, err)
}

// compile-time interface check
var _ ArticleRepository = (*PostgresArticleRepo)(nil)
