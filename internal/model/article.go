package model

import "time"

// ArticleStatus は記事の公開状態を表す。
type ArticleStatus string

const (
	// ArticleStatusDraft は下書き。
	ArticleStatusDraft ArticleStatus = "draft"
	// ArticleStatusPublished は公開済み。
	ArticleStatusPublished ArticleStatus = "published"
)

// Category は記事カテゴリを表す。
type Category struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
}

// Article はニュース記事を表す。
type Article struct {
	ID          string
	AuthorID    string
	AuthorName  string
	CategoryID  *string
	Title       string
	Slug        string
	Content     string // サニタイズ済みHTML
	Excerpt     string // プレーンテキスト
	ImageURL    string
	SourceURL   *string // フィードインポート元
	Status      ArticleStatus
	ViewCount   int64
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsPublished は記事が公開済みかを返す。
func (a *Article) IsPublished() bool {
	return a.Status == ArticleStatusPublished
}

// ArticleFilter は公開記事一覧の絞り込み条件を表す。
type ArticleFilter struct {
	CategorySlug string
	Query        string
	Limit        int
	Offset       int
}

// Comment は記事へのコメントを表す。
type Comment struct {
	ID        string
	ArticleID string
	UserID    string
	UserName  string
	Content   string
	CreatedAt time.Time
}

// Bookmark はユーザーが保存した記事を表す。
type Bookmark struct {
	UserID    string
	ArticleID string
	CreatedAt time.Time
}
