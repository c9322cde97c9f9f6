// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/newsdesk/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。email/phoneの重複時は*DuplicateErrorを返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateProfile は名前・メールアドレス・電話番号を更新する。
	UpdateProfile(ctx context.Context, id, name, email string, phone *string) error

	// UpdatePassword はパスワードハッシュを更新し、session_versionを進める。
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// SetResetToken はリセットコードのハッシュと有効期限を上書き保存する。
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error

	// CompletePasswordReset はreset_token_hashがexpectedResetHashと一致する場合に限り、
	// パスワードを置き換えてリセット情報を消去し、session_versionを進める。
	// 条件に一致する行がなかった場合はfalseを返す。
	CompletePasswordReset(ctx context.Context, id, newPasswordHash, expectedResetHash string) (bool, error)

	// UpdateRole はロールを変更し、session_versionを進める。
	UpdateRole(ctx context.Context, id string, role model.Role) error

	// BumpSessionVersion はsession_versionを1進め、新しい値を返す。
	BumpSessionVersion(ctx context.Context, id string) (int, error)

	// GetSessionVersion は現在のsession_versionを返す。
	GetSessionVersion(ctx context.Context, id string) (int, error)

	// List はユーザー一覧を作成日時の昇順で返す。
	List(ctx context.Context, limit, offset int) ([]*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、articles、comments、bookmarksはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// ClearExpiredResetTokens は有効期限を過ぎたリセット情報を消去し、件数を返す。
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーにidentityを紐付ける。
	Create(ctx context.Context, identity *model.Identity) error
}

// CategoryRepository はカテゴリの永続化インターフェース。
type CategoryRepository interface {
	List(ctx context.Context) ([]*model.Category, error)
	// FindByID は見つからない場合nilを返す。
	FindByID(ctx context.Context, id string) (*model.Category, error)
	Create(ctx context.Context, category *model.Category) error
	DeleteByID(ctx context.Context, id string) error
}

// ArticleRepository は記事の永続化インターフェース。
type ArticleRepository interface {
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Article, error)

	// FindBySlug はスラッグで記事を取得する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Article, error)

	// ListPublished は公開済み記事をpublished_at降順で返す。
	ListPublished(ctx context.Context, filter model.ArticleFilter) ([]*model.Article, error)

	// ListByAuthor は著者の全記事をupdated_at降順で返す。
	ListByAuthor(ctx context.Context, authorID string, limit, offset int) ([]*model.Article, error)

	// Create は記事を作成する。slug/source_urlの重複時は*DuplicateErrorを返す。
	Create(ctx context.Context, article *model.Article) error

	// Update はタイトル・本文・抜粋・カテゴリ・画像URLを更新する。
	Update(ctx context.Context, article *model.Article) error

	// SetStatus は公開状態とpublished_atを更新する。
	SetStatus(ctx context.Context, id string, status model.ArticleStatus, publishedAt *time.Time) error

	// IncrementViewCount は閲覧数を1増やす。
	IncrementViewCount(ctx context.Context, id string) error

	// ExistsBySourceURL はインポート元URLの記事が既に存在するかを返す。
	ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error)

	DeleteByID(ctx context.Context, id string) error
}

// CommentRepository はコメントの永続化インターフェース。
type CommentRepository interface {
	// ListByArticle は記事のコメントを投稿日時の昇順で返す。
	ListByArticle(ctx context.Context, articleID string) ([]*model.Comment, error)
	// FindByID は見つからない場合nilを返す。
	FindByID(ctx context.Context, id string) (*model.Comment, error)
	Create(ctx context.Context, comment *model.Comment) error
	DeleteByID(ctx context.Context, id string) error
}

// BookmarkRepository はブックマークの永続化インターフェース。
type BookmarkRepository interface {
	// ListArticlesByUser はユーザーがブックマークした記事を新しい順に返す。
	ListArticlesByUser(ctx context.Context, userID string) ([]*model.Article, error)

	// Add はブックマークを冪等に追加する。
	Add(ctx context.Context, userID, articleID string) error

	// Remove はブックマークを削除する。存在しない場合も成功とする。
	Remove(ctx context.Context, userID, articleID string) error
}
