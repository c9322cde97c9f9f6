package handler

import (
	"time"

	"github.com/hitoshi/newsdesk/internal/model"
)

// userResponse はユーザー情報のAPIレスポンス。認証情報は含めない。
type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Phone       *string   `json:"phone"`
	Role        string    `json:"role"`
	HasPassword bool      `json:"has_password"`
	CreatedAt   time.Time `json:"created_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Phone:       u.Phone,
		Role:        string(u.Role),
		HasPassword: u.HasPassword(),
		CreatedAt:   u.CreatedAt,
	}
}

// sessionUserResponse はセッショントークンから復元したユーザー情報のAPIレスポンス。
type sessionUserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// articleResponse は記事のAPIレスポンス。
type articleResponse struct {
	ID          string     `json:"id"`
	AuthorID    string     `json:"author_id"`
	AuthorName  string     `json:"author_name,omitempty"`
	CategoryID  *string    `json:"category_id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Content     string     `json:"content,omitempty"`
	Excerpt     string     `json:"excerpt"`
	ImageURL    string     `json:"image_url,omitempty"`
	SourceURL   *string    `json:"source_url,omitempty"`
	Status      string     `json:"status"`
	ViewCount   int64      `json:"view_count"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// toArticleResponse は記事をレスポンスに変換する。一覧では本文を省略する。
func toArticleResponse(a *model.Article, withContent bool) articleResponse {
	resp := articleResponse{
		ID:          a.ID,
		AuthorID:    a.AuthorID,
		AuthorName:  a.AuthorName,
		CategoryID:  a.CategoryID,
		Title:       a.Title,
		Slug:        a.Slug,
		Excerpt:     a.Excerpt,
		ImageURL:    a.ImageURL,
		SourceURL:   a.SourceURL,
		Status:      string(a.Status),
		ViewCount:   a.ViewCount,
		PublishedAt: a.PublishedAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	if withContent {
		resp.Content = a.Content
	}
	return resp
}

func toArticleList(articles []*model.Article) []articleResponse {
	list := make([]articleResponse, 0, len(articles))
	for _, a := range articles {
		list = append(list, toArticleResponse(a, false))
	}
	return list
}

type categoryResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func toCategoryResponse(c *model.Category) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, Slug: c.Slug}
}

type commentResponse struct {
	ID        string    `json:"id"`
	ArticleID string    `json:"article_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func toCommentResponse(c *model.Comment) commentResponse {
	return commentResponse{
		ID:        c.ID,
		ArticleID: c.ArticleID,
		UserID:    c.UserID,
		UserName:  c.UserName,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
	}
}
