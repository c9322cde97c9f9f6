// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/newsdesk/internal/model"
)

// 認証済みユーザー情報を下流へ伝えるリクエストヘッダー。
// クライアントから送られた同名ヘッダーはゲートで必ず除去される。
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
	HeaderUserRole  = "X-User-Role"
)

var identityHeaders = []string{HeaderUserID, HeaderUserEmail, HeaderUserName, HeaderUserRole}

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに認証済みユーザー情報を格納するためのキー。
var identityContextKey = contextKey("identity")

// IdentityFromContext はリクエストコンテキストから認証済みユーザー情報を取得する。
// ゲートでセッションが解決されたリクエストでのみ値が存在する。
func IdentityFromContext(ctx context.Context) (*model.SessionIdentity, bool) {
	id, ok := ctx.Value(identityContextKey).(*model.SessionIdentity)
	if !ok || id == nil || id.UserID == "" {
		return nil, false
	}
	return id, true
}

// ContextWithIdentity はコンテキストに認証済みユーザー情報を注入する。
func ContextWithIdentity(ctx context.Context, id *model.SessionIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return "", fmt.Errorf("user ID not found in context")
	}
	return id.UserID, nil
}

// ContextWithUserID はユーザーIDのみを持つIdentityをコンテキストに注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithIdentity(ctx, &model.SessionIdentity{UserID: userID, Role: model.RoleUser})
}

// stripIdentityHeaders はクライアントが送ったX-User-*ヘッダーを削除する。
func stripIdentityHeaders(r *http.Request) {
	for _, h := range identityHeaders {
		r.Header.Del(h)
	}
}

// setIdentityHeaders は検証済みのユーザー情報でX-User-*ヘッダーを設定する。
func setIdentityHeaders(r *http.Request, id *model.SessionIdentity) {
	r.Header.Set(HeaderUserID, id.UserID)
	r.Header.Set(HeaderUserEmail, id.Email)
	r.Header.Set(HeaderUserName, id.Name)
	r.Header.Set(HeaderUserRole, string(id.Role))
}
