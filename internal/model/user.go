// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限区分を表す。
type Role string

const (
	// RoleUser は一般読者。
	RoleUser Role = "USER"
	// RoleWriter は記事を執筆できるユーザー。
	RoleWriter Role = "WRITER"
	// RoleAdmin は管理者。
	RoleAdmin Role = "ADMIN"
)

// Valid はRoleが定義済みの3値のいずれかであるかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleWriter, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanWrite は記事の作成・編集が許可されたロールかを返す。
func (r Role) CanWrite() bool {
	return r == RoleWriter || r == RoleAdmin
}

// User はサービス利用ユーザーを表す。
// PasswordHashが空のユーザーは外部IdP経由でのみログインできる。
type User struct {
	ID                  string
	Email               string
	Name                string
	Phone               *string
	PasswordHash        string
	Role                Role
	ResetTokenHash      string
	ResetTokenExpiresAt *time.Time
	SessionVersion      int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasPassword はローカル認証用のパスワードが設定されているかを返す。
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// SessionIdentity はセッショントークンから復元された認証済みユーザー情報を表す。
// サーバー側には保存されず、署名付きトークンにのみ存在する。
type SessionIdentity struct {
	UserID  string
	Email   string
	Name    string
	Role    Role
	Version int
}

// Actor は操作を行う認証済みユーザーを表す。所有者判定と権限判定に使用する。
type Actor struct {
	UserID string
	Role   Role
}

// IsAdmin は管理者かどうかを返す。
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
