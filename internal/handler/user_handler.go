package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/newsdesk/internal/auth"
	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	ListUsers(ctx context.Context, page model.Pagination) ([]*model.User, error)
	// ChangeRole はactorIDの管理者がtargetIDのロールを変更する。
	ChangeRole(ctx context.Context, actorID, targetID string, role model.Role) (*model.User, error)
	// DeleteUser はactorIDの管理者がtargetIDのユーザーを削除する。
	DeleteUser(ctx context.Context, actorID, targetID string) error
}

// SessionRefresher はデータベースの現在の状態からセッションを再発行する。
type SessionRefresher interface {
	RefreshSession(ctx context.Context, userID string) (*auth.Session, error)
}

// UserHandler はプロフィールとユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service   UserServiceInterface
	refresher SessionRefresher
	cookies   sessionCookies
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, refresher SessionRefresher, config AuthHandlerConfig) *UserHandler {
	return &UserHandler{
		service:   service,
		refresher: refresher,
		cookies:   newSessionCookies(config),
	}
}

// updateProfileRequest は省略されたフィールドを現在の値のまま残す。
type updateProfileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

// GetProfile はログインユーザーのプロフィールを返す。
// GET /api/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	u, err := h.service.GetProfile(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// UpdateProfile はプロフィールを更新し、トークンの内容を追従させるためセッションを再発行する。
// PATCH /api/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	current, err := h.service.GetProfile(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	in := user.ProfileInput{Name: current.Name, Email: current.Email}
	if current.Phone != nil {
		in.Phone = *current.Phone
	}
	if req.Name != nil {
		in.Name = *req.Name
	}
	if req.Email != nil {
		in.Email = *req.Email
	}
	if req.Phone != nil {
		in.Phone = *req.Phone
	}

	updated, err := h.service.UpdateProfile(r.Context(), actor.UserID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.refreshCookie(w, r, actor.UserID)
	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

// ChangePassword はパスワードを変更する。
// 変更で旧トークンは失効するため、新しいセッションを発行し直す。
// PUT /api/profile/password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), actor.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		handleServiceError(w, err)
		return
	}
	h.refreshCookie(w, r, actor.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// ListUsers はユーザー一覧を返す（管理者向け）。
// GET /api/admin/users?page=1&limit=20
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context(), paginationFromQuery(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	list := make([]userResponse, 0, len(users))
	for _, u := range users {
		list = append(list, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": list})
}

// ChangeRole は対象ユーザーのロールを変更する（管理者向け）。
// PUT /api/admin/users/{id}/role
func (h *UserHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	targetID, ok := resourceID(w, r, "id", userNotFound)
	if !ok {
		return
	}
	var req changeRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.ChangeRole(r.Context(), actor.UserID, targetID, model.Role(req.Role))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// DeleteUser は対象ユーザーを削除する（管理者向け）。
// DELETE /api/admin/users/{id}
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	targetID, ok := resourceID(w, r, "id", userNotFound)
	if !ok {
		return
	}
	if err := h.service.DeleteUser(r.Context(), actor.UserID, targetID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// refreshCookie はセッションを再発行してCookieを差し替える。
// 失敗しても本体の操作は完了しているため、ログのみ出力する。
func (h *UserHandler) refreshCookie(w http.ResponseWriter, r *http.Request, userID string) {
	session, err := h.refresher.RefreshSession(r.Context(), userID)
	if err != nil {
		slog.Warn("failed to refresh session",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	h.cookies.set(w, session)
}
