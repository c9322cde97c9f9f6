package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/newsdesk/internal/auth"
	"github.com/hitoshi/newsdesk/internal/middleware"
	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/user"
)

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	getProfileFn     func(ctx context.Context, userID string) (*model.User, error)
	updateProfileFn  func(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error)
	changePasswordFn func(ctx context.Context, userID, currentPassword, newPassword string) error
	listUsersFn      func(ctx context.Context, page model.Pagination) ([]*model.User, error)
	changeRoleFn     func(ctx context.Context, actorID, targetID string, role model.Role) (*model.User, error)
	deleteUserFn     func(ctx context.Context, actorID, targetID string) error
}

func (m *mockUserService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, userID)
	}
	phone := "090-0000-0000"
	return &model.User{ID: userID, Email: "old@example.com", Name: "Old Name", Phone: &phone, Role: model.RoleUser}, nil
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, in)
	}
	return &model.User{ID: userID, Email: in.Email, Name: in.Name, Role: model.RoleUser}, nil
}

func (m *mockUserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, userID, currentPassword, newPassword)
	}
	return nil
}

func (m *mockUserService) ListUsers(ctx context.Context, page model.Pagination) ([]*model.User, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx, page)
	}
	return nil, nil
}

func (m *mockUserService) ChangeRole(ctx context.Context, actorID, targetID string, role model.Role) (*model.User, error) {
	if m.changeRoleFn != nil {
		return m.changeRoleFn(ctx, actorID, targetID, role)
	}
	return &model.User{ID: targetID, Role: role}, nil
}

func (m *mockUserService) DeleteUser(ctx context.Context, actorID, targetID string) error {
	if m.deleteUserFn != nil {
		return m.deleteUserFn(ctx, actorID, targetID)
	}
	return nil
}

func TestUserHandler_GetProfile(t *testing.T) {
	h := NewUserHandler(&mockUserService{}, &mockAuthService{}, testAuthConfig())

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/profile", nil), "user-1", model.RoleUser)
	w := httptest.NewRecorder()
	h.GetProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp userResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "user-1" || resp.Email != "old@example.com" {
		t.Errorf("response = %+v", resp)
	}
}

func TestUserHandler_GetProfile_NoIdentity(t *testing.T) {
	h := NewUserHandler(&mockUserService{}, &mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	w := httptest.NewRecorder()
	h.GetProfile(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestUserHandler_UpdateProfile_MergesOmittedFields(t *testing.T) {
	var got user.ProfileInput
	svc := &mockUserService{
		updateProfileFn: func(_ context.Context, userID string, in user.ProfileInput) (*model.User, error) {
			got = in
			return &model.User{ID: userID, Email: in.Email, Name: in.Name, Role: model.RoleUser}, nil
		},
	}
	h := NewUserHandler(svc, &mockAuthService{}, testAuthConfig())

	req := withIdentity(httptest.NewRequest(http.MethodPatch, "/api/profile", strings.NewReader(`{"name":"New Name"}`)), "user-1", model.RoleUser)
	w := httptest.NewRecorder()
	h.UpdateProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	want := user.ProfileInput{Name: "New Name", Email: "old@example.com", Phone: "090-0000-0000"}
	if got != want {
		t.Errorf("input = %+v, want %+v", got, want)
	}
	if cookie := findCookie(w.Result().Cookies(), middleware.SessionCookieName); cookie == nil || cookie.Value != "token-user-1" {
		t.Errorf("refreshed session cookie = %+v", cookie)
	}
}

func TestUserHandler_UpdateProfile_ClearPhone(t *testing.T) {
	var got user.ProfileInput
	svc := &mockUserService{
		updateProfileFn: func(_ context.Context, userID string, in user.ProfileInput) (*model.User, error) {
			got = in
			return &model.User{ID: userID, Email: in.Email, Name: in.Name}, nil
		},
	}
	h := NewUserHandler(svc, &mockAuthService{}, testAuthConfig())

	req := withIdentity(httptest.NewRequest(http.MethodPatch, "/api/profile", strings.NewReader(`{"phone":""}`)), "user-1", model.RoleUser)
	w := httptest.NewRecorder()
	h.UpdateProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.Phone != "" {
		t.Errorf("phone = %q, want empty", got.Phone)
	}
}

func TestUserHandler_UpdateProfile_RefreshFailureStillSucceeds(t *testing.T) {
	refresher := &mockAuthService{
		refreshFn: func(context.Context, string) (*auth.Session, error) {
			return nil, errors.New("db down")
		},
	}
	h := NewUserHandler(&mockUserService{}, refresher, testAuthConfig())

	req := withIdentity(httptest.NewRequest(http.MethodPatch, "/api/profile", strings.NewReader(`{"name":"X"}`)), "user-1", model.RoleUser)
	w := httptest.NewRecorder()
	h.UpdateProfile(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if findCookie(w.Result().Cookies(), middleware.SessionCookieName) != nil {
		t.Error("session cookie should not be set when refresh fails")
	}
}

func TestUserHandler_UpdateProfile_EmailConflict(t *testing.T) {
	svc := &mockUserService{
		updateProfileFn: func(context.Context, string, user.ProfileInput) (*model.User, error) {
			return nil, model.NewConflictError("email")
		},
	}
	h := NewUserHandler(svc, &mockAuthService{}, testAuthConfig())

	req := withIdentity(httptest.NewRequest(http.MethodPatch, "/api/profile", strings.NewReader(`{"email":"taken@example.com"}`)), "user-1", model.RoleUser)
	w := httptest.NewRecorder()
	h.UpdateProfile(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestUserHandler_ChangePassword(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "success", wantStatus: http.StatusNoContent},
		{name: "wrong current password", err: model.NewInvalidCredentialsError(), wantStatus: http.StatusUnauthorized},
		{name: "weak new password", err: model.NewWeakPasswordError(8), wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockUserService{
				changePasswordFn: func(_ context.Context, _, current, next string) error {
					if current != "old-password" || next != "new-password" {
						t.Errorf("args = %q, %q", current, next)
					}
					return tt.err
				},
			}
			h := NewUserHandler(svc, &mockAuthService{}, testAuthConfig())

			body := `{"current_password":"old-password","new_password":"new-password"}`
			req := withIdentity(httptest.NewRequest(http.MethodPut, "/api/profile/password", strings.NewReader(body)), "user-1", model.RoleUser)
			w := httptest.NewRecorder()
			h.ChangePassword(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			cookie := findCookie(w.Result().Cookies(), middleware.SessionCookieName)
			if tt.err == nil && cookie == nil {
				t.Error("session cookie should be reissued after password change")
			}
			if tt.err != nil && cookie != nil {
				t.Error("session cookie should not change on failure")
			}
		})
	}
}

func TestUserHandler_ListUsers_PassesPagination(t *testing.T) {
	var got model.Pagination
	svc := &mockUserService{
		listUsersFn: func(_ context.Context, page model.Pagination) ([]*model.User, error) {
			got = page
			return []*model.User{{ID: "a"}, {ID: "b"}}, nil
		},
	}
	h := NewUserHandler(svc, &mockAuthService{}, testAuthConfig())

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/admin/users?page=2&limit=500", nil), "admin", model.RoleAdmin)
	w := httptest.NewRecorder()
	h.ListUsers(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.Page != 2 || got.Limit != model.MaxPageSize {
		t.Errorf("pagination = %+v", got)
	}
	var resp struct {
		Users []userResponse `json:"users"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Users) != 2 {
		t.Errorf("len(users) = %d, want 2", len(resp.Users))
	}
}

func TestUserHandler_ChangeRole(t *testing.T) {
	var gotActor, gotTarget string
	var gotRole model.Role
	svc := &mockUserService{
		changeRoleFn: func(_ context.Context, actorID, targetID string, role model.Role) (*model.User, error) {
			gotActor, gotTarget, gotRole = actorID, targetID, role
			return &model.User{ID: targetID, Role: role}, nil
		},
	}
	h := NewUserHandler(svc, &mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodPut, "/api/admin/users/"+testUserID+"/role", strings.NewReader(`{"role":"WRITER"}`))
	req = withURLParam(withIdentity(req, "admin", model.RoleAdmin), "id", testUserID)
	w := httptest.NewRecorder()
	h.ChangeRole(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotActor != "admin" || gotTarget != testUserID || gotRole != model.RoleWriter {
		t.Errorf("args = %q, %q, %q", gotActor, gotTarget, gotRole)
	}
}

func TestUserHandler_ChangeRole_SelfDemotion(t *testing.T) {
	svc := &mockUserService{
		changeRoleFn: func(context.Context, string, string, model.Role) (*model.User, error) {
			return nil, model.NewPolicyViolationError("自分自身のロールを降格することはできません")
		},
	}
	h := NewUserHandler(svc, &mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodPut, "/api/admin/users/"+testAdminID+"/role", strings.NewReader(`{"role":"USER"}`))
	req = withURLParam(withIdentity(req, testAdminID, model.RoleAdmin), "id", testAdminID)
	w := httptest.NewRecorder()
	h.ChangeRole(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestUserHandler_DeleteUser(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "deleted", wantStatus: http.StatusNoContent},
		{name: "not found", err: model.NewUserNotFoundError(), wantStatus: http.StatusNotFound},
		{name: "repository failure", err: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockUserService{
				deleteUserFn: func(_ context.Context, actorID, targetID string) error {
					if actorID != "admin" || targetID != testUserID {
						t.Errorf("args = %q, %q", actorID, targetID)
					}
					return tt.err
				},
			}
			h := NewUserHandler(svc, &mockAuthService{}, testAuthConfig())

			req := httptest.NewRequest(http.MethodDelete, "/api/admin/users/"+testUserID, nil)
			req = withURLParam(withIdentity(req, "admin", model.RoleAdmin), "id", testUserID)
			w := httptest.NewRecorder()
			h.DeleteUser(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
