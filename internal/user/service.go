// Package user はプロフィール管理と管理者向けユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/newsdesk/internal/auth"
	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/repository"
)

// PasswordHasher はパスワードのハッシュ化と照合を行う。auth.PasswordHasherが満たす。
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(hash, plain string) bool
}

// ProfileInput はプロフィール更新の入力値。Phoneが空文字列の場合は未設定にする。
type ProfileInput struct {
	Name  string
	Email string
	Phone string
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, hasher PasswordHasher) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
	}
}

// GetProfile はユーザーのプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateProfile は名前・メールアドレス・電話番号を更新し、更新後のユーザーを返す。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*model.User, error) {
	email := auth.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	phone := strings.TrimSpace(in.Phone)
	if err := auth.ValidateProfile(email, name, phone); err != nil {
		return nil, err
	}

	var phonePtr *string
	if phone != "" {
		phonePtr = &phone
	}

	if err := s.userRepo.UpdateProfile(ctx, userID, name, email, phonePtr); err != nil {
		if conflict := auth.ConflictFromDuplicate(err); conflict != nil {
			return nil, conflict
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	return s.GetProfile(ctx, userID)
}

// ChangePassword は現在のパスワードを確認してから新しいパスワードに変更する。
// session_versionが進むため、他の端末のセッションは無効になる。
// パスワード未設定（外部IdPのみ）のユーザーはパスワードリセットで設定する。
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Compare(user.PasswordHash, currentPassword) {
		return model.NewInvalidCredentialsError()
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("パスワードの更新に失敗しました: %w", err)
	}

	slog.Info("password changed", slog.String("user_id", userID))
	return nil
}

// ListUsers はユーザー一覧を返す（管理者向け）。
func (s *Service) ListUsers(ctx context.Context, page model.Pagination) ([]*model.User, error) {
	page = page.Normalize()
	users, err := s.userRepo.List(ctx, page.Limit, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// ChangeRole は対象ユーザーのロールを変更する（管理者向け）。
// 管理者が自分自身を降格することはできない。
// ロールが変わる場合だけ対象ユーザーのsession_versionが進み、既存のセッションは再ログインが必要になる。
func (s *Service) ChangeRole(ctx context.Context, actorID, targetID string, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("不明なロールです: %s", role))
	}
	if actorID == targetID && role != model.RoleAdmin {
		return nil, model.NewPolicyViolationError("自分自身のロールを降格することはできません")
	}

	target, err := s.GetProfile(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.Role == role {
		return target, nil
	}

	if err := s.userRepo.UpdateRole(ctx, targetID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("ロールの変更に失敗しました: %w", err)
	}

	slog.Info("user role changed",
		slog.String("actor_id", actorID),
		slog.String("target_id", targetID),
		slog.String("role", string(role)),
	)
	return s.GetProfile(ctx, targetID)
}

// DeleteUser は対象ユーザーを削除する（管理者向け）。
// 管理者が自分自身を削除することはできない。
func (s *Service) DeleteUser(ctx context.Context, actorID, targetID string) error {
	if actorID == targetID {
		return model.NewPolicyViolationError("自分自身を削除することはできません")
	}

	if err := s.userRepo.DeleteByID(ctx, targetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("user deleted",
		slog.String("actor_id", actorID),
		slog.String("target_id", targetID),
	)
	return nil
}
