// Package auth はローカル認証、外部IdP認証、セッショントークン、パスワードリセットを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdesk/internal/metrics"
	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool // プロバイダーがメールアドレスの所有を確認済みか
	Name           string
	Provider       string // "google" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	ResetTokenTTL time.Duration // リセットコードの有効期間
}

// ServiceDeps は認証サービスの依存関係。
type ServiceDeps struct {
	OAuth      OAuthProvider
	Users      repository.UserRepository
	Identities repository.IdentityRepository
	Issuer     *SessionIssuer
	Hasher     *PasswordHasher
	Notifier   ResetCodeNotifier
	Metrics    metrics.MetricsCollector
}

// Session はログイン成功時に発行されるトークンとユーザー。
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// RegisterInput はユーザー登録の入力値。
type RegisterInput struct {
	Email    string
	Name     string
	Phone    string
	Password string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth     OAuthProvider
	userRepo  repository.UserRepository
	identRepo repository.IdentityRepository
	issuer    *SessionIssuer
	hasher    *PasswordHasher
	notifier  ResetCodeNotifier
	metrics   metrics.MetricsCollector
	config    ServiceConfig
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(deps ServiceDeps, config ServiceConfig) *Service {
	if config.ResetTokenTTL <= 0 {
		config.ResetTokenTTL = 10 * time.Minute
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(nil)
	}
	return &Service{
		oauth:     deps.OAuth,
		userRepo:  deps.Users,
		identRepo: deps.Identities,
		issuer:    deps.Issuer,
		hasher:    deps.Hasher,
		notifier:  notifier,
		metrics:   m,
		config:    config,
		now:       time.Now,
	}
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9\- ]{6,18}[0-9]$`)
)

const maxNameLength = 100

// NormalizeEmail はメールアドレスを比較用に正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateProfile は名前・メールアドレス・電話番号の形式を検証する。
// phoneが空文字列の場合は未設定として扱う。
func ValidateProfile(email, name, phone string) error {
	if !emailPattern.MatchString(email) {
		return model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxNameLength {
		return model.NewValidationError(fmt.Sprintf("名前は1〜%d文字で入力してください", maxNameLength))
	}
	if phone != "" && !phonePattern.MatchString(phone) {
		return model.NewValidationError("電話番号の形式が正しくありません")
	}
	return nil
}

// ConflictFromDuplicate は一意制約違反をCONFLICTエラーに変換する。
// 一意制約違反でない場合はnilを返す。
func ConflictFromDuplicate(err error) *model.APIError {
	if field, ok := repository.DuplicateField(err); ok {
		return model.NewConflictError(field)
	}
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Service) record(event string, err error) {
	if err != nil {
		s.metrics.RecordAuthEvent(event, "failure")
		return
	}
	s.metrics.RecordAuthEvent(event, "success")
}

// Register はメールアドレスとパスワードでユーザーを登録する。ロールは常にUSERになる。
func (s *Service) Register(ctx context.Context, in RegisterInput) (user *model.User, err error) {
	defer func() { s.record("register", err) }()

	email := NormalizeEmail(in.Email)
	phone := strings.TrimSpace(in.Phone)
	if err := ValidateProfile(email, in.Name, phone); err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user = &model.User{
		ID:             uuid.New().String(),
		Email:          email,
		Name:           strings.TrimSpace(in.Name),
		Phone:          optionalString(phone),
		PasswordHash:   hash,
		Role:           model.RoleUser,
		SessionVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if conflict := ConflictFromDuplicate(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Login はメールアドレスとパスワードを検証し、セッショントークンを発行する。
// ユーザー不在、パスワード未設定、不一致はいずれもINVALID_CREDENTIALSとなる。
func (s *Service) Login(ctx context.Context, email, password string) (session *Session, err error) {
	defer func() { s.record("login", err) }()

	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.hasher.CompareDummy(password)
		return nil, model.NewInvalidCredentialsError()
	}
	if !s.hasher.Compare(user.PasswordHash, password) {
		return nil, model.NewInvalidCredentialsError()
	}

	return s.issue(user)
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// identityが登録済みであればそのユーザーでログインする。
// 未登録でメールアドレスが一致するユーザーがいる場合、プロバイダーが所有確認済みの
// メールアドレスに限り既存ユーザーへ紐付ける。確認されていない場合はCONFLICTを返す。
// どちらにも該当しない場合はパスワード未設定のUSERとして自動作成する。
func (s *Service) HandleCallback(ctx context.Context, code string) (session *Session, err error) {
	defer func() { s.record("federated_login", err) }()

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}
	email := NormalizeEmail(userInfo.Email)
	if email == "" {
		return nil, model.NewValidationError("外部IdPからメールアドレスを取得できませんでした")
	}

	// 2. identitiesテーブルで既存ユーザーを検索
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	if identity != nil {
		user, err := s.userRepo.FindByID(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("identity %s refers to missing user %s", identity.ID, identity.UserID)
		}
		slog.Info("existing user logged in",
			slog.String("user_id", user.ID),
			slog.String("provider", userInfo.Provider),
		)
		return s.issue(user)
	}

	now := s.now()
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		Provider:       userInfo.Provider,
		ProviderUserID: userInfo.ProviderUserID,
		CreatedAt:      now,
	}

	// 3. メールアドレスが一致する既存ユーザーへの紐付け
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		if !userInfo.EmailVerified {
			slog.Warn("refused to link unverified federated email",
				slog.String("user_id", existing.ID),
				slog.String("provider", userInfo.Provider),
			)
			return nil, model.NewConflictError("email")
		}
		newIdentity.UserID = existing.ID
		if err := s.identRepo.Create(ctx, newIdentity); err != nil {
			if conflict := ConflictFromDuplicate(err); conflict != nil {
				return nil, conflict
			}
			return nil, fmt.Errorf("failed to link identity: %w", err)
		}
		slog.Info("federated identity linked",
			slog.String("user_id", existing.ID),
			slog.String("provider", userInfo.Provider),
		)
		return s.issue(existing)
	}

	// 4. 新規ユーザー: usersレコードとidentitiesレコードを同時に作成
	name := strings.TrimSpace(userInfo.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	newUser := &model.User{
		ID:             uuid.New().String(),
		Email:          email,
		Name:           name,
		Role:           model.RoleUser,
		SessionVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	newIdentity.UserID = newUser.ID

	if err := s.userRepo.CreateWithIdentity(ctx, newUser, newIdentity); err != nil {
		if conflict := ConflictFromDuplicate(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", newUser.ID),
		slog.String("provider", userInfo.Provider),
	)
	return s.issue(newUser)
}

// RequestReset はリセットコードを発行する。
// ユーザーの存在有無にかかわらず同じ結果を返し、通知の失敗も呼び出し元には伝えない。
func (s *Service) RequestReset(ctx context.Context, email string) (err error) {
	defer func() { s.record("reset_request", err) }()

	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil
	}

	code, err := generateResetCode()
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.config.ResetTokenTTL)

	if err := s.userRepo.SetResetToken(ctx, user.ID, hash, expiresAt); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	if err := s.notifier.SendResetCode(ctx, user.Email, code, expiresAt); err != nil {
		slog.Error("failed to deliver reset code",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// VerifyReset はリセットコードを検証する。状態は変更しない。
func (s *Service) VerifyReset(ctx context.Context, email, code string) (err error) {
	defer func() { s.record("reset_verify", err) }()

	_, err = s.checkResetCode(ctx, email, code)
	return err
}

// CompleteReset はリセットコードを再検証してパスワードを置き換える。
// パスワード更新とリセット情報の消去は単一のUPDATEで行い、
// 検証時点のハッシュが既に消費されていた場合はINVALID_TOKENを返す。
func (s *Service) CompleteReset(ctx context.Context, email, code, newPassword string) (err error) {
	defer func() { s.record("reset_complete", err) }()

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.checkResetCode(ctx, email, code)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	ok, err := s.userRepo.CompletePasswordReset(ctx, user.ID, hash, user.ResetTokenHash)
	if err != nil {
		return fmt.Errorf("failed to complete password reset: %w", err)
	}
	if !ok {
		return model.NewInvalidTokenError()
	}

	slog.Info("password reset completed", slog.String("user_id", user.ID))
	return nil
}

// checkResetCode はユーザー、保存済みハッシュ、有効期限、コードの順に検証する。
func (s *Service) checkResetCode(ctx context.Context, email, code string) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.ResetTokenHash == "" || user.ResetTokenExpiresAt == nil {
		return nil, model.NewInvalidTokenError()
	}
	if !s.now().Before(*user.ResetTokenExpiresAt) {
		return nil, model.NewTokenExpiredError()
	}
	if !s.hasher.Compare(user.ResetTokenHash, strings.TrimSpace(code)) {
		return nil, model.NewTokenMismatchError()
	}
	return user, nil
}

// ResolveSession はトークンを検証して識別情報を返す。
func (s *Service) ResolveSession(token string) (*model.SessionIdentity, error) {
	return s.issuer.Parse(token)
}

// CurrentSessionVersion はユーザーの現在のsession_versionを返す。
// ユーザーが削除済みの場合はINVALID_SESSIONを返す。
func (s *Service) CurrentSessionVersion(ctx context.Context, userID string) (int, error) {
	version, err := s.userRepo.GetSessionVersion(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, model.NewInvalidSessionError()
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get session version: %w", err)
	}
	return version, nil
}

// RefreshSession はデータベースの現在の状態からトークンを再発行する。
// プロフィールやロール変更後にトークンの内容を追従させるために使用する。
func (s *Service) RefreshSession(ctx context.Context, userID string) (*Session, error) {
	user, err := s.GetCurrentUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// LogoutEverywhere はsession_versionを進め、発行済みの全トークンを無効にする。
func (s *Service) LogoutEverywhere(ctx context.Context, userID string) error {
	if _, err := s.userRepo.BumpSessionVersion(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("failed to bump session version: %w", err)
	}
	slog.Info("all sessions revoked", slog.String("user_id", userID))
	return nil
}

// GetCurrentUser はユーザーIDから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, model.NewUnauthenticatedError()
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func (s *Service) issue(user *model.User) (*Session, error) {
	token, expiresAt, err := s.issuer.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}
