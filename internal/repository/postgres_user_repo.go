package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/newsdesk/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, name, phone, password_hash, role,
	reset_token_hash, reset_token_expires_at, session_version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var phone, passwordHash, resetHash sql.NullString
	var resetExpiresAt sql.NullTime
	var role string

	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &phone, &passwordHash, &role,
		&resetHash, &resetExpiresAt, &user.SessionVersion, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Role = model.Role(role)
	user.PasswordHash = passwordHash.String
	user.ResetTokenHash = resetHash.String
	if phone.Valid {
		user.Phone = &phone.String
	}
	if resetExpiresAt.Valid {
		user.ResetTokenExpiresAt = &resetExpiresAt.Time
	}
	return user, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。大文字小文字は区別しない。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
		email,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メールアドレスによるユーザー検索に失敗しました: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, phone, password_hash, role, session_version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Email, user.Name, user.Phone, nullString(user.PasswordHash),
		string(user.Role), user.SessionVersion, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return translateError("ユーザーの作成に失敗しました", err)
	}
	return nil
}

// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// ユーザーを作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, name, phone, password_hash, role, session_version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Email, user.Name, user.Phone, nullString(user.PasswordHash),
		string(user.Role), user.SessionVersion, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return translateError("failed to insert user", err)
	}

	// identityを作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
	)
	if err != nil {
		return translateError("failed to insert identity", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// UpdateProfile は名前・メールアドレス・電話番号を更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, id, name, email string, phone *string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = $2, email = $3, phone = $4, updated_at = NOW() WHERE id = $1`,
		id, name, email, phone,
	)
	if err != nil {
		return translateError("プロフィールの更新に失敗しました", err)
	}
	rows, err := result.RowsAffected()
	return expectAffected("プロフィールの更新", rows, err)
}

// UpdatePassword はパスワードハッシュを更新し、session_versionを進める。
// 未使用のリセットコードも同時に無効化する。
func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET password_hash = $2,
		     reset_token_hash = NULL,
		     reset_token_expires_at = NULL,
		     session_version = session_version + 1,
		     updated_at = NOW()
		 WHERE id = $1`,
		id, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("パスワードの更新に失敗しました: %w", err)
	}
	rows, err := result.RowsAffected()
	return expectAffected("パスワードの更新", rows, err)
}

// SetResetToken はリセットコードのハッシュと有効期限を上書き保存する。
func (r *PostgresUserRepo) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = NOW() WHERE id = $1`,
		id, tokenHash, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("リセットコードの保存に失敗しました: %w", err)
	}
	rows, err := result.RowsAffected()
	return expectAffected("リセットコードの保存", rows, err)
}

// CompletePasswordReset は検証済みのリセットハッシュが現在も保存されている場合に限り
// パスワードを置き換える。同じコードでの2回目の呼び出しは0行となりfalseを返す。
func (r *PostgresUserRepo) CompletePasswordReset(ctx context.Context, id, newPasswordHash, expectedResetHash string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET password_hash = $2,
		     reset_token_hash = NULL,
		     reset_token_expires_at = NULL,
		     session_version = session_version + 1,
		     updated_at = NOW()
		 WHERE id = $1 AND reset_token_hash = $3`,
		id, newPasswordHash, expectedResetHash,
	)
	if err != nil {
		return false, fmt.Errorf("パスワードリセットの完了に失敗しました: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	return rows == 1, nil
}

// UpdateRole はロールを変更し、session_versionを進める。
func (r *PostgresUserRepo) UpdateRole(ctx context.Context, id string, role model.Role) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = $2, session_version = session_version + 1, updated_at = NOW() WHERE id = $1`,
		id, string(role),
	)
	if err != nil {
		return fmt.Errorf("ロールの更新に失敗しました: %w", err)
	}
	rows, err := result.RowsAffected()
	return expectAffected("ロールの更新", rows, err)
}

// BumpSessionVersion はsession_versionを1進め、新しい値を返す。
func (r *PostgresUserRepo) BumpSessionVersion(ctx context.Context, id string) (int, error) {
	var version int
	err := r.db.QueryRowContext(ctx,
		`UPDATE users SET session_version = session_version + 1, updated_at = NOW()
		 WHERE id = $1 RETURNING session_version`,
		id,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("セッションバージョンの更新に失敗しました: %w", err)
	}
	return version, nil
}

// GetSessionVersion は現在のsession_versionを返す。
func (r *PostgresUserRepo) GetSessionVersion(ctx context.Context, id string) (int, error) {
	var version int
	err := r.db.QueryRowContext(ctx,
		`SELECT session_version FROM users WHERE id = $1`,
		id,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("セッションバージョンの取得に失敗しました: %w", err)
	}
	return version, nil
}

// List はユーザー一覧を作成日時の昇順で返す。
func (r *PostgresUserRepo) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at ASC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ユーザー行の読み取りに失敗しました: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー一覧の走査に失敗しました: %w", err)
	}
	return users, nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するidentities、articles、comments、bookmarksはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rows, err := result.RowsAffected()
	return expectAffected("failed to delete user", rows, err)
}

// ClearExpiredResetTokens は有効期限を過ぎたリセット情報を消去し、件数を返す。
func (r *PostgresUserRepo) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET reset_token_hash = NULL, reset_token_expires_at = NULL
		 WHERE reset_token_hash IS NOT NULL AND reset_token_expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れリセットコードの消去に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
