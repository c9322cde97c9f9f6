package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound は更新・削除対象の行が存在しないことを表す。
var ErrNotFound = errors.New("record not found")

// ErrDuplicate は一意制約違反を表す。errors.Isで判定する。
var ErrDuplicate = errors.New("duplicate record")

// pgUniqueViolation はPostgreSQLの一意制約違反コード。
const pgUniqueViolation = "23505"

// DuplicateError は違反した項目名を保持する一意制約違反エラー。
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s", e.Field)
}

// Unwrap はErrDuplicateを返し、errors.Is(err, ErrDuplicate)を成立させる。
func (e *DuplicateError) Unwrap() error {
	return ErrDuplicate
}

// constraintFields は制約名と利用者に提示する項目名の対応。
var constraintFields = map[string]string{
	"users_email_key":              "email",
	"users_phone_key":              "phone",
	"identities_provider_user_key": "identity",
	"categories_name_key":          "name",
	"categories_slug_key":          "slug",
	"articles_slug_key":            "slug",
	"idx_articles_source_url":      "source_url",
}

// DuplicateField はerrが一意制約違反であれば項目名を返す。
func DuplicateField(err error) (string, bool) {
	var dupErr *DuplicateError
	if errors.As(err, &dupErr) {
		return dupErr.Field, true
	}
	return "", false
}

// translateError はlib/pqの一意制約違反を*DuplicateErrorに変換する。
// それ以外のエラーはopを付けてラップする。
func translateError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		field, ok := constraintFields[pqErr.Constraint]
		if !ok {
			field = pqErr.Constraint
		}
		return &DuplicateError{Field: field}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// expectAffected はUPDATE/DELETEの影響行数が0の場合にErrNotFoundを返す。
func expectAffected(op string, rowsAffected int64, err error) error {
	if err != nil {
		return fmt.Errorf("%s: 影響行数の取得に失敗しました: %w", op, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
