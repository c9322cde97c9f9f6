package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/newsdesk/internal/model"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 8

// MaxPasswordBytes はbcryptが受け付ける入力の上限バイト数。
const MaxPasswordBytes = 72

// resetCodeDigits はリセットコードの桁数。
const resetCodeDigits = 6

// ValidatePassword はパスワードポリシーを検証する。
func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return model.NewWeakPasswordError(MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return model.NewValidationError(fmt.Sprintf("パスワードは%dバイト以内で入力してください", MaxPasswordBytes))
	}
	return nil
}

// PasswordHasher はbcryptによるハッシュ化と照合を行う。
// パスワードとリセットコードの両方に使用する。
type PasswordHasher struct {
	cost int
	// dummyHash は存在しないユーザーに対する照合で使用する。
	dummyHash []byte
}

// NewPasswordHasher はPasswordHasherを生成する。
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("newsdesk-dummy-password"), cost)
	if err != nil {
		panic(fmt.Sprintf("failed to prepare dummy hash: %v", err))
	}
	return &PasswordHasher{cost: cost, dummyHash: dummy}
}

// Hash は平文をbcryptでハッシュ化する。
func (h *PasswordHasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(b), nil
}

// Compare はハッシュと平文が一致するかを返す。
// ハッシュが空の場合もダミーハッシュとの照合を行ってからfalseを返す。
func (h *PasswordHasher) Compare(hash, plain string) bool {
	if hash == "" {
		h.CompareDummy(plain)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// CompareDummy はダミーハッシュと照合し、応答時間を揃える。
func (h *PasswordHasher) CompareDummy(plain string) {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(plain))
}

// generateResetCode はcrypto/randで6桁の数字コードを生成する。
func generateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate reset code: %w", err)
	}
	return fmt.Sprintf("%0*d", resetCodeDigits, n.Int64()), nil
}
