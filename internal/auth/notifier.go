package auth

import (
	"context"
	"log/slog"
	"time"
)

// ResetCodeNotifier はリセットコードをユーザーへ届ける手段の抽象。
// メール送信などの実際の配送は外部に委ねる。
type ResetCodeNotifier interface {
	SendResetCode(ctx context.Context, email, code string, expiresAt time.Time) error
}

// LogNotifier はリセットコードをDEBUGログに出力するだけのResetCodeNotifier。
// 配送手段が未設定の開発環境で使用する。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier はLogNotifierを生成する。loggerがnilの場合はslog.Default()を使う。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendResetCode はコードをDEBUGレベルでのみ記録する。
func (n *LogNotifier) SendResetCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	n.logger.DebugContext(ctx, "password reset code issued",
		slog.String("email", email),
		slog.String("code", code),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}

var _ ResetCodeNotifier = (*LogNotifier)(nil)
