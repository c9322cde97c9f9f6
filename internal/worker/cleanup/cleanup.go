// Package cleanup は期限切れリセットコードの定期消去ジョブを提供する。
// 有効期限を過ぎたreset_token_hashとreset_token_expires_atを
// 定期バッチで消去する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ResetTokenStore は期限切れリセットコードを消去するストアのインターフェース。
// repository.UserRepositoryが満たす。
type ResetTokenStore interface {
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// Recorder は消去件数のメトリクス記録インターフェース。
type Recorder interface {
	RecordResetTokensCleared(count int64)
}

// CleanupJob は期限切れリセットコードの消去ジョブ。
// 何度実行しても結果が変わらない冪等な処理として設計されている。
type CleanupJob struct {
	store    ResetTokenStore
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(store ResetTokenStore, recorder Recorder, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		store:    store,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Run は現在時刻時点で期限切れのリセットコードを消去する。
// 消去対象がない場合もエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	cleared, err := j.store.ClearExpiredResetTokens(ctx, j.now())
	if err != nil {
		j.logger.Error("リセットコード消去ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("リセットコード消去の実行に失敗: %w", err)
	}

	j.recorder.RecordResetTokensCleared(cleared)

	duration := time.Since(start)
	j.logger.Info("リセットコード消去ジョブが完了しました",
		slog.Int64("cleared_count", cleared),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回、その後interval間隔でRunを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("リセットコード消去ジョブを開始しました",
		slog.Duration("interval", interval),
	)

	// 失敗はRun内でログ出力済みのため次回の実行を待つ
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("リセットコード消去ジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
