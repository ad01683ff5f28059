// Package cleanup は期限切れコンソールセッションの自動削除ジョブを提供する。
// expires_atを過ぎた行を定期バッチで削除する。セッションの有効性判定は
// 参照時にも行われるため、このジョブは容量回収のみを担う。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/authgate/internal/metrics"
	"github.com/hitoshi/authgate/internal/repository"
)

// SessionCleanupJob は期限切れコンソールセッションの削除ジョブ。
// 冪等な削除処理として設計されており、対象がなくてもエラーにならない。
type SessionCleanupJob struct {
	repo    repository.ConsoleSessionRepository
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewSessionCleanupJob は新しいSessionCleanupJobを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewSessionCleanupJob(repo repository.ConsoleSessionRepository, collector metrics.MetricsCollector, logger *slog.Logger) *SessionCleanupJob {
	return &SessionCleanupJob{
		repo:    repo,
		metrics: collector,
		logger:  logger,
	}
}

// Run は期限切れセッションを削除する。
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.repo.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordSessionsCleaned(deletedCount)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は指定間隔でRunを繰り返すループを開始する。
// contextのキャンセルで停止する。ブロックするためgoroutineで呼び出すこと。
func (j *SessionCleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("セッションクリーンアップの定期実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップループを停止します")
			return
		}
	}
}
