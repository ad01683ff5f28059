// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/authgate/internal/model"
)

// ConsoleSessionRepository はコンソールセッションの永続化インターフェース。
type ConsoleSessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.ConsoleSession) error

	// FindByID は指定IDのセッションを取得する。
	// 見つからない場合と期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ConsoleSession, error)

	// Update はキャッシュ済みユーザー情報を更新する。
	Update(ctx context.Context, session *model.ConsoleSession) error

	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
