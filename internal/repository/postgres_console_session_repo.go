package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/authgate/internal/model"
)

// PostgresConsoleSessionRepo はPostgreSQLを使用したコンソールセッションリポジトリ。
// キャッシュ済みユーザー情報はuser_dataカラムにJSONで保持する。
type PostgresConsoleSessionRepo struct {
	db *sql.DB
}

// NewPostgresConsoleSessionRepo はPostgresConsoleSessionRepoを生成する。
func NewPostgresConsoleSessionRepo(db *sql.DB) *PostgresConsoleSessionRepo {
	return &PostgresConsoleSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresConsoleSessionRepo) Create(ctx context.Context, session *model.ConsoleSession) error {
	userData, err := marshalUser(session.User)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO console_sessions (id, upstream_cookie, user_data, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.UpstreamCookie, userData, session.CreatedAt, session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create console session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。
// 見つからない場合と期限切れの場合はnilを返す。
func (r *PostgresConsoleSessionRepo) FindByID(ctx context.Context, id string) (*model.ConsoleSession, error) {
	session := &model.ConsoleSession{}
	var userData []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, upstream_cookie, user_data, created_at, expires_at
		 FROM console_sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &session.UpstreamCookie, &userData, &session.CreatedAt, &session.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find console session: %w", err)
	}

	user, err := unmarshalUser(userData)
	if err != nil {
		return nil, err
	}
	session.User = user

	return session, nil
}

// Update はキャッシュ済みユーザー情報と上流Cookieを更新する。
func (r *PostgresConsoleSessionRepo) Update(ctx context.Context, session *model.ConsoleSession) error {
	userData, err := marshalUser(session.User)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE console_sessions
		 SET upstream_cookie = $2, user_data = $3
		 WHERE id = $1`,
		session.ID, session.UpstreamCookie, userData,
	)
	if err != nil {
		return fmt.Errorf("failed to update console session: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresConsoleSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM console_sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete console session: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
func (r *PostgresConsoleSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM console_sessions WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired console sessions: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted console sessions: %w", err)
	}
	return count, nil
}

// marshalUser はキャッシュ済みユーザーをJSONに変換する。匿名の場合はnilを返す。
func marshalUser(user *model.UserRecord) ([]byte, error) {
	if user == nil {
		return nil, nil
	}
	data, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cached user: %w", err)
	}
	return data, nil
}

// unmarshalUser はuser_dataカラムの値をUserRecordに戻す。NULLの場合はnilを返す。
func unmarshalUser(data []byte) (*model.UserRecord, error) {
	if len(data) == 0 {
		return nil, nil
	}
	user := &model.UserRecord{}
	if err := json.Unmarshal(data, user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached user: %w", err)
	}
	return user, nil
}

// compile-time interface check
var _ ConsoleSessionRepository = (*PostgresConsoleSessionRepo)(nil)
