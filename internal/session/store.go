// Package session はコンソールセッションの発行・解決・破棄を提供する。
// MiniAuthのセッションCookieを不透明なまま保持し、ユーザー情報をキャッシュする。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/repository"
	"github.com/hitoshi/authgate/internal/upstream"
)

// Upstream はStoreが必要とするMiniAuth API呼び出しのインターフェース。
type Upstream interface {
	Me(ctx context.Context, cookie string) (*model.UserRecord, error)
	Login(ctx context.Context, email, password string) (string, error)
	Logout(ctx context.Context, cookie string) error
	Register(ctx context.Context, username, email, password string) (*upstream.RegisterReply, error)
}

// Snapshot はあるリクエスト時点での認証状態を表す。
type Snapshot struct {
	User    *model.UserRecord // 匿名の場合はnil
	Loading bool              // 上流への問い合わせが完了していない間のみtrue
}

// IsAuthenticated は認証済みかどうかを返す。Userがnilでないことと常に等価。
func (s Snapshot) IsAuthenticated() bool {
	return s.User != nil
}

// RegisterResult はアカウント登録の結果を表す。
// Successは登録後の自動ログインまで成功した場合のみtrueになる。
type RegisterResult struct {
	Session *model.ConsoleSession
	Success bool
	Message string
}

// StoreConfig はセッションストアの設定。
type StoreConfig struct {
	SessionMaxAge time.Duration // コンソールセッションの有効期間
}

// Store はコンソールセッションのライフサイクルを管理する。
type Store struct {
	upstream Upstream
	repo     repository.ConsoleSessionRepository
	config   StoreConfig
}

// NewStore はStoreを生成する。
func NewStore(up Upstream, repo repository.ConsoleSessionRepository, config StoreConfig) *Store {
	return &Store{
		upstream: up,
		repo:     repo,
		config:   config,
	}
}

// Login はMiniAuthで認証し、新しいコンソールセッションを発行する。
// 認証失敗時は*model.APIErrorを返す。
func (s *Store) Login(ctx context.Context, email, password string) (*model.ConsoleSession, error) {
	cookie, err := s.upstream.Login(ctx, email, password)
	if err != nil {
		var apiErr *upstream.Error
		if errors.As(err, &apiErr) {
			return nil, model.NewInvalidCredentialsError()
		}
		return nil, model.NewUpstreamError("")
	}

	session, err := s.createSession(ctx, cookie)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in",
		slog.String("session_id", session.ID),
		slog.Bool("user_resolved", session.User != nil),
	)
	return session, nil
}

// Register は新規アカウントを登録し、続けて自動ログインを試みる。
// 登録自体の失敗はMessageに理由を含むSuccess=falseで返す。
// 登録が成功しても自動ログインが失敗した場合、結果はSuccess=false。
func (s *Store) Register(ctx context.Context, username, email, password string) (*RegisterResult, error) {
	reply, err := s.upstream.Register(ctx, username, email, password)
	if err != nil {
		return &RegisterResult{
			Success: false,
			Message: registrationFailureMessage(err),
		}, nil
	}

	message := reply.Message
	if message == "" {
		message = "アカウントを登録しました。"
	}

	session, err := s.Login(ctx, email, password)
	if err != nil {
		slog.Warn("auto-login after registration failed",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return &RegisterResult{
			Success: false,
			Message: "アカウントは登録されましたが、自動ログインに失敗しました。",
		}, nil
	}

	return &RegisterResult{
		Session: session,
		Success: true,
		Message: message,
	}, nil
}

// Resolve はセッションIDからコンソールセッションを取得する。
// 見つからない場合と期限切れの場合はnilを返す。
func (s *Store) Resolve(ctx context.Context, id string) (*model.ConsoleSession, error) {
	if id == "" {
		return nil, nil
	}

	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve console session: %w", err)
	}
	return session, nil
}

// Refresh は上流に現在のユーザーを問い合わせ、キャッシュを更新して
// 認証状態のスナップショットを返す。問い合わせの失敗は匿名として扱い、
// エラーとしては返さない。
func (s *Store) Refresh(ctx context.Context, session *model.ConsoleSession) Snapshot {
	if session == nil || session.UpstreamCookie == "" {
		return Snapshot{User: nil, Loading: false}
	}

	user, err := s.upstream.Me(ctx, session.UpstreamCookie)
	if err != nil {
		slog.Info("session refresh resolved to anonymous",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		user = nil
	}

	session.User = user
	if updateErr := s.repo.Update(ctx, session); updateErr != nil {
		slog.Error("failed to persist refreshed session",
			slog.String("session_id", session.ID),
			slog.String("error", updateErr.Error()),
		)
	}

	return Snapshot{User: user, Loading: false}
}

// Logout はMiniAuth側のセッション破棄を試み、結果に関わらず
// コンソールセッションを削除する。上流の失敗はログアウトを妨げない。
func (s *Store) Logout(ctx context.Context, session *model.ConsoleSession) error {
	if session == nil {
		return nil
	}

	if session.UpstreamCookie != "" {
		if err := s.upstream.Logout(ctx, session.UpstreamCookie); err != nil {
			slog.Warn("upstream logout failed, clearing local session anyway",
				slog.String("session_id", session.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.repo.DeleteByID(ctx, session.ID); err != nil {
		return fmt.Errorf("failed to delete console session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", session.ID))
	return nil
}

// createSession は上流Cookieを保持する新しいコンソールセッションを発行する。
// ユーザー情報の解決に失敗してもセッション自体は発行する。
func (s *Store) createSession(ctx context.Context, cookie string) (*model.ConsoleSession, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	user, err := s.upstream.Me(ctx, cookie)
	if err != nil {
		slog.Warn("failed to resolve user after login",
			slog.String("error", err.Error()),
		)
		user = nil
	}

	now := time.Now()
	session := &model.ConsoleSession{
		ID:             sessionID,
		UpstreamCookie: cookie,
		User:           user,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.config.SessionMaxAge),
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save console session: %w", err)
	}

	return session, nil
}

// registrationFailureMessage は登録失敗レスポンスから表示用メッセージを抽出する。
// message、error、汎用メッセージの順に採用する。
func registrationFailureMessage(err error) string {
	var apiErr *upstream.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		if apiErr.ErrorCode != "" {
			return apiErr.ErrorCode
		}
	}
	return model.NewRegistrationFailedError("").Message
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
