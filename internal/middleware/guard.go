// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/session"
)

// ConsoleCookieName はコンソールセッションIDを保持するCookieの名前。
const ConsoleCookieName = "authgate_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	snapshotContextKey = contextKey("auth_snapshot")
	sessionContextKey  = contextKey("console_session")
)

// Decision はガードの判定結果を表す。
type Decision int

const (
	// DecisionLoading は認証状態が未解決であることを表す。
	DecisionLoading Decision = iota
	// DecisionRedirectLogin は未認証のためログイン画面へ誘導することを表す。
	DecisionRedirectLogin
	// DecisionDenied は認証済みだが権限が不足していることを表す。
	DecisionDenied
	// DecisionAllow はアクセスを許可することを表す。
	DecisionAllow
)

// Evaluate はスナップショットからガードの判定を返す。
// 判定は必ず未解決、未認証、権限不足、許可の順に行う。
// 未解決の間は認証の有無にかかわらずDecisionLoadingになる。
func Evaluate(snapshot session.Snapshot, requireAdmin bool) Decision {
	if snapshot.Loading {
		return DecisionLoading
	}
	if !snapshot.IsAuthenticated() {
		return DecisionRedirectLogin
	}
	if requireAdmin && !snapshot.User.IsAdmin() {
		return DecisionDenied
	}
	return DecisionAllow
}

// SnapshotSource はガードが必要とするセッション解決のインターフェース。
// session.Storeの部分集合として定義する。
type SnapshotSource interface {
	Resolve(ctx context.Context, id string) (*model.ConsoleSession, error)
	Refresh(ctx context.Context, sess *model.ConsoleSession) session.Snapshot
}

// NewSessionContextMiddleware はコンソールセッションCookieを解決し、
// 訪問のたびに上流へ問い合わせた認証状態スナップショットを
// リクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストも拒否せず通す。拒否の判定はガード側で行う。
func NewSessionContextMiddleware(source SnapshotSource) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var sess *model.ConsoleSession
			if cookie, err := r.Cookie(ConsoleCookieName); err == nil && cookie.Value != "" {
				sess, err = source.Resolve(ctx, cookie.Value)
				if err != nil {
					slog.Error("failed to resolve console session",
						slog.String("error", err.Error()),
					)
					sess = nil
				}
			}

			snapshot := source.Refresh(ctx, sess)

			ctx = context.WithValue(ctx, snapshotContextKey, snapshot)
			if sess != nil {
				ctx = context.WithValue(ctx, sessionContextKey, sess)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GuardConfig はガードミドルウェアの設定。
type GuardConfig struct {
	// LoadingHandler は認証状態が未解決の場合の応答。nilの場合は503を返す。
	LoadingHandler http.HandlerFunc
	// DeniedHandler は権限不足の場合の応答。nilの場合は403を返す。
	DeniedHandler http.HandlerFunc
}

// NewGuardMiddleware は認証必須ページのガードミドルウェアを返す。
// requireAdminがtrueの場合は管理者ロールも要求する。
// 未認証の場合は /login?from=<元のURI> にリダイレクトする。
func NewGuardMiddleware(requireAdmin bool, config GuardConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snapshot := SnapshotFromContext(r.Context())

			switch Evaluate(snapshot, requireAdmin) {
			case DecisionLoading:
				if config.LoadingHandler != nil {
					config.LoadingHandler(w, r)
					return
				}
				w.Header().Set("Retry-After", "1")
				http.Error(w, "loading", http.StatusServiceUnavailable)
			case DecisionRedirectLogin:
				redirectToLogin(w, r)
			case DecisionDenied:
				if config.DeniedHandler != nil {
					config.DeniedHandler(w, r)
					return
				}
				http.Error(w, "forbidden", http.StatusForbidden)
			case DecisionAllow:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// redirectToLogin は元のURI（クエリを含む）を引き継いでログイン画面へ誘導する。
func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := "/login?from=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusFound)
}

// SnapshotFromContext はリクエストコンテキストから認証状態スナップショットを取得する。
// セッションコンテキストミドルウェアを通過していない場合は匿名を返す。
func SnapshotFromContext(ctx context.Context) session.Snapshot {
	if snapshot, ok := ctx.Value(snapshotContextKey).(session.Snapshot); ok {
		return snapshot
	}
	return session.Snapshot{}
}

// SessionFromContext はリクエストコンテキストからコンソールセッションを取得する。
// セッションが存在しない場合はnilを返す。
func SessionFromContext(ctx context.Context) *model.ConsoleSession {
	if sess, ok := ctx.Value(sessionContextKey).(*model.ConsoleSession); ok {
		return sess
	}
	return nil
}

// ContextWithSnapshot はコンテキストにスナップショットを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSnapshot(ctx context.Context, snapshot session.Snapshot) context.Context {
	return context.WithValue(ctx, snapshotContextKey, snapshot)
}

// ContextWithSession はコンテキストにコンソールセッションを注入する。
func ContextWithSession(ctx context.Context, sess *model.ConsoleSession) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}
