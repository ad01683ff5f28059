package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/authgate/internal/metrics"
	"github.com/hitoshi/authgate/internal/middleware"
	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/oauth"
	"github.com/hitoshi/authgate/internal/security"
	"github.com/hitoshi/authgate/internal/session"
	"github.com/hitoshi/authgate/internal/upstream"
)

// SessionStoreInterface はハンドラーが必要とするセッションストアのインターフェース。
type SessionStoreInterface interface {
	Login(ctx context.Context, email, password string) (*model.ConsoleSession, error)
	Register(ctx context.Context, username, email, password string) (*session.RegisterResult, error)
	Logout(ctx context.Context, sess *model.ConsoleSession) error
}

// UpstreamAPIInterface はハンドラーが必要とするMiniAuth API呼び出しのインターフェース。
type UpstreamAPIInterface interface {
	Authorize(ctx context.Context, cookie string, params oauth.AuthorizeParams) (*upstream.AuthorizeOutcome, error)
	Decide(ctx context.Context, cookie string, params oauth.AuthorizeParams, authorized bool) (string, error)
	UpdateProfile(ctx context.Context, cookie, username string) error
	ChangePassword(ctx context.Context, cookie, currentPassword, newPassword string) error
	ListUsers(ctx context.Context, cookie string, page, size int) (*model.AdminUserPage, error)
	CreateUser(ctx context.Context, cookie, username, email, password string) error
	UpdateUser(ctx context.Context, cookie string, id uint, update upstream.AdminUserUpdate) error
	DeleteUser(ctx context.Context, cookie string, id uint) error
	ListApplications(ctx context.Context, cookie string) ([]model.Application, error)
	CreateApplication(ctx context.Context, cookie string, form model.ApplicationForm) (*model.Application, error)
	UpdateApplication(ctx context.Context, cookie string, id uint, form model.ApplicationForm) (*model.Application, error)
	DeleteApplication(ctx context.Context, cookie string, id uint) error
	ToggleApplication(ctx context.Context, cookie string, id uint) error
	ToggleApplicationTrusted(ctx context.Context, cookie string, id uint) error
}

// HandlerConfig はハンドラーの設定。
type HandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge time.Duration
}

// Handlers はコンソール画面のHTTPハンドラー群。
type Handlers struct {
	store     SessionStoreInterface
	api       UpstreamAPIInterface
	sanitizer security.DisplaySanitizerService
	metrics   metrics.MetricsCollector
	renderer  *Renderer
	config    HandlerConfig
}

// NewHandlers はHandlersを生成する。
func NewHandlers(
	store SessionStoreInterface,
	api UpstreamAPIInterface,
	sanitizer security.DisplaySanitizerService,
	collector metrics.MetricsCollector,
	renderer *Renderer,
	config HandlerConfig,
) *Handlers {
	return &Handlers{
		store:     store,
		api:       api,
		sanitizer: sanitizer,
		metrics:   collector,
		renderer:  renderer,
		config:    config,
	}
}

// base は全ページ共通のテンプレートデータを構築する。
func (h *Handlers) base(r *http.Request, title string) basePage {
	return basePage{
		Title:     title,
		User:      middleware.SnapshotFromContext(r.Context()).User,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	}
}

// setConsoleCookie はコンソールセッションCookieを設定する。
func (h *Handlers) setConsoleCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.ConsoleCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   int(h.config.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearConsoleCookie はコンソールセッションCookieを削除する。
func (h *Handlers) clearConsoleCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.ConsoleCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RenderDenied は権限不足ページを描画する。ガードのDeniedHandlerとして使う。
func (h *Handlers) RenderDenied(w http.ResponseWriter, r *http.Request) {
	h.renderer.RenderPage(w, http.StatusForbidden, "denied", struct {
		basePage
	}{h.base(r, "アクセス拒否")})
}

// renderError は汎用エラーページを描画する。
func (h *Handlers) renderError(w http.ResponseWriter, r *http.Request, statusCode int, apiErr *model.APIError) {
	h.renderer.RenderPage(w, statusCode, "error", struct {
		basePage
		ErrorMessage string
		Action       string
	}{h.base(r, "エラー"), apiErr.Message, apiErr.Action})
}

// safeReturnPath はログイン後の戻り先として安全なパスのみを通す。
// サイト内の絶対パス以外（外部URL、プロトコル相対URL）は空文字列を返す。
func safeReturnPath(from string) string {
	if !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") {
		return ""
	}
	return from
}

// errorMessage はエラーから画面表示用の*model.APIErrorを取り出す。
// 型のないエラーは汎用の上流エラーに変換する。
func errorMessage(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		message := upErr.Message
		if message == "" {
			message = upErr.Description
		}
		return model.NewUpstreamError(message)
	}
	return model.NewUpstreamError("")
}
