// Package upstream はMiniAuth REST APIの型付きクライアントを提供する。
// 認証・トークン発行・永続化はすべてMiniAuth側の責務であり、
// このパッケージはエンドポイント呼び出しとレスポンスの型変換のみを行う。
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hitoshi/authgate/internal/metrics"
	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/oauth"
)

// sessionCookieName はMiniAuthが発行するセッションCookieの名前。
// コンソールは値を解釈せず不透明なまま保持・送信する。
const sessionCookieName = "user-session"

// defaultTimeout はMiniAuth API呼び出しのデフォルトタイムアウト。
// ハングした呼び出しで画面表示が無期限に止まるのを防ぐ。
const defaultTimeout = 10 * time.Second

// Config はクライアントの設定。
type Config struct {
	BaseURL string        // MiniAuthのベースURL（例: http://miniauth:8080）
	Timeout time.Duration // API呼び出しのタイムアウト。0の場合はデフォルト値を使用
}

// Client はMiniAuth APIのHTTPクライアント。
// リダイレクトレスポンスは追跡せず、そのまま呼び出し元に返す
// （同意画面がLocationヘッダーをブラウザに中継するため）。
type Client struct {
	base       *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
}

// NewClient はClientの新しいインスタンスを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewClient(cfg Config, collector metrics.MetricsCollector, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("MiniAuthベースURLのパースに失敗しました: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("MiniAuthベースURLが不正です: %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		base: base,
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger,
		metrics: collector,
	}, nil
}

// Error はMiniAuthが返した非2xxレスポンスを表す。
type Error struct {
	StatusCode  int
	ErrorCode   string // レスポンスボディの error フィールド
	Message     string // レスポンスボディの message フィールド
	Description string // レスポンスボディの error_description フィールド
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return fmt.Sprintf("miniauth returned status %d: %s %s", e.StatusCode, e.ErrorCode, e.Description)
}

// errorBody は非2xxレスポンスのボディの既知フィールド。
type errorBody struct {
	ErrorCode   string `json:"error"`
	Message     string `json:"message"`
	Description string `json:"error_description"`
}

// RegisterReply はPOST /api/users の2xxレスポンスを表す。
type RegisterReply struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Message  string `json:"message"`
}

// AuthorizeOutcome はGET /api/oauth/authorize の結果を表す。
// DataとRedirectLocationは排他で、どちらか一方だけが設定される。
type AuthorizeOutcome struct {
	Data             *model.AuthorizationData // 2xx: 同意画面に表示する文脈
	RedirectLocation string                   // 3xx: 信頼済みアプリ等でそのまま中継するLocation
}

// AdminUserUpdate はPUT /api/admin/users/:id のリクエストボディを表す。
// Roleがnilの場合はロールを変更しない。
type AdminUserUpdate struct {
	Username string          `json:"username,omitempty"`
	Email    string          `json:"email,omitempty"`
	Role     *model.UserRole `json:"role,omitempty"`
}

// Me は現在のユーザーを取得する。GET /api/me
func (c *Client) Me(ctx context.Context, cookie string) (*model.UserRecord, error) {
	var user model.UserRecord
	if err := c.call(ctx, http.MethodGet, "/api/me", nil, cookie, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login はメールアドレスとパスワードで認証し、MiniAuthが発行した
// セッションCookieの値を返す。POST /api/login
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body := map[string]string{"email": email, "password": password}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/login", nil, "", body)
	if err != nil {
		return "", err
	}

	resp, err := c.doRaw(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", c.decodeError(resp)
	}

	for _, ck := range resp.Cookies() {
		if ck.Name == sessionCookieName && ck.Value != "" {
			return ck.Value, nil
		}
	}

	return "", fmt.Errorf("ログインレスポンスにセッションCookieが含まれていません")
}

// Logout はMiniAuth側のセッションを破棄する。POST /api/logout
func (c *Client) Logout(ctx context.Context, cookie string) error {
	return c.call(ctx, http.MethodPost, "/api/logout", nil, cookie, nil, nil)
}

// Register は新規ユーザーを登録する。POST /api/users
// 失敗時のerrorは*Error型で、ボディのmessage/errorフィールドを保持する。
func (c *Client) Register(ctx context.Context, username, email, password string) (*RegisterReply, error) {
	body := map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}

	var reply RegisterReply
	if err := c.call(ctx, http.MethodPost, "/api/users", nil, "", body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// UpdateProfile はユーザー名を更新する。PUT /api/me/profile
func (c *Client) UpdateProfile(ctx context.Context, cookie, username string) error {
	body := map[string]string{"username": username}
	return c.call(ctx, http.MethodPut, "/api/me/profile", nil, cookie, body, nil)
}

// ChangePassword はパスワードを変更する。PUT /api/me/change-password
// 現在のパスワードが一致しない場合、MiniAuthは400を返す。
func (c *Client) ChangePassword(ctx context.Context, cookie, currentPassword, newPassword string) error {
	body := map[string]string{
		"currentPassword": currentPassword,
		"newPassword":     newPassword,
	}
	return c.call(ctx, http.MethodPut, "/api/me/change-password", nil, cookie, body, nil)
}

// Authorize は認可リクエストの文脈を取得する。GET /api/oauth/authorize
// 2xxは同意画面用のデータ、3xxは中継すべきLocationを返す。
// それ以外のステータスは*Errorを返す（呼び出し元はログインに戻す）。
func (c *Client) Authorize(ctx context.Context, cookie string, params oauth.AuthorizeParams) (*AuthorizeOutcome, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/oauth/authorize", params.Values(), cookie, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRaw(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		var data model.AuthorizationData
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			return nil, fmt.Errorf("認可リクエスト文脈のパースに失敗しました: %w", err)
		}
		return &AuthorizeOutcome{Data: &data}, nil
	case resp.StatusCode >= 300 && resp.StatusCode <= 399:
		location := resp.Header.Get("Location")
		if location == "" {
			return nil, fmt.Errorf("リダイレクトレスポンスにLocationヘッダーがありません")
		}
		return &AuthorizeOutcome{RedirectLocation: location}, nil
	default:
		return nil, c.decodeError(resp)
	}
}

// Decide はユーザーの認可可否をMiniAuthに送信し、遷移先URLを返す。
// POST /api/oauth/authorize
// 返されたredirect_urlはコンソール側では検証しない（信頼境界はMiniAuth）。
func (c *Client) Decide(ctx context.Context, cookie string, params oauth.AuthorizeParams, authorized bool) (string, error) {
	body := map[string]any{
		"authorized":    authorized,
		"response_type": params.ResponseType,
		"client_id":     params.ClientID,
		"redirect_uri":  params.RedirectURI,
		"scope":         params.Scope,
		"state":         params.State,
	}
	if params.CodeChallenge != "" {
		body["code_challenge"] = params.CodeChallenge
	}
	if params.CodeChallengeMethod != "" {
		body["code_challenge_method"] = params.CodeChallengeMethod
	}

	var reply struct {
		RedirectURL string `json:"redirect_url"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/oauth/authorize", nil, cookie, body, &reply); err != nil {
		return "", err
	}
	return reply.RedirectURL, nil
}

// ListUsers はユーザー一覧をページ単位で取得する。GET /api/admin/users
func (c *Client) ListUsers(ctx context.Context, cookie string, page, size int) (*model.AdminUserPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	var result model.AdminUserPage
	if err := c.call(ctx, http.MethodGet, "/api/admin/users", q, cookie, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateUser は管理APIでユーザーを作成する。POST /api/admin/users
func (c *Client) CreateUser(ctx context.Context, cookie, username, email, password string) error {
	body := map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}
	return c.call(ctx, http.MethodPost, "/api/admin/users", nil, cookie, body, nil)
}

// UpdateUser は管理APIでユーザーを更新する。PUT /api/admin/users/:id
func (c *Client) UpdateUser(ctx context.Context, cookie string, id uint, update AdminUserUpdate) error {
	path := fmt.Sprintf("/api/admin/users/%d", id)
	return c.call(ctx, http.MethodPut, path, nil, cookie, update, nil)
}

// DeleteUser は管理APIでユーザーを削除する。DELETE /api/admin/users/:id
func (c *Client) DeleteUser(ctx context.Context, cookie string, id uint) error {
	path := fmt.Sprintf("/api/admin/users/%d", id)
	return c.call(ctx, http.MethodDelete, path, nil, cookie, nil, nil)
}

// ListApplications はOAuthアプリケーション一覧を取得する。
// GET /api/admin/oauth/applications
func (c *Client) ListApplications(ctx context.Context, cookie string) ([]model.Application, error) {
	var apps []model.Application
	if err := c.call(ctx, http.MethodGet, "/api/admin/oauth/applications", nil, cookie, nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// CreateApplication はOAuthアプリケーションを作成する。
// POST /api/admin/oauth/applications
func (c *Client) CreateApplication(ctx context.Context, cookie string, form model.ApplicationForm) (*model.Application, error) {
	var app model.Application
	if err := c.call(ctx, http.MethodPost, "/api/admin/oauth/applications", nil, cookie, form, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// UpdateApplication はOAuthアプリケーションを更新する。
// PUT /api/admin/oauth/applications/:id
func (c *Client) UpdateApplication(ctx context.Context, cookie string, id uint, form model.ApplicationForm) (*model.Application, error) {
	path := fmt.Sprintf("/api/admin/oauth/applications/%d", id)

	var app model.Application
	if err := c.call(ctx, http.MethodPut, path, nil, cookie, form, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// DeleteApplication はOAuthアプリケーションを削除する。
// DELETE /api/admin/oauth/applications/:id
func (c *Client) DeleteApplication(ctx context.Context, cookie string, id uint) error {
	path := fmt.Sprintf("/api/admin/oauth/applications/%d", id)
	return c.call(ctx, http.MethodDelete, path, nil, cookie, nil, nil)
}

// ToggleApplication はアプリケーションの有効・無効を切り替える。
// POST /api/admin/oauth/applications/:id/toggle
func (c *Client) ToggleApplication(ctx context.Context, cookie string, id uint) error {
	path := fmt.Sprintf("/api/admin/oauth/applications/%d/toggle", id)
	return c.call(ctx, http.MethodPost, path, nil, cookie, nil, nil)
}

// ToggleApplicationTrusted はアプリケーションの信頼済みフラグを切り替える。
// POST /api/admin/oauth/applications/:id/toggle-trusted
func (c *Client) ToggleApplicationTrusted(ctx context.Context, cookie string, id uint) error {
	path := fmt.Sprintf("/api/admin/oauth/applications/%d/toggle-trusted", id)
	return c.call(ctx, http.MethodPost, path, nil, cookie, nil, nil)
}

// call はリクエストを実行し、2xxならoutにJSONをデコードする。
// 非2xxの場合は*Errorを返す。outがnilの場合はボディを捨てる。
func (c *Client) call(ctx context.Context, method, path string, query url.Values, cookie string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, cookie, body)
	if err != nil {
		return err
	}

	resp, err := c.doRaw(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

// newRequest はMiniAuth向けのHTTPリクエストを構築する。
// cookieが空でなければセッションCookieとして添付する。
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, cookie string, body any) (*http.Request, error) {
	u := *c.base
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reader = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: cookie})
	}

	return req, nil
}

// doRaw はリクエストを実行し、レスポンスをそのまま返す。
// 通信自体の失敗のみログに残す（ステータスの解釈は呼び出し元）。
func (c *Client) doRaw(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordUpstreamFailure(req.URL.Path)
		}
		c.logger.Error("MiniAuth APIの呼び出しに失敗しました",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("MiniAuth APIの呼び出しに失敗しました: %w", err)
	}

	if c.metrics != nil {
		c.metrics.RecordUpstreamRequest(req.URL.Path, resp.StatusCode)
		c.metrics.RecordUpstreamLatency(req.URL.Path, time.Since(start))
	}
	return resp, nil
}

// decodeError は非2xxレスポンスのボディを*Errorに変換する。
// ボディがJSONでない場合もステータスコードだけは保持する。
func (c *Client) decodeError(resp *http.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode}

	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.ErrorCode = body.ErrorCode
		apiErr.Message = body.Message
		apiErr.Description = body.Description
	}

	return apiErr
}
