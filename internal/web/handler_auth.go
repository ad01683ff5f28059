package web

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/authgate/internal/middleware"
	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/oauth"
)

// loginPageData はログイン画面のテンプレートデータ。
type loginPageData struct {
	basePage
	ErrorMessage  string
	InfoMessage   string
	OAuthRedirect bool
	From          string
	Email         string
	HiddenFields  []oauth.Field
	RegisterQuery string
}

// registerPageData は新規登録画面のテンプレートデータ。
type registerPageData struct {
	basePage
	ErrorMessage string
	From         string
	Username     string
	Email        string
	HiddenFields []oauth.Field
	LoginQuery   string
}

// LoginPage はログイン画面を描画する。
// GET /login
// OAuthフローの途中（oauth_redirect=true）の場合は認可パラメータを
// hiddenフィールドとしてフォームに引き継ぐ。
func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := oauth.ParseAuthorizeParams(q)
	isOAuth := oauth.IsRedirect(q)
	from := safeReturnPath(q.Get("from"))

	// 認証済みならフォームを出さずに遷移先へ
	if middleware.SnapshotFromContext(r.Context()).IsAuthenticated() {
		http.Redirect(w, r, postLoginTarget(isOAuth, params, from), http.StatusFound)
		return
	}

	h.renderLogin(w, r, http.StatusOK, loginPageData{
		basePage:      h.base(r, "ログイン"),
		OAuthRedirect: isOAuth,
		From:          from,
		HiddenFields:  params.HiddenFields(isOAuth),
		RegisterQuery: carrierQuery(isOAuth, params, from),
	})
}

// Login はログインフォームの送信を処理する。
// POST /login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	params := oauth.ParseAuthorizeParams(r.PostForm)
	isOAuth := r.PostFormValue("oauth_redirect") == "true"
	from := safeReturnPath(r.PostFormValue("from"))

	data := loginPageData{
		basePage:      h.base(r, "ログイン"),
		OAuthRedirect: isOAuth,
		From:          from,
		Email:         email,
		HiddenFields:  params.HiddenFields(isOAuth),
		RegisterQuery: carrierQuery(isOAuth, params, from),
	}

	if email == "" || password == "" {
		data.ErrorMessage = model.NewValidationError("メールアドレスとパスワードを入力してください。").Message
		h.renderLogin(w, r, http.StatusBadRequest, data)
		return
	}

	sess, err := h.store.Login(r.Context(), email, password)
	if h.metrics != nil {
		h.metrics.RecordLogin(err == nil)
	}
	if err != nil {
		data.ErrorMessage = errorMessage(err).Message
		h.renderLogin(w, r, http.StatusUnauthorized, data)
		return
	}

	h.setConsoleCookie(w, sess.ID)
	http.Redirect(w, r, postLoginTarget(isOAuth, params, from), http.StatusFound)
}

// RegisterPage は新規登録画面を描画する。
// GET /register
func (h *Handlers) RegisterPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := oauth.ParseAuthorizeParams(q)
	isOAuth := oauth.IsRedirect(q)
	from := safeReturnPath(q.Get("from"))

	if middleware.SnapshotFromContext(r.Context()).IsAuthenticated() {
		http.Redirect(w, r, postLoginTarget(isOAuth, params, from), http.StatusFound)
		return
	}

	h.renderer.RenderPage(w, http.StatusOK, "register", registerPageData{
		basePage:     h.base(r, "新規登録"),
		From:         from,
		HiddenFields: params.HiddenFields(isOAuth),
		LoginQuery:   carrierQuery(isOAuth, params, from),
	})
}

// Register は新規登録フォームの送信を処理する。
// POST /register
// 登録後の自動ログインまで成功した場合のみセッションを発行する。
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	username := strings.TrimSpace(r.PostFormValue("username"))
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	confirmPassword := r.PostFormValue("confirm_password")
	params := oauth.ParseAuthorizeParams(r.PostForm)
	isOAuth := r.PostFormValue("oauth_redirect") == "true"
	from := safeReturnPath(r.PostFormValue("from"))

	data := registerPageData{
		basePage:     h.base(r, "新規登録"),
		From:         from,
		Username:     username,
		Email:        email,
		HiddenFields: params.HiddenFields(isOAuth),
		LoginQuery:   carrierQuery(isOAuth, params, from),
	}

	if username == "" || email == "" || password == "" || confirmPassword == "" {
		data.ErrorMessage = model.NewValidationError("すべての項目を入力してください。").Message
		h.renderer.RenderPage(w, http.StatusBadRequest, "register", data)
		return
	}
	if vErr := validateNewPassword(password, confirmPassword); vErr != nil {
		data.ErrorMessage = vErr.Message
		h.renderer.RenderPage(w, http.StatusBadRequest, "register", data)
		return
	}

	result, err := h.store.Register(r.Context(), username, email, password)
	if err != nil {
		slog.Error("registration failed", slog.String("error", err.Error()))
		data.ErrorMessage = errorMessage(err).Message
		h.renderer.RenderPage(w, http.StatusBadGateway, "register", data)
		return
	}

	if !result.Success {
		data.ErrorMessage = result.Message
		h.renderer.RenderPage(w, http.StatusOK, "register", data)
		return
	}

	h.setConsoleCookie(w, result.Session.ID)
	http.Redirect(w, r, postLoginTarget(isOAuth, params, from), http.StatusFound)
}

// Logout はログアウトを処理する。
// POST /logout
// 上流の失敗に関わらずコンソールセッションとCookieを破棄する。
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromContext(r.Context())
	if err := h.store.Logout(r.Context(), sess); err != nil {
		slog.Error("failed to delete console session on logout",
			slog.String("error", err.Error()),
		)
	}

	h.clearConsoleCookie(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// Home はホーム画面を描画する。
// GET /
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	h.renderer.RenderPage(w, http.StatusOK, "home", struct {
		basePage
	}{h.base(r, "ホーム")})
}

// renderLogin はログイン画面を描画する。
func (h *Handlers) renderLogin(w http.ResponseWriter, r *http.Request, statusCode int, data loginPageData) {
	h.renderer.RenderPage(w, statusCode, "login", data)
}

// postLoginTarget はログイン・登録成功後の遷移先を決定する。
// OAuthフローの途中でclient_idが揃っている場合のみ認可画面へ戻す。
func postLoginTarget(isOAuth bool, params oauth.AuthorizeParams, from string) string {
	if isOAuth && params.HasClient() {
		return "/oauth/authorize?" + params.Encode()
	}
	if from != "" {
		return from
	}
	return "/"
}

// carrierQuery はログイン・登録画面間のリンクで認可パラメータを
// 引き継ぐためのクエリ文字列を構築する。
func carrierQuery(isOAuth bool, params oauth.AuthorizeParams, from string) string {
	v := params.Values()
	if isOAuth {
		v.Set("oauth_redirect", "true")
	}
	if from != "" {
		v.Set("from", from)
	}
	return v.Encode()
}

// loginCarrierTarget は未認証の認可リクエストをログイン画面へ誘導するURLを返す。
func loginCarrierTarget(params oauth.AuthorizeParams) string {
	v := params.Values()
	v.Set("oauth_redirect", "true")
	return "/login?" + v.Encode()
}
