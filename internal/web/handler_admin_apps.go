package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/authgate/internal/middleware"
	"github.com/hitoshi/authgate/internal/model"
)

// appView はアプリケーション一覧に表示する1件分。
// 第三者が登録した名前等はサニタイズ済みの値を保持する。
type appView struct {
	ID       uint
	Name     string
	ClientID string
	Scopes   []string
	Trusted  bool
	Active   bool
}

// adminAppsPageData はアプリケーション管理画面のテンプレートデータ。
type adminAppsPageData struct {
	basePage
	ErrorMessage    string
	InfoMessage     string
	Apps            []appView
	AvailableScopes []string
	CreatedSecret   string // 作成直後のみ表示するクライアントシークレット
}

// adminAppMessages はPRGリダイレクトのmsgクエリと表示メッセージの対応。
var adminAppMessages = map[string]string{
	"updated":         "アプリケーションを更新しました。",
	"deleted":         "アプリケーションを削除しました。",
	"toggled":         "アプリケーションの状態を切り替えました。",
	"trusted_toggled": "信頼済みフラグを切り替えました。",
}

// AdminAppsPage はOAuthアプリケーション管理画面を描画する。
// GET /admin/applications
func (h *Handlers) AdminAppsPage(w http.ResponseWriter, r *http.Request) {
	h.renderAdminApps(w, r, http.StatusOK, "", adminAppMessages[r.URL.Query().Get("msg")], "")
}

// AdminCreateApp はアプリケーションの登録を処理する。
// POST /admin/applications
// クライアントシークレットは作成レスポンスでのみ得られるため、
// リダイレクトせずその場で一覧とともに表示する。
func (h *Handlers) AdminCreateApp(w http.ResponseWriter, r *http.Request) {
	form, validationErr := parseApplicationForm(r)
	if validationErr != nil {
		h.renderAdminApps(w, r, http.StatusBadRequest, validationErr.Message, "", "")
		return
	}

	sess := middleware.SessionFromContext(r.Context())
	app, err := h.api.CreateApplication(r.Context(), sess.UpstreamCookie, form)
	if err != nil {
		h.renderAdminApps(w, r, http.StatusBadGateway, errorMessage(err).Message, "", "")
		return
	}

	h.renderAdminApps(w, r, http.StatusOK, "", "アプリケーションを登録しました。", app.ClientSecret)
}

// scopeOption は編集フォームのスコープチェックボックス1つ分。
type scopeOption struct {
	Name    string
	Checked bool
}

// adminAppEditPageData はアプリケーション編集画面のテンプレートデータ。
type adminAppEditPageData struct {
	basePage
	ErrorMessage string
	App          *model.Application
	RedirectURIs string // 1行に1つのテキストエリア表現
	ScopeOptions []scopeOption
}

// AdminEditAppPage はアプリケーション編集画面を描画する。
// GET /admin/applications/{id}/edit
func (h *Handlers) AdminEditAppPage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid application id", http.StatusBadRequest)
		return
	}

	app, err := h.findApplication(r, id)
	if err != nil {
		h.renderAdminApps(w, r, http.StatusBadGateway, errorMessage(err).Message, "", "")
		return
	}
	if app == nil {
		http.NotFound(w, r)
		return
	}

	h.renderAdminAppEdit(w, r, http.StatusOK, "", app)
}

// AdminUpdateApp はアプリケーションの更新を処理する。
// POST /admin/applications/{id}/edit
func (h *Handlers) AdminUpdateApp(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid application id", http.StatusBadRequest)
		return
	}

	form, validationErr := parseApplicationForm(r)
	if validationErr != nil {
		app, findErr := h.findApplication(r, id)
		if findErr != nil || app == nil {
			h.renderAdminApps(w, r, http.StatusBadRequest, validationErr.Message, "", "")
			return
		}
		h.renderAdminAppEdit(w, r, http.StatusBadRequest, validationErr.Message, app)
		return
	}

	sess := middleware.SessionFromContext(r.Context())
	if _, err := h.api.UpdateApplication(r.Context(), sess.UpstreamCookie, id, form); err != nil {
		h.renderAdminApps(w, r, http.StatusBadGateway, errorMessage(err).Message, "", "")
		return
	}

	http.Redirect(w, r, "/admin/applications?msg=updated", http.StatusFound)
}

// AdminDeleteApp はアプリケーションの削除を処理する。
// POST /admin/applications/{id}/delete
func (h *Handlers) AdminDeleteApp(w http.ResponseWriter, r *http.Request) {
	h.adminAppAction(w, r, "deleted", h.api.DeleteApplication)
}

// AdminToggleApp はアプリケーションの有効・無効切り替えを処理する。
// POST /admin/applications/{id}/toggle
func (h *Handlers) AdminToggleApp(w http.ResponseWriter, r *http.Request) {
	h.adminAppAction(w, r, "toggled", h.api.ToggleApplication)
}

// AdminToggleAppTrusted は信頼済みフラグの切り替えを処理する。
// POST /admin/applications/{id}/toggle-trusted
func (h *Handlers) AdminToggleAppTrusted(w http.ResponseWriter, r *http.Request) {
	h.adminAppAction(w, r, "trusted_toggled", h.api.ToggleApplicationTrusted)
}

// adminAppAction はID指定のアプリケーション操作を実行し、一覧に戻す。
func (h *Handlers) adminAppAction(w http.ResponseWriter, r *http.Request, msg string, action func(ctx context.Context, cookie string, id uint) error) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid application id", http.StatusBadRequest)
		return
	}

	sess := middleware.SessionFromContext(r.Context())
	if err := action(r.Context(), sess.UpstreamCookie, id); err != nil {
		h.renderAdminApps(w, r, http.StatusBadGateway, errorMessage(err).Message, "", "")
		return
	}

	http.Redirect(w, r, "/admin/applications?msg="+msg, http.StatusFound)
}

// renderAdminApps は一覧を取得し直してアプリケーション管理画面を描画する。
func (h *Handlers) renderAdminApps(w http.ResponseWriter, r *http.Request, statusCode int, errMsg, infoMsg, createdSecret string) {
	sess := middleware.SessionFromContext(r.Context())

	apps, err := h.api.ListApplications(r.Context(), sess.UpstreamCookie)
	if err != nil {
		if errMsg == "" {
			errMsg = errorMessage(err).Message
		}
		statusCode = http.StatusBadGateway
	}

	views := make([]appView, 0, len(apps))
	for _, app := range apps {
		views = append(views, appView{
			ID:       app.ID,
			Name:     h.sanitizer.SanitizeText(app.Name),
			ClientID: app.ClientID,
			Scopes:   app.Scopes,
			Trusted:  app.Trusted,
			Active:   app.Active,
		})
	}

	h.renderer.RenderPage(w, statusCode, "admin_apps", adminAppsPageData{
		basePage:        h.base(r, "アプリケーション管理"),
		ErrorMessage:    errMsg,
		InfoMessage:     infoMsg,
		Apps:            views,
		AvailableScopes: model.AvailableScopes,
		CreatedSecret:   createdSecret,
	})
}

// findApplication は一覧から指定IDのアプリケーションを探す。
// 上流に単体取得のエンドポイントがないため一覧経由で解決する。
// 見つからない場合は (nil, nil) を返す。
func (h *Handlers) findApplication(r *http.Request, id uint) (*model.Application, error) {
	sess := middleware.SessionFromContext(r.Context())
	apps, err := h.api.ListApplications(r.Context(), sess.UpstreamCookie)
	if err != nil {
		return nil, err
	}
	for i := range apps {
		if apps[i].ID == id {
			return &apps[i], nil
		}
	}
	return nil, nil
}

// renderAdminAppEdit はアプリケーション編集画面を描画する。
func (h *Handlers) renderAdminAppEdit(w http.ResponseWriter, r *http.Request, statusCode int, errMsg string, app *model.Application) {
	selected := make(map[string]bool, len(app.Scopes))
	for _, s := range app.Scopes {
		selected[s] = true
	}
	options := make([]scopeOption, 0, len(model.AvailableScopes))
	for _, s := range model.AvailableScopes {
		options = append(options, scopeOption{Name: s, Checked: selected[s]})
	}

	view := *app
	view.Name = h.sanitizer.SanitizeText(app.Name)
	view.Description = h.sanitizer.SanitizeText(app.Description)
	view.Website = h.sanitizer.SanitizeURL(app.Website)

	h.renderer.RenderPage(w, statusCode, "admin_app_edit", adminAppEditPageData{
		basePage:     h.base(r, "アプリケーションの編集"),
		ErrorMessage: errMsg,
		App:          &view,
		RedirectURIs: strings.Join(app.RedirectURIs, "\n"),
		ScopeOptions: options,
	})
}

// parseApplicationForm はアプリケーション登録フォームをパース・検証する。
func parseApplicationForm(r *http.Request) (model.ApplicationForm, *model.APIError) {
	if err := r.ParseForm(); err != nil {
		return model.ApplicationForm{}, model.NewValidationError("フォームの解析に失敗しました。")
	}

	name := strings.TrimSpace(r.PostFormValue("name"))
	if name == "" {
		return model.ApplicationForm{}, model.NewValidationError("アプリケーション名を入力してください。")
	}

	redirectURIs := splitLines(r.PostFormValue("redirect_uris"))
	if len(redirectURIs) == 0 {
		return model.ApplicationForm{}, model.NewValidationError("リダイレクトURIを1つ以上入力してください。")
	}

	scopes := r.PostForm["scopes"]
	for _, scope := range scopes {
		if !isAvailableScope(scope) {
			return model.ApplicationForm{}, model.NewValidationError("不正なスコープが指定されました。")
		}
	}
	if len(scopes) == 0 {
		return model.ApplicationForm{}, model.NewValidationError("スコープを1つ以上選択してください。")
	}

	return model.ApplicationForm{
		Name:         name,
		Description:  strings.TrimSpace(r.PostFormValue("description")),
		Website:      strings.TrimSpace(r.PostFormValue("website")),
		RedirectURIs: redirectURIs,
		Scopes:       scopes,
		Trusted:      r.PostFormValue("trusted") == "true",
	}, nil
}

// splitLines は改行区切りの入力を空行を除いて分割する。
func splitLines(raw string) []string {
	lines := make([]string, 0)
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

// isAvailableScope はスコープが固定セットに含まれるかどうかを返す。
func isAvailableScope(scope string) bool {
	for _, s := range model.AvailableScopes {
		if s == scope {
			return true
		}
	}
	return false
}
