package web

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/authgate/internal/middleware"
	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/oauth"
)

// scopeDescriptions はスコープごとのユーザー向け説明。
// MiniAuthが扱うスコープの固定セットに対応する。
var scopeDescriptions = map[string]string{
	"read":          "アカウント情報の読み取り",
	"write":         "データの作成・更新",
	"profile":       "プロフィール情報へのアクセス",
	"organizations": "所属組織情報へのアクセス",
	"admin":         "管理者権限での操作",
}

// scopeView は同意画面に表示するスコープ1件分。
type scopeView struct {
	Name        string
	Description string
}

// consentPageData は同意画面のテンプレートデータ。
type consentPageData struct {
	basePage
	ClientName   string
	Data         *model.AuthorizationData
	Scopes       []scopeView
	HiddenFields []oauth.Field
}

// ConsentPage は認可リクエストの同意画面を描画する。
// GET /oauth/authorize
//
// 上流の応答に応じて3通りに分岐する:
//   - 同意画面データ: 画面を描画する
//   - リダイレクト（信頼済みアプリ等）: Locationをそのままブラウザに中継する
//   - エラー: パラメータを引き継いでログイン画面に戻す
func (h *Handlers) ConsentPage(w http.ResponseWriter, r *http.Request) {
	params := oauth.ParseAuthorizeParams(r.URL.Query())

	snapshot := middleware.SnapshotFromContext(r.Context())
	if !snapshot.IsAuthenticated() {
		http.Redirect(w, r, loginCarrierTarget(params), http.StatusFound)
		return
	}

	if !params.HasClient() {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		http.Redirect(w, r, loginCarrierTarget(params), http.StatusFound)
		return
	}

	outcome, err := h.api.Authorize(r.Context(), sess.UpstreamCookie, params)
	if err != nil {
		slog.Warn("authorization request rejected",
			slog.String("client_id", params.ClientID),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, loginCarrierTarget(params), http.StatusFound)
		return
	}

	if outcome.RedirectLocation != "" {
		http.Redirect(w, r, outcome.RedirectLocation, http.StatusFound)
		return
	}

	data := outcome.Data
	scopes := make([]scopeView, 0, len(data.RequestedScopes()))
	for _, name := range data.RequestedScopes() {
		scopes = append(scopes, scopeView{
			Name:        name,
			Description: scopeDescriptions[name],
		})
	}

	// フォームには上流が確定させたパラメータを埋め込む
	confirmed := oauth.AuthorizeParams{
		ClientID:            data.ClientID,
		RedirectURI:         data.RedirectURI,
		Scope:               data.Scope,
		State:               data.State,
		ResponseType:        data.ResponseType,
		CodeChallenge:       data.CodeChallenge,
		CodeChallengeMethod: data.CodeChallengeMethod,
	}

	h.renderer.RenderPage(w, http.StatusOK, "consent", consentPageData{
		basePage:     h.base(r, "アプリケーションの認可"),
		ClientName:   h.sanitizer.SanitizeText(data.ClientName),
		Data:         data,
		Scopes:       scopes,
		HiddenFields: confirmed.HiddenFields(false),
	})
}

// Decide は同意画面での認可可否の送信を処理する。
// POST /oauth/authorize
// 上流が返したredirect_urlへそのままリダイレクトする。
func (h *Handlers) Decide(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	snapshot := middleware.SnapshotFromContext(r.Context())
	sess := middleware.SessionFromContext(r.Context())
	params := oauth.ParseAuthorizeParams(r.PostForm)

	if !snapshot.IsAuthenticated() || sess == nil {
		http.Redirect(w, r, loginCarrierTarget(params), http.StatusFound)
		return
	}

	authorized := r.PostFormValue("decision") == "approve"

	redirectURL, err := h.api.Decide(r.Context(), sess.UpstreamCookie, params, authorized)
	if h.metrics != nil {
		h.metrics.RecordConsentDecision(authorized)
	}
	if err != nil {
		slog.Error("authorization decision failed",
			slog.String("client_id", params.ClientID),
			slog.Bool("authorized", authorized),
			slog.String("error", err.Error()),
		)
		h.renderError(w, r, http.StatusBadGateway, errorMessage(err))
		return
	}

	http.Redirect(w, r, redirectURL, http.StatusFound)
}
