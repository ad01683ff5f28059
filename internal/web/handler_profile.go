package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/hitoshi/authgate/internal/middleware"
	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/upstream"
)

// profilePageData はプロフィール画面のテンプレートデータ。
type profilePageData struct {
	basePage
	ErrorMessage string
	InfoMessage  string
}

// profileMessages はPRGリダイレクトのmsgクエリと表示メッセージの対応。
var profileMessages = map[string]string{
	"updated":          "ユーザー名を更新しました。",
	"password_changed": "パスワードを変更しました。",
}

// ProfilePage はプロフィール画面を描画する。
// GET /profile
func (h *Handlers) ProfilePage(w http.ResponseWriter, r *http.Request) {
	h.renderProfile(w, r, http.StatusOK, "", profileMessages[r.URL.Query().Get("msg")])
}

// UpdateProfile はユーザー名の更新を処理する。
// POST /profile
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.PostFormValue("username"))
	if username == "" {
		h.renderProfile(w, r, http.StatusBadRequest,
			model.NewValidationError("ユーザー名を入力してください。").Message, "")
		return
	}

	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	if err := h.api.UpdateProfile(r.Context(), sess.UpstreamCookie, username); err != nil {
		h.renderProfile(w, r, http.StatusBadGateway, errorMessage(err).Message, "")
		return
	}

	http.Redirect(w, r, "/profile?msg=updated", http.StatusFound)
}

// ChangePassword はパスワード変更を処理する。
// POST /profile/password
// 現在のパスワード不一致（上流の400）は専用メッセージで返す。
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	currentPassword := r.PostFormValue("current_password")
	newPassword := r.PostFormValue("new_password")
	confirmPassword := r.PostFormValue("confirm_password")

	switch {
	case currentPassword == "" || newPassword == "" || confirmPassword == "":
		h.renderProfile(w, r, http.StatusBadRequest,
			model.NewValidationError("すべての項目を入力してください。").Message, "")
		return
	case newPassword != confirmPassword:
		h.renderProfile(w, r, http.StatusBadRequest,
			model.NewValidationError("新しいパスワードが確認用と一致しません。").Message, "")
		return
	case len(newPassword) < passwordMinLength:
		h.renderProfile(w, r, http.StatusBadRequest,
			model.NewValidationError("パスワードは6文字以上で入力してください。").Message, "")
		return
	}

	sess := middleware.SessionFromContext(r.Context())
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	if err := h.api.ChangePassword(r.Context(), sess.UpstreamCookie, currentPassword, newPassword); err != nil {
		var upErr *upstream.Error
		if errors.As(err, &upErr) && upErr.StatusCode == http.StatusBadRequest {
			h.renderProfile(w, r, http.StatusBadRequest, model.NewWrongPasswordError().Message, "")
			return
		}
		h.renderProfile(w, r, http.StatusBadGateway, errorMessage(err).Message, "")
		return
	}

	http.Redirect(w, r, "/profile?msg=password_changed", http.StatusFound)
}

// renderProfile はプロフィール画面を描画する。
func (h *Handlers) renderProfile(w http.ResponseWriter, r *http.Request, statusCode int, errMsg, infoMsg string) {
	h.renderer.RenderPage(w, statusCode, "profile", profilePageData{
		basePage:     h.base(r, "プロフィール"),
		ErrorMessage: errMsg,
		InfoMessage:  infoMsg,
	})
}
