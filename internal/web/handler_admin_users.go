package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/authgate/internal/middleware"
	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/upstream"
)

// defaultUserPageSize はユーザー一覧の1ページあたりの件数。
const defaultUserPageSize = 10

// adminUsersPageData はユーザー管理画面のテンプレートデータ。
type adminUsersPageData struct {
	basePage
	ErrorMessage string
	InfoMessage  string
	Page         *model.AdminUserPage
	Users        []model.AdminUser // 検索フィルタ適用後の表示対象
	Query        string
	TotalPages   int
	HasPrev      bool
	HasNext      bool
	PrevPage     int
	NextPage     int
}

// adminUserMessages はPRGリダイレクトのmsgクエリと表示メッセージの対応。
var adminUserMessages = map[string]string{
	"created":      "ユーザーを作成しました。",
	"updated":      "ユーザーを更新しました。",
	"deleted":      "ユーザーを削除しました。",
	"role_changed": "ロールを変更しました。",
}

// AdminUsersPage はユーザー管理画面を描画する。
// GET /admin/users?page=&q=
func (h *Handlers) AdminUsersPage(w http.ResponseWriter, r *http.Request) {
	h.renderAdminUsers(w, r, http.StatusOK, "", adminUserMessages[r.URL.Query().Get("msg")])
}

// AdminCreateUser は管理APIでのユーザー作成を処理する。
// POST /admin/users
func (h *Handlers) AdminCreateUser(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.PostFormValue("username"))
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	confirmPassword := r.PostFormValue("confirm_password")

	if username == "" || email == "" || password == "" || confirmPassword == "" {
		h.renderAdminUsers(w, r, http.StatusBadRequest,
			model.NewValidationError("すべての項目を入力してください。").Message, "")
		return
	}
	if vErr := validateAdminUserFields(username, email); vErr != nil {
		h.renderAdminUsers(w, r, http.StatusBadRequest, vErr.Message, "")
		return
	}
	if vErr := validateNewPassword(password, confirmPassword); vErr != nil {
		h.renderAdminUsers(w, r, http.StatusBadRequest, vErr.Message, "")
		return
	}

	sess := middleware.SessionFromContext(r.Context())
	if err := h.api.CreateUser(r.Context(), sess.UpstreamCookie, username, email, password); err != nil {
		h.renderAdminUsers(w, r, http.StatusBadGateway, errorMessage(err).Message, "")
		return
	}

	// 作成後はローカル状態を持たず一覧を取得し直す
	http.Redirect(w, r, "/admin/users?msg=created", http.StatusFound)
}

// AdminUpdateUserRole はユーザーのロール変更を処理する。
// POST /admin/users/{id}/role
func (h *Handlers) AdminUpdateUserRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	role := model.UserRole(r.PostFormValue("role"))
	if role != model.RoleUser && role != model.RoleAdmin {
		h.renderAdminUsers(w, r, http.StatusBadRequest,
			model.NewValidationError("不正なロールが指定されました。").Message, "")
		return
	}

	sess := middleware.SessionFromContext(r.Context())
	update := adminRoleUpdate(role)
	if err := h.api.UpdateUser(r.Context(), sess.UpstreamCookie, id, update); err != nil {
		h.renderAdminUsers(w, r, http.StatusBadGateway, errorMessage(err).Message, "")
		return
	}

	http.Redirect(w, r, "/admin/users?msg=role_changed", http.StatusFound)
}

// adminUserEditPageData はユーザー編集画面のテンプレートデータ。
type adminUserEditPageData struct {
	basePage
	ErrorMessage string
	User         *model.AdminUser
}

// AdminEditUserPage はユーザー編集画面を描画する。
// GET /admin/users/{id}/edit
func (h *Handlers) AdminEditUserPage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	user, err := h.findAdminUser(r, id)
	if err != nil {
		h.renderAdminUsers(w, r, http.StatusBadGateway, errorMessage(err).Message, "")
		return
	}
	if user == nil {
		http.NotFound(w, r)
		return
	}

	h.renderAdminUserEdit(w, r, http.StatusOK, "", user)
}

// AdminUpdateUser はユーザー名・メールアドレス・ロールをまとめた更新を処理する。
// POST /admin/users/{id}/edit
func (h *Handlers) AdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	username := strings.TrimSpace(r.PostFormValue("username"))
	email := strings.TrimSpace(r.PostFormValue("email"))
	role := model.UserRole(r.PostFormValue("role"))

	vErr := validateAdminUserFields(username, email)
	if vErr == nil && role != model.RoleUser && role != model.RoleAdmin {
		vErr = model.NewValidationError("不正なロールが指定されました。")
	}
	if vErr != nil {
		entered := &model.AdminUser{ID: id, Username: username, Email: email, Role: role}
		h.renderAdminUserEdit(w, r, http.StatusBadRequest, vErr.Message, entered)
		return
	}

	sess := middleware.SessionFromContext(r.Context())
	update := upstream.AdminUserUpdate{Username: username, Email: email, Role: &role}
	if err := h.api.UpdateUser(r.Context(), sess.UpstreamCookie, id, update); err != nil {
		h.renderAdminUsers(w, r, http.StatusBadGateway, errorMessage(err).Message, "")
		return
	}

	http.Redirect(w, r, "/admin/users?msg=updated", http.StatusFound)
}

// AdminDeleteUser はユーザーの削除を処理する。
// POST /admin/users/{id}/delete
func (h *Handlers) AdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	sess := middleware.SessionFromContext(r.Context())
	if err := h.api.DeleteUser(r.Context(), sess.UpstreamCookie, id); err != nil {
		h.renderAdminUsers(w, r, http.StatusBadGateway, errorMessage(err).Message, "")
		return
	}

	http.Redirect(w, r, "/admin/users?msg=deleted", http.StatusFound)
}

// renderAdminUsers は一覧を取得し直してユーザー管理画面を描画する。
func (h *Handlers) renderAdminUsers(w http.ResponseWriter, r *http.Request, statusCode int, errMsg, infoMsg string) {
	q := r.URL.Query()
	page := parsePageNumber(q.Get("page"))
	query := strings.TrimSpace(q.Get("q"))

	sess := middleware.SessionFromContext(r.Context())
	userPage, err := h.api.ListUsers(r.Context(), sess.UpstreamCookie, page, defaultUserPageSize)
	if err != nil {
		if errMsg == "" {
			errMsg = errorMessage(err).Message
		}
		userPage = &model.AdminUserPage{Page: page, Size: defaultUserPageSize}
		statusCode = http.StatusBadGateway
	}

	h.renderer.RenderPage(w, statusCode, "admin_users", adminUsersPageData{
		basePage:     h.base(r, "ユーザー管理"),
		ErrorMessage: errMsg,
		InfoMessage:  infoMsg,
		Page:         userPage,
		Users:        filterUsers(userPage.Users, query),
		Query:        query,
		TotalPages:   userPage.TotalPages(),
		HasPrev:      userPage.Page > 1,
		HasNext:      userPage.Page < userPage.TotalPages(),
		PrevPage:     userPage.Page - 1,
		NextPage:     userPage.Page + 1,
	})
}

// findAdminUser はページを順にたどって指定IDのユーザーを探す。
// 上流に単体取得のエンドポイントがないため一覧経由で解決する。
// 見つからない場合は (nil, nil) を返す。
func (h *Handlers) findAdminUser(r *http.Request, id uint) (*model.AdminUser, error) {
	sess := middleware.SessionFromContext(r.Context())
	for page := 1; ; page++ {
		userPage, err := h.api.ListUsers(r.Context(), sess.UpstreamCookie, page, defaultUserPageSize)
		if err != nil {
			return nil, err
		}
		for i := range userPage.Users {
			if userPage.Users[i].ID == id {
				return &userPage.Users[i], nil
			}
		}
		if page >= userPage.TotalPages() {
			return nil, nil
		}
	}
}

// renderAdminUserEdit はユーザー編集画面を描画する。
func (h *Handlers) renderAdminUserEdit(w http.ResponseWriter, r *http.Request, statusCode int, errMsg string, user *model.AdminUser) {
	h.renderer.RenderPage(w, statusCode, "admin_user_edit", adminUserEditPageData{
		basePage:     h.base(r, "ユーザーの編集"),
		ErrorMessage: errMsg,
		User:         user,
	})
}

// validateAdminUserFields は管理画面のユーザー作成・更新に共通の
// ユーザー名とメールアドレスの検査をまとめる。
func validateAdminUserFields(username, email string) *model.APIError {
	if vErr := validateUsername(username); vErr != nil {
		return vErr
	}
	return validateEmail(email)
}

// filterUsers はユーザー名またはメールアドレスに検索語を含むユーザーのみを返す。
// 比較は大文字小文字を区別しない。検索語が空の場合は全件を返す。
func filterUsers(users []model.AdminUser, query string) []model.AdminUser {
	if query == "" {
		return users
	}

	needle := strings.ToLower(query)
	filtered := make([]model.AdminUser, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Username), needle) ||
			strings.Contains(strings.ToLower(u.Email), needle) {
			filtered = append(filtered, u)
		}
	}
	return filtered
}

// parsePageNumber はpageクエリをパースする。不正な値は1ページ目にする。
func parsePageNumber(raw string) int {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// parseID はURLパラメータのIDをパースする。
func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// adminRoleUpdate はロールのみを変更する更新リクエストを構築する。
func adminRoleUpdate(role model.UserRole) upstream.AdminUserUpdate {
	return upstream.AdminUserUpdate{Role: &role}
}
