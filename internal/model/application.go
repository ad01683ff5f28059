package model

import "strings"

// Application はMiniAuthに登録されたOAuthクライアントアプリケーションを表す。
// 管理API（/api/admin/oauth/applications）のレスポンスに対応する。
type Application struct {
	ID           uint     `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Website      string   `json:"website"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RedirectURIs []string `json:"redirect_uris"`
	Scopes       []string `json:"scopes"`
	Trusted      bool     `json:"trusted"`
	Active       bool     `json:"active"`
	CreatedBy    string   `json:"created_by"`
	CreatedAt    string   `json:"created_at"`
}

// ApplicationForm はアプリケーションの作成・更新リクエストのボディを表す。
type ApplicationForm struct {
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirect_uris"`
	Scopes       []string `json:"scopes"`
	Description  string   `json:"description"`
	Website      string   `json:"website"`
	Trusted      bool     `json:"trusted"`
}

// AvailableScopes は同意画面と管理画面が扱うスコープの固定セット。
var AvailableScopes = []string{"read", "write", "profile", "organizations", "admin"}

// AuthorizationUser は同意画面に表示する認可対象ユーザーを表す。
type AuthorizationUser struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// AuthorizationData はGET /api/oauth/authorize が返す認可リクエストの文脈を表す。
// 訪問ごとに取得し直し、キャッシュしない。
type AuthorizationData struct {
	ClientName          string            `json:"client_name"`
	ClientID            string            `json:"client_id"`
	RedirectURI         string            `json:"redirect_uri"`
	Scope               string            `json:"scope"`
	State               string            `json:"state"`
	ResponseType        string            `json:"response_type"`
	CodeChallenge       string            `json:"code_challenge"`
	CodeChallengeMethod string            `json:"code_challenge_method"`
	User                AuthorizationUser `json:"user"`
}

// RequestedScopes はscope文字列をスペースで分割し、空トークンを捨てて返す。
// scopeが空の場合は空スライスを返す。
func (d *AuthorizationData) RequestedScopes() []string {
	return SplitScopes(d.Scope)
}

// SplitScopes はスペース区切りのscope文字列を個々のスコープに分割する。
// 連続スペースや前後の空白による空トークンは含めない。
func SplitScopes(scope string) []string {
	scopes := make([]string, 0)
	for _, s := range strings.Split(scope, " ") {
		if strings.TrimSpace(s) != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}
