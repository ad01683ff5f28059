// Package oauth はOAuth認可リクエストのパラメータ運搬を提供する。
// ログイン画面をまたいで認可リクエストを引き継ぐための型と、
// その唯一のパース・シリアライズ対を定義する。
package oauth

import "net/url"

// redirectFlag はログイン画面がOAuthフローの途中かどうかを示すクエリパラメータ名。
const redirectFlag = "oauth_redirect"

// paramKeys は運搬対象の7つのパラメータ名。シリアライズ時の基準にもなる。
var paramKeys = []string{
	"client_id",
	"redirect_uri",
	"scope",
	"state",
	"response_type",
	"code_challenge",
	"code_challenge_method",
}

// AuthorizeParams は認可リクエストのクエリパラメータのスナップショットを表す。
// コンソールは値を解釈せず不透明なまま運搬する。解釈はMiniAuth側の責務。
type AuthorizeParams struct {
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	ResponseType        string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ParseAuthorizeParams はクエリまたはフォーム値からパラメータを取り込む。
// 存在しないキーは空文字列のまま残る。
func ParseAuthorizeParams(q url.Values) AuthorizeParams {
	return AuthorizeParams{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		ResponseType:        q.Get("response_type"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}
}

// IsRedirect はoauth_redirect=trueが指定されているかどうかを返す。
// このフラグが立っている場合のみ、ログイン後に同意画面へ遷移する。
func IsRedirect(q url.Values) bool {
	return q.Get(redirectFlag) == "true"
}

// HasClient はclient_idが運搬されているかどうかを返す。
// OAuthリダイレクトでもclient_idがなければ通常の遷移先に戻す。
func (p AuthorizeParams) HasClient() bool {
	return p.ClientID != ""
}

// Values は空でないパラメータのみを含むurl.Valuesを返す。
// 空のパラメータはキーごと省略され、`key=`の形では決して出力されない。
func (p AuthorizeParams) Values() url.Values {
	v := url.Values{}
	for key, value := range p.pairs() {
		if value != "" {
			v.Set(key, value)
		}
	}
	return v
}

// Encode は空でないパラメータのみをURLエンコードしたクエリ文字列を返す。
func (p AuthorizeParams) Encode() string {
	return p.Values().Encode()
}

// Field はHTMLフォームのhiddenフィールド1つ分を表す。
type Field struct {
	Name  string
	Value string
}

// HiddenFields はログインフォームに埋め込むhiddenフィールドの列を返す。
// 空の値は含めない。OAuthリダイレクト中はoauth_redirect=trueも含める。
func (p AuthorizeParams) HiddenFields(oauthRedirect bool) []Field {
	fields := make([]Field, 0, len(paramKeys)+1)
	if oauthRedirect {
		fields = append(fields, Field{Name: redirectFlag, Value: "true"})
	}
	for _, key := range paramKeys {
		if value := p.pairs()[key]; value != "" {
			fields = append(fields, Field{Name: key, Value: value})
		}
	}
	return fields
}

// pairs はキー名とフィールド値の対応を返す。
func (p AuthorizeParams) pairs() map[string]string {
	return map[string]string{
		"client_id":             p.ClientID,
		"redirect_uri":          p.RedirectURI,
		"scope":                 p.Scope,
		"state":                 p.State,
		"response_type":         p.ResponseType,
		"code_challenge":        p.CodeChallenge,
		"code_challenge_method": p.CodeChallengeMethod,
	}
}
