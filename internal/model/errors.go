package model

import "fmt"

// APIError は画面に表示するエラーの統一フォーマットを表す。
// 原因カテゴリとユーザー向けの対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeRegistrationFailed = "REGISTRATION_FAILED"
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeWrongPassword      = "WRONG_CURRENT_PASSWORD"
	ErrCodeUpstreamFailed     = "UPSTREAM_FAILED"
	ErrCodeAccessDenied       = "ACCESS_DENIED"
	ErrCodeSessionExpired     = "SESSION_EXPIRED"
)

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewRegistrationFailedError は登録失敗エラーを生成する。
// messageにはMiniAuthのレスポンスから抽出した説明を渡す。
func NewRegistrationFailedError(message string) *APIError {
	if message == "" {
		message = "アカウントの登録に失敗しました。"
	}
	return &APIError{
		Code:     ErrCodeRegistrationFailed,
		Message:  message,
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を修正してください。",
	}
}

// NewWrongPasswordError は現在のパスワード不一致エラーを生成する。
// PUT /api/me/change-password の400レスポンスに対応する。
func NewWrongPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWrongPassword,
		Message:  "現在のパスワードが正しくありません。",
		Category: "auth",
		Action:   "現在のパスワードを確認して再度入力してください。",
	}
}

// NewUpstreamError はMiniAuth API呼び出し失敗の汎用エラーを生成する。
// messageが空の場合は汎用メッセージで埋める。
func NewUpstreamError(message string) *APIError {
	if message == "" {
		message = "サーバーとの通信に失敗しました。"
	}
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  message,
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewAccessDeniedError は権限不足エラーを生成する。
func NewAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  "このページにアクセスする権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインし直してください。",
	}
}

// NewSessionExpiredError はセッション期限切れエラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションの有効期限が切れました。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}
