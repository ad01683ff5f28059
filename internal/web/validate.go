package web

import (
	"regexp"

	"github.com/hitoshi/authgate/internal/model"
)

// フォーム検証の制約値。上流の登録・更新APIと同じ値にそろえる。
const (
	usernameMinLength = 3
	usernameMaxLength = 50
	passwordMinLength = 6
)

// emailPattern はメールアドレスのおおまかな形式検査。厳密な検証は上流に任せる。
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// validateUsername はユーザー名の文字数制約を検査する。
func validateUsername(username string) *model.APIError {
	if n := len([]rune(username)); n < usernameMinLength || n > usernameMaxLength {
		return model.NewValidationError("ユーザー名は3文字以上50文字以内で入力してください。")
	}
	return nil
}

// validateEmail はメールアドレスの形式を検査する。
func validateEmail(email string) *model.APIError {
	if !emailPattern.MatchString(email) {
		return model.NewValidationError("メールアドレスの形式が正しくありません。")
	}
	return nil
}

// validateNewPassword は新しいパスワードの確認用との一致と長さを検査する。
func validateNewPassword(password, confirm string) *model.APIError {
	if password != confirm {
		return model.NewValidationError("パスワードが確認用と一致しません。")
	}
	if len(password) < passwordMinLength {
		return model.NewValidationError("パスワードは6文字以上で入力してください。")
	}
	return nil
}
