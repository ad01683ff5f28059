package model

import "time"

// ConsoleSession はブラウザ1つ分のコンソールセッションを表す。
// MiniAuthが発行したセッションCookieの値（UpstreamCookie）を不透明なまま保持し、
// 解決済みのユーザー情報をキャッシュする。
type ConsoleSession struct {
	ID             string
	UpstreamCookie string
	User           *UserRecord // 未解決または匿名の場合はnil
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Expired はセッションが期限切れかどうかを返す。
func (s *ConsoleSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
