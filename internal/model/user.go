// Package model はドメインモデルを定義する。
package model

// UserRole はユーザーのロールを表す。MiniAuth側の定義をそのまま受け取る。
type UserRole string

const (
	// RoleUser は一般ユーザーを表す。
	RoleUser UserRole = "user"
	// RoleAdmin は管理者を表す。管理画面へのアクセスにはこのロールが必要。
	RoleAdmin UserRole = "admin"
)

// Organization はユーザーが所属する組織を表す。
// GET /api/me のレスポンスに含まれる形をそのまま保持する。
type Organization struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Role string `json:"role"`
}

// UserRecord はMiniAuthの「現在のユーザー」を表す。
// コンソール側からは読み取り専用で、更新は必ずAPI呼び出し経由で行う。
type UserRecord struct {
	ID            uint           `json:"id"`
	Username      string         `json:"username"`
	Email         string         `json:"email"`
	Role          UserRole       `json:"role"`
	Organizations []Organization `json:"organizations"`
}

// IsAdmin はユーザーが管理者ロールを持つかどうかを返す。
func (u *UserRecord) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// AdminUser は管理画面のユーザー一覧1行分を表す。
// GET /api/admin/users のレスポンス要素に対応する。
type AdminUser struct {
	ID        uint     `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
	OrgCount  int      `json:"org_count"`
	Role      UserRole `json:"role"`
}

// AdminUserPage はページネーション付きのユーザー一覧を表す。
type AdminUserPage struct {
	Users []AdminUser `json:"users"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
}

// TotalPages は総ページ数を返す。Sizeが0以下の場合は0を返す。
func (p *AdminUserPage) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	pages := int(p.Total) / p.Size
	if int(p.Total)%p.Size != 0 {
		pages++
	}
	return pages
}
