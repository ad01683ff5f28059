package model

import "testing"

func TestUserRecord_IsAdmin(t *testing.T) {
	tests := []struct {
		name string
		user *UserRecord
		want bool
	}{
		{"管理者", &UserRecord{Role: RoleAdmin}, true},
		{"一般ユーザー", &UserRecord{Role: RoleUser}, false},
		{"ロール未設定", &UserRecord{}, false},
		{"nilユーザー", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.IsAdmin(); got != tt.want {
				t.Errorf("IsAdmin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdminUserPage_TotalPages(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		size  int
		want  int
	}{
		{"割り切れる", 20, 10, 2},
		{"端数あり", 21, 10, 3},
		{"0件", 0, 10, 0},
		{"サイズ0", 10, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &AdminUserPage{Total: tt.total, Size: tt.size}
			if got := p.TotalPages(); got != tt.want {
				t.Errorf("TotalPages() = %d, want %d", got, tt.want)
			}
		})
	}
}
