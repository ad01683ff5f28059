package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/session"
)

// 判定が未解決、未認証、権限不足、許可の順に行われることを検証
func TestEvaluate_Ordering(t *testing.T) {
	admin := &model.UserRecord{ID: 1, Role: model.RoleAdmin}
	regular := &model.UserRecord{ID: 2, Role: model.RoleUser}

	tests := []struct {
		name         string
		snapshot     session.Snapshot
		requireAdmin bool
		want         Decision
	}{
		{"未解決は最優先", session.Snapshot{Loading: true}, false, DecisionLoading},
		{"未解決は認証済みでも最優先", session.Snapshot{User: admin, Loading: true}, true, DecisionLoading},
		{"未認証はリダイレクト", session.Snapshot{}, false, DecisionRedirectLogin},
		{"未認証は管理者要求でもリダイレクト", session.Snapshot{}, true, DecisionRedirectLogin},
		{"一般ユーザーは管理者要求で拒否", session.Snapshot{User: regular}, true, DecisionDenied},
		{"一般ユーザーは通常ページで許可", session.Snapshot{User: regular}, false, DecisionAllow},
		{"管理者は管理ページで許可", session.Snapshot{User: admin}, true, DecisionAllow},
		{"管理者は通常ページでも許可", session.Snapshot{User: admin}, false, DecisionAllow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.snapshot, tt.requireAdmin); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

// mockSnapshotSource はSnapshotSourceのモック。
type mockSnapshotSource struct {
	resolveFunc func(ctx context.Context, id string) (*model.ConsoleSession, error)
	refreshFunc func(ctx context.Context, sess *model.ConsoleSession) session.Snapshot
}

func (m *mockSnapshotSource) Resolve(ctx context.Context, id string) (*model.ConsoleSession, error) {
	return m.resolveFunc(ctx, id)
}

func (m *mockSnapshotSource) Refresh(ctx context.Context, sess *model.ConsoleSession) session.Snapshot {
	return m.refreshFunc(ctx, sess)
}

func TestSessionContextMiddleware_InjectsSnapshot(t *testing.T) {
	user := &model.UserRecord{ID: 1, Username: "alice"}
	source := &mockSnapshotSource{
		resolveFunc: func(ctx context.Context, id string) (*model.ConsoleSession, error) {
			if id != "s1" {
				t.Errorf("Resolve called with %q, want %q", id, "s1")
			}
			return &model.ConsoleSession{ID: "s1", UpstreamCookie: "tok"}, nil
		},
		refreshFunc: func(ctx context.Context, sess *model.ConsoleSession) session.Snapshot {
			return session.Snapshot{User: user}
		},
	}

	var gotSnapshot session.Snapshot
	var gotSession *model.ConsoleSession
	handler := NewSessionContextMiddleware(source)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSnapshot = SnapshotFromContext(r.Context())
		gotSession = SessionFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.AddCookie(&http.Cookie{Name: ConsoleCookieName, Value: "s1"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !gotSnapshot.IsAuthenticated() {
		t.Error("snapshot must be authenticated")
	}
	if gotSession == nil || gotSession.ID != "s1" {
		t.Errorf("session = %+v, want ID s1", gotSession)
	}
}

// Cookieなしのリクエストも拒否されず匿名として通ることを検証
func TestSessionContextMiddleware_NoCookie_PassesAnonymous(t *testing.T) {
	source := &mockSnapshotSource{
		refreshFunc: func(ctx context.Context, sess *model.ConsoleSession) session.Snapshot {
			if sess != nil {
				t.Errorf("Refresh called with session %+v, want nil", sess)
			}
			return session.Snapshot{}
		},
	}

	called := false
	handler := NewSessionContextMiddleware(source)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if SnapshotFromContext(r.Context()).IsAuthenticated() {
			t.Error("snapshot must be anonymous without a cookie")
		}
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("next handler must be called for anonymous requests")
	}
}

// 未認証アクセスが元のURI（クエリ込み）を引き継いでリダイレクトされることを検証
func TestGuardMiddleware_RedirectsToLoginWithFrom(t *testing.T) {
	handler := NewGuardMiddleware(false, GuardConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler must not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?client_id=abc&state=s1", nil)
	req = req.WithContext(ContextWithSnapshot(req.Context(), session.Snapshot{}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}

	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location header: %v", err)
	}
	if location.Path != "/login" {
		t.Errorf("redirect path = %q, want /login", location.Path)
	}
	from := location.Query().Get("from")
	if from != "/oauth/authorize?client_id=abc&state=s1" {
		t.Errorf("from = %q, want original URI with query", from)
	}
}

func TestGuardMiddleware_DeniedUsesHandler(t *testing.T) {
	deniedCalled := false
	config := GuardConfig{
		DeniedHandler: func(w http.ResponseWriter, r *http.Request) {
			deniedCalled = true
			w.WriteHeader(http.StatusForbidden)
		},
	}

	handler := NewGuardMiddleware(true, config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler must not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	req = req.WithContext(ContextWithSnapshot(req.Context(), session.Snapshot{
		User: &model.UserRecord{ID: 2, Role: model.RoleUser},
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !deniedCalled {
		t.Error("denied handler must be called")
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestGuardMiddleware_AllowsAuthenticated(t *testing.T) {
	called := false
	handler := NewGuardMiddleware(false, GuardConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req = req.WithContext(ContextWithSnapshot(req.Context(), session.Snapshot{
		User: &model.UserRecord{ID: 1, Role: model.RoleUser},
	}))

	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Error("authenticated request must reach the next handler")
	}
}

func TestSnapshotFromContext_Missing(t *testing.T) {
	snapshot := SnapshotFromContext(context.Background())
	if snapshot.IsAuthenticated() || snapshot.Loading {
		t.Errorf("missing snapshot must resolve to anonymous, got %+v", snapshot)
	}
}
