package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/oauth"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	client, err := NewClient(Config{BaseURL: server.URL}, nil, logger)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client, server
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	if _, err := NewClient(Config{BaseURL: "not-a-url"}, nil, logger); err == nil {
		t.Error("expected error for base URL without scheme")
	}
}

func TestLogin_CapturesSessionCookie(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/login" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body["email"] != "a@example.com" || body["password"] != "secret" {
			t.Errorf("unexpected credentials: %v", body)
		}
		http.SetCookie(w, &http.Cookie{Name: "user-session", Value: "tok123"})
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))

	cookie, err := client.Login(context.Background(), "a@example.com", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if cookie != "tok123" {
		t.Errorf("cookie = %q, want %q", cookie, "tok123")
	}
}

func TestLogin_Unauthorized(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
	}))

	_, err := client.Login(context.Background(), "a@example.com", "wrong")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, http.StatusUnauthorized)
	}
	if apiErr.ErrorCode != "invalid credentials" {
		t.Errorf("ErrorCode = %q, want %q", apiErr.ErrorCode, "invalid credentials")
	}
}

func TestLogin_MissingCookie(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))

	if _, err := client.Login(context.Background(), "a@example.com", "secret"); err == nil {
		t.Error("expected error when session cookie is missing")
	}
}

func TestMe_SendsCookieAndDecodesUser(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/me" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		ck, err := r.Cookie("user-session")
		if err != nil || ck.Value != "tok123" {
			t.Errorf("session cookie not forwarded: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":1,"username":"alice","email":"a@example.com","role":"admin","organizations":[{"id":2,"name":"Acme","slug":"acme","role":"owner"}]}`))
	}))

	user, err := client.Me(context.Background(), "tok123")
	if err != nil {
		t.Fatalf("Me failed: %v", err)
	}
	if user.Username != "alice" || !user.IsAdmin() {
		t.Errorf("unexpected user: %+v", user)
	}
	if len(user.Organizations) != 1 || user.Organizations[0].Slug != "acme" {
		t.Errorf("unexpected organizations: %+v", user.Organizations)
	}
}

func TestRegister_FailureCarriesMessage(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"email already taken"}`))
	}))

	_, err := client.Register(context.Background(), "alice", "a@example.com", "secret")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Message != "email already taken" {
		t.Errorf("Message = %q, want %q", apiErr.Message, "email already taken")
	}
}

func TestChangePassword_WrongCurrentPassword(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/me/change-password" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"current password does not match"}`))
	}))

	err := client.ChangePassword(context.Background(), "tok123", "old", "new")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", apiErr.StatusCode)
	}
}

func TestAuthorize_ConsentContext(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/oauth/authorize" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("client_id"); got != "abc" {
			t.Errorf("client_id = %q, want %q", got, "abc")
		}
		if _, present := r.URL.Query()["code_challenge"]; present {
			t.Error("empty code_challenge must not be sent")
		}
		_, _ = w.Write([]byte(`{"client_name":"My App","client_id":"abc","scope":"read write","user":{"id":1,"username":"alice"}}`))
	}))

	outcome, err := client.Authorize(context.Background(), "tok123", oauth.AuthorizeParams{
		ClientID:     "abc",
		ResponseType: "code",
	})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if outcome.Data == nil {
		t.Fatal("expected consent data")
	}
	if outcome.Data.ClientName != "My App" {
		t.Errorf("ClientName = %q, want %q", outcome.Data.ClientName, "My App")
	}
	if outcome.RedirectLocation != "" {
		t.Errorf("RedirectLocation = %q, want empty", outcome.RedirectLocation)
	}
}

func TestAuthorize_TrustedAppRedirect(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://x/cb?code=xyz")
		w.WriteHeader(http.StatusFound)
	}))

	outcome, err := client.Authorize(context.Background(), "tok123", oauth.AuthorizeParams{ClientID: "abc"})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if outcome.Data != nil {
		t.Error("expected no consent data for a redirect")
	}
	if outcome.RedirectLocation != "https://x/cb?code=xyz" {
		t.Errorf("RedirectLocation = %q, want the Location header", outcome.RedirectLocation)
	}
}

func TestAuthorize_ErrorStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))

	_, err := client.Authorize(context.Background(), "tok123", oauth.AuthorizeParams{ClientID: "nope"})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.ErrorCode != "invalid_client" {
		t.Errorf("ErrorCode = %q, want %q", apiErr.ErrorCode, "invalid_client")
	}
}

func TestDecide_ReturnsRedirectURL(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/oauth/authorize" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body["authorized"] != true {
			t.Errorf("authorized = %v, want true", body["authorized"])
		}
		if body["client_id"] != "abc" {
			t.Errorf("client_id = %v, want abc", body["client_id"])
		}
		if _, present := body["code_challenge"]; present {
			t.Error("empty code_challenge must not be sent")
		}
		_, _ = w.Write([]byte(`{"redirect_url":"https://x/cb?code=xyz"}`))
	}))

	redirectURL, err := client.Decide(context.Background(), "tok123", oauth.AuthorizeParams{
		ClientID:     "abc",
		ResponseType: "code",
	}, true)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if redirectURL != "https://x/cb?code=xyz" {
		t.Errorf("redirectURL = %q, want %q", redirectURL, "https://x/cb?code=xyz")
	}
}

func TestListUsers_SendsPagination(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/admin/users" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("page") != "2" || r.URL.Query().Get("size") != "10" {
			t.Errorf("unexpected pagination: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"users":[{"id":1,"username":"alice","email":"a@example.com","role":"admin"}],"total":11,"page":2,"size":10}`))
	}))

	page, err := client.ListUsers(context.Background(), "tok123", 2, 10)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if page.Total != 11 || len(page.Users) != 1 {
		t.Errorf("unexpected page: %+v", page)
	}
	if page.TotalPages() != 2 {
		t.Errorf("TotalPages() = %d, want 2", page.TotalPages())
	}
}

func TestCreateApplication_DecodesCreatedApp(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/admin/oauth/applications" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var form model.ApplicationForm
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if form.Name != "My App" || len(form.RedirectURIs) != 1 {
			t.Errorf("unexpected form: %+v", form)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":5,"name":"My App","client_id":"abc","client_secret":"sec","redirect_uris":["https://x/cb"],"scopes":["read"],"active":true}`))
	}))

	app, err := client.CreateApplication(context.Background(), "tok123", model.ApplicationForm{
		Name:         "My App",
		RedirectURIs: []string{"https://x/cb"},
		Scopes:       []string{"read"},
	})
	if err != nil {
		t.Fatalf("CreateApplication failed: %v", err)
	}
	if app.ID != 5 || app.ClientSecret != "sec" {
		t.Errorf("unexpected application: %+v", app)
	}
}

func TestToggleApplication_HitsTogglePath(t *testing.T) {
	var gotPath string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"active":false}`))
	}))

	if err := client.ToggleApplication(context.Background(), "tok123", 5); err != nil {
		t.Fatalf("ToggleApplication failed: %v", err)
	}
	if gotPath != "/api/admin/oauth/applications/5/toggle" {
		t.Errorf("path = %q, want toggle endpoint", gotPath)
	}
}
