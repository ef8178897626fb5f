package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/books2digital/backend/internal/auth"
	"github.com/books2digital/backend/internal/model"
)

type mockAuthService struct {
	signupFn         func(ctx context.Context, input auth.SignupInput) (*auth.LoginResult, error)
	loginFn          func(ctx context.Context, email, password string) (*auth.LoginResult, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) Signup(ctx context.Context, input auth.SignupInput) (*auth.LoginResult, error) {
	return m.signupFn(ctx, input)
}
func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	return m.loginFn(ctx, email, password)
}
func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}
func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	return m.getCurrentUserFn(ctx, sessionID)
}

func testAuthConfig() AuthHandlerConfig {
	return AuthHandlerConfig{
		CookieSecure:  true,
		SessionMaxAge: 3600,
	}
}

// TestAuthHandler_Signup は直接サインアップ成功時のCookieとレスポンスを検証する。
func TestAuthHandler_Signup(t *testing.T) {
	var gotInput auth.SignupInput
	service := &mockAuthService{
		signupFn: func(ctx context.Context, input auth.SignupInput) (*auth.LoginResult, error) {
			gotInput = input
			return &auth.LoginResult{
				User:    &model.User{ID: "user-1", Email: "bob@example.com", FirstName: "Bob", LastName: "Jones"},
				Session: &model.Session{ID: "sess-1"},
				Token:   "token-1",
			}, nil
		},
	}
	h := NewAuthHandler(service, testAuthConfig())

	body := `{"email":"bob@example.com","password":"password123","firstName":"Bob",` +
		`"lastName":"Jones","dob":"1985-02-10","street":"456 King St","city":"Toronto",` +
		`"province":"ON","postalCode":"M5V 2T6"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Signup(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if gotInput.Email != "bob@example.com" || gotInput.Province != "ON" {
		t.Errorf("unexpected input forwarded: %+v", gotInput)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != "sess-1" {
		t.Fatal("expected session cookie to be set")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp["token"] != "token-1" {
		t.Errorf("token = %v, want token-1", resp["token"])
	}
}

// TestAuthHandler_Signup_DuplicateEmail は重複emailが400で返ることを検証する。
func TestAuthHandler_Signup_DuplicateEmail(t *testing.T) {
	service := &mockAuthService{
		signupFn: func(ctx context.Context, input auth.SignupInput) (*auth.LoginResult, error) {
			return nil, model.NewDuplicateEmailError()
		},
	}
	h := NewAuthHandler(service, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/signup",
		strings.NewReader(`{"email":"bob@example.com"}`))
	rec := httptest.NewRecorder()
	h.Signup(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// TestAuthHandler_Login はログイン成功時のCookieとレスポンスを検証する。
func TestAuthHandler_Login(t *testing.T) {
	service := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*auth.LoginResult, error) {
			return &auth.LoginResult{
				User:    &model.User{ID: "user-1", Email: email, FirstName: "Alice", LastName: "Smith"},
				Session: &model.Session{ID: "sess-1", UserID: "user-1"},
				Token:   "jwt-token",
			}, nil
		},
	}
	h := NewAuthHandler(service, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"alice@example.com","password":"password123"}`))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionCookieName || cookies[0].Value != "sess-1" {
		t.Errorf("cookies = %v, want session cookie sess-1", cookies)
	}

	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["token"] != "jwt-token" {
		t.Errorf("token = %v", resp["token"])
	}
}

// TestAuthHandler_Login_InvalidCredentials は認証失敗が401になることを検証する。
func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	service := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*auth.LoginResult, error) {
			return nil, model.NewInvalidCredentialsError()
		},
	}
	h := NewAuthHandler(service, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"alice@example.com","password":"wrong"}`))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("expected no cookie on failed login")
	}
}

// TestAuthHandler_Logout はCookieのクリアを検証する。
func TestAuthHandler_Logout(t *testing.T) {
	var loggedOut string
	service := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			loggedOut = sessionID
			return nil
		},
	}
	h := NewAuthHandler(service, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "sess-1"})
	rec := httptest.NewRecorder()

	h.Logout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if loggedOut != "sess-1" {
		t.Errorf("logged out session = %q, want sess-1", loggedOut)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Errorf("expected expired cookie, got %v", cookies)
	}
}

// TestAuthHandler_Me は現在ユーザーの取得を検証する。
func TestAuthHandler_Me(t *testing.T) {
	service := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: "alice@example.com", FirstName: "Alice", LastName: "Smith"}, nil
		},
	}
	h := NewAuthHandler(service, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "sess-1"})
	rec := httptest.NewRecorder()

	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp userResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.ID != "user-1" || resp.Email != "alice@example.com" {
		t.Errorf("user = %+v", resp)
	}
}

// TestAuthHandler_Me_NoCookie はCookieなしが401になることを検証する。
func TestAuthHandler_Me_NoCookie(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()

	h.Me(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
