package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/CodeWithZezo/mega-project/internal/auth"
)

// ─── Registration Tests ────────────────────────────────────────────

func TestRegister(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	resp := registerAccount(t, router, "Alice@Example.COM")

	if resp.User == nil || resp.Tokens == nil {
		t.Fatal("expected both user and tokens in register response")
	}
	if resp.User.Email != "alice@example.com" {
		t.Errorf("email = %q, want normalised %q", resp.User.Email, "alice@example.com")
	}
	if resp.User.ID == "" {
		t.Error("expected user ID to be assigned")
	}
	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		t.Error("expected a complete token pair")
	}
	if resp.Tokens.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want Bearer", resp.Tokens.TokenType)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	registerAccount(t, router, "dup@example.com")

	body := fmt.Sprintf(`{"email": "dup@example.com", "password": %q}`, testAccountPassword)
	w := doJSON(router, http.MethodPost, "/api/v1/auth/register", "", body)

	if w.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestRegister_WeakPassword(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	w := doJSON(router, http.MethodPost, "/api/v1/auth/register", "",
		`{"email": "weak@example.com", "password": "weak"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}

	var errResp Error
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if errResp.Code != ErrCodeValidation {
		t.Errorf("code = %q, want %q", errResp.Code, ErrCodeValidation)
	}
	if len(errResp.Details) == 0 {
		t.Error("expected policy violations in details")
	}
}

func TestRegister_InvalidJSON(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	w := doJSON(router, http.MethodPost, "/api/v1/auth/register", "", "not json")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestRegister_BadEmail(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	body := fmt.Sprintf(`{"email": "not-an-email", "password": %q}`, testAccountPassword)
	w := doJSON(router, http.MethodPost, "/api/v1/auth/register", "", body)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ─── Login and Token Tests ─────────────────────────────────────────

func TestLogin(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	registerAccount(t, router, "login@example.com")

	body := fmt.Sprintf(`{"email": "login@example.com", "password": %q, "device_info": "phone/2.0"}`,
		testAccountPassword)
	w := doJSON(router, http.MethodPost, "/api/v1/auth/login", "", body)

	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp authResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Tokens.AccessToken == "" {
		t.Error("expected access token after login")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	registerAccount(t, router, "wrongpw@example.com")

	w := doJSON(router, http.MethodPost, "/api/v1/auth/login", "",
		`{"email": "wrongpw@example.com", "password": "Wrong-pass1"}`)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestLogin_UnknownAccount(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	w := doJSON(router, http.MethodPost, "/api/v1/auth/login", "",
		fmt.Sprintf(`{"email": "ghost@example.com", "password": %q}`, testAccountPassword))

	// Unknown accounts and wrong passwords must be indistinguishable.
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRefresh(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	resp := registerAccount(t, router, "refresh@example.com")

	body := fmt.Sprintf(`{"refresh_token": %q}`, resp.Tokens.RefreshToken)
	w := doJSON(router, http.MethodPost, "/api/v1/auth/refresh", "", body)

	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var tokens auth.TokenPair
	if err := json.Unmarshal(w.Body.Bytes(), &tokens); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tokens.AccessToken == "" {
		t.Error("expected a fresh access token")
	}
	if tokens.RefreshToken != resp.Tokens.RefreshToken {
		t.Error("refresh token should survive a refresh unchanged")
	}
}

func TestRefresh_MissingToken(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	w := doJSON(router, http.MethodPost, "/api/v1/auth/refresh", "", `{}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestRefresh_UnknownToken(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	w := doJSON(router, http.MethodPost, "/api/v1/auth/refresh", "",
		fmt.Sprintf(`{"refresh_token": %q}`, strings.Repeat("ab", 32)))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestLogout(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	resp := registerAccount(t, router, "logout@example.com")
	body := fmt.Sprintf(`{"refresh_token": %q}`, resp.Tokens.RefreshToken)

	w := doJSON(router, http.MethodPost, "/api/v1/auth/logout", "", body)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d, want %d", w.Code, http.StatusNoContent)
	}

	// Second logout of the same token is still a 204.
	w = doJSON(router, http.MethodPost, "/api/v1/auth/logout", "", body)
	if w.Code != http.StatusNoContent {
		t.Errorf("repeat logout status = %d, want %d", w.Code, http.StatusNoContent)
	}

	// The refresh token is dead.
	w = doJSON(router, http.MethodPost, "/api/v1/auth/refresh", "", body)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestLogoutAll(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	resp := registerAccount(t, router, "logoutall@example.com")

	// Second session via login.
	login := doJSON(router, http.MethodPost, "/api/v1/auth/login", "",
		fmt.Sprintf(`{"email": "logoutall@example.com", "password": %q}`, testAccountPassword))
	var second authResponse
	if err := json.Unmarshal(login.Body.Bytes(), &second); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}

	w := doJSON(router, http.MethodPost, "/api/v1/auth/logout-all", resp.Tokens.AccessToken, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout-all status = %d, want %d; body: %s", w.Code, http.StatusNoContent, w.Body.String())
	}

	// Both refresh tokens are dead.
	for _, token := range []string{resp.Tokens.RefreshToken, second.Tokens.RefreshToken} {
		w = doJSON(router, http.MethodPost, "/api/v1/auth/refresh", "",
			fmt.Sprintf(`{"refresh_token": %q}`, token))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("refresh after logout-all status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	}
}

// ─── Account Tests ─────────────────────────────────────────────────

func TestMe_Get(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	resp := registerAccount(t, router, "me@example.com")

	w := doJSON(router, http.MethodGet, "/api/v1/me", resp.Tokens.AccessToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var user auth.User
	if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if user.Email != "me@example.com" {
		t.Errorf("email = %q, want me@example.com", user.Email)
	}
}

func TestMe_Update(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	resp := registerAccount(t, router, "patch@example.com")

	w := doJSON(router, http.MethodPatch, "/api/v1/me", resp.Tokens.AccessToken,
		`{"full_name": "Renamed User"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var user auth.User
	if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if user.FullName != "Renamed User" {
		t.Errorf("full_name = %q, want Renamed User", user.FullName)
	}
}

func TestMe_Update_BadPhone(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	resp := registerAccount(t, router, "badphone@example.com")

	w := doJSON(router, http.MethodPatch, "/api/v1/me", resp.Tokens.AccessToken,
		`{"phone": "not a phone"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestMe_ChangePassword(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	resp := registerAccount(t, router, "rotate@example.com")

	body := fmt.Sprintf(`{"current_password": %q, "new_password": "An0ther-good1!"}`, testAccountPassword)
	w := doJSON(router, http.MethodPut, "/api/v1/me/password", resp.Tokens.AccessToken, body)
	if w.Code != http.StatusNoContent {
		t.Fatalf("change password status = %d, want %d; body: %s", w.Code, http.StatusNoContent, w.Body.String())
	}

	// Every session was revoked: the old refresh token no longer works.
	w = doJSON(router, http.MethodPost, "/api/v1/auth/refresh", "",
		fmt.Sprintf(`{"refresh_token": %q}`, resp.Tokens.RefreshToken))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("refresh after password change status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	// The new password logs in.
	w = doJSON(router, http.MethodPost, "/api/v1/auth/login", "",
		`{"email": "rotate@example.com", "password": "An0ther-good1!"}`)
	if w.Code != http.StatusOK {
		t.Errorf("login with new password status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestMe_ChangePassword_WrongCurrent(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	resp := registerAccount(t, router, "wrongcur@example.com")

	w := doJSON(router, http.MethodPut, "/api/v1/me/password", resp.Tokens.AccessToken,
		`{"current_password": "Wrong-pass1", "new_password": "An0ther-good1!"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestMe_ChangePassword_Weak(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	resp := registerAccount(t, router, "weakrep@example.com")

	body := fmt.Sprintf(`{"current_password": %q, "new_password": "weak"}`, testAccountPassword)
	w := doJSON(router, http.MethodPut, "/api/v1/me/password", resp.Tokens.AccessToken, body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestMe_VerifyEmail(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	resp := registerAccount(t, router, "verify@example.com")

	w := doJSON(router, http.MethodPost, "/api/v1/me/verify", resp.Tokens.AccessToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var user auth.User
	if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !user.IsVerified {
		t.Error("expected is_verified = true")
	}
}

func TestMe_Delete(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	resp := registerAccount(t, router, "goodbye@example.com")

	w := doJSON(router, http.MethodDelete, "/api/v1/me", resp.Tokens.AccessToken, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", w.Code, http.StatusNoContent)
	}

	// The access token stays valid until expiry, but the account is gone.
	w = doJSON(router, http.MethodGet, "/api/v1/me", resp.Tokens.AccessToken, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Session Tests ─────────────────────────────────────────────────

func TestSessions_ListAndRevoke(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	resp := registerAccount(t, router, "sessions@example.com")
	doJSON(router, http.MethodPost, "/api/v1/auth/login", "",
		fmt.Sprintf(`{"email": "sessions@example.com", "password": %q}`, testAccountPassword))

	w := doJSON(router, http.MethodGet, "/api/v1/me/sessions", resp.Tokens.AccessToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var list struct {
		Sessions []auth.Session `json:"sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(list.Sessions))
	}

	w = doJSON(router, http.MethodDelete, "/api/v1/me/sessions/"+list.Sessions[0].ID, resp.Tokens.AccessToken, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("revoke status = %d, want %d", w.Code, http.StatusNoContent)
	}

	w = doJSON(router, http.MethodGet, "/api/v1/me/sessions", resp.Tokens.AccessToken, "")
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list.Sessions) != 1 {
		t.Errorf("sessions after revoke = %d, want 1", len(list.Sessions))
	}
}

func TestSessions_RevokeUnknown(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	resp := registerAccount(t, router, "revoker@example.com")

	w := doJSON(router, http.MethodDelete, "/api/v1/me/sessions/ses-nonexistent", resp.Tokens.AccessToken, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSessions_RevokeForeign(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	alice := registerAccount(t, router, "alice-s@example.com")
	bob := registerAccount(t, router, "bob-s@example.com")

	w := doJSON(router, http.MethodGet, "/api/v1/me/sessions", bob.Tokens.AccessToken, "")
	var list struct {
		Sessions []auth.Session `json:"sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list.Sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(list.Sessions))
	}

	// Alice cannot revoke Bob's session; it looks like it doesn't exist.
	w = doJSON(router, http.MethodDelete, "/api/v1/me/sessions/"+list.Sessions[0].ID, alice.Tokens.AccessToken, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("foreign revoke status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
