package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/adamavenir/vliz/internal/core"
	"golang.org/x/oauth2"
)

var fastParams = HashParams{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32}

func TestHashAndVerifyPassword(t *testing.T) {
	encoded, err := hashWith("s3cret", fastParams)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("encoded = %s", encoded)
	}
	ok, err := VerifyPassword("s3cret", encoded)
	if err != nil || !ok {
		t.Fatalf("verify: %v, %v", ok, err)
	}
	ok, err = VerifyPassword("wrong", encoded)
	if err != nil || ok {
		t.Fatalf("wrong password verified: %v, %v", ok, err)
	}

	again, _ := hashWith("s3cret", fastParams)
	if again == encoded {
		t.Fatal("expected a fresh salt per hash")
	}
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	cases := []string{
		"",
		"plain",
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=18$m=1,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$garbage$c2FsdA$a2V5",
		"$argon2id$v=19$m=1,t=1,p=1$!!$a2V5",
	}
	for _, encoded := range cases {
		if _, err := VerifyPassword("x", encoded); !errors.Is(err, ErrInvalidHash) {
			t.Errorf("VerifyPassword(%q) err = %v", encoded, err)
		}
	}
}

func TestLocalVerifier(t *testing.T) {
	encoded, err := hashWith("hunter2", fastParams)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	verifier := NewLocalVerifier([]core.UserCredential{{Username: "Admin", PasswordHash: encoded}})

	tests := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{"ok", "admin", "hunter2", nil},
		{"padded username", "  Admin ", "hunter2", nil},
		{"wrong password", "admin", "hunter3", ErrInvalidCredentials},
		{"unknown user", "bob", "hunter2", ErrInvalidCredentials},
		{"blank username", " ", "hunter2", ErrUsernameRequired},
		{"blank password", "admin", "  ", ErrPasswordRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifier.Verify(tt.username, tt.password)
			if tt.want == nil && err != nil {
				t.Fatalf("verify: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	token, err := NewSessionToken(DiscordUser{ID: "42", Username: "vliz", Avatar: "abc"}, now)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	session, err := ParseSessionToken(token, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if session.UserID != "42" || session.Username != "vliz" || session.Avatar != "abc" {
		t.Fatalf("session = %+v", session)
	}
	if session.Timestamp != now.UnixMilli() {
		t.Fatalf("timestamp = %d", session.Timestamp)
	}

	if _, err := ParseSessionToken(token, now.Add(SessionLifetime)); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expired err = %v", err)
	}
	if _, err := ParseSessionToken("not base64!", now); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDiscordFlowLogin(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("code") != "the-code" || r.Form.Get("client_id") != "client" {
			t.Errorf("token request form = %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer"}`))
	}))
	defer tokenServer.Close()

	meServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(DiscordUser{ID: "7", Username: "helper", Avatar: "av"})
	}))
	defer meServer.Close()

	flow := DiscordFlow{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://discord.example/authorize",
			TokenURL:  tokenServer.URL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		MeURL:   meServer.URL,
		Timeout: 5 * time.Second,
		OnAuthURL: func(authURL string) {
			go func() {
				parsed, err := url.Parse(authURL)
				if err != nil {
					t.Errorf("parse auth url: %v", err)
					return
				}
				query := parsed.Query()
				if query.Get("scope") != "identify" {
					t.Errorf("scope = %q", query.Get("scope"))
				}
				callback := query.Get("redirect_uri") + "?code=the-code&state=" + url.QueryEscape(query.Get("state"))
				resp, err := http.Get(callback)
				if err != nil {
					t.Errorf("callback: %v", err)
					return
				}
				resp.Body.Close()
			}()
		},
	}

	user, err := flow.Login(context.Background())
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != "7" || user.Username != "helper" {
		t.Fatalf("user = %+v", user)
	}
}

func TestDiscordFlowStateMismatch(t *testing.T) {
	flow := DiscordFlow{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{AuthURL: "https://discord.example/authorize", TokenURL: "http://127.0.0.1:1/token"},
		Timeout:  5 * time.Second,
		OnAuthURL: func(authURL string) {
			go func() {
				parsed, _ := url.Parse(authURL)
				resp, err := http.Get(parsed.Query().Get("redirect_uri") + "?code=x&state=forged")
				if err == nil {
					resp.Body.Close()
				}
			}()
		},
	}
	if _, err := flow.Login(context.Background()); err == nil || !strings.Contains(err.Error(), "state mismatch") {
		t.Fatalf("err = %v", err)
	}
}

func TestDiscordFlowRequiresClientID(t *testing.T) {
	if _, err := (DiscordFlow{}).Login(context.Background()); !errors.Is(err, ErrDiscordNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}
