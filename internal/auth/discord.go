package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	discordAuthURL  = "https://discord.com/api/oauth2/authorize"
	discordTokenURL = "https://discord.com/api/oauth2/token"
	discordMeURL    = "https://discord.com/api/users/@me"
	callbackPath    = "/api/auth/discord/callback"
)

// ErrDiscordNotConfigured is returned when no client id is configured.
var ErrDiscordNotConfigured = errors.New("discord client id not configured")

// DiscordFlow runs the authorization-code flow on a loopback listener.
type DiscordFlow struct {
	ClientID     string
	ClientSecret string
	// Port for the callback listener. Zero picks a free port.
	Port int
	// Endpoint and MeURL default to Discord's.
	Endpoint oauth2.Endpoint
	MeURL    string
	// OnAuthURL receives the URL the user must open.
	OnAuthURL func(string)
	Timeout   time.Duration
}

// Login waits for the browser callback, exchanges the code and fetches the
// Discord identity.
func (f DiscordFlow) Login(ctx context.Context) (DiscordUser, error) {
	if f.ClientID == "" {
		return DiscordUser{}, ErrDiscordNotConfigured
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", f.Port))
	if err != nil {
		return DiscordUser{}, fmt.Errorf("listen for callback: %w", err)
	}
	defer ln.Close()

	endpoint := f.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = oauth2.Endpoint{AuthURL: discordAuthURL, TokenURL: discordTokenURL, AuthStyle: oauth2.AuthStyleInParams}
	}
	oauthCfg := &oauth2.Config{
		ClientID:     f.ClientID,
		ClientSecret: f.ClientSecret,
		RedirectURL:  fmt.Sprintf("http://%s%s", ln.Addr().String(), callbackPath),
		Scopes:       []string{"identify"},
		Endpoint:     endpoint,
	}
	state := uuid.NewString()

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if reason := query.Get("error"); reason != "" {
			http.Error(w, "authorization failed: "+reason, http.StatusBadRequest)
			sendErr(errCh, fmt.Errorf("discord authorization failed: %s", reason))
			return
		}
		if query.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			sendErr(errCh, errors.New("state mismatch"))
			return
		}
		code := query.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			sendErr(errCh, errors.New("no_code"))
			return
		}
		_, _ = io.WriteString(w, "vliz login complete. You can close this tab.")
		select {
		case codeCh <- code:
		default:
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		_ = srv.Serve(ln)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := oauthCfg.AuthCodeURL(state)
	if f.OnAuthURL != nil {
		f.OnAuthURL(authURL)
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	select {
	case code := <-codeCh:
		token, err := oauthCfg.Exchange(ctx, code)
		if err != nil {
			return DiscordUser{}, fmt.Errorf("exchange code: %w", err)
		}
		return f.fetchUser(ctx, oauthCfg.Client(ctx, token))
	case err := <-errCh:
		return DiscordUser{}, err
	case <-ctx.Done():
		return DiscordUser{}, ctx.Err()
	case <-time.After(timeout):
		return DiscordUser{}, fmt.Errorf("timed out waiting for browser callback after %s", timeout)
	}
}

func (f DiscordFlow) fetchUser(ctx context.Context, client *http.Client) (DiscordUser, error) {
	meURL := f.MeURL
	if meURL == "" {
		meURL = discordMeURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meURL, nil)
	if err != nil {
		return DiscordUser{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return DiscordUser{}, fmt.Errorf("fetch discord user: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return DiscordUser{}, fmt.Errorf("fetch discord user: status %d", resp.StatusCode)
	}
	var user DiscordUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return DiscordUser{}, fmt.Errorf("decode discord user: %w", err)
	}
	if user.Username == "" {
		return DiscordUser{}, errors.New("discord user has no username")
	}
	return user, nil
}

func sendErr(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}
