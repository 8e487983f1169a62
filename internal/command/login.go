package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adamavenir/vliz/internal/auth"
	"github.com/adamavenir/vliz/internal/core"
	"github.com/adamavenir/vliz/internal/db"
	"github.com/adamavenir/vliz/internal/types"
	"github.com/spf13/cobra"
)

// NewLoginCmd creates the login command.
func NewLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Sign in with a local account or Discord",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			lang, _ := cmd.Flags().GetString("lang")
			if lang != "" {
				lang = core.NormalizeLanguage(lang)
			} else {
				settings, err := db.LoadSettings(ctx.Store)
				if err != nil {
					return writeCommandError(cmd, err)
				}
				lang = settings.Language
			}
			text := core.T(lang)

			useDiscord, _ := cmd.Flags().GetBool("discord")
			var username string
			if useDiscord {
				username, err = loginDiscord(cmd, ctx)
			} else {
				username, err = loginLocal(cmd, ctx, args, text)
			}
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if err := db.SaveLogin(ctx.Store, username, lang); err != nil {
				return writeCommandError(cmd, err)
			}
			ctx.Logger.Info().Str("username", username).Bool("discord", useDiscord).Msg("logged in")

			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"username": username, "language": lang})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", text.LoggedIn, username)
			return nil
		},
	}

	cmd.Flags().Bool("discord", false, "sign in with Discord")
	cmd.Flags().String("lang", "", "interface language (en or es)")
	return cmd
}

func loginLocal(cmd *cobra.Command, ctx *CommandContext, args []string, text core.Strings) (string, error) {
	if len(ctx.Config.Users) == 0 {
		return "", fmt.Errorf("no local users configured; add one with: %s passwd --save <username>", AppName)
	}
	p := newPrompter(cmd)
	username := ""
	if len(args) > 0 {
		username = args[0]
	} else {
		var err error
		if username, err = p.line("Username: "); err != nil {
			return "", err
		}
	}
	password, err := p.secret("Password: ")
	if err != nil {
		return "", err
	}

	err = auth.NewLocalVerifier(ctx.Config.Users).Verify(username, password)
	switch {
	case errors.Is(err, auth.ErrUsernameRequired):
		return "", errors.New(text.UsernameRequired)
	case errors.Is(err, auth.ErrPasswordRequired):
		return "", errors.New(text.PasswordRequired)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "", errors.New(text.InvalidCredentials)
	case err != nil:
		return "", err
	}
	return strings.TrimSpace(username), nil
}

func loginDiscord(cmd *cobra.Command, ctx *CommandContext) (string, error) {
	flow := auth.DiscordFlow{
		ClientID:     ctx.Config.Discord.ClientID,
		ClientSecret: ctx.Config.Discord.ClientSecret,
		Port:         ctx.Config.Discord.RedirectPort,
		OnAuthURL: func(url string) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Open this URL to authorize:")
			fmt.Fprintln(cmd.ErrOrStderr(), url)
		},
	}
	user, err := flow.Login(cmd.Context())
	if err != nil {
		return "", err
	}
	token, err := auth.NewSessionToken(user, time.Now())
	if err != nil {
		return "", err
	}
	if err := ctx.Store.Set(types.KeySession, token); err != nil {
		return "", err
	}
	return user.Username, nil
}

// NewLogoutCmd creates the logout command.
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			settings, err := db.LoadSettings(ctx.Store)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if err := db.ClearLogin(ctx.Store); err != nil {
				return writeCommandError(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), core.T(settings.Language).LoggedOut)
			return nil
		},
	}
}

// NewWhoamiCmd creates the whoami command.
func NewWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			username, err := ctx.RequireLogin()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			settings, err := db.LoadSettings(ctx.Store)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			via := "local"
			var expires *time.Time
			if token, ok, _ := ctx.Store.Get(types.KeySession); ok {
				if session, err := auth.ParseSessionToken(token, time.Now()); err == nil {
					via = "discord"
					at := session.ExpiresAt()
					expires = &at
				}
			}

			if ctx.JSONMode {
				payload := map[string]any{
					"username": username,
					"via":      via,
					"settings": settings,
					"backend":  ctx.Config.BackendURL,
				}
				if expires != nil {
					payload["expires_at"] = expires.UTC().Format(time.RFC3339)
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(payload)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", username, via)
			fmt.Fprintf(out, "  language: %s\n  theme: %s\n  sound: %t\n  backend: %s\n",
				settings.Language, settings.Theme, settings.SoundEnabled, ctx.Config.BackendURL)
			if expires != nil {
				fmt.Fprintf(out, "  session expires: %s\n", expires.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

// NewPasswdCmd creates the passwd command.
func NewPasswdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passwd <username>",
		Short: "Hash a password for a local account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := strings.TrimSpace(args[0])
			if username == "" {
				return writeCommandError(cmd, auth.ErrUsernameRequired)
			}
			p := newPrompter(cmd)
			password, err := p.secret("New password: ")
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if strings.TrimSpace(password) == "" {
				return writeCommandError(cmd, auth.ErrPasswordRequired)
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			save, _ := cmd.Flags().GetBool("save")
			if !save {
				fmt.Fprintln(cmd.OutOrStdout(), hash)
				return nil
			}
			configPath, err := resolveConfigPath(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			config, err := core.LoadConfigFile(configPath)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			config.SetUser(core.UserCredential{Username: username, PasswordHash: hash})
			if err := core.WriteConfig(configPath, *config); err != nil {
				return writeCommandError(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved user %s to %s\n", username, configPath)
			return nil
		},
	}
	cmd.Flags().Bool("save", false, "write the user into the config file")
	return cmd
}
