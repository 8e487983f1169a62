package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultBackendURL   = "http://localhost:24642"
	DefaultPollInterval = 500 * time.Millisecond
	DefaultRedirectPort = 3000
	configDirName       = "vliz"
	configFileName      = "config.json"
	stateFileName       = "state.db"
)

// UserCredential is one local account. PasswordHash uses the argon2id encoding
// produced by `vliz passwd`.
type UserCredential struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// DiscordConfig configures the Discord OAuth login.
type DiscordConfig struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	RedirectPort int    `json:"redirect_port,omitempty"`
}

// Config stores client settings that are not per-session state.
type Config struct {
	Version      int              `json:"version"`
	BackendURL   string           `json:"backend_url,omitempty"`
	PollInterval Duration         `json:"poll_interval,omitempty"`
	StatePath    string           `json:"state_path,omitempty"`
	Users        []UserCredential `json:"users,omitempty"`
	Discord      DiscordConfig    `json:"discord,omitempty"`
}

// Duration marshals as a Go duration string ("500ms").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch value := raw.(type) {
	case float64:
		*d = Duration(time.Duration(value) * time.Millisecond)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration: %s", string(data))
	}
}

// DefaultConfigDir returns ~/.config/vliz.
func DefaultConfigDir() (string, error) {
	if dir := os.Getenv("VLIZ_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", configDirName), nil
}

// DefaultConfigPath returns the config file location.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// ReadConfig reads the config file if present and applies env overrides.
// A missing file yields the defaults.
func ReadConfig(path string) (*Config, error) {
	config, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	if err := loadDotEnv(filepath.Dir(path)); err != nil {
		return nil, err
	}
	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyDefaults(filepath.Dir(path))
	return config, nil
}

// LoadConfigFile reads only what is stored in the file, without env overrides
// or defaults. Use it before rewriting the file.
func LoadConfigFile(path string) (*Config, error) {
	config := &Config{Version: 1}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return config, nil
}

// WriteConfig writes the config file, creating its directory.
func WriteConfig(path string, config Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// loadDotEnv loads .env from the working directory and the config directory.
// Existing environment variables win.
func loadDotEnv(configDir string) error {
	for _, candidate := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if err := godotenv.Load(candidate); err != nil {
			return fmt.Errorf("load %s: %w", candidate, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	if value := firstEnv("VLIZ_BACKEND_URL", "BACKEND_URL"); value != "" {
		c.BackendURL = value
	}
	if value := os.Getenv("VLIZ_POLL_INTERVAL"); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("VLIZ_POLL_INTERVAL: %w", err)
		}
		c.PollInterval = Duration(parsed)
	}
	if value := os.Getenv("DISCORD_CLIENT_ID"); value != "" {
		c.Discord.ClientID = value
	}
	if value := os.Getenv("DISCORD_CLIENT_SECRET"); value != "" {
		c.Discord.ClientSecret = value
	}
	return nil
}

func (c *Config) applyDefaults(configDir string) {
	if c.Version == 0 {
		c.Version = 1
	}
	if strings.TrimSpace(c.BackendURL) == "" {
		c.BackendURL = DefaultBackendURL
	}
	if c.PollInterval <= 0 {
		c.PollInterval = Duration(DefaultPollInterval)
	}
	if c.StatePath == "" {
		c.StatePath = filepath.Join(configDir, stateFileName)
	}
	if c.Discord.RedirectPort == 0 {
		c.Discord.RedirectPort = DefaultRedirectPort
	}
}

// Interval returns the poll interval as a time.Duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.PollInterval)
}

// FindUser returns the credential entry for username.
func (c *Config) FindUser(username string) (UserCredential, bool) {
	for _, user := range c.Users {
		if user.Username == username {
			return user, true
		}
	}
	return UserCredential{}, false
}

// SetUser adds or replaces a credential entry.
func (c *Config) SetUser(cred UserCredential) {
	for i, user := range c.Users {
		if user.Username == cred.Username {
			c.Users[i] = cred
			return
		}
	}
	c.Users = append(c.Users, cred)
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}
