package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adamavenir/vliz/internal/core"
	"github.com/adamavenir/vliz/internal/types"
)

// Store is the persisted local state: plain string keys and values.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// SQLStore keeps state in the sqlite vliz_state table.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open state database.
func NewSQLStore(conn *sql.DB) *SQLStore {
	return &SQLStore{db: conn}
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Get(key string) (string, bool, error) {
	row := s.db.QueryRow("SELECT value FROM vliz_state WHERE key = ?", key)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLStore) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO vliz_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	return err
}

func (s *SQLStore) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM vliz_state WHERE key = ?", key)
	return err
}

// Keys lists stored keys in order.
func (s *SQLStore) Keys() ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM vliz_state ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]string{}}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Keys lists stored keys in order.
func (m *MemoryStore) Keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.values))
	for key := range m.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// GetString returns the value for key or fallback when unset.
func GetString(store Store, key, fallback string) (string, error) {
	value, ok, err := store.Get(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return fallback, nil
	}
	return value, nil
}

// LoadSettings reads the user preferences.
func LoadSettings(store Store) (types.Settings, error) {
	settings := types.Settings{}
	auth, err := GetString(store, types.KeyAuth, "")
	if err != nil {
		return settings, err
	}
	username, err := GetString(store, types.KeyUsername, "")
	if err != nil {
		return settings, err
	}
	language, err := GetString(store, types.KeyLanguage, "")
	if err != nil {
		return settings, err
	}
	theme, err := GetString(store, types.KeyTheme, types.ThemeDark)
	if err != nil {
		return settings, err
	}
	sound, err := GetString(store, types.KeySound, "")
	if err != nil {
		return settings, err
	}

	settings.Authenticated = auth != "" && username != ""
	settings.Username = username
	if language == "" {
		settings.Language = core.DetectLanguage()
	} else {
		settings.Language = core.NormalizeLanguage(language)
	}
	if theme != types.ThemeLight {
		theme = types.ThemeDark
	}
	settings.Theme = theme
	settings.SoundEnabled = sound != "false"
	return settings, nil
}

// SaveLanguage persists the UI language.
func SaveLanguage(store Store, language string) error {
	return store.Set(types.KeyLanguage, core.NormalizeLanguage(language))
}

// SaveTheme persists the UI theme.
func SaveTheme(store Store, theme string) error {
	if theme != types.ThemeLight && theme != types.ThemeDark {
		return fmt.Errorf("invalid theme %q (use dark or light)", theme)
	}
	return store.Set(types.KeyTheme, theme)
}

// SaveSound persists the sound preference.
func SaveSound(store Store, enabled bool) error {
	return store.Set(types.KeySound, strconv.FormatBool(enabled))
}

// SaveLogin marks the session authenticated.
func SaveLogin(store Store, username, language string) error {
	if err := store.Set(types.KeyAuth, "true"); err != nil {
		return err
	}
	if err := store.Set(types.KeyUsername, username); err != nil {
		return err
	}
	if language != "" {
		return SaveLanguage(store, language)
	}
	return nil
}

// ClearLogin removes the authentication keys.
func ClearLogin(store Store) error {
	for _, key := range []string{types.KeyAuth, types.KeyUsername, types.KeySession} {
		if err := store.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// LoadMaintenance reads the maintenance flag.
func LoadMaintenance(store Store) (types.MaintenanceState, error) {
	value, err := GetString(store, types.KeyMaintenance, "")
	if err != nil {
		return types.StateNormal, err
	}
	if value == "true" {
		return types.StateMaintenance, nil
	}
	return types.StateNormal, nil
}

// SaveMaintenance persists the maintenance flag as "true"/"false".
func SaveMaintenance(store Store, on bool) error {
	return store.Set(types.KeyMaintenance, strconv.FormatBool(on))
}

// LoadLastMessageCount reads the high-water mark. Unparseable values read as 0.
func LoadLastMessageCount(store Store) (int, error) {
	value, err := GetString(store, types.KeyLastMessageCount, "")
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || count < 0 {
		return 0, nil
	}
	return count, nil
}

// SaveLastMessageCount persists the high-water mark.
func SaveLastMessageCount(store Store, count int) error {
	return store.Set(types.KeyLastMessageCount, strconv.Itoa(count))
}

// LoadSentMessages reads the self-sent payload set. A corrupt value reads as
// empty so a bad write never blocks a session.
func LoadSentMessages(store Store) (map[string]struct{}, error) {
	sent := map[string]struct{}{}
	value, ok, err := store.Get(types.KeySentMessages)
	if err != nil || !ok {
		return sent, err
	}
	var list []string
	if err := json.Unmarshal([]byte(value), &list); err != nil {
		return sent, nil
	}
	for _, item := range list {
		sent[item] = struct{}{}
	}
	return sent, nil
}

// SaveSentMessages persists the self-sent set as a sorted JSON array.
func SaveSentMessages(store Store, sent map[string]struct{}) error {
	list := make([]string, 0, len(sent))
	for item := range sent {
		list = append(list, item)
	}
	sort.Strings(list)
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return store.Set(types.KeySentMessages, string(data))
}

// LoadActiveChannel reads the last visible channel.
func LoadActiveChannel(store Store) (types.Channel, error) {
	value, err := GetString(store, types.KeyActiveChannel, "")
	if err != nil {
		return types.ChannelSupport, err
	}
	return types.ParseChannel(value), nil
}

// SaveActiveChannel persists the visible channel.
func SaveActiveChannel(store Store, channel types.Channel) error {
	return store.Set(types.KeyActiveChannel, string(channel))
}
