package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SessionLifetime is how long a Discord session token stays valid.
const SessionLifetime = 7 * 24 * time.Hour

// ErrSessionExpired is returned for tokens older than SessionLifetime.
var ErrSessionExpired = errors.New("session expired")

// DiscordUser is the subset of the Discord @me payload the client keeps.
type DiscordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// Session is the decoded session token.
type Session struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
	Timestamp int64  `json:"timestamp"`
}

// IssuedAt returns the token creation time.
func (s Session) IssuedAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// ExpiresAt returns when the token stops being valid.
func (s Session) ExpiresAt() time.Time {
	return s.IssuedAt().Add(SessionLifetime)
}

// NewSessionToken encodes user as base64 JSON stamped with now in milliseconds.
func NewSessionToken(user DiscordUser, now time.Time) (string, error) {
	data, err := json.Marshal(Session{
		UserID:    user.ID,
		Username:  user.Username,
		Avatar:    user.Avatar,
		Timestamp: now.UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// ParseSessionToken decodes token and rejects it once expired at now.
func ParseSessionToken(token string, now time.Time) (Session, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if session.Username == "" || session.Timestamp == 0 {
		return Session{}, fmt.Errorf("decode session: missing fields")
	}
	if !now.Before(session.ExpiresAt()) {
		return session, ErrSessionExpired
	}
	return session, nil
}
