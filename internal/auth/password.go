package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/adamavenir/vliz/internal/core"
	"golang.org/x/crypto/argon2"
)

var (
	// ErrInvalidCredentials covers unknown users and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUsernameRequired is returned for a blank username.
	ErrUsernameRequired = errors.New("username required")
	// ErrPasswordRequired is returned for a blank password.
	ErrPasswordRequired = errors.New("password required")
	// ErrInvalidHash is returned when a stored hash cannot be parsed.
	ErrInvalidHash = errors.New("invalid password hash")
)

// HashParams holds Argon2id parameters.
type HashParams struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}

// DefaultHashParams returns the parameters used for new hashes.
func DefaultHashParams() HashParams {
	return HashParams{
		Time:    3,
		Memory:  64 * 1024,
		Threads: 4,
		KeyLen:  32,
	}
}

// HashPassword encodes password as $argon2id$v=19$m=...,t=...,p=...$salt$hash.
func HashPassword(password string) (string, error) {
	return hashWith(password, DefaultHashParams())
}

func hashWith(password string, params HashParams) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Time, params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether password matches encoded.
func VerifyPassword(password, encoded string) (bool, error) {
	params, salt, key, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLen)
	return subtle.ConstantTimeCompare(candidate, key) == 1, nil
}

func decodeHash(encoded string) (HashParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return HashParams{}, nil, nil, ErrInvalidHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return HashParams{}, nil, nil, fmt.Errorf("%w: unsupported version", ErrInvalidHash)
	}
	var params HashParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Threads); err != nil {
		return HashParams{}, nil, nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return HashParams{}, nil, nil, fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return HashParams{}, nil, nil, fmt.Errorf("%w: key", ErrInvalidHash)
	}
	params.KeyLen = uint32(len(key))
	return params, salt, key, nil
}

// LocalVerifier checks credentials against the configured users.
type LocalVerifier struct {
	users []core.UserCredential
}

// NewLocalVerifier builds a verifier over users.
func NewLocalVerifier(users []core.UserCredential) *LocalVerifier {
	return &LocalVerifier{users: users}
}

// Verify validates username and password. Blank fields are rejected before
// any hashing.
func (v *LocalVerifier) Verify(username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrUsernameRequired
	}
	if strings.TrimSpace(password) == "" {
		return ErrPasswordRequired
	}
	for _, user := range v.users {
		if !strings.EqualFold(user.Username, username) {
			continue
		}
		ok, err := VerifyPassword(password, user.PasswordHash)
		if err != nil {
			return fmt.Errorf("user %s: %w", user.Username, err)
		}
		if ok {
			return nil
		}
		return ErrInvalidCredentials
	}
	return ErrInvalidCredentials
}
