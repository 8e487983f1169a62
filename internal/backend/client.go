package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adamavenir/vliz/internal/types"
)

var (
	// ErrNotJSON is returned when the fetch endpoint answers with something other than JSON.
	ErrNotJSON = errors.New("backend did not return JSON")
	// ErrNotArray is returned when the fetched payload holds no message array.
	ErrNotArray = errors.New("backend returned a non-array payload")
)

// APIError represents a non-2xx response from the message backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend error (%d)", e.Status)
}

// RemoteError is a fetch answered with 200 but carrying {"error": ...}.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "backend reported: " + e.Message
}

// Log is the collaborator the sync engine reads from and appends to.
type Log interface {
	Fetch(ctx context.Context) ([]types.RawMessage, error)
	Append(ctx context.Context, msg string) error
}

type fetchEnvelope struct {
	Messages json.RawMessage `json:"messages"`
	Error    string          `json:"error"`
}

type appendRequest struct {
	Msg string `json:"msg"`
}

// Client talks to the message backend's /get and /send endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a backend client.
func NewClient(baseURL string) (*Client, error) {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: normalized,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}, nil
}

// NormalizeBaseURL normalizes a backend URL and ensures it has a scheme.
func NormalizeBaseURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("backend url cannot be empty")
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid backend url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("backend url must include scheme and host (http://host:port)")
	}
	return strings.TrimRight(value, "/"), nil
}

// BaseURL returns the normalized backend URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Fetch returns the full message log. Any failure yields an empty snapshot
// together with the reason.
func (c *Client) Fetch(ctx context.Context) ([]types.RawMessage, error) {
	endpoint, err := c.buildURL("/get")
	if err != nil {
		return []types.RawMessage{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return []types.RawMessage{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return []types.RawMessage{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return []types.RawMessage{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return []types.RawMessage{}, &APIError{Status: resp.StatusCode, Message: snippet(data)}
	}
	if !isJSONContentType(resp.Header.Get("Content-Type")) {
		return []types.RawMessage{}, fmt.Errorf("%w: %s", ErrNotJSON, snippet(data))
	}
	return DecodeSnapshot(data)
}

// DecodeSnapshot accepts either a bare JSON array of strings or an object
// {"messages": [...], "error": "..."}.
func DecodeSnapshot(data []byte) ([]types.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []types.RawMessage{}, fmt.Errorf("%w: empty body", ErrNotJSON)
	}

	raw := json.RawMessage(trimmed)
	if trimmed[0] == '{' {
		var envelope fetchEnvelope
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return []types.RawMessage{}, fmt.Errorf("%w: %v", ErrNotJSON, err)
		}
		if envelope.Error != "" {
			return []types.RawMessage{}, &RemoteError{Message: envelope.Error}
		}
		raw = envelope.Messages
	}
	if len(raw) == 0 || raw[0] != '[' {
		return []types.RawMessage{}, ErrNotArray
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []types.RawMessage{}, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	messages := make([]types.RawMessage, 0, len(items))
	for idx, item := range items {
		var msg string
		if err := json.Unmarshal(item, &msg); err != nil {
			return []types.RawMessage{}, fmt.Errorf("%w: entry %d is not a string", ErrNotArray, idx)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Append adds one message to the log.
func (c *Client) Append(ctx context.Context, msg string) error {
	endpoint, err := c.buildURL("/send")
	if err != nil {
		return err
	}
	body, err := json.Marshal(appendRequest{Msg: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		} else {
			apiErr.Message = snippet(data)
		}
		return apiErr
	}
	return nil
}

func (c *Client) buildURL(path string) (string, error) {
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func isJSONContentType(value string) bool {
	if value == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.Contains(value, "json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func snippet(data []byte) string {
	text := strings.TrimSpace(string(data))
	if len(text) > 100 {
		text = text[:100]
	}
	return text
}
