package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.bey.dev"

	// Identity is the participant identity the avatar joins the room with.
	Identity = "bey-avatar-agent"
	name     = "Avatar"
)

type TokenIssuer interface {
	Issue(identity, name, roomName string) (string, error)
}

type Client struct {
	baseURL    string
	apiKey     string
	avatarID   string
	livekitURL string
	tokens     TokenIssuer
	http       *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func New(baseURL, apiKey, avatarID, livekitURL string, tokens TokenIssuer, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		avatarID:   avatarID,
		livekitURL: livekitURL,
		tokens:     tokens,
		http:       &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sessionRequest struct {
	AvatarID     string `json:"avatar_id"`
	LiveKitURL   string `json:"livekit_url"`
	LiveKitToken string `json:"livekit_token"`
}

type sessionResponse struct {
	ID string `json:"id"`
}

// Start asks the avatar service to join roomName.
func (c *Client) Start(ctx context.Context, roomName string) error {
	id, err := c.CreateSession(ctx, roomName)
	if err != nil {
		return err
	}
	slog.Info("avatar session created", "room", roomName, "session_id", id)
	return nil
}

// CreateSession requests an avatar session for roomName and returns its ID.
func (c *Client) CreateSession(ctx context.Context, roomName string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("start avatar: api key not configured")
	}
	token, err := c.tokens.Issue(Identity, name, roomName)
	if err != nil {
		return "", fmt.Errorf("start avatar: %w", err)
	}

	body, err := json.Marshal(sessionRequest{AvatarID: c.avatarID, LiveKitURL: c.livekitURL, LiveKitToken: token})
	if err != nil {
		return "", fmt.Errorf("marshal avatar request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/session", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build avatar request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("avatar request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("avatar request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out sessionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode avatar response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("decode avatar response: missing session id")
	}
	return out.ID, nil
}
