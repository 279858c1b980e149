package tokenissuer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrUnauthorized = errors.New("token issuer rejected credentials")

type CreateRequest struct {
	SessionType string `json:"session_type"`
	ResumeID    string `json:"resume_id,omitempty"`
	ResumeText  string `json:"resume_text,omitempty"`
}

// Token is an issued session. SessionToken is opaque to the client.
type Token struct {
	SessionToken string `json:"session_token"`
	SessionID    string `json:"session_id"`
	WebsocketURL string `json:"websocket_url"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client calls POST /interview/realtime/create on the engine API.
type Client struct {
	BaseURL   string
	AuthToken string // bearer JWT
	HTTP      *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *Client) Create(ctx context.Context, req CreateRequest) (Token, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Token{}, err
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/interview/realtime/create"
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Token{}, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	if c.AuthToken != "" {
		hreq.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.httpClient().Do(hreq)
	if err != nil {
		return Token{}, fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Token{}, fmt.Errorf("create session: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var ae apiError
		_ = json.Unmarshal(raw, &ae)
		msg := ae.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return Token{}, fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		}
		return Token{}, fmt.Errorf("create session: status %d: %s", resp.StatusCode, msg)
	}

	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return Token{}, fmt.Errorf("create session: decode: %w", err)
	}
	if tok.SessionToken == "" {
		return Token{}, errors.New("create session: empty session token")
	}
	return tok, nil
}

// DialBase returns the websocket base URL for a token: the server-provided
// websocket_url with the token removed, resolved against the API base.
func DialBase(apiBase string, tok Token) (string, error) {
	base, err := url.Parse(strings.TrimRight(apiBase, "/") + "/")
	if err != nil {
		return "", err
	}
	path := strings.TrimSuffix(tok.WebsocketURL, "/"+tok.SessionToken)
	if path == "" {
		path = "/interview/realtime/ws"
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	u := base.ResolveReference(ref)
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return strings.TrimRight(u.String(), "/"), nil
}
