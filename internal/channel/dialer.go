package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the transport under a Channel. Text frames only.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer establishes the transport for a session token.
type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// WSDialer dials BaseURL + "/" + token over websocket.
type WSDialer struct {
	BaseURL          string // e.g. ws://localhost:8080/interview/realtime/ws
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func (d WSDialer) Dial(ctx context.Context, token string) (Conn, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("empty session token")
	}
	u, err := url.Parse(strings.TrimRight(d.BaseURL, "/") + "/" + url.PathEscape(token))
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	hs := d.HandshakeTimeout
	if hs <= 0 {
		hs = 10 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: hs, ReadBufferSize: 16384, WriteBufferSize: 16384}

	c, resp, err := dialer.DialContext(ctx, u.String(), d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", u.Redacted(), resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	wt := d.WriteTimeout
	if wt <= 0 {
		wt = 10 * time.Second
	}
	return &wsConn{c: c, writeTimeout: wt}, nil
}

type wsConn struct {
	c            *websocket.Conn
	mu           sync.Mutex
	writeTimeout time.Duration
}

func (w *wsConn) ReadMessage() (int, []byte, error) { return w.c.ReadMessage() }

func (w *wsConn) WriteMessage(mt int, b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	return w.c.WriteMessage(mt, b)
}

func (w *wsConn) Close() error {
	w.mu.Lock()
	_ = w.c.SetWriteDeadline(time.Now().Add(time.Second))
	_ = w.c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	w.mu.Unlock()
	return w.c.Close()
}
