package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/engine"
	"github.com/yoockh/yoointerview/internal/protocol"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsMaxMessage = 64 << 10
)

type WSHandler struct {
	manager  *engine.Manager
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(m *engine.Manager, log logrus.FieldLogger) *WSHandler {
	if log == nil {
		log = logrus.New()
	}
	return &WSHandler{
		manager: m,
		log:     log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // the token is the credential
		},
	}
}

// wsConn is the engine.Peer of one websocket.
type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (w *wsConn) Send(f protocol.Frame) error {
	b, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	return w.writeText(b)
}

func (w *wsConn) closeWith(code int, reason string) {
	w.mu.Lock()
	_ = w.c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	w.mu.Unlock()
}

// SessionWS carries the realtime protocol for the session identified by the
// :token path parameter.
func (h *WSHandler) SessionWS(c *gin.Context) {
	token := c.Param("token")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	log := h.log.WithField("token_prefix", tokenPrefix(token))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.manager.Attach(ctx, token, wc); err != nil {
		if errors.Is(err, engine.ErrUnknownSession) {
			_ = wc.Send(protocol.Error("Invalid session token"))
			wc.closeWith(websocket.ClosePolicyViolation, "invalid session token")
			return
		}
		log.WithError(err).Error("attach failed")
		_ = wc.Send(protocol.Error("Session unavailable"))
		wc.closeWith(websocket.CloseInternalServerErr, "")
		return
	}
	defer h.manager.Detach(token, wc)
	log.Info("websocket attached")

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	go func() {
		t := time.NewTicker(wsPingPeriod)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := wc.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("websocket closed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		f, err := protocol.Decode(data)
		if err != nil {
			_ = wc.Send(protocol.Error("Invalid message format"))
			continue
		}
		if err := h.manager.Handle(ctx, token, f); err != nil {
			log.WithError(err).WithField("type", f.Type).Error("frame handling failed")
			if errors.Is(err, engine.ErrUnknownSession) {
				_ = wc.Send(protocol.Error("Session expired"))
				wc.closeWith(websocket.ClosePolicyViolation, "session expired")
				return
			}
		}
	}
}

func tokenPrefix(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
