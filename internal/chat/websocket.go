package chat

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const maxFrameSize = 64 << 10

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The line protocol carries its own authentication; any origin may
	// open a socket.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsConn carries the line protocol over WebSocket text frames. Each frame
// sent is one line; a received frame may carry several newline-separated
// lines.
type wsConn struct {
	conn         *websocket.Conn
	addr         string
	writeTimeout time.Duration
	pending      []string

	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn adapts an upgraded WebSocket connection to Conn.
func NewWebSocketConn(conn *websocket.Conn, addr string, writeTimeout time.Duration) Conn {
	return &wsConn{conn: conn, addr: addr, writeTimeout: writeTimeout}
}

func (c *wsConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if isWebSocketClosed(err) {
				return "", io.EOF
			}
			return "", fmt.Errorf("read: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		text := strings.TrimSuffix(string(data), "\n")
		for _, line := range strings.Split(text, "\n") {
			c.pending = append(c.pending, strings.TrimRight(line, "\r"))
		}
	}
	line := c.pending[0]
	c.pending = c.pending[1:]
	return line, nil
}

func (c *wsConn) WriteLine(line string) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *wsConn) RemoteAddr() string {
	return c.addr
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// isWebSocketClosed reports close frames and resets from a departing peer.
func isWebSocketClosed(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived)
}

// WebSocketHandler upgrades GET requests and serves the line protocol on
// the resulting connection until it ends.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	s.logger.Info("client connected", "addr", r.RemoteAddr, "transport", "websocket")
	s.serve(NewWebSocketConn(conn, r.RemoteAddr, s.opts.WriteTimeout))
}
