package chat

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWebSocket(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	url := "ws://" + srv.WebSocketAddr().String() + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return string(data)
}

func TestWebSocket_SharesRosterWithTCP(t *testing.T) {
	srv, _ := startServer(t, Options{WebSocketAddr: "127.0.0.1:0"})
	ws := dialWebSocket(t, srv)

	// One frame may carry several protocol lines.
	if err := ws.WriteMessage(websocket.TextMessage, []byte("SIGNUP\nwebuser1\r\npassword1\n")); err != nil {
		t.Fatal(err)
	}
	if got := readFrame(t, ws); got != ReplySignupSuccess {
		t.Fatalf("got %q, want %q", got, ReplySignupSuccess)
	}
	waitForMembers(t, srv, 1)

	bob := dialClient(t, srv)
	bob.signup("bob", "password1")
	if got := readFrame(t, ws); !strings.HasSuffix(got, "User bob joined the chat.") {
		t.Fatalf("unexpected frame %q", got)
	}

	bob.send("/msg WEBUSER1 over tcp")
	if got := readFrame(t, ws); got != "Private from bob: over tcp" {
		t.Fatalf("unexpected frame %q", got)
	}
	bob.expect("Sent to WEBUSER1: over tcp")

	if err := ws.WriteMessage(websocket.TextMessage, []byte("over websocket")); err != nil {
		t.Fatal(err)
	}
	bob.expect("[2024-03-09 14:05] webuser1: over websocket")

	_ = ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	bob.expect("[2024-03-09 14:05] User webuser1 left the chat.")
}

func TestWebSocket_RejectsNonGet(t *testing.T) {
	srv, _ := startServer(t, Options{WebSocketAddr: "127.0.0.1:0"})

	resp, err := http.Post("http://"+srv.WebSocketAddr().String()+"/ws", "text/plain", strings.NewReader("SIGNUP"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestWebSocket_DisabledByDefault(t *testing.T) {
	srv, _ := startServer(t, Options{})
	if srv.WebSocketAddr() != nil {
		t.Fatalf("expected no websocket listener, got %s", srv.WebSocketAddr())
	}
}
