package chat

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestReadLine_TrimsLineEndings(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("SIGNUP\r\nalice\nno newline"))
	for _, want := range []string{"SIGNUP", "alice", "no newline"} {
		got, err := readLine(r)
		if err != nil {
			t.Fatalf("readLine: %v", err)
		}
		if got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
	if _, err := readLine(r); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadLine_CapsLineLength(t *testing.T) {
	fits := strings.Repeat("a", maxFrameSize-1)
	r := bufio.NewReader(strings.NewReader(fits + "\n" + strings.Repeat("b", maxFrameSize+1) + "\n"))

	got, err := readLine(r)
	if err != nil {
		t.Fatalf("line at the cap: %v", err)
	}
	if got != fits {
		t.Fatalf("line at the cap came back with %d bytes", len(got))
	}
	if _, err := readLine(r); err != ErrLineTooLong {
		t.Fatalf("expected ErrLineTooLong, got %v", err)
	}
}

func TestServer_OversizedLineDisconnects(t *testing.T) {
	srv, _ := startServer(t, Options{})
	c := dialClient(t, srv)

	// the relay may hang up before the write completes
	_, _ = io.WriteString(c.conn, strings.Repeat("x", maxFrameSize+1)+"\n")
	if _, err := c.readLine(); err == nil {
		t.Fatal("expected the relay to drop a connection sending an oversized line")
	}
}

func TestIsClosedErr(t *testing.T) {
	for _, err := range []error{nil, io.EOF, net.ErrClosed, errors.New("write tcp: broken pipe")} {
		if !isClosedErr(err) {
			t.Errorf("isClosedErr(%v) = false", err)
		}
	}
	if isClosedErr(errors.New("i/o timeout")) {
		t.Error("timeout treated as a closed connection")
	}
}

func TestOutboundWriter_DrainsQueueThenStops(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	conn := NewTCPConn(server, time.Second)

	out := make(chan string, 4)
	out <- "first"
	out <- "second"
	close(out)
	done := StartOutboundWriter(conn, out, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := bufio.NewReader(client)
	for _, want := range []string{"first", "second"} {
		got, err := readLine(r)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer did not stop after its queue closed")
	}
}

func TestOutboundWriter_StopsOnWriteError(t *testing.T) {
	server, client := net.Pipe()
	client.Close()
	conn := NewTCPConn(server, time.Second)

	out := make(chan string, 1)
	out <- "lost"
	done := StartOutboundWriter(conn, out, slog.New(slog.NewTextHandler(io.Discard, nil)))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer kept running after a failed write")
	}
}

func TestMetricsServer_ServesHealthAndMetrics(t *testing.T) {
	srv := httptest.NewServer(NewMetricsServer("").Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("health: %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "chat_connected_clients") {
		t.Fatal("metrics output missing chat_connected_clients")
	}
}
