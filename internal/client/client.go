// Package client speaks the relay's line protocol from the user side.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
)

// ErrRejected is returned when the relay answers SIGNUP or LOGIN with a
// failure code. The reply itself is available through errors.As on
// *RejectedError.
var ErrRejected = errors.New("request rejected")

type RejectedError struct {
	Reply string
}

func (e *RejectedError) Error() string { return "relay replied " + e.Reply }

func (e *RejectedError) Unwrap() error { return ErrRejected }

// Client is a single relay connection. ReadLine must be called from one
// goroutine; Send may be called concurrently with it.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader

	mu sync.Mutex // serializes writes
}

// Dial connects to the relay at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	return &Client{conn: conn, reader: bufio.NewReader(conn)}
}

// Signup registers and joins in one step.
func (c *Client) Signup(username, password string) error {
	return c.authenticate("SIGNUP", "SIGNUP_SUCCESS", username, password)
}

// Login joins with an existing account.
func (c *Client) Login(username, password string) error {
	return c.authenticate("LOGIN", "LOGIN_SUCCESS", username, password)
}

func (c *Client) authenticate(command, success, username, password string) error {
	if err := c.Send(command + "\n" + username + "\n" + password); err != nil {
		return err
	}
	reply, err := c.ReadLine()
	if err != nil {
		return fmt.Errorf("waiting for %s reply: %w", command, err)
	}
	if reply != success {
		return &RejectedError{Reply: reply}
	}
	return nil
}

// Send writes one line (or several joined by newlines).
func (c *Client) Send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.conn, line+"\n"); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// ReadLine returns the next line from the relay without its terminator.
func (c *Client) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// DescribeReply turns an authentication reply code into text for a person.
func DescribeReply(reply string) string {
	switch reply {
	case "SIGNUP_SUCCESS":
		return "Sign up successful!"
	case "LOGIN_SUCCESS":
		return "Login successful!"
	case "SIGNUP_FAILED_INVALID_USERNAME":
		return "Invalid username. Use 3-20 alphanumeric characters."
	case "SIGNUP_FAILED_INVALID_PASSWORD":
		return "Invalid password. Use 8+ characters with letters and numbers."
	case "SIGNUP_FAILED_USERNAME_EXISTS":
		return "Username already exists."
	case "LOGIN_FAILED":
		return "Login failed. Check your username and password."
	case "INVALID_COMMAND":
		return "The server did not understand the request."
	}
	return "Unexpected reply: " + reply
}
