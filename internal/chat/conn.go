package chat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// Conn is a line-oriented duplex channel to one client. ReadLine is only
// called by the owning supervisor and WriteLine only by its writer
// goroutine; Close may be called from anywhere.
type Conn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	RemoteAddr() string
	Close() error
}

type tcpConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	writer       *bufio.Writer
	writeTimeout time.Duration
}

// NewTCPConn frames conn as newline-delimited text. A zero writeTimeout
// disables write deadlines.
func NewTCPConn(conn net.Conn, writeTimeout time.Duration) Conn {
	return &tcpConn{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writer:       bufio.NewWriter(conn),
		writeTimeout: writeTimeout,
	}
}

func (c *tcpConn) ReadLine() (string, error) {
	return readLine(c.reader)
}

func (c *tcpConn) WriteLine(line string) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if _, err := c.writer.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

// readLine returns the next line without its terminator. Lines longer
// than maxFrameSize fail with ErrLineTooLong, matching the WebSocket cap.
func readLine(r *bufio.Reader) (string, error) {
	var line []byte
	for {
		frag, err := r.ReadSlice('\n')
		if len(line)+len(frag) > maxFrameSize {
			return "", ErrLineTooLong
		}
		line = append(line, frag...)
		switch {
		case err == nil:
			return strings.TrimRight(string(line), "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == io.EOF && len(line) > 0:
			// last line without newline
			return strings.TrimRight(string(line), "\r\n"), nil
		case err == io.EOF:
			return "", io.EOF
		default:
			return "", fmt.Errorf("read: %w", err)
		}
	}
}

// isClosedErr reports errors expected while tearing a connection down.
func isClosedErr(err error) bool {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}
