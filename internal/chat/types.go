package chat

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
)

// State is the connection-level authentication state of a Session.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAuthenticated
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Session is the relay-side state of one connected client.
//
// The username and the authenticated state change together in a single
// transition; once set the username is never mutated. All accessors are
// safe to call from any goroutine.
type Session struct {
	ID   ulid.ULID
	conn Conn
	out  chan string // outbound lines, drained by the writer goroutine

	mu       sync.RWMutex
	state    State
	username string
	closed   bool
}

// NewSession wraps conn in a Session in the Connecting state. buffer is
// the length of the outbound queue.
func NewSession(conn Conn, buffer int) *Session {
	if buffer <= 0 {
		buffer = 64
	}
	return &Session{
		ID:    ulid.Make(),
		conn:  conn,
		out:   make(chan string, buffer),
		state: StateConnecting,
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Username is empty until the session authenticates.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) Authenticated() bool {
	return s.State() == StateAuthenticated
}

// RemoteAddr reports the peer address of the underlying connection.
func (s *Session) RemoteAddr() string {
	if s.conn == nil {
		return ""
	}
	return s.conn.RemoteAddr()
}

// Outbound exposes the queue the writer goroutine drains.
func (s *Session) Outbound() <-chan string {
	return s.out
}

func (s *Session) beginAuth() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return ErrInvalidTransition
	}
	s.state = StateAuthenticating
	return nil
}

// authenticate moves Authenticating -> Authenticated and fixes the username.
func (s *Session) authenticate(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticating || username == "" {
		return ErrInvalidTransition
	}
	s.username = username
	s.state = StateAuthenticated
	return nil
}

// terminate moves the session to Terminated and closes the outbound queue.
// It reports whether the session was authenticated and is safe to call more
// than once.
func (s *Session) terminate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasAuthenticated := s.state == StateAuthenticated
	s.state = StateTerminated
	if !s.closed {
		s.closed = true
		close(s.out)
	}
	return wasAuthenticated
}

// Send queues a line for this session without blocking. It returns false
// when the line was dropped because the queue is full or already closed.
func (s *Session) Send(line string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	// Non-blocking send keeps one slow client from stalling its senders.
	select {
	case s.out <- line:
		return true
	default:
		return false
	}
}

// Credentials is the account store consulted during authentication.
// Register returns credential.ErrUsernameExists for a taken name and
// Authenticate returns credential.ErrInvalidCredentials for a bad pair.
type Credentials interface {
	Register(ctx context.Context, username, password string) error
	Authenticate(ctx context.Context, username, password string) error
}

var (
	ErrAlreadyPresent    = errorString("session_already_present")
	ErrUserNotFound      = errorString("user_not_found")
	ErrUsernameInvalid   = errorString("username_invalid")
	ErrPasswordInvalid   = errorString("password_invalid")
	ErrInvalidTransition = errorString("invalid_state_transition")
	ErrRegistryStopped   = errorString("registry_stopped")
	ErrLineTooLong       = errorString("line_too_long")
)

type errorString string

func (e errorString) Error() string { return string(e) }
