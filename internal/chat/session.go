package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/andy6609/chat-relay/internal/credential"
)

// Wire replies sent during the unauthenticated phase.
const (
	ReplySignupSuccess         = "SIGNUP_SUCCESS"
	ReplySignupInvalidUsername = "SIGNUP_FAILED_INVALID_USERNAME"
	ReplySignupInvalidPassword = "SIGNUP_FAILED_INVALID_PASSWORD"
	ReplySignupUsernameExists  = "SIGNUP_FAILED_USERNAME_EXISTS"
	ReplyLoginSuccess          = "LOGIN_SUCCESS"
	ReplyLoginFailed           = "LOGIN_FAILED"
	ReplyInvalidCommand        = "INVALID_COMMAND"
)

var helpLines = []string{
	"Available commands:",
	"/online - List online users",
	"/msg <username> <message> - Send a private message",
	"/exit - Leave the chat",
}

const msgUsage = "Usage: /msg <username> <message>"

// Supervisor runs the per-connection control loop: the authentication
// state machine followed by chat command dispatch.
type Supervisor struct {
	registry     *Registry
	router       *Router
	creds        Credentials
	logger       *slog.Logger
	maxLen       int
	drainTimeout time.Duration
}

// SupervisorConfig holds per-connection limits.
type SupervisorConfig struct {
	MaxMessageLength int
	DrainTimeout     time.Duration
}

func NewSupervisor(registry *Registry, router *Router, creds Credentials, cfg SupervisorConfig, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 512
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 2 * time.Second
	}
	return &Supervisor{
		registry:     registry,
		router:       router,
		creds:        creds,
		logger:       logger,
		maxLen:       cfg.MaxMessageLength,
		drainTimeout: cfg.DrainTimeout,
	}
}

// Handle owns sess until its connection ends. Terminal cleanup runs exactly
// once on every exit path, including a panic inside the loop.
func (sv *Supervisor) Handle(ctx context.Context, sess *Session) {
	logger := sv.logger.With("session", sess.ID.String(), "remote", sess.RemoteAddr())
	writerDone := StartOutboundWriter(sess.conn, sess.out, logger)
	ConnectedClients.Inc()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("session loop panicked", "panic", r)
		}
		sv.finalize(sess, writerDone, logger)
	}()

	if err := sess.beginAuth(); err != nil {
		logger.Error("session not in connecting state", "state", sess.State().String())
		return
	}

	if !sv.authenticate(ctx, sess, logger) {
		return
	}
	logger = logger.With("username", sess.Username())

	for {
		line, err := sess.conn.ReadLine()
		if err != nil {
			if !isClosedErr(err) {
				logger.Warn("read failed", "error", err)
			}
			logger.Info("client disconnected")
			return
		}
		if !sv.dispatch(sess, line) {
			return
		}
	}
}

// authenticate drives the Authenticating state. It returns true once the
// session is authenticated and registered, false when the connection must
// terminate.
func (sv *Supervisor) authenticate(ctx context.Context, sess *Session, logger *slog.Logger) bool {
	for {
		command, err := sess.conn.ReadLine()
		if err != nil {
			logger.Info("client disconnected during authentication")
			return false
		}
		command = strings.TrimSpace(command)
		if command != "SIGNUP" && command != "LOGIN" {
			logger.Warn("invalid command", "command", command)
			sess.Send(ReplyInvalidCommand)
			continue
		}

		username, err := sess.conn.ReadLine()
		if err != nil {
			return false
		}
		password, err := sess.conn.ReadLine()
		if err != nil {
			return false
		}

		var reply string
		if command == "SIGNUP" {
			reply = sv.signup(ctx, username, password, logger)
		} else {
			reply = sv.login(ctx, username, password, logger)
		}
		if reply != ReplySignupSuccess && reply != ReplyLoginSuccess {
			sess.Send(reply)
			continue
		}

		if err := sess.authenticate(username); err != nil {
			logger.Error("authentication transition rejected", "error", err)
			return false
		}
		// Queue the reply before joining so it precedes any broadcast.
		sess.Send(reply)
		if err := sv.registry.Add(sess); err != nil {
			logger.Error("registry insert failed", "error", err)
			return false
		}
		logger.Info("user joined", "username", username)
		sv.router.Broadcast(fmt.Sprintf("User %s joined the chat.", username), sess)
		return true
	}
}

func (sv *Supervisor) signup(ctx context.Context, username, password string, logger *slog.Logger) string {
	if err := ValidateUsername(username); err != nil {
		AuthAttempts.WithLabelValues("signup", "invalid_username").Inc()
		return ReplySignupInvalidUsername
	}
	if err := ValidatePassword(password); err != nil {
		AuthAttempts.WithLabelValues("signup", "invalid_password").Inc()
		return ReplySignupInvalidPassword
	}
	if err := sv.creds.Register(ctx, username, password); err != nil {
		if !errors.Is(err, credential.ErrUsernameExists) {
			logger.Error("credential store register failed", "username", username, "error", err)
		}
		AuthAttempts.WithLabelValues("signup", "username_exists").Inc()
		return ReplySignupUsernameExists
	}
	AuthAttempts.WithLabelValues("signup", "success").Inc()
	return ReplySignupSuccess
}

func (sv *Supervisor) login(ctx context.Context, username, password string, logger *slog.Logger) string {
	if err := sv.creds.Authenticate(ctx, username, password); err != nil {
		if !errors.Is(err, credential.ErrInvalidCredentials) {
			logger.Error("credential store authenticate failed", "username", username, "error", err)
		}
		AuthAttempts.WithLabelValues("login", "failed").Inc()
		return ReplyLoginFailed
	}
	AuthAttempts.WithLabelValues("login", "success").Inc()
	return ReplyLoginSuccess
}

// dispatch handles one chat-phase line and reports whether the loop
// should continue.
func (sv *Supervisor) dispatch(sess *Session, line string) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return true
	case strings.EqualFold(trimmed, "/exit"):
		sess.Send("Bye")
		return false
	case strings.EqualFold(trimmed, "/help"):
		for _, l := range helpLines {
			sess.Send(l)
		}
	case strings.EqualFold(trimmed, "/online"):
		sess.Send(FormatOnline(sv.router.ListOnline(sess)))
	case trimmed == "/msg" || strings.HasPrefix(line, "/msg "):
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 3 || parts[1] == "" || strings.TrimSpace(parts[2]) == "" {
			sess.Send(msgUsage)
			return true
		}
		target, text := parts[1], sv.truncate(parts[2])
		if err := sv.router.PrivateMessage(sess, target, text); err != nil {
			sess.Send(fmt.Sprintf("User %s not found or offline.", target))
			return true
		}
		sess.Send(fmt.Sprintf("Sent to %s: %s", target, text))
	default:
		sv.router.Broadcast(sess.Username()+": "+sv.truncate(line), sess)
	}
	return true
}

func (sv *Supervisor) truncate(text string) string {
	if len(text) > sv.maxLen {
		return text[:sv.maxLen]
	}
	return text
}

// finalize is the single Terminated path for a connection. Only a session
// that actually made it into the registry announces its departure.
func (sv *Supervisor) finalize(sess *Session, writerDone <-chan struct{}, logger *slog.Logger) {
	if sess.Authenticated() && sv.registry.Remove(sess) {
		sv.router.Broadcast(fmt.Sprintf("User %s left the chat.", sess.Username()), sess)
		logger.Info("user left")
	}
	sess.terminate()

	select {
	case <-writerDone:
	case <-time.After(sv.drainTimeout):
		logger.Warn("outbound queue not drained before close", "timeout", sv.drainTimeout)
	}
	if err := sess.conn.Close(); err != nil && !isClosedErr(err) {
		logger.Debug("close failed", "error", err)
	}
	ConnectedClients.Dec()
}
