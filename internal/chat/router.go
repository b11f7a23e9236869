package chat

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// TimestampLayout prefixes every broadcast line, minute resolution.
const TimestampLayout = "2006-01-02 15:04"

// RouterConfig tunes Router behaviour.
type RouterConfig struct {
	// Now is the clock used for broadcast timestamps. Defaults to time.Now.
	Now func() time.Time
	// ExcludeSelfFromOnline drops the requester from ListOnline results.
	ExcludeSelfFromOnline bool
}

// Router delivers broadcasts, private messages and online listings over a
// Registry snapshot. It never holds the registry while sending.
type Router struct {
	registry    *Registry
	logger      *slog.Logger
	now         func() time.Time
	excludeSelf bool
}

func NewRouter(registry *Registry, cfg RouterConfig, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Router{
		registry:    registry,
		logger:      logger,
		now:         now,
		excludeSelf: cfg.ExcludeSelfFromOnline,
	}
}

// Broadcast sends "[timestamp] text" to every authenticated session except
// exclude and returns how many lines were queued. A recipient whose queue
// is full or closed is skipped.
func (rt *Router) Broadcast(text string, exclude *Session) int {
	line := fmt.Sprintf("[%s] %s", rt.now().Format(TimestampLayout), text)

	delivered := 0
	for _, s := range rt.registry.Snapshot() {
		if s == exclude || !s.Authenticated() {
			continue
		}
		if s.Send(line) {
			delivered++
		} else {
			DroppedMessages.Inc()
		}
	}

	MessagesTotal.WithLabelValues("broadcast").Inc()
	rt.logger.Debug("broadcast", "line", line, "recipients", delivered)
	return delivered
}

// ListOnline returns the usernames of authenticated sessions in join order.
// The requester is included unless the router was configured otherwise.
func (rt *Router) ListOnline(requester *Session) []string {
	snapshot := rt.registry.Snapshot()
	names := make([]string, 0, len(snapshot))
	for _, s := range snapshot {
		if !s.Authenticated() {
			continue
		}
		if rt.excludeSelf && s == requester {
			continue
		}
		names = append(names, s.Username())
	}
	MessagesTotal.WithLabelValues("online").Inc()
	return names
}

// PrivateMessage delivers text to the first authenticated session whose
// username matches target case-insensitively. It returns ErrUserNotFound
// when nobody matches. A dead recipient is not an error.
func (rt *Router) PrivateMessage(from *Session, target, text string) error {
	for _, s := range rt.registry.Snapshot() {
		if !s.Authenticated() || !strings.EqualFold(s.Username(), target) {
			continue
		}
		if !s.Send("Private from " + from.Username() + ": " + text) {
			DroppedMessages.Inc()
		}
		MessagesTotal.WithLabelValues("private").Inc()
		rt.logger.Debug("private message", "from", from.Username(), "to", s.Username())
		return nil
	}
	return ErrUserNotFound
}

// FormatOnline renders a ListOnline result as the /online reply.
func FormatOnline(names []string) string {
	if len(names) == 0 {
		return "No other users online"
	}
	return "Online users: " + strings.Join(names, ", ")
}
